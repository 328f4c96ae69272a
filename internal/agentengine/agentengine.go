// Package agentengine implements agent spawn, status derivation, kill,
// restart, and resume on top of internal/pm and internal/manifest.
package agentengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xcawolfe-amzn/ppg/internal/agentconfig"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/pm"
)

// gracePeriod is how long Kill waits after Ctrl-C before force-killing the
// pane.
const gracePeriod = 2 * time.Second

// idleCommands are shell processes that indicate an agent has returned
// control to an interactive shell rather than still running.
var idleCommands = map[string]bool{
	"bash": true, "zsh": true, "sh": true, "fish": true, "dash": true, "tcsh": true, "csh": true,
}

// SpawnParams bundles the inputs to Spawn.
type SpawnParams struct {
	AgentID      string
	AgentType    string
	Name         string
	PromptText   string
	PromptFile   string // <root>/.ppg/agent-prompts/<agentId>.md
	PaneTarget   string
	SessionID    string // resume token, optional
	Registry     *agentconfig.Registry
}

// Spawn writes the prompt file, builds the execution string, and sends it to
// the pane via PM. It returns a fresh Agent record with status "running".
func Spawn(ctx context.Context, p pm.PM, params SpawnParams) (*manifest.Agent, error) {
	if err := os.MkdirAll(filepath.Dir(params.PromptFile), 0755); err != nil {
		return nil, fmt.Errorf("agentengine: creating prompt dir: %w", err)
	}
	if err := os.WriteFile(params.PromptFile, []byte(params.PromptText), 0644); err != nil {
		return nil, fmt.Errorf("agentengine: writing prompt file: %w", err)
	}

	entry := params.Registry.Lookup(params.AgentType)
	command := BuildCommand(entry, params.PromptFile, params.SessionID)

	if err := p.SendKeys(ctx, params.PaneTarget, command); err != nil {
		return nil, fmt.Errorf("agentengine: sending keys: %w", err)
	}

	return &manifest.Agent{
		ID:         params.AgentID,
		Name:       params.Name,
		AgentType:  params.AgentType,
		Status:     manifest.AgentRunning,
		TmuxTarget: params.PaneTarget,
		Prompt:     manifest.TruncatePrompt(params.PromptText),
		SessionID:  params.SessionID,
		StartedAt:  time.Now(),
	}, nil
}

// BuildCommand constructs the "unset CLAUDECODE; <command> ..." execution
// string sent to the pane. CLAUDECODE is unset to prevent the spawned
// process from detecting it is itself running inside an agent session.
func BuildCommand(entry agentconfig.Entry, promptFile, sessionID string) string {
	var b strings.Builder
	b.WriteString("unset CLAUDECODE; ")
	b.WriteString(entry.Command)
	if sessionID != "" && entry.SessionFlag != "" {
		fmt.Fprintf(&b, " %s %s", entry.SessionFlag, sessionID)
	}
	if entry.PromptFlag != "" {
		fmt.Fprintf(&b, " %s", entry.PromptFlag)
	}
	fmt.Fprintf(&b, ` "$(cat '%s')"`, promptFile)
	return b.String()
}

// BuildResumeCommand constructs the execution string for Resume: the
// resume flag replaces session/prompt positional args.
func BuildResumeCommand(entry agentconfig.Entry, sessionID string) string {
	var b strings.Builder
	b.WriteString("unset CLAUDECODE; ")
	b.WriteString(entry.Command)
	if entry.ResumeFlag != "" {
		fmt.Fprintf(&b, " %s %s", entry.ResumeFlag, sessionID)
	}
	return b.String()
}

// DeriveStatus implements the status table from §4.5: status is always
// re-derived from live pane state, never trusted from a cache.
func DeriveStatus(info *pm.PaneInfo) (status manifest.AgentStatus, exitCode *int) {
	if info == nil {
		return manifest.AgentGone, nil
	}
	if info.IsDead {
		return manifest.AgentExited, info.DeadStatus
	}
	if idleCommands[info.CurrentCommand] {
		return manifest.AgentIdle, nil
	}
	return manifest.AgentRunning, nil
}

// RefreshAllAgentStatuses fetches one pane map per session referenced by m's
// worktrees and re-derives every agent's status in place. A worktree whose
// Path no longer exists on disk transitions to cleaned, and all its agents
// to gone.
func RefreshAllAgentStatuses(ctx context.Context, p pm.PM, m *manifest.Manifest) error {
	paneMap, err := p.ListSessionPanes(ctx, m.SessionName)
	if err != nil {
		return fmt.Errorf("agentengine: listing panes: %w", err)
	}

	for _, w := range m.Worktrees {
		if _, err := os.Stat(w.Path); os.IsNotExist(err) {
			w.Status = manifest.WorktreeCleaned
			for _, a := range w.Agents {
				a.Status = manifest.AgentGone
			}
			continue
		}
		for _, a := range w.Agents {
			info, ok := paneMap[a.TmuxTarget]
			var pi *pm.PaneInfo
			if ok {
				pi = &info
			}
			status, exitCode := DeriveStatus(pi)
			a.Status = status
			a.ExitCode = exitCode
			if status == manifest.AgentExited || status == manifest.AgentGone {
				if a.CompletedAt == nil {
					now := time.Now()
					a.CompletedAt = &now
				}
			}
		}
	}
	return nil
}

// Kill sends Ctrl-C to the agent's pane, waits gracePeriod, and force-kills
// the pane if it is still alive. It is a no-op if the pane is already absent
// or dead.
func Kill(ctx context.Context, p pm.PM, target string) error {
	info, err := p.GetPaneInfo(ctx, target)
	if err != nil {
		return err
	}
	if info == nil || info.IsDead {
		return nil
	}
	_ = p.SendCtrlC(ctx, target) // errors swallowed: pane may die mid-signal
	time.Sleep(gracePeriod)

	info, err = p.GetPaneInfo(ctx, target)
	if err != nil {
		return err
	}
	if info == nil || info.IsDead {
		return nil
	}
	return p.KillPane(ctx, target)
}

// BatchKillResult summarizes a parallel KillAgents run.
type BatchKillResult struct {
	Killed []string
	Failed map[string]error
}

// KillAgents runs step 1-2 (Ctrl-C fan-out) across all targets, waits a
// single gracePeriod barrier, then runs step 3-4 (force-kill fan-out) in
// parallel, matching the single-sleep-barrier semantics of §4.5.
func KillAgents(ctx context.Context, p pm.PM, targets []string) BatchKillResult {
	result := BatchKillResult{Failed: make(map[string]error)}
	if len(targets) == 0 {
		return result
	}

	alive := make([]string, 0, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			info, err := p.GetPaneInfo(ctx, target)
			if err != nil || info == nil || info.IsDead {
				return
			}
			_ = p.SendCtrlC(ctx, target)
			mu.Lock()
			alive = append(alive, target)
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	if len(alive) == 0 {
		return result
	}
	time.Sleep(gracePeriod)

	for _, target := range alive {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			info, err := p.GetPaneInfo(ctx, target)
			if err != nil {
				mu.Lock()
				result.Failed[target] = err
				mu.Unlock()
				return
			}
			if info == nil || info.IsDead {
				return
			}
			if err := p.KillPane(ctx, target); err != nil {
				mu.Lock()
				result.Failed[target] = err
				mu.Unlock()
				return
			}
			mu.Lock()
			result.Killed = append(result.Killed, target)
			mu.Unlock()
		}(target)
	}
	wg.Wait()
	return result
}

// RestartParams bundles the inputs to Restart.
type RestartParams struct {
	Old          *manifest.Agent
	NewAgentID   string
	WorktreeName string
	WorktreePath string
	PromptFile   string // reused unless PromptOverride is set
	PromptOverride string
	Registry     *agentconfig.Registry
}

// Restart kills the old agent if running, opens a fresh window named
// "<worktree>-restart", spawns a new agent reading the prior prompt file
// (unless overridden), and returns the new Agent record. The caller is
// responsible for atomically replacing the old record's status with "gone"
// and inserting the new record under params.NewAgentID in the manifest.
func Restart(ctx context.Context, p pm.PM, sessionName string, params RestartParams) (*manifest.Agent, error) {
	if params.Old.Status == manifest.AgentRunning {
		if err := Kill(ctx, p, params.Old.TmuxTarget); err != nil {
			return nil, fmt.Errorf("agentengine: killing old agent before restart: %w", err)
		}
	}

	windowName := params.WorktreeName + "-restart"
	target, err := p.CreateWindow(ctx, sessionName, windowName, params.WorktreePath)
	if err != nil {
		return nil, fmt.Errorf("agentengine: creating restart window: %w", err)
	}

	promptText := params.PromptOverride
	if promptText == "" {
		data, err := os.ReadFile(params.PromptFile)
		if err != nil {
			return nil, fmt.Errorf("agentengine: reading prior prompt file: %w", err)
		}
		promptText = string(data)
	}

	return Spawn(ctx, p, SpawnParams{
		AgentID:    params.NewAgentID,
		AgentType:  params.Old.AgentType,
		Name:       params.Old.Name,
		PromptText: promptText,
		PromptFile: params.PromptFile,
		PaneTarget: target,
		Registry:   params.Registry,
	})
}

// ResumeParams bundles the inputs to Resume.
type ResumeParams struct {
	Agent        *manifest.Agent
	WorktreeName string
	WorktreePath string
	Registry     *agentconfig.Registry
}

// Resume opens a new window and invokes the agent binary with its resume
// flag against params.Agent.SessionID. The caller is responsible for
// atomically replacing the agent's TmuxTarget in the manifest with the
// returned target.
func Resume(ctx context.Context, p pm.PM, sessionName string, params ResumeParams) (newTarget string, err error) {
	if params.Agent.SessionID == "" {
		return "", fmt.Errorf("agentengine: agent %s has no sessionId to resume", params.Agent.ID)
	}
	windowName := params.WorktreeName + "-resume"
	target, err := p.CreateWindow(ctx, sessionName, windowName, params.WorktreePath)
	if err != nil {
		return "", fmt.Errorf("agentengine: creating resume window: %w", err)
	}
	entry := params.Registry.Lookup(params.Agent.AgentType)
	command := BuildResumeCommand(entry, params.Agent.SessionID)
	if err := p.SendKeys(ctx, target, command); err != nil {
		return "", fmt.Errorf("agentengine: sending resume keys: %w", err)
	}
	return target, nil
}
