package manifest

import "time"

// SchemaVersion is the current manifest version written by this build.
const SchemaVersion = 1

// WorktreeStatus enumerates the lifecycle states of a Worktree.
type WorktreeStatus string

const (
	WorktreeActive   WorktreeStatus = "active"
	WorktreeMerging  WorktreeStatus = "merging"
	WorktreeMerged   WorktreeStatus = "merged"
	WorktreeFailed   WorktreeStatus = "failed"
	WorktreeCleaned  WorktreeStatus = "cleaned"
)

// AgentStatus enumerates the lifecycle states of an Agent, derived from live
// PM pane state rather than trusted as cached fact.
type AgentStatus string

const (
	AgentRunning AgentStatus = "running"
	AgentIdle    AgentStatus = "idle"
	AgentExited  AgentStatus = "exited"
	AgentGone    AgentStatus = "gone"
)

// Manifest is the single on-disk registry of worktrees and agents for a
// project, persisted at <root>/.ppg/manifest.json.
type Manifest struct {
	Version     int                  `json:"version"`
	ProjectRoot string               `json:"projectRoot"`
	SessionName string               `json:"sessionName"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
	Worktrees   map[string]*Worktree `json:"worktrees"`
}

// Worktree is a single git worktree tracked by the manifest, along with the
// agents running inside it.
type Worktree struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Path       string         `json:"path"`
	Branch     string         `json:"branch"`
	BaseBranch string         `json:"baseBranch"`
	Status     WorktreeStatus `json:"status"`
	TmuxWindow string         `json:"tmuxWindow,omitempty"`
	MergedAt   *time.Time     `json:"mergedAt,omitempty"`
	PRUrl      string         `json:"prUrl,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	Agents     map[string]*Agent `json:"agents"`
}

// Agent is a single agent process tracked within a Worktree.
type Agent struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	AgentType   string      `json:"agentType"`
	Status      AgentStatus `json:"status"`
	TmuxTarget  string      `json:"tmuxTarget"`
	Prompt      string      `json:"prompt"`
	SessionID   string      `json:"sessionId,omitempty"`
	StartedAt   time.Time   `json:"startedAt"`
	ExitCode    *int        `json:"exitCode,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// maxStoredPromptLen is the truncation limit applied to Agent.Prompt before
// it is persisted to the manifest.
const maxStoredPromptLen = 500

// TruncatePrompt clips a prompt to the manifest's storage limit.
func TruncatePrompt(prompt string) string {
	if len(prompt) <= maxStoredPromptLen {
		return prompt
	}
	return prompt[:maxStoredPromptLen]
}

// New creates an empty, freshly initialized Manifest for projectRoot.
func New(projectRoot, sessionName string, now time.Time) *Manifest {
	return &Manifest{
		Version:     SchemaVersion,
		ProjectRoot: projectRoot,
		SessionName: sessionName,
		CreatedAt:   now,
		UpdatedAt:   now,
		Worktrees:   make(map[string]*Worktree),
	}
}

// ensureAgents makes sure w.Agents is non-nil, normalizing the historically
// inconsistent shape where a worktree's agents map may be entirely absent
// from the JSON on disk.
func (w *Worktree) ensureAgents() {
	if w.Agents == nil {
		w.Agents = make(map[string]*Agent)
	}
}
