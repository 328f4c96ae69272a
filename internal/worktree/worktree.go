// Package worktree implements the worktree lifecycle engine: create, adopt,
// remove, and the merge/cleanup state machine.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xcawolfe-amzn/ppg/internal/gitutil"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/paths"
	"github.com/xcawolfe-amzn/ppg/internal/pm"
	"github.com/xcawolfe-amzn/ppg/internal/selfprotect"
)

// Sentinel errors, mapped to CLI exit codes by internal/taggederr.
var (
	ErrAgentsRunning = errors.New("worktree: agents still running")
	ErrMergeFailed   = errors.New("worktree: merge failed")
)

// Strategy is a merge strategy.
type Strategy string

const (
	Squash Strategy = "squash"
	NoFF   Strategy = "no-ff"
)

// CreateParams bundles the inputs to Create.
type CreateParams struct {
	RepoRoot   string
	WorktreeID string
	Name       string
	Branch     string
	BaseBranch string
}

// Create adds a new git worktree at <root>/.ppg/worktrees/<name> on Branch,
// branched from BaseBranch.
func Create(ctx context.Context, g *gitutil.Git, params CreateParams, worktreePath string) (*manifest.Worktree, error) {
	if err := g.WorktreeAdd(ctx, worktreePath, params.Branch, params.BaseBranch); err != nil {
		return nil, fmt.Errorf("worktree: creating %s: %w", params.Branch, err)
	}
	return &manifest.Worktree{
		ID:         params.WorktreeID,
		Name:       params.Name,
		Path:       worktreePath,
		Branch:     params.Branch,
		BaseBranch: params.BaseBranch,
		Status:     manifest.WorktreeActive,
		CreatedAt:  time.Now(),
		Agents:     make(map[string]*manifest.Agent),
	}, nil
}

// Adopt registers an already-checked-out directory as a manifest worktree
// entry without creating a new git worktree.
func Adopt(worktreeID, name, path, branch, baseBranch string) *manifest.Worktree {
	return &manifest.Worktree{
		ID:         worktreeID,
		Name:       name,
		Path:       path,
		Branch:     branch,
		BaseBranch: baseBranch,
		Status:     manifest.WorktreeActive,
		CreatedAt:  time.Now(),
		Agents:     make(map[string]*manifest.Agent),
	}
}

// MergeParams bundles the inputs to Merge.
type MergeParams struct {
	Strategy Strategy
	Force    bool
	DryRun   bool
	Cleanup  bool
}

// Merge runs the canonical active → merging → merged state machine. On Git
// failure the worktree is persisted as failed and ErrMergeFailed is
// returned wrapping the tool's stderr. persist is the caller-supplied
// callback, invoked after every status transition so progress
// survives a crash between steps.
func Merge(ctx context.Context, g *gitutil.Git, w *manifest.Worktree, params MergeParams, persist func(manifest.WorktreeStatus) error) error {
	for _, a := range w.Agents {
		if a.Status == manifest.AgentRunning && !params.Force {
			return fmt.Errorf("%w: agent %s is running in worktree %s", ErrAgentsRunning, a.ID, w.Name)
		}
	}

	if params.DryRun {
		return nil
	}

	if err := persist(manifest.WorktreeMerging); err != nil {
		return fmt.Errorf("worktree: persisting merging status: %w", err)
	}

	current, err := g.CurrentBranch(ctx)
	if err != nil {
		_ = persist(manifest.WorktreeFailed)
		return fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}
	if current != w.BaseBranch {
		if err := g.Checkout(ctx, w.BaseBranch); err != nil {
			_ = persist(manifest.WorktreeFailed)
			return fmt.Errorf("%w: checkout %s: %v", ErrMergeFailed, w.BaseBranch, err)
		}
	}

	switch params.Strategy {
	case NoFF:
		msg := fmt.Sprintf("ppg: merge %s (%s)", w.Name, w.Branch)
		if err := g.MergeNoFF(ctx, w.Branch, msg); err != nil {
			_ = persist(manifest.WorktreeFailed)
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
	default: // Squash
		if err := g.MergeSquash(ctx, w.Branch); err != nil {
			_ = persist(manifest.WorktreeFailed)
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
		msg := fmt.Sprintf("ppg: merge %s (%s)", w.Name, w.Branch)
		if err := g.Commit(ctx, msg); err != nil {
			_ = persist(manifest.WorktreeFailed)
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
	}

	now := time.Now()
	w.MergedAt = &now
	if err := persist(manifest.WorktreeMerged); err != nil {
		return fmt.Errorf("worktree: persisting merged status: %w", err)
	}

	if !params.Cleanup {
		return nil
	}
	_, err = Cleanup(ctx, g, w, "", nil, persist)
	return err
}

// CleanupResult reports the counts described in §4.6.
type CleanupResult struct {
	TmuxKilled           int
	TmuxSkipped          int
	TmuxFailed           int
	SelfProtected        int
	SelfProtectedTargets []string
	ManifestApplied      bool
}

// Cleanup tears down a worktree in the crash-safe order from §4.6: the
// manifest checkpoint to "cleaned" happens first, so re-running after a
// crash is idempotent on PM state and still attempts the remaining
// best-effort filesystem steps.
func Cleanup(ctx context.Context, g *gitutil.Git, w *manifest.Worktree, selfPaneID string, p pm.PM, persist func(manifest.WorktreeStatus) error) (CleanupResult, error) {
	var result CleanupResult

	if w.Status != manifest.WorktreeCleaned {
		if err := persist(manifest.WorktreeCleaned); err != nil {
			return result, fmt.Errorf("worktree: persisting cleaned checkpoint: %w", err)
		}
	}
	w.Status = manifest.WorktreeCleaned
	result.ManifestApplied = true

	targets := map[string]bool{}
	for _, a := range w.Agents {
		if a.TmuxTarget != "" {
			targets[a.TmuxTarget] = true
		}
	}
	if w.TmuxWindow != "" {
		targets[w.TmuxWindow] = true
	}

	if p != nil {
		paneMap, _ := buildPaneMap(ctx, p, w)
		for target := range targets {
			if selfprotect.Affects(target, selfPaneID, paneMap) {
				result.SelfProtected++
				result.SelfProtectedTargets = append(result.SelfProtectedTargets, target)
				continue
			}
			if err := p.KillWindow(ctx, target); err != nil {
				result.TmuxFailed++
				continue
			}
			result.TmuxKilled++
		}
	} else {
		result.TmuxSkipped = len(targets)
	}

	projectPaths := paths.For(g.Dir)
	for _, a := range w.Agents {
		if a.ID != "" {
			_ = os.Remove(projectPaths.PromptFile(a.ID))
		}
	}

	teardownEnv(w.Path)

	// Branch and worktree removal are Git-level and best-effort per §4.6:
	// failures here are not fatal to Cleanup.
	_ = g.WorktreeRemove(ctx, w.Path, true)
	_ = g.BranchDelete(ctx, w.Branch)

	return result, nil
}

func buildPaneMap(ctx context.Context, p pm.PM, w *manifest.Worktree) (selfprotect.PaneIDOf, error) {
	out := selfprotect.PaneIDOf{}
	for _, a := range w.Agents {
		if a.TmuxTarget == "" {
			continue
		}
		info, err := p.GetPaneInfo(ctx, a.TmuxTarget)
		if err != nil || info == nil {
			continue
		}
		out[a.TmuxTarget] = info.PaneID
	}
	return out, nil
}

// teardownEnv performs the best-effort environment teardown from §4.6: if
// node_modules at the worktree root is a symlink (not a real directory), it
// is removed.
func teardownEnv(worktreePath string) {
	nm := filepath.Join(worktreePath, "node_modules")
	if info, err := os.Lstat(nm); err == nil && info.Mode()&os.ModeSymlink != 0 {
		_ = os.Remove(nm)
	}
}

// SetupEnvParams bundles the inputs to SetupEnv.
type SetupEnvParams struct {
	ProjectRoot  string
	WorktreePath string
	EnvFiles     []string // e.g. [".env", ".env.local"]
	LinkNodeModules bool
}

// SetupEnv copies named env files from the project root into the worktree
// and, if configured, symlinks node_modules from the project root. Existing
// destinations are left untouched.
func SetupEnv(params SetupEnvParams) error {
	for _, name := range params.EnvFiles {
		src := filepath.Join(params.ProjectRoot, name)
		dst := filepath.Join(params.WorktreePath, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		data, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		_ = os.WriteFile(dst, data, 0644)
	}

	if params.LinkNodeModules {
		src := filepath.Join(params.ProjectRoot, "node_modules")
		dst := filepath.Join(params.WorktreePath, "node_modules")
		if _, err := os.Stat(dst); err == nil {
			return nil
		}
		if _, err := os.Stat(src); err != nil {
			return nil
		}
		_ = os.Symlink(src, dst)
	}
	return nil
}
