package doctor

import (
	"context"
	"fmt"

	"github.com/xcawolfe-amzn/ppg/internal/manifest"
)

// OrphanWindowsCheck cross-references the process manager's live window
// list against the manifest's worktrees and flags PM windows with no
// manifest entry.
type OrphanWindowsCheck struct {
	FixableCheck
	lastKnown []string
}

// NewOrphanWindowsCheck constructs the orphan-windows check.
func NewOrphanWindowsCheck() *OrphanWindowsCheck {
	return &OrphanWindowsCheck{
		FixableCheck: FixableCheck{
			BaseCheck: BaseCheck{
				CheckName:        "orphan-windows",
				CheckDescription: "Detect tmux/PM windows with no corresponding manifest worktree",
				CheckCategory:    CategoryProcess,
			},
		},
	}
}

// Run lists the session's windows and diffs them against the manifest's
// known TmuxWindow targets.
func (c *OrphanWindowsCheck) Run(ctx *CheckContext) *CheckResult {
	if ctx.PM == nil {
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "no process manager configured (skipped)"}
	}

	runCtx, cancel := withCheckTimeout(ctx)
	defer cancel()

	windows, err := ctx.PM.ListSessionWindows(runCtx, ctx.SessionName)
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: fmt.Sprintf("listing session windows: %v", err),
		}
	}

	m, err := manifest.Read(ctx.ManifestPath)
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: fmt.Sprintf("reading manifest: %v", err),
		}
	}

	known := make(map[string]bool, len(m.Worktrees))
	for _, w := range m.Worktrees {
		if w.TmuxWindow != "" {
			known[w.TmuxWindow] = true
		}
	}

	knownList := make([]string, 0, len(known))
	for win := range known {
		knownList = append(knownList, win)
	}
	c.lastKnown = knownList

	var orphans []string
	for _, win := range windows {
		if !known[win] {
			orphans = append(orphans, win)
		}
	}

	if len(orphans) == 0 {
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "no orphan windows"}
	}

	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusWarning,
		Message: fmt.Sprintf("%d orphan window(s) found", len(orphans)),
		Details: orphans,
		FixHint: "run doctor --fix to kill orphan windows",
	}
}

// Fix kills every window not tracked by the manifest as of the prior Run.
func (c *OrphanWindowsCheck) Fix(ctx *CheckContext) error {
	if ctx.PM == nil {
		return nil
	}
	runCtx, cancel := withCheckTimeout(ctx)
	defer cancel()

	_, err := ctx.PM.KillOrphanWindows(runCtx, ctx.SessionName, c.lastKnown, "")
	return err
}

func withCheckTimeout(ctx *CheckContext) (context.Context, context.CancelFunc) {
	base := ctx.Context
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, defaultCheckTimeout)
}
