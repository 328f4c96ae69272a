package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/agentengine"
	"github.com/xcawolfe-amzn/ppg/internal/ghpr"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
	"github.com/xcawolfe-amzn/ppg/internal/worktree"
)

var killFlags struct {
	remove          bool
	delete          bool
	includeOpenPRs  bool
}

var killCmd = &cobra.Command{
	Use:     "kill <worktree-or-agent>...",
	GroupID: GroupCore,
	Short:   "Kill one or more agents, optionally tearing down their worktrees",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runKill,
}

func init() {
	killCmd.Flags().BoolVar(&killFlags.remove, "remove", false, "Also clean up the worktree (tmux window, git worktree, branch)")
	killCmd.Flags().BoolVar(&killFlags.delete, "delete", false, "Same as --remove, and never skipped for an open PR")
	killCmd.Flags().BoolVar(&killFlags.includeOpenPRs, "include-open-prs", false, "Remove worktrees even if they have an open pull request")
	rootCmd.AddCommand(killCmd)
}

func runKill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pr, err := loadProject(ctx, false)
	if err != nil {
		return err
	}
	remove := killFlags.remove || killFlags.delete

	m, err := pr.readManifest()
	if err != nil {
		return err
	}

	targets := make(map[string]*manifest.Worktree)
	var paneTargets []string
	for _, ref := range args {
		wt, err := resolveWorktree(m, ref)
		if err != nil {
			if w, a, aerr := findAgent(m, ref); aerr == nil {
				targets[w.ID] = w
				if a.TmuxTarget != "" {
					paneTargets = append(paneTargets, a.TmuxTarget)
				}
				continue
			}
			return err
		}
		targets[wt.ID] = wt
		for _, a := range wt.Agents {
			if a.TmuxTarget != "" {
				paneTargets = append(paneTargets, a.TmuxTarget)
			}
		}
	}

	result := agentengine.KillAgents(ctx, pr.PM, paneTargets)
	for target, ferr := range result.Failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to kill %s: %v\n", target, ferr)
	}

	if _, err := pr.updateManifest(func(m *manifest.Manifest) error {
		for id := range targets {
			wt := m.Worktrees[id]
			if wt == nil {
				continue
			}
			for _, a := range wt.Agents {
				a.Status = manifest.AgentGone
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if !remove {
		fmt.Fprintf(cmd.OutOrStdout(), "killed %d agent(s)\n", len(result.Killed))
		return nil
	}

	if !killFlags.includeOpenPRs && !killFlags.delete {
		if err := guardOpenPRs(targets); err != nil {
			return err
		}
	}

	for _, wt := range targets {
		if _, err := worktree.Cleanup(ctx, pr.Git, wt, "", pr.PM, func(status manifest.WorktreeStatus) error {
			_, err := pr.updateManifest(func(m *manifest.Manifest) error {
				if cur := m.Worktrees[wt.ID]; cur != nil {
					cur.Status = status
				}
				return nil
			})
			return err
		}); err != nil {
			return fmt.Errorf("ppg: cleaning up %s: %w", wt.ID, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "killed and removed %d worktree(s)\n", len(targets))
	return nil
}

// guardOpenPRs refuses to remove a worktree that has a known PR URL unless
// the caller passed --include-open-prs or --delete. When the gh binary is
// not available the check is skipped and nothing is refused.
func guardOpenPRs(targets map[string]*manifest.Worktree) error {
	if !ghpr.Available() {
		return nil
	}
	for _, wt := range targets {
		if wt.PRUrl == "" {
			continue
		}
		return taggederr.New(taggederr.KindInvalidArgs,
			"ppg: worktree %s has an open PR (%s); pass --include-open-prs or --delete", wt.ID, wt.PRUrl)
	}
	return nil
}
