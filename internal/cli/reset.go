package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/agentengine"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
	"github.com/xcawolfe-amzn/ppg/internal/worktree"
)

var resetFlags struct {
	force bool
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: GroupCore,
	Short:   "Kill every agent and remove every worktree, keeping the project manifest",
	RunE:    runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetFlags.force, "force", false, "Reset even when agents are still running or idle")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pr, err := loadProject(ctx, false)
	if err != nil {
		return err
	}

	m, err := pr.readManifest()
	if err != nil {
		return err
	}

	var targets []string
	running := 0
	for _, wt := range m.Worktrees {
		for _, a := range wt.Agents {
			if a.Status == manifest.AgentRunning || a.Status == manifest.AgentIdle {
				running++
			}
			if a.TmuxTarget != "" {
				targets = append(targets, a.TmuxTarget)
			}
		}
	}
	if running > 0 && !resetFlags.force {
		return taggederr.New(taggederr.KindInvalidArgs,
			"ppg: %d agent(s) still running; pass --force to kill them and remove every worktree", running)
	}

	agentengine.KillAgents(ctx, pr.PM, targets)

	for _, wt := range m.Worktrees {
		target := wt
		if _, err := worktree.Cleanup(ctx, pr.Git, target, "", pr.PM, func(status manifest.WorktreeStatus) error {
			_, err := pr.updateManifest(func(m *manifest.Manifest) error {
				delete(m.Worktrees, target.ID)
				return nil
			})
			return err
		}); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to remove %s: %v\n", target.ID, err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "reset complete: all worktrees removed")
	return nil
}
