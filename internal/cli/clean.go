package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/worktree"
)

var cleanCmd = &cobra.Command{
	Use:     "clean",
	GroupID: GroupCore,
	Short:   "Remove worktrees that have finished (merged or failed)",
	RunE:    runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pr, err := loadProject(ctx, false)
	if err != nil {
		return err
	}

	m, err := pr.readManifest()
	if err != nil {
		return err
	}

	var swept []string
	for _, wt := range m.Worktrees {
		if wt.Status != manifest.WorktreeMerged && wt.Status != manifest.WorktreeFailed {
			continue
		}
		target := wt
		if _, err := worktree.Cleanup(ctx, pr.Git, target, "", pr.PM, func(status manifest.WorktreeStatus) error {
			_, err := pr.updateManifest(func(m *manifest.Manifest) error {
				if cur := m.Worktrees[target.ID]; cur != nil {
					cur.Status = status
				}
				return nil
			})
			return err
		}); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to clean %s: %v\n", target.ID, err)
			continue
		}
		swept = append(swept, target.ID)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "cleaned %d worktree(s)\n", len(swept))
	return nil
}
