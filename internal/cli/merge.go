package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
	"github.com/xcawolfe-amzn/ppg/internal/worktree"
)

var mergeFlags struct {
	strategy  string
	noCleanup bool
	dryRun    bool
	force     bool
}

var mergeCmd = &cobra.Command{
	Use:     "merge <worktree>",
	GroupID: GroupCore,
	Short:   "Merge a worktree's branch into its base branch",
	Args:    cobra.ExactArgs(1),
	RunE:    runMerge,
}

func init() {
	mergeCmd.Flags().StringVar(&mergeFlags.strategy, "strategy", "squash", `Merge strategy: "squash" or "no-ff"`)
	mergeCmd.Flags().BoolVar(&mergeFlags.noCleanup, "no-cleanup", false, "Keep the worktree around after a successful merge")
	mergeCmd.Flags().BoolVar(&mergeFlags.dryRun, "dry-run", false, "Validate preconditions without merging")
	mergeCmd.Flags().BoolVar(&mergeFlags.force, "force", false, "Merge even if agents are still running in the worktree")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pr, err := loadProject(ctx, false)
	if err != nil {
		return err
	}

	var strategy worktree.Strategy
	switch mergeFlags.strategy {
	case "squash", "":
		strategy = worktree.Squash
	case "no-ff":
		strategy = worktree.NoFF
	default:
		return taggederr.New(taggederr.KindInvalidArgs, "ppg: unknown merge strategy %q", mergeFlags.strategy)
	}

	m, err := pr.readManifest()
	if err != nil {
		return err
	}
	wt, err := resolveWorktree(m, args[0])
	if err != nil {
		return err
	}

	params := worktree.MergeParams{
		Strategy: strategy,
		Force:    mergeFlags.force,
		DryRun:   mergeFlags.dryRun,
		Cleanup:  !mergeFlags.noCleanup,
	}

	mergeErr := worktree.Merge(ctx, pr.Git, wt, params, func(status manifest.WorktreeStatus) error {
		_, err := pr.updateManifest(func(m *manifest.Manifest) error {
			if cur := m.Worktrees[wt.ID]; cur != nil {
				cur.Status = status
				cur.MergedAt = wt.MergedAt
			}
			return nil
		})
		return err
	})
	if mergeErr != nil {
		return taggederr.Wrap(taggederr.Classify(mergeErr), mergeErr)
	}

	if mergeFlags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "dry run: %s would merge cleanly into %s\n", wt.Branch, wt.BaseBranch)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "merged %s into %s\n", wt.Branch, wt.BaseBranch)
	return nil
}
