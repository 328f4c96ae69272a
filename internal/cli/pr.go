package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/ghpr"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
)

var prFlags struct {
	title string
	body  string
	draft bool
}

var prCmd = &cobra.Command{
	Use:     "pr <worktree>",
	GroupID: GroupCore,
	Short:   "Open a pull request for a worktree's branch",
	Args:    cobra.ExactArgs(1),
	RunE:    runPR,
}

func init() {
	prCmd.Flags().StringVar(&prFlags.title, "title", "", "Pull request title (default: the worktree name)")
	prCmd.Flags().StringVar(&prFlags.body, "body", "", "Pull request body")
	prCmd.Flags().BoolVar(&prFlags.draft, "draft", false, "Open the pull request as a draft")
	rootCmd.AddCommand(prCmd)
}

func runPR(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pr, err := loadProject(ctx, false)
	if err != nil {
		return err
	}

	m, err := pr.readManifest()
	if err != nil {
		return err
	}
	wt, err := resolveWorktree(m, args[0])
	if err != nil {
		return err
	}

	if !ghpr.Available() {
		return taggederr.New(taggederr.KindInvalidArgs, "ppg: gh is not installed")
	}

	title := prFlags.title
	if title == "" {
		title = wt.Name
	}

	client := ghpr.New(wt.Path)
	url, err := client.Create(ctx, ghpr.CreateParams{
		Head:  wt.Branch,
		Base:  wt.BaseBranch,
		Title: title,
		Body:  prFlags.body,
		Draft: prFlags.draft,
	})
	if err != nil {
		return fmt.Errorf("ppg: %w", err)
	}

	if _, err := pr.updateManifest(func(m *manifest.Manifest) error {
		if cur := m.Worktrees[wt.ID]; cur != nil {
			cur.PRUrl = url
		}
		return nil
	}); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), url)
	return nil
}
