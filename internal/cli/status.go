package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/agentengine"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/style"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: GroupCore,
	Short:   "Show the status of every worktree and agent",
	RunE:    runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pr, err := loadProject(ctx, false)
	if err != nil {
		return err
	}

	m, err := pr.updateManifest(func(m *manifest.Manifest) error {
		return agentengine.RefreshAllAgentStatuses(ctx, pr.PM, m)
	})
	if err != nil {
		return err
	}

	tbl := style.NewTable(
		style.Column{Name: "WORKTREE", Width: 12},
		style.Column{Name: "BRANCH", Width: 24},
		style.Column{Name: "AGENT", Width: 12},
		style.Column{Name: "TYPE", Width: 10},
		style.Column{Name: "STATUS", Width: 10},
	)

	for _, wt := range sortedWorktrees(m) {
		if len(wt.Agents) == 0 {
			tbl.AddRow(wt.ID, wt.Branch, "-", "-", string(wt.Status))
			continue
		}
		for _, a := range sortedAgents(wt) {
			tbl.AddRow(wt.ID, wt.Branch, a.ID, a.AgentType, string(a.Status))
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), tbl.Render())
	return nil
}

func sortedWorktrees(m *manifest.Manifest) []*manifest.Worktree {
	out := make([]*manifest.Worktree, 0, len(m.Worktrees))
	for _, wt := range m.Worktrees {
		out = append(out, wt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedAgents(wt *manifest.Worktree) []*manifest.Agent {
	out := make([]*manifest.Agent, 0, len(wt.Agents))
	for _, a := range wt.Agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
