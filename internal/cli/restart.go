package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/agentengine"
	"github.com/xcawolfe-amzn/ppg/internal/identity"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
)

var restartFlags struct {
	promptFile string
}

var restartCmd = &cobra.Command{
	Use:     "restart <agent>",
	GroupID: GroupCore,
	Short:   "Kill and respawn an agent, reusing its prior prompt",
	Args:    cobra.ExactArgs(1),
	RunE:    runRestart,
}

func init() {
	restartCmd.Flags().StringVar(&restartFlags.promptFile, "prompt-file", "", "Replace the prompt with the contents of this file instead of reusing the prior one")
	rootCmd.AddCommand(restartCmd)
}

func runRestart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pr, err := loadProject(ctx, false)
	if err != nil {
		return err
	}

	m, err := pr.readManifest()
	if err != nil {
		return err
	}
	wt, agent, err := findAgent(m, args[0])
	if err != nil {
		return err
	}

	var promptOverride string
	if restartFlags.promptFile != "" {
		promptOverride, err = resolvePromptText(nil, restartFlags.promptFile)
		if err != nil {
			return err
		}
	}

	newAgentID := identity.Agent()
	newAgent, err := agentengine.Restart(ctx, pr.PM, m.SessionName, agentengine.RestartParams{
		Old:            agent,
		NewAgentID:     newAgentID,
		WorktreeName:   wt.Name,
		WorktreePath:   wt.Path,
		PromptFile:     pr.Paths.PromptFile(agent.ID),
		PromptOverride: promptOverride,
		Registry:       pr.Registry,
	})
	if err != nil {
		return fmt.Errorf("ppg: %w", err)
	}

	if _, err := pr.updateManifest(func(m *manifest.Manifest) error {
		cur := m.Worktrees[wt.ID]
		if cur == nil {
			return nil
		}
		if old := cur.Agents[agent.ID]; old != nil {
			old.Status = manifest.AgentGone
		}
		return manifest.InsertAgent(m, cur, newAgent)
	}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "restarted %s as %s\n", agent.ID, newAgent.ID)
	return nil
}
