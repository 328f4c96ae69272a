package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/agentengine"
	"github.com/xcawolfe-amzn/ppg/internal/identity"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
	"github.com/xcawolfe-amzn/ppg/internal/worktree"
)

var spawnFlags struct {
	agentType  string
	name       string
	branch     string
	baseBranch string
	promptFile string
	adopt      string
}

var spawnCmd = &cobra.Command{
	Use:     "spawn <prompt>",
	GroupID: GroupCore,
	Short:   "Create a worktree and spawn an agent inside it",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runSpawn,
}

func init() {
	spawnCmd.Flags().StringVar(&spawnFlags.agentType, "agent", "claude", "Agent type from agents.toml")
	spawnCmd.Flags().StringVar(&spawnFlags.name, "name", "", "Worktree name (default: the generated worktree ID)")
	spawnCmd.Flags().StringVar(&spawnFlags.branch, "branch", "", "Branch to create (default: ppg/<worktree-id>)")
	spawnCmd.Flags().StringVar(&spawnFlags.baseBranch, "base", "", "Base branch (default: current branch)")
	spawnCmd.Flags().StringVar(&spawnFlags.promptFile, "prompt-file", "", "Read the prompt from a file instead of the argument")
	spawnCmd.Flags().StringVar(&spawnFlags.adopt, "adopt", "", "Adopt an existing worktree path instead of creating one")
	rootCmd.AddCommand(spawnCmd)
}

func runSpawn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	promptText, err := resolvePromptText(args, spawnFlags.promptFile)
	if err != nil {
		return err
	}

	pr, err := loadProject(ctx, false)
	if err != nil {
		return err
	}

	baseBranch := spawnFlags.baseBranch
	if baseBranch == "" {
		b, err := pr.Git.CurrentBranch(ctx)
		if err != nil {
			return fmt.Errorf("ppg: resolving current branch: %w", err)
		}
		baseBranch = b
	}

	wtID := identity.Worktree()
	name := spawnFlags.name
	if name == "" {
		name = wtID
	}
	branch := spawnFlags.branch
	if branch == "" {
		branch = "ppg/" + wtID
	}

	var wt *manifest.Worktree
	if spawnFlags.adopt != "" {
		wt = worktree.Adopt(wtID, name, spawnFlags.adopt, branch, baseBranch)
	} else {
		params := worktree.CreateParams{
			RepoRoot:   pr.Root,
			WorktreeID: wtID,
			Name:       name,
			Branch:     branch,
			BaseBranch: baseBranch,
		}
		wt, err = worktree.Create(ctx, pr.Git, params, pr.Paths.WorktreePath(name))
		if err != nil {
			return fmt.Errorf("ppg: %w", err)
		}
	}

	sessionName, err := ensureSession(ctx, pr)
	if err != nil {
		return err
	}
	target, err := pr.PM.CreateWindow(ctx, sessionName, name, wt.Path)
	if err != nil {
		return fmt.Errorf("ppg: creating window: %w", err)
	}
	wt.TmuxWindow = target

	agentID := identity.Agent()
	agent, err := agentengine.Spawn(ctx, pr.PM, agentengine.SpawnParams{
		AgentID:    agentID,
		AgentType:  spawnFlags.agentType,
		Name:       name,
		PromptText: promptText,
		PromptFile: pr.Paths.PromptFile(agentID),
		PaneTarget: target,
		Registry:   pr.Registry,
	})
	if err != nil {
		return fmt.Errorf("ppg: %w", err)
	}

	if _, err := pr.updateManifest(func(m *manifest.Manifest) error {
		if err := manifest.InsertWorktree(m, wt); err != nil {
			return err
		}
		return manifest.InsertAgent(m, wt, agent)
	}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "spawned %s (%s) in worktree %s at %s\n", agent.ID, agent.AgentType, wt.ID, wt.Path)
	return nil
}

func resolvePromptText(args []string, promptFile string) (string, error) {
	if promptFile != "" {
		b, err := os.ReadFile(promptFile)
		if err != nil {
			return "", fmt.Errorf("ppg: reading prompt file: %w", err)
		}
		return string(b), nil
	}
	if len(args) == 0 {
		return "", taggederr.New(taggederr.KindInvalidArgs, "ppg: spawn requires a prompt argument or --prompt-file")
	}
	return args[0], nil
}

// ensureSession reads the project's tmux session name from the manifest and
// makes sure the session itself exists before a window is created in it.
func ensureSession(ctx context.Context, pr *project) (string, error) {
	m, err := pr.readManifest()
	if err != nil {
		return "", err
	}
	if err := pr.PM.EnsureSession(ctx, m.SessionName); err != nil {
		return "", fmt.Errorf("ppg: ensuring session %q: %w", m.SessionName, err)
	}
	return m.SessionName, nil
}
