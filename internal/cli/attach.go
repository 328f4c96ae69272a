package cli

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
)

var attachCmd = &cobra.Command{
	Use:     "attach <worktree-or-agent>",
	GroupID: GroupCore,
	Short:   "Attach the terminal to an agent's tmux window",
	Args:    cobra.ExactArgs(1),
	RunE:    runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pr, err := loadProject(ctx, false)
	if err != nil {
		return err
	}

	m, err := pr.readManifest()
	if err != nil {
		return err
	}

	target := windowTargetFor(m, args[0])
	if target == "" {
		return taggederr.New(taggederr.KindWorktreeNotFound, "ppg: no worktree or agent matches %q", args[0])
	}
	if err := pr.PM.SelectWindow(ctx, target); err != nil {
		return fmt.Errorf("ppg: selecting window: %w", err)
	}

	return attachToTmuxSession(m.SessionName)
}

// windowTargetFor resolves ref to a tmux window target, trying an agent's
// pane target first and falling back to its worktree's window.
func windowTargetFor(m *manifest.Manifest, ref string) string {
	if w, a := manifest.FindAgent(m, ref); a != nil {
		if a.TmuxTarget != "" {
			return a.TmuxTarget
		}
		return w.TmuxWindow
	}
	if w := manifest.ResolveWorktree(m, ref); w != nil {
		return w.TmuxWindow
	}
	return ""
}

// attachToTmuxSession attaches the terminal to sessionID, replacing the
// current process with tmux for direct terminal control. Inside an existing
// tmux client it switches the client instead of nesting attach-session.
func attachToTmuxSession(sessionID string) error {
	tmuxPath, err := exec.LookPath("tmux")
	if err != nil {
		return fmt.Errorf("ppg: tmux not found: %w", err)
	}

	var cmdArgs []string
	if os.Getenv("TMUX") != "" {
		cmdArgs = []string{"tmux", "-u", "switch-client", "-t", sessionID}
	} else {
		cmdArgs = []string{"tmux", "-u", "attach-session", "-t", sessionID}
	}

	return syscall.Exec(tmuxPath, cmdArgs, os.Environ())
}
