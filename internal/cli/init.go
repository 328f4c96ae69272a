package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/gitutil"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/paths"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: GroupCore,
	Short:   "Initialize ppg in the current git repository",
	Long: `Create the .ppg/ state directory at the repository root and write a
fresh, empty manifest keyed to a new tmux session name derived from the
repository's directory name.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("ppg: resolving cwd: %w", err)
	}
	root, err := gitutil.RepoRoot(ctx, cwd)
	if err != nil {
		return fmt.Errorf("ppg: not a git repository: %w", err)
	}

	p := paths.For(root)
	if err := os.MkdirAll(p.Root, 0755); err != nil {
		return fmt.Errorf("ppg: creating %s: %w", p.Root, err)
	}
	if err := os.MkdirAll(p.LogsDir, 0755); err != nil {
		return fmt.Errorf("ppg: creating %s: %w", p.LogsDir, err)
	}

	sessionName := "ppg-" + sanitizeSessionName(filepath.Base(root))
	if _, err := manifest.Init(p.Manifest, root, sessionName, time.Now()); err != nil {
		return fmt.Errorf("ppg: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "initialized ppg at %s (session %q)\n", p.Root, sessionName)
	return nil
}

func sanitizeSessionName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
