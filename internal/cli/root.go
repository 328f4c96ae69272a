// Package cli implements ppg's command-line surface: cobra commands wired
// to the core packages (manifest, agentengine, worktree, scheduler, auth,
// wshub, watch, stream, web, doctor, ghpr), grouped the way the teacher's
// internal/cmd groups its commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
)

// Command groups, mirroring the teacher's GroupID convention.
const (
	GroupCore     = "core"
	GroupServices = "services"
	GroupDiag     = "diag"
)

var (
	jsonOutput bool
	rootDir    string
)

var rootCmd = &cobra.Command{
	Use:           "ppg",
	Short:         "Parallel Prompt Gang: run and track parallel command-line coding agents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupCore, Title: "Core:"},
		&cobra.Group{ID: GroupServices, Title: "Services:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Project root (defaults to the git repo containing the current directory)")
}

// requireSubcommand is RunE for parent commands that exist only to group
// subcommands (e.g. "ppg cron" itself does nothing).
func requireSubcommand(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	if jsonOutput {
		payload := taggederr.AsJSON(err)
		fmt.Fprintf(os.Stderr, `{"ok":%v,"code":%q,"message":%q}`+"\n", payload.OK, payload.Code, payload.Message)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return taggederr.ExitCode(err)
}
