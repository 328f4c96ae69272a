package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/stream"
	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
)

var logsFlags struct {
	follow bool
	lines  int
}

var logsCmd = &cobra.Command{
	Use:     "logs <worktree-or-agent>",
	GroupID: GroupCore,
	Short:   "Show an agent's captured pane output",
	Args:    cobra.ExactArgs(1),
	RunE:    runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFlags.follow, "follow", "f", false, "Stream new output as it arrives")
	logsCmd.Flags().IntVarP(&logsFlags.lines, "lines", "n", 200, "Number of trailing lines to show")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
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
		return taggederr.New(taggederr.KindAgentNotFound, "ppg: no worktree or agent matches %q", args[0])
	}

	out, err := pr.PM.CapturePane(ctx, target, logsFlags.lines)
	if err != nil {
		return fmt.Errorf("ppg: capturing pane: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)

	if !logsFlags.follow {
		return nil
	}

	followCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := stream.NewHub(pr.PM, 0)
	defer hub.Destroy()

	done := make(chan struct{})
	unsubscribe := hub.Subscribe(followCtx, args[0], target, func(ev stream.Event) {
		if ev.Error != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "stream error: %s\n", ev.Error)
			return
		}
		for _, line := range ev.Lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	})
	defer unsubscribe()

	go func() {
		<-followCtx.Done()
		close(done)
	}()
	<-done
	return nil
}
