package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xcawolfe-amzn/ppg/internal/scheduler"
	"github.com/xcawolfe-amzn/ppg/internal/style"
	"github.com/xcawolfe-amzn/ppg/internal/taggederr"
)

var cronCmd = &cobra.Command{
	Use:     "cron",
	GroupID: GroupServices,
	Short:   "Manage the ppg schedule daemon",
	RunE:    requireSubcommand,
}

var cronStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the schedule daemon in the background",
	RunE:  runCronStart,
}

var cronStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running schedule daemon",
	RunE:  runCronStop,
}

var cronStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the schedule daemon is running",
	RunE:  runCronStatus,
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured schedule entries",
	RunE:  runCronList,
}

var cronRunCmd = &cobra.Command{
	Use:    "run",
	Hidden: true, // the actual daemon process, launched by "cron start"
	Short:  "Run the schedule daemon in the foreground",
	RunE:   runCronRun,
}

var cronAddFlags struct {
	cron   string
	swarm  string
	prompt string
}

var cronAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a schedule entry to schedules.yaml",
	Args:  cobra.ExactArgs(1),
	RunE:  runCronAdd,
}

var cronRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a schedule entry from schedules.yaml",
	Args:  cobra.ExactArgs(1),
	RunE:  runCronRemove,
}

func init() {
	cronAddCmd.Flags().StringVar(&cronAddFlags.cron, "cron", "", "5-field cron expression")
	cronAddCmd.Flags().StringVar(&cronAddFlags.swarm, "swarm", "", "Swarm template name to trigger")
	cronAddCmd.Flags().StringVar(&cronAddFlags.prompt, "prompt", "", "Prompt template name to trigger")

	cronCmd.AddCommand(cronStartCmd, cronStopCmd, cronStatusCmd, cronListCmd, cronRunCmd, cronAddCmd, cronRemoveCmd)
	rootCmd.AddCommand(cronCmd)
}

func cronParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}

func runCronStart(cmd *cobra.Command, args []string) error {
	pr, err := loadProject(cmd.Context(), false)
	if err != nil {
		return err
	}

	if running, pid, err := scheduler.IsRunning(pr.Paths.CronPID); err != nil {
		return fmt.Errorf("ppg: checking cron status: %w", err)
	} else if running {
		return taggederr.New(taggederr.KindInvalidArgs, "ppg: cron daemon already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("ppg: finding executable: %w", err)
	}

	daemonCmd := exec.Command(exe, "cron", "run", "--root", pr.Root)
	daemonCmd.Dir = pr.Root
	daemonCmd.Stdin = nil
	daemonCmd.Stdout = nil
	daemonCmd.Stderr = nil
	if err := daemonCmd.Start(); err != nil {
		return fmt.Errorf("ppg: starting cron daemon: %w", err)
	}

	time.Sleep(200 * time.Millisecond)

	running, pid, err := scheduler.IsRunning(pr.Paths.CronPID)
	if err != nil {
		return fmt.Errorf("ppg: checking cron status: %w", err)
	}
	if !running {
		return taggederr.New(taggederr.KindInvalidArgs, "ppg: cron daemon failed to start (check %s)", pr.Paths.CronLog)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s cron daemon started (PID %d)\n", style.Bold.Render("✓"), pid)
	return nil
}

func runCronStop(cmd *cobra.Command, args []string) error {
	pr, err := loadProject(cmd.Context(), false)
	if err != nil {
		return err
	}
	if err := scheduler.StopByPIDFile(pr.Paths.CronPID); err != nil {
		if errors.Is(err, scheduler.ErrNotRunning) {
			return taggederr.New(taggederr.KindInvalidArgs, "ppg: cron daemon is not running")
		}
		return fmt.Errorf("ppg: stopping cron daemon: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s cron daemon stopped\n", style.Bold.Render("✓"))
	return nil
}

func runCronStatus(cmd *cobra.Command, args []string) error {
	pr, err := loadProject(cmd.Context(), false)
	if err != nil {
		return err
	}
	running, pid, err := scheduler.IsRunning(pr.Paths.CronPID)
	if err != nil {
		return fmt.Errorf("ppg: checking cron status: %w", err)
	}
	if running {
		fmt.Fprintf(cmd.OutOrStdout(), "cron daemon is running (PID %d)\n", pid)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "cron daemon is not running")
	}
	return nil
}

func runCronList(cmd *cobra.Command, args []string) error {
	pr, err := loadProject(cmd.Context(), false)
	if err != nil {
		return err
	}
	entries, err := scheduler.LoadSchedules(pr.Paths.SchedulesFile, cronParser())
	if err != nil {
		return fmt.Errorf("ppg: %w", err)
	}

	tbl := style.NewTable(
		style.Column{Name: "NAME", Width: 20},
		style.Column{Name: "CRON", Width: 14},
		style.Column{Name: "TRIGGERS", Width: 30},
	)
	for _, e := range entries {
		trigger := e.Prompt
		if e.Swarm != "" {
			trigger = "swarm:" + e.Swarm
		} else {
			trigger = "prompt:" + trigger
		}
		tbl.AddRow(e.Name, e.Cron, trigger)
	}
	fmt.Fprint(cmd.OutOrStdout(), tbl.Render())
	return nil
}

// runCronRun is the actual long-running daemon process, launched detached
// by "cron start". It dispatches due swarm/prompt entries by shelling out
// to this same binary's "swarm"/"prompt" subcommands.
func runCronRun(cmd *cobra.Command, args []string) error {
	pr, err := loadProject(cmd.Context(), false)
	if err != nil {
		return err
	}
	if err := scheduler.WritePIDFile(pr.Paths.CronPID); err != nil {
		return fmt.Errorf("ppg: writing cron PID file: %w", err)
	}

	logFile, err := os.OpenFile(pr.Paths.CronLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("ppg: opening cron log: %w", err)
	}
	defer logFile.Close()

	scheduler.InstallSignalHandlers(pr.Paths.CronPID, nil)

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("ppg: finding executable: %w", err)
	}
	realDaemon := scheduler.New(scheduler.Options{
		SchedulesPath: pr.Paths.SchedulesFile,
		Job: func(ctx2 context.Context, entry scheduler.Entry) error {
			fmt.Fprintf(logFile, "Triggering schedule: %s\n", entry.Name)
			var triggerArgs []string
			if entry.Swarm != "" {
				triggerArgs = []string{"--root", pr.Root, "swarm", entry.Swarm}
			} else {
				triggerArgs = []string{"--root", pr.Root, "prompt", entry.Prompt}
			}
			for k, v := range entry.Vars {
				triggerArgs = append(triggerArgs, "--var", k+"="+v)
			}
			c := exec.Command(exe, triggerArgs...)
			c.Stdout = logFile
			c.Stderr = logFile
			return c.Run()
		},
		OnError: func(entry scheduler.Entry, err error) {
			fmt.Fprintf(logFile, "schedule %s failed: %v\n", entry.Name, err)
		},
	})
	return realDaemon.Run(cmd.Context())
}

func runCronAdd(cmd *cobra.Command, args []string) error {
	if cronAddFlags.cron == "" {
		return taggederr.New(taggederr.KindInvalidArgs, "ppg: --cron is required")
	}
	if (cronAddFlags.swarm == "") == (cronAddFlags.prompt == "") {
		return taggederr.New(taggederr.KindInvalidArgs, "ppg: exactly one of --swarm/--prompt is required")
	}

	pr, err := loadProject(cmd.Context(), false)
	if err != nil {
		return err
	}
	entries, err := readScheduleFile(pr.Paths.SchedulesFile)
	if err != nil {
		return err
	}

	entry := scheduler.Entry{Name: args[0], Cron: cronAddFlags.cron, Swarm: cronAddFlags.swarm, Prompt: cronAddFlags.prompt}
	if err := entry.Validate(cronParser()); err != nil {
		return taggederr.New(taggederr.KindInvalidArgs, "ppg: %v", err)
	}
	for _, e := range entries {
		if e.Name == entry.Name {
			return taggederr.New(taggederr.KindInvalidArgs, "ppg: schedule %q already exists", entry.Name)
		}
	}
	entries = append(entries, entry)

	if err := writeScheduleFile(pr.Paths.SchedulesFile, entries); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added schedule %q\n", entry.Name)
	return nil
}

func runCronRemove(cmd *cobra.Command, args []string) error {
	pr, err := loadProject(cmd.Context(), false)
	if err != nil {
		return err
	}
	entries, err := readScheduleFile(pr.Paths.SchedulesFile)
	if err != nil {
		return err
	}

	out := entries[:0]
	found := false
	for _, e := range entries {
		if e.Name == args[0] {
			found = true
			continue
		}
		out = append(out, e)
	}
	if !found {
		return taggederr.New(taggederr.KindInvalidArgs, "ppg: no schedule named %q", args[0])
	}

	if err := writeScheduleFile(pr.Paths.SchedulesFile, out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed schedule %q\n", args[0])
	return nil
}

type scheduleFile struct {
	Schedules []scheduler.Entry `yaml:"schedules"`
}

func readScheduleFile(path string) ([]scheduler.Entry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ppg: reading %s: %w", path, err)
	}
	var f scheduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ppg: parsing %s: %w", path, err)
	}
	return f.Schedules, nil
}

func writeScheduleFile(path string, entries []scheduler.Entry) error {
	data, err := yaml.Marshal(scheduleFile{Schedules: entries})
	if err != nil {
		return fmt.Errorf("ppg: encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("ppg: writing %s: %w", path, err)
	}
	return nil
}
