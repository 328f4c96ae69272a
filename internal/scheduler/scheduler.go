// Package scheduler implements the ppg cron daemon: a hand-rolled 30s poll
// loop over schedule entries parsed with robfig/cron, hot-reloading
// schedules.yaml on mtime change.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// pollInterval is the fixed scheduler loop period.
const pollInterval = 30 * time.Second

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Entry is a single schedules.yaml schedule.
type Entry struct {
	Name   string            `yaml:"name"`
	Cron   string            `yaml:"cron"`
	Swarm  string            `yaml:"swarm,omitempty"`
	Prompt string            `yaml:"prompt,omitempty"`
	Vars   map[string]string `yaml:"vars,omitempty"`
}

// file is the on-disk shape of schedules.yaml.
type file struct {
	Schedules []Entry `yaml:"schedules"`
}

// Validate checks the §4.8 invariants for a single entry.
func (e Entry) Validate(parser cron.Parser) error {
	if !nameRe.MatchString(e.Name) {
		return fmt.Errorf("scheduler: invalid schedule name %q", e.Name)
	}
	if _, err := parser.Parse(e.Cron); err != nil {
		return fmt.Errorf("scheduler: invalid cron expression %q: %w", e.Cron, err)
	}
	if (e.Swarm == "") == (e.Prompt == "") {
		return fmt.Errorf("scheduler: schedule %q must set exactly one of swarm/prompt", e.Name)
	}
	return nil
}

// LoadSchedules reads and validates schedules.yaml at path.
func LoadSchedules(path string, parser cron.Parser) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("scheduler: parsing %s: %w", path, err)
	}
	for _, e := range f.Schedules {
		if err := e.Validate(parser); err != nil {
			return nil, err
		}
	}
	return f.Schedules, nil
}

// Job is what fires when a schedule entry becomes due.
type Job func(ctx context.Context, entry Entry) error

// entryState tracks the next fire time for a loaded entry.
type entryState struct {
	entry     Entry
	schedule  cron.Schedule
	nextRunAt time.Time
}

// Daemon runs the fixed 30s poll loop described in §4.8.
type Daemon struct {
	schedulesPath string
	job           Job
	onError       func(entry Entry, err error)
	parser        cron.Parser

	mu         sync.Mutex
	states     map[string]*entryState
	lastMtime  time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// Options configures a Daemon.
type Options struct {
	SchedulesPath string
	Job           Job
	OnError       func(entry Entry, err error)
}

// New constructs a Daemon. Call Run to start the poll loop.
func New(opts Options) *Daemon {
	return &Daemon{
		schedulesPath: opts.SchedulesPath,
		job:           opts.Job,
		onError:       opts.OnError,
		parser:        cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		states:        make(map[string]*entryState),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Run blocks, reloading and firing due jobs every 30s, until Stop is
// called or ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	defer close(d.doneCh)
	if err := d.reload(); err != nil {
		return fmt.Errorf("scheduler: initial load: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// Stop ends the poll loop and waits for the current tick to finish.
func (d *Daemon) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Daemon) tick(ctx context.Context) {
	if err := d.reloadIfChanged(); err != nil {
		if d.onError != nil {
			d.onError(Entry{}, err)
		}
		return
	}

	now := time.Now()
	var due []*entryState
	d.mu.Lock()
	for _, st := range d.states {
		if !now.Before(st.nextRunAt) {
			due = append(due, st)
		}
	}
	d.mu.Unlock()

	var wg sync.WaitGroup
	for _, st := range due {
		wg.Add(1)
		go func(st *entryState) {
			defer wg.Done()
			if err := d.job(ctx, st.entry); err != nil && d.onError != nil {
				d.onError(st.entry, err)
			}
			d.mu.Lock()
			st.nextRunAt = st.schedule.Next(now)
			d.mu.Unlock()
		}(st)
	}
	wg.Wait()
}

// reloadIfChanged reloads schedules.yaml only when its mtime has changed
// since the last successful load; on reload failure the prior in-memory
// state is kept.
func (d *Daemon) reloadIfChanged() error {
	info, err := os.Stat(d.schedulesPath)
	if err != nil {
		return fmt.Errorf("scheduler: stat %s: %w", d.schedulesPath, err)
	}
	d.mu.Lock()
	changed := info.ModTime().After(d.lastMtime)
	d.mu.Unlock()
	if !changed {
		return nil
	}
	return d.reload()
}

func (d *Daemon) reload() error {
	entries, err := LoadSchedules(d.schedulesPath, d.parser)
	if err != nil {
		return err
	}
	info, err := os.Stat(d.schedulesPath)
	if err != nil {
		return err
	}

	now := time.Now()
	next := make(map[string]*entryState, len(entries))
	for _, e := range entries {
		sched, err := d.parser.Parse(e.Cron)
		if err != nil {
			return fmt.Errorf("scheduler: parsing %q: %w", e.Name, err)
		}
		st, existed := d.states[e.Name]
		if existed {
			st.entry = e
			st.schedule = sched
			next[e.Name] = st
			continue
		}
		next[e.Name] = &entryState{entry: e, schedule: sched, nextRunAt: sched.Next(now)}
	}

	d.mu.Lock()
	d.states = next
	d.lastMtime = info.ModTime()
	d.mu.Unlock()
	return nil
}

// ErrNotRunning is returned by IsRunning-adjacent helpers when no daemon is
// active for a given PID file.
var ErrNotRunning = errors.New("scheduler: daemon not running")

// WritePIDFile writes the current process's PID to path.
func WritePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// IsRunning reports whether the PID recorded at path corresponds to a live
// process, per the §4.8 `kill(pid, 0)` liveness check. A stale file (dead
// PID) is removed.
func IsRunning(pidFile string) (bool, int, error) {
	data, err := os.ReadFile(pidFile)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		_ = os.Remove(pidFile)
		return false, 0, nil
	}
	if err := syscall.Kill(pid, 0); err != nil {
		_ = os.Remove(pidFile)
		return false, 0, nil
	}
	return true, pid, nil
}

// StopByPIDFile reads the PID file and sends SIGTERM to the process.
func StopByPIDFile(pidFile string) error {
	running, pid, err := IsRunning(pidFile)
	if err != nil {
		return err
	}
	if !running {
		return ErrNotRunning
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}

// InstallSignalHandlers unlinks pidFile and calls onExit when SIGTERM or
// SIGINT arrives, matching the daemon shutdown sequence in §4.8.
func InstallSignalHandlers(pidFile string, onExit func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		_ = os.Remove(pidFile)
		if onExit != nil {
			onExit()
		}
		os.Exit(0)
	}()
}
