// Package tmuxpm implements pm.PM by delegating every operation to an
// external tmux server via subprocess, the way the teacher's internal/tmux
// package wraps the tmux CLI.
package tmuxpm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/xcawolfe-amzn/ppg/internal/pm"
)

// TmuxPM wraps tmux session/window/pane operations via subprocess.
type TmuxPM struct{}

// New returns a tmux-backed PM.
func New() *TmuxPM { return &TmuxPM{} }

// Available reports whether the tmux binary can be invoked at all, used by
// the backend-selection factory.
func Available() bool {
	return exec.Command("tmux", "-V").Run() == nil
}

func (t *TmuxPM) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", wrapError(err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func wrapError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	switch {
	case strings.Contains(stderr, "no server running"), strings.Contains(stderr, "error connecting to"):
		return pm.ErrSessionNotFound
	case strings.Contains(stderr, "session not found"), strings.Contains(stderr, "can't find session"):
		return pm.ErrSessionNotFound
	case strings.Contains(stderr, "can't find window"):
		return pm.ErrWindowNotFound
	case strings.Contains(stderr, "can't find pane"):
		return pm.ErrPaneNotFound
	}
	if stderr != "" {
		return fmt.Errorf("tmux: %s", stderr)
	}
	return fmt.Errorf("tmux: %w", err)
}

// isNotFound reports whether err is one of the "target not found" sentinels
// that kill operations should swallow rather than propagate.
func isNotFound(err error) bool {
	return errors.Is(err, pm.ErrSessionNotFound) || errors.Is(err, pm.ErrWindowNotFound) || errors.Is(err, pm.ErrPaneNotFound)
}

func (t *TmuxPM) EnsureSession(ctx context.Context, name string) error {
	exists, err := t.SessionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = t.run(ctx, "new-session", "-d", "-s", name)
	return err
}

// SessionExists checks exact-match session existence using the "=" prefix,
// preventing prefix collisions between similarly-named sessions.
func (t *TmuxPM) SessionExists(ctx context.Context, name string) (bool, error) {
	_, err := t.run(ctx, "has-session", "-t", "="+name)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (t *TmuxPM) CreateWindow(ctx context.Context, session, name, cwd string) (string, error) {
	args := []string{"new-window", "-t", session, "-n", name, "-P", "-F", "#{session_name}:#{window_index}"}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	return t.run(ctx, args...)
}

func (t *TmuxPM) KillWindow(ctx context.Context, target string) error {
	_, err := t.run(ctx, "kill-window", "-t", target)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (t *TmuxPM) ListSessionWindows(ctx context.Context, session string) ([]string, error) {
	out, err := t.run(ctx, "list-windows", "-t", session, "-F", "#{session_name}:#{window_index}")
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// KillOrphanWindows kills every window in session not present in
// knownWindows. selfPaneID itself is never targeted by list-windows, so
// callers that need pane-level self-protection should filter the orphan
// list through internal/selfprotect before it ever reaches this method.
func (t *TmuxPM) KillOrphanWindows(ctx context.Context, session string, knownWindows []string, selfPaneID string) ([]string, error) {
	all, err := t.ListSessionWindows(ctx, session)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(knownWindows))
	for _, w := range knownWindows {
		known[w] = true
	}
	var killed []string
	for _, w := range all {
		if known[w] {
			continue
		}
		if err := t.KillWindow(ctx, w); err != nil {
			return killed, err
		}
		killed = append(killed, w)
	}
	return killed, nil
}

func (t *TmuxPM) SelectWindow(ctx context.Context, target string) error {
	_, err := t.run(ctx, "select-window", "-t", target)
	return err
}

func (t *TmuxPM) SplitPane(ctx context.Context, target string, dir pm.Direction, cwd string) (pm.SplitResult, error) {
	args := []string{"split-window", "-t", target, "-P", "-F", "#{pane_id} #{session_name}:#{window_index}.#{pane_index}"}
	if dir == pm.Horizontal {
		args = append(args, "-v")
	} else {
		args = append(args, "-h")
	}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	out, err := t.run(ctx, args...)
	if err != nil {
		return pm.SplitResult{}, err
	}
	parts := strings.SplitN(out, " ", 2)
	if len(parts) != 2 {
		return pm.SplitResult{}, fmt.Errorf("tmux: unexpected split-window output %q", out)
	}
	return pm.SplitResult{PaneID: parts[0], Target: parts[1]}, nil
}

func (t *TmuxPM) KillPane(ctx context.Context, target string) error {
	_, err := t.run(ctx, "kill-pane", "-t", target)
	if isNotFound(err) {
		return nil
	}
	return err
}

const paneInfoFormat = "#{pane_id} #{pane_pid} #{pane_current_command} #{pane_dead} #{pane_dead_status}"

func (t *TmuxPM) GetPaneInfo(ctx context.Context, target string) (*pm.PaneInfo, error) {
	out, err := t.run(ctx, "display-message", "-p", "-t", target, paneInfoFormat)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return parsePaneInfo(out), nil
}

func parsePaneInfo(line string) *pm.PaneInfo {
	fields := strings.SplitN(line, " ", 5)
	for len(fields) < 5 {
		fields = append(fields, "")
	}
	pid, _ := strconv.Atoi(fields[1])
	info := &pm.PaneInfo{
		PaneID:         fields[0],
		PanePID:        pid,
		CurrentCommand: fields[2],
		IsDead:         fields[3] == "1",
	}
	if info.IsDead && fields[4] != "" {
		if status, err := strconv.Atoi(fields[4]); err == nil {
			info.DeadStatus = &status
		}
	}
	return info
}

// ListSessionPanes indexes every pane of session under the three addressable
// target forms described in the pm contract: "session:window.pane", bare
// paneId, and "session:window" (for the first pane of that window).
func (t *TmuxPM) ListSessionPanes(ctx context.Context, session string) (map[string]pm.PaneInfo, error) {
	format := "#{session_name}:#{window_index}.#{pane_index} " + paneInfoFormat
	out, err := t.run(ctx, "list-panes", "-t", session, "-s", "-F", format)
	if err != nil {
		if isNotFound(err) {
			return map[string]pm.PaneInfo{}, nil
		}
		return nil, err
	}

	result := make(map[string]pm.PaneInfo)
	if out == "" {
		return result, nil
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		paneTarget := fields[0]
		info := parsePaneInfo(fields[1])
		result[paneTarget] = *info
		result[info.PaneID] = *info

		windowTarget := paneTarget[:strings.LastIndex(paneTarget, ".")]
		if _, exists := result[windowTarget]; !exists {
			result[windowTarget] = *info
		}
	}
	return result, nil
}

// SendKeys submits command by sending the literal text then Enter as a
// distinct key, matching the split some interactive CLIs require between
// newline-as-text and newline-as-submit.
func (t *TmuxPM) SendKeys(ctx context.Context, target, command string) error {
	if _, err := t.run(ctx, "send-keys", "-t", target, "-l", command); err != nil {
		return err
	}
	_, err := t.run(ctx, "send-keys", "-t", target, "Enter")
	return err
}

func (t *TmuxPM) SendLiteral(ctx context.Context, target, text string) error {
	_, err := t.run(ctx, "send-keys", "-t", target, "-l", text)
	return err
}

func (t *TmuxPM) SendRawKeys(ctx context.Context, target, keys string) error {
	_, err := t.run(ctx, "send-keys", "-t", target, keys)
	return err
}

func (t *TmuxPM) SendCtrlC(ctx context.Context, target string) error {
	_, err := t.run(ctx, "send-keys", "-t", target, "C-c")
	return err
}

func (t *TmuxPM) CapturePane(ctx context.Context, target string, lines int) (string, error) {
	args := []string{"capture-pane", "-p", "-t", target}
	if lines > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", lines))
	} else {
		args = append(args, "-S", "-")
	}
	return t.run(ctx, args...)
}

func (t *TmuxPM) IsInsideSession() bool {
	return os.Getenv("TMUX") != ""
}

var sanitizer = strings.NewReplacer(" ", "-", "/", "-", ":", "-", ".", "-")

func (t *TmuxPM) SanitizeName(name string) string {
	return sanitizer.Replace(strings.ToLower(name))
}

var _ pm.PM = (*TmuxPM)(nil)
