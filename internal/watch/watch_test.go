package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/pm"
)

// fakePM implements pm.PM with an in-memory pane table, enough to drive the
// polling half of Watcher without a real tmux server or PTY.
type fakePM struct {
	mu    sync.Mutex
	panes map[string]pm.PaneInfo
}

func newFakePM() *fakePM { return &fakePM{panes: make(map[string]pm.PaneInfo)} }

func (f *fakePM) setPane(target string, info pm.PaneInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panes[target] = info
}

func (f *fakePM) EnsureSession(ctx context.Context, name string) error           { return nil }
func (f *fakePM) SessionExists(ctx context.Context, name string) (bool, error)   { return true, nil }
func (f *fakePM) CreateWindow(ctx context.Context, session, name, cwd string) (string, error) {
	return session + ":1", nil
}
func (f *fakePM) KillWindow(ctx context.Context, target string) error { return nil }
func (f *fakePM) ListSessionWindows(ctx context.Context, session string) ([]string, error) {
	return nil, nil
}
func (f *fakePM) KillOrphanWindows(ctx context.Context, session string, knownWindows []string, selfPaneID string) ([]string, error) {
	return nil, nil
}
func (f *fakePM) SelectWindow(ctx context.Context, target string) error { return nil }
func (f *fakePM) SplitPane(ctx context.Context, target string, dir pm.Direction, cwd string) (pm.SplitResult, error) {
	return pm.SplitResult{}, nil
}
func (f *fakePM) KillPane(ctx context.Context, target string) error { return nil }
func (f *fakePM) GetPaneInfo(ctx context.Context, target string) (*pm.PaneInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.panes[target]
	if !ok {
		return nil, nil
	}
	return &info, nil
}
func (f *fakePM) ListSessionPanes(ctx context.Context, session string) (map[string]pm.PaneInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]pm.PaneInfo, len(f.panes))
	for k, v := range f.panes {
		out[k] = v
	}
	return out, nil
}
func (f *fakePM) SendKeys(ctx context.Context, target, command string) error    { return nil }
func (f *fakePM) SendLiteral(ctx context.Context, target, text string) error    { return nil }
func (f *fakePM) SendRawKeys(ctx context.Context, target, keys string) error    { return nil }
func (f *fakePM) SendCtrlC(ctx context.Context, target string) error            { return nil }
func (f *fakePM) CapturePane(ctx context.Context, target string, lines int) (string, error) {
	return "", nil
}
func (f *fakePM) IsInsideSession() bool          { return false }
func (f *fakePM) SanitizeName(name string) string { return name }

var _ pm.PM = (*fakePM)(nil)

func writeManifest(t *testing.T, path string, m *manifest.Manifest) {
	t.Helper()
	if err := manifest.Write(path, m, time.Now()); err != nil {
		t.Fatal(err)
	}
}

func TestPollOnceEmitsStatusChangeOnTransition(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")

	m := manifest.New(dir, "sess", time.Now())
	wt := &manifest.Worktree{ID: "wt-1", Name: "feature", Agents: map[string]*manifest.Agent{
		"ag-1": {ID: "ag-1", TmuxTarget: "sess:1.0", Status: manifest.AgentRunning},
	}}
	m.Worktrees["wt-1"] = wt
	writeManifest(t, manifestPath, m)

	fp := newFakePM()
	fp.setPane("sess:1.0", pm.PaneInfo{PaneID: "%1", CurrentCommand: "claude"})

	var mu sync.Mutex
	var changes []StatusChange
	w := &Watcher{
		manifestPath: manifestPath,
		pm:           fp,
		lastStatus:   make(map[string]manifest.AgentStatus),
		onStatus: func(c StatusChange) {
			mu.Lock()
			changes = append(changes, c)
			mu.Unlock()
		},
	}

	w.pollOnce(context.Background())
	w.pollOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 {
		t.Fatalf("expected exactly one status change (first observation), got %d: %+v", len(changes), changes)
	}
	if changes[0].Status != manifest.AgentRunning {
		t.Errorf("Status = %q, want running", changes[0].Status)
	}
}

func TestPollOnceFiresOnRealTransition(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")

	m := manifest.New(dir, "sess", time.Now())
	wt := &manifest.Worktree{ID: "wt-1", Name: "feature", Agents: map[string]*manifest.Agent{
		"ag-1": {ID: "ag-1", TmuxTarget: "sess:1.0", Status: manifest.AgentRunning},
	}}
	m.Worktrees["wt-1"] = wt
	writeManifest(t, manifestPath, m)

	fp := newFakePM()
	fp.setPane("sess:1.0", pm.PaneInfo{PaneID: "%1", CurrentCommand: "claude"})

	var mu sync.Mutex
	var changes []StatusChange
	w := &Watcher{
		manifestPath: manifestPath,
		pm:           fp,
		lastStatus:   make(map[string]manifest.AgentStatus),
		onStatus: func(c StatusChange) {
			mu.Lock()
			changes = append(changes, c)
			mu.Unlock()
		},
	}
	w.pollOnce(context.Background())

	fp.setPane("sess:1.0", pm.PaneInfo{PaneID: "%1", CurrentCommand: "bash"})
	w.pollOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes (initial + transition), got %d", len(changes))
	}
	if changes[1].PreviousStatus != manifest.AgentRunning || changes[1].Status != manifest.AgentIdle {
		t.Errorf("transition = %+v, want running->idle", changes[1])
	}
}

func TestWatchParentThenSwitchesToFileOnCreate(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")

	var mu sync.Mutex
	var manifests []*manifest.Manifest
	w, err := New(Options{
		ManifestPath: manifestPath,
		PM:           newFakePM(),
		OnManifest: func(m *manifest.Manifest) {
			mu.Lock()
			manifests = append(manifests, m)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	m := manifest.New(dir, "sess", time.Now())
	writeManifest(t, manifestPath, m)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(manifests)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(manifests) == 0 {
		t.Skip("filesystem watch did not observe the create event in time on this system; debounce timing is environment-dependent")
	}
}

func TestStopPreventsFurtherCallbacks(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest.json")
	_ = os.MkdirAll(dir, 0755)

	// No manifest exists, so every poll tick reports an error via OnError.
	var mu sync.Mutex
	calls := 0
	w, err := New(Options{ManifestPath: manifestPath, PM: newFakePM(), PollInterval: 10 * time.Millisecond,
		OnError: func(error) {
			mu.Lock()
			calls++
			mu.Unlock()
		}})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	w.Stop()
	mu.Lock()
	atStop := calls
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != atStop {
		t.Errorf("callbacks after Stop: %d before, %d after", atStop, calls)
	}
	// Stop must return without hanging and leave the watcher inert; a second
	// Stop would panic on a closed channel, so we do not call it again here.
}
