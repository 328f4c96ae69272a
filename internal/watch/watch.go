// Package watch implements the manifest file watcher: a debounced
// manifest:updated stream driven by fsnotify, and a polling agent:status
// stream driven by re-derived PM pane state.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xcawolfe-amzn/ppg/internal/agentengine"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/pm"
)

// debounceWindow is the trailing-edge quiet period before manifest:updated
// fires after a burst of filesystem events.
const debounceWindow = 300 * time.Millisecond

// defaultPollInterval is the agent:status re-derivation cadence.
const defaultPollInterval = 3 * time.Second

// StatusChange is emitted on the agent:status stream whenever a live
// status derivation differs from the last-seen value for that agent.
type StatusChange struct {
	AgentID         string
	WorktreeID      string
	Status          manifest.AgentStatus
	PreviousStatus  manifest.AgentStatus
}

// Watcher emits manifest:updated and agent:status events for a single
// manifest path. Zero value is not usable; construct with New.
type Watcher struct {
	manifestPath string
	pm           pm.PM
	pollInterval time.Duration
	onManifest   func(*manifest.Manifest)
	onStatus     func(StatusChange)
	onError      func(error)

	fsw *fsnotify.Watcher

	mu            sync.Mutex
	lastStatus    map[string]manifest.AgentStatus
	debounceTimer *time.Timer

	stopCh chan struct{}
	doneWg sync.WaitGroup
}

// Options configures a Watcher.
type Options struct {
	ManifestPath string
	PM           pm.PM
	PollInterval time.Duration // defaults to 3s
	OnManifest   func(*manifest.Manifest)
	OnStatus     func(StatusChange)
	OnError      func(error)
}

// New constructs and starts a Watcher. It installs a filesystem watch on the
// manifest path's parent directory and switches to watching the file itself
// once it appears.
func New(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	w := &Watcher{
		manifestPath: opts.ManifestPath,
		pm:           opts.PM,
		pollInterval: poll,
		onManifest:   opts.OnManifest,
		onStatus:     opts.OnStatus,
		onError:      opts.OnError,
		fsw:          fsw,
		lastStatus:   make(map[string]manifest.AgentStatus),
		stopCh:       make(chan struct{}),
	}

	dir := filepath.Dir(opts.ManifestPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w.doneWg.Add(2)
	go w.watchLoop()
	go w.pollLoop(context.Background())
	return w, nil
}

// Stop cancels timers, closes the filesystem watcher, and guarantees no
// further callbacks are delivered once it returns.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.fsw.Close()
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()
	w.doneWg.Wait()
}

func (w *Watcher) watchLoop() {
	defer w.doneWg.Done()
	watchingFile := false
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !watchingFile && filepath.Clean(event.Name) == filepath.Clean(w.manifestPath) {
				_ = w.fsw.Add(w.manifestPath)
				watchingFile = true
			}
			if filepath.Clean(event.Name) == filepath.Clean(w.manifestPath) {
				w.scheduleManifestEvent()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// scheduleManifestEvent implements 300ms trailing-edge debounce: each call
// resets the timer, so only the last event in a burst fires onManifest.
func (w *Watcher) scheduleManifestEvent() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(debounceWindow, func() {
		m, err := manifest.Read(w.manifestPath)
		if err != nil {
			if w.onError != nil {
				w.onError(err)
			}
			return
		}
		if w.onManifest != nil {
			w.onManifest(m)
		}
	})
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer w.doneWg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var inFlight sync.Mutex
	for {
		select {
		case <-w.stopCh:
			inFlight.Lock() // wait for a poll tick still delivering callbacks
			return
		case <-ticker.C:
			if !inFlight.TryLock() {
				continue // overlap guard: previous tick still running
			}
			go func() {
				defer inFlight.Unlock()
				w.pollOnce(ctx)
			}()
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context) {
	m, err := manifest.Read(w.manifestPath)
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	paneMap, err := w.pm.ListSessionPanes(ctx, m.SessionName)
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	var wg sync.WaitGroup
	for _, wt := range m.Worktrees {
		for _, a := range wt.Agents {
			wg.Add(1)
			go func(worktreeID string, agent *manifest.Agent) {
				defer wg.Done()
				var info *pm.PaneInfo
				if pi, ok := paneMap[agent.TmuxTarget]; ok {
					info = &pi
				}
				status, _ := agentengine.DeriveStatus(info)
				w.recordStatus(agent.ID, worktreeID, status)
			}(wt.ID, a)
		}
	}
	wg.Wait()
}

func (w *Watcher) recordStatus(agentID, worktreeID string, status manifest.AgentStatus) {
	w.mu.Lock()
	prev, seen := w.lastStatus[agentID]
	w.lastStatus[agentID] = status
	w.mu.Unlock()

	if seen && prev == status {
		return
	}
	if w.onStatus != nil {
		w.onStatus(StatusChange{
			AgentID:        agentID,
			WorktreeID:     worktreeID,
			Status:         status,
			PreviousStatus: prev,
		})
	}
}
