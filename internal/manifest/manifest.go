// Package manifest implements the crash-consistent, lock-serialized JSON
// registry of worktrees and agents for a single project.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Sentinel errors surfaced to callers, mapped to CLI exit codes by
// internal/taggederr.
var (
	// ErrNotInitialized is raised by Read when the manifest file is absent.
	ErrNotInitialized = errors.New("manifest: not initialized")
	// ErrManifestLock is raised by Update when the advisory lock could not
	// be acquired within the retry budget.
	ErrManifestLock = errors.New("manifest: could not acquire lock")
	// ErrDuplicateID is raised on insert when an ID already exists anywhere
	// in the manifest.
	ErrDuplicateID = errors.New("manifest: duplicate id")
)

const (
	lockStaleAfter   = 10 * time.Second
	lockMaxRetries   = 5
	lockBackoffMin   = 100 * time.Millisecond
	lockBackoffMax   = 1000 * time.Millisecond
	lockPollInterval = 50 * time.Millisecond
)

// Read loads and parses the manifest at root's path, returning
// ErrNotInitialized if the file does not exist.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("manifest: reading %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parsing %s: %w", path, err)
	}
	normalize(&m)
	return &m, nil
}

// normalize fixes up the historically inconsistent on-disk shapes: a
// worktree's agents map may be entirely absent (§9 open question), which
// is treated as empty rather than an error.
func normalize(m *Manifest) {
	if m.Worktrees == nil {
		m.Worktrees = make(map[string]*Worktree)
	}
	for _, w := range m.Worktrees {
		w.ensureAgents()
	}
}

// Write serializes m with 2-space indentation and a trailing newline and
// writes it atomically: a temp file in the same directory is written and
// fsynced, then renamed over the destination path. updatedAt is refreshed
// to now before the write.
func Write(path string, m *Manifest, now time.Time) error {
	m.UpdatedAt = now
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshaling: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("manifest: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("manifest: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("manifest: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("manifest: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("manifest: renaming into place: %w", err)
	}
	return nil
}

// UpdateFunc mutates an in-memory Manifest in place and returns an error to
// abort the update without writing.
type UpdateFunc func(*Manifest) error

// Update performs a locked read-modify-write cycle: it acquires an advisory
// cross-process file lock on a sibling ".lock" file (up to lockMaxRetries
// retries with exponential backoff between lockBackoffMin and
// lockBackoffMax, giving up once lockStaleAfter has passed), reads the
// manifest, invokes fn, and atomically writes the result back before
// releasing the lock. A lock held by a live process is never broken; the
// flock is released when its holder exits.
//
// If the manifest does not yet exist when fn needs to create it (e.g. the
// very first `init`), callers should use Init instead — Update requires an
// existing file.
func Update(manifestPath string, now time.Time, fn UpdateFunc) (*Manifest, error) {
	lockPath := manifestPath + ".lock"
	fl := flock.New(lockPath)

	locked, err := tryLockWithRetry(fl)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, ErrManifestLock
	}
	defer fl.Unlock() //nolint:errcheck

	m, err := Read(manifestPath)
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	if err := Write(manifestPath, m, now); err != nil {
		return nil, err
	}
	return m, nil
}

// tryLockWithRetry attempts to acquire fl's exclusive lock, retrying with
// exponential backoff (jittered) up to lockMaxRetries times within
// lockStaleAfter of wall-clock budget.
func tryLockWithRetry(fl *flock.Flock) (bool, error) {
	deadline := time.Now().Add(lockStaleAfter)
	backoff := lockBackoffMin

	for attempt := 0; attempt <= lockMaxRetries; attempt++ {
		locked, err := fl.TryLock()
		if err != nil {
			return false, fmt.Errorf("manifest: acquiring lock: %w", err)
		}
		if locked {
			return true, nil
		}
		if attempt == lockMaxRetries || time.Now().After(deadline) {
			return false, nil
		}
		jitter := time.Duration(rand.Int63n(int64(lockPollInterval)))
		time.Sleep(backoff + jitter)
		backoff *= 2
		if backoff > lockBackoffMax {
			backoff = lockBackoffMax
		}
	}
	return false, nil
}

// Init writes a brand-new, empty manifest at manifestPath, failing if one
// already exists.
func Init(manifestPath, projectRoot, sessionName string, now time.Time) (*Manifest, error) {
	if _, err := os.Stat(manifestPath); err == nil {
		return nil, fmt.Errorf("manifest: %s already exists", manifestPath)
	}
	m := New(projectRoot, sessionName, now)
	if err := Write(manifestPath, m, now); err != nil {
		return nil, err
	}
	return m, nil
}

// ResolveWorktree returns the worktree in m whose ID, name, or branch
// matches ref. ID matches are preferred over name/branch matches.
func ResolveWorktree(m *Manifest, ref string) *Worktree {
	if w, ok := m.Worktrees[ref]; ok {
		return w
	}
	for _, w := range m.Worktrees {
		if w.Name == ref || w.Branch == ref {
			return w
		}
	}
	return nil
}

// FindAgent searches every worktree in m for an agent with the given ID and
// returns both the owning worktree and the agent, or (nil, nil) if absent.
func FindAgent(m *Manifest, agentID string) (*Worktree, *Agent) {
	for _, w := range m.Worktrees {
		if a, ok := w.Agents[agentID]; ok {
			return w, a
		}
	}
	return nil, nil
}

// InsertWorktree adds w to m, returning ErrDuplicateID if its ID is already
// present.
func InsertWorktree(m *Manifest, w *Worktree) error {
	if _, exists := m.Worktrees[w.ID]; exists {
		return fmt.Errorf("%w: worktree %s", ErrDuplicateID, w.ID)
	}
	w.ensureAgents()
	m.Worktrees[w.ID] = w
	return nil
}

// InsertAgent adds a to w's agent map, returning ErrDuplicateID if the ID is
// already present anywhere in m (agent IDs are unique manifest-wide, §3 I1).
func InsertAgent(m *Manifest, w *Worktree, a *Agent) error {
	if existingW, existingA := FindAgent(m, a.ID); existingA != nil {
		return fmt.Errorf("%w: agent %s already in worktree %s", ErrDuplicateID, a.ID, existingW.ID)
	}
	w.ensureAgents()
	w.Agents[a.ID] = a
	return nil
}
