// Package selfprotect prevents destructive PM operations (kill, cleanup,
// reset) from tearing down the pane or window the calling process is itself
// running inside.
package selfprotect

import "strings"

// PaneIDOf maps a PM target form (any of the three forms described in
// §4.3 — "session:window.pane", bare paneId, or "session:window") to its
// resolved paneId. Callers build this from pm.ListSessionPanes.
type PaneIDOf map[string]string

// Affects reports whether destroying target would also destroy the pane
// identified by selfPaneID.
//
//  1. Direct equality of target and selfPaneID.
//  2. target resolves (via paneMap) to a pane whose ID is selfPaneID.
//  3. target is window-level (contains ':' but no '.'): any pane in that
//     window sharing selfPaneID means a window kill would take it down too.
func Affects(target, selfPaneID string, paneMap PaneIDOf) bool {
	if selfPaneID == "" {
		return false
	}
	if target == selfPaneID {
		return true
	}
	if id, ok := paneMap[target]; ok && id == selfPaneID {
		return true
	}
	if isWindowTarget(target) {
		prefix := target + "."
		for key, id := range paneMap {
			if strings.HasPrefix(key, prefix) && id == selfPaneID {
				return true
			}
		}
	}
	return false
}

// isWindowTarget reports whether target names a window ("session:window")
// rather than a specific pane ("session:window.pane") or a bare paneId.
func isWindowTarget(target string) bool {
	colon := strings.Index(target, ":")
	if colon < 0 {
		return false
	}
	return !strings.Contains(target[colon:], ".")
}

// ExcludeResult is the outcome of filtering a batch of targets for
// self-protection.
type ExcludeResult struct {
	Safe    []string // targets that may be acted on
	Skipped []string // targets excluded because they would affect self
}

// ExcludeSelf partitions targets into those safe to act on and those that
// would affect the caller's own pane, per Affects.
func ExcludeSelf(targets []string, selfPaneID string, paneMap PaneIDOf) ExcludeResult {
	var res ExcludeResult
	for _, t := range targets {
		if Affects(t, selfPaneID, paneMap) {
			res.Skipped = append(res.Skipped, t)
		} else {
			res.Safe = append(res.Safe, t)
		}
	}
	return res
}

// WouldCleanupAffectSelf reports whether cleaning up a worktree's window
// would affect the caller's own pane.
func WouldCleanupAffectSelf(windowTarget, selfPaneID string, paneMap PaneIDOf) bool {
	if windowTarget == "" {
		return false
	}
	return Affects(windowTarget, selfPaneID, paneMap)
}
