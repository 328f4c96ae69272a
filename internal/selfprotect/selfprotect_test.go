package selfprotect

import (
	"reflect"
	"testing"
)

func TestAffectsDirectEquality(t *testing.T) {
	if !Affects("%5", "%5", nil) {
		t.Error("direct equality should affect self")
	}
}

func TestAffectsViaPaneMapLookup(t *testing.T) {
	paneMap := PaneIDOf{
		"ppg:1.0": "%5",
	}
	if !Affects("ppg:1.0", "%5", paneMap) {
		t.Error("target resolving to self paneId should affect self")
	}
	if Affects("ppg:1.0", "%9", paneMap) {
		t.Error("target resolving to a different paneId should not affect self")
	}
}

func TestAffectsWindowLevelScansAllPanes(t *testing.T) {
	paneMap := PaneIDOf{
		"ppg:1.0": "%1",
		"ppg:1.1": "%5",
		"ppg:2.0": "%9",
	}
	if !Affects("ppg:1", "%5", paneMap) {
		t.Error("killing window ppg:1 should affect self pane %5 inside it")
	}
	if Affects("ppg:2", "%5", paneMap) {
		t.Error("killing window ppg:2 should not affect self pane %5")
	}
}

func TestAffectsBarePaneIDNotTreatedAsWindow(t *testing.T) {
	// A bare paneId like "%5" contains no colon, so it is never window-level.
	if Affects("%5", "%9", PaneIDOf{"ppg:1.0": "%9"}) {
		t.Error("bare paneId lookup miss should not affect self")
	}
}

func TestAffectsEmptySelfNeverMatches(t *testing.T) {
	if Affects("ppg:1.0", "", PaneIDOf{"ppg:1.0": "%5"}) {
		t.Error("empty selfPaneID should never match (no self context)")
	}
}

func TestExcludeSelfPartitions(t *testing.T) {
	paneMap := PaneIDOf{
		"ppg:1.0": "%5",
		"ppg:2.0": "%9",
	}
	res := ExcludeSelf([]string{"ppg:1.0", "ppg:2.0", "ppg:3.0"}, "%5", paneMap)
	if !reflect.DeepEqual(res.Skipped, []string{"ppg:1.0"}) {
		t.Errorf("Skipped = %v, want [ppg:1.0]", res.Skipped)
	}
	if !reflect.DeepEqual(res.Safe, []string{"ppg:2.0", "ppg:3.0"}) {
		t.Errorf("Safe = %v, want [ppg:2.0 ppg:3.0]", res.Safe)
	}
}

func TestWouldCleanupAffectSelf(t *testing.T) {
	paneMap := PaneIDOf{"ppg:1.0": "%5"}
	if !WouldCleanupAffectSelf("ppg:1", "%5", paneMap) {
		t.Error("window cleanup containing self pane should report true")
	}
	if WouldCleanupAffectSelf("", "%5", paneMap) {
		t.Error("empty window target should report false")
	}
}
