package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xcawolfe-amzn/ppg/internal/pm"
)

func TestDiffLinesFindsLongestOverlap(t *testing.T) {
	cases := []struct {
		name string
		prev []string
		curr []string
		want []string
	}{
		{"no prior lines", nil, []string{"a", "b"}, []string{"a", "b"}},
		{"empty current", []string{"a"}, nil, nil},
		{"simple append", []string{"a", "b"}, []string{"a", "b", "c"}, []string{"c"}},
		{"scroll shift by one", []string{"a", "b", "c"}, []string{"b", "c", "d"}, []string{"d"}},
		{"full overlap no new lines", []string{"a", "b"}, []string{"a", "b"}, nil},
		{"no overlap full resend", []string{"x", "y"}, []string{"a", "b"}, []string{"a", "b"}},
		{"overlap of exactly one line", []string{"a", "b", "c"}, []string{"c", "d", "e"}, []string{"d", "e"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := diffLines(c.prev, c.curr)
			if !linesEqual(got, c.want) {
				t.Errorf("diffLines(%v, %v) = %v, want %v", c.prev, c.curr, got, c.want)
			}
		})
	}
}

// fakeCapturePM implements pm.PM with only CapturePane behaving
// meaningfully; it returns scripted text per call, or an error once
// failAfter captures have happened.
type fakeCapturePM struct {
	pm.PM // embed nil; only CapturePane is overridden and called by Hub
	mu       sync.Mutex
	texts    []string
	idx      int
	failFrom int // -1 = never fail
}

func (f *fakeCapturePM) CapturePane(ctx context.Context, target string, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFrom >= 0 && f.idx >= f.failFrom {
		return "", errors.New("pane gone")
	}
	if f.idx >= len(f.texts) {
		f.idx++
		return f.texts[len(f.texts)-1], nil
	}
	text := f.texts[f.idx]
	f.idx++
	return text, nil
}

func TestSubscribeReceivesIncrementalDiffs(t *testing.T) {
	fp := &fakeCapturePM{texts: []string{"a\nb", "a\nb\nc", "a\nb\nc\nd"}, failFrom: -1}
	h := NewHub(fp, 10*time.Millisecond)

	var mu sync.Mutex
	var received []Event
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unsub := h.Subscribe(ctx, "ag-1", "sess:1.0", func(ev Event) {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
	})
	defer unsub()

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) < 2 {
		t.Fatalf("expected at least 2 incremental events, got %d: %+v", len(received), received)
	}
	for _, ev := range received {
		if ev.Type != "terminal" {
			t.Errorf("event type = %q, want terminal", ev.Type)
		}
	}
}

func TestSubscribeBroadcastsCaptureFailureAsTerminalError(t *testing.T) {
	fp := &fakeCapturePM{texts: []string{"a"}, failFrom: 0}
	h := NewHub(fp, 10*time.Millisecond)

	var mu sync.Mutex
	var received []Event
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unsub := h.Subscribe(ctx, "ag-1", "sess:1.0", func(ev Event) {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
	})
	defer unsub()

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) == 0 {
		t.Fatal("expected at least one terminal:error event")
	}
	if received[0].Type != "terminal:error" {
		t.Errorf("Type = %q, want terminal:error", received[0].Type)
	}
	if received[0].Error == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	fp := &fakeCapturePM{texts: []string{"a"}, failFrom: -1}
	h := NewHub(fp, 50*time.Millisecond)
	ctx := context.Background()

	unsub := h.Subscribe(ctx, "ag-1", "sess:1.0", func(Event) {})
	unsub()
	unsub() // must not panic
}

func TestSecondSubscriberJoinsExistingStream(t *testing.T) {
	fp := &fakeCapturePM{texts: []string{"a\nb"}, failFrom: -1}
	h := NewHub(fp, 10*time.Millisecond)
	ctx := context.Background()

	unsub1 := h.Subscribe(ctx, "ag-1", "sess:1.0", func(Event) {})
	defer unsub1()

	h.mu.Lock()
	streamsBefore := len(h.streams)
	h.mu.Unlock()

	unsub2 := h.Subscribe(ctx, "ag-1", "sess:1.0", func(Event) {})
	defer unsub2()

	h.mu.Lock()
	streamsAfter := len(h.streams)
	h.mu.Unlock()

	if streamsBefore != 1 || streamsAfter != 1 {
		t.Errorf("expected a single shared stream, before=%d after=%d", streamsBefore, streamsAfter)
	}
}

func TestDestroyTearsDownAllStreams(t *testing.T) {
	fp := &fakeCapturePM{texts: []string{"a"}, failFrom: -1}
	h := NewHub(fp, 50*time.Millisecond)
	ctx := context.Background()

	h.Subscribe(ctx, "ag-1", "sess:1.0", func(Event) {})
	h.Subscribe(ctx, "ag-2", "sess:2.0", func(Event) {})

	h.Destroy()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.streams) != 0 {
		t.Errorf("expected no streams after Destroy, got %d", len(h.streams))
	}
}
