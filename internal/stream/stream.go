// Package stream multiplexes many terminal subscribers per agent onto a
// single periodic pane capture, broadcasting incremental line diffs.
package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/xcawolfe-amzn/ppg/internal/pm"
)

// defaultPollInterval is the per-agent pane capture cadence.
const defaultPollInterval = 500 * time.Millisecond

// captureLines is how many trailing lines of scrollback are captured per
// poll tick.
const captureLines = 2000

// Event is broadcast to a subscriber's send function.
type Event struct {
	Type    string // "terminal" or "terminal:error"
	AgentID string
	Lines   []string
	Error   string
}

// SendFunc delivers an Event to one subscriber. A SendFunc that panics is
// treated as a dead subscriber and removed immediately by the dispatch
// goroutine's recover.
type SendFunc func(Event)

type subscription struct {
	id   int
	send SendFunc
}

type agentStream struct {
	mu          sync.Mutex
	paneTarget  string
	subscribers []subscription
	nextSubID   int
	lastLines   []string
	stop        chan struct{}
}

// Hub owns one agentStream per actively-subscribed agent.
type Hub struct {
	pm           pm.PM
	pollInterval time.Duration

	mu      sync.Mutex
	streams map[string]*agentStream
}

// NewHub constructs a Hub backed by p. pollInterval defaults to 500ms.
func NewHub(p pm.PM, pollInterval time.Duration) *Hub {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Hub{pm: p, pollInterval: pollInterval, streams: make(map[string]*agentStream)}
}

// Unsubscribe detaches a subscriber. Idempotent: calling it more than once
// is a no-op after the first call.
type Unsubscribe func()

// Subscribe attaches send to agentID's stream, starting the poll loop if
// this is the first subscriber. Returns an idempotent Unsubscribe.
func (h *Hub) Subscribe(ctx context.Context, agentID, paneTarget string, send SendFunc) Unsubscribe {
	h.mu.Lock()
	as, exists := h.streams[agentID]
	if !exists {
		as = &agentStream{paneTarget: paneTarget, stop: make(chan struct{})}
		h.streams[agentID] = as
	}
	h.mu.Unlock()

	as.mu.Lock()
	subID := as.nextSubID
	as.nextSubID++
	as.subscribers = append(as.subscribers, subscription{id: subID, send: send})
	startLoop := !exists
	as.mu.Unlock()

	if startLoop {
		go h.pollLoop(ctx, agentID, as)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			h.unsubscribe(agentID, as, subID)
		})
	}
}

func (h *Hub) unsubscribe(agentID string, as *agentStream, subID int) {
	as.mu.Lock()
	for i, s := range as.subscribers {
		if s.id == subID {
			as.subscribers = append(as.subscribers[:i], as.subscribers[i+1:]...)
			break
		}
	}
	empty := len(as.subscribers) == 0
	as.mu.Unlock()

	if empty {
		h.mu.Lock()
		if h.streams[agentID] == as {
			delete(h.streams, agentID)
		}
		h.mu.Unlock()
		close(as.stop)
	}
}

func (h *Hub) pollLoop(ctx context.Context, agentID string, as *agentStream) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-as.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx, agentID, as)
		}
	}
}

func (h *Hub) tick(ctx context.Context, agentID string, as *agentStream) {
	text, err := h.pm.CapturePane(ctx, as.paneTarget, captureLines)
	if err != nil {
		as.mu.Lock()
		as.lastLines = nil
		as.mu.Unlock()
		h.broadcast(as, Event{Type: "terminal:error", AgentID: agentID, Error: "Pane no longer available"})
		return
	}

	current := strings.Split(text, "\n")

	as.mu.Lock()
	diff := diffLines(as.lastLines, current)
	as.lastLines = current
	as.mu.Unlock()

	if len(diff) == 0 {
		return
	}
	h.broadcast(as, Event{Type: "terminal", AgentID: agentID, Lines: diff})
}

func (h *Hub) broadcast(as *agentStream, ev Event) {
	as.mu.Lock()
	subs := make([]subscription, len(as.subscribers))
	copy(subs, as.subscribers)
	as.mu.Unlock()

	var dead []int
	for _, s := range subs {
		if !safeSend(s.send, ev) {
			dead = append(dead, s.id)
		}
	}
	if len(dead) == 0 {
		return
	}
	as.mu.Lock()
	for _, id := range dead {
		for i, s := range as.subscribers {
			if s.id == id {
				as.subscribers = append(as.subscribers[:i], as.subscribers[i+1:]...)
				break
			}
		}
	}
	as.mu.Unlock()
}

// safeSend invokes send, recovering from a panic and reporting failure so
// the caller can drop the subscriber immediately.
func safeSend(send SendFunc, ev Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	send(ev)
	return true
}

// Destroy tears down every stream in the hub.
func (h *Hub) Destroy() {
	h.mu.Lock()
	streams := h.streams
	h.streams = make(map[string]*agentStream)
	h.mu.Unlock()

	for _, as := range streams {
		close(as.stop)
	}
}

// diffLines finds the longest suffix of prev that equals a prefix of curr
// and returns the unmatched remainder of curr. It tolerates scrollback
// sliding content up and off, and degrades to a full resend on redraws
// where no overlap exists.
func diffLines(prev, curr []string) []string {
	if len(prev) == 0 {
		return curr
	}
	if len(curr) == 0 {
		return nil
	}

	maxOverlap := len(prev)
	if len(curr) < maxOverlap {
		maxOverlap = len(curr)
	}
	for overlap := maxOverlap; overlap >= 1; overlap-- {
		if linesEqual(prev[len(prev)-overlap:], curr[:overlap]) {
			return curr[overlap:]
		}
	}
	return curr
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
