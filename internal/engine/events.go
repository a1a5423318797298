package engine

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/onepurp/Mutarjim-Pro/internal/segment"
	"github.com/onepurp/Mutarjim-Pro/internal/store"
)

// Log levels surfaced to subscribers.
const (
	LogInfo    = "INFO"
	LogSuccess = "SUCCESS"
	LogWarning = "WARNING"
	LogError   = "ERROR"
)

// logRingCap bounds the retained log history.
const logRingCap = 200

// LogEntry is one structured log record in the engine's ring buffer.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

const subscriberBuffer = 64

// Hub fans engine events out to subscribers. Publishing never blocks: a
// subscriber that falls behind loses events, not the engine. The store
// stays authoritative; events are notifications, not state.
type Hub struct {
	logger *logrus.Logger

	mu          sync.Mutex
	logRing     []LogEntry
	segmentSubs []chan segment.Segment
	statsSubs   []chan store.Stats
	stateSubs   []chan State
	logSubs     []chan LogEntry
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{logger: logger}
}

// SubscribeSegments observes segment mutations.
func (h *Hub) SubscribeSegments() <-chan segment.Segment {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan segment.Segment, subscriberBuffer)
	h.segmentSubs = append(h.segmentSubs, ch)
	return ch
}

// SubscribeStats observes the (total, translated) counters.
func (h *Hub) SubscribeStats() <-chan store.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan store.Stats, subscriberBuffer)
	h.statsSubs = append(h.statsSubs, ch)
	return ch
}

// SubscribeState observes engine state transitions.
func (h *Hub) SubscribeState() <-chan State {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan State, subscriberBuffer)
	h.stateSubs = append(h.stateSubs, ch)
	return ch
}

// SubscribeLogs observes the structured log stream.
func (h *Hub) SubscribeLogs() <-chan LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan LogEntry, subscriberBuffer)
	h.logSubs = append(h.logSubs, ch)
	return ch
}

// RecentLogs returns a copy of the retained log history, oldest first.
func (h *Hub) RecentLogs() []LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]LogEntry, len(h.logRing))
	copy(out, h.logRing)
	return out
}

func (h *Hub) publishSegment(seg segment.Segment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.segmentSubs {
		select {
		case ch <- seg:
		default:
		}
	}
}

func (h *Hub) publishStats(st store.Stats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.statsSubs {
		select {
		case ch <- st:
		default:
		}
	}
}

func (h *Hub) publishState(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.stateSubs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Log records a structured entry, mirrors it to the process logger and
// broadcasts it to subscribers.
func (h *Hub) Log(level, message string) {
	entry := LogEntry{Level: level, Message: message, Time: time.Now()}

	switch level {
	case LogError:
		h.logger.Error(message)
	case LogWarning:
		h.logger.Warn(message)
	default:
		h.logger.Info(message)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.logRing = append(h.logRing, entry)
	if len(h.logRing) > logRingCap {
		h.logRing = h.logRing[len(h.logRing)-logRingCap:]
	}
	for _, ch := range h.logSubs {
		select {
		case ch <- entry:
		default:
		}
	}
}
