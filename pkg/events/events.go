// Package events streams execution progress from the tick loop to
// whoever is watching, typically the console. Publishing never blocks
// the executor: a slow or absent consumer costs dropped events, not
// stalled ticks.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Event kinds emitted by the executor.
const (
	KindTickStarted  = "tick_started"
	KindTickFinished = "tick_finished"
	KindStep         = "step"
	KindToolCall     = "tool_call"
	KindToolResult   = "tool_result"
	KindDenial       = "denial"
	KindMemoryFlush  = "memory_flush"
	KindError        = "error"
)

// Event is one progress notification. Fields beyond Kind and TickIndex
// are populated per kind.
type Event struct {
	Kind      string
	TickIndex int
	Step      int
	Tool      string
	Action    string
	Summary   string
	Detail    string
	IsError   bool
	Timestamp time.Time
}

const publishTimeout = 100 * time.Millisecond

// Stream is a bounded single-consumer event channel with drop
// accounting.
type Stream struct {
	events  chan Event
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

func NewStream() *Stream {
	return &Stream{
		events: make(chan Event, 100),
	}
}

// Publish enqueues an event, stamping the time. When the buffer is
// full it waits briefly, then drops.
func (s *Stream) Publish(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case s.events <- event:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case s.events <- event:
		case <-timer.C:
			s.dropped.Add(1)
		}
	}
}

// Next blocks for the next event. The second return is false when the
// stream is closed or ctx expires.
func (s *Stream) Next(ctx context.Context) (Event, bool) {
	select {
	case event, ok := <-s.events:
		if !ok {
			return Event{}, false
		}
		return event, true
	case <-ctx.Done():
		return Event{}, false
	}
}

func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// Dropped reports how many events were discarded under backpressure.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}
