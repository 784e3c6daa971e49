package runner

import (
	"fmt"
	"sync"
	"time"
)

// StopPolicy is the cooperative cancellation signal the tick loop
// consults at step boundaries. It never interrupts an in-flight model
// call; the check happens before the next call is made.
type StopPolicy struct {
	mu        sync.Mutex
	wallClock time.Duration
	maxCalls  int
	started   time.Time
	calls     int
	requested string
}

// NewStopPolicy builds a policy. Zero wallClock or maxCalls disables
// that limit.
func NewStopPolicy(wallClock time.Duration, maxCalls int) *StopPolicy {
	return &StopPolicy{wallClock: wallClock, maxCalls: maxCalls}
}

// Start marks the beginning of the guarded run.
func (p *StopPolicy) Start(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = now
	p.calls = 0
	p.requested = ""
}

// NoteCall records one model call against the iteration budget.
func (p *StopPolicy) NoteCall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
}

// RequestStop asks the loop to wind down at the next step boundary.
func (p *StopPolicy) RequestStop(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.requested == "" {
		p.requested = reason
	}
}

// ShouldStop reports whether the loop must terminate now, and why.
func (p *StopPolicy) ShouldStop(now time.Time) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.requested != "" {
		return p.requested, true
	}
	if p.wallClock > 0 && !p.started.IsZero() && now.Sub(p.started) >= p.wallClock {
		return "wall_clock", true
	}
	if p.maxCalls > 0 && p.calls >= p.maxCalls {
		return fmt.Sprintf("max_calls_%d", p.maxCalls), true
	}
	return "", false
}
