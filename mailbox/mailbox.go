// Package mailbox hands the latest pad report from the input task to the output task.
//
// The mailbox holds a single slot. Set overwrites it and raises a one-token
// signal; Get waits a bounded time for that signal and then returns whatever the
// slot holds. It is a state channel, not a queue: intermediate reports may be
// skipped, the newest one is never lost.
package mailbox

import (
	"sync"
	"time"

	"github.com/padbridge/padbridge/report"
)

// DefaultWait is the bounded time Get waits for a new-data signal.
const DefaultWait = time.Millisecond

// Mailbox is a single-slot, most-recent-wins report channel. One producer and
// one consumer may use it concurrently.
type Mailbox struct {
	mu     sync.Mutex
	slot   report.Report
	signal chan struct{}
	wait   time.Duration
}

// New returns a mailbox holding the neutral report. A non-positive wait falls back to DefaultWait.
func New(wait time.Duration) *Mailbox {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Mailbox{
		slot:   report.Neutral(),
		signal: make(chan struct{}, 1),
		wait:   wait,
	}
}

// Wait returns the bounded signal wait used by Get.
func (m *Mailbox) Wait() time.Duration { return m.wait }

// Set stores a copy of r and signals the consumer. A nil report is ignored.
// The signal push never blocks; if a token is already pending the push is
// dropped, the slot already holds the freshest value.
func (m *Mailbox) Set(r *report.Report) {
	if r == nil {
		return
	}
	m.mu.Lock()
	m.slot = *r
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Get waits up to Wait() for a new-data signal and returns the current report.
// A timeout is not an error: the latest known state is returned either way.
func (m *Mailbox) Get() report.Report {
	t := time.NewTimer(m.wait)
	select {
	case <-m.signal:
	case <-t.C:
	}
	t.Stop()

	m.mu.Lock()
	r := m.slot
	m.mu.Unlock()
	return r
}

// Peek returns the current report without waiting or consuming a signal.
func (m *Mailbox) Peek() report.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot
}
