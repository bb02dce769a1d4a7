package telemetry

import "sync"

// Mailbox is a single-slot handoff between the acquisition side and the
// controller. Put overwrites the previous sample whether or not it was read.
type Mailbox struct {
	mu     sync.RWMutex
	latest *Sample
	seq    uint64
}

// NewMailbox creates an empty mailbox
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Put stores s as the newest sample. Nil samples are ignored.
func (m *Mailbox) Put(s *Sample) {
	if s == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.latest = s
	m.seq++
}

// Latest returns the newest sample, or false if nothing was put yet.
func (m *Mailbox) Latest() (*Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.latest, m.latest != nil
}

// Seq returns the number of samples put so far.
func (m *Mailbox) Seq() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.seq
}
