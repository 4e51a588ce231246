package overlay

import (
	"sync"
	"sync/atomic"

	"github.com/meigma/tank"
)

// Live publishes the current Set to concurrent readers.
//
// Readers call Load and use the returned Set without locking. Writers
// build a complete new Set and swap it in; a published Set is never
// modified.
type Live struct {
	cur  atomic.Pointer[Set]
	mu   sync.Mutex // serializes Add
	opts []Option
}

// NewLive returns a Live publishing s, which may be nil. opts configure
// the first Set that Add builds when nothing is published yet.
func NewLive(s *Set, opts ...Option) *Live {
	l := &Live{opts: opts}
	l.cur.Store(s)
	return l
}

// Load returns the current Set.
func (l *Live) Load() *Set {
	return l.cur.Load()
}

// Store publishes s and returns the Set it replaced.
func (l *Live) Store(s *Set) *Set {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur.Swap(s)
}

// Add re-merges the current archives with more and publishes the result.
func (l *Live) Add(more ...*tank.Archive) *Set {
	l.mu.Lock()
	defer l.mu.Unlock()
	var next *Set
	if cur := l.cur.Load(); cur != nil {
		next = cur.With(more...)
	} else {
		next = New(more, l.opts...)
	}
	l.cur.Store(next)
	return next
}
