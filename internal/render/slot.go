package render

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Fetcher loads stored image bytes by key
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Deliver receives the outcome of a binding's fetch. It is never called for a
// binding that has been replaced or reset.
type Deliver func(postID string, data []byte, err error)

// Slot is a reusable display position bound to at most one post at a time.
// Rebinding cancels the in-flight fetch of the previous post.
type Slot struct {
	fetcher Fetcher
	process func([]byte) ([]byte, error)

	mu     sync.Mutex
	gen    uint64
	postID string
	cancel context.CancelFunc
}

// NewSlot creates a slot. process may be nil to deliver raw bytes.
func NewSlot(fetcher Fetcher, process func([]byte) ([]byte, error)) *Slot {
	return &Slot{fetcher: fetcher, process: process}
}

// PostID returns the post the slot is currently bound to
func (s *Slot) PostID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.postID
}

// Bind points the slot at postID and starts fetching key in the background.
func (s *Slot) Bind(ctx context.Context, postID, key string, deliver Deliver) {
	fetchCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.postID = postID
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(fetchCtx, gen, postID, key, deliver)
}

// Reset cancels any in-flight fetch and unbinds the slot
func (s *Slot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.postID = ""
}

func (s *Slot) run(ctx context.Context, gen uint64, postID, key string, deliver Deliver) {
	data, err := s.fetcher.Fetch(ctx, key)
	if err == nil && s.process != nil {
		data, err = s.process(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		log.Debug().Str("post_id", postID).Msg("Dropping stale slot image")
		return
	}
	s.cancel = nil
	// deliver runs under the lock so a concurrent rebind cannot interleave
	deliver(postID, data, err)
}

// SlotSet holds the slots of one client session, keyed by position
type SlotSet struct {
	fetcher Fetcher
	process func([]byte) ([]byte, error)

	mu    sync.Mutex
	slots map[int]*Slot
}

// NewSlotSet creates an empty slot set
func NewSlotSet(fetcher Fetcher, process func([]byte) ([]byte, error)) *SlotSet {
	return &SlotSet{
		fetcher: fetcher,
		process: process,
		slots:   make(map[int]*Slot),
	}
}

// Slot returns the slot at index, creating it on first use
func (ss *SlotSet) Slot(index int) *Slot {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.slots[index]
	if !ok {
		s = NewSlot(ss.fetcher, ss.process)
		ss.slots[index] = s
	}
	return s
}

// Reset unbinds the slot at index if it exists
func (ss *SlotSet) Reset(index int) {
	ss.mu.Lock()
	s, ok := ss.slots[index]
	ss.mu.Unlock()
	if ok {
		s.Reset()
	}
}

// Close cancels every in-flight fetch
func (ss *SlotSet) Close() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, s := range ss.slots {
		s.Reset()
	}
}
