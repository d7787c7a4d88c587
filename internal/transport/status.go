package transport

import (
	"sync"
	"sync/atomic"
)

// Status tracks the direction flags of a connection. Implementations embed it.
type Status struct {
	readOpen  atomic.Bool
	writeOpen atomic.Bool
}

func (s *Status) Open() {
	s.readOpen.Store(true)
	s.writeOpen.Store(true)
}

func (s *Status) IsReadOpen() bool  { return s.readOpen.Load() }
func (s *Status) IsWriteOpen() bool { return s.writeOpen.Load() }

// MarkReadClosed records that the peer will send nothing more. It reports
// whether this call changed the flag.
func (s *Status) MarkReadClosed() bool  { return s.readOpen.Swap(false) }
func (s *Status) MarkWriteClosed() bool { return s.writeOpen.Swap(false) }

func (s *Status) State() State {
	r, w := s.readOpen.Load(), s.writeOpen.Load()
	switch {
	case r && w:
		return StateOK
	case !r && w:
		return StatePeerClosed
	case r && !w:
		return StateDisconnecting
	default:
		return StateClosed
	}
}

// Inbox buffers received frames for Poll. Deliver blocks when the buffer is
// full until a frame is polled or the inbox is shut.
type Inbox struct {
	ch   chan Frame
	done chan struct{}
	once sync.Once
}

const DefaultInboxSize = 1024

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{
		ch:   make(chan Frame, size),
		done: make(chan struct{}),
	}
}

func (b *Inbox) Deliver(f Frame) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.ch <- f:
		return true
	case <-b.done:
		return false
	}
}

func (b *Inbox) Poll() (Frame, bool) {
	select {
	case f := <-b.ch:
		return f, true
	default:
		return Frame{}, false
	}
}

// Shut unblocks pending deliveries. Frames already buffered stay pollable.
func (b *Inbox) Shut() {
	b.once.Do(func() { close(b.done) })
}
