package transport

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/pixil98/go-tundra/internal/protocol"
)

// StreamConn frames messages over a byte stream. A reader goroutine feeds
// the inbox until the peer closes its side.
type StreamConn struct {
	Status

	rw         io.ReadWriter
	closeWrite func() error
	closeAll   func() error
	remote     string
	inbox      *Inbox

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// StreamOption customizes a StreamConn.
type StreamOption func(*StreamConn)

// WithCloseWrite sets how the write direction is half-closed. Without it,
// CloseWrite only stops further sends.
func WithCloseWrite(fn func() error) StreamOption {
	return func(c *StreamConn) {
		c.closeWrite = fn
	}
}

func WithInboxSize(n int) StreamOption {
	return func(c *StreamConn) {
		c.inbox = NewInbox(n)
	}
}

// NewStreamConn starts reading frames from rw. closeAll releases rw.
func NewStreamConn(rw io.ReadWriter, closeAll func() error, remote string, opts ...StreamOption) *StreamConn {
	c := &StreamConn{
		rw:       rw,
		closeAll: closeAll,
		remote:   remote,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.inbox == nil {
		c.inbox = NewInbox(DefaultInboxSize)
	}
	c.Open()
	go c.readLoop()
	return c
}

func (c *StreamConn) readLoop() {
	for {
		id, payload, err := protocol.ReadFrame(c.rw)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && c.IsReadOpen() {
				slog.Debug("stream read ended", "remote", c.remote, "error", err)
			}
			c.MarkReadClosed()
			c.maybeRelease()
			return
		}
		if id == protocol.MsgStreamOpen {
			continue
		}
		if !c.inbox.Deliver(Frame{ID: id, Data: payload, Reliable: true}) {
			c.MarkReadClosed()
			return
		}
	}
}

// Deliver injects a frame received out of band, such as a datagram.
func (c *StreamConn) Deliver(f Frame) bool {
	if !c.IsReadOpen() {
		return false
	}
	return c.inbox.Deliver(f)
}

func (c *StreamConn) Send(f Frame) error {
	if !c.IsWriteOpen() {
		return ErrWriteClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteFrame(c.rw, f.ID, f.Data)
}

func (c *StreamConn) Poll() (Frame, bool) {
	return c.inbox.Poll()
}

func (c *StreamConn) CloseWrite() error {
	if !c.MarkWriteClosed() {
		return nil
	}
	var err error
	if c.closeWrite != nil {
		c.writeMu.Lock()
		err = c.closeWrite()
		c.writeMu.Unlock()
	}
	c.maybeRelease()
	return err
}

func (c *StreamConn) Close() error {
	c.MarkWriteClosed()
	c.MarkReadClosed()
	return c.release()
}

func (c *StreamConn) RemoteAddr() string {
	return c.remote
}

func (c *StreamConn) maybeRelease() {
	if c.State() == StateClosed {
		_ = c.release()
	}
}

func (c *StreamConn) release() error {
	var err error
	c.closeOnce.Do(func() {
		c.inbox.Shut()
		if c.closeAll != nil {
			err = c.closeAll()
		}
	})
	return err
}
