// Package pipe provides an in-process transport with half-close semantics.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pixil98/go-tundra/internal/transport"
)

const Name = "pipe"

var ErrRefused = errors.New("connection refused")

// Transport connects dialers to listeners registered on the same Transport.
type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
	dials     atomic.Int64
}

var _ transport.Transport = (*Transport)(nil)

func New() *Transport {
	return &Transport{listeners: map[string]*listener{}}
}

func (t *Transport) Name() string { return Name }

// Dials reports how many dial attempts were made.
func (t *Transport) Dials() int {
	return int(t.dials.Load())
}

func (t *Transport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	t.dials.Add(1)

	t.mu.Lock()
	l, ok := t.listeners[addr]
	if !ok {
		// A listener without a host accepts any host on its port.
		if _, port, err := net.SplitHostPort(addr); err == nil {
			l, ok = t.listeners[":"+port]
		}
	}
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dialing %s: %w", addr, ErrRefused)
	}

	client, server := Pair("client:"+addr, addr)
	select {
	case l.accepted <- server:
		return client, nil
	case <-l.done:
		return nil, fmt.Errorf("dialing %s: %w", addr, ErrRefused)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) Listen(addr string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[addr]; ok {
		return nil, fmt.Errorf("listening on %s: address in use", addr)
	}
	l := &listener{
		t:        t,
		addr:     addr,
		accepted: make(chan transport.Conn, 16),
		done:     make(chan struct{}),
	}
	t.listeners[addr] = l
	return l, nil
}

type listener struct {
	t        *Transport
	addr     string
	accepted chan transport.Conn
	done     chan struct{}
	once     sync.Once
}

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case c := <-l.accepted:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *listener) Addr() string { return l.addr }

func (l *listener) Close() error {
	l.once.Do(func() {
		l.t.mu.Lock()
		delete(l.t.listeners, l.addr)
		l.t.mu.Unlock()
		close(l.done)
	})
	return nil
}

// Pair returns two connected ends. Frames sent on one end are polled on the
// other; closing one end's write side closes the other end's read side.
func Pair(aName, bName string) (*Conn, *Conn) {
	a := &Conn{remote: bName, inbox: transport.NewInbox(transport.DefaultInboxSize)}
	b := &Conn{remote: aName, inbox: transport.NewInbox(transport.DefaultInboxSize)}
	a.peer, b.peer = b, a
	a.Open()
	b.Open()
	return a, b
}

type Conn struct {
	transport.Status

	peer   *Conn
	remote string
	inbox  *transport.Inbox
	sent   atomic.Int64
}

func (c *Conn) Send(f transport.Frame) error {
	if !c.IsWriteOpen() {
		return transport.ErrWriteClosed
	}
	if !c.peer.IsReadOpen() {
		return transport.ErrClosed
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	f.Data = data
	if !c.peer.inbox.Deliver(f) {
		return transport.ErrClosed
	}
	c.sent.Add(1)
	return nil
}

// Sent reports how many frames were delivered to the peer.
func (c *Conn) Sent() int {
	return int(c.sent.Load())
}

func (c *Conn) Poll() (transport.Frame, bool) {
	return c.inbox.Poll()
}

func (c *Conn) CloseWrite() error {
	if c.MarkWriteClosed() {
		c.peer.MarkReadClosed()
	}
	return nil
}

func (c *Conn) Close() error {
	_ = c.CloseWrite()
	if c.MarkReadClosed() {
		c.peer.MarkWriteClosed()
	}
	c.inbox.Shut()
	return nil
}

func (c *Conn) RemoteAddr() string { return c.remote }
