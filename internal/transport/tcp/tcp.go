package tcp

import (
	"context"
	"fmt"
	"net"

	"github.com/pixil98/go-tundra/internal/transport"
)

const Name = "tcp"

// Transport carries frames over TCP streams.
type Transport struct {
	dialer net.Dialer
}

var _ transport.Transport = (*Transport)(nil)

func New() *Transport {
	return &Transport{}
}

func (t *Transport) Name() string { return Name }

func (t *Transport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	c, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return wrap(c), nil
}

func (t *Transport) Listen(addr string) (transport.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return &listener{l: l}, nil
}

func wrap(c net.Conn) *transport.StreamConn {
	var opts []transport.StreamOption
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		opts = append(opts, transport.WithCloseWrite(tc.CloseWrite))
	}
	return transport.NewStreamConn(c, c.Close, c.RemoteAddr().String(), opts...)
}

type listener struct {
	l net.Listener
}

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	type result struct {
		c   net.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.l.Accept()
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return wrap(r.c), nil
	case <-ctx.Done():
		_ = l.l.Close()
		if r := <-ch; r.c != nil {
			_ = r.c.Close()
		}
		return nil, ctx.Err()
	}
}

func (l *listener) Addr() string { return l.l.Addr().String() }

func (l *listener) Close() error { return l.l.Close() }
