package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/transport"
)

const (
	Name        = "websocket"
	DefaultPath = "/tundra"
)

// Transport carries one frame per binary websocket message.
type Transport struct {
	path     string
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader
}

var _ transport.Transport = (*Transport)(nil)

type Opt func(*Transport)

func WithPath(path string) Opt {
	return func(t *Transport) {
		t.path = path
	}
}

func New(opts ...Opt) *Transport {
	t := &Transport{
		path:   DefaultPath,
		dialer: websocket.DefaultDialer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Name() string { return Name }

func (t *Transport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	url := fmt.Sprintf("ws://%s%s", addr, t.path)
	ws, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return newConn(ws), nil
}

func (t *Transport) Listen(addr string) (transport.Listener, error) {
	nl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	l := &listener{
		nl:       nl,
		accepted: make(chan transport.Conn, 16),
		done:     make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.path, func(w http.ResponseWriter, r *http.Request) {
		ws, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		c := newConn(ws)
		select {
		case l.accepted <- c:
		case <-l.done:
			_ = c.Close()
		}
	})
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.srv.Serve(nl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("websocket server stopped", "addr", addr, "error", err)
		}
	}()
	return l, nil
}

type listener struct {
	nl       net.Listener
	srv      *http.Server
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

func (l *listener) Addr() string { return l.nl.Addr().String() }

func (l *listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

// conn maps a websocket close handshake onto the half-close model: sending
// a close frame closes our write side, receiving one closes our read side.
type conn struct {
	transport.Status

	ws      *websocket.Conn
	inbox   *transport.Inbox
	writeMu sync.Mutex
	once    sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	c := &conn{
		ws:    ws,
		inbox: transport.NewInbox(transport.DefaultInboxSize),
	}
	c.Open()
	// Answering a close frame is left to CloseWrite so the read and write
	// directions stay independent.
	ws.SetCloseHandler(func(int, string) error { return nil })
	go c.readLoop()
	return c
}

func (c *conn) readLoop() {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.MarkReadClosed()
			c.maybeRelease()
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		id, payload, err := protocol.ParseFrame(data)
		if err != nil {
			slog.Debug("dropping malformed websocket frame", "remote", c.RemoteAddr(), "error", err)
			continue
		}
		if !c.inbox.Deliver(transport.Frame{ID: id, Data: payload, Reliable: true}) {
			c.MarkReadClosed()
			return
		}
	}
}

func (c *conn) Send(f transport.Frame) error {
	if !c.IsWriteOpen() {
		return transport.ErrWriteClosed
	}
	buf, err := protocol.AppendFrame(nil, f.ID, f.Data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, buf)
}

func (c *conn) Poll() (transport.Frame, bool) {
	return c.inbox.Poll()
}

func (c *conn) CloseWrite() error {
	if !c.MarkWriteClosed() {
		return nil
	}
	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.maybeRelease()
	return err
}

func (c *conn) Close() error {
	if c.IsWriteOpen() {
		_ = c.CloseWrite()
	}
	c.MarkReadClosed()
	return c.release()
}

func (c *conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func (c *conn) maybeRelease() {
	if c.State() == transport.StateClosed {
		_ = c.release()
	}
}

func (c *conn) release() error {
	var err error
	c.once.Do(func() {
		c.inbox.Shut()
		err = c.ws.Close()
	})
	return err
}
