package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/transport"
)

const (
	DefaultPort              = 2345
	DefaultInitialAttempts   = 1
	DefaultReconnectAttempts = 5
	DefaultReconnectInterval = 5 * time.Second
	DefaultDialTimeout       = 5 * time.Second
)

// MessageHandler receives every inbound frame. source is the server
// connection on a client, or the user's connection on a server.
type MessageHandler interface {
	HandleMessage(ctx context.Context, source transport.Conn, id protocol.MessageID, data []byte)
}

// Observer receives connection lifecycle events from Update.
type Observer interface {
	OnUserConnected(ctx context.Context, u *UserConnection)
	OnUserDisconnected(ctx context.Context, u *UserConnection)
	OnConnectionAttemptFailed(ctx context.Context)
}

// NopObserver implements Observer with no-ops and is meant for embedding.
type NopObserver struct{}

func (NopObserver) OnUserConnected(context.Context, *UserConnection)    {}
func (NopObserver) OnUserDisconnected(context.Context, *UserConnection) {}
func (NopObserver) OnConnectionAttemptFailed(context.Context)           {}

// Endpoint is a server address plus the transport used to reach it.
type Endpoint struct {
	Host      string
	Port      uint16
	Transport string
}

func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s (%s)", e.Address(), e.Transport)
}

type dialResult struct {
	seq  int
	conn transport.Conn
	err  error
}

// Manager owns the transports, the outbound server connection of a client
// and the listener and user connections of a server. Everything but the
// dial and accept goroutines runs inside Update on the tick goroutine.
type Manager struct {
	transports       transport.Set
	defaultTransport string
	registry         *Registry
	handlers         []MessageHandler
	observers        []Observer
	metrics          *metrics
	userCount        atomic.Int64

	now               func() time.Time
	fatal             func(error)
	initialAttempts   int
	reconnectAttempts int
	reconnectInterval time.Duration
	dialTimeout       time.Duration

	serverConn   transport.Conn
	target       *Endpoint
	attemptsLeft int
	retry        pollTimer
	dialing      bool
	dialSeq      int
	dialCancel   context.CancelFunc
	dialResults  chan dialResult

	listener     transport.Listener
	serverPort   uint16
	serverProto  string
	acceptCancel context.CancelFunc
	accepted     chan transport.Conn
}

func NewManager(transports transport.Set, opts ...ManagerOpt) (*Manager, error) {
	m := &Manager{
		transports:        transports,
		defaultTransport:  "tcp",
		registry:          NewRegistry(),
		now:               time.Now,
		fatal:             exitOnFatal,
		initialAttempts:   DefaultInitialAttempts,
		reconnectAttempts: DefaultReconnectAttempts,
		reconnectInterval: DefaultReconnectInterval,
		dialTimeout:       DefaultDialTimeout,
		dialResults:       make(chan dialResult, 8),
		accepted:          make(chan transport.Conn, 64),
	}
	for _, opt := range opts {
		opt(m)
	}

	mt, err := newMetrics(m)
	if err != nil {
		return nil, err
	}
	m.metrics = mt

	return m, nil
}

func exitOnFatal(err error) {
	slog.Error("fatal network error", "error", err)
	os.Exit(1)
}

func (m *Manager) Registry() *Registry              { return m.registry }
func (m *Manager) Transports() transport.Set        { return m.transports }
func (m *Manager) DefaultTransport() string         { return m.defaultTransport }
func (m *Manager) ServerConnection() transport.Conn { return m.serverConn }

func (m *Manager) AddHandler(h MessageHandler) {
	m.handlers = append(m.handlers, h)
}

func (m *Manager) AddObserver(o Observer) {
	m.observers = append(m.observers, o)
}

// IsServer reports whether a listener is running.
func (m *Manager) IsServer() bool {
	return m.listener != nil
}

func (m *Manager) ServerPort() uint16      { return m.serverPort }
func (m *Manager) ServerTransport() string { return m.serverProto }

// Target returns the endpoint the client is connecting or connected to.
func (m *Manager) Target() (Endpoint, bool) {
	if m.target == nil {
		return Endpoint{}, false
	}
	return *m.target, true
}

// ClientState reports the state of the outbound server connection.
func (m *Manager) ClientState() transport.State {
	if m.dialing {
		return transport.StatePending
	}
	if m.serverConn == nil {
		return transport.StateClosed
	}
	return m.serverConn.State()
}

// Connect starts connecting to a server. It returns immediately; progress
// is made in Update.
func (m *Manager) Connect(host string, port uint16, transportName string) error {
	if transportName == "" {
		transportName = m.defaultTransport
	}
	if _, err := m.transports.Get(transportName); err != nil {
		return err
	}

	ep := Endpoint{Host: host, Port: port, Transport: transportName}
	if m.target != nil && *m.target != ep {
		m.Disconnect()
	}
	m.target = &ep
	m.attemptsLeft = m.initialAttempts

	if m.ClientState() != transport.StateOK {
		m.performConnection()
	}
	return nil
}

// Disconnect drops the server connection and cancels any reconnection.
func (m *Manager) Disconnect() {
	if m.serverConn != nil {
		if err := m.serverConn.Close(); err != nil {
			slog.Debug("closing server connection", "error", err)
		}
		m.serverConn = nil
	}
	m.cancelDial()
	m.target = nil
	m.retry.stop()
}

func (m *Manager) performConnection() {
	if m.serverConn != nil {
		_ = m.serverConn.Close()
		m.serverConn = nil
	}
	m.cancelDial()

	t, err := m.transports.Get(m.target.Transport)
	if err != nil {
		slog.Error("connecting to server", "error", err)
		return
	}

	m.dialSeq++
	seq := m.dialSeq
	ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout)
	m.dialCancel = cancel
	m.dialing = true

	addr := m.target.Address()
	slog.Info("connecting to server", "address", addr, "transport", t.Name())
	go func() {
		c, err := t.Dial(ctx, addr)
		m.dialResults <- dialResult{seq: seq, conn: c, err: err}
	}()
}

func (m *Manager) cancelDial() {
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.dialing = false
}

// StartServer listens on port. Failing to listen is fatal: the fatal
// handler runs and the error is returned.
func (m *Manager) StartServer(ctx context.Context, port uint16, transportName string) error {
	m.StopServer(ctx)

	if transportName == "" {
		transportName = m.defaultTransport
	}
	t, err := m.transports.Get(transportName)
	if err != nil {
		err = fmt.Errorf("starting server: %w", err)
		m.fatal(err)
		return err
	}

	l, err := t.Listen(fmt.Sprintf(":%d", port))
	if err != nil {
		err = fmt.Errorf("starting server on port %d: %w", port, err)
		m.fatal(err)
		return err
	}

	acceptCtx, cancel := context.WithCancel(context.Background())
	m.listener = l
	m.acceptCancel = cancel
	m.serverPort = port
	m.serverProto = transportName
	go m.acceptLoop(acceptCtx, l)

	slog.InfoContext(ctx, "server started", "port", port, "transport", transportName, "addr", l.Addr())
	return nil
}

func (m *Manager) acceptLoop(ctx context.Context, l transport.Listener) {
	for {
		c, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accepting connection", "error", err)
			continue
		}
		select {
		case m.accepted <- c:
		case <-ctx.Done():
			_ = c.Close()
			return
		}
	}
}

// StopServer closes the listener and every user connection. Observers see
// each user disconnect after the registry is cleared.
func (m *Manager) StopServer(ctx context.Context) {
	if m.listener == nil {
		return
	}
	m.acceptCancel()
	if err := m.listener.Close(); err != nil {
		slog.Warn("closing listener", "error", err)
	}
	users := m.registry.All()
	for _, u := range users {
		_ = u.Conn.Close()
	}
	m.registry.Clear()
	m.userCount.Store(0)
	for _, u := range users {
		m.metrics.userEvent(ctx, "disconnected")
		slog.InfoContext(ctx, "user disconnected", "user", u.ID)
		for _, o := range m.observers {
			o.OnUserDisconnected(ctx, u)
		}
	}
	m.listener = nil
	m.serverPort = 0
	m.serverProto = ""

	for drained := false; !drained; {
		select {
		case c := <-m.accepted:
			_ = c.Close()
		default:
			drained = true
		}
	}
	slog.InfoContext(ctx, "server stopped")
}

// Tick runs Update as a driver manager.
func (m *Manager) Tick(ctx context.Context) error {
	m.Update(ctx)
	return nil
}

// Update dispatches received frames, accepts and reaps connections, and
// drives reconnection.
func (m *Manager) Update(ctx context.Context) {
	m.collectDials(ctx)
	m.updateClient(ctx)
	m.updateServer(ctx)
	m.updateReconnect(ctx)
}

func (m *Manager) collectDials(ctx context.Context) {
	for {
		select {
		case r := <-m.dialResults:
			if r.seq != m.dialSeq || !m.dialing {
				if r.conn != nil {
					_ = r.conn.Close()
				}
				continue
			}
			m.dialing = false
			if r.err != nil {
				slog.WarnContext(ctx, "connection attempt failed", "error", r.err)
				continue
			}
			m.serverConn = r.conn
			slog.InfoContext(ctx, "connected to server", "address", r.conn.RemoteAddr())
		default:
			return
		}
	}
}

func (m *Manager) updateClient(ctx context.Context) {
	c := m.serverConn
	if c == nil {
		return
	}
	live := func() bool { return m.serverConn == c }
	m.drain(ctx, c, live)
	if m.serverConn == c && !c.IsReadOpen() && c.IsWriteOpen() {
		// Frames that landed after the first drain still precede the EOF.
		m.drain(ctx, c, live)
		slog.InfoContext(ctx, "server closed the connection")
		_ = c.Close()
	}
}

func (m *Manager) updateServer(ctx context.Context) {
	if m.listener == nil {
		return
	}

	for accepting := true; accepting; {
		select {
		case c := <-m.accepted:
			u, err := m.registry.NewConnectionEstablished(c)
			if err != nil {
				slog.WarnContext(ctx, "rejecting connection", "remote", c.RemoteAddr(), "error", err)
				_ = c.Close()
				continue
			}
			m.userCount.Store(int64(m.registry.Len()))
			m.metrics.userEvent(ctx, "connected")
			slog.InfoContext(ctx, "user connected", "user", u.ID, "remote", c.RemoteAddr())
			for _, o := range m.observers {
				o.OnUserConnected(ctx, u)
			}
		default:
			accepting = false
		}
	}

	for _, u := range m.registry.All() {
		c := u.Conn
		live := func() bool { return m.registry.ByConn(c) == u }
		m.drain(ctx, c, live)
		if !c.IsReadOpen() && c.IsWriteOpen() {
			m.drain(ctx, c, live)
			_ = c.Close()
		}
		if c.State() != transport.StateClosed {
			continue
		}
		if gone := m.registry.ClientDisconnected(c); gone != nil {
			m.userCount.Store(int64(m.registry.Len()))
			m.metrics.userEvent(ctx, "disconnected")
			slog.InfoContext(ctx, "user disconnected", "user", gone.ID)
			for _, o := range m.observers {
				o.OnUserDisconnected(ctx, gone)
			}
		}
	}
}

// drain dispatches every buffered frame of c while live reports true.
func (m *Manager) drain(ctx context.Context, c transport.Conn, live func() bool) {
	for live() {
		f, ok := c.Poll()
		if !ok {
			return
		}
		m.metrics.frame(ctx, f.ID.String())
		for _, h := range m.handlers {
			h.HandleMessage(ctx, c, f.ID, f.Data)
		}
	}
}

func (m *Manager) updateReconnect(ctx context.Context) {
	if m.target == nil {
		return
	}

	switch m.ClientState() {
	case transport.StateOK:
		m.attemptsLeft = m.reconnectAttempts
		m.retry.stop()
		return
	case transport.StatePending, transport.StateClosed:
	default:
		return
	}

	now := m.now()
	if m.retry.test(now) {
		if m.attemptsLeft > 0 {
			m.attemptsLeft--
			m.performConnection()
			return
		}
		target := *m.target
		slog.ErrorContext(ctx, "failed to connect", "endpoint", target.String())
		m.cancelDial()
		m.retry.stop()
		m.target = nil
		for _, o := range m.observers {
			o.OnConnectionAttemptFailed(ctx)
		}
		return
	}
	if !m.retry.enabled {
		m.retry.start(now, m.reconnectInterval)
	}
}
