package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

var ErrNotStarted = errors.New("nats server not started")

// Responder answers a request message. Its return value is sent as the
// reply when the request carries a reply subject.
type Responder func(ctx context.Context, data []byte) []byte

type responder struct {
	subject string
	fn      Responder
}

// NatsServer embeds a NATS server for event fan-out and console requests,
// with one in-process client connection.
type NatsServer struct {
	ns   *server.Server
	conn *nats.Conn

	startupTimeout time.Duration
	name           string
	host           string
	port           int

	mu         sync.Mutex
	ctx        context.Context
	responders []responder
	ready      chan struct{}
}

type NatsServerOpt func(*NatsServer)

func WithStartTimeout(d time.Duration) NatsServerOpt {
	return func(n *NatsServer) {
		n.startupTimeout = d
	}
}

// WithServerName names the server in NATS monitoring and client info.
func WithServerName(name string) NatsServerOpt {
	return func(n *NatsServer) {
		n.name = name
	}
}

// WithHost binds the server to host. It defaults to loopback.
func WithHost(host string) NatsServerOpt {
	return func(n *NatsServer) {
		n.host = host
	}
}

// WithPort sets the client port. -1 picks a free port.
func WithPort(port int) NatsServerOpt {
	return func(n *NatsServer) {
		n.port = port
	}
}

func NewNatsServer(opts ...NatsServerOpt) (*NatsServer, error) {
	s := &NatsServer{
		startupTimeout: 10 * time.Second,
		name:           "tundra",
		host:           "127.0.0.1",
		ready:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	ns, err := server.NewServer(&server.Options{
		ServerName: s.name,
		Host:       s.host,
		Port:       s.port,
		NoSigs:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	s.ns = ns

	return s, nil
}

func (n *NatsServer) Start(ctx context.Context) error {
	n.ns.Start()

	if !n.ns.ReadyForConnections(n.startupTimeout) {
		return fmt.Errorf("nats server not ready for connections")
	}

	// Create internal client connection
	conn, err := nats.Connect(n.ns.ClientURL())
	if err != nil {
		return fmt.Errorf("creating nats client connection: %w", err)
	}

	n.mu.Lock()
	n.conn = conn
	n.ctx = ctx
	pending := n.responders
	n.responders = nil
	n.mu.Unlock()

	for _, r := range pending {
		if err := n.subscribe(ctx, r); err != nil {
			return err
		}
	}
	close(n.ready)

	slog.InfoContext(ctx, "nats server listening", "addr", n.ns.Addr())

	<-ctx.Done()
	n.mu.Lock()
	n.conn = nil
	n.mu.Unlock()
	conn.Close()
	n.ns.Shutdown()
	n.ns.WaitForShutdown()

	return nil
}

// Ready is closed once Start has connected and registered every responder.
func (n *NatsServer) Ready() <-chan struct{} {
	return n.ready
}

func (n *NatsServer) ClientURL() string {
	return n.ns.ClientURL()
}

// Respond registers fn for requests on subject. Responders added before
// Start are subscribed when the server comes up. fn is called with the
// context Start was given.
func (n *NatsServer) Respond(subject string, fn Responder) error {
	r := responder{subject: subject, fn: fn}

	n.mu.Lock()
	if n.conn == nil {
		n.responders = append(n.responders, r)
		n.mu.Unlock()
		return nil
	}
	ctx := n.ctx
	n.mu.Unlock()

	return n.subscribe(ctx, r)
}

func (n *NatsServer) subscribe(ctx context.Context, r responder) error {
	_, err := n.conn.Subscribe(r.subject, func(msg *nats.Msg) {
		reply := r.fn(ctx, msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			slog.WarnContext(ctx, "responding to nats request", "subject", r.subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.subject, err)
	}
	if err := n.conn.Flush(); err != nil {
		return fmt.Errorf("flushing subscription to %s: %w", r.subject, err)
	}
	return nil
}

// Publish sends a message to the given subject
func (n *NatsServer) Publish(subject string, data []byte) error {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()

	if conn == nil {
		return ErrNotStarted
	}
	return conn.Publish(subject, data)
}
