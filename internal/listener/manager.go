package listener

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// SessionRunner serves one interactive session until the peer leaves.
type SessionRunner interface {
	RunSession(ctx context.Context, rw io.ReadWriter) error
}

type ConnectionManager struct {
	runner      SessionRunner
	maxSessions int64
	active      atomic.Int64
}

type ConnectionManagerOpt func(*ConnectionManager)

// WithMaxSessions caps concurrent remote sessions. Zero means no cap.
func WithMaxSessions(n int) ConnectionManagerOpt {
	return func(m *ConnectionManager) {
		m.maxSessions = int64(n)
	}
}

func NewConnectionManager(r SessionRunner, opts ...ConnectionManagerOpt) *ConnectionManager {
	m := &ConnectionManager{
		runner: r,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *ConnectionManager) Active() int {
	return int(m.active.Load())
}

func (m *ConnectionManager) AcceptConnection(ctx context.Context, conn io.ReadWriter, remote string) {
	n := m.active.Add(1)
	defer m.active.Add(-1)

	if m.maxSessions > 0 && n > m.maxSessions {
		slog.WarnContext(ctx, "rejecting console session, too many open", "remote", remote, "max", m.maxSessions)
		_, _ = io.WriteString(conn, "Too many console sessions.\n")
		return
	}

	slog.InfoContext(ctx, "console session opened", "remote", remote)
	if err := m.runner.RunSession(ctx, conn); err != nil {
		slog.WarnContext(ctx, "console session", "remote", remote, "error", err)
	}
	slog.InfoContext(ctx, "console session closed", "remote", remote)
}

// endpoint is the part shared by every console listener.
type endpoint struct {
	host string
	port uint16
	cm   *ConnectionManager
}

func (e endpoint) addr() string {
	return net.JoinHostPort(e.host, strconv.Itoa(int(e.port)))
}

// sessionGroup ties the sessions of one listener to its lifetime. Sessions
// outlive the accept loop's context until stop is called.
type sessionGroup struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newSessionGroup() *sessionGroup {
	ctx, cancel := context.WithCancel(context.Background())
	return &sessionGroup{ctx: ctx, cancel: cancel}
}

// serve runs a console session over rw and blocks until it ends.
func (g *sessionGroup) serve(cm *ConnectionManager, rw io.ReadWriter, remote string) {
	g.wg.Add(1)
	defer g.wg.Done()
	cm.AcceptConnection(g.ctx, newCRLFReadWriter(rw), remote)
}

func (g *sessionGroup) stop() {
	g.cancel()
	g.wg.Wait()
}
