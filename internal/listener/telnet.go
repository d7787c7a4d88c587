package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"

	"github.com/iammegalith/telnet"
)

// TelnetListener serves the console over plain telnet.
type TelnetListener struct {
	endpoint
}

type TelnetListenerOpt func(*TelnetListener)

// WithTelnetHost binds the listener to host instead of every interface.
func WithTelnetHost(host string) TelnetListenerOpt {
	return func(l *TelnetListener) {
		l.host = host
	}
}

func NewTelnetListener(port uint16, cm *ConnectionManager, opts ...TelnetListenerOpt) *TelnetListener {
	l := &TelnetListener{endpoint: endpoint{port: port, cm: cm}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *TelnetListener) Start(ctx context.Context) error {
	sessions := newSessionGroup()
	handler := telnetSessions{
		group:  sessions,
		cm:     l.cm,
		remote: "telnet:" + l.addr(),
	}
	svr := telnet.NewServer(l.addr(), handler)

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			svr.Stop()
			sessions.stop()
		case <-stopped:
		}
	}()

	slog.InfoContext(ctx, "listening for telnet console", "addr", l.addr())

	err := svr.ListenAndServe()
	switch {
	case err == nil, ctx.Err() != nil:
		return nil
	case errors.Is(err, syscall.EADDRINUSE):
		return fmt.Errorf("telnet console address %s is already in use", l.addr())
	default:
		return fmt.Errorf("serving telnet console on %s: %w", l.addr(), err)
	}
}

type telnetSessions struct {
	group  *sessionGroup
	cm     *ConnectionManager
	remote string
}

func (h telnetSessions) HandleTelnet(conn *telnet.Connection) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.DebugContext(h.group.ctx, "closing telnet connection", "error", err)
		}
	}()
	h.group.serve(h.cm, conn, h.remote)
}
