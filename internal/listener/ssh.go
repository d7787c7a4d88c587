package listener

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/crypto/ssh"
)

// SshListener serves the console over ssh session channels.
type SshListener struct {
	endpoint
	hostKey  ssh.Signer
	password string
}

type SshListenerOpt func(*SshListener)

// WithSshHost binds the listener to host instead of every interface.
func WithSshHost(host string) SshListenerOpt {
	return func(l *SshListener) {
		l.host = host
	}
}

// WithSshPassword requires ssh clients to authenticate with password.
// Without it any client is accepted.
func WithSshPassword(password string) SshListenerOpt {
	return func(l *SshListener) {
		l.password = password
	}
}

func NewSshListener(port uint16, cm *ConnectionManager, hostKey ssh.Signer, opts ...SshListenerOpt) *SshListener {
	l := &SshListener{
		endpoint: endpoint{port: port, cm: cm},
		hostKey:  hostKey,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *SshListener) serverConfig() *ssh.ServerConfig {
	config := &ssh.ServerConfig{NoClientAuth: l.password == ""}
	if l.password != "" {
		want := []byte(l.password)
		config.PasswordCallback = func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if subtle.ConstantTimeCompare(pass, want) != 1 {
				return nil, fmt.Errorf("password rejected for %q", meta.User())
			}
			return nil, nil
		}
	}
	config.AddHostKey(l.hostKey)
	return config
}

func (l *SshListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr())
	if err != nil {
		return fmt.Errorf("listening for ssh console on %s: %w", l.addr(), err)
	}
	slog.InfoContext(ctx, "listening for ssh console", "addr", l.addr())

	config := l.serverConfig()
	sessions := newSessionGroup()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				sessions.stop()
				return nil
			}
			slog.WarnContext(ctx, "accepting ssh connection", "error", err)
			continue
		}
		go l.serveConn(sessions, conn, config)
	}
}

// serveConn runs one console session per shell channel the client opens.
func (l *SshListener) serveConn(sessions *sessionGroup, conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()
	ctx := sessions.ctx

	sc, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		slog.WarnContext(ctx, "ssh handshake failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)
	go func() {
		<-ctx.Done()
		sc.Close()
	}()

	remote := fmt.Sprintf("ssh:%s@%s", sc.User(), sc.RemoteAddr())
	slog.InfoContext(ctx, "ssh connection established", "remote", remote)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "only session channels are served")
			continue
		}
		ch, chReqs, err := nc.Accept()
		if err != nil {
			slog.WarnContext(ctx, "accepting ssh channel", "remote", remote, "error", err)
			continue
		}

		if waitForShell(ctx, chReqs) {
			sessions.serve(l.cm, ch, remote)
		}
		ch.Close()
	}
}

// waitForShell answers channel requests until the client asks for a shell.
// Clients only forward input after the shell reply. Pty requests are refused
// so the client keeps local echo and line editing.
func waitForShell(ctx context.Context, reqs <-chan *ssh.Request) bool {
	shell := make(chan struct{})
	go func() {
		started := false
		for req := range reqs {
			ok := req.Type == "shell" && !started
			_ = req.Reply(ok, nil)
			if ok {
				started = true
				close(shell)
			}
		}
	}()

	select {
	case <-shell:
		return true
	case <-ctx.Done():
		return false
	}
}
