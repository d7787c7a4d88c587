package session

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/transport"
)

// Authenticator inspects a user that is about to connect. Calling u.Deny
// rejects the login.
type Authenticator interface {
	Authenticate(ctx context.Context, u *network.UserConnection)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, u *network.UserConnection)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, u *network.UserConnection) {
	f(ctx, u)
}

// ServerObserver receives server session events.
type ServerObserver interface {
	OnServerStarted(ctx context.Context)
	OnServerStopped(ctx context.Context)
	// OnUserConnected fires for an accepted login. Entries added to
	// response are returned to the client in the login reply.
	OnUserConnected(ctx context.Context, u *network.UserConnection, response map[string]string)
	OnUserDisconnected(ctx context.Context, u *network.UserConnection)
}

// NopServerObserver implements ServerObserver with no-ops and is meant for
// embedding.
type NopServerObserver struct{}

func (NopServerObserver) OnServerStarted(context.Context)                                             {}
func (NopServerObserver) OnServerStopped(context.Context)                                             {}
func (NopServerObserver) OnUserConnected(context.Context, *network.UserConnection, map[string]string) {}
func (NopServerObserver) OnUserDisconnected(context.Context, *network.UserConnection)                 {}

// Server gates user connections behind a login and keeps every
// authenticated user informed about the others.
type Server struct {
	network.NopObserver

	net            *network.Manager
	authenticators []Authenticator
	observers      []ServerObserver
}

func NewServer(m *network.Manager) *Server {
	s := &Server{net: m}
	m.AddHandler(s)
	m.AddObserver(s)
	return s
}

func (s *Server) AddAuthenticator(a Authenticator) {
	s.authenticators = append(s.authenticators, a)
}

func (s *Server) AddObserver(o ServerObserver) {
	s.observers = append(s.observers, o)
}

func (s *Server) IsRunning() bool {
	return s.net.IsServer()
}

// Start listens on port with the named transport. Failing to listen is
// fatal.
func (s *Server) Start(ctx context.Context, port uint16, protocolName string) error {
	if s.net.IsServer() {
		slog.InfoContext(ctx, "server already running", "port", s.net.ServerPort())
		return nil
	}
	if protocolName == "" {
		protocolName = s.net.DefaultTransport()
	}
	if _, err := s.net.Transports().Get(protocolName); err != nil {
		slog.WarnContext(ctx, "unknown server protocol, using default", "protocol", protocolName, "default", s.net.DefaultTransport())
		protocolName = s.net.DefaultTransport()
	}
	if err := s.net.StartServer(ctx, port, protocolName); err != nil {
		return err
	}
	for _, o := range s.observers {
		o.OnServerStarted(ctx)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if !s.net.IsServer() {
		return
	}
	s.net.StopServer(ctx)
	for _, o := range s.observers {
		o.OnServerStopped(ctx)
	}
}

// AuthenticatedUsers returns the users that completed a login.
func (s *Server) AuthenticatedUsers() []*network.UserConnection {
	return s.net.Registry().AuthenticatedUsers()
}

func (s *Server) HandleMessage(ctx context.Context, source transport.Conn, id protocol.MessageID, data []byte) {
	if !s.net.IsServer() {
		return
	}

	u := s.net.Registry().ByConn(source)
	if u == nil {
		slog.WarnContext(ctx, "dropping message from unknown connection", "message", id, "remote", source.RemoteAddr())
		return
	}

	if id != protocol.MsgLogin {
		if !u.IsAuthenticated() {
			slog.WarnContext(ctx, "dropping message from unauthenticated user", "message", id, "user", u.ID)
		}
		return
	}

	msg := &protocol.Login{}
	if err := msg.UnmarshalBinary(data); err != nil {
		slog.WarnContext(ctx, "malformed login", "user", u.ID, "error", err)
		return
	}
	s.handleLogin(ctx, u, msg)
}

func (s *Server) handleLogin(ctx context.Context, u *network.UserConnection, msg *protocol.Login) {
	u.LoginData = string(msg.LoginData)
	props, err := protocol.DecodeProperties(msg.LoginData)
	if err != nil {
		slog.WarnContext(ctx, "malformed login data", "user", u.ID, "error", err)
	}
	for k, v := range props {
		u.SetProperty(k, v)
	}
	u.SetProperty("authenticated", "true")

	for _, a := range s.authenticators {
		a.Authenticate(ctx, u)
	}

	if !u.IsAuthenticated() {
		reason := u.Property("reason")
		slog.InfoContext(ctx, "login denied", "user", u.ID, "username", u.Property("username"), "reason", reason)
		if err := u.Send(&protocol.LoginReply{Success: false, UserID: 0, Data: []byte(reason)}); err != nil {
			slog.WarnContext(ctx, "sending login reply", "user", u.ID, "error", err)
		}
		return
	}

	slog.InfoContext(ctx, "user logged in", "user", u.ID, "username", u.Property("username"))

	users := s.AuthenticatedUsers()
	network.Broadcast(users, nil, &protocol.ClientJoined{UserID: u.ID})
	for _, other := range users {
		if other == u {
			continue
		}
		if err := u.Send(&protocol.ClientJoined{UserID: other.ID}); err != nil {
			slog.WarnContext(ctx, "sending roster", "user", u.ID, "error", err)
		}
	}

	response := map[string]string{"session": uuid.NewString()}
	for _, o := range s.observers {
		o.OnUserConnected(ctx, u, response)
	}

	data, err := protocol.EncodeProperties(response)
	if err != nil {
		slog.ErrorContext(ctx, "encoding login reply", "user", u.ID, "error", err)
		data = nil
	}
	if err := u.Send(&protocol.LoginReply{Success: true, UserID: u.ID, Data: data}); err != nil {
		slog.WarnContext(ctx, "sending login reply", "user", u.ID, "error", err)
	}
}

// OnUserDisconnected tells the remaining authenticated users about a user
// that left.
func (s *Server) OnUserDisconnected(ctx context.Context, u *network.UserConnection) {
	if u.IsAuthenticated() {
		network.Broadcast(s.AuthenticatedUsers(), u, &protocol.ClientLeft{UserID: u.ID})
	}
	for _, o := range s.observers {
		o.OnUserDisconnected(ctx, u)
	}
}
