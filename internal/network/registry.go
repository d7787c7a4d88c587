package network

import (
	"errors"
	"log/slog"
	"math"
	"slices"

	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/syncstate"
	"github.com/pixil98/go-tundra/internal/transport"
)

var ErrNoFreeID = errors.New("no free connection id")

const propAuthenticated = "authenticated"

// UserConnection is one connected peer as seen by the server.
type UserConnection struct {
	ID         uint8
	Conn       transport.Conn
	LoginData  string
	Properties map[string]string
	SyncState  *syncstate.SceneSyncState
}

func (u *UserConnection) Property(key string) string {
	return u.Properties[key]
}

func (u *UserConnection) SetProperty(key, value string) {
	u.Properties[key] = value
}

func (u *UserConnection) IsAuthenticated() bool {
	return u.Properties[propAuthenticated] == "true"
}

// Deny marks the user unauthenticated. A non-empty reason is returned to
// the client in the login reply.
func (u *UserConnection) Deny(reason string) {
	u.Properties[propAuthenticated] = "false"
	if reason != "" {
		u.Properties["reason"] = reason
	}
}

func (u *UserConnection) Send(msg protocol.Message) error {
	return Send(u.Conn, msg)
}

// Registry holds the server's user connections. Lookups are linear; the ID
// space is a single byte.
type Registry struct {
	conns []*UserConnection
}

func NewRegistry() *Registry {
	return &Registry{}
}

// NewConnectionEstablished records c under a fresh connection ID.
func (r *Registry) NewConnectionEstablished(c transport.Conn) (*UserConnection, error) {
	id, err := r.allocateID()
	if err != nil {
		return nil, err
	}
	u := &UserConnection{
		ID:         id,
		Conn:       c,
		Properties: map[string]string{},
	}
	r.conns = append(r.conns, u)
	return u, nil
}

// allocateID returns one more than the highest ID in use, starting at 1.
func (r *Registry) allocateID() (uint8, error) {
	highest := 0
	for _, u := range r.conns {
		highest = max(highest, int(u.ID))
	}
	if highest >= math.MaxUint8 {
		return 0, ErrNoFreeID
	}
	return uint8(highest + 1), nil
}

// ClientDisconnected forgets the user owning c and returns it, or nil if c
// belongs to no user.
func (r *Registry) ClientDisconnected(c transport.Conn) *UserConnection {
	for i, u := range r.conns {
		if u.Conn == c {
			r.conns = slices.Delete(r.conns, i, i+1)
			return u
		}
	}
	slog.Warn("unknown user disconnected", "remote", c.RemoteAddr())
	return nil
}

func (r *Registry) ByConn(c transport.Conn) *UserConnection {
	for _, u := range r.conns {
		if u.Conn == c {
			return u
		}
	}
	return nil
}

func (r *Registry) ByID(id uint8) *UserConnection {
	for _, u := range r.conns {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// All returns the users in connection order.
func (r *Registry) All() []*UserConnection {
	return slices.Clone(r.conns)
}

func (r *Registry) AuthenticatedUsers() []*UserConnection {
	var out []*UserConnection
	for _, u := range r.conns {
		if u.IsAuthenticated() {
			out = append(out, u)
		}
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.conns)
}

func (r *Registry) Clear() {
	r.conns = nil
}

// Send encodes msg and writes it to c.
func Send(c transport.Conn, msg protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	return c.Send(transport.Frame{
		ID:       msg.MessageID(),
		Data:     data,
		Reliable: protocol.InfoFor(msg.MessageID()).Reliable,
	})
}

// Broadcast sends msg to every user except skip, which may be nil. Failures
// are logged and do not stop the broadcast.
func Broadcast(users []*UserConnection, skip *UserConnection, msg protocol.Message) {
	for _, u := range users {
		if u == skip {
			continue
		}
		if err := u.Send(msg); err != nil {
			slog.Warn("sending message", "message", msg.MessageID(), "user", u.ID, "error", err)
		}
	}
}
