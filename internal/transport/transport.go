package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pixil98/go-tundra/internal/protocol"
)

var (
	ErrClosed           = errors.New("connection closed")
	ErrWriteClosed      = errors.New("connection write side closed")
	ErrUnknownTransport = errors.New("unknown transport")
)

// Frame is one message as seen by a transport.
type Frame struct {
	ID       protocol.MessageID
	Data     []byte
	Reliable bool
}

// State is the lifecycle of a connection.
type State int

const (
	StatePending State = iota
	StateOK
	// StatePeerClosed means the peer closed its write side; we can still send.
	StatePeerClosed
	// StateDisconnecting means we closed our write side; we can still receive.
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOK:
		return "ok"
	case StatePeerClosed:
		return "peer-closed"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is a framed, half-closable connection. Poll never blocks; frames are
// delivered in the order they were received.
type Conn interface {
	Send(f Frame) error
	Poll() (Frame, bool)
	State() State
	IsReadOpen() bool
	IsWriteOpen() bool
	// CloseWrite closes our send direction and leaves reading open.
	CloseWrite() error
	Close() error
	RemoteAddr() string
}

type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() string
	Close() error
}

type Transport interface {
	Name() string
	Dial(ctx context.Context, addr string) (Conn, error)
	Listen(addr string) (Listener, error)
}

// Set is a collection of transports addressed by name.
type Set map[string]Transport

func NewSet(transports ...Transport) Set {
	s := Set{}
	for _, t := range transports {
		s[t.Name()] = t
	}
	return s
}

func (s Set) Get(name string) (Transport, error) {
	t, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
	}
	return t, nil
}

// Names returns the registered transport names in sorted order.
func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
