package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/session"
)

const DefaultSubjectPrefix = "tundra"

// Event types published by EventPublisher.
const (
	EventServerStarted      = "server.started"
	EventServerStopped      = "server.stopped"
	EventUserConnected      = "user.connected"
	EventUserDisconnected   = "user.disconnected"
	EventUserJoined         = "user.joined"
	EventUserLeft           = "user.left"
	EventClientConnected    = "client.connected"
	EventClientReconnected  = "client.reconnected"
	EventClientDisconnected = "client.disconnected"
	EventLoginFailed        = "client.login_failed"
	EventConnectionFailed   = "client.connection_failed"
)

// Publisher sends a payload to a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Event struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	UserID   uint8     `json:"user_id,omitempty"`
	Username string    `json:"username,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// EventPublisher turns session events into JSON messages on
// "<prefix>.<event type>" subjects.
type EventPublisher struct {
	pub    Publisher
	prefix string
	now    func() time.Time
}

type EventPublisherOpt func(*EventPublisher)

func WithSubjectPrefix(prefix string) EventPublisherOpt {
	return func(p *EventPublisher) {
		p.prefix = prefix
	}
}

func WithEventClock(now func() time.Time) EventPublisherOpt {
	return func(p *EventPublisher) {
		p.now = now
	}
}

func NewEventPublisher(pub Publisher, opts ...EventPublisherOpt) *EventPublisher {
	p := &EventPublisher{
		pub:    pub,
		prefix: DefaultSubjectPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subject returns the subject an event type is published on.
func (p *EventPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

func (p *EventPublisher) publish(ctx context.Context, ev Event) {
	ev.Time = p.now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		slog.ErrorContext(ctx, "encoding event", "type", ev.Type, "error", err)
		return
	}

	err = p.pub.Publish(p.Subject(ev.Type), data)
	switch {
	case errors.Is(err, ErrNotStarted):
		slog.DebugContext(ctx, "event bus not started, dropping event", "type", ev.Type)
	case err != nil:
		slog.WarnContext(ctx, "publishing event", "type", ev.Type, "error", err)
	}
}

func (p *EventPublisher) OnServerStarted(ctx context.Context) {
	p.publish(ctx, Event{Type: EventServerStarted})
}

func (p *EventPublisher) OnServerStopped(ctx context.Context) {
	p.publish(ctx, Event{Type: EventServerStopped})
}

func (p *EventPublisher) OnUserConnected(ctx context.Context, u *network.UserConnection, _ map[string]string) {
	p.publish(ctx, Event{Type: EventUserConnected, UserID: u.ID, Username: u.Property("username")})
}

func (p *EventPublisher) OnUserDisconnected(ctx context.Context, u *network.UserConnection) {
	p.publish(ctx, Event{Type: EventUserDisconnected, UserID: u.ID, Username: u.Property("username")})
}

func (p *EventPublisher) OnConnected(ctx context.Context, userID uint8, _ map[string]string) {
	p.publish(ctx, Event{Type: EventClientConnected, UserID: userID})
}

func (p *EventPublisher) OnReconnected(ctx context.Context, userID uint8) {
	p.publish(ctx, Event{Type: EventClientReconnected, UserID: userID})
}

func (p *EventPublisher) OnLoginFailed(ctx context.Context, reason string) {
	p.publish(ctx, Event{Type: EventLoginFailed, Reason: reason})
}

func (p *EventPublisher) OnDisconnected(ctx context.Context) {
	p.publish(ctx, Event{Type: EventClientDisconnected})
}

func (p *EventPublisher) OnClientJoined(ctx context.Context, userID uint8) {
	p.publish(ctx, Event{Type: EventUserJoined, UserID: userID})
}

func (p *EventPublisher) OnClientLeft(ctx context.Context, userID uint8) {
	p.publish(ctx, Event{Type: EventUserLeft, UserID: userID})
}

// NetworkObserver reports exhausted connection attempts. network.Observer
// and session.ServerObserver share method names, hence the adapter.
func (p *EventPublisher) NetworkObserver() network.Observer {
	return connectionEvents{p: p}
}

type connectionEvents struct {
	network.NopObserver
	p *EventPublisher
}

func (c connectionEvents) OnConnectionAttemptFailed(ctx context.Context) {
	c.p.publish(ctx, Event{Type: EventConnectionFailed})
}

var (
	_ session.ServerObserver = (*EventPublisher)(nil)
	_ session.ClientObserver = (*EventPublisher)(nil)
)
