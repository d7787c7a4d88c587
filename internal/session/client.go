package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/transport"
)

const (
	ClientName    = "tundra"
	ClientVersion = "2.5.4"
)

var ErrServerRunning = errors.New("cannot log in while running a server")

// LoginState is the client's progress through connecting and logging in.
type LoginState int

const (
	NotConnected LoginState = iota
	ConnectionPending
	ConnectionEstablished
	LoggedIn
)

func (s LoginState) String() string {
	switch s {
	case NotConnected:
		return "not connected"
	case ConnectionPending:
		return "connection pending"
	case ConnectionEstablished:
		return "connection established"
	case LoggedIn:
		return "logged in"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ClientObserver receives client session events.
type ClientObserver interface {
	// OnConnected fires after the first successful login reply.
	OnConnected(ctx context.Context, userID uint8, reply map[string]string)
	// OnReconnected fires after a login reply that follows a dropped
	// connection.
	OnReconnected(ctx context.Context, userID uint8)
	OnLoginFailed(ctx context.Context, reason string)
	OnDisconnected(ctx context.Context)
	OnClientJoined(ctx context.Context, userID uint8)
	OnClientLeft(ctx context.Context, userID uint8)
}

// NopClientObserver implements ClientObserver with no-ops and is meant for
// embedding.
type NopClientObserver struct{}

func (NopClientObserver) OnConnected(context.Context, uint8, map[string]string) {}
func (NopClientObserver) OnReconnected(context.Context, uint8)                  {}
func (NopClientObserver) OnLoginFailed(context.Context, string)                 {}
func (NopClientObserver) OnDisconnected(context.Context)                        {}
func (NopClientObserver) OnClientJoined(context.Context, uint8)                 {}
func (NopClientObserver) OnClientLeft(context.Context, uint8)                   {}

// Client drives the login state machine on top of the network manager.
type Client struct {
	network.NopObserver

	net        *network.Manager
	observers  []ClientObserver
	state      LoginState
	reconnect  bool
	clientID   uint8
	properties map[string]string
}

func NewClient(m *network.Manager) *Client {
	c := &Client{
		net:        m,
		properties: map[string]string{},
	}
	m.AddHandler(c)
	m.AddObserver(c)
	return c
}

func (c *Client) AddObserver(o ClientObserver) {
	c.observers = append(c.observers, o)
}

func (c *Client) State() LoginState   { return c.state }
func (c *Client) IsConnected() bool   { return c.state == LoggedIn }
func (c *Client) ConnectionID() uint8 { return c.clientID }

// Login stores the login properties and starts connecting.
func (c *Client) Login(ctx context.Context, address string, port uint16, username, password, protocolName string) error {
	if c.net.IsServer() {
		return ErrServerRunning
	}
	if protocolName == "" {
		protocolName = c.net.DefaultTransport()
	}
	if _, err := c.net.Transports().Get(protocolName); err != nil {
		return err
	}
	if c.state != NotConnected {
		c.doLogout(ctx, false)
	}

	c.setProperty("username", username)
	c.setProperty("password", password)
	c.setProperty("protocol", protocolName)
	c.setProperty("address", address)
	c.setProperty("port", strconv.Itoa(int(port)))
	c.setProperty("client-version", ClientVersion)
	c.setProperty("client-name", ClientName)

	return c.login(ctx, address, port, protocolName)
}

// LoginURL logs in using tundra://host:port/?username=..&password=..&protocol=..
// Any other query parameter becomes a login property.
func (c *Client) LoginURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing login url: %w", err)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("login url %q has no host", raw)
	}
	port := uint16(network.DefaultPort)
	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return fmt.Errorf("parsing login url port: %w", err)
		}
		port = uint16(n)
	}

	q := u.Query()
	extra := map[string]string{}
	for key := range q {
		switch key {
		case "username", "password", "protocol":
		default:
			if !protocol.ValidPropertyKey(strings.TrimSpace(key)) {
				return fmt.Errorf("login url parameter: %w: %q", protocol.ErrInvalidPropertyKey, key)
			}
			extra[key] = q.Get(key)
		}
	}
	username := q.Get("username")
	if username == "" && u.User != nil {
		username = u.User.Username()
	}

	if c.state != NotConnected {
		c.doLogout(ctx, false)
	}
	for key, value := range extra {
		c.setProperty(key, value)
	}
	return c.Login(ctx, u.Hostname(), port, username, q.Get("password"), strings.ToLower(q.Get("protocol")))
}

func (c *Client) login(ctx context.Context, address string, port uint16, protocolName string) error {
	c.reconnect = false
	delete(c.properties, "LoginFailed")
	if err := c.net.Connect(address, port, protocolName); err != nil {
		return err
	}
	c.state = ConnectionPending
	slog.InfoContext(ctx, "logging in", "address", address, "port", port, "protocol", protocolName)
	return nil
}

// Logout disconnects and forgets the login properties.
func (c *Client) Logout(ctx context.Context) {
	c.doLogout(ctx, false)
}

func (c *Client) doLogout(ctx context.Context, fail bool) {
	if c.state != NotConnected {
		c.net.Disconnect()
		c.state = NotConnected
		c.clientID = 0
		slog.InfoContext(ctx, "disconnected")
		for _, o := range c.observers {
			o.OnDisconnected(ctx)
		}
	}
	c.reconnect = false
	if !fail {
		clear(c.properties)
	}
}

// SetLoginProperty trims key and value. An empty value removes the key.
// Keys that cannot be sent to the server are rejected with
// protocol.ErrInvalidPropertyKey.
func (c *Client) SetLoginProperty(key, value string) error {
	if !protocol.ValidPropertyKey(strings.TrimSpace(key)) {
		return fmt.Errorf("%w: %q", protocol.ErrInvalidPropertyKey, key)
	}
	c.setProperty(key, value)
	return nil
}

func (c *Client) setProperty(key, value string) {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if value == "" {
		delete(c.properties, key)
		return
	}
	c.properties[key] = value
}

func (c *Client) LoginProperty(key string) string {
	return c.properties[strings.TrimSpace(key)]
}

func (c *Client) LoginProperties() map[string]string {
	out := make(map[string]string, len(c.properties))
	for k, v := range c.properties {
		out[k] = v
	}
	return out
}

// Tick advances the login state machine. Run it after the network manager.
func (c *Client) Tick(ctx context.Context) error {
	c.checkLogin(ctx)
	return nil
}

func (c *Client) checkLogin(ctx context.Context) {
	connState := c.net.ClientState()
	switch c.state {
	case ConnectionPending:
		if connState != transport.StateOK {
			return
		}
		c.state = ConnectionEstablished
		data, err := protocol.EncodeProperties(c.properties)
		if err != nil {
			slog.ErrorContext(ctx, "encoding login properties", "error", err)
			c.failLogin(ctx, fmt.Sprintf("Could not encode login properties: %v", err))
			return
		}
		if err := network.Send(c.net.ServerConnection(), &protocol.Login{LoginData: data}); err != nil {
			slog.WarnContext(ctx, "sending login", "error", err)
		}
	case ConnectionEstablished, LoggedIn:
		if connState != transport.StateOK {
			slog.InfoContext(ctx, "connection to server lost, waiting to reconnect")
			c.state = ConnectionPending
		}
	}
}

// OnConnectionAttemptFailed gives up after the network manager runs out of
// retries.
func (c *Client) OnConnectionAttemptFailed(ctx context.Context) {
	reason := fmt.Sprintf("Could not connect to host %s:%s with %s",
		c.properties["address"], c.properties["port"], strings.ToUpper(c.properties["protocol"]))
	c.failLogin(ctx, reason)
}

// failLogin records reason, notifies observers and drops the connection
// while keeping the login properties.
func (c *Client) failLogin(ctx context.Context, reason string) {
	c.properties["LoginFailed"] = reason
	slog.WarnContext(ctx, "login failed", "reason", reason)
	for _, o := range c.observers {
		o.OnLoginFailed(ctx, reason)
	}
	c.doLogout(ctx, true)
}

func (c *Client) HandleMessage(ctx context.Context, source transport.Conn, id protocol.MessageID, data []byte) {
	if c.net.IsServer() || source != c.net.ServerConnection() {
		return
	}

	switch id {
	case protocol.MsgLoginReply:
		msg := &protocol.LoginReply{}
		if err := msg.UnmarshalBinary(data); err != nil {
			slog.WarnContext(ctx, "malformed login reply", "error", err)
			return
		}
		c.handleLoginReply(ctx, msg)
	case protocol.MsgClientJoined:
		msg := &protocol.ClientJoined{}
		if err := msg.UnmarshalBinary(data); err != nil {
			slog.WarnContext(ctx, "malformed client joined", "error", err)
			return
		}
		for _, o := range c.observers {
			o.OnClientJoined(ctx, msg.UserID)
		}
	case protocol.MsgClientLeft:
		msg := &protocol.ClientLeft{}
		if err := msg.UnmarshalBinary(data); err != nil {
			slog.WarnContext(ctx, "malformed client left", "error", err)
			return
		}
		for _, o := range c.observers {
			o.OnClientLeft(ctx, msg.UserID)
		}
	}
}

func (c *Client) handleLoginReply(ctx context.Context, msg *protocol.LoginReply) {
	if !msg.Success {
		reason := string(msg.Data)
		if reason == "" {
			reason = "Login denied"
		}
		slog.WarnContext(ctx, "login denied", "reason", reason)
		c.failLogin(ctx, reason)
		return
	}

	c.state = LoggedIn
	c.clientID = msg.UserID
	slog.InfoContext(ctx, "logged in", "user", msg.UserID)

	if c.reconnect {
		for _, o := range c.observers {
			o.OnReconnected(ctx, msg.UserID)
		}
		return
	}

	reply, err := protocol.DecodeProperties(msg.Data)
	if err != nil {
		slog.WarnContext(ctx, "malformed login reply data", "error", err)
	}
	c.reconnect = true
	for _, o := range c.observers {
		o.OnConnected(ctx, msg.UserID, reply)
	}
}
