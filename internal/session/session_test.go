package session

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/transport"
	"github.com/pixil98/go-tundra/internal/transport/pipe"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type clientRecorder struct {
	connected   []uint8
	reconnected []uint8
	failures    []string
	joined      []uint8
	left        []uint8
	reply       map[string]string
	disconnects int
}

func (r *clientRecorder) OnConnected(_ context.Context, id uint8, reply map[string]string) {
	r.connected = append(r.connected, id)
	r.reply = reply
}

func (r *clientRecorder) OnReconnected(_ context.Context, id uint8) {
	r.reconnected = append(r.reconnected, id)
}

func (r *clientRecorder) OnLoginFailed(_ context.Context, reason string) {
	r.failures = append(r.failures, reason)
}

func (r *clientRecorder) OnDisconnected(context.Context) { r.disconnects++ }

func (r *clientRecorder) OnClientJoined(_ context.Context, id uint8) {
	r.joined = append(r.joined, id)
}

func (r *clientRecorder) OnClientLeft(_ context.Context, id uint8) {
	r.left = append(r.left, id)
}

type serverRecorder struct {
	NopServerObserver
	usernames []string
	left      []uint8
}

func (r *serverRecorder) OnUserConnected(_ context.Context, u *network.UserConnection, response map[string]string) {
	r.usernames = append(r.usernames, u.Property("username"))
	response["motd"] = "welcome"
}

func (r *serverRecorder) OnUserDisconnected(_ context.Context, u *network.UserConnection) {
	r.left = append(r.left, u.ID)
}

type testClient struct {
	net    *network.Manager
	client *Client
	rec    *clientRecorder
}

type harness struct {
	t         *testing.T
	clock     *fakeClock
	tr        *pipe.Transport
	serverNet *network.Manager
	server    *Server
	serverRec *serverRecorder
	clients   []*testClient
}

func newManager(t *testing.T, tr *pipe.Transport, clock *fakeClock) *network.Manager {
	t.Helper()
	m, err := network.NewManager(transport.NewSet(tr),
		network.WithDefaultTransport(pipe.Name),
		network.WithClock(clock.now),
		network.WithFatalHandler(func(err error) { t.Errorf("fatal: %v", err) }),
	)
	if err != nil {
		t.Fatalf("creating manager: %v", err)
	}
	return m
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:         t,
		clock:     &fakeClock{t: time.Unix(1000, 0)},
		tr:        pipe.New(),
		serverRec: &serverRecorder{},
	}
	h.serverNet = newManager(t, h.tr, h.clock)
	h.server = NewServer(h.serverNet)
	h.server.AddObserver(h.serverRec)
	if err := h.server.Start(context.Background(), network.DefaultPort, ""); err != nil {
		t.Fatalf("starting server: %v", err)
	}
	return h
}

func (h *harness) newClient() *testClient {
	m := newManager(h.t, h.tr, h.clock)
	tc := &testClient{net: m, client: NewClient(m), rec: &clientRecorder{}}
	tc.client.AddObserver(tc.rec)
	h.clients = append(h.clients, tc)
	return tc
}

func (h *harness) tick() {
	ctx := context.Background()
	h.serverNet.Update(ctx)
	for _, c := range h.clients {
		c.net.Update(ctx)
		_ = c.client.Tick(ctx)
	}
}

func (h *harness) run(name string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.tick()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", name)
		}
		time.Sleep(time.Millisecond)
	}
}

func (tc *testClient) login(t *testing.T, user string) {
	t.Helper()
	if err := tc.client.Login(context.Background(), "", network.DefaultPort, user, "secret", ""); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func TestClientServer_Login(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	c.login(t, "alice")

	h.run("login", func() bool { return c.client.IsConnected() })

	testutil.AssertEqual(t, "connection id", c.client.ConnectionID(), uint8(1))
	testutil.AssertEqual(t, "connected events", len(c.rec.connected), 1)
	testutil.AssertEqual(t, "reply motd", c.rec.reply["motd"], "welcome")
	testutil.AssertEqual(t, "reply session", c.rec.reply["session"] != "", true)
	testutil.AssertEqual(t, "server saw username", h.serverRec.usernames[0], "alice")
	testutil.AssertEqual(t, "self joined", slices.Equal(c.rec.joined, []uint8{1}), true)

	u := h.serverNet.Registry().ByID(1)
	testutil.AssertEqual(t, "client version", u.Property("client-version"), ClientVersion)
	testutil.AssertEqual(t, "authenticated", u.IsAuthenticated(), true)
}

func TestClientServer_Denied(t *testing.T) {
	h := newHarness(t)
	h.server.AddAuthenticator(AuthenticatorFunc(func(_ context.Context, u *network.UserConnection) {
		if u.Property("username") == "mallory" {
			u.Deny("banned")
		}
	}))
	c := h.newClient()
	c.login(t, "mallory")

	h.run("denial", func() bool { return len(c.rec.failures) > 0 })

	testutil.AssertEqual(t, "reason", c.rec.failures[0], "banned")
	testutil.AssertEqual(t, "state", c.client.State(), NotConnected)
	testutil.AssertEqual(t, "failure property", c.client.LoginProperty("LoginFailed"), "banned")
	testutil.AssertEqual(t, "no join broadcast", len(c.rec.joined), 0)
}

func TestClientServer_JoinAndLeave(t *testing.T) {
	h := newHarness(t)
	first := h.newClient()
	first.login(t, "alice")
	h.run("first login", func() bool { return first.client.IsConnected() })

	second := h.newClient()
	second.login(t, "bob")
	h.run("second login", func() bool { return second.client.IsConnected() })
	h.run("roster", func() bool { return len(first.rec.joined) == 2 && len(second.rec.joined) == 2 })

	testutil.AssertEqual(t, "first saw", slices.Equal(first.rec.joined, []uint8{1, 2}), true)
	// the new user hears about itself first, then about the existing users
	testutil.AssertEqual(t, "second saw", slices.Equal(second.rec.joined, []uint8{2, 1}), true)

	second.client.Logout(context.Background())
	h.run("leave", func() bool { return len(first.rec.left) == 1 })

	testutil.AssertEqual(t, "left id", first.rec.left[0], uint8(2))
	testutil.AssertEqual(t, "server observer", slices.Equal(h.serverRec.left, []uint8{2}), true)
	testutil.AssertEqual(t, "logout clears properties", len(second.client.LoginProperties()), 0)
}

func TestClient_ConnectionAttemptFailed(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	if err := c.client.Login(context.Background(), "nowhere", 2346, "alice", "", ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	for i := 0; i < 4 && len(c.rec.failures) == 0; i++ {
		h.run("dial settles", func() bool { return c.net.ClientState() != transport.StatePending })
		h.clock.advance(network.DefaultReconnectInterval)
		h.tick()
	}

	testutil.AssertEqual(t, "failures", len(c.rec.failures), 1)
	testutil.AssertEqual(t, "reason", c.rec.failures[0], "Could not connect to host nowhere:2346 with PIPE")
	testutil.AssertEqual(t, "state", c.client.State(), NotConnected)
	testutil.AssertEqual(t, "properties kept", c.client.LoginProperty("username"), "alice")
}

func TestClient_Reconnect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.newClient()
	c.login(t, "alice")
	h.run("login", func() bool { return c.client.IsConnected() })

	h.server.Stop(ctx)
	h.run("connection lost", func() bool { return c.client.State() == ConnectionPending })

	if err := h.server.Start(ctx, network.DefaultPort, ""); err != nil {
		t.Fatalf("restarting server: %v", err)
	}
	h.clock.advance(network.DefaultReconnectInterval)
	h.run("relogin", func() bool { return c.client.IsConnected() })

	testutil.AssertEqual(t, "connected once", len(c.rec.connected), 1)
	testutil.AssertEqual(t, "reconnected", len(c.rec.reconnected), 1)
}

func TestClient_SetLoginProperty(t *testing.T) {
	h := newHarness(t)
	c := h.newClient().client

	if err := c.SetLoginProperty(" avatar ", "  robot "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "trimmed", c.LoginProperty("avatar"), "robot")

	if err := c.SetLoginProperty("avatar", "   "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, ok := c.LoginProperties()["avatar"]
	testutil.AssertEqual(t, "erased", ok, false)
}

func TestClient_SetLoginPropertyInvalidKey(t *testing.T) {
	tests := map[string]struct {
		key string
	}{
		"space":         {key: "my key"},
		"leading digit": {key: "9lives"},
		"markup":        {key: "<x>"},
		"blank":         {key: "   "},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			c := h.newClient().client

			err := c.SetLoginProperty(tt.key, "value")
			if !errors.Is(err, protocol.ErrInvalidPropertyKey) {
				t.Fatalf("expected ErrInvalidPropertyKey, got %v", err)
			}
			testutil.AssertEqual(t, "nothing stored", len(c.LoginProperties()), 0)
		})
	}
}

func TestClient_LoginURLInvalidKey(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()

	err := c.client.LoginURL(context.Background(), "tundra://localhost:2345/?username=carol&my+key=fox")
	if !errors.Is(err, protocol.ErrInvalidPropertyKey) {
		t.Fatalf("expected ErrInvalidPropertyKey, got %v", err)
	}
	testutil.AssertEqual(t, "state", c.client.State(), NotConnected)
	testutil.AssertEqual(t, "no dial", h.tr.Dials(), 0)
}

func TestClient_UnencodablePropertiesFailLogin(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()
	c.login(t, "alice")
	c.client.properties["my key"] = "bad"

	h.run("failure", func() bool { return len(c.rec.failures) > 0 })

	testutil.AssertEqual(t, "state", c.client.State(), NotConnected)
	testutil.AssertEqual(t, "disconnected", c.rec.disconnects, 1)
	testutil.AssertEqual(t, "failure property", c.client.LoginProperty("LoginFailed") != "", true)
	testutil.AssertEqual(t, "never logged in", len(c.rec.connected), 0)
	testutil.AssertEqual(t, "properties kept", c.client.LoginProperty("username"), "alice")
}

func TestClient_LoginURL(t *testing.T) {
	h := newHarness(t)
	c := h.newClient()

	err := c.client.LoginURL(context.Background(), "tundra://localhost:2345/?username=carol&password=pw&protocol=PIPE&avatar=fox")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "username", c.client.LoginProperty("username"), "carol")
	testutil.AssertEqual(t, "protocol", c.client.LoginProperty("protocol"), "pipe")
	testutil.AssertEqual(t, "extra property", c.client.LoginProperty("avatar"), "fox")
	testutil.AssertEqual(t, "state", c.client.State(), ConnectionPending)
}

func TestClient_LoginWhileServing(t *testing.T) {
	h := newHarness(t)
	err := NewClient(h.serverNet).Login(context.Background(), "", 2345, "x", "", "")
	testutil.AssertEqual(t, "error", err, ErrServerRunning)
}
