package logic

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"github.com/pixil98/go-tundra/internal/console"
	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/replication"
	"github.com/pixil98/go-tundra/internal/scene"
	"github.com/pixil98/go-tundra/internal/session"
	"github.com/pixil98/go-tundra/internal/storage"
	"github.com/pixil98/go-tundra/internal/transport"
	"github.com/pixil98/go-tundra/internal/transport/pipe"
)

var nameType = scene.TypeIDOf("EC_Name")

func newTestLogic(t *testing.T, tr *pipe.Transport, opts ...LogicOpt) *Logic {
	t.Helper()
	m, err := network.NewManager(transport.NewSet(tr),
		network.WithDefaultTransport(pipe.Name),
		network.WithFatalHandler(func(err error) { t.Errorf("fatal: %v", err) }),
	)
	if err != nil {
		t.Fatalf("creating manager: %v", err)
	}
	opts = append([]LogicOpt{WithSyncOptions(replication.WithUpdatePeriod(replication.MinUpdatePeriod))}, opts...)
	l, err := New(m, opts...)
	if err != nil {
		t.Fatalf("creating logic: %v", err)
	}
	return l
}

func newTestStore(t *testing.T) *storage.FileStore[*scene.Document] {
	t.Helper()
	s, err := storage.NewFileStore[*scene.Document](t.TempDir())
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return s
}

func tickUntil(t *testing.T, name string, nodes []*Logic, cond func() bool) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for {
		for _, n := range nodes {
			if err := n.Tick(ctx); err != nil {
				t.Fatalf("tick: %v", err)
			}
		}
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", name)
		}
		time.Sleep(time.Millisecond)
	}
}

func nameOf(s *scene.Scene, id scene.EntityID) string {
	e := s.Entity(id)
	if e == nil {
		return ""
	}
	c := e.Component(nameType, "")
	if c == nil {
		return ""
	}
	v, _ := c.AttributeValue("name")
	return v
}

func addNamed(t *testing.T, s *scene.Scene, id scene.EntityID, name string) {
	t.Helper()
	e, err := s.CreateEntity(id, scene.ChangeReplicate)
	if err != nil {
		t.Fatalf("creating entity: %v", err)
	}
	c, err := e.GetOrCreateComponent(nameType, "", scene.ChangeReplicate)
	if err != nil {
		t.Fatalf("creating component: %v", err)
	}
	if err := c.SetAttribute(0, name, scene.ChangeReplicate); err != nil {
		t.Fatalf("setting name: %v", err)
	}
}

func commandHandler(t *testing.T, l *Logic) *console.Handler {
	t.Helper()
	h := console.NewHandler()
	if err := h.Register(l.Commands()...); err != nil {
		t.Fatalf("registering commands: %v", err)
	}
	return h
}

func TestLogic_StartupServesSceneToClient(t *testing.T) {
	tr := pipe.New()
	store := newTestStore(t)
	err := store.Save("lobby", &scene.Document{Entities: []scene.EntityDocument{{
		ID: 5,
		Components: []scene.ComponentDocument{{
			Type:       "EC_Name",
			Attributes: []scene.Attribute{{Name: "name", Value: "fountain"}},
		}},
	}}})
	if err != nil {
		t.Fatalf("saving scene: %v", err)
	}

	server := newTestLogic(t, tr, WithSceneStore(store), WithStartup(Startup{Scene: "lobby", Server: true}))
	client := newTestLogic(t, tr, WithSceneName("viewer"), WithStartup(Startup{
		LoginURL: "tundra://localhost:2345/?username=bob&protocol=pipe",
	}))
	nodes := []*Logic{server, client}

	tickUntil(t, "bootstrap", nodes, func() bool { return nameOf(client.Scene(), 5) == "fountain" })

	st := server.Status()
	testutil.AssertEqual(t, "serving", st.Server, true)
	testutil.AssertEqual(t, "port", st.Port, uint16(network.DefaultPort))
	testutil.AssertEqual(t, "users", len(st.Users), 1)
	testutil.AssertEqual(t, "user", st.Users[0], UserStatus{ID: 1, Name: "bob"})

	out, err := commandHandler(t, server).Exec(context.Background(), "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{
		`Scene "TundraServer" holds 1 entity.`,
		"Server listening on port 2345 (PIPE) with 1 user.",
		"[1] bob",
		"Sync period 10ms.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("server status %q does not contain %q", out, want)
		}
	}

	out, err = commandHandler(t, client).Exec(context.Background(), "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if want := "Client logged in, target localhost:2345 (pipe), user 1."; !strings.Contains(out, want) {
		t.Errorf("client status %q does not contain %q", out, want)
	}

	addNamed(t, client.Scene(), 0, "bench")
	tickUntil(t, "client edit", nodes, func() bool { return nameOf(server.Scene(), 1) == "bench" })
}

func TestLogic_Commands(t *testing.T) {
	tr := pipe.New()
	l := newTestLogic(t, tr)
	h := commandHandler(t, l)

	steps := []struct {
		line   string
		exp    string
		expErr string
	}{
		{line: "status", exp: "Client not connected."},
		{line: "startserver 70000", expErr: "Port 70000 is out of range."},
		{line: "startserver(2345, pipe)", exp: "Server started on port 2345 (PIPE)."},
		{line: "startserver", expErr: "Server already running on port 2345."},
		{line: "connect localhost", expErr: "Cannot connect: cannot log in while running a server."},
		{line: "stopserver", exp: "Server stopped."},
		{line: "stopserver", expErr: "Server is not running."},
		{line: "connect nowhere 2400 alice pw pipe", exp: "Connecting to nowhere:2400 (pipe)."},
		{line: "connect nowhere 2400 alice pw carrier-pigeon", expErr: "Cannot connect:"},
		{line: "disconnect", exp: "Disconnected."},
		{line: "syncperiod 5", exp: "Sync period is 10ms."},
		{line: "syncperiod 100", exp: "Sync period is 100ms."},
		{line: "syncperiod 0", expErr: "The period must be positive."},
		{line: "scenes", expErr: "No scene store is configured."},
		{line: "loadscene lobby", expErr: "no scene store configured"},
	}

	for _, step := range steps {
		out, err := h.Exec(context.Background(), step.line)
		if step.expErr != "" {
			testutil.AssertErrorContains(t, err, step.expErr)
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", step.line, err)
		}
		if !strings.Contains(out, step.exp) {
			t.Errorf("%s: output %q does not contain %q", step.line, out, step.exp)
		}
	}
}

func TestLogic_SaveAndLoadScene(t *testing.T) {
	l := newTestLogic(t, pipe.New(), WithSceneStore(newTestStore(t)))
	h := commandHandler(t, l)
	ctx := context.Background()
	addNamed(t, l.Scene(), 1, "tree")
	addNamed(t, l.Scene(), 2, "rock")

	exec := func(line string) string {
		t.Helper()
		out, err := h.Exec(ctx, line)
		if err != nil {
			t.Fatalf("%s: %v", line, err)
		}
		return out
	}

	testutil.AssertEqual(t, "save", exec("savescene forest"), "Saved 2 entities to forest.")
	testutil.AssertEqual(t, "list", exec("scenes"), "Saved scenes: forest")

	file := filepath.Join(t.TempDir(), "export.yaml.zst")
	exec("savescene " + file)

	l.Scene().RemoveEntity(2, scene.ChangeReplicate)
	addNamed(t, l.Scene(), 3, "stump")

	testutil.AssertEqual(t, "load store", exec("loadscene forest"), "Loaded 2 entities from forest.")
	testutil.AssertEqual(t, "rock back", nameOf(l.Scene(), 2), "rock")
	testutil.AssertEqual(t, "stump gone", l.Scene().Entity(3) == nil, true)

	l.Scene().RemoveAllEntities(scene.ChangeReplicate, false)
	exec("loadscene " + file)
	testutil.AssertEqual(t, "tree from file", nameOf(l.Scene(), 1), "tree")
	testutil.AssertEqual(t, "entities", l.Scene().Len(), 2)

	_, err := h.Exec(ctx, "loadscene missing")
	testutil.AssertErrorContains(t, err, `scene "missing" not found`)
}

func TestLogic_ServerPassword(t *testing.T) {
	tr := pipe.New()
	server := newTestLogic(t, tr, WithServerPassword("open-sesame"), WithStartup(Startup{Server: true}))
	client := newTestLogic(t, tr)
	nodes := []*Logic{server, client}
	ctx := context.Background()

	tickUntil(t, "server up", nodes, func() bool { return server.Server().IsRunning() })

	if err := client.Connect(ctx, "localhost", 0, "eve", "guess", ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	tickUntil(t, "denied", nodes, func() bool { return client.Client().LoginProperty("LoginFailed") != "" })
	testutil.AssertEqual(t, "reason", client.Client().LoginProperty("LoginFailed"), "Wrong password")
	testutil.AssertEqual(t, "state", client.Client().State(), session.NotConnected)

	if err := client.Connect(ctx, "localhost", 0, "eve", "open-sesame", ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	tickUntil(t, "accepted", nodes, func() bool { return client.Client().IsConnected() })
}

func TestLogic_StartServerLogsOutClient(t *testing.T) {
	tr := pipe.New()
	server := newTestLogic(t, tr, WithStartup(Startup{Server: true}))
	peer := newTestLogic(t, tr, WithStartup(Startup{LoginURL: "tundra://localhost/?username=pat"}))
	nodes := []*Logic{server, peer}
	ctx := context.Background()

	tickUntil(t, "login", nodes, func() bool { return peer.Client().IsConnected() })

	if err := peer.StartServer(ctx, 2400, ""); err != nil {
		t.Fatalf("starting server: %v", err)
	}
	testutil.AssertEqual(t, "logged out", peer.Client().State(), session.NotConnected)
	testutil.AssertEqual(t, "serving", peer.Server().IsRunning(), true)
	tickUntil(t, "user dropped", nodes, func() bool { return len(server.Server().AuthenticatedUsers()) == 0 })
}
