package logic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/replication"
	"github.com/pixil98/go-tundra/internal/scene"
	"github.com/pixil98/go-tundra/internal/session"
	"github.com/pixil98/go-tundra/internal/storage"
)

const DefaultSceneName = "TundraServer"

var ErrNoSceneStore = errors.New("no scene store configured")

// Startup lists what happens on the first tick.
type Startup struct {
	// Scene is loaded from the scene store before anything else.
	Scene string
	// Server starts listening on ServerPort with ServerProtocol.
	Server         bool
	ServerPort     uint16
	ServerProtocol string
	// LoginURL, a tundra:// URL, is logged into when Server is not set.
	LoginURL string
}

// SessionObserver receives both server and client session events.
type SessionObserver interface {
	session.ServerObserver
	session.ClientObserver
}

// Logic owns the scene and binds the network manager, the login sessions
// and the sync manager together. Everything runs on the tick goroutine.
type Logic struct {
	net    *network.Manager
	server *session.Server
	client *session.Client
	sync   *replication.SyncManager
	scene  *scene.Scene
	scenes *storage.FileStore[*scene.Document]

	sceneName      string
	registry       *scene.Registry
	syncOpts       []replication.SyncManagerOpt
	serverPassword string
	startup        Startup
	started        bool
}

type LogicOpt func(*Logic)

func WithSceneStore(s *storage.FileStore[*scene.Document]) LogicOpt {
	return func(l *Logic) {
		l.scenes = s
	}
}

func WithSceneName(name string) LogicOpt {
	return func(l *Logic) {
		l.sceneName = name
	}
}

func WithRegistry(r *scene.Registry) LogicOpt {
	return func(l *Logic) {
		l.registry = r
	}
}

func WithSyncOptions(opts ...replication.SyncManagerOpt) LogicOpt {
	return func(l *Logic) {
		l.syncOpts = append(l.syncOpts, opts...)
	}
}

// WithServerPassword makes the server deny logins whose password property
// does not match.
func WithServerPassword(password string) LogicOpt {
	return func(l *Logic) {
		l.serverPassword = password
	}
}

func WithStartup(s Startup) LogicOpt {
	return func(l *Logic) {
		l.startup = s
	}
}

func New(m *network.Manager, opts ...LogicOpt) (*Logic, error) {
	l := &Logic{
		net:       m,
		sceneName: DefaultSceneName,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.server = session.NewServer(m)
	l.client = session.NewClient(m)

	sm, err := replication.NewSyncManager(m, l.syncOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating sync manager: %w", err)
	}
	l.sync = sm
	l.server.AddObserver(sm)
	l.client.AddObserver(sm)

	if l.serverPassword != "" {
		l.server.AddAuthenticator(session.AuthenticatorFunc(l.checkPassword))
	}

	l.scene = scene.New(l.sceneName, l.registry)
	sm.RegisterToScene(l.scene)

	return l, nil
}

func (l *Logic) Net() *network.Manager                       { return l.net }
func (l *Logic) Server() *session.Server                     { return l.server }
func (l *Logic) Client() *session.Client                     { return l.client }
func (l *Logic) Sync() *replication.SyncManager              { return l.sync }
func (l *Logic) Scene() *scene.Scene                         { return l.scene }
func (l *Logic) Scenes() *storage.FileStore[*scene.Document] { return l.scenes }

// Observe subscribes o to server and client session events.
func (l *Logic) Observe(o SessionObserver) {
	l.server.AddObserver(o)
	l.client.AddObserver(o)
}

func (l *Logic) checkPassword(ctx context.Context, u *network.UserConnection) {
	if u.Property("password") != l.serverPassword {
		slog.InfoContext(ctx, "denying login, wrong password", "user", u.ID, "username", u.Property("username"))
		u.Deny("Wrong password")
	}
}

// Tick runs the startup actions once, then advances the network, the
// client login and replication in that order.
func (l *Logic) Tick(ctx context.Context) error {
	if !l.started {
		l.started = true
		if err := l.runStartup(ctx); err != nil {
			return fmt.Errorf("running startup: %w", err)
		}
	}

	if err := l.net.Tick(ctx); err != nil {
		return err
	}
	if err := l.client.Tick(ctx); err != nil {
		return err
	}
	return l.sync.Tick(ctx)
}

func (l *Logic) runStartup(ctx context.Context) error {
	if l.startup.Scene != "" {
		n, err := l.LoadScene(ctx, l.startup.Scene)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "loaded startup scene", "scene", l.startup.Scene, "entities", n)
	}

	switch {
	case l.startup.Server:
		return l.StartServer(ctx, l.startup.ServerPort, l.startup.ServerProtocol)
	case l.startup.LoginURL != "":
		return l.client.LoginURL(ctx, l.startup.LoginURL)
	}
	return nil
}

// StartServer logs out of any server first, then listens.
func (l *Logic) StartServer(ctx context.Context, port uint16, protocolName string) error {
	if port == 0 {
		port = network.DefaultPort
	}
	if l.client.State() != session.NotConnected {
		slog.InfoContext(ctx, "logging out before starting server")
		l.client.Logout(ctx)
	}
	return l.server.Start(ctx, port, protocolName)
}

func (l *Logic) StopServer(ctx context.Context) {
	l.server.Stop(ctx)
}

func (l *Logic) Connect(ctx context.Context, address string, port uint16, username, password, protocolName string) error {
	if port == 0 {
		port = network.DefaultPort
	}
	return l.client.Login(ctx, address, port, username, password, protocolName)
}

func (l *Logic) Disconnect(ctx context.Context) {
	l.client.Logout(ctx)
}

// SaveScene writes a snapshot of the scene. target is a file path when it
// has a document extension, otherwise a scene store identifier.
func (l *Logic) SaveScene(ctx context.Context, target string) error {
	doc := l.scene.Snapshot()

	if storage.Supported(target) {
		asset := storage.NewAsset(storage.IdentifierFromPath(target), doc)
		if err := storage.WriteFile(target, asset); err != nil {
			return fmt.Errorf("saving scene to %s: %w", target, err)
		}
	} else {
		if l.scenes == nil {
			return ErrNoSceneStore
		}
		if err := l.scenes.Save(target, doc); err != nil {
			return fmt.Errorf("saving scene %s: %w", target, err)
		}
	}

	slog.InfoContext(ctx, "saved scene", "target", target, "entities", len(doc.Entities))
	return nil
}

// LoadScene replaces the scene contents with a saved document and
// replicates the result. target follows the SaveScene rules.
func (l *Logic) LoadScene(ctx context.Context, target string) (int, error) {
	var doc *scene.Document
	if storage.Supported(target) {
		asset, err := storage.ReadFile[*scene.Document](target)
		if err != nil {
			return 0, fmt.Errorf("loading scene from %s: %w", target, err)
		}
		doc = asset.Spec
	} else {
		if l.scenes == nil {
			return 0, ErrNoSceneStore
		}
		doc = l.scenes.Get(target)
		if doc == nil {
			return 0, fmt.Errorf("scene %q not found", target)
		}
	}

	n, err := l.scene.Load(doc, true, scene.ChangeDefault)
	if err != nil {
		return n, fmt.Errorf("loading scene %s: %w", target, err)
	}
	slog.InfoContext(ctx, "loaded scene", "target", target, "entities", n)
	return n, nil
}
