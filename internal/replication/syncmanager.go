// Package replication keeps a scene consistent between a server and its
// clients. Changes are tracked per peer and flushed on a fixed period.
package replication

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/scene"
	"github.com/pixil98/go-tundra/internal/session"
	"github.com/pixil98/go-tundra/internal/syncstate"
	"github.com/pixil98/go-tundra/internal/transport"
)

const (
	DefaultUpdatePeriod = 40 * time.Millisecond
	MinUpdatePeriod     = 10 * time.Millisecond
)

// SyncManager observes a scene and replicates its changes. On a server it
// keeps one sync state per authenticated user; on a client it keeps a single
// state describing what the server knows.
type SyncManager struct {
	session.NopServerObserver

	net         *network.Manager
	scene       *scene.Scene
	codec       scene.Codec
	serverState *syncstate.SceneSyncState
	loggedIn    bool

	period time.Duration
	acc    time.Duration
	now    func() time.Time
	last   time.Time

	actionSender *network.UserConnection
	metrics      *metrics
}

var (
	_ scene.Observer         = (*SyncManager)(nil)
	_ network.MessageHandler = (*SyncManager)(nil)
	_ session.ServerObserver = (*SyncManager)(nil)
	_ session.ClientObserver = (*SyncManager)(nil)
)

func NewSyncManager(m *network.Manager, opts ...SyncManagerOpt) (*SyncManager, error) {
	sm := &SyncManager{
		net:         m,
		codec:       scene.BinaryCodec{},
		serverState: syncstate.New(),
		period:      DefaultUpdatePeriod,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(sm)
	}

	mt, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating sync metrics: %w", err)
	}
	sm.metrics = mt

	m.AddHandler(sm)
	return sm, nil
}

// SetUpdatePeriod sets how often dirty state is flushed. Periods below
// MinUpdatePeriod are raised to it.
func (sm *SyncManager) SetUpdatePeriod(d time.Duration) {
	if d < MinUpdatePeriod {
		d = MinUpdatePeriod
	}
	sm.period = d
}

func (sm *SyncManager) UpdatePeriod() time.Duration            { return sm.period }
func (sm *SyncManager) Scene() *scene.Scene                    { return sm.scene }
func (sm *SyncManager) ServerState() *syncstate.SceneSyncState { return sm.serverState }

// ActionSender returns the user whose EntityAction is being executed, or nil
// outside of a relayed action.
func (sm *SyncManager) ActionSender() *network.UserConnection {
	return sm.actionSender
}

// RegisterToScene binds the manager to s and resets all replication state.
// Connected users are reseeded with the whole of s.
func (sm *SyncManager) RegisterToScene(s *scene.Scene) {
	if sm.scene != nil {
		sm.scene.RemoveObserver(sm)
	}
	sm.scene = s
	sm.serverState.Clear()
	sm.acc = 0

	for _, u := range sm.net.Registry().All() {
		if u.SyncState == nil {
			continue
		}
		u.SyncState.Clear()
		sm.seed(u.SyncState)
	}
	if s != nil {
		s.AddObserver(sm)
	}
}

// NewUserConnected gives u a fresh sync state in which every replicated
// entity is dirty, so the first flush sends the whole scene.
func (sm *SyncManager) NewUserConnected(ctx context.Context, u *network.UserConnection) {
	u.SyncState = syncstate.New()
	n := sm.seed(u.SyncState)
	slog.InfoContext(ctx, "queued scene for new user", "user", u.ID, "entities", n)
}

func (sm *SyncManager) seed(state *syncstate.SceneSyncState) int {
	if sm.scene == nil {
		return 0
	}
	n := 0
	for _, e := range sm.scene.Entities() {
		if e.IsLocal() {
			continue
		}
		state.OnEntityChanged(e.ID())
		n++
	}
	return n
}

func (sm *SyncManager) OnUserConnected(ctx context.Context, u *network.UserConnection, _ map[string]string) {
	sm.NewUserConnected(ctx, u)
}

func (sm *SyncManager) OnUserDisconnected(_ context.Context, u *network.UserConnection) {
	u.SyncState = nil
}

// OnConnected starts replicating to a freshly logged in server.
func (sm *SyncManager) OnConnected(context.Context, uint8, map[string]string) {
	sm.serverState.Clear()
	sm.loggedIn = true
}

// OnReconnected drops replicated entities; the server sends its whole scene
// again after a reconnect.
func (sm *SyncManager) OnReconnected(ctx context.Context, _ uint8) {
	sm.clearReplicated(ctx)
	sm.loggedIn = true
}

func (sm *SyncManager) OnLoginFailed(context.Context, string) {
	sm.loggedIn = false
}

func (sm *SyncManager) OnDisconnected(ctx context.Context) {
	sm.clearReplicated(ctx)
	sm.loggedIn = false
}

func (sm *SyncManager) OnClientJoined(context.Context, uint8) {}
func (sm *SyncManager) OnClientLeft(context.Context, uint8)   {}

func (sm *SyncManager) clearReplicated(ctx context.Context) {
	sm.serverState.Clear()
	if sm.scene == nil {
		return
	}
	if n := sm.scene.RemoveAllEntities(scene.ChangeLocalOnly, true); n > 0 {
		slog.InfoContext(ctx, "removed replicated entities", "scene", sm.scene.Name(), "entities", n)
	}
}

// Tick runs Update with the time elapsed since the previous Tick.
func (sm *SyncManager) Tick(ctx context.Context) error {
	now := sm.now()
	if !sm.last.IsZero() {
		sm.Update(ctx, now.Sub(sm.last))
	}
	sm.last = now
	return nil
}

// Update flushes every peer's sync state once per update period.
func (sm *SyncManager) Update(ctx context.Context, frametime time.Duration) {
	sm.acc += frametime
	if sm.acc < sm.period {
		return
	}
	sm.acc %= sm.period

	if sm.scene == nil {
		return
	}

	if sm.net.IsServer() {
		for _, u := range sm.net.Registry().All() {
			if u.SyncState == nil || !u.IsAuthenticated() {
				continue
			}
			if err := sm.ProcessSyncState(ctx, u.Conn, u.SyncState); err != nil {
				slog.WarnContext(ctx, "replicating to user", "user", u.ID, "error", err)
			}
		}
		return
	}

	conn := sm.net.ServerConnection()
	if !sm.loggedIn || conn == nil || conn.State() != transport.StateOK {
		return
	}
	if err := sm.ProcessSyncState(ctx, conn, sm.serverState); err != nil {
		slog.WarnContext(ctx, "replicating to server", "error", err)
	}
}

func (sm *SyncManager) role() string {
	if sm.net.IsServer() {
		return "server"
	}
	return "client"
}

// inboundChange is the change type applied to the local scene for edits
// received from a peer. A server passes them on; a client keeps them.
func (sm *SyncManager) inboundChange() scene.ChangeType {
	if sm.net.IsServer() {
		return scene.ChangeReplicate
	}
	return scene.ChangeLocalOnly
}

// states returns every sync state scene changes must be recorded in.
func (sm *SyncManager) states() []*syncstate.SceneSyncState {
	if !sm.net.IsServer() {
		return []*syncstate.SceneSyncState{sm.serverState}
	}
	var out []*syncstate.SceneSyncState
	for _, u := range sm.net.Registry().All() {
		if u.SyncState != nil {
			out = append(out, u.SyncState)
		}
	}
	return out
}

// stateFor returns the sync state describing the peer behind conn.
func (sm *SyncManager) stateFor(conn transport.Conn) *syncstate.SceneSyncState {
	if !sm.net.IsServer() {
		if conn != sm.net.ServerConnection() {
			return nil
		}
		return sm.serverState
	}
	if u := sm.net.Registry().ByConn(conn); u != nil {
		return u.SyncState
	}
	return nil
}
