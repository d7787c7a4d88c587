package replication

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/scene"
	"github.com/pixil98/go-tundra/internal/syncstate"
	"github.com/pixil98/go-tundra/internal/transport"
	"github.com/pixil98/go-tundra/internal/transport/pipe"
)

var (
	nameType = scene.TypeIDOf("EC_Name")
	meshType = scene.TypeIDOf("EC_Mesh")
)

func newTestManager(t *testing.T, tr *pipe.Transport) *network.Manager {
	t.Helper()
	m, err := network.NewManager(transport.NewSet(tr),
		network.WithDefaultTransport(pipe.Name),
		network.WithFatalHandler(func(err error) { t.Errorf("fatal: %v", err) }),
	)
	if err != nil {
		t.Fatalf("creating manager: %v", err)
	}
	return m
}

func newTestSyncManager(t *testing.T, s *scene.Scene) *SyncManager {
	t.Helper()
	sm, err := NewSyncManager(newTestManager(t, pipe.New()))
	if err != nil {
		t.Fatalf("creating sync manager: %v", err)
	}
	sm.RegisterToScene(s)
	return sm
}

func received(t *testing.T, c transport.Conn) []protocol.Message {
	t.Helper()
	var out []protocol.Message
	for {
		f, ok := c.Poll()
		if !ok {
			return out
		}
		m, err := protocol.Decode(f.ID, f.Data)
		if err != nil {
			t.Fatalf("decoding %s: %v", f.ID, err)
		}
		out = append(out, m)
	}
}

func messageIDs(msgs []protocol.Message) []protocol.MessageID {
	out := make([]protocol.MessageID, len(msgs))
	for i, m := range msgs {
		out[i] = m.MessageID()
	}
	return out
}

func TestSyncManager_NewUserConnectedSeedsScene(t *testing.T) {
	ctx := context.Background()
	s := scene.New("world", nil)
	for _, id := range []scene.EntityID{20, 10} {
		e, _ := s.CreateEntity(id, scene.ChangeDisconnected)
		c, _ := e.GetOrCreateComponent(nameType, "", scene.ChangeDisconnected)
		_ = c.SetAttribute(0, id.String(), scene.ChangeDisconnected)
	}
	_, _ = s.CreateLocalEntity(scene.ChangeDisconnected)

	sm := newTestSyncManager(t, s)
	u := &network.UserConnection{ID: 1, Properties: map[string]string{}}
	sm.NewUserConnected(ctx, u)

	if got := u.SyncState.DirtyEntities(); !slices.Equal(got, []scene.EntityID{10, 20}) {
		t.Fatalf("dirty entities: got %v, want [10 20]", got)
	}

	a, b := pipe.Pair("server", "user")
	if err := sm.ProcessSyncState(ctx, a, u.SyncState); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := received(t, b)
	testutil.AssertEqual(t, "messages", len(msgs), 2)
	for i, want := range []uint32{10, 20} {
		create, ok := msgs[i].(*protocol.CreateEntity)
		if !ok {
			t.Fatalf("message %d: expected CreateEntity, got %s", i, msgs[i].MessageID())
		}
		testutil.AssertEqual(t, "entity id", create.EntityID, want)
		testutil.AssertEqual(t, "components", len(create.Components), 1)
	}
	testutil.AssertEqual(t, "nothing dirty", len(u.SyncState.DirtyEntities()), 0)
	testutil.AssertEqual(t, "known entities", u.SyncState.Len(), 2)
}

func TestProcessSyncState_ComponentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := scene.New("world", nil)
	sm := newTestSyncManager(t, s)
	st := sm.ServerState()
	a, b := pipe.Pair("client", "server")

	flush := func(name string, want ...protocol.MessageID) []protocol.Message {
		t.Helper()
		if err := sm.ProcessSyncState(ctx, a, st); err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		msgs := received(t, b)
		if got := messageIDs(msgs); !slices.Equal(got, want) {
			t.Fatalf("%s: got %v, want %v", name, got, want)
		}
		return msgs
	}

	e, _ := s.CreateEntity(5, scene.ChangeReplicate)
	name, _ := e.GetOrCreateComponent(nameType, "", scene.ChangeReplicate)
	msgs := flush("create", protocol.MsgCreateEntity)
	testutil.AssertEqual(t, "create components", len(msgs[0].(*protocol.CreateEntity).Components), 1)

	_ = name.SetAttribute(0, "crate", scene.ChangeReplicate)
	cs := st.Entity(5).Component(syncstate.KeyOf(name))
	testutil.AssertEqual(t, "attribute marked", slices.Equal(cs.DirtyAttributes(), []int{0}), true)
	msgs = flush("update", protocol.MsgUpdateComponents)
	update := msgs[0].(*protocol.UpdateComponents)
	testutil.AssertEqual(t, "update entity", update.EntityID, uint32(5))
	testutil.AssertEqual(t, "update type", update.Components[0].TypeID, nameType)
	testutil.AssertEqual(t, "marks cleared by flush", len(cs.DirtyAttributes()), 0)

	_ = name.SetAttribute(0, "private", scene.ChangeLocalOnly)
	flush("local only")

	mesh, _ := e.GetOrCreateComponent(meshType, "body", scene.ChangeReplicate)
	flush("add component", protocol.MsgCreateComponents)

	e.RemoveComponent(mesh, scene.ChangeReplicate)
	msgs = flush("remove component", protocol.MsgRemoveComponents)
	refs := msgs[0].(*protocol.RemoveComponents).Components
	testutil.AssertEqual(t, "removed refs", len(refs), 1)
	testutil.AssertEqual(t, "removed name", refs[0].Name, "body")

	s.RemoveEntity(5, scene.ChangeReplicate)
	flush("remove entity", protocol.MsgRemoveEntity)
	testutil.AssertEqual(t, "forgotten", st.Len(), 0)

	flush("idle")
}

func TestProcessSyncState_RecreatedEntityIsReplaced(t *testing.T) {
	ctx := context.Background()
	s := scene.New("world", nil)
	sm := newTestSyncManager(t, s)
	st := sm.ServerState()
	a, b := pipe.Pair("client", "server")

	e, _ := s.CreateEntity(7, scene.ChangeReplicate)
	_, _ = e.GetOrCreateComponent(meshType, "", scene.ChangeReplicate)
	_ = sm.ProcessSyncState(ctx, a, st)
	received(t, b)

	s.RemoveEntity(7, scene.ChangeReplicate)
	e, _ = s.CreateEntity(7, scene.ChangeReplicate)
	_, _ = e.GetOrCreateComponent(nameType, "", scene.ChangeReplicate)

	if err := sm.ProcessSyncState(ctx, a, st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := received(t, b)
	if got := messageIDs(msgs); !slices.Equal(got, []protocol.MessageID{protocol.MsgRemoveEntity, protocol.MsgCreateEntity}) {
		t.Fatalf("got %v", got)
	}
	create := msgs[1].(*protocol.CreateEntity)
	testutil.AssertEqual(t, "new component", create.Components[0].TypeID, nameType)
	testutil.AssertEqual(t, "removal consumed", st.IsRemoved(7), false)
}

func TestProcessSyncState_UnknownRemovalIsDropped(t *testing.T) {
	ctx := context.Background()
	s := scene.New("world", nil)
	sm := newTestSyncManager(t, s)
	st := sm.ServerState()
	a, b := pipe.Pair("client", "server")

	_, _ = s.CreateEntity(3, scene.ChangeReplicate)
	s.RemoveEntity(3, scene.ChangeReplicate)

	if err := sm.ProcessSyncState(ctx, a, st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "messages", len(received(t, b)), 0)
	testutil.AssertEqual(t, "acked", st.IsRemoved(3), false)
}

func TestProcessSyncState_SendFailureKeepsEntityDirty(t *testing.T) {
	ctx := context.Background()
	s := scene.New("world", nil)
	sm := newTestSyncManager(t, s)
	st := sm.ServerState()
	a, b := pipe.Pair("client", "server")
	_ = b.Close()

	_, _ = s.CreateEntity(5, scene.ChangeReplicate)

	err := sm.ProcessSyncState(ctx, a, st)
	if !errors.Is(err, transport.ErrWriteClosed) {
		t.Fatalf("expected ErrWriteClosed, got %v", err)
	}
	testutil.AssertEqual(t, "still dirty", st.IsDirty(5), true)
	testutil.AssertEqual(t, "state dropped", st.Entity(5) == nil, true)
}

func TestSyncManager_IgnoresUnreplicatedChanges(t *testing.T) {
	tests := map[string]struct {
		setup func(s *scene.Scene)
	}{
		"local entity": {
			setup: func(s *scene.Scene) { _, _ = s.CreateLocalEntity(scene.ChangeReplicate) },
		},
		"local only change": {
			setup: func(s *scene.Scene) { _, _ = s.CreateEntity(4, scene.ChangeLocalOnly) },
		},
		"disconnected change": {
			setup: func(s *scene.Scene) { _, _ = s.CreateEntity(4, scene.ChangeDisconnected) },
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := scene.New("world", nil)
			sm := newTestSyncManager(t, s)
			tt.setup(s)
			testutil.AssertEqual(t, "dirty", len(sm.ServerState().DirtyEntities()), 0)
		})
	}
}

func TestSyncManager_NonSyncComponentIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := scene.New("world", nil)
	sm := newTestSyncManager(t, s)
	a, b := pipe.Pair("client", "server")

	e, _ := s.CreateEntity(9, scene.ChangeDisconnected)
	hidden, _ := e.GetOrCreateComponent(meshType, "", scene.ChangeDisconnected)
	hidden.SetNetworkSync(false)
	_, _ = e.GetOrCreateComponent(nameType, "", scene.ChangeDisconnected)
	s.EmitEntityCreated(e, scene.ChangeReplicate)

	_ = sm.ProcessSyncState(ctx, a, sm.ServerState())
	msgs := received(t, b)
	testutil.AssertEqual(t, "messages", len(msgs), 1)
	create := msgs[0].(*protocol.CreateEntity)
	testutil.AssertEqual(t, "components", len(create.Components), 1)
	testutil.AssertEqual(t, "synced component", create.Components[0].TypeID, nameType)

	_ = hidden.SetAttribute(0, "secret.mesh", scene.ChangeReplicate)
	testutil.AssertEqual(t, "hidden change ignored", sm.ServerState().IsDirty(9), false)
}

func TestSyncManager_UpdatePeriod(t *testing.T) {
	tests := map[string]struct {
		period time.Duration
		exp    time.Duration
	}{
		"default kept": {period: DefaultUpdatePeriod, exp: DefaultUpdatePeriod},
		"slower":       {period: time.Second, exp: time.Second},
		"clamped":      {period: time.Millisecond, exp: MinUpdatePeriod},
		"zero":         {period: 0, exp: MinUpdatePeriod},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			sm := newTestSyncManager(t, nil)
			sm.SetUpdatePeriod(tt.period)
			testutil.AssertEqual(t, "period", sm.UpdatePeriod(), tt.exp)
		})
	}
}

func TestSyncManager_ValidateAction(t *testing.T) {
	ctx := context.Background()
	sm := newTestSyncManager(t, scene.New("world", nil))
	a, _ := pipe.Pair("client", "server")

	testutil.AssertEqual(t, "replicated entity", sm.ValidateAction(ctx, a, protocol.MsgCreateEntity, 12), true)
	testutil.AssertEqual(t, "local entity", sm.ValidateAction(ctx, a, protocol.MsgCreateEntity, scene.LocalEntityFlag|12), false)
}

func TestSyncManager_DisconnectKeepsLocalEntities(t *testing.T) {
	ctx := context.Background()
	s := scene.New("world", nil)
	_, _ = s.CreateEntity(3, scene.ChangeDisconnected)
	local, _ := s.CreateLocalEntity(scene.ChangeDisconnected)
	sm := newTestSyncManager(t, s)
	sm.ServerState().GetOrCreateEntity(3)

	sm.OnDisconnected(ctx)

	testutil.AssertEqual(t, "entities", s.Len(), 1)
	testutil.AssertEqual(t, "local kept", s.Entity(local.ID()), local)
	testutil.AssertEqual(t, "server state cleared", sm.ServerState().Len(), 0)
}
