package replication

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/scene"
	"github.com/pixil98/go-tundra/internal/syncstate"
	"github.com/pixil98/go-tundra/internal/transport"
)

// HandleMessage applies scene sync messages received from a peer.
func (sm *SyncManager) HandleMessage(ctx context.Context, source transport.Conn, id protocol.MessageID, data []byte) {
	switch id {
	case protocol.MsgCreateEntity, protocol.MsgRemoveEntity, protocol.MsgCreateComponents,
		protocol.MsgUpdateComponents, protocol.MsgRemoveComponents, protocol.MsgEntityIDCollision,
		protocol.MsgEntityAction:
	default:
		return
	}

	if sm.scene == nil {
		slog.WarnContext(ctx, "ignoring scene sync message, no scene", "message", id)
		return
	}

	msg, err := protocol.Decode(id, data)
	if err != nil {
		slog.WarnContext(ctx, "malformed scene sync message", "message", id, "error", err)
		return
	}

	if m, ok := msg.(*protocol.EntityAction); ok {
		sm.handleEntityAction(ctx, source, m)
		return
	}

	state := sm.stateFor(source)
	if state == nil {
		slog.WarnContext(ctx, "ignoring scene sync message, no sync state for connection", "message", id, "remote", source.RemoteAddr())
		return
	}

	switch m := msg.(type) {
	case *protocol.CreateEntity:
		sm.handleCreateEntity(ctx, source, state, m)
	case *protocol.RemoveEntity:
		sm.handleRemoveEntity(ctx, source, state, m)
	case *protocol.CreateComponents:
		sm.handleCreateComponents(ctx, source, state, m)
	case *protocol.UpdateComponents:
		sm.handleUpdateComponents(ctx, source, state, m)
	case *protocol.RemoveComponents:
		sm.handleRemoveComponents(ctx, source, state, m)
	case *protocol.EntityIDCollision:
		sm.handleEntityIDCollision(ctx, state, m)
	}
}

// ValidateAction reports whether source may edit entity id. Local entities
// are never accepted; a server only accepts edits from authenticated users.
func (sm *SyncManager) ValidateAction(ctx context.Context, source transport.Conn, msg protocol.MessageID, id scene.EntityID) bool {
	if id.IsLocal() {
		slog.WarnContext(ctx, "ignoring sync message for a local entity", "message", msg, "entity", id)
		return false
	}
	if !sm.net.IsServer() {
		return true
	}
	u := sm.net.Registry().ByConn(source)
	return u != nil && u.IsAuthenticated()
}

func (sm *SyncManager) handleCreateEntity(ctx context.Context, source transport.Conn, state *syncstate.SceneSyncState, msg *protocol.CreateEntity) {
	id := scene.EntityID(msg.EntityID)
	if !sm.ValidateAction(ctx, source, protocol.MsgCreateEntity, id) {
		return
	}
	change := sm.inboundChange()

	if sm.scene.Entity(id) != nil {
		if sm.net.IsServer() {
			newID := sm.scene.NextFreeID()
			slog.InfoContext(ctx, "entity id collision", "entity", id, "new", newID)
			if err := network.Send(source, &protocol.EntityIDCollision{OldEntityID: uint32(id), NewEntityID: uint32(newID)}); err != nil {
				slog.WarnContext(ctx, "sending entity id collision", "error", err)
			}
			id = newID
		} else {
			slog.DebugContext(ctx, "server recreated an existing entity, replacing it", "entity", id)
			sm.scene.RemoveEntity(id, change)
		}
	}

	e, err := sm.scene.CreateEntity(id, scene.ChangeDisconnected)
	if err != nil {
		slog.WarnContext(ctx, "scene refused to create entity", "entity", id, "error", err)
		return
	}

	state.RemoveEntity(id)
	es := state.GetOrCreateEntity(id)
	for _, cd := range msg.Components {
		sm.applyFull(ctx, e, es, cd)
	}

	sm.scene.EmitEntityCreated(e, change)
	for _, c := range e.Components() {
		c.EmitChanged(change)
	}
}

func (sm *SyncManager) handleRemoveEntity(ctx context.Context, source transport.Conn, state *syncstate.SceneSyncState, msg *protocol.RemoveEntity) {
	id := scene.EntityID(msg.EntityID)
	if !sm.ValidateAction(ctx, source, protocol.MsgRemoveEntity, id) {
		return
	}
	sm.scene.RemoveEntity(id, sm.inboundChange())
	// the sender already knows
	state.RemoveEntity(id)
	state.AckRemove(id)
}

func (sm *SyncManager) handleCreateComponents(ctx context.Context, source transport.Conn, state *syncstate.SceneSyncState, msg *protocol.CreateComponents) {
	id := scene.EntityID(msg.EntityID)
	if !sm.ValidateAction(ctx, source, protocol.MsgCreateComponents, id) {
		return
	}
	change := sm.inboundChange()

	e, created := sm.ensureEntity(ctx, state, id, protocol.MsgCreateComponents)
	if e == nil {
		return
	}
	es := state.GetOrCreateEntity(id)

	var changed []*scene.Component
	for _, cd := range msg.Components {
		if c := sm.applyFull(ctx, e, es, cd); c != nil {
			changed = append(changed, c)
		}
	}

	if created {
		sm.scene.EmitEntityCreated(e, change)
	}
	for _, c := range changed {
		c.EmitChanged(change)
	}
}

func (sm *SyncManager) handleUpdateComponents(ctx context.Context, source transport.Conn, state *syncstate.SceneSyncState, msg *protocol.UpdateComponents) {
	id := scene.EntityID(msg.EntityID)
	if !sm.ValidateAction(ctx, source, protocol.MsgUpdateComponents, id) {
		return
	}
	change := sm.inboundChange()

	e, created := sm.ensureEntity(ctx, state, id, protocol.MsgUpdateComponents)
	if e == nil {
		return
	}
	es := state.GetOrCreateEntity(id)
	if created {
		sm.scene.EmitEntityCreated(e, change)
	}

	for _, cd := range msg.Components {
		c, err := e.GetOrCreateComponent(cd.TypeID, cd.Name, scene.ChangeDisconnected)
		if err != nil {
			slog.WarnContext(ctx, "creating component", "entity", id, "type", cd.TypeID, "name", cd.Name, "error", err)
			continue
		}
		if len(cd.Data) == 0 {
			continue
		}
		indices, err := sm.codec.DecodeDelta(c, cd.Data)
		if err != nil {
			slog.WarnContext(ctx, "decoding component delta", "entity", id, "type", c.TypeName(), "name", c.Name(), "error", err)
			continue
		}

		full, err := sm.codec.Encode(c)
		if err != nil {
			slog.WarnContext(ctx, "encoding component", "entity", id, "type", c.TypeName(), "name", c.Name(), "error", err)
			continue
		}
		es.GetOrCreateComponent(syncstate.KeyOf(c)).Data = full

		if c.IsDynamic() {
			// a nil result means nothing changed
			if indices != nil {
				c.EmitChanged(change)
			}
			continue
		}
		for _, i := range indices {
			c.EmitAttributeChanged(i, change)
		}
	}
}

func (sm *SyncManager) handleRemoveComponents(ctx context.Context, source transport.Conn, state *syncstate.SceneSyncState, msg *protocol.RemoveComponents) {
	id := scene.EntityID(msg.EntityID)
	if !sm.ValidateAction(ctx, source, protocol.MsgRemoveComponents, id) {
		return
	}
	e := sm.scene.Entity(id)
	if e == nil {
		return
	}
	change := sm.inboundChange()

	for _, ref := range msg.Components {
		if c := e.Component(ref.TypeID, ref.Name); c != nil {
			e.RemoveComponent(c, change)
		}
		if es := state.Entity(id); es != nil {
			key := syncstate.ComponentKey{TypeID: ref.TypeID, Name: ref.Name}
			es.RemoveComponent(key)
			es.AckRemove(key)
		}
	}
}

func (sm *SyncManager) handleEntityIDCollision(ctx context.Context, state *syncstate.SceneSyncState, msg *protocol.EntityIDCollision) {
	if sm.net.IsServer() {
		slog.WarnContext(ctx, "ignoring entity id collision from a client")
		return
	}
	oldID, newID := scene.EntityID(msg.OldEntityID), scene.EntityID(msg.NewEntityID)
	slog.DebugContext(ctx, "entity id collision", "entity", oldID, "new", newID)
	if err := sm.scene.ChangeEntityID(oldID, newID); err != nil {
		slog.WarnContext(ctx, "changing entity id", "error", err)
	}
	state.RemapEntity(oldID, newID)
}

func (sm *SyncManager) handleEntityAction(ctx context.Context, source transport.Conn, msg *protocol.EntityAction) {
	id := scene.EntityID(msg.EntityID)
	if !sm.ValidateAction(ctx, source, protocol.MsgEntityAction, id) {
		return
	}
	e := sm.scene.Entity(id)
	if e == nil {
		slog.WarnContext(ctx, "entity not found for action", "entity", id, "action", msg.Name)
		return
	}

	isServer := sm.net.IsServer()
	exec := scene.ExecutionType(msg.ExecutionType)
	var sender *network.UserConnection
	if isServer {
		sender = sm.net.Registry().ByConn(source)
	}

	handled := false
	if exec.Has(scene.ExecLocal) || (isServer && exec.Has(scene.ExecServer)) {
		sm.actionSender = sender
		e.Exec(msg.Name, msg.Parameters)
		sm.actionSender = nil
		handled = true
	}
	if isServer && exec.Has(scene.ExecPeers) {
		relay := *msg
		relay.ExecutionType = uint8(scene.ExecLocal)
		network.Broadcast(sm.net.Registry().AuthenticatedUsers(), sender, &relay)
		handled = true
	}
	if !handled {
		slog.WarnContext(ctx, "entity action not handled", "entity", id, "action", msg.Name, "exec", exec)
	}
}

// ensureEntity returns entity id, creating it silently when a peer updates an
// entity this side never saw.
func (sm *SyncManager) ensureEntity(ctx context.Context, state *syncstate.SceneSyncState, id scene.EntityID, msg protocol.MessageID) (*scene.Entity, bool) {
	if e := sm.scene.Entity(id); e != nil {
		return e, false
	}
	slog.WarnContext(ctx, "entity not found, creating it", "entity", id, "message", msg)
	e, err := sm.scene.CreateEntity(id, scene.ChangeDisconnected)
	if err != nil {
		slog.WarnContext(ctx, "scene refused to create entity", "entity", id, "error", err)
		return nil, false
	}
	state.GetOrCreateEntity(id)
	return e, true
}

// applyFull decodes a full component state into e and records it as known
// by the peer. It returns the component when its attributes were set.
func (sm *SyncManager) applyFull(ctx context.Context, e *scene.Entity, es *syncstate.EntitySyncState, cd protocol.ComponentData) *scene.Component {
	c, err := e.GetOrCreateComponent(cd.TypeID, cd.Name, scene.ChangeDisconnected)
	if err != nil {
		slog.WarnContext(ctx, "creating component", "entity", e.ID(), "type", cd.TypeID, "name", cd.Name, "error", err)
		return nil
	}
	if len(cd.Data) == 0 {
		return nil
	}
	if err := sm.codec.Decode(c, cd.Data); err != nil {
		slog.WarnContext(ctx, "decoding component", "entity", e.ID(), "type", c.TypeName(), "name", c.Name(), "error", err)
		return nil
	}
	es.GetOrCreateComponent(syncstate.KeyOf(c)).Data = bytes.Clone(cd.Data)
	return c
}
