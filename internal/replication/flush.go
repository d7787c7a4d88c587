package replication

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/scene"
	"github.com/pixil98/go-tundra/internal/syncstate"
	"github.com/pixil98/go-tundra/internal/transport"
)

// ProcessSyncState sends conn everything state marks as dirty or removed,
// in ascending entity order, and acknowledges what was sent. A failed send
// stops the flush; the entity being sent is forgotten so that it goes out as
// a full create next time.
func (sm *SyncManager) ProcessSyncState(ctx context.Context, conn transport.Conn, state *syncstate.SceneSyncState) error {
	f := &flush{sm: sm, ctx: ctx, conn: conn}

	for _, id := range state.DirtyEntities() {
		e := sm.scene.Entity(id)
		if e == nil {
			state.AckDirty(id)
			continue
		}

		if state.IsRemoved(id) {
			if state.Entity(id) != nil {
				if err := f.send(&protocol.RemoveEntity{EntityID: uint32(id)}); err != nil {
					return fmt.Errorf("removing recreated entity %s: %w", id, err)
				}
			}
			state.RemoveEntity(id)
			state.AckRemove(id)
		}

		if err := f.entity(state, e); err != nil {
			state.RemoveEntity(id)
			return fmt.Errorf("flushing entity %s: %w", id, err)
		}
		state.AckDirty(id)
		f.entities++
	}

	for _, id := range state.RemovedEntities() {
		if state.Entity(id) != nil {
			if err := f.send(&protocol.RemoveEntity{EntityID: uint32(id)}); err != nil {
				return fmt.Errorf("removing entity %s: %w", id, err)
			}
		}
		state.RemoveEntity(id)
		state.AckRemove(id)
		f.entities++
	}

	sm.metrics.flushed(ctx, sm.role(), f.entities)
	if f.messages > 0 {
		slog.DebugContext(ctx, "sent scene sync messages", "messages", f.messages, "entities", f.entities, "remote", conn.RemoteAddr())
	}
	return nil
}

type flush struct {
	sm       *SyncManager
	ctx      context.Context
	conn     transport.Conn
	messages int
	entities int
}

func (f *flush) send(msg protocol.Message) error {
	if err := network.Send(f.conn, msg); err != nil {
		return err
	}
	f.messages++
	f.sm.metrics.sent(f.ctx, msg.MessageID().String(), 1)
	return nil
}

func (f *flush) encode(c *scene.Component) (protocol.ComponentData, bool) {
	data, err := f.sm.codec.Encode(c)
	if err != nil {
		slog.WarnContext(f.ctx, "encoding component", "entity", c.Entity().ID(), "type", c.TypeName(), "name", c.Name(), "error", err)
		return protocol.ComponentData{}, false
	}
	return protocol.ComponentData{TypeID: c.TypeID(), Name: c.Name(), Data: data}, true
}

func (f *flush) entity(state *syncstate.SceneSyncState, e *scene.Entity) error {
	es := state.Entity(e.ID())
	if es == nil {
		return f.create(state, e)
	}

	creates := &protocol.CreateComponents{EntityID: uint32(e.ID())}
	updates := &protocol.UpdateComponents{EntityID: uint32(e.ID())}
	for _, key := range es.DirtyComponents() {
		es.AckDirty(key)
		c := e.Component(key.TypeID, key.Name)
		if c == nil || !c.NetworkSync() {
			continue
		}

		cs := es.Component(key)
		if cs == nil || len(cs.Data) == 0 {
			cd, ok := f.encode(c)
			if !ok {
				continue
			}
			cs = es.GetOrCreateComponent(key)
			cs.Data = cd.Data
			cs.AckDirty()
			creates.Components = append(creates.Components, cd)
			continue
		}

		delta, changed, err := f.sm.codec.EncodeDelta(c, cs.Data)
		if err != nil {
			slog.WarnContext(f.ctx, "encoding component delta", "entity", e.ID(), "type", c.TypeName(), "name", c.Name(), "error", err)
			continue
		}
		cs.AckDirty()
		if !changed {
			continue
		}
		cd, ok := f.encode(c)
		if !ok {
			continue
		}
		cs.Data = cd.Data
		updates.Components = append(updates.Components, protocol.ComponentData{TypeID: key.TypeID, Name: key.Name, Data: delta})
	}

	removes := &protocol.RemoveComponents{EntityID: uint32(e.ID())}
	for _, key := range es.RemovedComponents() {
		removes.Components = append(removes.Components, protocol.ComponentRef{TypeID: key.TypeID, Name: key.Name})
		es.RemoveComponent(key)
		es.AckRemove(key)
	}

	if len(creates.Components) > 0 {
		if err := f.send(creates); err != nil {
			return err
		}
	}
	if len(updates.Components) > 0 {
		if err := f.send(updates); err != nil {
			return err
		}
	}
	if len(removes.Components) > 0 {
		if err := f.send(removes); err != nil {
			return err
		}
	}
	return nil
}

// create sends e in full to a peer that does not know it.
func (f *flush) create(state *syncstate.SceneSyncState, e *scene.Entity) error {
	es := state.GetOrCreateEntity(e.ID())
	msg := &protocol.CreateEntity{EntityID: uint32(e.ID())}
	for _, c := range e.Components() {
		if !c.NetworkSync() {
			continue
		}
		cd, ok := f.encode(c)
		if !ok {
			continue
		}
		key := syncstate.KeyOf(c)
		es.GetOrCreateComponent(key).Data = cd.Data
		es.AckDirty(key)
		msg.Components = append(msg.Components, cd)
	}
	return f.send(msg)
}
