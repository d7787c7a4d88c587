package replication

import (
	"log/slog"

	"github.com/pixil98/go-tundra/internal/network"
	"github.com/pixil98/go-tundra/internal/protocol"
	"github.com/pixil98/go-tundra/internal/scene"
	"github.com/pixil98/go-tundra/internal/syncstate"
)

func replicates(change scene.ChangeType) bool {
	return change.Resolve() == scene.ChangeReplicate
}

func tracked(e *scene.Entity, c *scene.Component, change scene.ChangeType) bool {
	return e != nil && !e.IsLocal() && c.NetworkSync() && replicates(change)
}

func (sm *SyncManager) OnEntityCreated(e *scene.Entity, change scene.ChangeType) {
	if e.IsLocal() || !replicates(change) {
		return
	}
	for _, st := range sm.states() {
		st.OnEntityChanged(e.ID())
	}
}

func (sm *SyncManager) OnEntityRemoved(e *scene.Entity, change scene.ChangeType) {
	if e.IsLocal() || !replicates(change) {
		return
	}
	for _, st := range sm.states() {
		st.OnEntityRemoved(e.ID())
	}
}

func (sm *SyncManager) OnComponentAdded(e *scene.Entity, c *scene.Component, change scene.ChangeType) {
	if !tracked(e, c, change) {
		return
	}
	for _, st := range sm.states() {
		st.OnComponentChanged(e.ID(), syncstate.KeyOf(c))
	}
}

func (sm *SyncManager) OnComponentRemoved(e *scene.Entity, c *scene.Component, change scene.ChangeType) {
	if !tracked(e, c, change) {
		return
	}
	for _, st := range sm.states() {
		st.OnComponentRemoved(e.ID(), syncstate.KeyOf(c))
	}
}

func (sm *SyncManager) OnComponentChanged(c *scene.Component, change scene.ChangeType) {
	e := c.Entity()
	if !tracked(e, c, change) {
		return
	}
	for _, st := range sm.states() {
		st.OnComponentChanged(e.ID(), syncstate.KeyOf(c))
	}
}

func (sm *SyncManager) OnAttributeChanged(c *scene.Component, index int, change scene.ChangeType) {
	e := c.Entity()
	if !tracked(e, c, change) {
		return
	}
	for _, st := range sm.states() {
		st.OnAttributeChanged(e.ID(), syncstate.KeyOf(c), index)
	}
}

func (sm *SyncManager) OnDynamicAttributeChanged(c *scene.Component, name string, change scene.ChangeType) {
	e := c.Entity()
	if !tracked(e, c, change) {
		return
	}
	for _, st := range sm.states() {
		st.OnDynamicAttributeChanged(e.ID(), syncstate.KeyOf(c), name)
	}
}

// OnActionTriggered forwards an entity action to the peers named by exec.
// Local execution has already happened in the scene.
func (sm *SyncManager) OnActionTriggered(e *scene.Entity, action string, params []string, exec scene.ExecutionType) {
	if e.IsLocal() {
		return
	}
	msg := &protocol.EntityAction{
		EntityID:   uint32(e.ID()),
		Name:       action,
		Parameters: params,
	}

	if sm.net.IsServer() {
		if exec.Has(scene.ExecServer) && !exec.Has(scene.ExecLocal) {
			e.Exec(action, params)
		}
		if exec.Has(scene.ExecPeers) {
			msg.ExecutionType = uint8(scene.ExecLocal)
			network.Broadcast(sm.net.Registry().AuthenticatedUsers(), nil, msg)
		}
		return
	}

	if !exec.Has(scene.ExecServer) && !exec.Has(scene.ExecPeers) {
		return
	}
	conn := sm.net.ServerConnection()
	if conn == nil {
		slog.Warn("dropping entity action, not connected", "entity", e.ID(), "action", action)
		return
	}
	msg.ExecutionType = uint8(exec &^ scene.ExecLocal)
	if err := network.Send(conn, msg); err != nil {
		slog.Warn("sending entity action", "entity", e.ID(), "action", action, "error", err)
	}
}
