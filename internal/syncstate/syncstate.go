// Package syncstate tracks, per peer, which parts of a scene the peer has
// seen and which changes are still waiting to be sent.
package syncstate

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/pixil98/go-tundra/internal/scene"
)

// ComponentKey identifies a component within an entity.
type ComponentKey struct {
	TypeID uint32
	Name   string
}

func KeyOf(c *scene.Component) ComponentKey {
	return ComponentKey{TypeID: c.TypeID(), Name: c.Name()}
}

func (k ComponentKey) less(o ComponentKey) bool {
	if k.TypeID != o.TypeID {
		return k.TypeID < o.TypeID
	}
	return k.Name < o.Name
}

// ComponentSyncState is what the peer knows about one component.
type ComponentSyncState struct {
	Key ComponentKey
	// Data is the last full encoding sent to or received from the peer.
	Data []byte

	// Attribute marks are bookkeeping for inspection only. Flushing diffs
	// against Data and never reads them.
	dirtyStatic  map[int]struct{}
	dirtyDynamic map[string]struct{}
}

func newComponentSyncState(key ComponentKey) *ComponentSyncState {
	return &ComponentSyncState{
		Key:          key,
		dirtyStatic:  map[int]struct{}{},
		dirtyDynamic: map[string]struct{}{},
	}
}

func (c *ComponentSyncState) MarkAttributeDirty(index int) {
	c.dirtyStatic[index] = struct{}{}
}

func (c *ComponentSyncState) MarkDynamicAttributeDirty(name string) {
	c.dirtyDynamic[name] = struct{}{}
}

// DirtyAttributes returns dirty static attribute indices in ascending order.
func (c *ComponentSyncState) DirtyAttributes() []int {
	out := make([]int, 0, len(c.dirtyStatic))
	for i := range c.dirtyStatic {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (c *ComponentSyncState) DirtyDynamicAttributes() []string {
	out := make([]string, 0, len(c.dirtyDynamic))
	for n := range c.dirtyDynamic {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// AckDirty clears every dirty attribute mark.
func (c *ComponentSyncState) AckDirty() {
	clear(c.dirtyStatic)
	clear(c.dirtyDynamic)
}

// EntitySyncState is what the peer knows about one entity.
type EntitySyncState struct {
	ID scene.EntityID

	components []*ComponentSyncState
	dirty      map[ComponentKey]struct{}
	removed    map[ComponentKey]struct{}
}

func newEntitySyncState(id scene.EntityID) *EntitySyncState {
	return &EntitySyncState{
		ID:      id,
		dirty:   map[ComponentKey]struct{}{},
		removed: map[ComponentKey]struct{}{},
	}
}

// Components returns the tracked components in creation order.
func (e *EntitySyncState) Components() []*ComponentSyncState {
	return slices.Clone(e.components)
}

func (e *EntitySyncState) Component(key ComponentKey) *ComponentSyncState {
	for _, c := range e.components {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// GetOrCreateComponent returns the tracked component, creating it if needed.
// A pending removal of the same component is cancelled.
func (e *EntitySyncState) GetOrCreateComponent(key ComponentKey) *ComponentSyncState {
	delete(e.removed, key)
	if c := e.Component(key); c != nil {
		return c
	}
	c := newComponentSyncState(key)
	e.components = append(e.components, c)
	return c
}

// RemoveComponent stops tracking key. Pending dirty or removal marks are
// left alone.
func (e *EntitySyncState) RemoveComponent(key ComponentKey) {
	e.components = slices.DeleteFunc(e.components, func(c *ComponentSyncState) bool {
		return c.Key == key
	})
}

// OnComponentChanged queues key for sending. A pending removal of the same
// component is cancelled since the component exists again.
func (e *EntitySyncState) OnComponentChanged(key ComponentKey) {
	delete(e.removed, key)
	e.dirty[key] = struct{}{}
}

// OnComponentRemoved queues a removal for components the peer knows about.
func (e *EntitySyncState) OnComponentRemoved(key ComponentKey) {
	delete(e.dirty, key)
	if e.Component(key) != nil {
		e.removed[key] = struct{}{}
	}
}

func (e *EntitySyncState) OnAttributeChanged(key ComponentKey, index int) {
	e.OnComponentChanged(key)
	if c := e.Component(key); c != nil {
		c.MarkAttributeDirty(index)
	}
}

func (e *EntitySyncState) OnDynamicAttributeChanged(key ComponentKey, name string) {
	e.OnComponentChanged(key)
	if c := e.Component(key); c != nil {
		c.MarkDynamicAttributeDirty(name)
	}
}

func (e *EntitySyncState) AckDirty(key ComponentKey) {
	delete(e.dirty, key)
}

func (e *EntitySyncState) AckRemove(key ComponentKey) {
	delete(e.removed, key)
}

func (e *EntitySyncState) IsComponentDirty(key ComponentKey) bool {
	_, ok := e.dirty[key]
	return ok
}

func (e *EntitySyncState) IsComponentRemoved(key ComponentKey) bool {
	_, ok := e.removed[key]
	return ok
}

// DirtyComponents returns the dirty component keys in a stable order.
func (e *EntitySyncState) DirtyComponents() []ComponentKey {
	return sortedKeys(e.dirty)
}

func (e *EntitySyncState) RemovedComponents() []ComponentKey {
	return sortedKeys(e.removed)
}

func sortedKeys(m map[ComponentKey]struct{}) []ComponentKey {
	out := make([]ComponentKey, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// SceneSyncState is what one peer knows about a scene. It is owned by the
// tick goroutine and is not safe for concurrent use.
type SceneSyncState struct {
	entities map[scene.EntityID]*EntitySyncState
	dirty    map[scene.EntityID]struct{}
	removed  map[scene.EntityID]struct{}
}

func New() *SceneSyncState {
	return &SceneSyncState{
		entities: map[scene.EntityID]*EntitySyncState{},
		dirty:    map[scene.EntityID]struct{}{},
		removed:  map[scene.EntityID]struct{}{},
	}
}

// Clear forgets everything, as for a peer that has seen nothing.
func (s *SceneSyncState) Clear() {
	clear(s.entities)
	clear(s.dirty)
	clear(s.removed)
}

func (s *SceneSyncState) Entity(id scene.EntityID) *EntitySyncState {
	return s.entities[id]
}

// GetOrCreateEntity returns the tracked entity, creating it if needed. A
// pending removal of the same ID is cancelled.
func (s *SceneSyncState) GetOrCreateEntity(id scene.EntityID) *EntitySyncState {
	delete(s.removed, id)
	if e, ok := s.entities[id]; ok {
		return e
	}
	e := newEntitySyncState(id)
	s.entities[id] = e
	return e
}

// RemoveEntity stops tracking id. Pending dirty or removal marks are left
// alone.
func (s *SceneSyncState) RemoveEntity(id scene.EntityID) {
	delete(s.entities, id)
}

// RemapEntity moves the tracked state of oldID to newID.
func (s *SceneSyncState) RemapEntity(oldID, newID scene.EntityID) {
	e, ok := s.entities[oldID]
	if !ok {
		return
	}
	delete(s.entities, oldID)
	e.ID = newID
	s.entities[newID] = e
	if _, ok := s.dirty[oldID]; ok {
		delete(s.dirty, oldID)
		s.dirty[newID] = struct{}{}
	}
}

// OnEntityChanged queues id for sending.
func (s *SceneSyncState) OnEntityChanged(id scene.EntityID) {
	if _, ok := s.removed[id]; ok {
		// Flushed as a removal followed by a full create.
		slog.Warn("entity changed while pending removal", "entity", id)
	}
	s.dirty[id] = struct{}{}
}

// OnEntityRemoved replaces any pending change of id with a removal.
func (s *SceneSyncState) OnEntityRemoved(id scene.EntityID) {
	delete(s.dirty, id)
	s.removed[id] = struct{}{}
}

func (s *SceneSyncState) OnComponentChanged(id scene.EntityID, key ComponentKey) {
	s.OnEntityChanged(id)
	if e := s.entities[id]; e != nil {
		e.OnComponentChanged(key)
	}
}

func (s *SceneSyncState) OnComponentRemoved(id scene.EntityID, key ComponentKey) {
	s.OnEntityChanged(id)
	if e := s.entities[id]; e != nil {
		e.OnComponentRemoved(key)
	}
}

func (s *SceneSyncState) OnAttributeChanged(id scene.EntityID, key ComponentKey, index int) {
	s.OnEntityChanged(id)
	if e := s.entities[id]; e != nil {
		e.OnAttributeChanged(key, index)
	}
}

func (s *SceneSyncState) OnDynamicAttributeChanged(id scene.EntityID, key ComponentKey, name string) {
	s.OnEntityChanged(id)
	if e := s.entities[id]; e != nil {
		e.OnDynamicAttributeChanged(key, name)
	}
}

func (s *SceneSyncState) AckDirty(id scene.EntityID) {
	delete(s.dirty, id)
}

func (s *SceneSyncState) AckRemove(id scene.EntityID) {
	delete(s.removed, id)
}

func (s *SceneSyncState) IsDirty(id scene.EntityID) bool {
	_, ok := s.dirty[id]
	return ok
}

func (s *SceneSyncState) IsRemoved(id scene.EntityID) bool {
	_, ok := s.removed[id]
	return ok
}

// DirtyEntities returns the dirty entity IDs in ascending order.
func (s *SceneSyncState) DirtyEntities() []scene.EntityID {
	return sortedIDs(s.dirty)
}

// RemovedEntities returns the removed entity IDs in ascending order.
func (s *SceneSyncState) RemovedEntities() []scene.EntityID {
	return sortedIDs(s.removed)
}

// Len reports how many entities the peer is known to have.
func (s *SceneSyncState) Len() int {
	return len(s.entities)
}

func sortedIDs(m map[scene.EntityID]struct{}) []scene.EntityID {
	out := make([]scene.EntityID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
