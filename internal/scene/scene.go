package scene

import (
	"fmt"
	"log/slog"
	"sort"
)

// Scene holds entities and fans change notifications out to observers. A
// Scene is not safe for concurrent use; it is driven from the tick goroutine.
type Scene struct {
	name      string
	registry  *Registry
	entities  map[EntityID]*Entity
	observers []Observer
	actions   map[string][]ActionHandler

	nextID      EntityID
	nextLocalID EntityID
}

func New(name string, registry *Registry) *Scene {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Scene{
		name:        name,
		registry:    registry,
		entities:    map[EntityID]*Entity{},
		actions:     map[string][]ActionHandler{},
		nextID:      1,
		nextLocalID: LocalEntityFlag | 1,
	}
}

func (s *Scene) Name() string        { return s.name }
func (s *Scene) Registry() *Registry { return s.registry }
func (s *Scene) Len() int            { return len(s.entities) }

func (s *Scene) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

func (s *Scene) RemoveObserver(o Observer) {
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// OnAction registers a local handler for an entity action name.
func (s *Scene) OnAction(action string, h ActionHandler) {
	s.actions[action] = append(s.actions[action], h)
}

func (s *Scene) Entity(id EntityID) *Entity {
	return s.entities[id]
}

// Entities returns every entity ordered by ascending ID.
func (s *Scene) Entities() []*Entity {
	out := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// CreateEntity creates an entity with id, or with the next free replicated
// ID when id is zero.
func (s *Scene) CreateEntity(id EntityID, change ChangeType) (*Entity, error) {
	if id == 0 {
		id = s.NextFreeID()
	}
	if _, ok := s.entities[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityExists, id)
	}
	e := &Entity{id: id, scene: s}
	s.entities[id] = e
	s.EmitEntityCreated(e, change)
	return e, nil
}

// CreateLocalEntity creates an entity that is never replicated.
func (s *Scene) CreateLocalEntity(change ChangeType) (*Entity, error) {
	return s.CreateEntity(s.NextFreeLocalID(), change)
}

// EmitEntityCreated notifies observers about an entity that was created
// with ChangeDisconnected.
func (s *Scene) EmitEntityCreated(e *Entity, change ChangeType) {
	if change == ChangeDisconnected {
		return
	}
	for _, o := range s.snapshotObservers() {
		o.OnEntityCreated(e, change)
	}
}

// RemoveEntity removes id. Observers see the entity before it is detached.
func (s *Scene) RemoveEntity(id EntityID, change ChangeType) bool {
	e, ok := s.entities[id]
	if !ok {
		return false
	}
	if change != ChangeDisconnected {
		for _, o := range s.snapshotObservers() {
			o.OnEntityRemoved(e, change)
		}
	}
	delete(s.entities, id)
	e.scene = nil
	for _, c := range e.components {
		c.entity = nil
	}
	e.components = nil
	return true
}

// RemoveAllEntities removes every entity. When keepLocal is set, entities
// carrying LocalEntityFlag survive.
func (s *Scene) RemoveAllEntities(change ChangeType, keepLocal bool) int {
	removed := 0
	for _, e := range s.Entities() {
		if keepLocal && e.IsLocal() {
			continue
		}
		if s.RemoveEntity(e.id, change) {
			removed++
		}
	}
	return removed
}

// ChangeEntityID moves an entity to a new ID without notifying observers.
func (s *Scene) ChangeEntityID(oldID, newID EntityID) error {
	e, ok := s.entities[oldID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, oldID)
	}
	if _, ok := s.entities[newID]; ok {
		slog.Warn("entity id change target already in use, replacing", "scene", s.name, "old", oldID, "new", newID)
		s.RemoveEntity(newID, ChangeDisconnected)
	}
	delete(s.entities, oldID)
	e.id = newID
	s.entities[newID] = e
	return nil
}

// NextFreeID returns an unused replicated entity ID.
func (s *Scene) NextFreeID() EntityID {
	for {
		id := s.nextID
		s.nextID++
		if s.nextID&LocalEntityFlag != 0 {
			s.nextID = 1
		}
		if _, ok := s.entities[id]; !ok {
			return id
		}
	}
}

// NextFreeLocalID returns an unused entity ID with LocalEntityFlag set.
func (s *Scene) NextFreeLocalID() EntityID {
	for {
		id := s.nextLocalID
		s.nextLocalID++
		if s.nextLocalID&LocalEntityFlag == 0 {
			s.nextLocalID = LocalEntityFlag | 1
		}
		if _, ok := s.entities[id]; !ok {
			return id
		}
	}
}

// snapshotObservers lets observers register or unregister from inside a
// callback without disturbing the current fan-out.
func (s *Scene) snapshotObservers() []Observer {
	out := make([]Observer, len(s.observers))
	copy(out, s.observers)
	return out
}
