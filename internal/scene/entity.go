package scene

import "fmt"

// Entity is an ID plus an ordered list of components.
type Entity struct {
	id         EntityID
	scene      *Scene
	components []*Component
}

func (e *Entity) ID() EntityID  { return e.id }
func (e *Entity) Scene() *Scene { return e.scene }
func (e *Entity) IsLocal() bool { return e.id.IsLocal() }

// Components returns the components in attach order.
func (e *Entity) Components() []*Component {
	out := make([]*Component, len(e.components))
	copy(out, e.components)
	return out
}

func (e *Entity) Component(typeID uint32, name string) *Component {
	for _, c := range e.components {
		if c.typeID == typeID && c.name == name {
			return c
		}
	}
	return nil
}

func (e *Entity) ComponentByTypeName(typeName, name string) *Component {
	return e.Component(TypeIDOf(typeName), name)
}

// GetOrCreateComponent returns the component with the given type and name,
// creating it from the scene registry if absent.
func (e *Entity) GetOrCreateComponent(typeID uint32, name string, change ChangeType) (*Component, error) {
	if c := e.Component(typeID, name); c != nil {
		return c, nil
	}
	c, err := e.scene.registry.New(typeID, name)
	if err != nil {
		return nil, err
	}
	if err := e.AddComponent(c, change); err != nil {
		return nil, err
	}
	return c, nil
}

// AddComponent attaches a detached component.
func (e *Entity) AddComponent(c *Component, change ChangeType) error {
	if c.entity != nil {
		return fmt.Errorf("component %s/%q already attached to entity %s", c.typeName, c.name, c.entity.id)
	}
	if e.Component(c.typeID, c.name) != nil {
		return fmt.Errorf("entity %s already has component %s/%q", e.id, c.typeName, c.name)
	}
	c.entity = e
	e.components = append(e.components, c)
	if change != ChangeDisconnected {
		for _, o := range e.scene.snapshotObservers() {
			o.OnComponentAdded(e, c, change)
		}
	}
	return nil
}

// RemoveComponent detaches c. Observers see the component before it is
// detached.
func (e *Entity) RemoveComponent(c *Component, change ChangeType) bool {
	for i, existing := range e.components {
		if existing != c {
			continue
		}
		if change != ChangeDisconnected {
			for _, o := range e.scene.snapshotObservers() {
				o.OnComponentRemoved(e, c, change)
			}
		}
		e.components = append(e.components[:i], e.components[i+1:]...)
		c.entity = nil
		return true
	}
	return false
}

// Exec runs action through the handlers registered on the scene.
func (e *Entity) Exec(action string, params []string) {
	for _, h := range e.scene.actions[action] {
		h(e, params)
	}
}

// TriggerAction runs action locally when exec includes ExecLocal and then
// announces it to observers, which forward it to the other execution targets.
func (e *Entity) TriggerAction(action string, params []string, exec ExecutionType) {
	if exec.Has(ExecLocal) {
		e.Exec(action, params)
	}
	for _, o := range e.scene.snapshotObservers() {
		o.OnActionTriggered(e, action, params, exec)
	}
}
