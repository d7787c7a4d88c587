package scene

import "fmt"

// Attribute is a named string-valued field of a component.
type Attribute struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Component is a typed, named bundle of attributes attached to an entity.
type Component struct {
	typeName    string
	typeID      uint32
	name        string
	dynamic     bool
	networkSync bool
	attrs       []Attribute
	entity      *Entity
}

func newComponent(t ComponentType, name string) *Component {
	c := &Component{
		typeName:    t.Name,
		typeID:      t.TypeID(),
		name:        name,
		dynamic:     t.Dynamic,
		networkSync: true,
	}
	for _, a := range t.Attributes {
		c.attrs = append(c.attrs, Attribute{Name: a})
	}
	return c
}

func (c *Component) TypeID() uint32     { return c.typeID }
func (c *Component) TypeName() string   { return c.typeName }
func (c *Component) Name() string       { return c.name }
func (c *Component) IsDynamic() bool    { return c.dynamic }
func (c *Component) NetworkSync() bool  { return c.networkSync }
func (c *Component) Entity() *Entity    { return c.entity }
func (c *Component) NumAttributes() int { return len(c.attrs) }

// SetNetworkSync toggles replication for this component. Must be called
// before the component is attached to take effect for the initial create.
func (c *Component) SetNetworkSync(sync bool) {
	c.networkSync = sync
}

// Attributes returns a copy of the attribute list.
func (c *Component) Attributes() []Attribute {
	out := make([]Attribute, len(c.attrs))
	copy(out, c.attrs)
	return out
}

func (c *Component) Attribute(index int) (Attribute, bool) {
	if index < 0 || index >= len(c.attrs) {
		return Attribute{}, false
	}
	return c.attrs[index], true
}

func (c *Component) AttributeValue(name string) (string, bool) {
	i := c.indexOf(name)
	if i < 0 {
		return "", false
	}
	return c.attrs[i].Value, true
}

// SetAttribute sets the value at index and notifies observers. Setting an
// attribute to its current value is a no-op.
func (c *Component) SetAttribute(index int, value string, change ChangeType) error {
	if index < 0 || index >= len(c.attrs) {
		return fmt.Errorf("%w: %d", ErrAttributeIndex, index)
	}
	if c.attrs[index].Value == value {
		return nil
	}
	c.attrs[index].Value = value
	c.EmitAttributeChanged(index, change)
	return nil
}

// SetAttributeByName sets a static attribute by name, or creates and sets a
// named attribute on a dynamic component.
func (c *Component) SetAttributeByName(name, value string, change ChangeType) error {
	if c.dynamic {
		return c.SetDynamicAttribute(name, value, change)
	}
	i := c.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%s has no attribute %q", c.typeName, name)
	}
	return c.SetAttribute(i, value, change)
}

func (c *Component) SetDynamicAttribute(name, value string, change ChangeType) error {
	if !c.dynamic {
		return ErrNotDynamic
	}
	i := c.indexOf(name)
	if i < 0 {
		c.attrs = append(c.attrs, Attribute{Name: name, Value: value})
	} else {
		if c.attrs[i].Value == value {
			return nil
		}
		c.attrs[i].Value = value
	}
	c.EmitDynamicAttributeChanged(name, change)
	return nil
}

func (c *Component) RemoveDynamicAttribute(name string, change ChangeType) error {
	if !c.dynamic {
		return ErrNotDynamic
	}
	i := c.indexOf(name)
	if i < 0 {
		return nil
	}
	c.attrs = append(c.attrs[:i], c.attrs[i+1:]...)
	c.EmitDynamicAttributeChanged(name, change)
	return nil
}

// EmitChanged notifies observers that the whole component changed.
func (c *Component) EmitChanged(change ChangeType) {
	if s := c.scene(); s != nil && change != ChangeDisconnected {
		for _, o := range s.snapshotObservers() {
			o.OnComponentChanged(c, change)
		}
	}
}

func (c *Component) EmitAttributeChanged(index int, change ChangeType) {
	if c.dynamic {
		if a, ok := c.Attribute(index); ok {
			c.EmitDynamicAttributeChanged(a.Name, change)
		}
		return
	}
	if s := c.scene(); s != nil && change != ChangeDisconnected {
		for _, o := range s.snapshotObservers() {
			o.OnAttributeChanged(c, index, change)
		}
	}
}

func (c *Component) EmitDynamicAttributeChanged(name string, change ChangeType) {
	if s := c.scene(); s != nil && change != ChangeDisconnected {
		for _, o := range s.snapshotObservers() {
			o.OnDynamicAttributeChanged(c, name, change)
		}
	}
}

func (c *Component) scene() *Scene {
	if c.entity == nil {
		return nil
	}
	return c.entity.scene
}

func (c *Component) indexOf(name string) int {
	for i, a := range c.attrs {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// setValue overwrites an attribute value without notifying observers.
func (c *Component) setValue(index int, value string) {
	c.attrs[index].Value = value
}
