package scene

// Observer receives scene change notifications. Notifications are delivered
// synchronously, in registration order, on the goroutine that mutated the scene.
type Observer interface {
	OnEntityCreated(e *Entity, change ChangeType)
	OnEntityRemoved(e *Entity, change ChangeType)
	OnComponentAdded(e *Entity, c *Component, change ChangeType)
	OnComponentRemoved(e *Entity, c *Component, change ChangeType)
	OnComponentChanged(c *Component, change ChangeType)
	OnAttributeChanged(c *Component, index int, change ChangeType)
	OnDynamicAttributeChanged(c *Component, name string, change ChangeType)
	OnActionTriggered(e *Entity, action string, params []string, exec ExecutionType)
}

// NopObserver implements Observer with no-ops and is meant for embedding.
type NopObserver struct{}

func (NopObserver) OnEntityCreated(*Entity, ChangeType)                        {}
func (NopObserver) OnEntityRemoved(*Entity, ChangeType)                        {}
func (NopObserver) OnComponentAdded(*Entity, *Component, ChangeType)           {}
func (NopObserver) OnComponentRemoved(*Entity, *Component, ChangeType)         {}
func (NopObserver) OnComponentChanged(*Component, ChangeType)                  {}
func (NopObserver) OnAttributeChanged(*Component, int, ChangeType)             {}
func (NopObserver) OnDynamicAttributeChanged(*Component, string, ChangeType)   {}
func (NopObserver) OnActionTriggered(*Entity, string, []string, ExecutionType) {}

// ActionHandler runs an entity action locally.
type ActionHandler func(e *Entity, params []string)
