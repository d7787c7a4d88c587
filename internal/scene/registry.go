package scene

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// ComponentType describes the attribute layout of a component type.
type ComponentType struct {
	Name       string
	Attributes []string
	// Dynamic components carry a free-form, named attribute list instead of
	// a fixed layout.
	Dynamic bool
}

// TypeID returns the network identifier of the type.
func (t ComponentType) TypeID() uint32 {
	return TypeIDOf(t.Name)
}

// TypeIDOf hashes a component type name into its network identifier.
func TypeIDOf(typeName string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(typeName))
	return h.Sum32()
}

// Registry maps component type identifiers onto their layouts.
type Registry struct {
	types map[uint32]ComponentType
}

func NewRegistry(types ...ComponentType) *Registry {
	r := &Registry{types: map[uint32]ComponentType{}}
	for _, t := range types {
		r.Register(t)
	}
	return r
}

// DefaultRegistry returns a registry holding the stock component types.
func DefaultRegistry() *Registry {
	return NewRegistry(
		ComponentType{Name: "EC_Name", Attributes: []string{"name", "description"}},
		ComponentType{Name: "EC_Placeable", Attributes: []string{"transform", "drawDebug", "visible", "selectionLayer"}},
		ComponentType{Name: "EC_Mesh", Attributes: []string{"meshRef", "skeletonRef", "materialRefs", "castShadows"}},
		ComponentType{Name: "EC_Script", Attributes: []string{"scriptRef", "runOnLoad", "runMode"}},
		ComponentType{Name: "EC_DynamicComponent", Dynamic: true},
	)
}

// Register adds t and returns its type identifier. A later registration with
// the same name replaces the earlier one.
func (r *Registry) Register(t ComponentType) uint32 {
	id := t.TypeID()
	r.types[id] = t
	return id
}

func (r *Registry) Lookup(typeID uint32) (ComponentType, bool) {
	t, ok := r.types[typeID]
	return t, ok
}

func (r *Registry) LookupName(typeName string) (ComponentType, bool) {
	return r.Lookup(TypeIDOf(typeName))
}

// Types returns every registered type ordered by name.
func (r *Registry) Types() []ComponentType {
	out := make([]ComponentType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// New instantiates a detached component of the given type.
func (r *Registry) New(typeID uint32, name string) (*Component, error) {
	t, ok := r.types[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%08x", ErrUnknownComponentType, typeID)
	}
	return newComponent(t, name), nil
}
