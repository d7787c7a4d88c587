package scene

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

// Document is the serializable form of a scene.
type Document struct {
	Name     string           `json:"name,omitempty" yaml:"name,omitempty"`
	Entities []EntityDocument `json:"entities" yaml:"entities"`
}

type EntityDocument struct {
	ID         EntityID            `json:"id" yaml:"id"`
	Components []ComponentDocument `json:"components" yaml:"components"`
}

type ComponentDocument struct {
	Type       string      `json:"type" yaml:"type"`
	Name       string      `json:"name,omitempty" yaml:"name,omitempty"`
	Sync       *bool       `json:"sync,omitempty" yaml:"sync,omitempty"`
	Attributes []Attribute `json:"attributes" yaml:"attributes"`
}

func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("document is empty")
	}
	el := errors.NewErrorList()

	seen := map[EntityID]bool{}
	for i, e := range d.Entities {
		if e.ID == 0 {
			el.Add(fmt.Errorf("entity %d: id must be set", i))
		}
		if seen[e.ID] {
			el.Add(fmt.Errorf("entity %d: duplicate id %s", i, e.ID))
		}
		seen[e.ID] = true
		for j, c := range e.Components {
			if c.Type == "" {
				el.Add(fmt.Errorf("entity %s component %d: type must be set", e.ID, j))
			}
		}
	}

	return el.Err()
}

// Snapshot captures every entity in the scene.
func (s *Scene) Snapshot() *Document {
	doc := &Document{Name: s.name, Entities: []EntityDocument{}}
	for _, e := range s.Entities() {
		ed := EntityDocument{ID: e.id, Components: []ComponentDocument{}}
		for _, c := range e.components {
			cd := ComponentDocument{
				Type:       c.typeName,
				Name:       c.name,
				Attributes: c.Attributes(),
			}
			if !c.networkSync {
				sync := false
				cd.Sync = &sync
			}
			ed.Components = append(ed.Components, cd)
		}
		doc.Entities = append(doc.Entities, ed)
	}
	return doc
}

// Load instantiates every entity in doc. When clear is set the scene is
// emptied first. Entities already present are replaced. Each created
// entity is announced with change once all of its components are filled in.
func (s *Scene) Load(doc *Document, clear bool, change ChangeType) (int, error) {
	if err := doc.Validate(); err != nil {
		return 0, fmt.Errorf("validating document: %w", err)
	}
	if clear {
		s.RemoveAllEntities(change, false)
	}

	loaded := 0
	for _, ed := range doc.Entities {
		if _, ok := s.entities[ed.ID]; ok {
			s.RemoveEntity(ed.ID, change)
		}
		e, err := s.CreateEntity(ed.ID, ChangeDisconnected)
		if err != nil {
			return loaded, err
		}
		for _, cd := range ed.Components {
			t, ok := s.registry.LookupName(cd.Type)
			if !ok {
				return loaded, fmt.Errorf("entity %s: %w: %s", ed.ID, ErrUnknownComponentType, cd.Type)
			}
			c := newComponent(t, cd.Name)
			if cd.Sync != nil {
				c.networkSync = *cd.Sync
			}
			if t.Dynamic {
				c.attrs = append([]Attribute(nil), cd.Attributes...)
			} else {
				for _, a := range cd.Attributes {
					if i := c.indexOf(a.Name); i >= 0 {
						c.setValue(i, a.Value)
					}
				}
			}
			if err := e.AddComponent(c, ChangeDisconnected); err != nil {
				return loaded, err
			}
		}
		s.EmitEntityCreated(e, change)
		for _, c := range e.components {
			c.EmitChanged(change)
		}
		loaded++
	}
	return loaded, nil
}
