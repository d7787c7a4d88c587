package storage

import (
	"fmt"
	"regexp"

	"github.com/pixil98/go-errors"
)

// CurrentVersion is the asset envelope version written by this build.
const CurrentVersion uint = 1

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]*$`)

type ValidatingSpec interface {
	Validate() error
}

type Identifier string

func (id Identifier) String() string {
	return string(id)
}

// Asset is the envelope every stored document is written in.
type Asset[T ValidatingSpec] struct {
	Version    uint       `json:"version" yaml:"version"`
	Identifier Identifier `json:"id" yaml:"id"`
	Spec       T          `json:"spec" yaml:"spec"`
}

func (a *Asset[T]) Id() Identifier {
	return a.Identifier
}

func (a *Asset[T]) Validate() error {
	el := errors.NewErrorList()

	switch {
	case a.Version == 0:
		el.Add(fmt.Errorf("version must be set"))
	case a.Version > CurrentVersion:
		el.Add(fmt.Errorf("version %d is newer than supported version %d", a.Version, CurrentVersion))
	}

	if a.Identifier == "" {
		el.Add(fmt.Errorf("id must be set"))
	}

	if !identifierPattern.MatchString(a.Identifier.String()) {
		el.Add(fmt.Errorf("id %q may only hold letters, digits, '-' and '_'", a.Identifier))
	}

	el.Add(a.Spec.Validate())

	return el.Err()
}

// NewAsset wraps spec in a current-version envelope.
func NewAsset[T ValidatingSpec](id Identifier, spec T) *Asset[T] {
	return &Asset[T]{Version: CurrentVersion, Identifier: id, Spec: spec}
}
