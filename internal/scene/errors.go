package scene

import "errors"

var (
	ErrEntityExists         = errors.New("entity already exists")
	ErrEntityNotFound       = errors.New("entity not found")
	ErrUnknownComponentType = errors.New("unknown component type")
	ErrAttributeIndex       = errors.New("attribute index out of range")
	ErrNotDynamic           = errors.New("component is not dynamic")
	ErrMalformedData        = errors.New("malformed component data")
)
