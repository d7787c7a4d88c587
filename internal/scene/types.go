package scene

import "fmt"

// EntityID identifies an entity within a scene. IDs with LocalEntityFlag set
// are never replicated.
type EntityID uint32

const LocalEntityFlag EntityID = 0x80000000

func (id EntityID) IsLocal() bool {
	return id&LocalEntityFlag != 0
}

func (id EntityID) String() string {
	if id.IsLocal() {
		return fmt.Sprintf("local:%d", uint32(id&^LocalEntityFlag))
	}
	return fmt.Sprintf("%d", uint32(id))
}

// ChangeType describes how a scene mutation should propagate.
type ChangeType int

const (
	// ChangeDefault resolves to ChangeReplicate for replicated components.
	ChangeDefault ChangeType = iota
	// ChangeDisconnected suppresses all observer notifications.
	ChangeDisconnected
	// ChangeLocalOnly notifies observers but is never sent over the network.
	ChangeLocalOnly
	// ChangeReplicate notifies observers and is eligible for replication.
	ChangeReplicate
)

func (c ChangeType) String() string {
	switch c {
	case ChangeDefault:
		return "default"
	case ChangeDisconnected:
		return "disconnected"
	case ChangeLocalOnly:
		return "local"
	case ChangeReplicate:
		return "replicate"
	default:
		return fmt.Sprintf("change(%d)", int(c))
	}
}

// Resolve maps ChangeDefault onto ChangeReplicate.
func (c ChangeType) Resolve() ChangeType {
	if c == ChangeDefault {
		return ChangeReplicate
	}
	return c
}

// ExecutionType is a bitmask selecting where an entity action runs.
type ExecutionType uint8

const (
	ExecLocal  ExecutionType = 1
	ExecServer ExecutionType = 2
	ExecPeers  ExecutionType = 4
)

func (e ExecutionType) Has(flag ExecutionType) bool {
	return e&flag != 0
}
