package delta

import (
	"fmt"
	"strings"
)

// DeltaType describes the kind of change a delta registers on a lifetime.
type DeltaType string

const (
	// Added begins a lifetime: the token starts carrying the object.
	Added DeltaType = "Added"
	// Updated replaces the object carried by an active lifetime.
	Updated DeltaType = "Updated"
	// Deleted ends a lifetime.
	Deleted DeltaType = "Deleted"
)

// Delta registers a change on a single lifetime. For Deleted deltas the
// Object field is the zero value and must not be interpreted.
type Delta[T any] struct {
	Type     DeltaType
	Lifetime *Lifetime
	Object   T
}

// NewAdded creates a delta that begins lifetime l carrying obj.
func NewAdded[T any](l *Lifetime, obj T) Delta[T] {
	return Delta[T]{Type: Added, Lifetime: l, Object: obj}
}

// NewUpdated creates a delta that re-binds the active lifetime l to obj.
func NewUpdated[T any](l *Lifetime, obj T) Delta[T] {
	return Delta[T]{Type: Updated, Lifetime: l, Object: obj}
}

// NewDeleted creates a delta that ends lifetime l.
func NewDeleted[T any](l *Lifetime) Delta[T] {
	return Delta[T]{Type: Deleted, Lifetime: l}
}

func (d Delta[T]) String() string {
	if d.Type == Deleted {
		return fmt.Sprintf("%s(%s)", d.Type, d.Lifetime)
	}
	return fmt.Sprintf("%s(%s,%v)", d.Type, d.Lifetime, d.Object)
}

// Batch is the unit of downstream delivery: an ordered, non-empty sequence
// of deltas produced atomically from one upstream notification. A batch is a
// prefix-respecting fragment of each affected lifetime's event sequence.
type Batch[T any] []Delta[T]

func (b Batch[T]) String() string {
	ds := make([]string, len(b))
	for i, d := range b {
		ds[i] = d.String()
	}
	return "[" + strings.Join(ds, " ") + "]"
}
