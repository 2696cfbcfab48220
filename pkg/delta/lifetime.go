package delta

import (
	"fmt"
	"sync/atomic"
)

var lifetimeSerial atomic.Uint64

// Lifetime is an opaque token identifying one logical item's presence in one
// stream. Lifetimes are compared by pointer identity; the numeric id exists
// for log attribution only and carries no ordering semantics.
type Lifetime struct {
	id uint64
}

// NewLifetime mints a fresh lifetime token.
func NewLifetime() *Lifetime {
	return &Lifetime{id: lifetimeSerial.Add(1)}
}

// ID returns the log-attribution id of the token.
func (l *Lifetime) ID() uint64 { return l.id }

func (l *Lifetime) String() string {
	if l == nil {
		return "lifetime:<nil>"
	}
	return fmt.Sprintf("lifetime:%d", l.id)
}
