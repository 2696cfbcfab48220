package source

import (
	"github.com/cockroachdb/errors"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

type mutableEntry[T any] struct {
	lifetime *delta.Lifetime
	obj      T
}

// Mutable is a reactive set driven imperatively through Add, Update and
// Delete, keyed by a caller-supplied key function. Each active key owns one
// lifetime: the token minted by Add survives every Update and is retired by
// Delete. Mutations are serialized on the pipeline and have fully propagated
// downstream by the time they return.
type Mutable[T any, K comparable] struct {
	*stream.Node[T]

	keyFn func(T) K
	byKey map[K]mutableEntry[T]
}

// NewMutable creates a mutable source on the given pipeline. Keys are
// compared with natural (==) equality; callers needing a different relation
// normalize keys inside keyFn.
func NewMutable[T any, K comparable](exec *stream.Executor, keyFn func(T) K, opts ...stream.Options) *Mutable[T, K] {
	return &Mutable[T, K]{
		Node:  stream.NewNode[T](exec, "mutable", opts...),
		keyFn: keyFn,
		byKey: make(map[K]mutableEntry[T]),
	}
}

// Add inserts obj under its key, minting a fresh lifetime. Fails with
// delta.ErrDuplicateKey if the key is already active.
func (s *Mutable[T, K]) Add(obj T) error {
	var reterr error
	s.Executor().Do(func() {
		k := s.keyFn(obj)
		if _, ok := s.byKey[k]; ok {
			reterr = errors.Wrapf(delta.ErrDuplicateKey, "add: key %v is already active", k)
			return
		}

		l := delta.NewLifetime()
		s.byKey[k] = mutableEntry[T]{lifetime: l, obj: obj}

		s.Logger().V(4).Info("add", "key", k, "lifetime", l)
		s.Emit(delta.Batch[T]{delta.NewAdded(l, obj)})
	})
	return reterr
}

// Update replaces the object carried by the key of obj, preserving its
// lifetime. Redundant updates still emit. Fails with delta.ErrAbsentKey if
// the key is not active.
func (s *Mutable[T, K]) Update(obj T) error {
	var reterr error
	s.Executor().Do(func() {
		k := s.keyFn(obj)
		entry, ok := s.byKey[k]
		if !ok {
			reterr = errors.Wrapf(delta.ErrAbsentKey, "update: key %v is not active", k)
			return
		}

		entry.obj = obj
		s.byKey[k] = entry

		s.Logger().V(4).Info("update", "key", k, "lifetime", entry.lifetime)
		s.Emit(delta.Batch[T]{delta.NewUpdated(entry.lifetime, obj)})
	})
	return reterr
}

// Delete retires the lifetime owned by key k. Fails with delta.ErrAbsentKey
// if the key is not active.
func (s *Mutable[T, K]) Delete(k K) error {
	var reterr error
	s.Executor().Do(func() {
		entry, ok := s.byKey[k]
		if !ok {
			reterr = errors.Wrapf(delta.ErrAbsentKey, "delete: key %v is not active", k)
			return
		}

		delete(s.byKey, k)

		s.Logger().V(4).Info("delete", "key", k, "lifetime", entry.lifetime)
		s.Emit(delta.Batch[T]{delta.NewDeleted[T](entry.lifetime)})
	})
	return reterr
}
