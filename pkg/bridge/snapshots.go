package bridge

import (
	"reflect"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

type snapshotEntry[T any] struct {
	lifetime *delta.Lifetime
	obj      T
}

type snapshotDiff[T any, K comparable] struct {
	*stream.Node[T]
	keyFn func(T) K
	equal func(T, T) bool
	prev  map[K]snapshotEntry[T]
	order []K
}

// FromSnapshots adapts a push-stream of full collection snapshots into a
// reactive set by diffing consecutive snapshots under keyFn. A key present
// in both snapshots keeps its lifetime; an Updated delta is produced only
// when the item value changed under equal (nil defaults to
// reflect.DeepEqual). Late duplicates of a key within one snapshot
// overwrite. Upstream completion retires all lifetimes and leaves the set
// open; upstream failure retires them and propagates the error.
func FromSnapshots[T any, K comparable](exec *stream.Executor, src stream.Observable[[]T], keyFn func(T) K,
	equal func(T, T) bool, opts ...stream.Options,
) stream.Set[T] {
	if equal == nil {
		equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}
	b := &snapshotDiff[T, K]{
		Node:  stream.NewNode[T](exec, "snapshot-diff", opts...),
		keyFn: keyFn,
		equal: equal,
		prev:  make(map[K]snapshotEntry[T]),
	}

	src.Subscribe(stream.ValueObserverFuncs[[]T]{
		NextFunc: func(snapshot []T) {
			exec.Do(func() { b.diff(snapshot) })
		},
		CompletedFunc: func() {
			exec.Do(func() {
				b.prev, b.order = make(map[K]snapshotEntry[T]), nil
				b.RetireAll()
			})
		},
		ErrorFunc: func(err error) {
			exec.Do(func() {
				b.prev, b.order = make(map[K]snapshotEntry[T]), nil
				b.Fail(delta.WrapUpstream(err))
			})
		},
	})

	return b
}

func (b *snapshotDiff[T, K]) diff(snapshot []T) {
	next := make(map[K]T, len(snapshot))
	nextOrder := make([]K, 0, len(snapshot))
	for _, obj := range snapshot {
		k := b.keyFn(obj)
		if _, ok := next[k]; !ok {
			nextOrder = append(nextOrder, k)
		}
		next[k] = obj
	}

	var batch delta.Batch[T]
	state := make(map[K]snapshotEntry[T], len(snapshot))

	// Departures first, in previous-snapshot order.
	for _, k := range b.order {
		if _, ok := next[k]; !ok {
			batch = append(batch, delta.NewDeleted[T](b.prev[k].lifetime))
		}
	}

	// Then survivors and arrivals, in new-snapshot order.
	for _, k := range nextOrder {
		obj := next[k]
		if entry, ok := b.prev[k]; ok {
			if !b.equal(entry.obj, obj) {
				batch = append(batch, delta.NewUpdated(entry.lifetime, obj))
			}
			state[k] = snapshotEntry[T]{lifetime: entry.lifetime, obj: obj}
			continue
		}
		l := delta.NewLifetime()
		state[k] = snapshotEntry[T]{lifetime: l, obj: obj}
		batch = append(batch, delta.NewAdded(l, obj))
	}

	b.prev, b.order = state, nextOrder
	b.Emit(batch)
}
