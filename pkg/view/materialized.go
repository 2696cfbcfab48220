package view

import (
	"slices"

	"github.com/go-logr/logr"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

type matEntry[T any] struct {
	lifetime *delta.Lifetime
	obj      T
}

// Materialized follows a reactive set and answers synchronous keyed queries
// against its current membership. Mutations on the same pipeline are visible
// the moment the mutation call returns. Queries are consistent on the
// pipeline goroutine; callers elsewhere synchronize externally. Disposing
// the view detaches it: later upstream changes are no longer reflected.
type Materialized[T any, K comparable] struct {
	exec    *stream.Executor
	log     logr.Logger
	keyFn   func(T) K
	byToken map[*delta.Lifetime]K
	byKey   map[K]matEntry[T]
	order   []K
	sub     stream.Subscription
	err     error
}

// NewMaterialized subscribes a materialized view to src under keyFn.
func NewMaterialized[T any, K comparable](src stream.Set[T], keyFn func(T) K, opts ...stream.Options) *Materialized[T, K] {
	logger := src.Executor().Logger()
	for _, o := range opts {
		if o.Logger.GetSink() != nil {
			logger = o.Logger
			break
		}
	}
	v := &Materialized[T, K]{
		exec:    src.Executor(),
		log:     logger.WithName("materialized"),
		keyFn:   keyFn,
		byToken: make(map[*delta.Lifetime]K),
		byKey:   make(map[K]matEntry[T]),
	}
	v.sub = src.Subscribe(stream.ObserverFuncs[T]{
		NextFunc: v.apply,
		ErrorFunc: func(err error) {
			// The upstream cascade has already deleted every lifetime.
			v.err = err
		},
	})
	return v
}

func (v *Materialized[T, K]) apply(batch delta.Batch[T]) {
	v.log.V(8).Info("apply", "batch", batch.String())
	for _, d := range batch {
		switch d.Type {
		case delta.Added:
			k := v.keyFn(d.Object)
			v.byToken[d.Lifetime] = k
			v.byKey[k] = matEntry[T]{lifetime: d.Lifetime, obj: d.Object}
			v.order = append(v.order, k)
		case delta.Updated:
			prev := v.byToken[d.Lifetime]
			k := v.keyFn(d.Object)
			if k != prev {
				delete(v.byKey, prev)
				if i := slices.Index(v.order, prev); i >= 0 {
					v.order[i] = k
				}
				v.byToken[d.Lifetime] = k
			}
			v.byKey[k] = matEntry[T]{lifetime: d.Lifetime, obj: d.Object}
		case delta.Deleted:
			k := v.byToken[d.Lifetime]
			delete(v.byToken, d.Lifetime)
			delete(v.byKey, k)
			if i := slices.Index(v.order, k); i >= 0 {
				v.order = slices.Delete(v.order, i, i+1)
			}
		}
	}
}

// Executor returns the pipeline the view follows. Queries issued while the
// caller holds the pipeline (Executor().Do) are consistent from any
// goroutine.
func (v *Materialized[T, K]) Executor() *stream.Executor { return v.exec }

// Len returns the number of items in the view.
func (v *Materialized[T, K]) Len() int { return len(v.byKey) }

// Get returns the item stored under key k.
func (v *Materialized[T, K]) Get(k K) (T, bool) {
	entry, ok := v.byKey[k]
	return entry.obj, ok
}

// Has reports whether key k is present.
func (v *Materialized[T, K]) Has(k K) bool {
	_, ok := v.byKey[k]
	return ok
}

// List returns the items in insertion order.
func (v *Materialized[T, K]) List() []T {
	items := make([]T, 0, len(v.order))
	for _, k := range v.order {
		items = append(items, v.byKey[k].obj)
	}
	return items
}

// Err returns the terminal error of the followed set, if any.
func (v *Materialized[T, K]) Err() error { return v.err }

// Dispose detaches the view from its source. Idempotent.
func (v *Materialized[T, K]) Dispose() { v.sub.Dispose() }
