package ops

import (
	"reflect"
	"slices"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

type flatMapping[U any] struct {
	down *delta.Lifetime
	val  U
}

// flatChild is the per-parent state of a flat-map: the child subscription
// and the child-token to downstream-lifetime mapping.
type flatChild[U any] struct {
	sub   stream.Subscription
	m     map[*delta.Lifetime]flatMapping[U]
	order []*delta.Lifetime
}

func newFlatChild[U any]() *flatChild[U] {
	return &flatChild[U]{m: make(map[*delta.Lifetime]flatMapping[U])}
}

type flatMapSet[T, U any] struct {
	node    *stream.Node[U]
	childFn func(T) stream.Set[U]
	equal   func(U, U) bool
	parents map[*delta.Lifetime]*flatChild[U]
	collect *delta.Batch[U] // non-nil while an upstream batch is in flight
}

// childObserver watches one child set. While capture is set (during
// subscription) it records the replay batch for the caller to process;
// afterwards it translates live child batches into downstream deltas.
type childObserver[T, U any] struct {
	op       *flatMapSet[T, U]
	child    *flatChild[U]
	capture  bool
	captured delta.Batch[U]
}

func (o *childObserver[T, U]) OnNext(batch delta.Batch[U]) {
	if o.capture {
		o.captured = append(o.captured, batch...)
		return
	}
	if o.op.collect != nil {
		o.op.translate(o.child, batch, o.op.collect)
		return
	}
	var out delta.Batch[U]
	o.op.translate(o.child, batch, &out)
	o.op.node.Emit(out)
}

func (o *childObserver[T, U]) OnError(err error) {
	// A failing child takes the whole flat-map down: its lifetimes cannot
	// be wound down without guessing at the child's final state.
	o.op.failed(err)
}

func (o *childObserver[T, U]) OnCompleted() {}

// FlatMapSet projects every upstream item to a reactive child set and
// flattens the children into one downstream set. Child lifetimes are
// re-minted downstream. An upstream update re-projects the child and diffs
// the new child's replay against the old mapping by child token: lifetimes
// present in both keep their downstream token, with equal deciding whether
// an Updated delta is due (nil defaults to reflect.DeepEqual).
func FlatMapSet[T, U any](src stream.Set[T], childFn func(T) stream.Set[U],
	equal func(U, U) bool, opts ...stream.Options,
) stream.Set[U] {
	if equal == nil {
		equal = func(a, b U) bool { return reflect.DeepEqual(a, b) }
	}
	op := &flatMapSet[T, U]{
		node:    stream.NewNode[U](src.Executor(), "flat-map", opts...),
		childFn: childFn,
		equal:   equal,
		parents: make(map[*delta.Lifetime]*flatChild[U]),
	}

	src.Subscribe(stream.ObserverFuncs[T]{
		NextFunc: func(batch delta.Batch[T]) {
			var out delta.Batch[U]
			op.collect = &out
			for _, d := range batch {
				op.parentEvent(d, &out)
			}
			op.collect = nil
			op.node.Emit(out)
		},
		ErrorFunc:     op.failed,
		CompletedFunc: op.completed,
	})

	return op.node
}

// translate maps live child deltas onto downstream lifetimes.
func (op *flatMapSet[T, U]) translate(child *flatChild[U], batch delta.Batch[U], out *delta.Batch[U]) {
	for _, d := range batch {
		switch d.Type {
		case delta.Added:
			ld := delta.NewLifetime()
			child.m[d.Lifetime] = flatMapping[U]{down: ld, val: d.Object}
			child.order = append(child.order, d.Lifetime)
			*out = append(*out, delta.NewAdded(ld, d.Object))
		case delta.Updated:
			mapping := child.m[d.Lifetime]
			mapping.val = d.Object
			child.m[d.Lifetime] = mapping
			*out = append(*out, delta.NewUpdated(mapping.down, d.Object))
		case delta.Deleted:
			mapping := child.m[d.Lifetime]
			delete(child.m, d.Lifetime)
			if i := slices.Index(child.order, d.Lifetime); i >= 0 {
				child.order = slices.Delete(child.order, i, i+1)
			}
			*out = append(*out, delta.NewDeleted[U](mapping.down))
		}
	}
}

// subscribeChild attaches to a child set, returning its replay batch.
func (op *flatMapSet[T, U]) subscribeChild(set stream.Set[U], child *flatChild[U]) delta.Batch[U] {
	obs := &childObserver[T, U]{op: op, child: child, capture: true}
	child.sub = set.Subscribe(obs)
	obs.capture = false
	return obs.captured
}

func (op *flatMapSet[T, U]) parentEvent(d delta.Delta[T], out *delta.Batch[U]) {
	switch d.Type {
	case delta.Added:
		child := newFlatChild[U]()
		op.parents[d.Lifetime] = child
		replay := op.subscribeChild(op.childFn(d.Object), child)
		op.translate(child, replay, out)

	case delta.Updated:
		prev := op.parents[d.Lifetime]
		prev.sub.Dispose()

		next := newFlatChild[U]()
		op.parents[d.Lifetime] = next
		replay := op.subscribeChild(op.childFn(d.Object), next)

		// Diff the new child's replay against the old mapping by child
		// token: shared tokens keep their downstream lifetime.
		for _, rd := range replay {
			if mapping, ok := prev.m[rd.Lifetime]; ok {
				delete(prev.m, rd.Lifetime)
				if i := slices.Index(prev.order, rd.Lifetime); i >= 0 {
					prev.order = slices.Delete(prev.order, i, i+1)
				}
				next.m[rd.Lifetime] = flatMapping[U]{down: mapping.down, val: rd.Object}
				next.order = append(next.order, rd.Lifetime)
				if !op.equal(mapping.val, rd.Object) {
					*out = append(*out, delta.NewUpdated(mapping.down, rd.Object))
				}
				continue
			}
			ld := delta.NewLifetime()
			next.m[rd.Lifetime] = flatMapping[U]{down: ld, val: rd.Object}
			next.order = append(next.order, rd.Lifetime)
			*out = append(*out, delta.NewAdded(ld, rd.Object))
		}
		for _, lc := range prev.order {
			*out = append(*out, delta.NewDeleted[U](prev.m[lc].down))
		}

	case delta.Deleted:
		child := op.parents[d.Lifetime]
		delete(op.parents, d.Lifetime)
		child.sub.Dispose()
		for _, lc := range child.order {
			*out = append(*out, delta.NewDeleted[U](child.m[lc].down))
		}
	}
}

func (op *flatMapSet[T, U]) disposeChildren() {
	for _, child := range op.parents {
		if child.sub != nil {
			child.sub.Dispose()
		}
	}
	op.parents = make(map[*delta.Lifetime]*flatChild[U])
}

func (op *flatMapSet[T, U]) failed(err error) {
	op.disposeChildren()
	op.collect = nil
	op.node.Fail(err)
}

func (op *flatMapSet[T, U]) completed() {
	op.disposeChildren()
	op.node.Complete()
}
