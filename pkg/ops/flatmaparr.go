package ops

import (
	"reflect"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

type arrEntry[U any] struct {
	down *delta.Lifetime
	val  U
}

type arrState[U any, KU comparable] struct {
	m     map[KU]arrEntry[U]
	order []KU
}

type flatMapKeyed[T, U any, KU comparable] struct {
	node     *stream.Node[U]
	arrFn    func(T) []U
	childKey func(U) KU
	equal    func(U, U) bool
	parents  map[*delta.Lifetime]*arrState[U, KU]
}

// FlatMapKeyed projects every upstream item to an array of children keyed by
// childKey and flattens them into one downstream set. An upstream update
// re-evaluates the array and diffs it against the previous one by child key:
// surviving keys keep their downstream lifetime, with equal deciding whether
// an Updated delta is due (nil defaults to reflect.DeepEqual). Late
// duplicates of a child key within one array overwrite.
func FlatMapKeyed[T, U any, KU comparable](src stream.Set[T], arrFn func(T) []U,
	childKey func(U) KU, equal func(U, U) bool, opts ...stream.Options,
) stream.Set[U] {
	if equal == nil {
		equal = func(a, b U) bool { return reflect.DeepEqual(a, b) }
	}
	op := &flatMapKeyed[T, U, KU]{
		node:     stream.NewNode[U](src.Executor(), "flat-map-keyed", opts...),
		arrFn:    arrFn,
		childKey: childKey,
		equal:    equal,
		parents:  make(map[*delta.Lifetime]*arrState[U, KU]),
	}

	src.Subscribe(stream.ObserverFuncs[T]{
		NextFunc: func(batch delta.Batch[T]) {
			var out delta.Batch[U]
			for _, d := range batch {
				op.parentEvent(d, &out)
			}
			op.node.Emit(out)
		},
		ErrorFunc: func(err error) {
			op.parents = make(map[*delta.Lifetime]*arrState[U, KU])
			op.node.Fail(err)
		},
		CompletedFunc: op.node.Complete,
	})

	return op.node
}

func (op *flatMapKeyed[T, U, KU]) eval(obj T) (map[KU]U, []KU) {
	arr := op.arrFn(obj)
	vals := make(map[KU]U, len(arr))
	order := make([]KU, 0, len(arr))
	for _, u := range arr {
		k := op.childKey(u)
		if _, ok := vals[k]; !ok {
			order = append(order, k)
		}
		vals[k] = u
	}
	return vals, order
}

func (op *flatMapKeyed[T, U, KU]) parentEvent(d delta.Delta[T], out *delta.Batch[U]) {
	switch d.Type {
	case delta.Added:
		vals, order := op.eval(d.Object)
		state := &arrState[U, KU]{m: make(map[KU]arrEntry[U], len(vals)), order: order}
		op.parents[d.Lifetime] = state
		for _, k := range order {
			ld := delta.NewLifetime()
			state.m[k] = arrEntry[U]{down: ld, val: vals[k]}
			*out = append(*out, delta.NewAdded(ld, vals[k]))
		}

	case delta.Updated:
		prev := op.parents[d.Lifetime]
		vals, order := op.eval(d.Object)
		state := &arrState[U, KU]{m: make(map[KU]arrEntry[U], len(vals)), order: order}
		op.parents[d.Lifetime] = state

		for _, k := range prev.order {
			if _, ok := vals[k]; !ok {
				*out = append(*out, delta.NewDeleted[U](prev.m[k].down))
			}
		}
		for _, k := range order {
			u := vals[k]
			if entry, ok := prev.m[k]; ok {
				state.m[k] = arrEntry[U]{down: entry.down, val: u}
				if !op.equal(entry.val, u) {
					*out = append(*out, delta.NewUpdated(entry.down, u))
				}
				continue
			}
			ld := delta.NewLifetime()
			state.m[k] = arrEntry[U]{down: ld, val: u}
			*out = append(*out, delta.NewAdded(ld, u))
		}

	case delta.Deleted:
		state := op.parents[d.Lifetime]
		delete(op.parents, d.Lifetime)
		for _, k := range state.order {
			*out = append(*out, delta.NewDeleted[U](state.m[k].down))
		}
	}
}
