package ops

import (
	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

type leftJoin[L, R, U any, K comparable] struct {
	*stream.Node[U]
	project func(L, *R) U

	left  joinSide[L, K]
	right joinSide[R, K]
	pairs map[pairKey]*delta.Lifetime

	// nullRight maps a left token with no matching right to the downstream
	// lifetime standing in for the missing match. The first right to match
	// inherits that lifetime, so downstream observes an update rather than
	// a delete/add churn.
	nullRight map[*delta.Lifetime]*delta.Lifetime

	leftSub, rightSub   stream.Subscription
	leftDone, rightDone bool
}

// LeftJoin matches left and right on equal keys, many-to-many, keeping every
// left represented downstream at all times: one downstream lifetime per
// matching right, or a single null-right lifetime projected with a nil right
// while no right matches. The null-right lifetime is reassigned to the first
// matching pair; losing the last match mints a fresh null-right. Both inputs
// must belong to the same pipeline.
func LeftJoin[L, R, U any, K comparable](left stream.Set[L], right stream.Set[R],
	leftKey func(L) K, rightKey func(R) K, project func(L, *R) U, opts ...stream.Options,
) stream.Set[U] {
	samePipeline(left.Executor(), right.Executor())

	j := &leftJoin[L, R, U, K]{
		Node:      stream.NewNode[U](left.Executor(), "left-join", opts...),
		project:   project,
		left:      newJoinSide[L, K](leftKey),
		right:     newJoinSide[R, K](rightKey),
		pairs:     make(map[pairKey]*delta.Lifetime),
		nullRight: make(map[*delta.Lifetime]*delta.Lifetime),
	}

	j.leftSub = left.Subscribe(stream.ObserverFuncs[L]{
		NextFunc: func(batch delta.Batch[L]) {
			var out delta.Batch[U]
			for _, d := range batch {
				j.leftEvent(d, &out)
			}
			j.Emit(out)
		},
		ErrorFunc:     func(err error) { j.inputFailed(err, j.rightSub) },
		CompletedFunc: func() { j.leftDone = true; j.inputCompleted() },
	})
	j.rightSub = right.Subscribe(stream.ObserverFuncs[R]{
		NextFunc: func(batch delta.Batch[R]) {
			var out delta.Batch[U]
			for _, d := range batch {
				j.rightEvent(d, &out)
			}
			j.Emit(out)
		},
		ErrorFunc:     func(err error) { j.inputFailed(err, j.leftSub) },
		CompletedFunc: func() { j.rightDone = true; j.inputCompleted() },
	})

	return j
}

func (j *leftJoin[L, R, U, K]) leftEvent(d delta.Delta[L], out *delta.Batch[U]) {
	switch d.Type {
	case delta.Added:
		k := j.left.insert(d.Lifetime, d.Object)
		j.matchLeft(d.Lifetime, d.Object, k, out)

	case delta.Updated:
		prev := j.left.byToken[d.Lifetime]
		k := j.left.keyFn(d.Object)
		if k == prev.key {
			j.left.byToken[d.Lifetime] = joinEntry[L, K]{key: k, obj: d.Object}
			for _, lr := range j.right.byKey[k] {
				*out = append(*out, delta.NewUpdated(j.pairs[pairKey{d.Lifetime, lr}],
					j.project(d.Object, ptr(j.right.byToken[lr].obj))))
			}
			if ld, ok := j.nullRight[d.Lifetime]; ok {
				*out = append(*out, delta.NewUpdated(ld, j.project(d.Object, nil)))
			}
			return
		}
		j.unmatchLeft(d.Lifetime, prev.key, out)
		j.left.unbucket(prev.key, d.Lifetime)
		j.left.byToken[d.Lifetime] = joinEntry[L, K]{key: k, obj: d.Object}
		j.left.byKey[k] = append(j.left.byKey[k], d.Lifetime)
		j.matchLeft(d.Lifetime, d.Object, k, out)

	case delta.Deleted:
		entry := j.left.remove(d.Lifetime)
		j.unmatchLeft(d.Lifetime, entry.key, out)
	}
}

// matchLeft represents a (re)keyed left downstream: one pair per matching
// right, or a fresh null-right when none match.
func (j *leftJoin[L, R, U, K]) matchLeft(ll *delta.Lifetime, obj L, k K, out *delta.Batch[U]) {
	rights := j.right.byKey[k]
	if len(rights) == 0 {
		ld := delta.NewLifetime()
		j.nullRight[ll] = ld
		*out = append(*out, delta.NewAdded(ld, j.project(obj, nil)))
		return
	}
	for _, lr := range rights {
		ld := delta.NewLifetime()
		j.pairs[pairKey{ll, lr}] = ld
		*out = append(*out, delta.NewAdded(ld, j.project(obj, ptr(j.right.byToken[lr].obj))))
	}
}

// unmatchLeft retires every downstream lifetime tied to a left: its pairs
// under key k and any null-right stand-in.
func (j *leftJoin[L, R, U, K]) unmatchLeft(ll *delta.Lifetime, k K, out *delta.Batch[U]) {
	for _, lr := range j.right.byKey[k] {
		pk := pairKey{ll, lr}
		*out = append(*out, delta.NewDeleted[U](j.pairs[pk]))
		delete(j.pairs, pk)
	}
	if ld, ok := j.nullRight[ll]; ok {
		delete(j.nullRight, ll)
		*out = append(*out, delta.NewDeleted[U](ld))
	}
}

func (j *leftJoin[L, R, U, K]) rightEvent(d delta.Delta[R], out *delta.Batch[U]) {
	switch d.Type {
	case delta.Added:
		k := j.right.insert(d.Lifetime, d.Object)
		j.matchRight(d.Lifetime, d.Object, k, out)

	case delta.Updated:
		prev := j.right.byToken[d.Lifetime]
		k := j.right.keyFn(d.Object)
		if k == prev.key {
			j.right.byToken[d.Lifetime] = joinEntry[R, K]{key: k, obj: d.Object}
			for _, ll := range j.left.byKey[k] {
				*out = append(*out, delta.NewUpdated(j.pairs[pairKey{ll, d.Lifetime}],
					j.project(j.left.byToken[ll].obj, &d.Object)))
			}
			return
		}
		// Departing rights retire their pairs, restoring null-rights for
		// lefts that lost their last match, before any new-key matching.
		j.right.unbucket(prev.key, d.Lifetime)
		j.unmatchRight(d.Lifetime, prev.key, out)
		j.right.byToken[d.Lifetime] = joinEntry[R, K]{key: k, obj: d.Object}
		j.right.byKey[k] = append(j.right.byKey[k], d.Lifetime)
		j.matchRight(d.Lifetime, d.Object, k, out)

	case delta.Deleted:
		entry := j.right.byToken[d.Lifetime]
		delete(j.right.byToken, d.Lifetime)
		j.right.unbucket(entry.key, d.Lifetime)
		j.unmatchRight(d.Lifetime, entry.key, out)
	}
}

// matchRight pairs a (re)keyed right with every left carrying its key. A
// left waiting on a null-right hands that downstream lifetime over to the
// pair, observed as an update; every other left gains a fresh pair.
func (j *leftJoin[L, R, U, K]) matchRight(lr *delta.Lifetime, obj R, k K, out *delta.Batch[U]) {
	for _, ll := range j.left.byKey[k] {
		lobj := j.left.byToken[ll].obj
		if ld, ok := j.nullRight[ll]; ok {
			delete(j.nullRight, ll)
			j.pairs[pairKey{ll, lr}] = ld
			*out = append(*out, delta.NewUpdated(ld, j.project(lobj, &obj)))
			continue
		}
		ld := delta.NewLifetime()
		j.pairs[pairKey{ll, lr}] = ld
		*out = append(*out, delta.NewAdded(ld, j.project(lobj, &obj)))
	}
}

// unmatchRight retires the pairs of a right that left key k. Lefts that lost
// their last match get a fresh null-right, after all the deletes. The caller
// must have unbucketed the right already.
func (j *leftJoin[L, R, U, K]) unmatchRight(lr *delta.Lifetime, k K, out *delta.Batch[U]) {
	lefts := j.left.byKey[k]
	for _, ll := range lefts {
		pk := pairKey{ll, lr}
		*out = append(*out, delta.NewDeleted[U](j.pairs[pk]))
		delete(j.pairs, pk)
	}
	if len(j.right.byKey[k]) > 0 {
		return
	}
	for _, ll := range lefts {
		ld := delta.NewLifetime()
		j.nullRight[ll] = ld
		*out = append(*out, delta.NewAdded(ld, j.project(j.left.byToken[ll].obj, nil)))
	}
}

func (j *leftJoin[L, R, U, K]) inputFailed(err error, other stream.Subscription) {
	if other != nil {
		other.Dispose()
	}
	j.left.clear()
	j.right.clear()
	j.pairs = make(map[pairKey]*delta.Lifetime)
	j.nullRight = make(map[*delta.Lifetime]*delta.Lifetime)
	j.Fail(err)
}

func (j *leftJoin[L, R, U, K]) inputCompleted() {
	if j.leftDone && j.rightDone {
		j.Complete()
	}
}

func ptr[T any](v T) *T { return &v }
