package ops

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

type joinEntry[T any, K comparable] struct {
	key K
	obj T
}

// joinSide indexes one input of a join: token to key and item, and key to
// the bucket of tokens currently carrying it. Buckets keep insertion order;
// the intra-batch order of join outputs follows it but is not part of the
// contract.
type joinSide[T any, K comparable] struct {
	keyFn   func(T) K
	byToken map[*delta.Lifetime]joinEntry[T, K]
	byKey   map[K][]*delta.Lifetime
}

func newJoinSide[T any, K comparable](keyFn func(T) K) joinSide[T, K] {
	return joinSide[T, K]{
		keyFn:   keyFn,
		byToken: make(map[*delta.Lifetime]joinEntry[T, K]),
		byKey:   make(map[K][]*delta.Lifetime),
	}
}

func (s *joinSide[T, K]) insert(l *delta.Lifetime, obj T) K {
	k := s.keyFn(obj)
	s.byToken[l] = joinEntry[T, K]{key: k, obj: obj}
	s.byKey[k] = append(s.byKey[k], l)
	return k
}

func (s *joinSide[T, K]) remove(l *delta.Lifetime) joinEntry[T, K] {
	entry := s.byToken[l]
	delete(s.byToken, l)
	s.unbucket(entry.key, l)
	return entry
}

func (s *joinSide[T, K]) unbucket(k K, l *delta.Lifetime) {
	bucket := s.byKey[k]
	if i := slices.Index(bucket, l); i >= 0 {
		bucket = slices.Delete(bucket, i, i+1)
	}
	if len(bucket) == 0 {
		delete(s.byKey, k)
	} else {
		s.byKey[k] = bucket
	}
}

func (s *joinSide[T, K]) clear() {
	s.byToken = make(map[*delta.Lifetime]joinEntry[T, K])
	s.byKey = make(map[K][]*delta.Lifetime)
}

type pairKey struct {
	left, right *delta.Lifetime
}

type join[L, R, U any, K comparable] struct {
	*stream.Node[U]
	project func(L, R) U

	left  joinSide[L, K]
	right joinSide[R, K]
	pairs map[pairKey]*delta.Lifetime

	leftSub, rightSub   stream.Subscription
	leftDone, rightDone bool
}

// Join matches the items of left and right on equal keys, many-to-many, and
// projects every matching pair. Each pair owns a freshly minted downstream
// lifetime that ends when either member leaves the match (deletion or key
// change). Both inputs must belong to the same pipeline.
func Join[L, R, U any, K comparable](left stream.Set[L], right stream.Set[R],
	leftKey func(L) K, rightKey func(R) K, project func(L, R) U, opts ...stream.Options,
) stream.Set[U] {
	samePipeline(left.Executor(), right.Executor())

	j := &join[L, R, U, K]{
		Node:    stream.NewNode[U](left.Executor(), "join", opts...),
		project: project,
		left:    newJoinSide[L, K](leftKey),
		right:   newJoinSide[R, K](rightKey),
		pairs:   make(map[pairKey]*delta.Lifetime),
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

func samePipeline(a, b *stream.Executor) {
	if a != b {
		panic(errors.AssertionFailedf("join inputs belong to different pipelines"))
	}
}

func (j *join[L, R, U, K]) leftEvent(d delta.Delta[L], out *delta.Batch[U]) {
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
					j.project(d.Object, j.right.byToken[lr].obj)))
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

func (j *join[L, R, U, K]) matchLeft(ll *delta.Lifetime, obj L, k K, out *delta.Batch[U]) {
	for _, lr := range j.right.byKey[k] {
		ld := delta.NewLifetime()
		j.pairs[pairKey{ll, lr}] = ld
		*out = append(*out, delta.NewAdded(ld, j.project(obj, j.right.byToken[lr].obj)))
	}
}

func (j *join[L, R, U, K]) unmatchLeft(ll *delta.Lifetime, k K, out *delta.Batch[U]) {
	for _, lr := range j.right.byKey[k] {
		pk := pairKey{ll, lr}
		*out = append(*out, delta.NewDeleted[U](j.pairs[pk]))
		delete(j.pairs, pk)
	}
}

func (j *join[L, R, U, K]) rightEvent(d delta.Delta[R], out *delta.Batch[U]) {
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
					j.project(j.left.byToken[ll].obj, d.Object)))
			}
			return
		}
		j.unmatchRight(d.Lifetime, prev.key, out)
		j.right.unbucket(prev.key, d.Lifetime)
		j.right.byToken[d.Lifetime] = joinEntry[R, K]{key: k, obj: d.Object}
		j.right.byKey[k] = append(j.right.byKey[k], d.Lifetime)
		j.matchRight(d.Lifetime, d.Object, k, out)

	case delta.Deleted:
		entry := j.right.remove(d.Lifetime)
		j.unmatchRight(d.Lifetime, entry.key, out)
	}
}

func (j *join[L, R, U, K]) matchRight(lr *delta.Lifetime, obj R, k K, out *delta.Batch[U]) {
	for _, ll := range j.left.byKey[k] {
		ld := delta.NewLifetime()
		j.pairs[pairKey{ll, lr}] = ld
		*out = append(*out, delta.NewAdded(ld, j.project(j.left.byToken[ll].obj, obj)))
	}
}

func (j *join[L, R, U, K]) unmatchRight(lr *delta.Lifetime, k K, out *delta.Batch[U]) {
	for _, ll := range j.left.byKey[k] {
		pk := pairKey{ll, lr}
		*out = append(*out, delta.NewDeleted[U](j.pairs[pk]))
		delete(j.pairs, pk)
	}
}

func (j *join[L, R, U, K]) inputFailed(err error, other stream.Subscription) {
	if other != nil {
		other.Dispose()
	}
	j.left.clear()
	j.right.clear()
	j.pairs = make(map[pairKey]*delta.Lifetime)
	j.Fail(err)
}

func (j *join[L, R, U, K]) inputCompleted() {
	if j.leftDone && j.rightDone {
		j.Complete()
	}
}
