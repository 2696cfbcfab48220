package view

import (
	"slices"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

// subject is a last-value-replaying push-stream: new subscribers receive the
// current value immediately, then every later one.
type subject[T any] struct {
	exec *stream.Executor
	cur  T
	subs []*subjectSub[T]
	err  error
	done bool
}

type subjectSub[T any] struct {
	s        *subject[T]
	obs      stream.ValueObserver[T]
	disposed bool
}

func newSubject[T any](exec *stream.Executor, initial T) *subject[T] {
	return &subject[T]{exec: exec, cur: initial}
}

func (s *subject[T]) Subscribe(o stream.ValueObserver[T]) stream.Subscription {
	sub := &subjectSub[T]{s: s, obs: o}
	s.exec.Do(func() {
		if s.err != nil {
			o.OnError(s.err)
			return
		}
		s.subs = append(s.subs, sub)
		o.OnNext(s.cur)
		if s.done {
			o.OnCompleted()
		}
	})
	return sub
}

func (sub *subjectSub[T]) Dispose() {
	sub.s.exec.Do(func() {
		if sub.disposed {
			return
		}
		sub.disposed = true
		if i := slices.Index(sub.s.subs, sub); i >= 0 {
			sub.s.subs = slices.Delete(sub.s.subs, i, i+1)
		}
	})
}

func (s *subject[T]) next(v T) {
	s.cur = v
	for _, sub := range slices.Clone(s.subs) {
		if !sub.disposed {
			sub.obs.OnNext(v)
		}
	}
}

func (s *subject[T]) fail(err error) {
	s.err = err
	subs := s.subs
	s.subs = nil
	for _, sub := range subs {
		if !sub.disposed {
			sub.obs.OnError(err)
		}
	}
}

func (s *subject[T]) complete() {
	s.done = true
	for _, sub := range slices.Clone(s.subs) {
		if !sub.disposed {
			sub.obs.OnCompleted()
		}
	}
}

// Snapshot folds a reactive set into a push-stream of full membership
// snapshots, one per upstream batch. Subscribers receive the current
// snapshot immediately.
func Snapshot[T any](src stream.Set[T]) stream.Observable[[]T] {
	s := newSubject[[]T](src.Executor(), []T{})
	byToken := make(map[*delta.Lifetime]T)
	var order []*delta.Lifetime

	src.Subscribe(stream.ObserverFuncs[T]{
		NextFunc: func(batch delta.Batch[T]) {
			for _, d := range batch {
				switch d.Type {
				case delta.Added:
					byToken[d.Lifetime] = d.Object
					order = append(order, d.Lifetime)
				case delta.Updated:
					byToken[d.Lifetime] = d.Object
				case delta.Deleted:
					delete(byToken, d.Lifetime)
					if i := slices.Index(order, d.Lifetime); i >= 0 {
						order = slices.Delete(order, i, i+1)
					}
				}
			}
			snapshot := make([]T, 0, len(order))
			for _, l := range order {
				snapshot = append(snapshot, byToken[l])
			}
			s.next(snapshot)
		},
		ErrorFunc:     s.fail,
		CompletedFunc: s.complete,
	})

	return s
}

// Count folds a reactive set into a push-stream of its cardinality, emitted
// once per upstream batch. Updates leave the count untouched. Subscribers
// receive the current count immediately.
func Count[T any](src stream.Set[T]) stream.Observable[int] {
	s := newSubject(src.Executor(), 0)
	count := 0

	src.Subscribe(stream.ObserverFuncs[T]{
		NextFunc: func(batch delta.Batch[T]) {
			for _, d := range batch {
				switch d.Type {
				case delta.Added:
					count++
				case delta.Deleted:
					count--
				}
			}
			s.next(count)
		},
		ErrorFunc:     s.fail,
		CompletedFunc: s.complete,
	})

	return s
}
