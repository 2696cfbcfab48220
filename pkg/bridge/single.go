package bridge

import (
	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

type single[T any] struct {
	*stream.Node[T]
	current *delta.Lifetime
}

// SingleLifetime adapts a raw push-stream into a reactive set holding at
// most one lifetime. The first value mints the lifetime, later values update
// it. Upstream completion retires the lifetime and leaves the set open;
// upstream failure retires it and propagates the error.
func SingleLifetime[T any](exec *stream.Executor, src stream.Observable[T], opts ...stream.Options) stream.Set[T] {
	b := &single[T]{Node: stream.NewNode[T](exec, "single-lifetime", opts...)}

	src.Subscribe(stream.ValueObserverFuncs[T]{
		NextFunc: func(v T) {
			exec.Do(func() { b.next(v) })
		},
		CompletedFunc: func() {
			exec.Do(func() { b.completed() })
		},
		ErrorFunc: func(err error) {
			exec.Do(func() { b.failed(err) })
		},
	})

	return b
}

func (b *single[T]) next(v T) {
	if b.current == nil {
		b.current = delta.NewLifetime()
		b.Emit(delta.Batch[T]{delta.NewAdded(b.current, v)})
		return
	}
	b.Emit(delta.Batch[T]{delta.NewUpdated(b.current, v)})
}

func (b *single[T]) completed() {
	if b.current != nil {
		l := b.current
		b.current = nil
		b.Emit(delta.Batch[T]{delta.NewDeleted[T](l)})
	}
	// The set stays open: downstream observers keep their subscriptions.
}

func (b *single[T]) failed(err error) {
	b.current = nil
	b.Fail(delta.WrapUpstream(err))
}
