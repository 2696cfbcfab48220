package bridge

import (
	"slices"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

type multiInner[T any] struct {
	parent   *multi[T]
	lifetime *delta.Lifetime
	sub      stream.Subscription
}

type multi[T any] struct {
	*stream.Node[T]
	inners []*multiInner[T]
}

// MultiLifetime adapts a stream of inner push-streams into a reactive set
// where each inner stream contributes one lifetime: minted on the inner's
// first value, updated by later values, retired when the inner completes or
// fails. Inner failures are local and do not terminate the set. Failure of
// the outer stream retires every active lifetime in one batch, disposes the
// inner subscriptions and propagates the error.
func MultiLifetime[T any](exec *stream.Executor, src stream.Observable[stream.Observable[T]], opts ...stream.Options) stream.Set[T] {
	b := &multi[T]{Node: stream.NewNode[T](exec, "multi-lifetime", opts...)}

	src.Subscribe(stream.ValueObserverFuncs[stream.Observable[T]]{
		NextFunc: func(inner stream.Observable[T]) {
			exec.Do(func() { b.addInner(inner) })
		},
		CompletedFunc: func() {
			// No further inner streams; the existing ones live on and
			// the set stays open.
		},
		ErrorFunc: func(err error) {
			exec.Do(func() { b.failed(err) })
		},
	})

	return b
}

func (b *multi[T]) addInner(src stream.Observable[T]) {
	inner := &multiInner[T]{parent: b}
	b.inners = append(b.inners, inner)
	inner.sub = src.Subscribe(stream.ValueObserverFuncs[T]{
		NextFunc: func(v T) {
			b.Executor().Do(func() { inner.next(v) })
		},
		CompletedFunc: func() {
			b.Executor().Do(func() { inner.retire() })
		},
		ErrorFunc: func(err error) {
			// Inner failures end that inner's lifetime only.
			b.Executor().Do(func() {
				b.Logger().V(4).Info("inner stream failed", "error", err.Error())
				inner.retire()
			})
		},
	})
}

func (in *multiInner[T]) next(v T) {
	if in.lifetime == nil {
		in.lifetime = delta.NewLifetime()
		in.parent.Emit(delta.Batch[T]{delta.NewAdded(in.lifetime, v)})
		return
	}
	in.parent.Emit(delta.Batch[T]{delta.NewUpdated(in.lifetime, v)})
}

func (in *multiInner[T]) retire() {
	b := in.parent
	if i := slices.Index(b.inners, in); i >= 0 {
		b.inners = slices.Delete(b.inners, i, i+1)
	}
	if in.lifetime != nil {
		l := in.lifetime
		in.lifetime = nil
		b.Emit(delta.Batch[T]{delta.NewDeleted[T](l)})
	}
}

func (b *multi[T]) failed(err error) {
	inners := b.inners
	b.inners = nil
	for _, in := range inners {
		if in.sub != nil {
			in.sub.Dispose()
		}
	}
	// Fail retires every started lifetime in a single batch before the
	// error reaches the subscribers.
	b.Fail(delta.WrapUpstream(err))
}
