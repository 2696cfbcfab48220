package ops

import (
	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

// Map projects every item of src through f. Lifetimes are 1:1 and upstream
// tokens are preserved.
func Map[T, U any](src stream.Set[T], f func(T) U, opts ...stream.Options) stream.Set[U] {
	node := stream.NewNode[U](src.Executor(), "map", opts...)

	src.Subscribe(stream.ObserverFuncs[T]{
		NextFunc: func(batch delta.Batch[T]) {
			out := make(delta.Batch[U], 0, len(batch))
			for _, d := range batch {
				switch d.Type {
				case delta.Added:
					out = append(out, delta.NewAdded(d.Lifetime, f(d.Object)))
				case delta.Updated:
					out = append(out, delta.NewUpdated(d.Lifetime, f(d.Object)))
				case delta.Deleted:
					out = append(out, delta.NewDeleted[U](d.Lifetime))
				}
			}
			node.Emit(out)
		},
		ErrorFunc:     node.Fail,
		CompletedFunc: node.Complete,
	})

	return node
}
