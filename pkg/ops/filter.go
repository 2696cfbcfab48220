package ops

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

// Filter admits the items of src that satisfy pred, tracking admission per
// upstream lifetime so that updates crossing the predicate boundary turn
// into downstream Added or Deleted deltas. Admitted lifetimes keep their
// upstream tokens.
func Filter[T any](src stream.Set[T], pred func(T) bool, opts ...stream.Options) stream.Set[T] {
	node := stream.NewNode[T](src.Executor(), "filter", opts...)
	admitted := sets.New[*delta.Lifetime]()

	src.Subscribe(stream.ObserverFuncs[T]{
		NextFunc: func(batch delta.Batch[T]) {
			var out delta.Batch[T]
			for _, d := range batch {
				in := admitted.Has(d.Lifetime)
				switch d.Type {
				case delta.Added:
					if pred(d.Object) {
						admitted.Insert(d.Lifetime)
						out = append(out, delta.NewAdded(d.Lifetime, d.Object))
					}
				case delta.Updated:
					switch ok := pred(d.Object); {
					case in && ok:
						out = append(out, delta.NewUpdated(d.Lifetime, d.Object))
					case in && !ok:
						admitted.Delete(d.Lifetime)
						out = append(out, delta.NewDeleted[T](d.Lifetime))
					case !in && ok:
						admitted.Insert(d.Lifetime)
						out = append(out, delta.NewAdded(d.Lifetime, d.Object))
					}
				case delta.Deleted:
					if in {
						admitted.Delete(d.Lifetime)
						out = append(out, delta.NewDeleted[T](d.Lifetime))
					}
				}
			}
			node.Emit(out)
		},
		ErrorFunc: func(err error) {
			admitted = sets.New[*delta.Lifetime]()
			node.Fail(err)
		},
		CompletedFunc: node.Complete,
	})

	return node
}
