package source

import (
	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

// NewConstant creates a reactive set with fixed membership. Lifetimes are
// minted once at construction, so concurrent subscribers observe the same
// tokens for the same item. Subscribing to an empty constant set delivers no
// replay batch.
func NewConstant[T any](exec *stream.Executor, items []T, opts ...stream.Options) stream.Set[T] {
	node := stream.NewNode[T](exec, "constant", opts...)
	if len(items) > 0 {
		batch := make(delta.Batch[T], 0, len(items))
		for _, obj := range items {
			batch = append(batch, delta.NewAdded(delta.NewLifetime(), obj))
		}
		node.Emit(batch)
	}
	return node
}
