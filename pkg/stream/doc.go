// Package stream provides the push-stream plumbing underneath dynset
// pipelines: the reactive set handle, observer and subscription contracts,
// the single-threaded pipeline executor, and the broadcaster node that every
// source, bridge and operator embeds.
//
// Key components:
//   - Set: the reactive set handle. Subscribing replays current membership
//     as one batch of Added deltas, then forwards live batches.
//   - Observer / ValueObserver: batch-level and raw single-value observers.
//   - Observable: the raw push-stream contract bridges consume.
//   - Executor: owns one pipeline. All mutations and foreign events are
//     funneled through it; entry is reentrant on the pipeline goroutine and
//     blocking from any other goroutine.
//   - Node: replay bookkeeping, subscriber registry with deferred attach,
//     lifetime-algebra validation, and the delete-all-then-error cascade.
//
// Building a pipeline is synchronous; running it is event-driven. A batch is
// processed as one synchronous traversal of the graph, so when a mutation
// call returns, every downstream stage on the same executor has seen it.
package stream
