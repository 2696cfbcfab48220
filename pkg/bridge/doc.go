// Package bridge adapts foreign push-streams into reactive sets. A bridge
// owns the boundary between an external event source and the pipeline: it
// marshals foreign-goroutine notifications onto the executor, mints and
// retires lifetimes according to its state machine, and converts upstream
// termination into lifetime-clean downstream behavior (every active lifetime
// is deleted before the stream ends or errors).
//
// Bridges:
//   - SingleLifetime: a raw value stream becomes a set of at most one item.
//   - MultiLifetime: a stream of inner streams, one lifetime per inner.
//   - FromSnapshots: a stream of full collection snapshots, diffed by key.
//   - FromWatch: a Kubernetes watch.Interface, keyed by namespace/name.
package bridge
