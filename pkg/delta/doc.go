// Package delta implements the change-event algebra spoken by every stage of
// a dynset pipeline.
//
// A collection that evolves over time is represented as a stream of deltas.
// Each delta affects a single lifetime: an opaque token that identifies one
// logical item's presence in one stream. The legal event sequence per
// lifetime is a single Added, any number of Updateds, and an optional final
// Deleted. Deltas are delivered in batches: ordered, non-empty slices
// produced atomically from one upstream notification.
//
// Lifetimes are compared by pointer identity only. Tokens never carry
// meaning across stream boundaries: a stage that bridges two streams mints
// fresh tokens for its output.
package delta
