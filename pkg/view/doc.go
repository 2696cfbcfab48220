// Package view provides the terminal consumers of a dynset pipeline: the
// synchronously queryable Materialized view, and the Snapshot and Count
// sinks that re-enter the raw push-stream world.
package view
