// Package ops implements the dynset operators: map, filter, inner and left
// join, group-by, and the two flat-map variants. An operator subscribes to
// its input set(s) at construction, maintains private state on the pipeline,
// and emits at most one downstream batch per upstream batch.
//
// Map and filter are closed transformations: they forward upstream lifetime
// tokens. Every other operator bridges streams and mints fresh tokens for
// its output, since tokens carry no identity across stream boundaries.
//
// On an upstream error, an operator first retires every active downstream
// lifetime in one batch, then forwards the error; a binary operator also
// disposes its other input. Disposing a downstream subscription emits
// nothing.
package ops
