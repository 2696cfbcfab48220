// Package source provides the roots of a dynset pipeline: the imperative
// keyed Mutable source and the immutable Constant source. Sources never
// complete and never error; every other kind of ingress lives in pkg/bridge.
package source
