package stream

import (
	"sync"

	"github.com/l7mp/dynset/pkg/delta"
)

// Observer receives batched change events from a reactive set.
type Observer[T any] interface {
	// OnNext delivers one batch. The batch is owned by the caller: an
	// observer that wants to retain it must copy.
	OnNext(delta.Batch[T])
	// OnError terminates the stream with an error. Every active lifetime
	// has been deleted in a preceding batch by the time this is called.
	OnError(error)
	// OnCompleted terminates the stream normally.
	OnCompleted()
}

// Subscription is a cancellation handle. Dispose detaches the subscriber
// without emitting Deleted events; it is idempotent.
type Subscription interface {
	Dispose()
}

// Set is the handle to a reactive set: a collection whose membership evolves
// over time, exposed as a stream of batched change events. A new subscriber
// first receives one replay batch holding an Added delta per active lifetime
// (elided when the set is empty), then all subsequent batches.
type Set[T any] interface {
	Subscribe(Observer[T]) Subscription

	// Executor returns the pipeline executor this set belongs to. It is
	// plumbing for stage implementors; consumers only subscribe.
	Executor() *Executor
}

// ValueObserver receives raw single-value notifications from an Observable.
type ValueObserver[T any] interface {
	OnNext(T)
	OnError(error)
	OnCompleted()
}

// Observable is the raw push-stream contract consumed by bridges and
// produced by sinks. It carries no replay or lifetime semantics of its own.
type Observable[T any] interface {
	Subscribe(ValueObserver[T]) Subscription
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are no-ops.
type ObserverFuncs[T any] struct {
	NextFunc      func(delta.Batch[T])
	ErrorFunc     func(error)
	CompletedFunc func()
}

func (o ObserverFuncs[T]) OnNext(b delta.Batch[T]) {
	if o.NextFunc != nil {
		o.NextFunc(b)
	}
}

func (o ObserverFuncs[T]) OnError(err error) {
	if o.ErrorFunc != nil {
		o.ErrorFunc(err)
	}
}

func (o ObserverFuncs[T]) OnCompleted() {
	if o.CompletedFunc != nil {
		o.CompletedFunc()
	}
}

// ValueObserverFuncs adapts plain functions to a ValueObserver. Nil fields
// are no-ops.
type ValueObserverFuncs[T any] struct {
	NextFunc      func(T)
	ErrorFunc     func(error)
	CompletedFunc func()
}

func (o ValueObserverFuncs[T]) OnNext(v T) {
	if o.NextFunc != nil {
		o.NextFunc(v)
	}
}

func (o ValueObserverFuncs[T]) OnError(err error) {
	if o.ErrorFunc != nil {
		o.ErrorFunc(err)
	}
}

func (o ValueObserverFuncs[T]) OnCompleted() {
	if o.CompletedFunc != nil {
		o.CompletedFunc()
	}
}

// SubscriptionFunc wraps a cancellation callback into an idempotent
// Subscription.
func SubscriptionFunc(cancel func()) Subscription {
	return &funcSubscription{cancel: cancel}
}

type funcSubscription struct {
	once   sync.Once
	cancel func()
}

func (s *funcSubscription) Dispose() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
