// Package testutils holds shared helpers for the dynset test suites: a
// batch-recording observer with bounded waiting and a hand-driven push-stream
// feeder for bridge tests.
package testutils

import (
	"slices"
	"sync"
	"time"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

const recorderBuffer = 256

// Recorder is an Observer that records every batch it receives. Delivery on
// a dynset pipeline is synchronous, so after a mutation call returns the
// batch is already recorded; TryNext exists for bridges that feed the
// pipeline from their own goroutine.
type Recorder[T any] struct {
	mu      sync.Mutex
	batches []delta.Batch[T]
	err     error
	done    bool

	batchCh chan delta.Batch[T]
	errCh   chan error
	doneCh  chan struct{}
}

func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{
		batchCh: make(chan delta.Batch[T], recorderBuffer),
		errCh:   make(chan error, 1),
		doneCh:  make(chan struct{}),
	}
}

func (r *Recorder[T]) OnNext(batch delta.Batch[T]) {
	r.mu.Lock()
	r.batches = append(r.batches, slices.Clone(batch))
	r.mu.Unlock()
	r.batchCh <- slices.Clone(batch)
}

func (r *Recorder[T]) OnError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.errCh <- err
}

func (r *Recorder[T]) OnCompleted() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
	close(r.doneCh)
}

// Batches returns a copy of every batch recorded so far.
func (r *Recorder[T]) Batches() []delta.Batch[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.batches)
}

// Deltas returns every recorded delta flattened across batches.
func (r *Recorder[T]) Deltas() delta.Batch[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all delta.Batch[T]
	for _, b := range r.batches {
		all = append(all, b...)
	}
	return all
}

// TryNext attempts to receive the next recorded batch within the timeout.
func (r *Recorder[T]) TryNext(timeout time.Duration) (delta.Batch[T], bool) {
	select {
	case b := <-r.batchCh:
		return b, true
	case <-time.After(timeout):
		return nil, false
	}
}

// TryError attempts to receive the terminal error within the timeout.
func (r *Recorder[T]) TryError(timeout time.Duration) (error, bool) {
	select {
	case err := <-r.errCh:
		return err, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Err returns the terminal error, if any.
func (r *Recorder[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Completed reports whether the stream completed normally.
func (r *Recorder[T]) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Feeder is a hand-driven raw push-stream for feeding bridges under test.
type Feeder[T any] struct {
	mu   sync.Mutex
	subs []*feederSub[T]
}

type feederSub[T any] struct {
	f        *Feeder[T]
	obs      stream.ValueObserver[T]
	disposed bool
}

func NewFeeder[T any]() *Feeder[T] { return &Feeder[T]{} }

func (f *Feeder[T]) Subscribe(o stream.ValueObserver[T]) stream.Subscription {
	sub := &feederSub[T]{f: f, obs: o}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub
}

func (s *feederSub[T]) Dispose() {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	if i := slices.Index(s.f.subs, s); i >= 0 {
		s.f.subs = slices.Delete(s.f.subs, i, i+1)
	}
}

func (f *Feeder[T]) observers() []*feederSub[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.subs)
}

// Push emits a value to every subscriber.
func (f *Feeder[T]) Push(v T) {
	for _, sub := range f.observers() {
		sub.obs.OnNext(v)
	}
}

// Fail terminates the stream with err.
func (f *Feeder[T]) Fail(err error) {
	for _, sub := range f.observers() {
		sub.obs.OnError(err)
	}
}

// Complete terminates the stream normally.
func (f *Feeder[T]) Complete() {
	for _, sub := range f.observers() {
		sub.obs.OnCompleted()
	}
}

// SubscriberCount reports how many subscriptions are attached.
func (f *Feeder[T]) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
