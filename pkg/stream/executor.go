package stream

import (
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/petermattis/goid"
)

// Options carries the common knobs accepted by dynset constructors.
type Options struct {
	// Logger is the logger the component traces to. A logger with no sink
	// falls back to the executor's logger for the stages of a pipeline, and
	// to logr.Discard() for the executor itself.
	Logger logr.Logger
}

func loggerFromOpts(opts []Options) logr.Logger {
	for _, o := range opts {
		if o.Logger.GetSink() != nil {
			return o.Logger
		}
	}
	return logr.Discard()
}

// Executor owns one pipeline. Every mutation, foreign-stream event and
// subscription is funneled through Do, which serializes callers so that at
// most one batch is in flight. The goroutine currently inside Do is the
// pipeline goroutine: nested Do calls from it (a subscriber callback that
// mutates a source, a stage that subscribes during construction) run inline,
// while calls from any other goroutine block until the pipeline is free.
type Executor struct {
	mu     sync.Mutex
	owner  atomic.Int64
	id     string
	logger logr.Logger
	log    logr.Logger
}

// NewExecutor creates a pipeline executor.
func NewExecutor(opts ...Options) *Executor {
	logger := loggerFromOpts(opts)
	id := uuid.NewString()[:8]
	return &Executor{
		id:     id,
		logger: logger,
		log:    logger.WithName("executor").WithValues("pipeline", id),
	}
}

// ID returns the log-attribution id of the pipeline.
func (e *Executor) ID() string { return e.id }

// Logger returns the base logger stages on this pipeline derive theirs from.
func (e *Executor) Logger() logr.Logger { return e.logger }

// Do runs fn on the pipeline. When the calling goroutine already owns the
// pipeline, fn runs inline; otherwise the caller acquires the pipeline and
// blocks until fn and all downstream processing it triggers complete.
func (e *Executor) Do(fn func()) {
	gid := goid.Get()
	if e.owner.Load() == gid {
		fn()
		return
	}

	e.mu.Lock()
	e.owner.Store(gid)
	defer func() {
		e.owner.Store(0)
		e.mu.Unlock()
	}()

	e.log.V(8).Info("entering pipeline", "goroutine", gid)
	fn()
}

// Held reports whether the calling goroutine currently owns the pipeline.
// Synchronous queries (materialized views) are consistent only when it
// returns true or when the caller synchronizes externally.
func (e *Executor) Held() bool {
	return e.owner.Load() == goid.Get()
}
