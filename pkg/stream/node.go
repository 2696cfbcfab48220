package stream

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/go-logr/logr"

	"github.com/l7mp/dynset/pkg/delta"
)

// Node is the broadcaster core every source, bridge and operator embeds. It
// owns the stage's replay bookkeeping (active lifetimes in insertion order),
// the subscriber registry, and the terminal state of the stream. Emission
// validates the lifetime algebra; violations are producer bugs and panic
// with an assertion error wrapping delta.ErrInvalidPrecondition.
//
// Subscribe, Emit, RetireAll, Fail and Complete re-enter the executor
// themselves, so calling them from a foreign goroutine serializes with
// in-flight batches. Len and Lookup do not enter the executor; they are
// consistent only on the pipeline goroutine.
type Node[T any] struct {
	exec *Executor
	log  logr.Logger
	name string

	active   map[*delta.Lifetime]T
	order    []*delta.Lifetime
	subs     []*nodeSubscription[T]
	pending  []*nodeSubscription[T]
	emitting bool
	failed   error
	done     bool
}

// NewNode creates a broadcaster node named for log attribution.
func NewNode[T any](exec *Executor, name string, opts ...Options) *Node[T] {
	logger := loggerFromOpts(opts)
	if logger.GetSink() == nil {
		logger = exec.Logger()
	}
	return &Node[T]{
		exec:   exec,
		name:   name,
		log:    logger.WithName(name),
		active: make(map[*delta.Lifetime]T),
	}
}

// Executor returns the owning pipeline executor.
func (n *Node[T]) Executor() *Executor { return n.exec }

// Logger returns the node's named logger.
func (n *Node[T]) Logger() logr.Logger { return n.log }

// Len returns the number of active lifetimes.
func (n *Node[T]) Len() int {
	return len(n.active)
}

// Lookup returns the object carried by an active lifetime.
func (n *Node[T]) Lookup(l *delta.Lifetime) (T, bool) {
	obj, ok := n.active[l]
	return obj, ok
}

// Subscribe attaches an observer. The observer first receives one replay
// batch with an Added delta per active lifetime (elided when empty), then
// all subsequent batches. Subscriptions taken from within a running batch
// attach once that batch has fully propagated, so their replay reflects it.
func (n *Node[T]) Subscribe(o Observer[T]) Subscription {
	sub := &nodeSubscription[T]{node: n, obs: o}
	n.exec.Do(func() {
		switch {
		case n.failed != nil:
			o.OnError(n.failed)
		case n.emitting:
			n.pending = append(n.pending, sub)
		default:
			n.attach(sub)
		}
	})
	return sub
}

func (n *Node[T]) attach(sub *nodeSubscription[T]) {
	if sub.disposed {
		return
	}
	n.subs = append(n.subs, sub)
	if replay := n.replayBatch(); len(replay) > 0 {
		sub.obs.OnNext(replay)
	}
	if n.done {
		sub.obs.OnCompleted()
	}
}

func (n *Node[T]) replayBatch() delta.Batch[T] {
	if len(n.order) == 0 {
		return nil
	}
	batch := make(delta.Batch[T], 0, len(n.order))
	for _, l := range n.order {
		batch = append(batch, delta.NewAdded(l, n.active[l]))
	}
	return batch
}

// Emit validates, applies and broadcasts one batch. Empty batches are
// elided. The whole batch is checked against the lifetime algebra before any
// of it is applied, so a violation leaves the node unchanged.
func (n *Node[T]) Emit(batch delta.Batch[T]) {
	if len(batch) == 0 {
		return
	}
	n.exec.Do(func() {
		if n.failed != nil || n.done {
			n.log.V(4).Info("dropping batch emitted on terminated stream", "batch", batch.String())
			return
		}
		n.check(batch)
		n.apply(batch)
		n.broadcast(batch)
	})
}

func (n *Node[T]) check(batch delta.Batch[T]) {
	// Events within a batch may depend on earlier ones, so track the
	// hypothetical membership alongside.
	live := make(map[*delta.Lifetime]bool, len(batch))
	isLive := func(l *delta.Lifetime) bool {
		if v, ok := live[l]; ok {
			return v
		}
		_, ok := n.active[l]
		return ok
	}
	for _, d := range batch {
		if d.Lifetime == nil {
			n.violation("%s: delta %s without a lifetime", n.name, d.Type)
		}
		switch d.Type {
		case delta.Added:
			if isLive(d.Lifetime) {
				n.violation("%s: Added on live %s", n.name, d.Lifetime)
			}
			live[d.Lifetime] = true
		case delta.Updated:
			if !isLive(d.Lifetime) {
				n.violation("%s: Updated on dead %s", n.name, d.Lifetime)
			}
		case delta.Deleted:
			if !isLive(d.Lifetime) {
				n.violation("%s: Deleted on dead %s", n.name, d.Lifetime)
			}
			live[d.Lifetime] = false
		default:
			n.violation("%s: unknown delta type %q", n.name, d.Type)
		}
	}
}

func (n *Node[T]) violation(format string, args ...any) {
	panic(errors.WithAssertionFailure(errors.Wrapf(delta.ErrInvalidPrecondition, format, args...)))
}

func (n *Node[T]) apply(batch delta.Batch[T]) {
	for _, d := range batch {
		switch d.Type {
		case delta.Added:
			n.active[d.Lifetime] = d.Object
			n.order = append(n.order, d.Lifetime)
		case delta.Updated:
			n.active[d.Lifetime] = d.Object
		case delta.Deleted:
			delete(n.active, d.Lifetime)
			if i := slices.Index(n.order, d.Lifetime); i >= 0 {
				n.order = slices.Delete(n.order, i, i+1)
			}
		}
	}
}

func (n *Node[T]) broadcast(batch delta.Batch[T]) {
	n.log.V(8).Info("emit", "batch", batch.String())

	wasEmitting := n.emitting
	n.emitting = true
	for _, sub := range slices.Clone(n.subs) {
		if !sub.disposed {
			sub.obs.OnNext(batch)
		}
	}
	n.emitting = wasEmitting

	if !n.emitting {
		n.flushPending()
	}
}

func (n *Node[T]) flushPending() {
	for len(n.pending) > 0 {
		pending := n.pending
		n.pending = nil
		for _, sub := range pending {
			n.attach(sub)
		}
	}
}

// RetireAll ends every active lifetime with a single batch of Deleted
// deltas. Bridges use it to wind the set down on upstream completion while
// keeping the stream open.
func (n *Node[T]) RetireAll() {
	n.exec.Do(func() {
		if len(n.order) == 0 {
			return
		}
		batch := make(delta.Batch[T], 0, len(n.order))
		for _, l := range n.order {
			batch = append(batch, delta.NewDeleted[T](l))
		}
		n.Emit(batch)
	})
}

// Fail terminates the stream with err: first one batch of Deleted deltas for
// every active lifetime, then OnError to every subscriber. Late subscribers
// observe the error only.
func (n *Node[T]) Fail(err error) {
	n.exec.Do(func() {
		if n.failed != nil || n.done {
			return
		}
		n.log.V(1).Info("failing stream", "error", err.Error())

		n.RetireAll()
		n.failed = err

		subs := append(slices.Clone(n.subs), n.pending...)
		n.subs, n.pending = nil, nil
		for _, sub := range subs {
			if !sub.disposed {
				sub.obs.OnError(err)
			}
		}
	})
}

// Complete terminates the stream normally. Active lifetimes are left as they
// are; sources in this library never complete, so this is only reachable
// through operator forwarding.
func (n *Node[T]) Complete() {
	n.exec.Do(func() {
		if n.failed != nil || n.done {
			return
		}
		n.flushPending()
		n.done = true
		for _, sub := range slices.Clone(n.subs) {
			if !sub.disposed {
				sub.obs.OnCompleted()
			}
		}
	})
}

type nodeSubscription[T any] struct {
	node     *Node[T]
	obs      Observer[T]
	disposed bool
}

// Dispose detaches the subscriber without emitting Deleted events. It is
// idempotent.
func (s *nodeSubscription[T]) Dispose() {
	s.node.exec.Do(func() {
		if s.disposed {
			return
		}
		s.disposed = true
		if i := slices.Index(s.node.subs, s); i >= 0 {
			s.node.subs = slices.Delete(s.node.subs, i, i+1)
		}
		if i := slices.Index(s.node.pending, s); i >= 0 {
			s.node.pending = slices.Delete(s.node.pending, i, i+1)
		}
	})
}
