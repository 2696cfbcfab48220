package ops

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/stream"
)

// Group is one partition produced by GroupBy: a reactive set of the
// upstream items currently carrying its key. Group-by is a partition, not a
// rename, so a group re-emits upstream lifetime tokens.
type Group[T any, K comparable] struct {
	*stream.Node[T]
	key K
}

// Key returns the grouping key of this partition.
func (g *Group[T, K]) Key() K { return g.key }

type groupState[T any, K comparable] struct {
	group    *Group[T, K]
	lifetime *delta.Lifetime // outer token
	members  sets.Set[*delta.Lifetime]
	batch    delta.Batch[T] // accumulation for the upstream batch in flight
	dead     bool
}

type groupBy[T any, K comparable] struct {
	node        *stream.Node[*Group[T, K]]
	keyFn       func(T) K
	opts        []stream.Options
	groups      map[K]*groupState[T, K]
	memberToKey map[*delta.Lifetime]K
}

// GroupBy partitions src by keyFn into a reactive set of reactive sets. A
// group is born with its first member and dies with its last: the outer
// stream emits the group's Added and Deleted, while membership changes flow
// on the group's own stream under the upstream tokens. An upstream update
// that moves an item between keys drains it from the old group (possibly
// deleting the group) and inserts it into the new one.
func GroupBy[T any, K comparable](src stream.Set[T], keyFn func(T) K, opts ...stream.Options) stream.Set[*Group[T, K]] {
	g := &groupBy[T, K]{
		node:        stream.NewNode[*Group[T, K]](src.Executor(), "group-by", opts...),
		keyFn:       keyFn,
		opts:        opts,
		groups:      make(map[K]*groupState[T, K]),
		memberToKey: make(map[*delta.Lifetime]K),
	}

	src.Subscribe(stream.ObserverFuncs[T]{
		NextFunc:      g.process,
		ErrorFunc:     g.failed,
		CompletedFunc: g.completed,
	})

	return g.node
}

func (g *groupBy[T, K]) process(batch delta.Batch[T]) {
	var out delta.Batch[*Group[T, K]]
	var touched []*groupState[T, K]

	touch := func(gs *groupState[T, K]) {
		for _, t := range touched {
			if t == gs {
				return
			}
		}
		touched = append(touched, gs)
	}

	ensure := func(k K) *groupState[T, K] {
		if gs, ok := g.groups[k]; ok {
			touch(gs)
			return gs
		}
		group := &Group[T, K]{
			Node: stream.NewNode[T](g.node.Executor(), "group", g.opts...),
			key:  k,
		}
		gs := &groupState[T, K]{
			group:    group,
			lifetime: delta.NewLifetime(),
			members:  sets.New[*delta.Lifetime](),
		}
		g.groups[k] = gs
		out = append(out, delta.NewAdded(gs.lifetime, group))
		touch(gs)
		return gs
	}

	drain := func(l *delta.Lifetime) {
		k := g.memberToKey[l]
		delete(g.memberToKey, l)
		gs := g.groups[k]
		gs.batch = append(gs.batch, delta.NewDeleted[T](l))
		gs.members.Delete(l)
		touch(gs)
		if gs.members.Len() == 0 {
			gs.dead = true
			delete(g.groups, k)
			out = append(out, delta.NewDeleted[*Group[T, K]](gs.lifetime))
		}
	}

	insert := func(l *delta.Lifetime, obj T, k K) {
		gs := ensure(k)
		gs.members.Insert(l)
		gs.batch = append(gs.batch, delta.NewAdded(l, obj))
		g.memberToKey[l] = k
	}

	for _, d := range batch {
		switch d.Type {
		case delta.Added:
			insert(d.Lifetime, d.Object, g.keyFn(d.Object))
		case delta.Updated:
			k := g.keyFn(d.Object)
			if prev := g.memberToKey[d.Lifetime]; prev == k {
				gs := g.groups[k]
				gs.batch = append(gs.batch, delta.NewUpdated(d.Lifetime, d.Object))
				touch(gs)
				continue
			}
			drain(d.Lifetime)
			insert(d.Lifetime, d.Object, k)
		case delta.Deleted:
			drain(d.Lifetime)
		}
	}

	// Children first so that an outer subscriber reacting to a new group
	// observes its membership through replay, then the single outer batch,
	// then completion of the groups that died.
	for _, gs := range touched {
		gs.group.Emit(gs.batch)
		gs.batch = nil
	}
	g.node.Emit(out)
	for _, gs := range touched {
		if gs.dead {
			gs.group.Complete()
		}
	}
}

func (g *groupBy[T, K]) failed(err error) {
	for _, gs := range g.groups {
		gs.group.Fail(err)
	}
	g.groups = make(map[K]*groupState[T, K])
	g.memberToKey = make(map[*delta.Lifetime]K)
	g.node.Fail(err)
}

func (g *groupBy[T, K]) completed() {
	for _, gs := range g.groups {
		gs.group.Complete()
	}
	g.node.Complete()
}
