package ops_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dynset/internal/testutils"
	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/ops"
	"github.com/l7mp/dynset/pkg/source"
	"github.com/l7mp/dynset/pkg/stream"
)

type team struct {
	ID      int
	Members stream.Set[string]
}

func teamID(t team) int { return t.ID }

var _ = Describe("Flat-map over reactive children", func() {
	var exec *stream.Executor
	var src *source.Mutable[team, int]
	var rec *testutils.Recorder[string]

	newChild := func(members ...string) *source.Mutable[string, string] {
		child := source.NewMutable(exec, func(s string) string { return s })
		for _, m := range members {
			Expect(child.Add(m)).To(Succeed())
		}
		return child
	}

	BeforeEach(func() {
		exec = stream.NewExecutor(stream.Options{Logger: logger})
		src = source.NewMutable(exec, teamID)
		rec = testutils.NewRecorder[string]()
		ops.FlatMapSet(src, func(t team) stream.Set[string] { return t.Members }, nil).Subscribe(rec)
	})

	It("should flatten the child replay under fresh downstream tokens", func() {
		child := newChild("x", "y")
		childRec := testutils.NewRecorder[string]()
		child.Subscribe(childRec)

		Expect(src.Add(team{1, child})).To(Succeed())

		batches := rec.Batches()
		Expect(batches).To(HaveLen(1))
		Expect(objects(batches[0])).To(ConsistOf("x", "y"))
		for i, d := range batches[0] {
			Expect(d.Lifetime).NotTo(BeIdenticalTo(childRec.Deltas()[i].Lifetime))
		}
	})

	It("should forward live child events", func() {
		child := newChild("x")
		Expect(src.Add(team{1, child})).To(Succeed())

		Expect(child.Add("y")).To(Succeed())
		deltas := rec.Deltas()
		Expect(deltas).To(HaveLen(2))
		Expect(deltas[1]).To(Equal(delta.NewAdded(deltas[1].Lifetime, "y")))

		Expect(child.Delete("x")).To(Succeed())
		deltas = rec.Deltas()
		Expect(deltas[2]).To(Equal(delta.NewDeleted[string](deltas[0].Lifetime)))
	})

	It("should diff against the new child on a parent update", func() {
		child := newChild("x", "y")
		Expect(src.Add(team{1, child})).To(Succeed())
		first := rec.Deltas()

		// Re-projecting onto the same child set preserves every downstream
		// lifetime and emits nothing.
		Expect(src.Update(team{1, child})).To(Succeed())
		Expect(rec.Batches()).To(HaveLen(1))

		// A different child retires the old mapping and adds the new one.
		other := newChild("y", "z")
		Expect(src.Update(team{1, other})).To(Succeed())

		batches := rec.Batches()
		Expect(batches).To(HaveLen(2))
		moved := batches[1]
		Expect(moved).To(HaveLen(4))
		Expect(objects(moved[:2])).To(ConsistOf("y", "z"))
		Expect(moved[2]).To(Equal(delta.NewDeleted[string](first[0].Lifetime)))
		Expect(moved[3]).To(Equal(delta.NewDeleted[string](first[1].Lifetime)))
	})

	It("should retire the whole subtree on parent delete", func() {
		child := newChild("x", "y")
		Expect(src.Add(team{1, child})).To(Succeed())
		first := rec.Deltas()

		Expect(src.Delete(1)).To(Succeed())

		batches := rec.Batches()
		Expect(batches).To(HaveLen(2))
		Expect(batches[1]).To(Equal(delta.Batch[string]{
			delta.NewDeleted[string](first[0].Lifetime),
			delta.NewDeleted[string](first[1].Lifetime),
		}))

		// The child subscription is gone: child mutations change nothing.
		Expect(child.Add("z")).To(Succeed())
		Expect(rec.Batches()).To(HaveLen(2))
	})

	It("should flatten group-by partitions", func() {
		people := source.NewMutable(exec, employeeID)
		groups := ops.GroupBy(people, func(e employee) string { return e.Dept })
		flat := testutils.NewRecorder[employee]()
		ops.FlatMapSet(groups, func(g *ops.Group[employee, string]) stream.Set[employee] { return g }, nil).Subscribe(flat)

		Expect(people.Add(employee{1, "Alice", "Eng"})).To(Succeed())
		Expect(people.Add(employee{2, "Bob", "Sales"})).To(Succeed())
		Expect(people.Add(employee{3, "Carol", "Eng"})).To(Succeed())

		names := []string{}
		for _, d := range flat.Deltas() {
			Expect(d.Type).To(Equal(delta.Added))
			names = append(names, d.Object.Name)
		}
		Expect(names).To(ConsistOf("Alice", "Bob", "Carol"))
	})
})

type po struct {
	ID    int
	Items []item
}

type item struct {
	SKU string
	Qty int
}

func poID(p po) int { return p.ID }
func itemSKU(i item) string { return i.SKU }

var _ = Describe("Flat-map over keyed arrays", func() {
	var exec *stream.Executor
	var src *source.Mutable[po, int]
	var rec *testutils.Recorder[item]

	BeforeEach(func() {
		exec = stream.NewExecutor(stream.Options{Logger: logger})
		src = source.NewMutable(exec, poID)
		rec = testutils.NewRecorder[item]()
		ops.FlatMapKeyed(src, func(p po) []item { return p.Items }, itemSKU, nil).Subscribe(rec)
	})

	It("should expand the array on Added", func() {
		Expect(src.Add(po{1, []item{{"a", 1}, {"b", 2}}})).To(Succeed())

		batches := rec.Batches()
		Expect(batches).To(HaveLen(1))
		Expect(objects(batches[0])).To(Equal([]item{{"a", 1}, {"b", 2}}))
	})

	It("should diff arrays by child key on Updated", func() {
		Expect(src.Add(po{1, []item{{"a", 1}, {"b", 2}}})).To(Succeed())
		first := rec.Deltas()
		la, lb := first[0].Lifetime, first[1].Lifetime

		Expect(src.Update(po{1, []item{{"b", 5}, {"c", 3}}})).To(Succeed())

		batches := rec.Batches()
		Expect(batches).To(HaveLen(2))
		second := batches[1]
		Expect(second).To(HaveLen(3))
		Expect(second[0]).To(Equal(delta.NewDeleted[item](la)))
		Expect(second[1]).To(Equal(delta.NewUpdated(lb, item{"b", 5})))
		Expect(second[2].Type).To(Equal(delta.Added))
		Expect(second[2].Object).To(Equal(item{"c", 3}))
	})

	It("should not emit for value-equal survivors", func() {
		Expect(src.Add(po{1, []item{{"a", 1}}})).To(Succeed())
		Expect(src.Update(po{1, []item{{"a", 1}}})).To(Succeed())
		Expect(rec.Batches()).To(HaveLen(1))
	})

	It("should retire every child on Deleted", func() {
		Expect(src.Add(po{1, []item{{"a", 1}, {"b", 2}}})).To(Succeed())
		first := rec.Deltas()

		Expect(src.Delete(1)).To(Succeed())
		batches := rec.Batches()
		Expect(batches[1]).To(Equal(delta.Batch[item]{
			delta.NewDeleted[item](first[0].Lifetime),
			delta.NewDeleted[item](first[1].Lifetime),
		}))
	})

	It("should let late duplicates of a child key overwrite", func() {
		Expect(src.Add(po{1, []item{{"a", 1}, {"a", 9}}})).To(Succeed())
		deltas := rec.Deltas()
		Expect(deltas).To(HaveLen(1))
		Expect(deltas[0].Object).To(Equal(item{"a", 9}))
	})
})
