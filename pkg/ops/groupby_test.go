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

var _ = Describe("Group-by", func() {
	var exec *stream.Executor
	var src *source.Mutable[employee, int]
	var srcRec *testutils.Recorder[employee]
	var outer *testutils.Recorder[*ops.Group[employee, string]]

	group := func(name string) *ops.Group[employee, string] {
		for _, d := range outer.Deltas() {
			if d.Type == delta.Added && d.Object.Key() == name {
				return d.Object
			}
		}
		return nil
	}

	BeforeEach(func() {
		exec = stream.NewExecutor(stream.Options{Logger: logger})
		src = source.NewMutable(exec, employeeID)
		srcRec = testutils.NewRecorder[employee]()
		src.Subscribe(srcRec)
		outer = testutils.NewRecorder[*ops.Group[employee, string]]()
		ops.GroupBy(src, func(e employee) string { return e.Dept }).Subscribe(outer)
	})

	It("should create a group on its first member only", func() {
		Expect(src.Add(employee{1, "Alice", "Eng"})).To(Succeed())
		Expect(src.Add(employee{2, "Bob", "Eng"})).To(Succeed())

		batches := outer.Batches()
		Expect(batches).To(HaveLen(1))
		Expect(batches[0][0].Type).To(Equal(delta.Added))
		Expect(batches[0][0].Object.Key()).To(Equal("Eng"))
	})

	It("should partition members under their upstream tokens", func() {
		Expect(src.Add(employee{1, "Alice", "Eng"})).To(Succeed())

		members := testutils.NewRecorder[employee]()
		group("Eng").Subscribe(members)
		Expect(members.Deltas()).To(HaveLen(1))
		Expect(members.Deltas()[0].Lifetime).To(BeIdenticalTo(srcRec.Deltas()[0].Lifetime))

		Expect(src.Update(employee{1, "Alice", "Eng"})).To(Succeed())
		Expect(members.Deltas()[1].Type).To(Equal(delta.Updated))
	})

	It("should move members between groups on a key change", func() {
		Expect(src.Add(employee{1, "Alice", "Eng"})).To(Succeed())
		Expect(src.Add(employee{2, "Bob", "Eng"})).To(Succeed())

		eng := testutils.NewRecorder[employee]()
		group("Eng").Subscribe(eng)

		Expect(src.Update(employee{1, "Alice", "Sales"})).To(Succeed())

		// Eng survives on Bob, Sales is born with Alice; one outer batch.
		batches := outer.Batches()
		Expect(batches).To(HaveLen(2))
		Expect(batches[1]).To(HaveLen(1))
		Expect(batches[1][0].Type).To(Equal(delta.Added))
		Expect(batches[1][0].Object.Key()).To(Equal("Sales"))

		// The member kept its upstream token across the move.
		alice := srcRec.Deltas()[0].Lifetime
		Expect(eng.Deltas()).To(ContainElement(delta.NewDeleted[employee](alice)))

		sales := testutils.NewRecorder[employee]()
		group("Sales").Subscribe(sales)
		Expect(sales.Deltas()).To(HaveLen(1))
		Expect(sales.Deltas()[0].Lifetime).To(BeIdenticalTo(alice))
	})

	It("should delete a group in the batch that drains it", func() {
		Expect(src.Add(employee{1, "Alice", "Eng"})).To(Succeed())
		lg := outer.Deltas()[0].Lifetime
		eng := group("Eng")

		members := testutils.NewRecorder[employee]()
		eng.Subscribe(members)

		Expect(src.Delete(1)).To(Succeed())

		batches := outer.Batches()
		Expect(batches).To(HaveLen(2))
		Expect(batches[1]).To(Equal(delta.Batch[*ops.Group[employee, string]]{
			delta.NewDeleted[*ops.Group[employee, string]](lg),
		}))
		Expect(members.Deltas()).To(HaveLen(2))
		Expect(members.Deltas()[1].Type).To(Equal(delta.Deleted))
		Expect(members.Completed()).To(BeTrue())
	})

	It("should mint a fresh group when a drained key returns", func() {
		Expect(src.Add(employee{1, "Alice", "Eng"})).To(Succeed())
		first := group("Eng")
		lg := outer.Deltas()[0].Lifetime

		Expect(src.Delete(1)).To(Succeed())
		Expect(src.Add(employee{1, "Alice", "Eng"})).To(Succeed())

		deltas := outer.Deltas()
		Expect(deltas).To(HaveLen(3))
		Expect(deltas[2].Type).To(Equal(delta.Added))
		Expect(deltas[2].Lifetime).NotTo(BeIdenticalTo(lg))
		Expect(deltas[2].Object).NotTo(BeIdenticalTo(first))
	})

	It("should replay group membership to a late group subscriber", func() {
		Expect(src.Add(employee{1, "Alice", "Eng"})).To(Succeed())
		Expect(src.Add(employee{2, "Bob", "Eng"})).To(Succeed())
		Expect(src.Update(employee{1, "Alicia", "Eng"})).To(Succeed())

		members := testutils.NewRecorder[employee]()
		group("Eng").Subscribe(members)

		deltas := members.Deltas()
		Expect(deltas).To(HaveLen(2))
		Expect(deltas[0].Object.Name).To(Equal("Alicia"))
		Expect(deltas[1].Object.Name).To(Equal("Bob"))
	})
})
