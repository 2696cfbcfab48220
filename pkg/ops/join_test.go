package ops_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dynset/internal/testutils"
	"github.com/l7mp/dynset/pkg/delta"
	"github.com/l7mp/dynset/pkg/ops"
	"github.com/l7mp/dynset/pkg/source"
	"github.com/l7mp/dynset/pkg/stream"
)

type order struct {
	ID     int
	CustNo int
	Total  int
}

type customer struct {
	ID     int
	CustNo int
	Name   string
}

func orderID(o order) int { return o.ID }
func custID(c customer) int { return c.ID }
func orderKey(o order) int { return o.CustNo }
func custKey(c customer) int { return c.CustNo }

func invoice(o order, c customer) string {
	return fmt.Sprintf("%s:%d", c.Name, o.Total)
}

// objects collects the items carried by the deltas of a batch, in delta
// order. Tests compare it with ConsistOf where the intra-batch ordering of
// join outputs is not part of the contract.
func objects[T any](b delta.Batch[T]) []T {
	objs := make([]T, 0, len(b))
	for _, d := range b {
		objs = append(objs, d.Object)
	}
	return objs
}

var _ = Describe("Inner join", func() {
	var exec *stream.Executor
	var orders *source.Mutable[order, int]
	var customers *source.Mutable[customer, int]
	var rec *testutils.Recorder[string]

	BeforeEach(func() {
		exec = stream.NewExecutor(stream.Options{Logger: logger})
		orders = source.NewMutable(exec, orderID)
		customers = source.NewMutable(exec, custID)
		rec = testutils.NewRecorder[string]()
		ops.Join(orders, customers, orderKey, custKey, invoice).Subscribe(rec)
	})

	It("should stay silent while nothing matches", func() {
		Expect(orders.Add(order{1, 10, 99})).To(Succeed())
		Expect(customers.Add(customer{1, 20, "Alice"})).To(Succeed())
		Expect(rec.Batches()).To(BeEmpty())
	})

	It("should pair every left with every matching right", func() {
		Expect(customers.Add(customer{1, 10, "Alice"})).To(Succeed())
		Expect(orders.Add(order{1, 10, 99})).To(Succeed())
		Expect(orders.Add(order{2, 10, 50})).To(Succeed())
		Expect(orders.Add(order{3, 10, 25})).To(Succeed())

		deltas := rec.Deltas()
		Expect(deltas).To(HaveLen(3))
		tokens := map[*delta.Lifetime]bool{}
		for _, d := range deltas {
			Expect(d.Type).To(Equal(delta.Added))
			tokens[d.Lifetime] = true
		}
		Expect(tokens).To(HaveLen(3))
		Expect(objects(deltas)).To(ConsistOf("Alice:99", "Alice:50", "Alice:25"))

		// A right-side update re-projects every pair in one batch.
		Expect(customers.Update(customer{1, 10, "Beth"})).To(Succeed())
		batches := rec.Batches()
		Expect(batches).To(HaveLen(4))
		last := batches[3]
		Expect(last).To(HaveLen(3))
		for _, d := range last {
			Expect(d.Type).To(Equal(delta.Updated))
			Expect(tokens).To(HaveKey(d.Lifetime))
		}
		Expect(objects(last)).To(ConsistOf("Beth:99", "Beth:50", "Beth:25"))
	})

	It("should re-pair on a left key change within one batch", func() {
		Expect(customers.Add(customer{1, 10, "Alice"})).To(Succeed())
		Expect(customers.Add(customer{2, 20, "Bob"})).To(Succeed())
		Expect(orders.Add(order{1, 10, 99})).To(Succeed())

		batches := rec.Batches()
		Expect(batches).To(HaveLen(1))
		l1 := batches[0][0].Lifetime
		Expect(batches[0][0].Object).To(Equal("Alice:99"))

		Expect(orders.Update(order{1, 20, 99})).To(Succeed())

		batches = rec.Batches()
		Expect(batches).To(HaveLen(2))
		moved := batches[1]
		Expect(moved).To(HaveLen(2))
		Expect(moved[0]).To(Equal(delta.NewDeleted[string](l1)))
		Expect(moved[1].Type).To(Equal(delta.Added))
		Expect(moved[1].Object).To(Equal("Bob:99"))
		Expect(moved[1].Lifetime).NotTo(BeIdenticalTo(l1))
	})

	It("should re-project pairs on a key-preserving left update", func() {
		Expect(customers.Add(customer{1, 10, "Alice"})).To(Succeed())
		Expect(orders.Add(order{1, 10, 99})).To(Succeed())
		l := rec.Deltas()[0].Lifetime

		Expect(orders.Update(order{1, 10, 42})).To(Succeed())
		Expect(rec.Deltas()[1]).To(Equal(delta.NewUpdated(l, "Alice:42")))
	})

	It("should retire pairs when either side leaves", func() {
		Expect(customers.Add(customer{1, 10, "Alice"})).To(Succeed())
		Expect(orders.Add(order{1, 10, 99})).To(Succeed())
		Expect(orders.Add(order{2, 10, 50})).To(Succeed())

		Expect(orders.Delete(2)).To(Succeed())
		deltas := rec.Deltas()
		Expect(deltas[2].Type).To(Equal(delta.Deleted))
		Expect(deltas[2].Lifetime).To(BeIdenticalTo(deltas[1].Lifetime))

		Expect(customers.Delete(1)).To(Succeed())
		deltas = rec.Deltas()
		Expect(deltas).To(HaveLen(4))
		Expect(deltas[3].Type).To(Equal(delta.Deleted))
		Expect(deltas[3].Lifetime).To(BeIdenticalTo(deltas[0].Lifetime))
	})

	It("should join initial membership through replay", func() {
		Expect(customers.Add(customer{1, 10, "Alice"})).To(Succeed())
		Expect(orders.Add(order{1, 10, 99})).To(Succeed())

		late := testutils.NewRecorder[string]()
		ops.Join(orders, customers, orderKey, custKey, invoice).Subscribe(late)
		Expect(late.Deltas()).To(HaveLen(1))
		Expect(late.Deltas()[0].Object).To(Equal("Alice:99"))
	})

	It("should mint downstream tokens disjoint from both inputs", func() {
		leftRec := testutils.NewRecorder[order]()
		rightRec := testutils.NewRecorder[customer]()
		orders.Subscribe(leftRec)
		customers.Subscribe(rightRec)

		Expect(customers.Add(customer{1, 10, "Alice"})).To(Succeed())
		Expect(orders.Add(order{1, 10, 99})).To(Succeed())

		down := rec.Deltas()[0].Lifetime
		Expect(down).NotTo(BeIdenticalTo(leftRec.Deltas()[0].Lifetime))
		Expect(down).NotTo(BeIdenticalTo(rightRec.Deltas()[0].Lifetime))
	})
})
