package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/catalog"
	"github.com/imrishuroy/sneakerstore/internal/invoice"
	"github.com/imrishuroy/sneakerstore/internal/money"
	"github.com/imrishuroy/sneakerstore/internal/orders"
	"github.com/imrishuroy/sneakerstore/internal/outbox"
	"github.com/imrishuroy/sneakerstore/internal/payment"
	"github.com/imrishuroy/sneakerstore/internal/testkit"
)

// fakeStock mirrors the ledger: restock once per order line, and only lines that sold.
type fakeStock struct {
	mu       sync.Mutex
	levels   map[string]int
	sold     map[string]bool
	restored map[string]bool
	calls    int
}

func (f *fakeStock) Restore(ctx context.Context, orderID string, line catalog.Line) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	key := orderID + "|" + line.ProductID + "|" + line.Size
	if !f.sold[key] {
		return catalog.ErrNoSaleMovement
	}
	if f.restored[key] {
		return nil
	}
	f.restored[key] = true
	f.levels[line.ProductID+"|"+line.Size] += line.Quantity
	return nil
}

func (f *fakeStock) level(productID, size string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[productID+"|"+size]
}

type fakeRefunds struct {
	mu    sync.Mutex
	calls []payment.RefundParams
	fail  bool
}

func (f *fakeRefunds) Refund(ctx context.Context, p payment.RefundParams) (*payment.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	if f.fail {
		return nil, errors.New("charge already refunded")
	}
	return &payment.Refund{ID: "re_1", Status: "succeeded"}, nil
}

type fakeRectifier struct {
	mu      sync.Mutex
	amounts []money.Cents
}

func (f *fakeRectifier) IssueRectification(ctx context.Context, orderID string, amount money.Cents, email string) (*invoice.Invoice, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amounts = append(f.amounts, amount)
	return &invoice.Invoice{OrderID: orderID, Type: invoice.TypeRectification, AmountCents: -amount}, true, nil
}

type fakeOutbox struct {
	mu   sync.Mutex
	jobs []outbox.Job
}

func (f *fakeOutbox) Enqueue(ctx context.Context, job outbox.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeOutbox) job(i int) outbox.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[i]
}

func (f *fakeOutbox) kinds() []outbox.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]outbox.Kind, len(f.jobs))
	for i, j := range f.jobs {
		out[i] = j.Kind
	}
	return out
}

type fakeReporter struct {
	mu      sync.Mutex
	metrics []string
}

func (f *fakeReporter) Report(ctx context.Context, metric string, dims map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, metric)
}

type harness struct {
	manager  *Manager
	orders   *orders.Store
	stock    *fakeStock
	refunds  *fakeRefunds
	invoices *fakeRectifier
	outbox   *fakeOutbox
	metrics  *fakeReporter
}

func newHarness() *harness {
	db := testkit.NewDynamo().WithKey("orders", "order_id").WithKey("idempotency", "idempotency_key")
	h := &harness{
		orders:   orders.NewStore(db, "orders", "idempotency"),
		stock:    &fakeStock{levels: map[string]int{}, sold: map[string]bool{}, restored: map[string]bool{}},
		refunds:  &fakeRefunds{},
		invoices: &fakeRectifier{},
		outbox:   &fakeOutbox{},
		metrics:  &fakeReporter{},
	}
	h.manager = NewManager(Deps{
		Orders:   h.orders,
		Stock:    h.stock,
		Refunds:  h.refunds,
		Invoices: h.invoices,
		Outbox:   h.outbox,
		Metrics:  h.metrics,
		Logger:   zap.NewNop(),
	})
	return h
}

// seed stores an order owned by u1 with two units of p1 size 42, whose sale was recorded.
func (h *harness) seed(id, status string) (*orders.Order, error) {
	h.stock.mu.Lock()
	h.stock.sold[id+"|p1|42"] = true
	h.stock.mu.Unlock()
	return h.seedUnsold(id, status)
}

// seedUnsold is seed for an order whose stock decrement never happened.
func (h *harness) seedUnsold(id, status string) (*orders.Order, error) {
	now := time.Now().UTC()
	o, _, err := h.orders.CreateOnce(context.Background(), orders.Order{
		OrderID:         id,
		UserID:          "u1",
		SessionID:       "cs_" + id,
		PaymentIntentID: "pi_" + id,
		Status:          orders.StatusPaid,
		Items:           []orders.Item{{ProductID: "p1", Name: "Runner", PriceCents: 5000, Quantity: 2, Size: "42"}},
		TotalCents:      10000,
		Currency:        "eur",
		BillingEmail:    "ana@example.com",
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil || status == orders.StatusPaid {
		return o, err
	}
	return h.orders.Transition(context.Background(), id, orders.StatusPaid, status, nil)
}
