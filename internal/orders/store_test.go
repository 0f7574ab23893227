package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/imrishuroy/sneakerstore/internal/testkit"
)

const (
	ordersTable = "orders"
	idempTable  = "idempotency"
)

func newTestStore() (*Store, *testkit.Dynamo) {
	mock := testkit.NewDynamo().WithKey(ordersTable, "order_id").WithKey(idempTable, "idempotency_key")
	return NewStore(mock, ordersTable, idempTable), mock
}

func paidOrder(id, session string) Order {
	return Order{
		OrderID:      id,
		UserID:       "user-1",
		SessionID:    session,
		Status:       StatusPaid,
		Items:        []Item{{ProductID: "p1", Name: "Runner", PriceCents: 12000, Quantity: 1, Size: "42"}},
		TotalCents:   12000,
		BillingEmail: "ana@example.com",
	}
}

func TestCreateOnce_Success(t *testing.T) {
	store, mock := newTestStore()

	got, created, err := store.CreateOnce(context.Background(), paidOrder("order-1", "cs_1"))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set")
	}

	// verify both tables contain items
	if mock.Item(idempTable, "checkout_session#cs_1") == nil {
		t.Fatalf("session gate not stored")
	}
	orderItem := mock.Item(ordersTable, "order-1")
	if orderItem == nil {
		t.Fatalf("order item not stored")
	}
	var stored Order
	if err := attributevalue.UnmarshalMap(orderItem, &stored); err != nil {
		t.Fatalf("unmarshal order: %v", err)
	}
	if stored.SessionID != "cs_1" || stored.Items[0].Size != "42" {
		t.Fatalf("stored order mismatch: %+v", stored)
	}
}

func TestCreateOnce_DuplicateSessionReturnsExisting(t *testing.T) {
	store, mock := newTestStore()
	ctx := context.Background()

	first, _, err := store.CreateOnce(ctx, paidOrder("order-1", "cs_1"))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	again, created, err := store.CreateOnce(ctx, paidOrder("order-2", "cs_1"))
	if err != nil {
		t.Fatalf("duplicate create should not fail: %v", err)
	}
	if created {
		t.Fatalf("expected created=false for duplicate session")
	}
	if again.OrderID != first.OrderID {
		t.Fatalf("expected existing order %s, got %s", first.OrderID, again.OrderID)
	}
	if mock.Len(ordersTable) != 1 {
		t.Fatalf("expected exactly one order, got %d", mock.Len(ordersTable))
	}
}

func TestCreateOnce_ConcurrentDeliveries(t *testing.T) {
	store, mock := newTestStore()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]bool{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, c, err := store.CreateOnce(ctx, paidOrder("order-"+string(rune('a'+i)), "cs_same"))
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if c {
				created++
			}
			ids[o.OrderID] = true
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected exactly one creation, got %d", created)
	}
	if len(ids) != 1 {
		t.Fatalf("all callers should see the same order, got %v", ids)
	}
	if mock.Len(ordersTable) != 1 {
		t.Fatalf("expected one stored order, got %d", mock.Len(ordersTable))
	}
}

func TestCreateOnce_PropagatesOtherErrors(t *testing.T) {
	store, mock := newTestStore()
	mock.Errs["TransactWriteItems"] = errors.New("throttled")

	if _, _, err := store.CreateOnce(context.Background(), paidOrder("order-1", "cs_1")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTransition_Condition_SuccessAndFail(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	if _, _, err := store.CreateOnce(ctx, paidOrder("order-10", "cs_10")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	now := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	got, err := store.Transition(ctx, "order-10", StatusPaid, StatusCancelled, map[string]any{
		"cancelled_at":     now,
		"cancelled_reason": "changed my mind",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got.Status != StatusCancelled || got.CancelledAt == nil || !got.CancelledAt.Equal(now) {
		t.Fatalf("transition not applied: %+v", got)
	}
	if got.CancelledReason != "changed my mind" {
		t.Fatalf("reason not stored")
	}

	// failure: paid -> shipped, but current is cancelled
	_, err = store.Transition(ctx, "order-10", StatusPaid, StatusShipped, nil)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	_, err = store.Transition(ctx, "missing", StatusPaid, StatusShipped, nil)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for missing order, got %v", err)
	}
}

func TestQueries(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"o1", "o2", "o3"} {
		o := paidOrder(id, "cs_"+id)
		o.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		o.PaymentIntentID = "pi_" + id
		if id == "o3" {
			o.UserID = "user-2"
		}
		if _, _, err := store.CreateOnce(ctx, o); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	mine, err := store.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(mine) != 2 || mine[0].OrderID != "o2" {
		t.Fatalf("expected [o2 o1], got %+v", mine)
	}

	byPI, err := store.GetByPaymentIntent(ctx, "pi_o3")
	if err != nil || byPI.OrderID != "o3" {
		t.Fatalf("GetByPaymentIntent: %v %+v", err, byPI)
	}
	if _, err := store.GetByPaymentIntent(ctx, "pi_none"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.SetRefund(ctx, "o1", Refund{ID: "re_1", Status: "succeeded", AmountCents: 12000}); err != nil {
		t.Fatalf("SetRefund: %v", err)
	}
	o1, err := store.Get(ctx, "o1")
	if err != nil || o1.Refund == nil || o1.Refund.ID != "re_1" {
		t.Fatalf("refund not stored: %v %+v", err, o1)
	}

	if _, err := store.Transition(ctx, "o2", StatusPaid, StatusShipped, nil); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	shipped, err := store.List(ctx, StatusShipped)
	if err != nil || len(shipped) != 1 || shipped[0].OrderID != "o2" {
		t.Fatalf("List(shipped): %v %+v", err, shipped)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("List(all): %v %d", err, len(all))
	}

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
