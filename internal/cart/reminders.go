package cart

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// IdleLister finds carts eligible for a reminder and marks them.
type IdleLister interface {
	ListIdle(ctx context.Context, before time.Time) ([]Record, error)
	MarkReminded(ctx context.Context, cartID string, at time.Time) error
}

// ReminderSink queues the reminder email.
type ReminderSink interface {
	AbandonedCart(ctx context.Context, email string, view View) error
}

// Reminders sends one abandoned cart email per idle cart.
type Reminders struct {
	carts   IdleLister
	sink    ReminderSink
	idleFor time.Duration
	logger  *zap.Logger
	nowFunc func() time.Time
}

func NewReminders(carts IdleLister, sink ReminderSink, idleFor time.Duration, logger *zap.Logger) *Reminders {
	return &Reminders{carts: carts, sink: sink, idleFor: idleFor, logger: logger, nowFunc: time.Now}
}

// Run marks each cart before queueing so concurrent runs never email a shopper twice.
// It returns how many reminders were queued.
func (r *Reminders) Run(ctx context.Context) (int, error) {
	now := r.nowFunc()
	idle, err := r.carts.ListIdle(ctx, now.Add(-r.idleFor))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range idle {
		if err := r.carts.MarkReminded(ctx, rec.CartID, now); err != nil {
			if !errors.Is(err, ErrAlreadyReminded) {
				r.logger.Warn("mark cart reminded failed", zap.String("cart_id", rec.CartID), zap.Error(err))
			}
			continue
		}
		if err := r.sink.AbandonedCart(ctx, rec.Email, NewView(rec.CartID, rec.State)); err != nil {
			r.logger.Warn("enqueue abandoned cart email failed", zap.String("cart_id", rec.CartID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}
