// Package subscription manages newsletter and VIP sign-ups.
package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/db"
	"github.com/imrishuroy/sneakerstore/internal/discount"
	"github.com/imrishuroy/sneakerstore/internal/outbox"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, job outbox.Job) error
}

// VIPResult is the personal code of a VIP subscriber. Created is false when the email
// already had one.
type VIPResult struct {
	Code    string `json:"code"`
	Created bool   `json:"created"`
}

type Service struct {
	db         db.TxBeginner
	outbox     Enqueuer
	vipPercent decimal.Decimal
	logger     *zap.Logger
	nowFunc    func() time.Time
}

func NewService(pool db.TxBeginner, ob Enqueuer, vipPercent decimal.Decimal, logger *zap.Logger) *Service {
	return &Service{db: pool, outbox: ob, vipPercent: vipPercent, logger: logger, nowFunc: time.Now}
}

func normalize(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Subscribe turns the newsletter on. The welcome email goes out only when it was off.
func (s *Service) Subscribe(ctx context.Context, email string) (bool, error) {
	email = normalize(email)
	now := s.nowFunc().UTC()
	var wasSubscribed bool
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := ensure(ctx, tx, email, now); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT newsletter FROM subscribers WHERE email = $1 FOR UPDATE`, email).Scan(&wasSubscribed); err != nil {
			return fmt.Errorf("lock subscriber: %w", err)
		}
		_, err := tx.Exec(ctx, `UPDATE subscribers SET newsletter = TRUE, updated_at = $2 WHERE email = $1`, email, now)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if wasSubscribed {
		return false, nil
	}
	if err := s.outbox.Enqueue(ctx, outbox.Job{Kind: outbox.KindNewsletterWelcome, To: email}); err != nil {
		s.logger.Warn("newsletter welcome not queued", zap.Error(err))
	}
	return true, nil
}

// Unsubscribe turns the newsletter off. Unknown emails are not an error.
func (s *Service) Unsubscribe(ctx context.Context, email string) error {
	_, err := s.db.Exec(ctx, `UPDATE subscribers SET newsletter = FALSE, updated_at = $2 WHERE email = $1`,
		normalize(email), s.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// JoinVIP issues the email's personal single-use code, once.
func (s *Service) JoinVIP(ctx context.Context, email string) (*VIPResult, error) {
	email = normalize(email)
	now := s.nowFunc().UTC()
	res := &VIPResult{}
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := ensure(ctx, tx, email, now); err != nil {
			return err
		}
		var existing *string
		if err := tx.QueryRow(ctx, `SELECT vip_code FROM subscribers WHERE email = $1 FOR UPDATE`, email).Scan(&existing); err != nil {
			return fmt.Errorf("lock subscriber: %w", err)
		}
		if existing != nil && *existing != "" {
			res.Code = *existing
			return nil
		}

		one := 1
		code, err := discount.NewRepository(tx).Create(ctx, discount.Code{
			Code:           newVIPCode(),
			Type:           discount.Percentage,
			Value:          s.vipPercent,
			Description:    "VIP welcome",
			Active:         true,
			MaxUses:        &one,
			MaxUsesPerUser: &one,
		})
		if err != nil {
			return fmt.Errorf("create vip code: %w", err)
		}
		_, err = tx.Exec(ctx, `UPDATE subscribers SET vip = TRUE, vip_code = $2, updated_at = $3 WHERE email = $1`,
			email, code.Code, now)
		if err != nil {
			return fmt.Errorf("store vip code: %w", err)
		}
		res.Code, res.Created = code.Code, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Created {
		s.logger.Info("vip code issued", zap.String("code", res.Code))
		job := outbox.Job{Kind: outbox.KindVIPWelcome, To: email, Code: res.Code, Percent: s.vipPercent.String()}
		if err := s.outbox.Enqueue(ctx, job); err != nil {
			s.logger.Warn("vip welcome not queued", zap.Error(err))
		}
	}
	return res, nil
}

func ensure(ctx context.Context, tx pgx.Tx, email string, now time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO subscribers (email, created_at, updated_at) VALUES ($1, $2, $2)
		ON CONFLICT (email) DO NOTHING
	`, email, now)
	if err != nil {
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

func newVIPCode() string {
	return "VIP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
