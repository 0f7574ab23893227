package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imrishuroy/sneakerstore/internal/money"
)

// Lookup is the read side of the discount repository.
type Lookup interface {
	GetByCode(ctx context.Context, code string) (*Code, error)
	CountUserUsages(ctx context.Context, codeID, userID string) (int, error)
}

// Validator checks codes against the catalog at call time. It never records usage.
type Validator struct {
	lookup  Lookup
	nowFunc func() time.Time
}

func NewValidator(lookup Lookup) *Validator {
	return &Validator{lookup: lookup, nowFunc: time.Now}
}

// Check returns the code when every rule passes, an *InvalidError when one fails,
// or any other error when the lookup itself failed.
func (v *Validator) Check(ctx context.Context, code string, subtotal money.Cents, userID string) (*Code, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &InvalidError{Reason: ReasonNotFound}
	}
	c, err := v.lookup.GetByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, &InvalidError{Reason: ReasonNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup discount: %w", err)
	}

	uses := 0
	if userID != "" && c.MaxUsesPerUser != nil {
		if uses, err = v.lookup.CountUserUsages(ctx, c.ID, userID); err != nil {
			return nil, fmt.Errorf("count discount usages: %w", err)
		}
	}
	if err := Evaluate(*c, subtotal, uses, v.nowFunc()); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate is Check shaped as the public response.
func (v *Validator) Validate(ctx context.Context, code string, subtotal money.Cents, userID string) (Result, error) {
	c, err := v.Check(ctx, code, subtotal, userID)
	var invalid *InvalidError
	if errors.As(err, &invalid) {
		return Result{Valid: false, Error: invalid.Error()}, nil
	}
	if err != nil {
		return Result{}, err
	}
	value := c.Value
	return Result{Valid: true, Type: c.Type, Value: &value, Description: c.Description}, nil
}
