package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/sneakerstore/internal/money"
	"github.com/imrishuroy/sneakerstore/internal/testkit"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) GetByCode(ctx context.Context, code string) (*Code, error) {
	args := m.Called(ctx, code)
	c, _ := args.Get(0).(*Code)
	return c, args.Error(1)
}

func (m *mockLookup) CountUserUsages(ctx context.Context, codeID, userID string) (int, error) {
	args := m.Called(ctx, codeID, userID)
	return args.Int(0), args.Error(1)
}

func intPtr(v int) *int { return &v }

func TestAmount(t *testing.T) {
	tests := []struct {
		name     string
		typ      Type
		value    string
		subtotal money.Cents
		want     money.Cents
	}{
		{"percentage exact", Percentage, "10", 25000, 2500},
		{"percentage rounds half up", Percentage, "10", 1005, 101},
		{"percentage rounds down below half", Percentage, "15", 1001, 150},
		{"fixed", Fixed, "500", 25000, 500},
		{"fixed clamped to subtotal", Fixed, "3000", 2000, 2000},
		{"percentage over 100 clamped", Percentage, "150", 2000, 2000},
		{"empty cart", Percentage, "10", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Amount(tt.typ, decimal.RequireFromString(tt.value), tt.subtotal)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmount_IsDeterministic(t *testing.T) {
	v := decimal.RequireFromString("12.5")
	first := Amount(Percentage, v, 7999)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Amount(Percentage, v, 7999))
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	base := Code{Active: true, Type: Percentage, Value: decimal.NewFromInt(10)}

	tests := []struct {
		name     string
		mutate   func(c *Code)
		subtotal money.Cents
		userUses int
		want     Reason
	}{
		{"valid", func(c *Code) {}, 1000, 0, ""},
		{"inactive", func(c *Code) { c.Active = false }, 1000, 0, ReasonInactive},
		{"not started", func(c *Code) { c.StartsAt = &future }, 1000, 0, ReasonNotStarted},
		{"expired", func(c *Code) { c.ExpiresAt = &past }, 1000, 0, ReasonExpired},
		{"expires exactly now", func(c *Code) { c.ExpiresAt = &now }, 1000, 0, ReasonExpired},
		{"below minimum", func(c *Code) { c.MinPurchase = 5000 }, 4999, 0, ReasonMinPurchase},
		{"global cap", func(c *Code) { c.MaxUses = intPtr(3); c.UsesCount = 3 }, 1000, 0, ReasonMaxUses},
		{"per user cap", func(c *Code) { c.MaxUsesPerUser = intPtr(1) }, 1000, 1, ReasonMaxUsesPerUser},
		{"within window", func(c *Code) { c.StartsAt = &past; c.ExpiresAt = &future }, 1000, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := Evaluate(c, tt.subtotal, tt.userUses, now)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.want, invalid.Reason)
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	ctx := context.Background()
	lookup := new(mockLookup)
	lookup.On("GetByCode", ctx, "SAVE10").Return(&Code{
		ID: "c1", Code: "SAVE10", Type: Percentage, Value: decimal.NewFromInt(10),
		Description: "10% off", Active: true, MaxUsesPerUser: intPtr(1),
	}, nil)
	lookup.On("CountUserUsages", ctx, "c1", "user-1").Return(0, nil)
	lookup.On("CountUserUsages", ctx, "c1", "user-2").Return(1, nil)
	lookup.On("GetByCode", ctx, "NOPE").Return(nil, ErrNotFound)

	v := NewValidator(lookup)

	res, err := v.Validate(ctx, "SAVE10", 10000, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, Percentage, res.Type)
	assert.True(t, res.Value.Equal(decimal.NewFromInt(10)))

	res, err = v.Validate(ctx, "SAVE10", 10000, "user-2")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "You have already used this discount code", res.Error)

	res, err = v.Validate(ctx, "NOPE", 10000, "")
	require.NoError(t, err)
	assert.False(t, res.Valid)

	lookup.AssertExpectations(t)
}

func TestValidator_LookupFailure(t *testing.T) {
	ctx := context.Background()
	lookup := new(mockLookup)
	lookup.On("GetByCode", ctx, "SAVE10").Return(nil, errors.New("connection reset"))

	_, err := NewValidator(lookup).Validate(ctx, "SAVE10", 100, "")
	require.Error(t, err)
}

func TestValidator_EmptyCode(t *testing.T) {
	_, err := NewValidator(new(mockLookup)).Check(context.Background(), "  ", 100, "")
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, ReasonNotFound, invalid.Reason)
}

func TestRepository_RecordUsageOncePerOrder(t *testing.T) {
	repo := NewRepository(testkit.Postgres(t))
	ctx := context.Background()

	c, err := repo.Create(ctx, Code{Code: "welcome", Type: Fixed, Value: decimal.NewFromInt(500), Active: true})
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", c.Code)

	recorded, err := repo.RecordUsage(ctx, "welcome", "order-1", "user-1", "a@example.com")
	require.NoError(t, err)
	assert.True(t, recorded)
	recorded, err = repo.RecordUsage(ctx, "WELCOME", "order-1", "user-1", "a@example.com")
	require.NoError(t, err)
	assert.False(t, recorded)

	got, err := repo.GetByCode(ctx, "Welcome")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsesCount)

	n, err := repo.CountUserUsages(ctx, c.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.Create(ctx, Code{Code: "WELCOME", Type: Fixed, Value: decimal.NewFromInt(1), Active: true})
	assert.ErrorIs(t, err, ErrCodeExists)
}
