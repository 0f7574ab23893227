package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/sneakerstore/internal/orders"
	"github.com/imrishuroy/sneakerstore/internal/testkit"
)

type fakeOrders map[string]orders.Order

func (f fakeOrders) ListByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range f {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f fakeOrders) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	o, ok := f[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return &o, nil
}

func TestOrderOwnership(t *testing.T) {
	store := fakeOrders{
		"o1": {OrderID: "o1", UserID: "u1"},
		"o2": {OrderID: "o2", UserID: "u2"},
		"o3": {OrderID: "o3"},
	}
	ctx := context.Background()

	o, err := Order(ctx, store, "u1", "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.OrderID)

	_, err = Order(ctx, store, "u1", "o2")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = Order(ctx, store, "u1", "o3")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = Order(ctx, store, "u1", "missing")
	assert.ErrorIs(t, err, orders.ErrNotFound)

	list, err := Orders(ctx, store, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestRepository(t *testing.T) {
	repo := NewRepository(testkit.Postgres(t))
	ctx := context.Background()

	p, err := repo.Ensure(ctx, "u1", "Ana@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", p.Email)
	assert.False(t, p.IsAdmin)

	registered, err := repo.EmailRegistered(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.True(t, registered)

	registered, err = repo.EmailRegistered(ctx, "guest@example.com")
	require.NoError(t, err)
	assert.False(t, registered)

	name := "Ana"
	p, err = repo.Update(ctx, "u1", Update{
		FullName:        &name,
		ShippingAddress: &orders.Address{Line1: "Calle Mayor 1", City: "Madrid", Country: "ES"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.FullName)
	require.NotNil(t, p.ShippingAddress)
	assert.Equal(t, "Madrid", p.ShippingAddress.City)

	admin, err := repo.IsAdmin(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, admin)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
