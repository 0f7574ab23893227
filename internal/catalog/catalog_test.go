package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/sneakerstore/internal/testkit"
)

func TestProduct_Stock(t *testing.T) {
	p := Product{SizesAvailable: map[string]int{"42": 3}}
	assert.Equal(t, 3, p.Stock("42"))
	assert.Equal(t, 0, p.Stock("43"))
	assert.Equal(t, 0, Product{}.Stock("42"))
}

func seedProduct(t *testing.T, repo *Repository, sizes map[string]int) *Product {
	t.Helper()
	p, err := repo.CreateProduct(context.Background(), Product{
		Name: "Air Runner", Brand: "Stride", PriceCents: 12000, Active: true, SizesAvailable: sizes,
	})
	require.NoError(t, err)
	return p
}

func TestReduce_NeverGoesNegativeUnderConcurrency(t *testing.T) {
	repo := NewRepository(testkit.Postgres(t))
	p := seedProduct(t, repo, map[string]int{"42": 3})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Reduce(context.Background(), "order-"+string(rune('a'+i)), Line{ProductID: p.ID, Size: "42", Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 7, short)
	got, err := repo.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock("42"))
}

func TestReduce_SameOrderAppliesOnce(t *testing.T) {
	repo := NewRepository(testkit.Postgres(t))
	p := seedProduct(t, repo, map[string]int{"42": 5})
	line := Line{ProductID: p.ID, Size: "42", Quantity: 2}

	require.NoError(t, repo.Reduce(context.Background(), "order-1", line))
	require.NoError(t, repo.Reduce(context.Background(), "order-1", line))

	got, err := repo.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock("42"))

	require.NoError(t, repo.Restore(context.Background(), "order-1", line))
	require.NoError(t, repo.Restore(context.Background(), "order-1", line))
	got, err = repo.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock("42"))
}

func TestRestore_WithoutSaleMovement(t *testing.T) {
	repo := NewRepository(testkit.Postgres(t))
	p := seedProduct(t, repo, map[string]int{"42": 5})

	err := repo.Restore(context.Background(), "never-sold", Line{ProductID: p.ID, Size: "42", Quantity: 2})
	assert.ErrorIs(t, err, ErrNoSaleMovement)
	got, err := repo.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock("42"))
}

func TestReduce_UnknownProduct(t *testing.T) {
	repo := NewRepository(testkit.Postgres(t))
	err := repo.Reduce(context.Background(), "order-1", Line{ProductID: "missing", Size: "42", Quantity: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestSetStock_AndDeactivate(t *testing.T) {
	repo := NewRepository(testkit.Postgres(t))
	ctx := context.Background()
	p := seedProduct(t, repo, map[string]int{"42": 1})

	require.NoError(t, repo.SetStock(ctx, p.ID, "44", 6))
	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Stock("44"))
	assert.Equal(t, 1, got.Stock("42"))

	require.NoError(t, repo.DeactivateProduct(ctx, p.ID))
	listed, err := repo.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)
}
