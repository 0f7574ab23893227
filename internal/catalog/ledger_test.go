package catalog

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTx answers the ledger's statements without a database. updated is the row
// count every UPDATE reports; exists answers every EXISTS query.
type scriptedTx struct {
	pgx.Tx
	updated    int
	exists     bool
	statements []string
	committed  bool
}

func (t *scriptedTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	sql = strings.TrimSpace(sql)
	t.statements = append(t.statements, strings.Fields(sql)[0])
	if strings.HasPrefix(sql, "UPDATE") {
		return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", t.updated)), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *scriptedTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	t.statements = append(t.statements, "SELECT")
	return boolRow(t.exists)
}

func (t *scriptedTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *scriptedTx) Rollback(ctx context.Context) error { return nil }

type boolRow bool

func (r boolRow) Scan(dest ...any) error {
	*(dest[0].(*bool)) = bool(r)
	return nil
}

type scriptedPool struct {
	*scriptedTx
}

func (p scriptedPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("unexpected query")
}

func (p scriptedPool) Begin(ctx context.Context) (pgx.Tx, error) { return p.scriptedTx, nil }

func TestReduce_NoRowUpdatedIsInsufficient(t *testing.T) {
	tx := &scriptedTx{updated: 0, exists: true}
	repo := NewRepository(scriptedPool{tx})

	err := repo.Reduce(context.Background(), "order-1", Line{ProductID: "p1", Size: "42", Quantity: 4})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.False(t, tx.committed)
	assert.Equal(t, []string{"INSERT", "UPDATE", "SELECT"}, tx.statements)
}

func TestReduce_NoRowUpdatedForMissingProduct(t *testing.T) {
	tx := &scriptedTx{updated: 0, exists: false}
	repo := NewRepository(scriptedPool{tx})

	err := repo.Reduce(context.Background(), "order-1", Line{ProductID: "gone", Size: "42", Quantity: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.False(t, tx.committed)
}

func TestReduce_RowUpdatedCommits(t *testing.T) {
	tx := &scriptedTx{updated: 1}
	repo := NewRepository(scriptedPool{tx})

	require.NoError(t, repo.Reduce(context.Background(), "order-1", Line{ProductID: "p1", Size: "42", Quantity: 1}))
	assert.True(t, tx.committed)
}

func TestRestore_WithoutSaleLeavesStock(t *testing.T) {
	tx := &scriptedTx{updated: 1, exists: false}
	repo := NewRepository(scriptedPool{tx})

	err := repo.Restore(context.Background(), "order-1", Line{ProductID: "p1", Size: "42", Quantity: 2})
	assert.ErrorIs(t, err, ErrNoSaleMovement)
	assert.Equal(t, []string{"SELECT"}, tx.statements)
	assert.False(t, tx.committed)
}

func TestRestore_AfterSaleIncrements(t *testing.T) {
	tx := &scriptedTx{updated: 1, exists: true}
	repo := NewRepository(scriptedPool{tx})

	require.NoError(t, repo.Restore(context.Background(), "order-1", Line{ProductID: "p1", Size: "42", Quantity: 2}))
	assert.Equal(t, []string{"SELECT", "INSERT", "UPDATE"}, tx.statements)
	assert.True(t, tx.committed)
}
