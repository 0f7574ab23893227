package db

import (
	"context"
	_ "embed"
	"fmt"
)

// Schema is the DDL for every relational table, applied by Migrate.
//
//go:embed schema.sql
var Schema string

// Migrate applies Schema. Every statement is idempotent.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
