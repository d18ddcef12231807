package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/rexfever/showmethestock-sub000/pkg/database"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by EnsureSchema
func Schema() string {
	return schemaSQL
}

// EnsureSchema applies the idempotent lifecycle DDL
func EnsureSchema(ctx context.Context, db *database.DB) error {
	if err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure lifecycle schema: %w", err)
	}
	return nil
}
