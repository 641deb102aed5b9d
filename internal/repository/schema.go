package repository

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the bank schema and its tables if they do not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.q.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
