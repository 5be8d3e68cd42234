package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

const DefaultQueryTimeout = 30 * time.Second

// withTimeout wraps a context with a default query timeout if not already set
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	// Check if context already has a deadline
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultQueryTimeout)
}

// Nullable field converters - from Go to SQL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// Error handling helpers

// checkNoRows returns true if the error is pgx.ErrNoRows (indicating no result found)
func checkNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// JSON helpers

// unmarshalJSONField unmarshals a JSON byte slice into the target pointer
// Returns nil if data is empty (no error for empty data)
func unmarshalJSONField[T any](data []byte, target *T) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

// marshalJSONField marshals a value to JSON, handling nil pointers
// Returns nil byte slice for nil pointers
func marshalJSONField[T any](value *T) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

