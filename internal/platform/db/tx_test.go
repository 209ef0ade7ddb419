package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestErrorClassifiers(t *testing.T) {
	serialization := fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})
	require.True(t, IsConcurrentUpdate(serialization))
	require.True(t, IsConcurrentUpdate(&pgconn.PgError{Code: "40P01"}))
	require.False(t, IsConcurrentUpdate(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsConcurrentUpdate(errors.New("boom")))
	require.False(t, IsConcurrentUpdate(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "purchase_orders_po_number_key"})
	require.True(t, IsUniqueViolation(dup, "purchase_orders_po_number_key"))
	require.True(t, IsUniqueViolation(dup, ""))
	require.False(t, IsUniqueViolation(dup, "other_key"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}, ""))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))
}
