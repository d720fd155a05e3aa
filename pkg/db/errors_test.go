package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolationPgx(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "ux_subscription_usages_order_subscription"}

	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "ux_subscription_usages_order_subscription"))
	assert.False(t, IsUniqueViolation(err, "ux_other"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
}

func TestIsUniqueViolationPq(t *testing.T) {
	err := &pq.Error{Code: "23505", Constraint: "ux_invoices_order_type"}

	assert.True(t, IsUniqueViolation(err, "ux_invoices_order_type"))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "42P01"}, ""))
}

func TestIsUniqueViolationMessageFallback(t *testing.T) {
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: subscription_usages.invoice_id"), ""))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", errors.New("duplicate key value violates unique constraint")), ""))
	assert.False(t, IsUniqueViolation(errors.New("connection refused"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}
