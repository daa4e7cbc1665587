package orders

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "orders_checkout_ref_key"}
	if !isUniqueViolation(unique) {
		t.Error("unique violation not detected")
	}
	if !isUniqueViolation(fmt.Errorf("insert order: %w", unique)) {
		t.Error("wrapped unique violation not detected")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation misdetected as unique")
	}
	if isUniqueViolation(errors.New("connection refused")) {
		t.Error("plain error misdetected as unique violation")
	}
}
