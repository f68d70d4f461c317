package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpCapturesPgxFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "reward_grants_code_key", TableName: "reward_grants"}
	err := Wrap(CodeInternal, fmt.Errorf("insert grant: %w", pgErr), "create reward grant")

	d := Dump(err)
	if d.Code != CodeInternal || d.Kind != KindInternal {
		t.Fatalf("unexpected code/kind %s/%s", d.Code, d.Kind)
	}
	if d.Driver != "pgx" || d.SQLState != "23505" || d.Constraint != "reward_grants_code_key" {
		t.Fatalf("unexpected pg fields %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(d.Chain))
	}
}

func TestDumpCapturesPqFields(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &pq.Error{Code: "23505", Constraint: "stamp_qr_codes_code_key"})
	d := Dump(err)
	if d.Driver != "pq" || d.Constraint != "stamp_qr_codes_code_key" {
		t.Fatalf("unexpected pq dump %+v", d)
	}
}

func TestDumpCapturesSQLiteConstraint(t *testing.T) {
	d := Dump(stdErrors.New("UNIQUE constraint failed: reward_grants.code"))
	if d.Driver != "sqlite" || d.Constraint != "reward_grants.code" {
		t.Fatalf("unexpected sqlite dump %+v", d)
	}
	fields := d.Fields()
	if fields["sql_constraint"] != "reward_grants.code" {
		t.Fatalf("expected constraint field, got %v", fields)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.Message != "" || d.Chain != nil {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
