package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is a flattened view of an error chain suitable for structured logs.
type ErrorDump struct {
	Message string `json:"message"`
	Code    Code   `json:"code,omitempty"`
	Kind    Kind   `json:"kind,omitempty"`

	Chain []string `json:"chain,omitempty"`

	SQLState   string `json:"sql_state,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Driver     string `json:"driver,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{Message: err.Error(), Kind: KindOf(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.Driver = "pgx"
		d.SQLState = pgxErr.Code
		d.Constraint = pgxErr.ConstraintName
		d.Table = pgxErr.TableName
		d.Column = pgxErr.ColumnName
		d.Detail = pgxErr.Detail
		return d
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.Driver = "pq"
		d.SQLState = string(pqErr.Code)
		d.Constraint = pqErr.Constraint
		d.Table = pqErr.Table
		d.Column = pqErr.Column
		d.Detail = pqErr.Detail
		return d
	}

	// sqlite only exposes constraint failures through the message text.
	if idx := strings.Index(d.Message, "UNIQUE constraint failed: "); idx >= 0 {
		d.Driver = "sqlite"
		d.Constraint = strings.TrimSpace(d.Message[idx+len("UNIQUE constraint failed: "):])
	}

	return d
}

// Fields renders the dump as a logger field map.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error_message": d.Message}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if d.Kind != "" {
		fields["error_kind"] = string(d.Kind)
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	if d.SQLState != "" {
		fields["sql_state"] = d.SQLState
	}
	if d.Constraint != "" {
		fields["sql_constraint"] = d.Constraint
	}
	if d.Table != "" {
		fields["sql_table"] = d.Table
	}
	return fields
}
