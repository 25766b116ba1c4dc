package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrorDump flattens an error chain for logs. Nothing in it is safe to send
// to clients.
type ErrorDump struct {
	TopMessage string       `json:"top_message"`
	Code       Code         `json:"code,omitempty"`
	Chain      []string     `json:"chain,omitempty"`
	Driver     *DriverError `json:"driver,omitempty"`
}

// DriverError is the database driver's view of a failure, whichever driver
// produced it.
type DriverError struct {
	Driver     string `json:"driver"`
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), Driver: driverError(err)}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields renders the dump as log fields; driver fields get a db_ prefix.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error_chain": d.Chain}
	if drv := d.Driver; drv != nil {
		fields["db_driver"] = drv.Driver
		fields["db_code"] = drv.Code
		fields["db_message"] = drv.Message
		if drv.Constraint != "" {
			fields["db_constraint"] = drv.Constraint
		}
		if drv.Detail != "" {
			fields["db_detail"] = drv.Detail
		}
	}
	return fields
}

func driverError(err error) *DriverError {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &DriverError{
			Driver:     "pgx",
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &DriverError{
			Driver:     "pq",
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return &DriverError{
			Driver:  "sqlite3",
			Code:    fmt.Sprintf("%d/%d", int(liteErr.Code), int(liteErr.ExtendedCode)),
			Message: liteErr.Error(),
		}
	}
	return nil
}
