package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFor(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeForbidden:     {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
		CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
		CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
		CodeIdempotency:   {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
		CodeRateLimit:     {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},
		CodePersistence:   {HTTPStatus: http.StatusInternalServerError, PublicMessage: "storage operation failed"},
		CodeInternal:      {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
	}
	for code, want := range cases {
		assert.Equal(t, want, MetadataFor(code), string(code))
	}
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing title")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "missing title", base.Message())
	assert.Equal(t, "VALIDATION_ERROR: missing title", base.Error())
	assert.Nil(t, base.Details())

	base.WithDetails(map[string]any{"field": "title"})
	assert.Equal(t, map[string]any{"field": "title"}, base.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeConflict, wrapped.Code())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Empty(t, nilErr.Error())
	assert.Nil(t, nilErr.WithDetails("ignored"))
}

func TestAsCodeOfAndIsCode(t *testing.T) {
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))

	wrapped := fmt.Errorf("repo: %w", Wrap(CodePersistence, stdErrors.New("disk full"), "insert contract"))
	require.NotNil(t, As(wrapped))
	assert.Equal(t, CodePersistence, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, CodePersistence))
	assert.False(t, IsCode(wrapped, CodeNotFound))
	assert.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
}

func TestDumpCollectsChain(t *testing.T) {
	d := Dump(Wrap(CodePersistence, stdErrors.New("constraint failed"), "insert history"))
	assert.Equal(t, CodePersistence, d.Code)
	assert.Len(t, d.Chain, 2)
	assert.Empty(t, Dump(nil).TopMessage)
}

func TestDumpExtractsDriverFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "contracts_contract_number_key", Message: "duplicate key value"}
	d := Dump(Wrap(CodeConflict, fmt.Errorf("insert contract: %w", pgErr), "contract number taken"))
	require.NotNil(t, d.Driver)
	assert.Equal(t, "pgx", d.Driver.Driver)
	assert.Equal(t, "23505", d.Driver.Code)
	assert.Equal(t, "contracts_contract_number_key", d.Fields()["db_constraint"])

	pqDump := Dump(&pq.Error{Code: "23503", Message: "fk"})
	require.NotNil(t, pqDump.Driver)
	assert.Equal(t, "pq", pqDump.Driver.Driver)
	assert.Equal(t, "23503", pqDump.Driver.Code)

	assert.Nil(t, Dump(stdErrors.New("plain")).Driver)
}
