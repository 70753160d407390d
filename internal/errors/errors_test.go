package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, ErrCodeInternal, "insert job")

	assert.Equal(t, "insert job: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := Validation("survey_id is required")
	assert.Equal(t, "survey_id is required", bare.Error())
}

func TestCodePredicates(t *testing.T) {
	assert.True(t, IsNotFound(NotFoundf("job %s not found", "j1")))
	assert.True(t, IsValidation(ValidationField("email", "required")))
	assert.True(t, IsConflict(Conflict("duplicate identifier")))
	assert.False(t, IsNotFound(Internal("oops")))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestWrap_NilCause(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "ignored %d", 1))
}

func TestMapDBError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, MapDBError(nil))
	})

	t.Run("no rows", func(t *testing.T) {
		err := MapDBError(pgx.ErrNoRows)
		assert.True(t, IsNotFound(err))
	})

	t.Run("context deadline", func(t *testing.T) {
		err := MapDBError(context.DeadlineExceeded)
		var appErr *AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, ErrCodeTimeout, appErr.Code)
	})

	t.Run("unique violation extracts field from detail", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code:   pgerrcode.UniqueViolation,
			Detail: "Key (identifier)=(abc123) already exists.",
		}
		err := MapDBError(pgErr)
		var appErr *AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, ErrCodeConflict, appErr.Code)
		assert.Equal(t, "identifier", appErr.Field)
	})

	t.Run("not null violation", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "email"}
		err := MapDBError(pgErr)
		var appErr *AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, ErrCodeValidation, appErr.Code)
		assert.Equal(t, "email", appErr.Field)
	})

	t.Run("unrecognized error passes through", func(t *testing.T) {
		plain := errors.New("weird")
		assert.Equal(t, plain, MapDBError(plain))
	})
}
