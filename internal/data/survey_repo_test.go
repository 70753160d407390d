package data

import (
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndefinedColumn(t *testing.T) {
	t.Run("not a pg error", func(t *testing.T) {
		_, ok := undefinedColumn(fmt.Errorf("plain error"))
		assert.False(t, ok)
	})

	t.Run("different pg error code", func(t *testing.T) {
		err := &pgconn.PgError{Code: pgerrcode.UniqueViolation}
		_, ok := undefinedColumn(err)
		assert.False(t, ok)
	})

	t.Run("column name field", func(t *testing.T) {
		err := &pgconn.PgError{Code: pgerrcode.UndefinedColumn, ColumnName: "last_reminded_at"}
		column, ok := undefinedColumn(err)
		require.True(t, ok)
		assert.Equal(t, "last_reminded_at", column)
	})

	t.Run("column name parsed from message", func(t *testing.T) {
		err := &pgconn.PgError{
			Code:    pgerrcode.UndefinedColumn,
			Message: `column "last_reminded_at" of relation "surveys" does not exist`,
		}
		column, ok := undefinedColumn(err)
		require.True(t, ok)
		assert.Equal(t, "last_reminded_at", column)
	})

	t.Run("wrapped pg error", func(t *testing.T) {
		inner := &pgconn.PgError{Code: pgerrcode.UndefinedColumn, ColumnName: "published_at"}
		column, ok := undefinedColumn(fmt.Errorf("update survey: %w", inner))
		require.True(t, ok)
		assert.Equal(t, "published_at", column)
	})
}

func TestSurveyWritableColumns(t *testing.T) {
	assert.True(t, surveyWritableColumns["status"])
	assert.True(t, surveyWritableColumns["published_at"])
	assert.True(t, surveyWritableColumns["last_reminded_at"])
	assert.False(t, surveyWritableColumns["name"], "the engine never rewrites survey content")
	assert.False(t, surveyWritableColumns["id"])
}
