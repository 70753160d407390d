package errors

import (
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/surveyhq/survey-api/internal/errors"
)

func TestClassify(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Equal(t, "", Classify(nil))
	})

	t.Run("app error tagged by code", func(t *testing.T) {
		assert.Equal(t, "app_conflict", Classify(apperrors.Conflict("identifier already in use")))
	})

	t.Run("wrapped app error tagged by code", func(t *testing.T) {
		err := fmt.Errorf("update participant: %w", apperrors.Validation("bad status"))
		assert.Equal(t, "app_validation", Classify(err))
	})

	t.Run("plain error uses innermost type", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", goerrors.New("inner"))
		assert.Equal(t, "errors_errorstring", Classify(err))
	})
}
