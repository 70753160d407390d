package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedTimeProvider(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tp := NewFixedTimeProvider(base)

	assert.Equal(t, base, tp.Now())

	tp.AddTime(90 * time.Second)
	assert.Equal(t, base.Add(90*time.Second), tp.Now())
}
