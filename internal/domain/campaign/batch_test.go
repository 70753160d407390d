package campaign

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatchPolicy(t *testing.T) {
	p, err := NewBatchPolicy(20, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 20, p.Size())
	assert.Equal(t, time.Second, p.Delay())

	_, err = NewBatchPolicy(0, time.Second)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)

	p, err = NewBatchPolicy(5, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), p.Delay())
}

func TestBatchPolicy_Batches(t *testing.T) {
	p, err := NewBatchPolicy(20, 0)
	require.NoError(t, err)

	tests := []struct {
		targets, want int
	}{
		{0, 0},
		{1, 1},
		{19, 1},
		{20, 1},
		{21, 2},
		{25, 2},
		{40, 2},
		{41, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d targets", tt.targets), func(t *testing.T) {
			assert.Equal(t, tt.want, p.Batches(tt.targets))
		})
	}
}

func TestBatchPolicy_Partition(t *testing.T) {
	p, err := NewBatchPolicy(3, 0)
	require.NoError(t, err)

	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	batches := p.Partition(ids)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b", "c"}, batches[0])
	assert.Equal(t, []string{"d", "e", "f"}, batches[1])
	assert.Equal(t, []string{"g"}, batches[2])

	assert.Nil(t, p.Partition(nil))
}

func TestProgress(t *testing.T) {
	// 25 targets with batch size 20: 80 after batch one, 100 after batch two.
	assert.Equal(t, 80, Progress(20, 25))
	assert.Equal(t, 100, Progress(25, 25))

	assert.Equal(t, 0, Progress(0, 10))
	assert.Equal(t, 33, Progress(1, 3))
	assert.Equal(t, 67, Progress(2, 3))
	assert.Equal(t, 0, Progress(5, 0))
	assert.Equal(t, 100, Progress(7, 5))
	assert.Equal(t, 0, Progress(-1, 5))
}

func TestProgress_MonotoneAtBatchBoundaries(t *testing.T) {
	p, err := NewBatchPolicy(20, 0)
	require.NoError(t, err)

	total := 173
	prev := 0
	processed := 0
	for batch := 0; batch < p.Batches(total); batch++ {
		remaining := total - processed
		if remaining > p.Size() {
			processed += p.Size()
		} else {
			processed += remaining
		}
		cur := Progress(processed, total)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, 100, prev)
}

func TestClampProgress(t *testing.T) {
	assert.Equal(t, 0, ClampProgress(-5))
	assert.Equal(t, 0, ClampProgress(0))
	assert.Equal(t, 42, ClampProgress(42))
	assert.Equal(t, 100, ClampProgress(100))
	assert.Equal(t, 100, ClampProgress(150))
}
