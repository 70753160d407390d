// Package campaign holds the pure domain policies of the bulk campaign
// engine: batch partitioning, progress math, access link generation and
// message composition. Nothing here touches the database or the network.
package campaign

import (
	"errors"
	"math"
	"time"
)

// DefaultBatchSize is the number of targets processed concurrently per batch.
const DefaultBatchSize = 20

// DefaultBatchDelay is the pause between consecutive batches. It exists to
// avoid hammering the repositories and the mail gateway, not as a retry or
// backoff mechanism.
const DefaultBatchDelay = 500 * time.Millisecond

// ErrInvalidBatchSize indicates the configured batch size is not positive.
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// BatchPolicy partitions campaign targets into fixed-size batches and owns
// the progress arithmetic reported at batch boundaries.
type BatchPolicy struct {
	size  int
	delay time.Duration
}

// NewBatchPolicy constructs a BatchPolicy. A non-positive delay disables the
// inter-batch pause.
func NewBatchPolicy(size int, delay time.Duration) (*BatchPolicy, error) {
	if size <= 0 {
		return nil, ErrInvalidBatchSize
	}
	if delay < 0 {
		delay = 0
	}
	return &BatchPolicy{size: size, delay: delay}, nil
}

// Size returns the configured batch size.
func (p *BatchPolicy) Size() int {
	if p == nil {
		return DefaultBatchSize
	}
	return p.size
}

// Delay returns the configured inter-batch delay.
func (p *BatchPolicy) Delay() time.Duration {
	if p == nil {
		return DefaultBatchDelay
	}
	return p.delay
}

// Batches returns the number of batches needed for n targets: ceil(n/size).
func (p *BatchPolicy) Batches(n int) int {
	if n <= 0 {
		return 0
	}
	size := p.Size()
	return (n + size - 1) / size
}

// Partition splits ids into consecutive slices of at most Size elements.
// The returned slices alias the input; batch order follows input order.
func (p *BatchPolicy) Partition(ids []string) [][]string {
	if len(ids) == 0 {
		return nil
	}
	size := p.Size()
	batches := make([][]string, 0, p.Batches(len(ids)))
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

// Progress returns the percentage of work done after `processed` of `total`
// targets, rounded to the nearest integer. Progress is reported only at
// batch boundaries, so successive values within a run never decrease.
func Progress(processed, total int) int {
	if total <= 0 {
		return 0
	}
	if processed >= total {
		return 100
	}
	if processed < 0 {
		processed = 0
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}

// ClampProgress forces a raw progress value into [0,100].
func ClampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
