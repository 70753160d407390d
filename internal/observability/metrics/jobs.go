// Package metrics standardises metric emission for the campaign engine.
package metrics

import (
	"time"

	obserrors "github.com/surveyhq/survey-api/internal/observability/errors"
	"github.com/surveyhq/survey-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type":   in.JobType,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, cloneTags(tags))
	}
}

// DeliveryMetric captures details about a notification send attempt.
type DeliveryMetric struct {
	JobType string
	Result  string
	Err     error
}

// EmitDelivery emits a counter for a best-effort notification attempt.
func EmitDelivery(sink statsd.Sink, in DeliveryMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type": in.JobType,
		"result":   in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("notification.send", 1, tags)
}

// BatchMetric captures details about one executed batch.
type BatchMetric struct {
	JobType   string
	BatchSize int
	Duration  time.Duration
}

// EmitBatch emits timing and size metrics for an executed batch.
func EmitBatch(sink statsd.Sink, in BatchMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"job_type": in.JobType}
	sink.Count("batch.items", int64(in.BatchSize), tags)
	if in.Duration > 0 {
		sink.Timing("batch.duration", in.Duration, cloneTags(tags))
	}
}

func cloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
