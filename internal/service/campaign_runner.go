package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/surveyhq/survey-api/internal/domain/campaign"
	"github.com/surveyhq/survey-api/internal/domain/model"
	"github.com/surveyhq/survey-api/internal/observability/metrics"
	"github.com/surveyhq/survey-api/internal/observability/statsd"
)

const (
	defaultRunnerWorkers = 2
	defaultRunnerQueue   = 64
)

// ErrQueueFull is returned by Submit when the runner's job queue is at
// capacity. The job stays pending and can be resubmitted.
var ErrQueueFull = errors.New("job queue is full")

// RunnerOptions groups dependencies for Runner.
type RunnerOptions struct {
	Jobs      *JobService           // Required: job lifecycle service
	Handlers  []JobHandler          // Required: one handler per executable job type
	Batch     *campaign.BatchPolicy // Optional: defaults to size 20 / 500ms delay
	Workers   int                   // Optional: worker pool size, default 2
	QueueSize int                   // Optional: submit queue capacity, default 64
	Logger    *slog.Logger          // Optional
	Metrics   statsd.Sink           // Optional
	Sleep     func(ctx context.Context, d time.Duration) // Optional: delay override for tests
}

// Runner executes campaign jobs in the background. Submit hands a job id to a
// fixed worker pool through a buffered channel, detaching execution from the
// caller; callers observe outcomes by polling the job row.
//
// Batches are strictly sequential within a run. Items within a batch run
// concurrently, bounded by the batch size. An item failure is isolated to its
// counter; only a store failure aborts the run.
type Runner struct {
	jobs     *JobService
	handlers map[model.JobType]JobHandler
	batch    *campaign.BatchPolicy
	workers  int
	logger   *slog.Logger
	metrics  statsd.Sink
	sleep    func(ctx context.Context, d time.Duration)

	queue chan string
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewRunner constructs a new Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if len(opts.Handlers) == 0 {
		return nil, errors.New("at least one JobHandler is required")
	}

	handlers := make(map[model.JobType]JobHandler, len(opts.Handlers))
	for _, h := range opts.Handlers {
		if _, dup := handlers[h.Type()]; dup {
			return nil, fmt.Errorf("duplicate handler for job type %q", h.Type())
		}
		handlers[h.Type()] = h
	}

	batch := opts.Batch
	if batch == nil {
		var err error
		batch, err = campaign.NewBatchPolicy(campaign.DefaultBatchSize, campaign.DefaultBatchDelay)
		if err != nil {
			return nil, fmt.Errorf("create batch policy: %w", err)
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultRunnerWorkers
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultRunnerQueue
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "campaign_runner")
	}

	return &Runner{
		jobs:     opts.Jobs,
		handlers: handlers,
		batch:    batch,
		workers:  workers,
		logger:   logger,
		metrics:  opts.Metrics,
		sleep:    sleep,
		queue:    make(chan string, queueSize),
	}, nil
}

// Start launches the worker pool. Workers drain the queue until Stop is
// called or the context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, "campaign runner started",
			"workers", r.workers,
			"batch_size", r.batch.Size(),
		)
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

// Submit enqueues a job for background execution without blocking the caller.
// A submission racing Stop is rejected rather than sent on the closed queue.
func (r *Runner) Submit(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrQueueFull
	}
	select {
	case r.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID, ok := <-r.queue:
			if !ok {
				return
			}
			if err := r.Execute(ctx, jobID); err != nil && r.logger != nil {
				r.logger.ErrorContext(ctx, "job execution aborted",
					"job_id", jobID,
					"error", err,
				)
			}
		}
	}
}

// Execute runs one campaign job to its terminal status. A returned error
// means the job store became unreachable mid-run and the job row may be left
// in processing; everything else ends in completed or failed on the row.
func (r *Runner) Execute(ctx context.Context, jobID string) error {
	started := time.Now()

	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job not found: %w", err)
	}

	claimed, err := r.jobs.MarkProcessing(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		if r.logger != nil {
			r.logger.InfoContext(ctx, "skipping job no longer pending",
				"job_id", jobID,
				"status", job.Status,
			)
		}
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobType:    string(job.Type),
			Transition: "skipped",
			Result:     metrics.ResultSkipped,
		})
		return nil
	}

	handler, ok := r.handlers[job.Type]
	if !ok {
		return r.failJob(ctx, job, fmt.Sprintf("no handler registered for job type %q", job.Type))
	}

	var payload model.CampaignJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return r.failJob(ctx, job, fmt.Sprintf("invalid payload: %v", err))
	}
	if err := payload.Validate(job.Type); err != nil {
		return r.failJob(ctx, job, fmt.Sprintf("invalid payload: %v", err))
	}

	run, err := handler.Prepare(ctx, &payload)
	if err != nil {
		return r.failJob(ctx, job, err.Error())
	}
	if len(run.Targets) == 0 {
		return r.failJob(ctx, job, "no target participants")
	}

	successCount, failureCount, err := r.runBatches(ctx, jobID, job.Type, handler, run)
	if err != nil {
		return err
	}

	total := len(run.Targets)
	finalStatus := model.JobStatusCompleted
	if successCount == 0 {
		finalStatus = model.JobStatusFailed
	}
	update := ProgressUpdate{Status: &finalStatus}
	if failureCount > 0 {
		warning := fmt.Sprintf("%d of %d items failed", failureCount, total)
		update.LastError = &warning
	}
	if _, err := r.jobs.UpdateProgress(ctx, jobID, 100, update); err != nil {
		return err
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, "job finished",
			"job_id", jobID,
			"type", job.Type,
			"status", finalStatus,
			"succeeded", successCount,
			"failed", failureCount,
			"duration", time.Since(started),
		)
	}
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		JobType:    string(job.Type),
		Transition: string(finalStatus),
		Result:     lifecycleResult(finalStatus),
		Duration:   time.Since(started),
	})

	if finalStatus == model.JobStatusCompleted {
		if err := handler.Close(ctx, run); err != nil && r.logger != nil {
			r.logger.ErrorContext(ctx, "closing side effect failed",
				"job_id", jobID,
				"type", job.Type,
				"error", err,
			)
		}
	}

	return nil
}

// runBatches processes the targets in strictly sequential batches, updating
// progress at each batch boundary. Only store failures return an error.
func (r *Runner) runBatches(
	ctx context.Context,
	jobID string,
	jobType model.JobType,
	handler JobHandler,
	run *CampaignRun,
) (successCount, failureCount int, err error) {
	var succeeded, failed atomic.Int64

	total := len(run.Targets)
	batches := r.batch.Partition(run.Targets)
	processed := 0

	for i, ids := range batches {
		batchStarted := time.Now()

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.batch.Size())
		for _, id := range ids {
			id := id
			g.Go(func() error {
				if itemErr := handler.ProcessItem(gctx, run, id); itemErr != nil {
					failed.Add(1)
					if r.logger != nil {
						r.logger.WarnContext(gctx, "campaign item failed",
							"job_id", jobID,
							"participant_id", id,
							"error", itemErr,
						)
					}
					return nil
				}
				succeeded.Add(1)
				return nil
			})
		}
		// Item goroutines never return errors; Wait is a join point.
		_ = g.Wait()

		processed += len(ids)
		progress := campaign.Progress(processed, total)
		if _, err := r.jobs.UpdateProgress(ctx, jobID, progress, ProgressUpdate{}); err != nil {
			return int(succeeded.Load()), int(failed.Load()), err
		}

		metrics.EmitBatch(r.metrics, metrics.BatchMetric{
			JobType:   string(jobType),
			BatchSize: len(ids),
			Duration:  time.Since(batchStarted),
		})

		if i < len(batches)-1 {
			r.sleep(ctx, r.batch.Delay())
			if ctx.Err() != nil {
				return int(succeeded.Load()), int(failed.Load()), ctx.Err()
			}
		}
	}

	return int(succeeded.Load()), int(failed.Load()), nil
}

// failJob moves the job to failed with the given message before any batch
// ran, leaving progress at zero. A store failure here is propagated.
func (r *Runner) failJob(ctx context.Context, job *model.Job, message string) error {
	status := model.JobStatusFailed
	if _, err := r.jobs.UpdateProgress(ctx, job.ID, 0, ProgressUpdate{
		Status:    &status,
		LastError: &message,
	}); err != nil {
		return err
	}

	if r.logger != nil {
		r.logger.WarnContext(ctx, "job failed before batching",
			"job_id", job.ID,
			"type", job.Type,
			"error", message,
		)
	}
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		JobType:    string(job.Type),
		Transition: string(model.JobStatusFailed),
		Result:     metrics.ResultError,
		Err:        errors.New(message),
	})
	return nil
}

func lifecycleResult(status model.JobStatus) string {
	if status == model.JobStatusCompleted {
		return metrics.ResultSuccess
	}
	return metrics.ResultError
}
