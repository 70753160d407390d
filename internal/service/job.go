// Package service contains the business logic of the survey campaign engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/surveyhq/survey-api/internal/core"
	"github.com/surveyhq/survey-api/internal/domain/campaign"
	"github.com/surveyhq/survey-api/internal/domain/model"
	"github.com/surveyhq/survey-api/internal/observability/metrics"
	"github.com/surveyhq/survey-api/internal/observability/statsd"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo    core.JobRepository // Required: job repository
	Logger  *slog.Logger       // Optional: structured logger
	Metrics statsd.Sink        // Optional: lifecycle metric sink
	Now     func() time.Time   // Optional: clock override for tests
}

// JobService provides business logic for campaign job lifecycle operations.
//
// It owns:
// - creation of pending jobs (never blocks on execution)
// - progress and status writes, with clamping and terminal stamping
// - the polling surface (snapshots, listings, stats)
// - cancellation of jobs that have not started yet.
type JobService struct {
	repo    core.JobRepository
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	return &JobService{
		repo:    opts.Repo,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create persists a new pending job at progress zero. Execution is not part
// of creation; callers hand the returned id to the runner separately.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate job request: %w", err)
	}

	job, err := s.repo.Insert(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job created",
			"id", job.ID,
			"type", job.Type,
			"status", job.Status,
		)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    string(job.Type),
		Transition: "created",
		Result:     metrics.ResultSuccess,
	})

	return job, nil
}

// ProgressUpdate carries an optional status change and error message
// alongside a progress write.
type ProgressUpdate struct {
	Status    *model.JobStatus
	LastError *string
}

// UpdateProgress writes job progress, clamped into [0,100]. When the update
// carries a terminal status it also stamps completed_at. A store failure here
// is fatal for the run and propagated to the caller.
func (s *JobService) UpdateProgress(
	ctx context.Context,
	id string,
	progress int,
	update ProgressUpdate,
) (*model.Job, error) {
	clamped := campaign.ClampProgress(progress)
	params := core.UpdateJobParams{
		Progress:  &clamped,
		Status:    update.Status,
		LastError: update.LastError,
	}
	if update.Status != nil {
		if !update.Status.Valid() {
			return nil, fmt.Errorf("invalid job status %q", *update.Status)
		}
		if update.Status.Terminal() {
			completedAt := s.now().UTC()
			params.CompletedAt = &completedAt
		}
	}

	job, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job progress updated",
			"id", id,
			"progress", job.Progress,
			"status", job.Status,
		)
	}

	return job, nil
}

// MarkProcessing moves a pending job to processing and stamps started_at.
// Returns false when the job already left the pending state, in which case
// the runner must not execute it.
func (s *JobService) MarkProcessing(ctx context.Context, id string) (bool, error) {
	claimed, err := s.repo.MarkProcessing(ctx, id)
	if err != nil {
		return false, fmt.Errorf("mark job %s processing: %w", id, err)
	}

	if s.logger != nil && claimed {
		s.logger.DebugContext(ctx, "job claimed for processing", "id", id)
	}

	return claimed, nil
}

// GetByID retrieves the full job row.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// GetStatus retrieves the polling view of a job.
func (s *JobService) GetStatus(ctx context.Context, id string) (*model.JobSnapshot, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job status %s: %w", id, err)
	}
	snapshot := job.Snapshot()
	return &snapshot, nil
}

// ListRecentByType lists the most recently created jobs of the given type.
func (s *JobService) ListRecentByType(
	ctx context.Context,
	jobType model.JobType,
	limit int,
) ([]*model.Job, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("invalid job type %q", jobType)
	}
	jobs, err := s.repo.ListRecentByType(ctx, jobType, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", jobType, err)
	}
	return jobs, nil
}

// Stats returns per-status job counts for the given type.
func (s *JobService) Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("invalid job type %q", jobType)
	}
	stats, err := s.repo.Stats(ctx, jobType)
	if err != nil {
		return nil, fmt.Errorf("job stats for %s: %w", jobType, err)
	}
	return stats, nil
}

// Cancel moves a pending job to cancelled. Jobs that already started keep
// running; returns false without error when the job was not pending.
func (s *JobService) Cancel(ctx context.Context, id string) (bool, error) {
	cancelled, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return false, fmt.Errorf("cancel job %s: %w", id, err)
	}

	if cancelled {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "job cancelled", "id", id)
		}
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: "cancelled",
			Result:     metrics.ResultSuccess,
		})
	}

	return cancelled, nil
}
