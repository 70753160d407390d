package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/surveyhq/survey-api/internal/domain/model"
)

// CampaignServiceOptions groups dependencies for CampaignService.
type CampaignServiceOptions struct {
	Jobs   *JobService  // Required
	Runner *Runner      // Required
	Logger *slog.Logger // Optional
}

// CampaignService is the entry point for launching campaigns. Creation
// persists a pending job and hands it to the runner; the caller gets the job
// id back immediately and polls GetJob for progress.
type CampaignService struct {
	jobs   *JobService
	runner *Runner
	logger *slog.Logger
}

// NewCampaignService constructs a new CampaignService.
func NewCampaignService(opts CampaignServiceOptions) (*CampaignService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("Runner is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "campaign_service")
	}

	return &CampaignService{
		jobs:   opts.Jobs,
		runner: opts.Runner,
		logger: logger,
	}, nil
}

// CreatePublishJob launches a publish campaign for the given participants.
func (s *CampaignService) CreatePublishJob(
	ctx context.Context,
	surveyID string,
	participantIDs []string,
	replyTo string,
) (*model.Job, error) {
	return s.createCampaignJob(ctx, model.JobTypePublish, model.CampaignJobPayload{
		SurveyID:       surveyID,
		ParticipantIDs: participantIDs,
		ReplyTo:        replyTo,
	})
}

// CreateReminderJob launches a reminder campaign. An empty participant list
// targets every active participant of the survey at execution time.
func (s *CampaignService) CreateReminderJob(
	ctx context.Context,
	surveyID string,
	participantIDs []string,
	replyTo string,
) (*model.Job, error) {
	return s.createCampaignJob(ctx, model.JobTypeReminder, model.CampaignJobPayload{
		SurveyID:       surveyID,
		ParticipantIDs: participantIDs,
		ReplyTo:        replyTo,
	})
}

func (s *CampaignService) createCampaignJob(
	ctx context.Context,
	jobType model.JobType,
	payload model.CampaignJobPayload,
) (*model.Job, error) {
	// Reject malformed payloads at the door rather than letting the runner
	// fail the job a moment later.
	if err := payload.Validate(jobType); err != nil {
		return nil, fmt.Errorf("validate %s payload: %w", jobType, err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", jobType, err)
	}

	job, err := s.jobs.Create(ctx, &model.CreateJobRequest{Type: jobType, Payload: raw})
	if err != nil {
		return nil, err
	}

	if err := s.runner.Submit(job.ID); err != nil {
		// The job row stays pending; an operator can resubmit or cancel it.
		if s.logger != nil {
			s.logger.WarnContext(ctx, "job created but not queued",
				"job_id", job.ID,
				"type", jobType,
				"error", err,
			)
		}
		return job, fmt.Errorf("queue job %s: %w", job.ID, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "campaign job queued",
			"job_id", job.ID,
			"type", jobType,
			"survey_id", payload.SurveyID,
			"targets", len(payload.ParticipantIDs),
		)
	}

	return job, nil
}

// GetJob returns the polling view of a campaign job.
func (s *CampaignService) GetJob(ctx context.Context, id string) (*model.JobSnapshot, error) {
	return s.jobs.GetStatus(ctx, id)
}

// CancelJob cancels a campaign job that has not started executing.
func (s *CampaignService) CancelJob(ctx context.Context, id string) (bool, error) {
	return s.jobs.Cancel(ctx, id)
}
