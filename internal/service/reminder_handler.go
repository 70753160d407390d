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

// ReminderHandlerOptions groups dependencies for ReminderHandler.
type ReminderHandlerOptions struct {
	Participants core.ParticipantRepository // Required
	Surveys      core.SurveyRepository      // Required
	Gateway      core.NotificationGateway   // Required
	Links        *campaign.LinkGenerator    // Required
	Logger       *slog.Logger               // Optional
	Metrics      statsd.Sink                // Optional
	Now          func() time.Time           // Optional: clock override for tests
}

// ReminderHandler runs reminder campaign jobs. Unlike publish, delivery IS
// the critical step here: an item only counts as succeeded when the reminder
// email was handed to the gateway without error.
type ReminderHandler struct {
	participants core.ParticipantRepository
	surveys      core.SurveyRepository
	gateway      core.NotificationGateway
	links        *campaign.LinkGenerator
	logger       *slog.Logger
	metrics      statsd.Sink
	now          func() time.Time
}

// NewReminderHandler constructs a new ReminderHandler.
func NewReminderHandler(opts ReminderHandlerOptions) (*ReminderHandler, error) {
	if opts.Participants == nil {
		return nil, errors.New("ParticipantRepository is required")
	}
	if opts.Surveys == nil {
		return nil, errors.New("SurveyRepository is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("NotificationGateway is required")
	}
	if opts.Links == nil {
		return nil, errors.New("LinkGenerator is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reminder_handler")
	}

	return &ReminderHandler{
		participants: opts.Participants,
		surveys:      opts.Surveys,
		gateway:      opts.Gateway,
		links:        opts.Links,
		logger:       logger,
		metrics:      opts.Metrics,
		now:          now,
	}, nil
}

// Type implements JobHandler.
func (h *ReminderHandler) Type() model.JobType {
	return model.JobTypeReminder
}

// Prepare implements JobHandler. A reminder payload without an explicit
// participant list targets every currently active participant of the survey;
// an empty default set fails the job before any batch runs.
func (h *ReminderHandler) Prepare(
	ctx context.Context,
	payload *model.CampaignJobPayload,
) (*CampaignRun, error) {
	survey, err := h.surveys.GetByID(ctx, payload.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey %s: %w", payload.SurveyID, err)
	}

	targets := payload.ParticipantIDs
	if len(targets) == 0 {
		active, err := h.participants.GetActiveBySurvey(ctx, payload.SurveyID)
		if err != nil {
			return nil, fmt.Errorf("load active participants for survey %s: %w", payload.SurveyID, err)
		}
		if len(active) == 0 {
			return nil, errors.New("no active participants")
		}
		targets = make([]string, 0, len(active))
		for _, p := range active {
			targets = append(targets, p.ID)
		}
	}

	return &CampaignRun{
		Survey:  survey,
		Targets: targets,
		ReplyTo: payload.ReplyTo,
	}, nil
}

// ProcessItem implements JobHandler.
func (h *ReminderHandler) ProcessItem(ctx context.Context, run *CampaignRun, participantID string) error {
	participant, err := h.participants.GetByID(ctx, participantID)
	if err != nil {
		return fmt.Errorf("load participant %s: %w", participantID, err)
	}
	if participant.Identifier == nil || participant.AccessToken == nil {
		return fmt.Errorf("participant %s has no campaign link", participantID)
	}

	url := h.links.BuildURL(run.Survey.ID, *participant.Identifier, *participant.AccessToken)
	msg := campaign.ComposeReminder(run.Survey.Name, url, participant.Email, run.ReplyTo)
	if err := h.gateway.Send(ctx, msg); err != nil {
		metrics.EmitDelivery(h.metrics, metrics.DeliveryMetric{
			JobType: string(model.JobTypeReminder),
			Result:  metrics.ResultError,
			Err:     err,
		})
		return fmt.Errorf("deliver reminder to participant %s: %w", participantID, err)
	}

	metrics.EmitDelivery(h.metrics, metrics.DeliveryMetric{
		JobType: string(model.JobTypeReminder),
		Result:  metrics.ResultSuccess,
	})

	emailedAt := h.now().UTC()
	if _, err := h.participants.Update(ctx, participantID, model.UpdateParticipantRequest{
		LastEmailedAt: &emailedAt,
	}); err != nil && h.logger != nil {
		h.logger.WarnContext(ctx, "failed to stamp last_emailed_at",
			"participant_id", participantID,
			"error", err,
		)
	}

	return nil
}

// Close implements JobHandler: a completed reminder run stamps
// last_reminded_at on the survey. The store drops the column silently when
// the deployment's schema does not have it.
func (h *ReminderHandler) Close(ctx context.Context, run *CampaignRun) error {
	remindedAt := h.now().UTC()
	err := h.surveys.Update(ctx, run.Survey.ID, map[string]any{
		"last_reminded_at": remindedAt,
	})
	if err != nil {
		return fmt.Errorf("stamp last_reminded_at on survey %s: %w", run.Survey.ID, err)
	}
	return nil
}

var _ JobHandler = (*ReminderHandler)(nil)
