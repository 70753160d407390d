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
	"github.com/surveyhq/survey-api/internal/notify/smtp"
	"github.com/surveyhq/survey-api/internal/observability/metrics"
	"github.com/surveyhq/survey-api/internal/observability/statsd"
)

// PublishHandlerOptions groups dependencies for PublishHandler.
type PublishHandlerOptions struct {
	Participants core.ParticipantRepository // Required
	Surveys      core.SurveyRepository      // Required
	Gateway      core.NotificationGateway   // Required
	Links        *campaign.LinkGenerator    // Required
	Logger       *slog.Logger               // Optional
	Metrics      statsd.Sink                // Optional
	Now          func() time.Time           // Optional: clock override for tests
}

// PublishHandler runs publish campaign jobs. The critical step per
// participant generates a collision-checked identifier, an access token and a
// campaign URL and activates the participant; the invitation email is
// best-effort, attempted after the critical step regardless of its outcome,
// and never affects the item's counters.
type PublishHandler struct {
	participants core.ParticipantRepository
	surveys      core.SurveyRepository
	gateway      core.NotificationGateway
	links        *campaign.LinkGenerator
	logger       *slog.Logger
	metrics      statsd.Sink
	now          func() time.Time
}

// NewPublishHandler constructs a new PublishHandler.
func NewPublishHandler(opts PublishHandlerOptions) (*PublishHandler, error) {
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
		logger = opts.Logger.With("component", "publish_handler")
	}

	return &PublishHandler{
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
func (h *PublishHandler) Type() model.JobType {
	return model.JobTypePublish
}

// Prepare implements JobHandler. Publish payloads always carry an explicit
// participant list, so target resolution is a survey load.
func (h *PublishHandler) Prepare(
	ctx context.Context,
	payload *model.CampaignJobPayload,
) (*CampaignRun, error) {
	survey, err := h.surveys.GetByID(ctx, payload.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey %s: %w", payload.SurveyID, err)
	}

	return &CampaignRun{
		Survey:  survey,
		Targets: payload.ParticipantIDs,
		ReplyTo: payload.ReplyTo,
	}, nil
}

// ProcessItem implements JobHandler. Once a recipient and a campaign URL
// exist, the invitation send is attempted whether or not activation
// succeeded; a failed activation still gets its email and the item still
// counts as failed.
func (h *PublishHandler) ProcessItem(ctx context.Context, run *CampaignRun, participantID string) error {
	participant, err := h.participants.GetByID(ctx, participantID)
	if err != nil {
		return fmt.Errorf("load participant %s: %w", participantID, err)
	}

	identifier, err := h.links.Identifier(ctx)
	if err != nil {
		return fmt.Errorf("generate identifier for %s: %w", participantID, err)
	}
	token, err := h.links.Token()
	if err != nil {
		return fmt.Errorf("generate token for %s: %w", participantID, err)
	}

	status := model.ParticipantStatusActive
	updated, updateErr := h.participants.Update(ctx, participantID, model.UpdateParticipantRequest{
		Status:      &status,
		Identifier:  &identifier,
		AccessToken: &token,
	})
	if updateErr == nil {
		participant = updated
	}

	url := h.links.BuildURL(run.Survey.ID, identifier, token)
	h.sendInvitation(ctx, run, participant, url)

	if updateErr != nil {
		return fmt.Errorf("activate participant %s: %w", participantID, updateErr)
	}
	return nil
}

func (h *PublishHandler) sendInvitation(
	ctx context.Context,
	run *CampaignRun,
	participant *model.Participant,
	url string,
) {
	msg := campaign.ComposeInvitation(run.Survey.Name, url, participant.Email, run.ReplyTo)
	if err := h.gateway.Send(ctx, msg); err != nil {
		if h.logger != nil && !errors.Is(err, smtp.ErrGatewayNotConfigured) {
			h.logger.WarnContext(ctx, "invitation delivery failed",
				"participant_id", participant.ID,
				"survey_id", run.Survey.ID,
				"error", err,
			)
		}
		metrics.EmitDelivery(h.metrics, metrics.DeliveryMetric{
			JobType: string(model.JobTypePublish),
			Result:  metrics.ResultError,
			Err:     err,
		})
		return
	}

	metrics.EmitDelivery(h.metrics, metrics.DeliveryMetric{
		JobType: string(model.JobTypePublish),
		Result:  metrics.ResultSuccess,
	})

	emailedAt := h.now().UTC()
	if _, err := h.participants.Update(ctx, participant.ID, model.UpdateParticipantRequest{
		LastEmailedAt: &emailedAt,
	}); err != nil && h.logger != nil {
		h.logger.WarnContext(ctx, "failed to stamp last_emailed_at",
			"participant_id", participant.ID,
			"error", err,
		)
	}
}

// Close implements JobHandler: a completed publish run marks the survey
// published and stamps published_at.
func (h *PublishHandler) Close(ctx context.Context, run *CampaignRun) error {
	publishedAt := h.now().UTC()
	err := h.surveys.Update(ctx, run.Survey.ID, map[string]any{
		"status":       string(model.SurveyStatusPublished),
		"published_at": publishedAt,
	})
	if err != nil {
		return fmt.Errorf("mark survey %s published: %w", run.Survey.ID, err)
	}
	return nil
}

var _ JobHandler = (*PublishHandler)(nil)
