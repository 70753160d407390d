package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyhq/survey-api/internal/domain/campaign"
	"github.com/surveyhq/survey-api/internal/domain/model"
)

func newPublishFixture(
	t *testing.T,
	participants *memParticipantRepo,
	surveys *memSurveyRepo,
	gateway *recordingGateway,
) *PublishHandler {
	t.Helper()

	links, err := campaign.NewLinkGenerator("https://surveys.example.com", participants)
	require.NoError(t, err)

	handler, err := NewPublishHandler(PublishHandlerOptions{
		Participants: participants,
		Surveys:      surveys,
		Gateway:      gateway,
		Links:        links,
		Now:          fixedHandlerNow,
	})
	require.NoError(t, err)
	return handler
}

func TestPublishHandlerPrepare(t *testing.T) {
	participants := newMemParticipantRepo()
	surveys := newMemSurveyRepo(&model.Survey{ID: "survey-1", Name: "Onboarding"})
	handler := newPublishFixture(t, participants, surveys, newRecordingGateway())

	t.Run("resolves survey and targets", func(t *testing.T) {
		run, err := handler.Prepare(context.Background(), &model.CampaignJobPayload{
			SurveyID:       "survey-1",
			ParticipantIDs: []string{"p1", "p2"},
			ReplyTo:        "hr@example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, "Onboarding", run.Survey.Name)
		assert.Equal(t, []string{"p1", "p2"}, run.Targets)
		assert.Equal(t, "hr@example.com", run.ReplyTo)
	})

	t.Run("missing survey fails setup", func(t *testing.T) {
		_, err := handler.Prepare(context.Background(), &model.CampaignJobPayload{
			SurveyID:       "nope",
			ParticipantIDs: []string{"p1"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load survey")
	})
}

func TestPublishHandlerProcessItem(t *testing.T) {
	t.Run("activates participant and sends invitation", func(t *testing.T) {
		participants := newMemParticipantRepo(&model.Participant{
			ID:       "p1",
			SurveyID: "survey-1",
			Email:    "ada@example.com",
			Status:   model.ParticipantStatusInactive,
		})
		surveys := newMemSurveyRepo(&model.Survey{ID: "survey-1", Name: "Onboarding"})
		gateway := newRecordingGateway()
		handler := newPublishFixture(t, participants, surveys, gateway)

		run := &CampaignRun{Survey: &model.Survey{ID: "survey-1", Name: "Onboarding"}, Targets: []string{"p1"}}
		require.NoError(t, handler.ProcessItem(context.Background(), run, "p1"))

		p := participants.get("p1")
		assert.Equal(t, model.ParticipantStatusActive, p.Status)
		require.NotNil(t, p.Identifier)
		require.NotNil(t, p.AccessToken)
		require.NotNil(t, p.LastEmailedAt)
		assert.Equal(t, fixedHandlerNow().UTC(), *p.LastEmailedAt)

		require.Len(t, gateway.sent, 1)
		msg := gateway.sent[0]
		assert.Equal(t, "ada@example.com", msg.To)
		assert.Contains(t, msg.HTML, "https://surveys.example.com/survey-1?pid="+*p.Identifier)
		assert.True(t, strings.Contains(msg.HTML, *p.AccessToken))
	})

	t.Run("missing participant fails the item", func(t *testing.T) {
		participants := newMemParticipantRepo()
		handler := newPublishFixture(t, participants, newMemSurveyRepo(), newRecordingGateway())

		run := &CampaignRun{Survey: &model.Survey{ID: "survey-1"}}
		err := handler.ProcessItem(context.Background(), run, "ghost")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load participant")
	})

	t.Run("activation failure fails the item but the invitation still goes out", func(t *testing.T) {
		participants := newMemParticipantRepo(&model.Participant{ID: "p5", Email: "p5@example.com"})
		participants.updateErrFor["p5"] = errors.New("row locked")
		gateway := newRecordingGateway()
		handler := newPublishFixture(t, participants, newMemSurveyRepo(), gateway)

		run := &CampaignRun{Survey: &model.Survey{ID: "survey-1", Name: "Onboarding"}}
		err := handler.ProcessItem(context.Background(), run, "p5")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "activate participant")

		require.Len(t, gateway.sent, 1, "best-effort send is not gated on the critical step")
		assert.Equal(t, "p5@example.com", gateway.sent[0].To)
		assert.Contains(t, gateway.sent[0].HTML, "https://surveys.example.com/survey-1?pid=")
	})

	t.Run("delivery failure does not fail the item", func(t *testing.T) {
		participants := newMemParticipantRepo(&model.Participant{
			ID:     "p1",
			Email:  "bounce@example.com",
			Status: model.ParticipantStatusInactive,
		})
		gateway := newRecordingGateway()
		gateway.failFor["bounce@example.com"] = errors.New("mailbox full")
		handler := newPublishFixture(t, participants, newMemSurveyRepo(), gateway)

		run := &CampaignRun{Survey: &model.Survey{ID: "survey-1", Name: "Onboarding"}}
		require.NoError(t, handler.ProcessItem(context.Background(), run, "p1"))

		p := participants.get("p1")
		assert.Equal(t, model.ParticipantStatusActive, p.Status, "critical step outcome survives delivery failure")
		assert.Nil(t, p.LastEmailedAt, "no delivery stamp without delivery")
	})
}

func TestPublishHandlerClose(t *testing.T) {
	surveys := newMemSurveyRepo(&model.Survey{ID: "survey-1", Name: "Onboarding", Status: model.SurveyStatusDraft})
	handler := newPublishFixture(t, newMemParticipantRepo(), surveys, newRecordingGateway())

	run := &CampaignRun{Survey: &model.Survey{ID: "survey-1"}}
	require.NoError(t, handler.Close(context.Background(), run))

	fields := surveys.lastUpdate()
	require.NotNil(t, fields)
	assert.Equal(t, "published", fields["status"])
	assert.Equal(t, fixedHandlerNow().UTC(), fields["published_at"])
}

func TestNewPublishHandlerValidation(t *testing.T) {
	_, err := NewPublishHandler(PublishHandlerOptions{})
	require.Error(t, err)
}
