package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyhq/survey-api/internal/domain/model"
)

func newCampaignFixture(t *testing.T) (*CampaignService, *memJobRepo, *fakeHandler) {
	t.Helper()

	repo := newMemJobRepo()
	jobs := MustNewJobService(JobServiceOptions{Repo: repo})
	handler := &fakeHandler{typ: model.JobTypePublish}

	runner, err := NewRunner(RunnerOptions{
		Jobs:     jobs,
		Handlers: []JobHandler{handler},
	})
	require.NoError(t, err)

	svc, err := NewCampaignService(CampaignServiceOptions{Jobs: jobs, Runner: runner})
	require.NoError(t, err)
	return svc, repo, handler
}

func TestCampaignServiceCreatePublishJob(t *testing.T) {
	t.Run("persists pending job and queues it", func(t *testing.T) {
		svc, repo, _ := newCampaignFixture(t)

		job, err := svc.CreatePublishJob(context.Background(), "survey-1", []string{"p1", "p2"}, "hr@example.com")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, job.Status)
		assert.Equal(t, 0, job.Progress)

		stored, err := repo.GetByID(context.Background(), job.ID)
		require.NoError(t, err)

		var payload model.CampaignJobPayload
		require.NoError(t, json.Unmarshal(stored.Payload, &payload))
		assert.Equal(t, "survey-1", payload.SurveyID)
		assert.Equal(t, []string{"p1", "p2"}, payload.ParticipantIDs)
		assert.Equal(t, "hr@example.com", payload.ReplyTo)
	})

	t.Run("rejects publish without participants", func(t *testing.T) {
		svc, _, _ := newCampaignFixture(t)

		_, err := svc.CreatePublishJob(context.Background(), "survey-1", nil, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "participant_ids is required")
	})

	t.Run("rejects missing survey id", func(t *testing.T) {
		svc, _, _ := newCampaignFixture(t)

		_, err := svc.CreatePublishJob(context.Background(), "", []string{"p1"}, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "survey_id is required")
	})
}

func TestCampaignServiceCreateReminderJob(t *testing.T) {
	t.Run("allows empty participant list", func(t *testing.T) {
		svc, repo, _ := newCampaignFixture(t)

		job, err := svc.CreateReminderJob(context.Background(), "survey-1", nil, "")
		require.NoError(t, err)
		assert.Equal(t, model.JobTypeReminder, job.Type)

		stored, err := repo.GetByID(context.Background(), job.ID)
		require.NoError(t, err)

		var payload model.CampaignJobPayload
		require.NoError(t, json.Unmarshal(stored.Payload, &payload))
		assert.Empty(t, payload.ParticipantIDs)
	})
}

func TestCampaignServiceGetJob(t *testing.T) {
	svc, repo, _ := newCampaignFixture(t)

	seeded := repo.seed(&model.Job{
		Type:     model.JobTypePublish,
		Status:   model.JobStatusProcessing,
		Progress: 40,
		Payload:  json.RawMessage(`{}`),
	})

	snap, err := svc.GetJob(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, snap.ID)
	assert.Equal(t, model.JobStatusProcessing, snap.Status)
	assert.Equal(t, 40, snap.Progress)

	// Polling is read-only: consecutive reads are identical.
	again, err := svc.GetJob(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, snap, again)
}

func TestCampaignServiceCancelJob(t *testing.T) {
	svc, repo, _ := newCampaignFixture(t)

	seeded := repo.seed(&model.Job{
		Type:    model.JobTypePublish,
		Payload: json.RawMessage(`{}`),
	})

	cancelled, err := svc.CancelJob(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	stored, err := repo.GetByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, stored.Status)
}

func TestCampaignServiceQueueFull(t *testing.T) {
	repo := newMemJobRepo()
	jobs := MustNewJobService(JobServiceOptions{Repo: repo})
	handler := &fakeHandler{typ: model.JobTypePublish}

	runner, err := NewRunner(RunnerOptions{
		Jobs:      jobs,
		Handlers:  []JobHandler{handler},
		QueueSize: 1,
	})
	require.NoError(t, err)

	svc, err := NewCampaignService(CampaignServiceOptions{Jobs: jobs, Runner: runner})
	require.NoError(t, err)

	// Runner not started; the first job fills the queue.
	_, err = svc.CreatePublishJob(context.Background(), "survey-1", []string{"p1"}, "")
	require.NoError(t, err)

	job, err := svc.CreatePublishJob(context.Background(), "survey-1", []string{"p2"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)
	require.NotNil(t, job, "the job row exists even when queueing failed")
	assert.Equal(t, model.JobStatusPending, job.Status)
}
