package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/surveyhq/survey-api/internal/domain/model"
	"github.com/surveyhq/survey-api/internal/mocks"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.sets++
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.entries[key], nil
}

func (c *memCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok, nil
}

func TestAnalyticsServiceSurveySnapshot(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }

	t.Run("builds snapshot from the store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		participants := newMemParticipantRepo(
			&model.Participant{ID: "p1", SurveyID: "survey-1", Status: model.ParticipantStatusActive},
			&model.Participant{ID: "p2", SurveyID: "survey-1", Status: model.ParticipantStatusActive},
			&model.Participant{ID: "p3", SurveyID: "survey-1", Status: model.ParticipantStatusCompleted},
		)
		jobs := mocks.NewMockJobRepository(ctrl)
		jobs.EXPECT().Stats(gomock.Any(), model.JobTypePublish).Return(&model.JobStats{Completed: 2}, nil)
		jobs.EXPECT().Stats(gomock.Any(), model.JobTypeReminder).Return(&model.JobStats{Pending: 1}, nil)

		svc, err := NewAnalyticsService(AnalyticsServiceOptions{
			Participants: participants,
			Jobs:         jobs,
			Now:          now,
		})
		require.NoError(t, err)

		snap, err := svc.SurveySnapshot(context.Background(), "survey-1")
		require.NoError(t, err)
		assert.Equal(t, 2, snap.ParticipantCounts[model.ParticipantStatusActive])
		assert.Equal(t, 1, snap.ParticipantCounts[model.ParticipantStatusCompleted])
		assert.Equal(t, 2, snap.PublishJobs.Completed)
		assert.Equal(t, 1, snap.ReminderJobs.Pending)
		assert.Equal(t, now().UTC(), snap.GeneratedAt)
	})

	t.Run("serves cached snapshot without hitting the store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		participants := newMemParticipantRepo(
			&model.Participant{ID: "p1", SurveyID: "survey-1", Status: model.ParticipantStatusActive},
		)
		jobs := mocks.NewMockJobRepository(ctrl)
		// Stats expected exactly once per type; the second read is cached.
		jobs.EXPECT().Stats(gomock.Any(), model.JobTypePublish).Return(&model.JobStats{}, nil).Times(1)
		jobs.EXPECT().Stats(gomock.Any(), model.JobTypeReminder).Return(&model.JobStats{}, nil).Times(1)

		cache := newMemCache()
		svc, err := NewAnalyticsService(AnalyticsServiceOptions{
			Participants: participants,
			Jobs:         jobs,
			Cache:        cache,
			Now:          now,
		})
		require.NoError(t, err)

		first, err := svc.SurveySnapshot(context.Background(), "survey-1")
		require.NoError(t, err)
		second, err := svc.SurveySnapshot(context.Background(), "survey-1")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, cache.sets)
	})

	t.Run("cache read failure degrades to a store read", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		participants := newMemParticipantRepo()
		jobs := mocks.NewMockJobRepository(ctrl)
		jobs.EXPECT().Stats(gomock.Any(), gomock.Any()).Return(&model.JobStats{}, nil).Times(2)

		cache := newMemCache()
		cache.getErr = errors.New("redis down")
		svc, err := NewAnalyticsService(AnalyticsServiceOptions{
			Participants: participants,
			Jobs:         jobs,
			Cache:        cache,
			Now:          now,
		})
		require.NoError(t, err)

		snap, err := svc.SurveySnapshot(context.Background(), "survey-1")
		require.NoError(t, err)
		assert.NotNil(t, snap)
	})
}

func TestAnalyticsServiceInvalidate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache := newMemCache()
	cache.entries["analytics:survey:survey-1"] = []byte(`{}`)

	svc, err := NewAnalyticsService(AnalyticsServiceOptions{
		Participants: newMemParticipantRepo(),
		Jobs:         mocks.NewMockJobRepository(ctrl),
		Cache:        cache,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(context.Background(), "survey-1"))
	assert.Empty(t, cache.entries)
}
