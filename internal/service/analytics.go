package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/surveyhq/survey-api/internal/core"
	"github.com/surveyhq/survey-api/internal/domain/model"
)

const defaultAnalyticsTTL = 30 * time.Second

// SurveyAnalytics is a point-in-time view of a survey's campaign state.
type SurveyAnalytics struct {
	SurveyID          string                          `json:"survey_id"`
	ParticipantCounts map[model.ParticipantStatus]int `json:"participant_counts"`
	PublishJobs       model.JobStats                  `json:"publish_jobs"`
	ReminderJobs      model.JobStats                  `json:"reminder_jobs"`
	GeneratedAt       time.Time                       `json:"generated_at"`
}

// AnalyticsServiceOptions groups dependencies for AnalyticsService.
type AnalyticsServiceOptions struct {
	Participants core.ParticipantRepository // Required
	Jobs         core.JobRepository         // Required
	Cache        core.CacheRepository       // Optional: nil disables caching
	TTL          time.Duration              // Optional: cache TTL, default 30s
	Logger       *slog.Logger               // Optional
	Now          func() time.Time           // Optional: clock override for tests
}

// AnalyticsService aggregates participant and job counts per survey. Results
// are served from a short-lived cache so polling dashboards do not hammer the
// store while campaigns run.
type AnalyticsService struct {
	participants core.ParticipantRepository
	jobs         core.JobRepository
	cache        core.CacheRepository
	ttl          time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewAnalyticsService constructs a new AnalyticsService.
func NewAnalyticsService(opts AnalyticsServiceOptions) (*AnalyticsService, error) {
	if opts.Participants == nil {
		return nil, errors.New("ParticipantRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultAnalyticsTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "analytics_service")
	}

	return &AnalyticsService{
		participants: opts.Participants,
		jobs:         opts.Jobs,
		cache:        opts.Cache,
		ttl:          ttl,
		logger:       logger,
		now:          now,
	}, nil
}

// SurveySnapshot returns the analytics view for a survey, served from cache
// when a fresh entry exists. Cache failures degrade to a direct store read.
func (s *AnalyticsService) SurveySnapshot(ctx context.Context, surveyID string) (*SurveyAnalytics, error) {
	key := analyticsCacheKey(surveyID)

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "analytics cache read failed", "survey_id", surveyID, "error", err)
			}
		} else if raw != nil {
			var cached SurveyAnalytics
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	snapshot, err := s.build(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(snapshot); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "analytics cache write failed", "survey_id", surveyID, "error", err)
			}
		}
	}

	return snapshot, nil
}

// Invalidate drops the cached snapshot for a survey, forcing the next read
// to hit the store.
func (s *AnalyticsService) Invalidate(ctx context.Context, surveyID string) error {
	if s.cache == nil {
		return nil
	}
	if _, err := s.cache.Delete(ctx, analyticsCacheKey(surveyID)); err != nil {
		return fmt.Errorf("invalidate analytics for survey %s: %w", surveyID, err)
	}
	return nil
}

func (s *AnalyticsService) build(ctx context.Context, surveyID string) (*SurveyAnalytics, error) {
	counts, err := s.participants.CountBySurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("count participants for survey %s: %w", surveyID, err)
	}

	publishStats, err := s.jobs.Stats(ctx, model.JobTypePublish)
	if err != nil {
		return nil, fmt.Errorf("publish job stats: %w", err)
	}
	reminderStats, err := s.jobs.Stats(ctx, model.JobTypeReminder)
	if err != nil {
		return nil, fmt.Errorf("reminder job stats: %w", err)
	}

	return &SurveyAnalytics{
		SurveyID:          surveyID,
		ParticipantCounts: counts,
		PublishJobs:       *publishStats,
		ReminderJobs:      *reminderStats,
		GeneratedAt:       s.now().UTC(),
	}, nil
}

func analyticsCacheKey(surveyID string) string {
	return "analytics:survey:" + surveyID
}
