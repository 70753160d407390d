// Package core defines the ports of the survey campaign system.
package core

import (
	"context"
	"time"

	"github.com/surveyhq/survey-api/internal/domain/campaign"
	"github.com/surveyhq/survey-api/internal/domain/model"
)

// This file contains repository and gateway interface definitions (ports in
// hexagonal architecture). Service implementations depend on these, not on
// the concrete data layer.

// UpdateJobParams groups the mutable job fields for JobRepository.Update.
// Nil fields are left untouched. Progress writes are monotone: the store
// keeps the maximum of the stored and the supplied value.
type UpdateJobParams struct {
	Progress    *int
	Status      *model.JobStatus
	LastError   *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	Insert(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, id string, params UpdateJobParams) (*model.Job, error)
	// MarkProcessing atomically moves a pending job to processing and stamps
	// started_at. Returns false when the job is no longer pending.
	MarkProcessing(ctx context.Context, id string) (bool, error)
	// Cancel atomically moves a pending job to cancelled. Returns false when
	// the job already left the pending state.
	Cancel(ctx context.Context, id string) (bool, error)
	ListRecentByType(ctx context.Context, jobType model.JobType, limit int) ([]*model.Job, error)
	Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error)
}

// ParticipantRepository defines the interface for participant data operations.
type ParticipantRepository interface {
	GetByID(ctx context.Context, id string) (*model.Participant, error)
	GetActiveBySurvey(ctx context.Context, surveyID string) ([]*model.Participant, error)
	Update(ctx context.Context, id string, req model.UpdateParticipantRequest) (*model.Participant, error)
	IdentifierExists(ctx context.Context, identifier string) (bool, error)
	CountBySurvey(ctx context.Context, surveyID string) (map[model.ParticipantStatus]int, error)
}

// SurveyRepository defines the interface for survey data operations.
// Update tolerates unknown column names in fields: they are dropped rather
// than surfaced as errors, so optional schema columns can be stamped blindly.
type SurveyRepository interface {
	GetByID(ctx context.Context, id string) (*model.Survey, error)
	Update(ctx context.Context, id string, fields map[string]any) error
}

// NotificationGateway delivers an email-shaped message best-effort. An
// unconfigured gateway returns ErrGatewayNotConfigured for recipients that
// are not on its delivery allowlist.
type NotificationGateway interface {
	Send(ctx context.Context, msg campaign.Message) error
}

// CacheRepository defines the interface for TTL caching operations.
type CacheRepository interface {
	// Set stores a value with the given key and TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get retrieves a value by key; returns nil when absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes a key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
}

// RateLimiter bounds how many deliveries happen per fixed window.
type RateLimiter interface {
	// Allow reports whether one more event fits into the current window for
	// the given key.
	Allow(ctx context.Context, key string) (bool, error)
}
