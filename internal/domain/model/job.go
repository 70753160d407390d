// Package model defines the core data types and structures used throughout the survey campaign system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType represents the type of campaign job to be executed.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypePublish represents a survey publish campaign job.
	JobTypePublish JobType = "publish"
	// JobTypeReminder represents a reminder campaign job.
	JobTypeReminder JobType = "reminder"
	// JobTypeExport represents a survey data export job.
	JobTypeExport JobType = "export"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a job is currently being processed.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed to complete.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates a job was cancelled before it started.
	JobStatusCancelled JobStatus = "cancelled"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypePublish || t == JobTypeReminder || t == JobTypeExport
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed || s == JobStatusCancelled
}

// Terminal returns true if the status is a terminal state. A terminal job is
// never mutated again and keeps its completed_at stamp.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job represents a campaign job with all its metadata and status information.
type Job struct {
	ID          string          `json:"id"                     db:"id"`
	Type        JobType         `json:"type"                   db:"type"`
	Status      JobStatus       `json:"status"                 db:"status"`
	Payload     json.RawMessage `json:"payload"                db:"payload"`
	Progress    int             `json:"progress"               db:"progress"`
	LastError   *string         `json:"last_error,omitempty"   db:"last_error"`
	StartedAt   *time.Time      `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time       `json:"created_at"             db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"             db:"updated_at"`
}

// CampaignJobPayload is the payload shape shared by publish and reminder jobs.
// ParticipantIDs may be empty for reminder jobs, in which case the runner
// targets all currently active participants of the survey.
type CampaignJobPayload struct {
	SurveyID       string   `json:"survey_id"`
	ParticipantIDs []string `json:"participant_ids,omitempty"`
	ReplyTo        string   `json:"reply_to,omitempty"`
}

// Validate checks the payload shape before any batch runs.
func (p *CampaignJobPayload) Validate(jobType JobType) error {
	if strings.TrimSpace(p.SurveyID) == "" {
		return errors.New("survey_id is required")
	}
	for i, id := range p.ParticipantIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("participant_ids[%d] is empty", i)
		}
	}
	// Publish always needs an explicit target list; reminders may default to
	// the survey's active participants.
	if jobType == JobTypePublish && len(p.ParticipantIDs) == 0 {
		return errors.New("participant_ids is required for publish jobs")
	}
	return nil
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	Type    JobType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

// JobStats represents statistics about jobs in different states.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// JobSnapshot is the polling view of a job returned to API callers.
// Two consecutive reads with no intervening runner mutation are identical.
type JobSnapshot struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	LastError   *string    `json:"last_error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Snapshot projects the job into its polling view.
func (j *Job) Snapshot() JobSnapshot {
	return JobSnapshot{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Progress:    j.Progress,
		LastError:   j.LastError,
		CompletedAt: j.CompletedAt,
	}
}
