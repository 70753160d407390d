package model

import (
	"errors"
	"strings"
	"time"
)

// ParticipantStatus represents the access state of a survey participant.
type ParticipantStatus string

const (
	// ParticipantStatusInactive indicates the participant has not been invited yet.
	ParticipantStatusInactive ParticipantStatus = "inactive"
	// ParticipantStatusActive indicates the participant can access the survey.
	ParticipantStatusActive ParticipantStatus = "active"
	// ParticipantStatusCompleted indicates the participant submitted a response.
	ParticipantStatusCompleted ParticipantStatus = "completed"
	// ParticipantStatusExpired indicates the participant's access window closed.
	ParticipantStatusExpired ParticipantStatus = "expired"
)

// Valid returns true if the ParticipantStatus is valid.
func (s ParticipantStatus) Valid() bool {
	return s == ParticipantStatusInactive || s == ParticipantStatusActive ||
		s == ParticipantStatusCompleted || s == ParticipantStatusExpired
}

// Participant represents a survey participant row. The campaign engine
// mutates status, identifier, token and the last-emailed stamp; creation and
// deletion are owned elsewhere.
type Participant struct {
	ID            string            `json:"id"                        db:"id"`
	SurveyID      string            `json:"survey_id"                 db:"survey_id"`
	Email         string            `json:"email"                     db:"email"`
	Status        ParticipantStatus `json:"status"                    db:"status"`
	Identifier    *string           `json:"identifier,omitempty"      db:"identifier"`
	AccessToken   *string           `json:"access_token,omitempty"    db:"access_token"`
	LastEmailedAt *time.Time        `json:"last_emailed_at,omitempty" db:"last_emailed_at"`
	CreatedAt     time.Time         `json:"created_at"                db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"                db:"updated_at"`
}

// UpdateParticipantRequest carries the mutable participant fields. Nil fields
// are left untouched.
type UpdateParticipantRequest struct {
	Status        *ParticipantStatus
	Identifier    *string
	AccessToken   *string
	LastEmailedAt *time.Time
}

// Validate checks that at least one field is set and all set fields are well formed.
func (r *UpdateParticipantRequest) Validate() error {
	if r.Status == nil && r.Identifier == nil && r.AccessToken == nil && r.LastEmailedAt == nil {
		return errors.New("no fields to update")
	}
	if r.Status != nil && !r.Status.Valid() {
		return errors.New("invalid participant status")
	}
	if r.Identifier != nil && strings.TrimSpace(*r.Identifier) == "" {
		return errors.New("identifier cannot be empty")
	}
	if r.AccessToken != nil && strings.TrimSpace(*r.AccessToken) == "" {
		return errors.New("access token cannot be empty")
	}
	return nil
}
