package model

import "time"

// SurveyStatus represents the lifecycle state of a survey.
type SurveyStatus string

const (
	// SurveyStatusDraft indicates the survey has not been published.
	SurveyStatusDraft SurveyStatus = "draft"
	// SurveyStatusPublished indicates a publish campaign ran for the survey.
	SurveyStatusPublished SurveyStatus = "published"
	// SurveyStatusClosed indicates the survey no longer accepts responses.
	SurveyStatusClosed SurveyStatus = "closed"
)

// Valid returns true if the SurveyStatus is valid.
func (s SurveyStatus) Valid() bool {
	return s == SurveyStatusDraft || s == SurveyStatusPublished || s == SurveyStatusClosed
}

// Survey represents a survey row. The campaign engine only touches the
// status and campaign timestamp columns; everything else is owned by the
// (out of scope) management layer.
type Survey struct {
	ID             string       `json:"id"                         db:"id"`
	Name           string       `json:"name"                       db:"name"`
	Status         SurveyStatus `json:"status"                     db:"status"`
	PublishedAt    *time.Time   `json:"published_at,omitempty"     db:"published_at"`
	LastRemindedAt *time.Time   `json:"last_reminded_at,omitempty" db:"last_reminded_at"`
	CreatedAt      time.Time    `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"                 db:"updated_at"`
}
