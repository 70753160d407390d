package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/surveyhq/survey-api/internal/core"
	"github.com/surveyhq/survey-api/internal/domain/model"
	apperrors "github.com/surveyhq/survey-api/internal/errors"
)

// ParticipantRepo provides database operations for survey participants.
// The campaign engine only mutates access state; participant creation and
// deletion are owned by the management layer.
type ParticipantRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.ParticipantRepository = (*ParticipantRepo)(nil)

// NewParticipantRepo creates a new ParticipantRepo.
func NewParticipantRepo(db *sql.DB, cfg RepoConfig) *ParticipantRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &ParticipantRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const participantColumns = `
  id,
  survey_id,
  email,
  status,
  identifier,
  access_token,
  last_emailed_at,
  created_at,
  updated_at
`

// GetByID returns a participant by its ID or ErrParticipantNotFound. A
// malformed id is reported as not found without touching the database.
func (r *ParticipantRepo) GetByID(ctx context.Context, id string) (*model.Participant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrParticipantNotFound
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id)
	p, err := scanParticipantFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// GetActiveBySurvey returns all currently active participants of a survey.
func (r *ParticipantRepo) GetActiveBySurvey(
	ctx context.Context,
	surveyID string,
) ([]*model.Participant, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE survey_id = $1 AND status = 'active'
		ORDER BY created_at ASC
	`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list active participants: %w", err)
	}
	defer rows.Close()

	participants := []*model.Participant{}
	for rows.Next() {
		p, scanErr := scanParticipantFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan participant: %w", scanErr)
		}
		participants = append(participants, p)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate participants: %w", rowsErr)
	}
	return participants, nil
}

// Update applies the set fields of req to a participant row. Each row-level
// write is a single atomic statement; the engine relies on that when items
// of a batch update concurrently.
func (r *ParticipantRepo) Update(
	ctx context.Context,
	id string,
	req model.UpdateParticipantRequest,
) (*model.Participant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	set := []string{}
	args := []any{id}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if req.Status != nil {
		set = append(set, "status = "+next(*req.Status))
	}
	if req.Identifier != nil {
		set = append(set, "identifier = "+next(*req.Identifier))
	}
	if req.AccessToken != nil {
		set = append(set, "access_token = "+next(*req.AccessToken))
	}
	if req.LastEmailedAt != nil {
		set = append(set, "last_emailed_at = "+next(req.LastEmailedAt.UTC()))
	}
	set = append(set, "updated_at = "+next(r.timeProvider.Now().UTC()))

	query := `UPDATE participants SET ` + strings.Join(set, ", ") +
		` WHERE id = $1 RETURNING ` + participantColumns

	row := r.DB.QueryRowContext(ctx, query, args...)
	p, err := scanParticipantFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		// Identifier collisions can still race past the pre-check; surface
		// them as typed conflicts.
		return nil, fmt.Errorf("update participant: %w", apperrors.MapDBError(err))
	}
	return p, nil
}

// IdentifierExists reports whether any participant already carries the identifier.
func (r *ParticipantRepo) IdentifierExists(ctx context.Context, identifier string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM participants WHERE identifier = $1)`, identifier,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check identifier: %w", err)
	}
	return exists, nil
}

// CountBySurvey returns participant counts per status for a survey.
func (r *ParticipantRepo) CountBySurvey(
	ctx context.Context,
	surveyID string,
) (map[model.ParticipantStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM participants
		WHERE survey_id = $1
		GROUP BY status
	`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}
	defer rows.Close()

	counts := map[model.ParticipantStatus]int{}
	for rows.Next() {
		var status model.ParticipantStatus
		var n int
		if scanErr := rows.Scan(&status, &n); scanErr != nil {
			return nil, fmt.Errorf("scan participant count: %w", scanErr)
		}
		counts[status] = n
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate participant counts: %w", rowsErr)
	}
	return counts, nil
}

type participantRowData struct {
	identifier, accessToken sql.NullString
	lastEmailedAt           sql.NullTime
}

func scanParticipantFromRow(scanner rowScanner) (*model.Participant, error) {
	p := &model.Participant{}
	var data participantRowData
	if err := scanner.Scan(
		&p.ID,
		&p.SurveyID,
		&p.Email,
		&p.Status,
		&data.identifier,
		&data.accessToken,
		&data.lastEmailedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Identifier = cloneNullableString(data.identifier)
	p.AccessToken = cloneNullableString(data.accessToken)
	p.LastEmailedAt = cloneNullableTime(data.lastEmailedAt)
	return p, nil
}
