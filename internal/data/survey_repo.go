package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/surveyhq/survey-api/internal/core"
	"github.com/surveyhq/survey-api/internal/domain/model"
)

// SurveyRepo provides the survey reads and the narrow column updates the
// campaign engine needs.
type SurveyRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

var _ core.SurveyRepository = (*SurveyRepo)(nil)

// NewSurveyRepo creates a new SurveyRepo.
func NewSurveyRepo(db *sql.DB, cfg RepoConfig) *SurveyRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &SurveyRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

// surveyWritableColumns are the columns the campaign engine may stamp.
// Anything else in an Update fields map is dropped, so closing side effects
// can write optional columns without caring whether a deployment has them.
var surveyWritableColumns = map[string]bool{
	"status":           true,
	"published_at":     true,
	"last_reminded_at": true,
}

const surveyColumns = `
  id,
  name,
  status,
  published_at,
  last_reminded_at,
  created_at,
  updated_at
`

// GetByID returns a survey by its ID or ErrSurveyNotFound.
func (r *SurveyRepo) GetByID(ctx context.Context, id string) (*model.Survey, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE id = $1`, id)

	s := &model.Survey{}
	var publishedAt, lastRemindedAt sql.NullTime
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Status,
		&publishedAt,
		&lastRemindedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSurveyNotFound
		}
		return nil, fmt.Errorf("get survey: %w", err)
	}
	s.PublishedAt = cloneNullableTime(publishedAt)
	s.LastRemindedAt = cloneNullableTime(lastRemindedAt)
	return s, nil
}

// Update stamps the given columns on a survey. Unknown column names are
// dropped, and a column missing from the deployed schema degrades to a
// retry without it rather than an error.
func (r *SurveyRepo) Update(ctx context.Context, id string, fields map[string]any) error {
	remaining := map[string]any{}
	for name, value := range fields {
		if surveyWritableColumns[name] {
			remaining[name] = value
		} else if r.logger != nil {
			r.logger.DebugContext(ctx, "dropping unknown survey column", "column", name)
		}
	}
	if len(remaining) == 0 {
		return nil
	}

	for len(remaining) > 0 {
		err := r.execUpdate(ctx, id, remaining)
		if err == nil {
			return nil
		}

		column, undefined := undefinedColumn(err)
		if !undefined {
			return err
		}
		if r.logger != nil {
			r.logger.WarnContext(ctx, "survey column absent from schema, skipping", "column", column)
		}
		if _, ok := remaining[column]; !ok {
			return err
		}
		delete(remaining, column)
	}
	return nil
}

func (r *SurveyRepo) execUpdate(ctx context.Context, id string, fields map[string]any) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	set := make([]string, 0, len(fields)+1)
	args := []any{id}
	for _, name := range names {
		args = append(args, fields[name])
		set = append(set, name+" = $"+strconv.Itoa(len(args)))
	}
	args = append(args, r.timeProvider.Now().UTC())
	set = append(set, "updated_at = $"+strconv.Itoa(len(args)))

	res, err := r.DB.ExecContext(ctx,
		`UPDATE surveys SET `+strings.Join(set, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update survey: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update survey rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSurveyNotFound
	}
	return nil
}

// undefinedColumn reports whether err is an undefined-column error and which
// column caused it.
func undefinedColumn(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UndefinedColumn {
		return "", false
	}
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName, true
	}
	// Message shape: `column "last_reminded_at" of relation "surveys" does not exist`
	if start := strings.Index(pgErr.Message, `"`); start >= 0 {
		rest := pgErr.Message[start+1:]
		if end := strings.Index(rest, `"`); end >= 0 {
			return rest[:end], true
		}
	}
	return "", true
}
