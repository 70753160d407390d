// Package devseed populates a development database with a sample survey and
// participants so campaign runs can be exercised locally.
package devseed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

const seedSurveyName = "Dev Onboarding Survey"

// Seed inserts a draft survey with a handful of inactive participants.
// Running it twice is safe: the seed survey is looked up by name first.
func Seed(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	var surveyID string
	err := db.QueryRowContext(ctx,
		`SELECT id FROM surveys WHERE name = $1 LIMIT 1`, seedSurveyName,
	).Scan(&surveyID)
	if err == nil {
		if logger != nil {
			logger.InfoContext(ctx, "seed survey already present", "survey_id", surveyID)
		}
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("look up seed survey: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`INSERT INTO surveys (name, status) VALUES ($1, 'draft') RETURNING id`,
		seedSurveyName,
	).Scan(&surveyID)
	if err != nil {
		return fmt.Errorf("insert seed survey: %w", err)
	}

	emails := []string{
		"alice@example.com",
		"bob@example.com",
		"carol@example.com",
		"dave@example.com",
		"erin@example.com",
	}
	for _, email := range emails {
		_, err = db.ExecContext(ctx,
			`INSERT INTO participants (survey_id, email, status) VALUES ($1, $2, 'inactive')`,
			surveyID, email,
		)
		if err != nil {
			return fmt.Errorf("insert seed participant %s: %w", email, err)
		}
	}

	if logger != nil {
		logger.InfoContext(ctx, "development data seeded",
			"survey_id", surveyID,
			"participants", len(emails),
		)
	}
	return nil
}
