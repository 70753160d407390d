package service

import (
	"context"

	"github.com/surveyhq/survey-api/internal/domain/model"
)

// CampaignRun carries the state a handler resolves before the first batch and
// threads through every item of a run.
type CampaignRun struct {
	Survey  *model.Survey
	Targets []string
	ReplyTo string
}

// JobHandler executes one campaign job variant. The runner owns batching,
// progress, counters and final status; handlers own what happens to a single
// participant and the side effect that closes a successful run.
type JobHandler interface {
	// Type reports the job type this handler serves.
	Type() model.JobType

	// Prepare validates the payload against loaded state and resolves the
	// target participants. A returned error fails the job before any batch
	// runs, with progress still at zero.
	Prepare(ctx context.Context, payload *model.CampaignJobPayload) (*CampaignRun, error)

	// ProcessItem executes the critical step for one participant. A returned
	// error marks the item failed; nil marks it succeeded. Item failures are
	// isolated and never abort the batch. A handler with a best-effort
	// notification step attempts it after the critical step regardless of the
	// critical step's outcome; only the critical step feeds the counters.
	ProcessItem(ctx context.Context, run *CampaignRun, participantID string) error

	// Close runs the closing side effect after a run finishes completed.
	// Errors here never change the job's terminal status.
	Close(ctx context.Context, run *CampaignRun) error
}
