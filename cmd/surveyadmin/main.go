// Command surveyadmin provides operator tooling for the campaign job system:
// running migrations, inspecting job state, and cancelling pending jobs.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/surveyhq/survey-api/config"
	"github.com/surveyhq/survey-api/internal/bootstrap"
	"github.com/surveyhq/survey-api/internal/data"
	"github.com/surveyhq/survey-api/internal/devseed"
	"github.com/surveyhq/survey-api/internal/domain/model"
	"github.com/surveyhq/survey-api/internal/service"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultMigrationTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrate,
		},
		"db-seed": {
			name:        "db-seed",
			description: "Run database migrations and seed development data",
			run:         runDBSeed,
		},
		"job-stats": {
			name:        "job-stats",
			description: "Print per-status job counts for each campaign job type",
			run:         runJobStats,
		},
		"jobs": {
			name:        "jobs",
			description: "List the most recent jobs of a type (-type, -limit)",
			run:         runListJobs,
		},
		"cancel-job": {
			name:        "cancel-job",
			description: "Cancel a pending job by id",
			run:         runCancelJob,
		},
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: surveyadmin <command> [flags]")
	fmt.Fprintln(w)

	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%s\n", name, cmds[name].description)
	}
	tw.Flush()
}

func connectDB(ctx *commandContext) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: ctx.Config.Postgres,
		Logger:   ctx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func newJobService(ctx *commandContext, db *sql.DB) (*service.JobService, error) {
	repo := data.NewJobRepo(db, data.RepoConfig{Logger: ctx.Logger})
	return service.NewJobService(service.JobServiceOptions{
		Repo:   repo,
		Logger: ctx.Logger,
	})
}

func runMigrate(ctx *commandContext, _ []string) error {
	db, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	runCtx, cancel := context.WithTimeout(ctx.Ctx, defaultMigrationTimeout)
	defer cancel()

	return bootstrap.RunMigrations(runCtx, db, ctx.Logger)
}

func runDBSeed(ctx *commandContext, _ []string) error {
	db, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	runCtx, cancel := context.WithTimeout(ctx.Ctx, defaultMigrationTimeout)
	defer cancel()

	if err := bootstrap.RunMigrations(runCtx, db, ctx.Logger); err != nil {
		return err
	}
	return devseed.Seed(runCtx, db, ctx.Logger)
}

func runJobStats(ctx *commandContext, _ []string) error {
	db, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := newJobService(ctx, db)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tPENDING\tPROCESSING\tCOMPLETED\tFAILED\tCANCELLED")
	for _, jobType := range []model.JobType{model.JobTypePublish, model.JobTypeReminder, model.JobTypeExport} {
		stats, err := jobs.Stats(ctx.Ctx, jobType)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
			jobType, stats.Pending, stats.Processing, stats.Completed, stats.Failed, stats.Cancelled)
	}
	return tw.Flush()
}

func runListJobs(ctx *commandContext, args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	typeFlag := fs.String("type", "publish", "job type: publish, reminder, or export")
	limitFlag := fs.Int("limit", 20, "maximum number of jobs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var jobType model.JobType
	if err := jobType.UnmarshalText([]byte(*typeFlag)); err != nil {
		return err
	}

	db, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := newJobService(ctx, db)
	if err != nil {
		return err
	}

	list, err := jobs.ListRecentByType(ctx.Ctx, jobType, *limitFlag)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tCREATED\tLAST ERROR")
	for _, job := range list {
		lastErr := ""
		if job.LastError != nil {
			lastErr = *job.LastError
		}
		fmt.Fprintf(tw, "%s\t%s\t%s%%\t%s\t%s\n",
			job.ID,
			job.Status,
			strconv.Itoa(job.Progress),
			job.CreatedAt.Format(time.RFC3339),
			lastErr,
		)
	}
	return tw.Flush()
}

func runCancelJob(ctx *commandContext, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: surveyadmin cancel-job <job-id>")
	}
	jobID := args[0]

	db, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := newJobService(ctx, db)
	if err != nil {
		return err
	}

	cancelled, err := jobs.Cancel(ctx.Ctx, jobID)
	if err != nil {
		return err
	}
	if !cancelled {
		fmt.Printf("job %s was not pending; nothing cancelled\n", jobID)
		return nil
	}
	fmt.Printf("job %s cancelled\n", jobID)
	return nil
}
