package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/surveyhq/survey-api/config"
	"github.com/surveyhq/survey-api/internal/core"
	"github.com/surveyhq/survey-api/internal/data"
	"github.com/surveyhq/survey-api/internal/domain/campaign"
	"github.com/surveyhq/survey-api/internal/notify/smtp"
	"github.com/surveyhq/survey-api/internal/observability/statsd"
	"github.com/surveyhq/survey-api/internal/service"
)

// ServiceContainer holds all initialized services.
type ServiceContainer struct {
	Jobs      *service.JobService
	Runner    *service.Runner
	Campaigns *service.CampaignService
	Analytics *service.AnalyticsService
	Gateway   *smtp.Gateway
}

// ObservabilityContainer groups the observability sinks shared by services.
type ObservabilityContainer struct {
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// ServiceDeps contains external dependencies needed to build services.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

type serviceRepositories struct {
	jobs         *data.JobRepo
	participants *data.ParticipantRepo
	surveys      *data.SurveyRepo
	cache        *data.RedisCacheRepo
}

func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	out := ObservabilityContainer{Logger: logger}

	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  logger,
		})
		if err != nil {
			if logger != nil {
				logger.Warn("statsd client unavailable, metrics disabled", "error", err)
			}
		} else {
			out.Metrics = client
		}
	}

	return out
}

func buildRepositories(db *sql.DB, redisClient redis.UniversalClient, logger *slog.Logger) *serviceRepositories {
	repoCfg := data.RepoConfig{Logger: logger}
	repos := &serviceRepositories{
		jobs:         data.NewJobRepo(db, repoCfg),
		participants: data.NewParticipantRepo(db, repoCfg),
		surveys:      data.NewSurveyRepo(db, repoCfg),
	}
	if redisClient != nil {
		repos.cache = data.NewRedisCacheRepo(redisClient)
	}
	return repos
}

func buildGateway(deps *ServiceDeps) (*smtp.Gateway, error) {
	mailerCfg := deps.Config.Mailer

	var limiter core.RateLimiter
	if mailerCfg.RateLimit > 0 && deps.RedisClient != nil {
		rl, err := data.NewRedisRateLimiter(deps.RedisClient, data.RateLimiterConfig{
			Limit:  mailerCfg.RateLimit,
			Window: mailerCfg.RateLimitWindow,
			Prefix: "mailer",
		})
		if err != nil {
			return nil, fmt.Errorf("create delivery rate limiter: %w", err)
		}
		limiter = rl
	}

	gateway, err := smtp.NewGateway(smtp.Config{
		Host:          mailerCfg.Host,
		Port:          mailerCfg.Port,
		Username:      mailerCfg.Username,
		Password:      mailerCfg.Password,
		From:          mailerCfg.From,
		FromName:      mailerCfg.FromName,
		AlwaysDeliver: mailerCfg.AlwaysDeliver,
		Limiter:       limiter,
		Logger:        deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create smtp gateway: %w", err)
	}
	return gateway, nil
}

// NewServices initializes all services with their dependencies.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	observability := buildObservability(deps.Logger, deps.Config.Observability)
	repos := buildRepositories(deps.DB, deps.RedisClient, deps.Logger)

	gateway, err := buildGateway(deps)
	if err != nil {
		return ServiceContainer{}, err
	}

	links, err := campaign.NewLinkGenerator(deps.Config.Links.BaseURL, repos.participants)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create link generator: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:    repos.jobs,
		Logger:  deps.Logger,
		Metrics: observability.Metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	publish, err := service.NewPublishHandler(service.PublishHandlerOptions{
		Participants: repos.participants,
		Surveys:      repos.surveys,
		Gateway:      gateway,
		Links:        links,
		Logger:       deps.Logger,
		Metrics:      observability.Metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create publish handler: %w", err)
	}

	reminder, err := service.NewReminderHandler(service.ReminderHandlerOptions{
		Participants: repos.participants,
		Surveys:      repos.surveys,
		Gateway:      gateway,
		Links:        links,
		Logger:       deps.Logger,
		Metrics:      observability.Metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create reminder handler: %w", err)
	}

	runnerCfg := deps.Config.CampaignRunner
	batch, err := campaign.NewBatchPolicy(runnerCfg.BatchSize, runnerCfg.BatchDelay)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create batch policy: %w", err)
	}

	runner, err := service.NewRunner(service.RunnerOptions{
		Jobs:      jobs,
		Handlers:  []service.JobHandler{publish, reminder},
		Batch:     batch,
		Workers:   runnerCfg.Workers,
		QueueSize: runnerCfg.QueueSize,
		Logger:    deps.Logger,
		Metrics:   observability.Metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create campaign runner: %w", err)
	}

	campaigns, err := service.NewCampaignService(service.CampaignServiceOptions{
		Jobs:   jobs,
		Runner: runner,
		Logger: deps.Logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create campaign service: %w", err)
	}

	var cache core.CacheRepository
	if repos.cache != nil {
		cache = repos.cache
	}
	analytics, err := service.NewAnalyticsService(service.AnalyticsServiceOptions{
		Participants: repos.participants,
		Jobs:         repos.jobs,
		Cache:        cache,
		TTL:          deps.Config.Cache.AnalyticsTTL,
		Logger:       deps.Logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create analytics service: %w", err)
	}

	return ServiceContainer{
		Jobs:      jobs,
		Runner:    runner,
		Campaigns: campaigns,
		Analytics: analytics,
		Gateway:   gateway,
	}, nil
}

// ServiceOrchestrationConfig groups everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts the enabled background services and blocks
// until SIGINT or SIGTERM, then drains them.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("orchestration config is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Config.IsCampaignRunnerEnabled() {
		cfg.Services.Runner.Start(ctx)
		defer cfg.Services.Runner.Stop()
	}

	<-ctx.Done()

	if cfg.Logger != nil {
		cfg.Logger.Info("shutdown signal received, draining services")
	}
	return nil
}
