package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/surveyhq/survey-api/internal/domain/campaign"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeCampaignRunner runs the background campaign job runner.
	ServiceModeCampaignRunner ServiceMode = "campaign-runner"
	// ServiceModeMigrate applies pending schema migrations and exits.
	ServiceModeMigrate ServiceMode = "migrate"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeCampaignRunner,
		ServiceModeMigrate,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeCampaignRunner, ServiceModeMigrate:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: campaign-runner, migrate)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// CampaignRunnerConfig contains campaign runner service configuration.
type CampaignRunnerConfig struct {
	// BatchSize is the number of participants processed per batch.
	BatchSize int `env:"RUNNER_BATCH_SIZE" envDefault:"20"`

	// BatchDelay is the pause between consecutive batches of a run.
	BatchDelay time.Duration `env:"RUNNER_BATCH_DELAY" envDefault:"500ms"`

	// Workers is the number of concurrent job executions.
	Workers int `env:"RUNNER_WORKERS" envDefault:"2"`

	// QueueSize is the capacity of the job submission queue.
	QueueSize int `env:"RUNNER_QUEUE_SIZE" envDefault:"64"`
}

// Sanitize applies guardrails to campaign runner configuration values.
func (c *CampaignRunnerConfig) Sanitize() {
	if c.BatchSize < 1 {
		c.BatchSize = campaign.DefaultBatchSize
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = campaign.DefaultBatchDelay
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.QueueSize < 1 {
		c.QueueSize = 1
	}
}

// LinksConfig contains campaign link generation configuration.
type LinksConfig struct {
	// BaseURL is the public base URL campaign links are built under.
	BaseURL string `env:"CAMPAIGN_BASE_URL" envDefault:"http://localhost:3000/s"`
}

// Sanitize normalises the base URL.
func (c *LinksConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
}

// Validate checks the base URL parses.
func (c *LinksConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid campaign base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("campaign base URL %q must be absolute", c.BaseURL)
	}
	return nil
}
