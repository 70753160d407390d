package config

import (
	"strings"
	"time"
)

// MailerConfig contains SMTP notification gateway configuration. An empty
// Host leaves the gateway unconfigured: sends are skipped except for
// recipients on the AlwaysDeliver allowlist, which are attempted anyway so
// campaigns can be verified end to end without a relay.
type MailerConfig struct {
	Host     string `env:"HOST"      envDefault:""`
	Port     int    `env:"PORT"      envDefault:"587"`
	Username string `env:"USERNAME"  envDefault:""`
	Password string `env:"PASSWORD"  envDefault:""`
	From     string `env:"FROM"      envDefault:"surveys@localhost"`
	FromName string `env:"FROM_NAME" envDefault:"Survey Team"`

	// AlwaysDeliver lists recipient addresses that bypass the unconfigured
	// gateway skip. Comma-separated.
	AlwaysDeliver []string `env:"ALWAYS_DELIVER" envDefault:""`

	// RateLimit bounds outbound sends per window; zero disables limiting.
	RateLimit       int           `env:"RATE_LIMIT"        envDefault:"0"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Sanitize applies guardrails to mailer configuration values.
func (c *MailerConfig) Sanitize() {
	c.Host = strings.TrimSpace(c.Host)
	c.From = strings.TrimSpace(c.From)
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = 587
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = time.Minute
	}

	cleaned := c.AlwaysDeliver[:0]
	for _, addr := range c.AlwaysDeliver {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			cleaned = append(cleaned, addr)
		}
	}
	c.AlwaysDeliver = cleaned
}

// Configured reports whether a relay host is set.
func (c *MailerConfig) Configured() bool {
	return c.Host != ""
}
