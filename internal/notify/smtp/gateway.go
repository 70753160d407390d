// Package smtp delivers campaign messages over SMTP.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/surveyhq/survey-api/internal/core"
	"github.com/surveyhq/survey-api/internal/domain/campaign"
)

// ErrGatewayNotConfigured is returned when no SMTP host is configured and
// the recipient is not on the delivery allowlist.
var ErrGatewayNotConfigured = errors.New("notification gateway is not configured")

// ErrRateLimited is returned when the delivery rate limiter rejects a send.
var ErrRateLimited = errors.New("notification send rate limited")

// Config captures the SMTP gateway behaviour.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string

	// AlwaysDeliver lists recipient addresses that are attempted even when
	// the gateway is otherwise unconfigured. Deployments use this to smoke
	// test campaign flows against a single sandbox inbox.
	AlwaysDeliver []string

	// Limiter, when set, bounds deliveries per fixed window.
	Limiter core.RateLimiter

	Logger *slog.Logger

	// SendFunc overrides the SMTP send for tests. Defaults to smtp.SendMail.
	SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// Gateway implements core.NotificationGateway over SMTP.
type Gateway struct {
	host          string
	port          int
	username      string
	password      string
	from          string
	fromName      string
	alwaysDeliver map[string]bool
	limiter       core.RateLimiter
	logger        *slog.Logger
	send          func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ core.NotificationGateway = (*Gateway)(nil)

// NewGateway builds an SMTP gateway. A gateway without a host is valid: it
// skips every send except for allowlisted recipients.
func NewGateway(cfg Config) (*Gateway, error) {
	from := strings.TrimSpace(cfg.From)
	if cfg.Host != "" && from == "" {
		return nil, errors.New("sender address is required when SMTP host is set")
	}

	port := cfg.Port
	if port <= 0 {
		port = 587
	}

	allow := make(map[string]bool, len(cfg.AlwaysDeliver))
	for _, addr := range cfg.AlwaysDeliver {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr != "" {
			allow[addr] = true
		}
	}

	send := cfg.SendFunc
	if send == nil {
		send = smtp.SendMail
	}

	return &Gateway{
		host:          strings.TrimSpace(cfg.Host),
		port:          port,
		username:      cfg.Username,
		password:      cfg.Password,
		from:          from,
		fromName:      strings.TrimSpace(cfg.FromName),
		alwaysDeliver: allow,
		limiter:       cfg.Limiter,
		logger:        cfg.Logger,
		send:          send,
	}, nil
}

// Configured reports whether the gateway has an SMTP host to deliver through.
func (g *Gateway) Configured() bool {
	return g.host != ""
}

// Send delivers msg best-effort. Unconfigured gateways skip the send with
// ErrGatewayNotConfigured unless the recipient is allowlisted; allowlisted
// recipients without a host still fail, which keeps the escape hatch visible
// in logs instead of silently dropping it.
func (g *Gateway) Send(ctx context.Context, msg campaign.Message) error {
	to := strings.ToLower(strings.TrimSpace(msg.To))
	if to == "" {
		return errors.New("recipient address is required")
	}

	if !g.Configured() && !g.alwaysDeliver[to] {
		return ErrGatewayNotConfigured
	}

	if g.limiter != nil {
		allowed, err := g.limiter.Allow(ctx, g.host)
		if err != nil {
			// A broken limiter should not block campaign delivery.
			if g.logger != nil {
				g.logger.WarnContext(ctx, "rate limiter unavailable, sending anyway", "error", err)
			}
		} else if !allowed {
			return ErrRateLimited
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	host := g.host
	if host == "" {
		// allowlisted recipient on an unconfigured gateway: attempt the
		// local MTA so the delivery path stays observable.
		host = "localhost"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(g.port))
	var auth smtp.Auth
	if g.username != "" {
		auth = smtp.PlainAuth("", g.username, g.password, g.host)
	}

	if err := g.send(addr, auth, g.from, []string{msg.To}, g.encode(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	if g.logger != nil {
		g.logger.DebugContext(ctx, "message delivered", "to", msg.To, "subject", msg.Subject)
	}
	return nil
}

// encode renders the message as an RFC 5322 HTML mail.
func (g *Gateway) encode(msg campaign.Message) []byte {
	from := g.from
	if g.fromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", g.fromName), g.from)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	b.WriteString("\r\n")
	return []byte(b.String())
}
