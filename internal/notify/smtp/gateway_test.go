package smtp

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surveyhq/survey-api/internal/domain/campaign"
)

type sendCall struct {
	addr string
	from string
	to   []string
	msg  []byte
}

type fakeSender struct {
	calls []sendCall
	err   error
}

func (f *fakeSender) send(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
	f.calls = append(f.calls, sendCall{addr: addr, from: from, to: to, msg: msg})
	return f.err
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s *stubLimiter) Allow(context.Context, string) (bool, error) {
	return s.allowed, s.err
}

func testMessage() campaign.Message {
	return campaign.Message{
		To:      "ann@example.com",
		Subject: "You are invited: Pulse",
		HTML:    "<p>hello</p>",
		ReplyTo: "hr@example.com",
	}
}

func TestNewGateway_RequiresFromWhenConfigured(t *testing.T) {
	_, err := NewGateway(Config{Host: "mail.example.com"})
	assert.Error(t, err)

	g, err := NewGateway(Config{Host: "mail.example.com", From: "noreply@example.com"})
	require.NoError(t, err)
	assert.True(t, g.Configured())

	g, err = NewGateway(Config{})
	require.NoError(t, err)
	assert.False(t, g.Configured())
}

func TestGateway_Send(t *testing.T) {
	sender := &fakeSender{}
	g, err := NewGateway(Config{
		Host:     "mail.example.com",
		Port:     2525,
		From:     "noreply@example.com",
		FromName: "SurveyHQ",
		SendFunc: sender.send,
	})
	require.NoError(t, err)

	require.NoError(t, g.Send(context.Background(), testMessage()))
	require.Len(t, sender.calls, 1)

	call := sender.calls[0]
	assert.Equal(t, "mail.example.com:2525", call.addr)
	assert.Equal(t, "noreply@example.com", call.from)
	assert.Equal(t, []string{"ann@example.com"}, call.to)

	body := string(call.msg)
	assert.Contains(t, body, "To: ann@example.com")
	assert.Contains(t, body, "Reply-To: hr@example.com")
	assert.Contains(t, body, "Content-Type: text/html")
	assert.Contains(t, body, "<p>hello</p>")
}

func TestGateway_Send_Unconfigured(t *testing.T) {
	sender := &fakeSender{}
	g, err := NewGateway(Config{SendFunc: sender.send})
	require.NoError(t, err)

	err = g.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrGatewayNotConfigured)
	assert.Empty(t, sender.calls)
}

func TestGateway_Send_UnconfiguredAllowlistStillAttempts(t *testing.T) {
	sender := &fakeSender{}
	g, err := NewGateway(Config{
		AlwaysDeliver: []string{"Ann@Example.com"},
		SendFunc:      sender.send,
	})
	require.NoError(t, err)

	require.NoError(t, g.Send(context.Background(), testMessage()))
	require.Len(t, sender.calls, 1)
	assert.Equal(t, "localhost:587", sender.calls[0].addr)
}

func TestGateway_Send_RateLimited(t *testing.T) {
	sender := &fakeSender{}
	g, err := NewGateway(Config{
		Host:     "mail.example.com",
		From:     "noreply@example.com",
		Limiter:  &stubLimiter{allowed: false},
		SendFunc: sender.send,
	})
	require.NoError(t, err)

	err = g.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Empty(t, sender.calls)
}

func TestGateway_Send_LimiterFailureDoesNotBlock(t *testing.T) {
	sender := &fakeSender{}
	g, err := NewGateway(Config{
		Host:     "mail.example.com",
		From:     "noreply@example.com",
		Limiter:  &stubLimiter{err: errors.New("redis down")},
		SendFunc: sender.send,
	})
	require.NoError(t, err)

	require.NoError(t, g.Send(context.Background(), testMessage()))
	assert.Len(t, sender.calls, 1)
}

func TestGateway_Send_PropagatesSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection refused")}
	g, err := NewGateway(Config{
		Host:     "mail.example.com",
		From:     "noreply@example.com",
		SendFunc: sender.send,
	})
	require.NoError(t, err)

	err = g.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp send to ann@example.com")
}

func TestGateway_Send_MissingRecipient(t *testing.T) {
	g, err := NewGateway(Config{SendFunc: (&fakeSender{}).send})
	require.NoError(t, err)

	assert.Error(t, g.Send(context.Background(), campaign.Message{}))
}
