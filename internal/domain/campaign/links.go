package campaign

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	identifierBytes = 6
	tokenBytes      = 24

	// identifier collisions are vanishingly rare at 6 random bytes, but the
	// generator still verifies against existing participants.
	maxIdentifierAttempts = 5
)

// ErrIdentifierExhausted is returned when the generator cannot find a free
// identifier within the attempt budget.
var ErrIdentifierExhausted = errors.New("could not generate a unique participant identifier")

// IdentifierChecker reports whether a candidate participant identifier is
// already taken.
type IdentifierChecker interface {
	IdentifierExists(ctx context.Context, identifier string) (bool, error)
}

// LinkGenerator produces participant identifiers, access tokens and the
// campaign URLs embedding both.
type LinkGenerator struct {
	baseURL string
	checker IdentifierChecker
}

// NewLinkGenerator constructs a LinkGenerator. baseURL is the public survey
// endpoint, e.g. "https://surveys.example.com/s".
func NewLinkGenerator(baseURL string, checker IdentifierChecker) (*LinkGenerator, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if checker == nil {
		return nil, errors.New("identifier checker is required")
	}
	return &LinkGenerator{baseURL: baseURL, checker: checker}, nil
}

// Identifier generates a short unique participant identifier, verified
// against existing participants.
func (g *LinkGenerator) Identifier(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		candidate, err := randomHex(identifierBytes)
		if err != nil {
			return "", fmt.Errorf("generate identifier: %w", err)
		}
		exists, err := g.checker.IdentifierExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check identifier: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrIdentifierExhausted
}

// Token generates an opaque access token for a participant.
func (g *LinkGenerator) Token() (string, error) {
	token, err := randomHex(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// BuildURL returns the campaign URL a participant follows to open the
// survey, embedding the identifier and token as query parameters.
func (g *LinkGenerator) BuildURL(surveyID, identifier, token string) string {
	q := url.Values{}
	q.Set("pid", identifier)
	q.Set("token", token)
	return fmt.Sprintf("%s/%s?%s", g.baseURL, url.PathEscape(surveyID), q.Encode())
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
