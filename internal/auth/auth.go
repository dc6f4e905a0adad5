package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrMissingAPIKey     = errors.New("missing authorization header")
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrPublisherInactive = errors.New("publisher is deactivated")
	ErrAuthUnavailable   = errors.New("authentication unavailable")
)

// PublisherContext holds the authenticated publisher's identity.
type PublisherContext struct {
	PublisherID   string
	Name          string
	ReviewsPerDay *int
}

// Authenticator validates a publisher API key and returns its context.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*PublisherContext, error)
}

// TokenFromHeader extracts the rvk_ API key from an Authorization header value.
// Accepts both a bare key and the Bearer scheme.
func TokenFromHeader(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAPIKey
	}

	token := header
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = token[7:]
	}
	token = strings.TrimSpace(token)

	if !strings.HasPrefix(token, "rvk_") {
		return "", ErrInvalidAPIKey
	}
	return token, nil
}
