package auth

import (
	"context"
	"strings"
)

// StaticAuthenticator is a development-only authenticator that accepts any rvk_ key.
// Used when no PostgreSQL DSN is configured.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, apiKey string) (*PublisherContext, error) {
	if len(apiKey) < 8 || !strings.HasPrefix(apiKey, "rvk_") {
		return nil, ErrInvalidAPIKey
	}
	// Accept any rvk_ prefixed key with a static publisher ID
	return &PublisherContext{
		PublisherID: "static-" + apiKey[:8],
		Name:        "static",
	}, nil
}
