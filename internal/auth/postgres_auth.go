package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// PublisherStore abstracts DB queries for testability.
type PublisherStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*publisherRow, error)
}

type publisherRow struct {
	PublisherID   string
	Name          string
	APIKeyHash    string
	Active        bool
	ReviewsPerDay sql.NullInt64
}

// sqlPublisherStore is the real implementation using *sql.DB.
type sqlPublisherStore struct {
	db *sql.DB
}

func (s *sqlPublisherStore) LookupByPrefix(ctx context.Context, prefix string) (*publisherRow, error) {
	row := &publisherRow{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key_hash, active, reviews_per_day
		 FROM publishers
		 WHERE api_key_prefix = $1`,
		prefix,
	).Scan(&row.PublisherID, &row.Name, &row.APIKeyHash, &row.Active, &row.ReviewsPerDay)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvalidAPIKey // No publisher with this prefix — reject
		}
		return nil, fmt.Errorf("sqlPublisherStore.LookupByPrefix: %w", err)
	}
	return row, nil
}

// PostgresAuthenticator validates API keys against the publishers table.
// Uses AuthCache with stale-while-revalidate to avoid DB + bcrypt on the hot path.
type PostgresAuthenticator struct {
	store  PublisherStore
	cache  *AuthCache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration // Default: 30s
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new authenticator backed by PostgreSQL.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:  &sqlPublisherStore{db: cfg.DB},
		cache:  NewAuthCache(ttl),
		logger: cfg.Logger,
	}
}

// newPostgresAuthenticatorWithStore creates an authenticator with an injected store (for testing).
func newPostgresAuthenticatorWithStore(store PublisherStore, cache *AuthCache, logger *zap.Logger) *PostgresAuthenticator {
	return &PostgresAuthenticator{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// Authenticate validates the API key against the database.
//
// Flow:
//  1. Cache lookup (stale-while-revalidate):
//     - Fresh hit: return immediately (sub-microsecond)
//     - Stale hit: return stale publisher, spawn background refresh
//     - Miss: do full DB + bcrypt lookup synchronously
//  2. On DB error: return ErrAuthUnavailable — never accept unverified keys
func (a *PostgresAuthenticator) Authenticate(ctx context.Context, apiKey string) (*PublisherContext, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	// 1. Cache lookup
	result := a.cache.Get(apiKey)

	if result.Hit {
		// Stale hit — kick off background refresh, return stale value immediately
		if result.NeedsRefresh {
			go a.backgroundRefresh(apiKey)
		}
		return result.Publisher, nil
	}

	// 2. Cache miss — do full lookup synchronously
	publisher, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		return a.handleLookupError(err)
	}

	a.cache.Set(apiKey, publisher)
	return publisher, nil
}

// backgroundRefresh performs the DB + bcrypt lookup in a background goroutine.
// Errors are logged but don't affect the caller (they already got the stale value).
func (a *PostgresAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	publisher, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background cache refresh failed",
			zap.Error(err),
		)
		// Don't update cache — drop the entry so the next read does a full
		// lookup instead of serving a key that may have been revoked.
		a.cache.Delete(apiKey)
		return
	}

	a.cache.Set(apiKey, publisher)
}

// lookupAndVerify does the full DB prefix lookup + bcrypt verification.
func (a *PostgresAuthenticator) lookupAndVerify(ctx context.Context, apiKey string) (*PublisherContext, error) {
	// api_key_prefix is the first 8 chars (e.g. "rvk_abcd")
	if len(apiKey) < 8 {
		return nil, ErrInvalidAPIKey
	}
	prefix := apiKey[:8]

	row, err := a.store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}

	// bcrypt verify
	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	if !row.Active {
		return nil, ErrPublisherInactive
	}

	var perDay *int
	if row.ReviewsPerDay.Valid {
		v := int(row.ReviewsPerDay.Int64)
		perDay = &v
	}

	return &PublisherContext{
		PublisherID:   row.PublisherID,
		Name:          row.Name,
		ReviewsPerDay: perDay,
	}, nil
}

// handleLookupError returns the appropriate error — keys are never accepted on failure.
func (a *PostgresAuthenticator) handleLookupError(lookupErr error) (*PublisherContext, error) {
	if errors.Is(lookupErr, ErrInvalidAPIKey) {
		return nil, ErrInvalidAPIKey
	}
	if errors.Is(lookupErr, ErrPublisherInactive) {
		return nil, ErrPublisherInactive
	}

	// DB error (timeout, connection refused, etc.) — return unavailable
	a.logger.Warn("auth DB unreachable",
		zap.Error(lookupErr),
	)
	return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, lookupErr)
}
