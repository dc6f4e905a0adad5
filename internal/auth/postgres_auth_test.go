package auth

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// testAPIKey is the raw API key used in tests. Must start with "rvk_" and be >= 8 chars.
const testAPIKey = "rvk_test_valid_key_1234567890abcdef"

// testHash returns a bcrypt hash of testAPIKey using MinCost (fast for tests).
func testHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

// mockStore implements PublisherStore for testing.
type mockStore struct {
	row       *publisherRow
	err       error
	callCount atomic.Int32
}

func (m *mockStore) LookupByPrefix(_ context.Context, _ string) (*publisherRow, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.row, nil
}

func TestPostgresAuth_CacheMiss_ValidKey(t *testing.T) {
	store := &mockStore{
		row: &publisherRow{
			PublisherID:   "pub_abc",
			Name:          "toolsite",
			APIKeyHash:    testHash(t),
			Active:        true,
			ReviewsPerDay: sql.NullInt64{Int64: 500, Valid: true},
		},
	}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	publisher, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if publisher.PublisherID != "pub_abc" {
		t.Errorf("expected publisher ID pub_abc, got %s", publisher.PublisherID)
	}
	if publisher.Name != "toolsite" {
		t.Errorf("expected name toolsite, got %s", publisher.Name)
	}
	if publisher.ReviewsPerDay == nil || *publisher.ReviewsPerDay != 500 {
		t.Errorf("expected reviews_per_day 500, got %v", publisher.ReviewsPerDay)
	}
	if store.callCount.Load() != 1 {
		t.Errorf("expected 1 DB call, got %d", store.callCount.Load())
	}
}

func TestPostgresAuth_NullReviewsPerDay(t *testing.T) {
	store := &mockStore{
		row: &publisherRow{
			PublisherID: "pub_abc",
			Name:        "toolsite",
			APIKeyHash:  testHash(t),
			Active:      true,
		},
	}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	publisher, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if publisher.ReviewsPerDay != nil {
		t.Errorf("expected nil reviews_per_day for NULL column, got %v", *publisher.ReviewsPerDay)
	}
}

func TestPostgresAuth_CacheHit_NoDBCall(t *testing.T) {
	store := &mockStore{
		row: &publisherRow{
			PublisherID: "pub_abc",
			Name:        "toolsite",
			APIKeyHash:  testHash(t),
			Active:      true,
		},
	}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	// First call — cache miss, hits DB
	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if store.callCount.Load() != 1 {
		t.Fatalf("expected 1 DB call after first auth, got %d", store.callCount.Load())
	}

	// Second call — cache hit, no DB call
	publisher, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if store.callCount.Load() != 1 {
		t.Errorf("expected still 1 DB call (cache hit), got %d", store.callCount.Load())
	}
	if publisher.PublisherID != "pub_abc" {
		t.Errorf("expected pub_abc from cache, got %s", publisher.PublisherID)
	}
}

func TestPostgresAuth_CacheMiss_InvalidKey(t *testing.T) {
	store := &mockStore{
		row: &publisherRow{
			PublisherID: "pub_abc",
			APIKeyHash:  testHash(t), // Hash of testAPIKey
			Active:      true,
		},
	}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	// Use a different API key that won't match the bcrypt hash
	_, err := auth.Authenticate(context.Background(), "rvk_wrong_key_doesnt_match_hash_at_all")
	if err == nil {
		t.Fatal("expected error for invalid key, got nil")
	}
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_PublisherNotFound(t *testing.T) {
	// The real sqlPublisherStore converts sql.ErrNoRows → ErrInvalidAPIKey.
	// The mock simulates that behavior.
	store := &mockStore{
		err: ErrInvalidAPIKey,
	}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if err == nil {
		t.Fatal("expected error for publisher not found, got nil")
	}
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got: %v", err)
	}
}

func TestPostgresAuth_InactivePublisher(t *testing.T) {
	store := &mockStore{
		row: &publisherRow{
			PublisherID: "pub_disabled",
			Name:        "oldsite",
			APIKeyHash:  testHash(t),
			Active:      false,
		},
	}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if err == nil {
		t.Fatal("expected error for inactive publisher, got nil")
	}
	if !errors.Is(err, ErrPublisherInactive) {
		t.Errorf("expected ErrPublisherInactive, got: %v", err)
	}
}

func TestPostgresAuth_DBDown_ReturnsUnavailable(t *testing.T) {
	store := &mockStore{
		err: errors.New("connection refused"),
	}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), testAPIKey)
	if err == nil {
		t.Fatal("expected error when DB is down, got nil")
	}
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got: %v", err)
	}
}

func TestPostgresAuth_EmptyKey(t *testing.T) {
	store := &mockStore{}
	cache := NewAuthCache(1 * time.Minute)
	auth := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	_, err := auth.Authenticate(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
	// DB should never be called
	if store.callCount.Load() != 0 {
		t.Error("DB should not be called when API key is empty")
	}
}

func TestPostgresAuth_StaleHit_ServesStaleAndRefreshes(t *testing.T) {
	hash := testHash(t)
	store := &mockStore{
		row: &publisherRow{
			PublisherID: "pub_stale",
			Name:        "toolsite",
			APIKeyHash:  hash,
			Active:      true,
		},
	}
	cache := NewAuthCache(1 * time.Millisecond) // Very short TTL
	auth := newPostgresAuthenticatorWithStore(store, cache, zap.NewNop())

	// First call — cache miss
	publisher, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if publisher.PublisherID != "pub_stale" {
		t.Fatalf("expected pub_stale, got %s", publisher.PublisherID)
	}
	if store.callCount.Load() != 1 {
		t.Fatalf("expected 1 DB call, got %d", store.callCount.Load())
	}

	// Wait for cache to expire
	time.Sleep(5 * time.Millisecond)

	// Update what the store returns so we can verify refresh happened
	store.row = &publisherRow{
		PublisherID: "pub_stale",
		Name:        "toolsite-renamed", // Changed!
		APIKeyHash:  hash,
		Active:      true,
	}

	// Second call — stale hit, returns old value immediately
	publisher2, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	// Should return stale value (old name, not the renamed one yet)
	if publisher2.Name != "toolsite" {
		t.Errorf("stale hit should return old name=toolsite, got %s", publisher2.Name)
	}

	// Wait for background refresh to complete
	time.Sleep(200 * time.Millisecond)

	// Third call — should now have refreshed value
	publisher3, err := auth.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("third call failed: %v", err)
	}
	if publisher3.Name != "toolsite-renamed" {
		t.Errorf("expected refreshed name=toolsite-renamed, got %s", publisher3.Name)
	}
}

// Verify the interface is satisfied at compile time.
var _ Authenticator = (*PostgresAuthenticator)(nil)
var _ Authenticator = (*StaticAuthenticator)(nil)
var _ PublisherStore = (*sqlPublisherStore)(nil)
