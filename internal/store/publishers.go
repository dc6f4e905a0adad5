package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Publisher represents a row in the publishers table: an integration
// (review site, CI bot, import job) allowed to submit and delete reviews.
type Publisher struct {
	ID            string
	Name          string
	Contact       string
	APIKeyHash    string
	APIKeyPrefix  string
	Active        bool
	ReviewsPerDay *int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UpdatePublisherParams holds optional fields for partial publisher updates.
type UpdatePublisherParams struct {
	Name          *string
	Contact       *string
	Active        *bool
	ReviewsPerDay *int
}

// GenerateAPIKey creates a new rvk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := "rvk_" + hex.EncodeToString(raw) // 68 chars total

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	prefix := fullKey[:8] // "rvk_abcd"
	return fullKey, string(hashBytes), prefix, nil
}

// CreatePublisher inserts a new publisher.
// Returns the publisher and its plaintext API key (shown once).
func (s *Store) CreatePublisher(ctx context.Context, name, contact string) (*Publisher, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreatePublisher: %w", err)
	}

	var p Publisher
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO publishers (name, contact, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, contact, api_key_hash, api_key_prefix, active,
		          reviews_per_day, created_at, updated_at`,
		name, contact, keyHash, keyPrefix,
	).Scan(&p.ID, &p.Name, &p.Contact, &p.APIKeyHash, &p.APIKeyPrefix, &p.Active,
		&p.ReviewsPerDay, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreatePublisher: %w", err)
	}

	return &p, fullKey, nil
}

// ListPublishers returns all publishers ordered by created_at DESC.
func (s *Store) ListPublishers(ctx context.Context) ([]*Publisher, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact, api_key_hash, api_key_prefix, active,
		       reviews_per_day, created_at, updated_at
		FROM publishers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListPublishers: %w", err)
	}
	defer rows.Close()

	var publishers []*Publisher
	for rows.Next() {
		var p Publisher
		if err := rows.Scan(&p.ID, &p.Name, &p.Contact, &p.APIKeyHash, &p.APIKeyPrefix,
			&p.Active, &p.ReviewsPerDay, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListPublishers: %w", err)
		}
		publishers = append(publishers, &p)
	}
	return publishers, rows.Err()
}

// GetPublisher returns a publisher by ID, or nil if not found.
func (s *Store) GetPublisher(ctx context.Context, id string) (*Publisher, error) {
	var p Publisher
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact, api_key_hash, api_key_prefix, active,
		       reviews_per_day, created_at, updated_at
		FROM publishers WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Contact, &p.APIKeyHash, &p.APIKeyPrefix,
		&p.Active, &p.ReviewsPerDay, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetPublisher: %w", err)
	}
	return &p, nil
}

// UpdatePublisher applies a partial update. Only non-nil fields are changed.
func (s *Store) UpdatePublisher(ctx context.Context, id string, params UpdatePublisherParams) (*Publisher, error) {
	var p Publisher
	err := s.db.QueryRowContext(ctx, `
		UPDATE publishers SET
			name            = COALESCE($2, name),
			contact         = COALESCE($3, contact),
			active          = COALESCE($4, active),
			reviews_per_day = COALESCE($5, reviews_per_day),
			updated_at      = now()
		WHERE id = $1
		RETURNING id, name, contact, api_key_hash, api_key_prefix, active,
		          reviews_per_day, created_at, updated_at`,
		id, params.Name, params.Contact, params.Active, params.ReviewsPerDay,
	).Scan(&p.ID, &p.Name, &p.Contact, &p.APIKeyHash, &p.APIKeyPrefix,
		&p.Active, &p.ReviewsPerDay, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdatePublisher: %w", err)
	}
	return &p, nil
}

// DeletePublisher deletes a publisher by ID.
func (s *Store) DeletePublisher(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM publishers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeletePublisher: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RotateAPIKey generates a new API key for a publisher.
// Returns the updated publisher and the plaintext key (shown once).
func (s *Store) RotateAPIKey(ctx context.Context, id string) (*Publisher, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	var p Publisher
	err = s.db.QueryRowContext(ctx, `
		UPDATE publishers SET
			api_key_hash   = $2,
			api_key_prefix = $3,
			updated_at     = now()
		WHERE id = $1
		RETURNING id, name, contact, api_key_hash, api_key_prefix, active,
		          reviews_per_day, created_at, updated_at`,
		id, keyHash, keyPrefix,
	).Scan(&p.ID, &p.Name, &p.Contact, &p.APIKeyHash, &p.APIKeyPrefix,
		&p.Active, &p.ReviewsPerDay, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("RotateAPIKey: publisher not found")
	}
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	return &p, fullKey, nil
}

// LookupByPrefix finds a publisher by API key prefix (first 8 chars).
// Used by auth to narrow candidates before bcrypt verify.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*Publisher, error) {
	var p Publisher
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact, api_key_hash, api_key_prefix, active,
		       reviews_per_day, created_at, updated_at
		FROM publishers WHERE api_key_prefix = $1`, prefix,
	).Scan(&p.ID, &p.Name, &p.Contact, &p.APIKeyHash, &p.APIKeyPrefix,
		&p.Active, &p.ReviewsPerDay, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &p, nil
}
