package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/songdesk/internal/shared"
)

// ProviderSession is the identity provider's persisted principal and its OAuth2 grant.
type ProviderSession struct {
	ID           string
	UID          string
	Email        string
	AccessToken  string
	TokenType    string
	RefreshToken string
	Expiry       time.Time
	CreatedAt    time.Time
}

// ProviderSessionRepository stores at most one provider session, the signed-in principal.
type ProviderSessionRepository struct {
	db *sql.DB
}

// NewProviderSessionRepository creates a new [ProviderSessionRepository] with the given database connection
func NewProviderSessionRepository(db *sql.DB) *ProviderSessionRepository {
	return &ProviderSessionRepository{db: db}
}

// Save replaces any stored session with s, generating an ID if s has none.
func (r *ProviderSessionRepository) Save(s *ProviderSession) error {
	if s.UID == "" {
		return fmt.Errorf("%w: provider session uid is required", shared.ErrInvalidInput)
	}
	if s.ID == "" {
		s.ID = shared.GenerateID()
	}
	if s.TokenType == "" {
		s.TokenType = "Bearer"
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM provider_sessions"); err != nil {
		return fmt.Errorf("failed to clear provider sessions: %w", err)
	}

	query := `
		INSERT INTO provider_sessions (id, uid, email, access_token, token_type, refresh_token, expiry, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var expiry any
	if !s.Expiry.IsZero() {
		expiry = s.Expiry
	}

	if _, err := tx.Exec(query, s.ID, s.UID, s.Email, s.AccessToken, s.TokenType, s.RefreshToken, expiry, s.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert provider session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit provider session: %w", err)
	}
	return nil
}

// Current returns the stored session, or [ErrNotFound].
func (r *ProviderSessionRepository) Current() (*ProviderSession, error) {
	query := `
		SELECT id, uid, email, access_token, token_type, refresh_token, expiry, created_at
		FROM provider_sessions
		ORDER BY created_at DESC
		LIMIT 1
	`

	var (
		s      ProviderSession
		expiry sql.NullTime
	)

	err := r.db.QueryRow(query).Scan(&s.ID, &s.UID, &s.Email, &s.AccessToken, &s.TokenType, &s.RefreshToken, &expiry, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query provider session: %w", err)
	}

	if expiry.Valid {
		s.Expiry = expiry.Time
	}
	return &s, nil
}

// Clear removes the stored session.
func (r *ProviderSessionRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM provider_sessions"); err != nil {
		return fmt.Errorf("failed to clear provider sessions: %w", err)
	}
	return nil
}
