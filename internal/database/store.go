package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveToken upserts the persisted Imgur token pair.
	SaveToken(ctx context.Context, accessToken, refreshToken string) error

	// GetToken retrieves the persisted Imgur token pair. Returns nil, nil if
	// no pair has been saved yet.
	GetToken(ctx context.Context) (*ImgurToken, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveToken upserts the single token row.
func (s *sqlxStore) SaveToken(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" || refreshToken == "" {
		return fmt.Errorf("cannot save empty token pair")
	}

	query := `
		INSERT INTO imgur_tokens (id, access_token, refresh_token, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, accessToken, refreshToken, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save token pair: %w", err)
	}

	s.logger.DebugContext(ctx, "token pair saved")
	return nil
}

// GetToken retrieves the single token row, or nil if none exists.
func (s *sqlxStore) GetToken(ctx context.Context) (*ImgurToken, error) {
	var token ImgurToken
	err := s.db.GetContext(ctx, &token,
		`SELECT id, access_token, refresh_token, updated_at FROM imgur_tokens WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token pair: %w", err)
	}
	return &token, nil
}
