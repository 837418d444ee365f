package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/liveshelf/liveshelf/models"
)

// EnsureBroadcaster records a broadcaster handle if it is not already known.
// Existing rows are left untouched.
func (db *DB) EnsureBroadcaster(ctx context.Context, username string, now time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO broadcasters (x_username, status, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (x_username) DO NOTHING`,
		username, models.BroadcasterUnclaimed, now)
	if err != nil {
		return fmt.Errorf("failed to ensure broadcaster: %w", err)
	}
	return nil
}

// GetBroadcaster retrieves a broadcaster by handle. Returns nil if unknown.
func (db *DB) GetBroadcaster(ctx context.Context, username string) (*models.Broadcaster, error) {
	var b models.Broadcaster
	err := db.conn.QueryRowContext(ctx,
		"SELECT x_username, status, created_at FROM broadcasters WHERE x_username = $1",
		username).Scan(&b.XUsername, &b.Status, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcaster: %w", err)
	}
	return &b, nil
}

// SearchBroadcasters returns broadcasters whose handle matches the query
// prefix, most recently seen first.
func (db *DB) SearchBroadcasters(ctx context.Context, query string, limit int) ([]models.Broadcaster, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT x_username, status, created_at
		FROM broadcasters
		WHERE x_username ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2`, query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search broadcasters: %w", err)
	}
	defer rows.Close()

	broadcasters := []models.Broadcaster{}
	for rows.Next() {
		var b models.Broadcaster
		if err := rows.Scan(&b.XUsername, &b.Status, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan broadcaster: %w", err)
		}
		broadcasters = append(broadcasters, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate broadcasters: %w", err)
	}
	return broadcasters, nil
}
