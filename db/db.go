package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/liveshelf/liveshelf/models"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate record")

// DB wraps the database connection and provides data access methods
type DB struct {
	conn *sql.DB
}

// Config contains database configuration
type Config struct {
	DSN string // PostgreSQL connection string
}

// New creates a new database connection and runs pending migrations
func New(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

const broadcastColumns = `id, broadcast_id, broadcast_url, x_username, source, added_by_user_id,
	first_seen_at, last_seen_at, published_at,
	preview_title, preview_description, preview_image_url, preview_site, preview_fetch_status, preview_fetched_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBroadcast(row rowScanner) (*models.Broadcast, error) {
	var b models.Broadcast
	var xUsername, addedBy sql.NullString
	var publishedAt, fetchedAt sql.NullTime
	var title, description, imageURL, site, status sql.NullString

	err := row.Scan(
		&b.ID, &b.BroadcastID, &b.BroadcastURL, &xUsername, &b.Source, &addedBy,
		&b.FirstSeenAt, &b.LastSeenAt, &publishedAt,
		&title, &description, &imageURL, &site, &status, &fetchedAt,
	)
	if err != nil {
		return nil, err
	}

	if xUsername.Valid {
		b.XUsername = &xUsername.String
	}
	if addedBy.Valid {
		b.AddedByUserID = &addedBy.String
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		b.PublishedAt = &t
	}
	if title.Valid {
		b.Preview.Title = &title.String
	}
	if description.Valid {
		b.Preview.Description = &description.String
	}
	if imageURL.Valid {
		b.Preview.ImageURL = &imageURL.String
	}
	if site.Valid {
		b.Preview.Site = models.Site(site.String)
	}
	if status.Valid {
		b.Preview.Status = models.FetchStatus(status.String)
	}
	if fetchedAt.Valid {
		t := fetchedAt.Time
		b.Preview.FetchedAt = &t
	}

	return &b, nil
}

// GetBroadcastByBroadcastID retrieves a broadcast by its platform identifier.
// Returns nil (not an error) if no broadcast exists with the given ID.
func (db *DB) GetBroadcastByBroadcastID(ctx context.Context, broadcastID string) (*models.Broadcast, error) {
	query := fmt.Sprintf("SELECT %s FROM broadcasts WHERE broadcast_id = $1", broadcastColumns)

	b, err := scanBroadcast(db.conn.QueryRowContext(ctx, query, broadcastID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast: %w", err)
	}
	return b, nil
}

// InsertBroadcast inserts a new broadcast record. Returns ErrDuplicate if a
// record for the same broadcast ID already exists.
func (db *DB) InsertBroadcast(ctx context.Context, b *models.Broadcast) error {
	query := `
		INSERT INTO broadcasts (
			id, broadcast_id, broadcast_url, x_username, source, added_by_user_id,
			first_seen_at, last_seen_at, published_at,
			preview_title, preview_description, preview_image_url, preview_site, preview_fetch_status, preview_fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := db.conn.ExecContext(ctx, query,
		b.ID, b.BroadcastID, b.BroadcastURL, b.XUsername, b.Source, b.AddedByUserID,
		b.FirstSeenAt, b.LastSeenAt, b.PublishedAt,
		b.Preview.Title, b.Preview.Description, b.Preview.ImageURL,
		nullIfEmpty(string(b.Preview.Site)), nullIfEmpty(string(b.Preview.Status)), b.Preview.FetchedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert broadcast: %w", err)
	}
	return nil
}

// ClaimBroadcast attributes an unclaimed broadcast to a user. The conditional
// update means only one concurrent caller can win the claim; the returned bool
// reports whether this caller did. A non-nil username replaces the stored
// handle.
func (db *DB) ClaimBroadcast(ctx context.Context, broadcastID, userID string, username *string, now time.Time) (bool, error) {
	query := `
		UPDATE broadcasts
		SET added_by_user_id = $1,
		    x_username = COALESCE($2, x_username),
		    last_seen_at = $3
		WHERE broadcast_id = $4 AND added_by_user_id IS NULL`

	res, err := db.conn.ExecContext(ctx, query, userID, username, now, broadcastID)
	if err != nil {
		return false, fmt.Errorf("failed to claim broadcast: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return affected > 0, nil
}

// MarkPreviewFetching records the start of a preview fetch so concurrent
// requests back off until the lease expires.
func (db *DB) MarkPreviewFetching(ctx context.Context, broadcastID string, now time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE broadcasts SET preview_fetch_status = $1, preview_fetched_at = $2 WHERE broadcast_id = $3",
		string(models.FetchStatusFetching), now, broadcastID)
	if err != nil {
		return fmt.Errorf("failed to mark preview fetching: %w", err)
	}
	return nil
}

// UpdatePreview stores the outcome of a preview fetch.
func (db *DB) UpdatePreview(ctx context.Context, broadcastID string, p models.Preview) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE broadcasts
		SET preview_title = $1,
		    preview_description = $2,
		    preview_image_url = $3,
		    preview_site = $4,
		    preview_fetch_status = $5,
		    preview_fetched_at = $6
		WHERE broadcast_id = $7`,
		p.Title, p.Description, p.ImageURL,
		nullIfEmpty(string(p.Site)), nullIfEmpty(string(p.Status)), p.FetchedAt,
		broadcastID)
	if err != nil {
		return fmt.Errorf("failed to update preview: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
