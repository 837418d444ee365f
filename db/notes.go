package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/liveshelf/liveshelf/models"
)

// InsertNote inserts a note attached to a broadcast.
func (db *DB) InsertNote(ctx context.Context, n *models.Note) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO broadcast_notes (id, broadcast_id, author_user_id, title, body, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.BroadcastID, n.AuthorUserID, n.Title, n.Body, pq.Array(n.Tags), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// HasRecentDuplicateNote reports whether a note with an identical body was
// attached to the broadcast at or after the given cutoff.
func (db *DB) HasRecentDuplicateNote(ctx context.Context, broadcastID, body string, since time.Time) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM broadcast_notes
			WHERE broadcast_id = $1 AND body = $2 AND created_at >= $3
		)`, broadcastID, body, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate note: %w", err)
	}
	return exists, nil
}

// ListNotesByBroadcastIDs fetches the notes for a batch of broadcasts in a
// single query, keyed by broadcast ID. Notes are ordered newest first.
func (db *DB) ListNotesByBroadcastIDs(ctx context.Context, broadcastIDs []string) (map[string][]models.Note, error) {
	notes := make(map[string][]models.Note, len(broadcastIDs))
	if len(broadcastIDs) == 0 {
		return notes, nil
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, broadcast_id, author_user_id, title, body, tags, created_at
		FROM broadcast_notes
		WHERE broadcast_id = ANY($1)
		ORDER BY created_at DESC`, pq.Array(broadcastIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes[n.BroadcastID] = append(notes[n.BroadcastID], *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

func scanNote(row rowScanner) (*models.Note, error) {
	var n models.Note
	var author *string
	if err := row.Scan(&n.ID, &n.BroadcastID, &author, &n.Title, &n.Body, pq.Array(&n.Tags), &n.CreatedAt); err != nil {
		return nil, err
	}
	n.AuthorUserID = author
	if n.Tags == nil {
		n.Tags = []string{}
	}
	return &n, nil
}
