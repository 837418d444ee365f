package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/liveshelf/liveshelf/models"
)

// ListOptions controls pagination and filtering for broadcast listings.
type ListOptions struct {
	Limit    int
	Offset   int
	Username string     // substring handle match when set
	Since    *time.Time // lower bound on published_at or first_seen_at
}

// broadcastOrder lists newest first, using the air date when known and the
// time we first catalogued the broadcast otherwise.
const broadcastOrder = "ORDER BY published_at DESC NULLS LAST, first_seen_at DESC"

// ListBroadcasts returns a page of broadcasts plus the total count matching
// the same filters.
func (db *DB) ListBroadcasts(ctx context.Context, opts ListOptions) ([]models.Broadcast, int, error) {
	var conditions []string
	var args []interface{}

	if opts.Username != "" {
		args = append(args, "%"+opts.Username+"%")
		conditions = append(conditions, fmt.Sprintf("x_username ILIKE $%d", len(args)))
	}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		conditions = append(conditions, fmt.Sprintf("(published_at >= $%d OR first_seen_at >= $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM broadcasts %s", where)
	if err := db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count broadcasts: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf("SELECT %s FROM broadcasts %s %s LIMIT $%d OFFSET $%d",
		broadcastColumns, where, broadcastOrder, len(args)-1, len(args))

	broadcasts, err := db.queryBroadcasts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return broadcasts, total, nil
}

// SearchBroadcasts returns broadcasts whose handle or preview text matches the
// query, or that carry a matching note body, title, or tag. A non-nil since
// restricts results to broadcasts published or first seen at or after it.
func (db *DB) SearchBroadcasts(ctx context.Context, query string, since *time.Time, limit int) ([]models.Broadcast, error) {
	args := []interface{}{"%" + query + "%"}
	sinceFilter := ""
	if since != nil {
		args = append(args, *since)
		sinceFilter = fmt.Sprintf("AND (published_at >= $%d OR first_seen_at >= $%d)", len(args), len(args))
	}
	args = append(args, limit)

	sqlQuery := fmt.Sprintf(`
		SELECT %s FROM broadcasts
		WHERE broadcast_id IN (
			SELECT broadcast_id FROM broadcasts
			WHERE x_username ILIKE $1 OR preview_title ILIKE $1 OR preview_description ILIKE $1
			UNION
			SELECT broadcast_id FROM broadcast_notes
			WHERE body ILIKE $1 OR title ILIKE $1
			   OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE $1)
		)
		%s
		%s
		LIMIT $%d`, broadcastColumns, sinceFilter, broadcastOrder, len(args))

	return db.queryBroadcasts(ctx, sqlQuery, args...)
}

// ListBroadcastsByTag returns broadcasts that have at least one note carrying
// the given tag.
func (db *DB) ListBroadcastsByTag(ctx context.Context, tag string, limit, offset int) ([]models.Broadcast, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM broadcasts b
		WHERE EXISTS (
			SELECT 1 FROM broadcast_notes n
			WHERE n.broadcast_id = b.broadcast_id AND n.tags @> $1
		)
		%s
		LIMIT $2 OFFSET $3`, broadcastColumns, broadcastOrder)

	return db.queryBroadcasts(ctx, query, pq.Array([]string{tag}), limit, offset)
}

// ListBroadcastsByUser returns broadcasts claimed by the given user.
func (db *DB) ListBroadcastsByUser(ctx context.Context, userID string, limit, offset int) ([]models.Broadcast, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM broadcasts
		WHERE added_by_user_id = $1
		%s
		LIMIT $2 OFFSET $3`, broadcastColumns, broadcastOrder)

	return db.queryBroadcasts(ctx, query, userID, limit, offset)
}

// CountBroadcasts returns the total number of catalogued broadcasts.
func (db *DB) CountBroadcasts(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM broadcasts").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count broadcasts: %w", err)
	}
	return count, nil
}

func (db *DB) queryBroadcasts(ctx context.Context, query string, args ...interface{}) ([]models.Broadcast, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcasts: %w", err)
	}
	defer rows.Close()

	broadcasts := []models.Broadcast{}
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan broadcast: %w", err)
		}
		broadcasts = append(broadcasts, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate broadcasts: %w", err)
	}
	return broadcasts, nil
}
