package db

// postgresMigrations holds the full schema history. New schema changes are
// appended with the next version number, never edited in place.
var postgresMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_broadcasts_table",
		Up: `
			CREATE TABLE IF NOT EXISTS broadcasts (
				id TEXT PRIMARY KEY,
				broadcast_id TEXT NOT NULL UNIQUE,
				broadcast_url TEXT NOT NULL,
				x_username TEXT,
				source TEXT NOT NULL DEFAULT 'manual',
				added_by_user_id TEXT,
				first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				published_at TIMESTAMPTZ,
				preview_title TEXT,
				preview_description TEXT,
				preview_image_url TEXT,
				preview_site TEXT,
				preview_fetch_status TEXT,
				preview_fetched_at TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_broadcasts_x_username ON broadcasts(x_username);
			CREATE INDEX IF NOT EXISTS idx_broadcasts_first_seen_at ON broadcasts(first_seen_at DESC);
			CREATE INDEX IF NOT EXISTS idx_broadcasts_published_at ON broadcasts(published_at DESC);
			CREATE INDEX IF NOT EXISTS idx_broadcasts_added_by ON broadcasts(added_by_user_id);
		`,
		Down: `DROP TABLE IF EXISTS broadcasts;`,
	},
	{
		Version: 2,
		Name:    "create_broadcast_notes_table",
		Up: `
			CREATE TABLE IF NOT EXISTS broadcast_notes (
				id TEXT PRIMARY KEY,
				broadcast_id TEXT NOT NULL REFERENCES broadcasts(broadcast_id) ON DELETE CASCADE,
				author_user_id TEXT,
				title TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL,
				tags TEXT[] NOT NULL DEFAULT '{}',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_broadcast_notes_broadcast_id ON broadcast_notes(broadcast_id);
			CREATE INDEX IF NOT EXISTS idx_broadcast_notes_created_at ON broadcast_notes(created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_broadcast_notes_tags ON broadcast_notes USING GIN(tags);
		`,
		Down: `DROP TABLE IF EXISTS broadcast_notes;`,
	},
	{
		Version: 3,
		Name:    "create_broadcasters_table",
		Up: `
			CREATE TABLE IF NOT EXISTS broadcasters (
				x_username TEXT PRIMARY KEY,
				status TEXT NOT NULL DEFAULT 'unclaimed',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
		Down: `DROP TABLE IF EXISTS broadcasters;`,
	},
}
