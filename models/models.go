package models

import "time"

// Site classifies the origin page of a broadcast preview.
type Site string

const (
	SiteX       Site = "x"
	SiteTwitter Site = "twitter"
	SiteOther   Site = "other"
	SiteUnknown Site = "unknown"
)

// FetchStatus tracks a broadcast's preview-fetch lifecycle. The empty string
// means the preview was never fetched.
type FetchStatus string

const (
	FetchStatusFetching FetchStatus = "fetching"
	FetchStatusSuccess  FetchStatus = "success"
	FetchStatusPartial  FetchStatus = "partial"
	FetchStatusFail     FetchStatus = "fail"
)

// Broadcaster claim states.
const (
	BroadcasterUnclaimed = "unclaimed"
	BroadcasterPending   = "pending"
	BroadcasterClaimed   = "claimed"
)

// Preview holds the cached OpenGraph-style metadata stored on a broadcast.
// Nullable columns map to nil pointers; an absent value is a real state, not
// an empty string.
type Preview struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	ImageURL    *string     `json:"image_url"`
	Site        Site        `json:"site,omitempty"`
	Status      FetchStatus `json:"status,omitempty"`
	FetchedAt   *time.Time  `json:"fetched_at"`
}

// PreviewResult is the outcome of a single preview fetch. Author is only
// populated when the source page exposes one; it is used for username
// detection and never persisted.
type PreviewResult struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	ImageURL    *string     `json:"image_url"`
	Site        Site        `json:"site"`
	Status      FetchStatus `json:"status"`
	Author      *string     `json:"author,omitempty"`
}

// Broadcast is a cataloged livestream archive, keyed by the opaque token
// parsed from its source URL.
type Broadcast struct {
	ID            string     `json:"id"`
	BroadcastID   string     `json:"broadcast_id"`
	BroadcastURL  string     `json:"broadcast_url"`
	XUsername     *string    `json:"x_username"`
	Source        string     `json:"source,omitempty"`
	AddedByUserID *string    `json:"added_by_user_id,omitempty"`
	FirstSeenAt   time.Time  `json:"first_seen_at"`
	LastSeenAt    time.Time  `json:"last_seen_at"`
	PublishedAt   *time.Time `json:"published_at"`
	Preview       Preview    `json:"preview"`
}

// Note is an append-only free-text annotation on a broadcast.
type Note struct {
	ID           string    `json:"id"`
	BroadcastID  string    `json:"broadcast_id"`
	AuthorUserID *string   `json:"author_user_id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"created_at"`
}

// Broadcaster is a lazily-created record for an observed username.
type Broadcaster struct {
	XUsername string    `json:"x_username"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// BroadcastWithNotes is the browse/search row shape: a broadcast plus its
// notes, attached in a single batched query.
type BroadcastWithNotes struct {
	Broadcast
	Notes []Note `json:"notes"`
}

// AddBroadcastRequest is the body of POST /api/add.
type AddBroadcastRequest struct {
	BroadcastURL string `json:"broadcast_url"`
	XUsername    string `json:"x_username,omitempty"`
	NoteBody     string `json:"note_body,omitempty"`
	Tags         string `json:"tags,omitempty"`
}

// AddBroadcastResponse is the result of POST /api/add.
type AddBroadcastResponse struct {
	Success     bool   `json:"success"`
	BroadcastID string `json:"broadcast_id,omitempty"`
	NoteSaved   bool   `json:"note_saved,omitempty"`
	Warning     string `json:"warning,omitempty"`
	Error       string `json:"error,omitempty"`
}

// AddNoteRequest is the body of POST /api/notes/add.
type AddNoteRequest struct {
	BroadcastID string `json:"broadcast_id"`
	Body        string `json:"body"`
	Tags        string `json:"tags,omitempty"`
}

// PreviewResponse is the result of GET /api/preview.
type PreviewResponse struct {
	Success bool     `json:"success"`
	Preview *Preview `json:"preview,omitempty"`
	Cached  bool     `json:"cached"`
	Error   string   `json:"error,omitempty"`
}

// String returns a pointer to s, the conventional way to populate nullable
// fields.
func String(s string) *string { return &s }
