// Package ingest implements the broadcast cataloguing workflow: URL
// validation, claim/create with preview fetch, username detection, and note
// attachment with duplicate suppression.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	liveshelf "github.com/liveshelf/liveshelf"
	"github.com/liveshelf/liveshelf/broadcast"
	"github.com/liveshelf/liveshelf/db"
	"github.com/liveshelf/liveshelf/models"
)

// Sentinel errors surfaced to the API layer. Everything else coming out of
// the service is an internal error.
var (
	ErrInvalidURL        = errors.New("invalid broadcast URL")
	ErrUsernameRequired  = errors.New("could not detect username")
	ErrBroadcastNotFound = errors.New("broadcast not found")
	ErrDuplicateNote     = errors.New("duplicate note")
	ErrNoteBodyRequired  = errors.New("note body is required")
)

// DuplicateNoteWindow is how long an identical note body on the same
// broadcast is treated as an accidental resubmit.
const DuplicateNoteWindow = 60 * time.Second

// Store is the persistence surface the ingestion workflow needs.
type Store interface {
	GetBroadcastByBroadcastID(ctx context.Context, broadcastID string) (*models.Broadcast, error)
	InsertBroadcast(ctx context.Context, b *models.Broadcast) error
	ClaimBroadcast(ctx context.Context, broadcastID, userID string, username *string, now time.Time) (bool, error)
	MarkPreviewFetching(ctx context.Context, broadcastID string, now time.Time) error
	UpdatePreview(ctx context.Context, broadcastID string, p models.Preview) error
	EnsureBroadcaster(ctx context.Context, username string, now time.Time) error
	InsertNote(ctx context.Context, n *models.Note) error
	HasRecentDuplicateNote(ctx context.Context, broadcastID, body string, since time.Time) (bool, error)
}

// PreviewFetcher produces preview metadata for a broadcast URL. It is total:
// an unreachable page yields a fail-status result, not an error.
type PreviewFetcher interface {
	Fetch(ctx context.Context, targetURL string) models.PreviewResult
}

// Service coordinates the ingestion workflow on top of a Store and a
// PreviewFetcher.
type Service struct {
	store   Store
	fetcher PreviewFetcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates an ingestion service.
func NewService(store Store, fetcher PreviewFetcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
}

// AddResult is the outcome of AddBroadcast. NoteSaved is true unless a note
// was requested and could not be stored; Warning carries that non-fatal
// failure.
type AddResult struct {
	BroadcastID string
	NoteSaved   bool
	Warning     string
}

// AddBroadcast shelves a broadcast for a user: it claims the existing record
// if one exists and is unowned, or creates a new record after fetching its
// preview and resolving the broadcaster's username. An optional note is
// attached afterwards; a note failure downgrades to a warning because the
// claim or creation has already succeeded.
func (s *Service) AddBroadcast(ctx context.Context, userID string, req models.AddBroadcastRequest) (*AddResult, error) {
	broadcastID := broadcast.ExtractID(req.BroadcastURL)
	if broadcastID == "" {
		return nil, ErrInvalidURL
	}
	canonicalURL := broadcast.CanonicalURL(broadcastID)
	hint := broadcast.NormalizeUsername(req.XUsername)
	now := s.now().UTC()

	existing, err := s.store.GetBroadcastByBroadcastID(ctx, broadcastID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up broadcast: %w", err)
	}

	var username string
	if existing != nil {
		username, err = s.claimExisting(ctx, existing, userID, hint, now)
	} else {
		username, err = s.createBroadcast(ctx, broadcastID, canonicalURL, userID, hint, now)
	}
	if err != nil {
		return nil, err
	}

	if username != "" {
		if err := s.store.EnsureBroadcaster(ctx, username, now); err != nil {
			s.logger.Warn("failed to record broadcaster", "username", username, "error", err)
		}
	}

	result := &AddResult{BroadcastID: broadcastID, NoteSaved: true}

	body := strings.TrimSpace(req.NoteBody)
	if body != "" || strings.TrimSpace(req.Tags) != "" {
		result.NoteSaved = false
		note := &models.Note{
			ID:           uuid.New().String(),
			BroadcastID:  broadcastID,
			AuthorUserID: nullable(userID),
			Body:         body,
			Tags:         broadcast.ParseTags(req.Tags),
			CreatedAt:    now,
		}
		if err := s.store.InsertNote(ctx, note); err != nil {
			s.logger.Warn("broadcast saved but note insert failed",
				"broadcast_id", broadcastID, "error", err)
			result.Warning = "broadcast saved, but the note could not be saved"
		} else {
			result.NoteSaved = true
		}
	}

	return result, nil
}

// claimExisting attributes an already-catalogued broadcast to the user. A
// lost claim race is not an error: the broadcast is on someone's shelf either
// way, and the caller's notes still attach. A supplied username hint takes
// precedence over whatever the record already carries.
func (s *Service) claimExisting(ctx context.Context, existing *models.Broadcast, userID, hint string, now time.Time) (string, error) {
	if _, err := s.store.ClaimBroadcast(ctx, existing.BroadcastID, userID, nullable(hint), now); err != nil {
		return "", fmt.Errorf("failed to claim broadcast: %w", err)
	}

	if hint != "" {
		return hint, nil
	}
	if existing.XUsername != nil {
		return *existing.XUsername, nil
	}
	return "", nil
}

// createBroadcast fetches the preview, resolves the broadcaster's username
// (hint, then preview title, then page author), and inserts the record. When
// no username can be resolved the record is not created.
func (s *Service) createBroadcast(ctx context.Context, broadcastID, canonicalURL, userID, hint string, now time.Time) (string, error) {
	preview := s.fetcher.Fetch(ctx, canonicalURL)

	username := hint
	if username == "" && preview.Title != nil {
		username = broadcast.UsernameFromText(*preview.Title)
	}
	if username == "" && preview.Author != nil {
		username = broadcast.UsernameFromText(*preview.Author)
	}
	if username == "" {
		return "", ErrUsernameRequired
	}

	fetchedAt := now
	b := &models.Broadcast{
		ID:            uuid.New().String(),
		BroadcastID:   broadcastID,
		BroadcastURL:  canonicalURL,
		XUsername:     &username,
		Source:        "manual",
		AddedByUserID: nullable(userID),
		FirstSeenAt:   now,
		LastSeenAt:    now,
		Preview: models.Preview{
			Title:       preview.Title,
			Description: preview.Description,
			ImageURL:    preview.ImageURL,
			Site:        preview.Site,
			Status:      preview.Status,
			FetchedAt:   &fetchedAt,
		},
	}

	err := s.store.InsertBroadcast(ctx, b)
	if err == nil {
		return username, nil
	}
	if !errors.Is(err, db.ErrDuplicate) {
		return "", fmt.Errorf("failed to insert broadcast: %w", err)
	}

	// Another request created the record between our read and insert. Fall
	// back to the claim path against the fresh row.
	fresh, rerr := s.store.GetBroadcastByBroadcastID(ctx, broadcastID)
	if rerr != nil {
		return "", fmt.Errorf("failed to re-read broadcast after duplicate insert: %w", rerr)
	}
	if fresh == nil {
		return "", fmt.Errorf("broadcast vanished after duplicate insert: %w", err)
	}
	return s.claimExisting(ctx, fresh, userID, hint, now)
}

// AddNote attaches a note to an existing broadcast. An identical body posted
// to the same broadcast within DuplicateNoteWindow is rejected as an
// accidental resubmit.
func (s *Service) AddNote(ctx context.Context, userID string, req models.AddNoteRequest) (*models.Note, error) {
	if req.BroadcastID == "" {
		return nil, ErrBroadcastNotFound
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, ErrNoteBodyRequired
	}

	existing, err := s.store.GetBroadcastByBroadcastID(ctx, req.BroadcastID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up broadcast: %w", err)
	}
	if existing == nil {
		return nil, ErrBroadcastNotFound
	}

	now := s.now().UTC()
	// The duplicate check is advisory: a failed read must not block a
	// legitimate note.
	dup, err := s.store.HasRecentDuplicateNote(ctx, req.BroadcastID, body, now.Add(-DuplicateNoteWindow))
	if err != nil {
		s.logger.Warn("duplicate note check failed", "broadcast_id", req.BroadcastID, "error", err)
	} else if dup {
		return nil, ErrDuplicateNote
	}

	note := &models.Note{
		ID:           uuid.New().String(),
		BroadcastID:  req.BroadcastID,
		AuthorUserID: nullable(userID),
		Body:         body,
		Tags:         broadcast.ParseTags(req.Tags),
		CreatedAt:    now,
	}
	if err := s.store.InsertNote(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to insert note: %w", err)
	}
	return note, nil
}

// GetOrRefreshPreview returns the stored preview for a broadcast, fetching a
// fresh one first when the freshness policy says the stored state is stale.
// The returned bool reports whether the stored preview was served as-is.
func (s *Service) GetOrRefreshPreview(ctx context.Context, broadcastID string) (*models.Preview, bool, error) {
	b, err := s.store.GetBroadcastByBroadcastID(ctx, broadcastID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up broadcast: %w", err)
	}
	if b == nil {
		return nil, false, ErrBroadcastNotFound
	}

	now := s.now().UTC()
	if !liveshelf.ShouldRetryFetch(b.Preview.Status, b.Preview.FetchedAt, now) {
		return &b.Preview, true, nil
	}

	if err := s.store.MarkPreviewFetching(ctx, broadcastID, now); err != nil {
		return nil, false, fmt.Errorf("failed to mark preview fetching: %w", err)
	}

	result := s.fetcher.Fetch(ctx, b.BroadcastURL)
	fetchedAt := s.now().UTC()
	preview := models.Preview{
		Title:       result.Title,
		Description: result.Description,
		ImageURL:    result.ImageURL,
		Site:        result.Site,
		Status:      result.Status,
		FetchedAt:   &fetchedAt,
	}
	if err := s.store.UpdatePreview(ctx, broadcastID, preview); err != nil {
		return nil, false, fmt.Errorf("failed to store preview: %w", err)
	}

	return &preview, false, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
