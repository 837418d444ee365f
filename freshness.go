package liveshelf

import (
	"time"

	"github.com/liveshelf/liveshelf/models"
)

const (
	// FetchingLease is how long an in-flight fetch marker is honored before
	// it is treated as abandoned. It is a lease, not a lock: concurrent
	// requests may still fetch redundantly, which is accepted as a
	// bounded-cost race.
	FetchingLease = 5 * time.Minute

	// FailRetryAfter is the backoff before a failed fetch is retried.
	FailRetryAfter = 24 * time.Hour
)

// ShouldRetryFetch reports whether a preview refetch is owed for a broadcast
// given its stored fetch status and timestamp. Pure in (status, fetchedAt,
// now); used both as the read-path cache check and to gate launching a
// refetch.
//
//   - never fetched (empty status or no timestamp): retry
//   - fetching: retry only once the lease has expired
//   - fail: retry only after the backoff window
//   - success or partial: never (metadata is assumed stable)
func ShouldRetryFetch(status models.FetchStatus, fetchedAt *time.Time, now time.Time) bool {
	if status == "" || fetchedAt == nil {
		return true
	}

	elapsed := now.Sub(*fetchedAt)

	switch status {
	case models.FetchStatusFetching:
		return elapsed > FetchingLease
	case models.FetchStatusFail:
		return elapsed > FailRetryAfter
	}

	return false
}
