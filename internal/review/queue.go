package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/logging"
	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/store"
)

// Queue exposes the human review operations. Every mutation takes the
// caller's last-seen update timestamp; a mismatch surfaces as
// store.ErrConflict and the caller re-reads and retries.
type Queue struct {
	st  store.Store
	log zerolog.Logger
	now func() time.Time
}

// NewQueue builds a review queue over the store.
func NewQueue(st store.Store) *Queue {
	return &Queue{st: st, log: logging.Component("review-queue"), now: time.Now}
}

// WithClock overrides the queue clock, for tests.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// PendingFilter narrows the pending listing.
type PendingFilter struct {
	Country       string
	Platform      models.PlatformTag
	ChainID       string
	MinConfidence float64
	Limit         int
	Offset        int
}

// ListPending returns the page of venues awaiting review plus the
// unpaginated total.
func (q *Queue) ListPending(ctx context.Context, f PendingFilter) ([]*models.DiscoveredVenue, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return q.st.Venues().List(ctx, store.VenueFilter{
		Status:        models.VenueDiscovered,
		Country:       f.Country,
		Platform:      f.Platform,
		ChainID:       f.ChainID,
		MinConfidence: f.MinConfidence,
		Limit:         f.Limit,
		Offset:        f.Offset,
	})
}

// Approve marks the venue verified. lastSeen is the venue's updated_at
// the operator last read.
func (q *Queue) Approve(ctx context.Context, venueID string, lastSeen time.Time, actor string) error {
	venue, err := q.st.Venues().Get(ctx, venueID)
	if err != nil {
		return err
	}
	before := venue.Status
	venue.Status = models.VenueVerified
	if err := q.st.Venues().UpdateIfUnmodified(ctx, venue, lastSeen); err != nil {
		return err
	}
	return q.appendLog(ctx, venueID, models.ActionVerified, actor, []models.FieldChange{
		{Field: "status", Before: string(before), After: string(venue.Status)},
	})
}

// ApproveBatch approves each venue independently; failures are collected
// and do not stop the batch.
func (q *Queue) ApproveBatch(ctx context.Context, venueIDs []string, lastSeen map[string]time.Time, actor string) error {
	var errs error
	for _, id := range venueIDs {
		if err := q.Approve(ctx, id, lastSeen[id], actor); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// PartialApprove verifies the venue and the selected subset of its
// dishes; unselected pending dishes stay discovered. feedback, when set,
// is recorded on the change-log entry.
func (q *Queue) PartialApprove(ctx context.Context, venueID string, dishIDs []string, feedback string, lastSeen time.Time, actor string) error {
	venue, err := q.st.Venues().Get(ctx, venueID)
	if err != nil {
		return err
	}
	before := venue.Status
	venue.Status = models.VenueVerified
	if err := q.st.Venues().UpdateIfUnmodified(ctx, venue, lastSeen); err != nil {
		return err
	}

	selected := make(map[string]bool, len(dishIDs))
	for _, id := range dishIDs {
		selected[id] = true
	}
	dishes, err := q.st.Dishes().ListByVenue(ctx, venueID)
	if err != nil {
		return err
	}
	approved := 0
	for _, d := range dishes {
		if !selected[d.ID] || d.Status != models.VenueDiscovered {
			continue
		}
		d.Status = models.VenueVerified
		if err := q.st.Dishes().Update(ctx, d); err != nil {
			return err
		}
		approved++
	}

	changes := []models.FieldChange{
		{Field: "status", Before: string(before), After: string(venue.Status)},
		{Field: "approved_dishes", After: approved},
	}
	if feedback != "" {
		changes = append(changes, models.FieldChange{Field: "feedback", After: feedback})
	}
	return q.appendLog(ctx, venueID, models.ActionVerified, actor, changes)
}

// Reject marks the venue rejected; the reason is required. Staged dishes
// of the venue are rejected with it.
func (q *Queue) Reject(ctx context.Context, venueID, reason string, lastSeen time.Time, actor string) error {
	if reason == "" {
		return engine.Errorf(engine.KindConfig, "review.reject", "rejection reason is required")
	}
	venue, err := q.st.Venues().Get(ctx, venueID)
	if err != nil {
		return err
	}
	before := venue.Status
	venue.Status = models.VenueRejected
	venue.RejectionReason = &reason
	if err := q.st.Venues().UpdateIfUnmodified(ctx, venue, lastSeen); err != nil {
		return err
	}
	if err := rejectDishes(ctx, q.st, venueID); err != nil {
		return err
	}
	return q.appendLog(ctx, venueID, models.ActionRejected, actor, []models.FieldChange{
		{Field: "status", Before: string(before), After: string(venue.Status)},
		{Field: "rejection_reason", After: reason},
	})
}

// BulkReject rejects every venue with the shared reason. Per-venue
// failures are collected and do not stop the batch.
func (q *Queue) BulkReject(ctx context.Context, venueIDs []string, reason string, actor string) error {
	if reason == "" {
		return engine.Errorf(engine.KindConfig, "review.reject", "rejection reason is required")
	}
	var errs error
	for _, id := range venueIDs {
		venue, err := q.st.Venues().Get(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := q.Reject(ctx, id, reason, venue.UpdatedAt, actor); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (q *Queue) appendLog(ctx context.Context, venueID string, action models.ChangeAction, actor string, changes []models.FieldChange) error {
	return q.st.ChangeLog().Append(ctx, &models.ChangeLogEntry{
		ID:         uuid.NewString(),
		Timestamp:  q.now().UTC(),
		Action:     action,
		Collection: "discovered_venues",
		DocumentID: venueID,
		Changes:    changes,
		Source:     models.SourceManual,
		ActorID:    actor,
	})
}
