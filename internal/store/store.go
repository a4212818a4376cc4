// Package store defines the persistence contracts for the staging and
// production collections. Two implementations exist: Postgres (production)
// and an in-memory store used by tests and dry runs. Both promote staged
// entities atomically.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/plantedhq/venuescout/internal/models"
)

// ErrNotFound is returned by Get-style methods when no record matches.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when an optimistic-concurrency check fails; the
// caller re-reads and retries.
var ErrConflict = errors.New("store: conflict")

// VenueFilter narrows venue listings. Zero fields match everything.
type VenueFilter struct {
	Status        models.VenueStatus
	Country       string
	ChainID       string
	Platform      models.PlatformTag
	MinConfidence float64
	Limit         int
	Offset        int
}

// VenueRepo persists staged venues.
type VenueRepo interface {
	Insert(ctx context.Context, v *models.DiscoveredVenue) error
	// Update rewrites the record and bumps updated_at.
	Update(ctx context.Context, v *models.DiscoveredVenue) error
	// UpdateIfUnmodified rewrites only when the stored updated_at equals
	// lastSeen, otherwise ErrConflict.
	UpdateIfUnmodified(ctx context.Context, v *models.DiscoveredVenue, lastSeen time.Time) error
	Get(ctx context.Context, id string) (*models.DiscoveredVenue, error)
	// FindByDedupeKey resolves the normalized (name, city, url) identity.
	FindByDedupeKey(ctx context.Context, key models.DedupeKey) (*models.DiscoveredVenue, error)
	// FindByNormalizedURL returns venues holding a link with this
	// normalized URL, any status.
	FindByNormalizedURL(ctx context.Context, normURL string) ([]*models.DiscoveredVenue, error)
	// List returns a page plus the unpaginated total.
	List(ctx context.Context, f VenueFilter) ([]*models.DiscoveredVenue, int, error)
	// CityVenueCounts feeds the planner's coverage snapshot.
	CityVenueCounts(ctx context.Context, country string) (map[string]int, error)
}

// DishCounts is the pre-aggregated per-venue dish summary used by sync
// preview (deliberately a single grouped query, never N+1).
type DishCounts struct {
	Total    int
	Verified int
}

// DishRepo persists staged dishes.
type DishRepo interface {
	Upsert(ctx context.Context, d *models.DiscoveredDish) error
	Update(ctx context.Context, d *models.DiscoveredDish) error
	Get(ctx context.Context, id string) (*models.DiscoveredDish, error)
	ListByVenue(ctx context.Context, venueID string) ([]*models.DiscoveredDish, error)
	ListByStatus(ctx context.Context, status models.VenueStatus) ([]*models.DiscoveredDish, error)
	CountByVenues(ctx context.Context, venueIDs []string) (map[string]DishCounts, error)
}

// StrategyRepo persists query strategies. Counter updates are commutative
// so concurrent runs need no global ordering.
type StrategyRepo interface {
	Upsert(ctx context.Context, s *models.DiscoveryStrategy) error
	Get(ctx context.Context, id string) (*models.DiscoveryStrategy, error)
	ListActive(ctx context.Context) ([]models.DiscoveryStrategy, error)
	// RecordUse increments uses, plus successes or false_positives.
	RecordUse(ctx context.Context, id string, success, falsePositive bool) error
}

// ChainRepo reads verified partner chains.
type ChainRepo interface {
	Upsert(ctx context.Context, c *models.Chain) error
	Get(ctx context.Context, id string) (*models.Chain, error)
	ListVerified(ctx context.Context) ([]models.Chain, error)
}

// BoundingBox is the prefilter window for proximity queries.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// ProductionRepo persists the publicly served projection.
type ProductionRepo interface {
	InsertVenue(ctx context.Context, v *models.ProductionVenue) error
	UpdateVenue(ctx context.Context, v *models.ProductionVenue) error
	GetVenue(ctx context.Context, id string) (*models.ProductionVenue, error)
	ListVenues(ctx context.Context, status models.ProductionStatus) ([]*models.ProductionVenue, error)
	// ListVenuesInBox is the bounding-box prefilter for /nearby.
	ListVenuesInBox(ctx context.Context, box BoundingBox) ([]*models.ProductionVenue, error)
	InsertDish(ctx context.Context, d *models.ProductionDish) error
	ListDishesByVenue(ctx context.Context, venueID string) ([]*models.ProductionDish, error)
	// SweepStaleness applies the 7d/30d aging rules and returns how many
	// venues went stale and archived.
	SweepStaleness(ctx context.Context, now time.Time) (stale, archived int, err error)
}

// ChangeLogRepo appends audit entries. Entries are never mutated.
type ChangeLogRepo interface {
	Append(ctx context.Context, e *models.ChangeLogEntry) error
	ListByDocument(ctx context.Context, collection, documentID string) ([]*models.ChangeLogEntry, error)
}

// SyncHistoryRepo records sync batches.
type SyncHistoryRepo interface {
	Append(ctx context.Context, r *models.SyncHistoryRecord) error
	List(ctx context.Context, limit int) ([]*models.SyncHistoryRecord, error)
}

// LearningRepo persists extraction learning records.
type LearningRepo interface {
	Save(ctx context.Context, r *models.LearningRecord) error
	Latest(ctx context.Context) (*models.LearningRecord, error)
}

// Store aggregates the repositories plus the transactional promotion
// primitives. Promotion creates the production record and flips the staged
// record to promoted inside one transaction.
type Store interface {
	Venues() VenueRepo
	Dishes() DishRepo
	Strategies() StrategyRepo
	Chains() ChainRepo
	Production() ProductionRepo
	ChangeLog() ChangeLogRepo
	SyncHistory() SyncHistoryRepo
	Learning() LearningRepo

	// PromoteVenue atomically inserts prod and marks staged promoted with
	// production_venue_id and promoted_at.
	PromoteVenue(ctx context.Context, staged *models.DiscoveredVenue, prod *models.ProductionVenue) error
	// PromoteDish is the dish analogue; the owning production venue must
	// already exist.
	PromoteDish(ctx context.Context, staged *models.DiscoveredDish, prod *models.ProductionDish) error

	// WithLock serializes a critical section under a named advisory lock;
	// sync execute uses it so overlapping promotions cannot interleave.
	WithLock(ctx context.Context, name string, fn func(context.Context) error) error

	Close() error
}
