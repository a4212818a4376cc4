// Package syncer diffs staging against production and promotes approved
// records. Preview is read-only; execute runs under a named advisory lock
// and collects per-entity failures without aborting the batch.
package syncer

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/logging"
	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/store"
)

// LockName serializes concurrent sync executes.
const LockName = "sync-execute"

// VenueAddition is one pending venue promotion in a preview.
type VenueAddition struct {
	VenueID      string `json:"venue_id"`
	Name         string `json:"name"`
	City         string `json:"city"`
	Country      string `json:"country"`
	DishTotal    int    `json:"dish_total"`
	DishVerified int    `json:"dish_verified"`
}

// VenueUpdate is a promoted venue whose staged record has drifted from
// its production projection.
type VenueUpdate struct {
	VenueID       string   `json:"venue_id"`
	ProductionID  string   `json:"production_id"`
	ChangedFields []string `json:"changed_fields"`
}

// RemovalCandidate is a production venue not verified for over 30 days.
type RemovalCandidate struct {
	ProductionID string    `json:"production_id"`
	Name         string    `json:"name"`
	LastVerified time.Time `json:"last_verified"`
}

// Preview is the staged-vs-production diff.
type Preview struct {
	Additions []VenueAddition    `json:"additions"`
	Updates   []VenueUpdate      `json:"updates"`
	Removals  []RemovalCandidate `json:"removals"`
	// DishAdditions counts verified dishes pending promotion.
	DishAdditions int `json:"dish_additions"`
}

// Selection names the entities one execute run promotes.
type Selection struct {
	VenueIDs []string
	DishIDs  []string
	SyncAll  bool
}

// Syncer owns preview and execute.
type Syncer struct {
	st  store.Store
	log zerolog.Logger
	now func() time.Time
}

// New builds a syncer over the store.
func New(st store.Store) *Syncer {
	return &Syncer{st: st, log: logging.Component("syncer"), now: time.Now}
}

// WithClock overrides the syncer clock, for tests.
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// PreviewSync diffs staging against production. Dish counts for the
// additions come from one aggregated query, never per-venue lookups.
func (s *Syncer) PreviewSync(ctx context.Context) (*Preview, error) {
	verified, _, err := s.st.Venues().List(ctx, store.VenueFilter{Status: models.VenueVerified})
	if err != nil {
		return nil, engine.E(engine.KindFatal, "sync.preview", err)
	}

	pending := lo.Filter(verified, func(v *models.DiscoveredVenue, _ int) bool {
		return v.ProductionID == nil
	})
	counts, err := s.st.Dishes().CountByVenues(ctx, lo.Map(pending, func(v *models.DiscoveredVenue, _ int) string {
		return v.ID
	}))
	if err != nil {
		return nil, engine.E(engine.KindFatal, "sync.preview", err)
	}

	p := &Preview{}
	for _, v := range pending {
		c := counts[v.ID]
		p.Additions = append(p.Additions, VenueAddition{
			VenueID:      v.ID,
			Name:         v.Name,
			City:         v.Address.City,
			Country:      v.Address.Country,
			DishTotal:    c.Total,
			DishVerified: c.Verified,
		})
	}
	sort.Slice(p.Additions, func(i, j int) bool { return p.Additions[i].VenueID < p.Additions[j].VenueID })

	// Drifted promoted venues become updates.
	promoted, _, err := s.st.Venues().List(ctx, store.VenueFilter{Status: models.VenuePromoted})
	if err != nil {
		return nil, engine.E(engine.KindFatal, "sync.preview", err)
	}
	for _, v := range promoted {
		if v.ProductionID == nil {
			continue
		}
		prod, err := s.st.Production().GetVenue(ctx, *v.ProductionID)
		if err != nil {
			continue
		}
		if changed := changedVenueFields(v, prod); len(changed) > 0 {
			p.Updates = append(p.Updates, VenueUpdate{
				VenueID:       v.ID,
				ProductionID:  prod.ID,
				ChangedFields: changed,
			})
		}
	}
	sort.Slice(p.Updates, func(i, j int) bool { return p.Updates[i].VenueID < p.Updates[j].VenueID })

	// Production venues overdue for verification are removal candidates.
	active, err := s.st.Production().ListVenues(ctx, "")
	if err != nil {
		return nil, engine.E(engine.KindFatal, "sync.preview", err)
	}
	cutoff := s.now().Add(-models.ArchiveAfter)
	for _, v := range active {
		if v.Status != models.ProductionArchived && v.LastVerified.Before(cutoff) {
			p.Removals = append(p.Removals, RemovalCandidate{
				ProductionID: v.ID,
				Name:         v.Name,
				LastVerified: v.LastVerified,
			})
		}
	}
	sort.Slice(p.Removals, func(i, j int) bool { return p.Removals[i].ProductionID < p.Removals[j].ProductionID })

	verifiedDishes, err := s.st.Dishes().ListByStatus(ctx, models.VenueVerified)
	if err != nil {
		return nil, engine.E(engine.KindFatal, "sync.preview", err)
	}
	p.DishAdditions = len(verifiedDishes)
	return p, nil
}

// Execute promotes the selected entities under the sync advisory lock.
// Per-entity failures are collected into the returned history record;
// the batch never aborts on them.
func (s *Syncer) Execute(ctx context.Context, sel Selection, actor string) (*models.SyncHistoryRecord, error) {
	rec := &models.SyncHistoryRecord{
		ID:        uuid.NewString(),
		Timestamp: s.now().UTC(),
		ActorID:   actor,
	}

	err := s.st.WithLock(ctx, LockName, func(ctx context.Context) error {
		venueIDs, dishIDs, err := s.resolveSelection(ctx, sel)
		if err != nil {
			return err
		}

		for _, id := range venueIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.promoteVenue(ctx, id, actor, rec); err != nil {
				rec.Failed++
				rec.Errors = append(rec.Errors, models.SyncEntityError{
					EntityID: id, Kind: "venue", Message: err.Error(),
				})
			}
		}
		for _, id := range dishIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.promoteDish(ctx, id, rec); err != nil {
				rec.Failed++
				rec.Errors = append(rec.Errors, models.SyncEntityError{
					EntityID: id, Kind: "dish", Message: err.Error(),
				})
			}
		}
		return nil
	})
	if err != nil {
		return rec, err
	}

	if err := s.st.SyncHistory().Append(ctx, rec); err != nil {
		return rec, engine.E(engine.KindFatal, "sync.execute", err)
	}
	s.log.Info().Int("added", rec.Added).Int("updated", rec.Updated).
		Int("failed", rec.Failed).Str("actor", actor).Msg("sync batch complete")
	return rec, nil
}

// resolveSelection expands sync_all into the concrete id sets and sorts
// both so concurrent operators promote in one stable order.
func (s *Syncer) resolveSelection(ctx context.Context, sel Selection) (venueIDs, dishIDs []string, err error) {
	if sel.SyncAll {
		venues, _, err := s.st.Venues().List(ctx, store.VenueFilter{Status: models.VenueVerified})
		if err != nil {
			return nil, nil, engine.E(engine.KindFatal, "sync.execute", err)
		}
		for _, v := range venues {
			if v.ProductionID == nil {
				venueIDs = append(venueIDs, v.ID)
			}
		}
		dishes, err := s.st.Dishes().ListByStatus(ctx, models.VenueVerified)
		if err != nil {
			return nil, nil, engine.E(engine.KindFatal, "sync.execute", err)
		}
		dishIDs = lo.Map(dishes, func(d *models.DiscoveredDish, _ int) string { return d.ID })
	} else {
		venueIDs = append(venueIDs, sel.VenueIDs...)
		dishIDs = append(dishIDs, sel.DishIDs...)
	}
	sort.Strings(venueIDs)
	sort.Strings(dishIDs)
	return venueIDs, dishIDs, nil
}

func (s *Syncer) promoteVenue(ctx context.Context, id, actor string, rec *models.SyncHistoryRecord) error {
	staged, err := s.st.Venues().Get(ctx, id)
	if err != nil {
		return err
	}

	// Already-promoted venues get the update path: refresh the production
	// projection and bump last_verified.
	if staged.ProductionID != nil {
		prod, err := s.st.Production().GetVenue(ctx, *staged.ProductionID)
		if err != nil {
			return err
		}
		changed := changedVenueFields(staged, prod)
		applyVenueProjection(staged, prod)
		prod.LastVerified = s.now().UTC()
		if prod.Status == models.ProductionStale {
			prod.Status = models.ProductionActive
		}
		if err := s.st.Production().UpdateVenue(ctx, prod); err != nil {
			return err
		}
		rec.Updated++
		if len(changed) > 0 {
			return s.appendChangeLog(ctx, "production_venues", prod.ID, models.ActionUpdated, actor, changed)
		}
		return nil
	}

	if staged.Status != models.VenueVerified {
		return engine.Errorf(engine.KindPolicy, "sync.execute", "venue %s is %s, not verified", id, staged.Status)
	}

	prod := productionVenueFrom(staged, s.now().UTC())
	if err := s.st.PromoteVenue(ctx, staged, prod); err != nil {
		return err
	}
	rec.Added++
	rec.PromotedVenues = append(rec.PromotedVenues, staged.ID)
	return s.appendChangeLog(ctx, "discovered_venues", staged.ID, models.ActionPromoted, actor, nil)
}

func (s *Syncer) promoteDish(ctx context.Context, id string, rec *models.SyncHistoryRecord) error {
	staged, err := s.st.Dishes().Get(ctx, id)
	if err != nil {
		return err
	}
	if staged.Status != models.VenueVerified {
		return engine.Errorf(engine.KindPolicy, "sync.execute", "dish %s is %s, not verified", id, staged.Status)
	}
	venue, err := s.st.Venues().Get(ctx, staged.VenueID)
	if err != nil {
		return err
	}
	if venue.ProductionID == nil {
		return engine.Errorf(engine.KindPolicy, "sync.execute", "dish %s has unpromoted venue %s", id, venue.ID)
	}

	prod := &models.ProductionDish{
		ID:          uuid.NewString(),
		VenueID:     *venue.ProductionID,
		Name:        staged.Name,
		Description: staged.Description,
		Category:    staged.Category,
		Product:     staged.Product,
		Prices:      staged.Prices,
		ImageURL:    staged.ImageURL,
		DietaryTags: staged.DietaryTags,
		Status:      models.ProductionActive,
	}
	if err := s.st.PromoteDish(ctx, staged, prod); err != nil {
		return err
	}
	rec.Added++
	rec.PromotedDishes = append(rec.PromotedDishes, staged.ID)
	return nil
}

func (s *Syncer) appendChangeLog(ctx context.Context, collection, docID string, action models.ChangeAction, actor string, changed []string) error {
	entry := &models.ChangeLogEntry{
		ID:         uuid.NewString(),
		Timestamp:  s.now().UTC(),
		Action:     action,
		Collection: collection,
		DocumentID: docID,
		Source:     models.SourceManual,
		ActorID:    actor,
	}
	for _, f := range changed {
		entry.Changes = append(entry.Changes, models.FieldChange{Field: f})
	}
	return s.st.ChangeLog().Append(ctx, entry)
}

// productionVenueFrom builds the production projection with the safe
// promotion defaults: restaurant type, all-week 11:00-22:00 hours, zero
// coordinates when the staged record has none.
func productionVenueFrom(staged *models.DiscoveredVenue, now time.Time) *models.ProductionVenue {
	prod := &models.ProductionVenue{
		ID:            uuid.NewString(),
		Name:          staged.Name,
		Type:          "restaurant",
		Address:       staged.Address,
		PlatformLinks: staged.PlatformLinks,
		ChainID:       staged.ChainID,
		Hours:         models.DefaultOpeningHours(),
		LastVerified:  now,
		Status:        models.ProductionActive,
	}
	if staged.Coordinates != nil {
		prod.Coordinates = *staged.Coordinates
	}
	return prod
}

// applyVenueProjection copies the staged fields onto an existing
// production record, leaving production-only fields alone.
func applyVenueProjection(staged *models.DiscoveredVenue, prod *models.ProductionVenue) {
	prod.Name = staged.Name
	prod.Address = staged.Address
	prod.PlatformLinks = staged.PlatformLinks
	prod.ChainID = staged.ChainID
	if staged.Coordinates != nil {
		prod.Coordinates = *staged.Coordinates
	}
}

// changedVenueFields deep-compares the staged projection against the
// production record and names the drifted fields.
func changedVenueFields(staged *models.DiscoveredVenue, prod *models.ProductionVenue) []string {
	var changed []string
	if staged.Name != prod.Name {
		changed = append(changed, "name")
	}
	if !reflect.DeepEqual(staged.Address, prod.Address) {
		changed = append(changed, "address")
	}
	if staged.Coordinates != nil && !reflect.DeepEqual(*staged.Coordinates, prod.Coordinates) {
		changed = append(changed, "coordinates")
	}
	if !reflect.DeepEqual(staged.PlatformLinks, prod.PlatformLinks) {
		changed = append(changed, "platform_links")
	}
	if !equalPtr(staged.ChainID, prod.ChainID) {
		changed = append(changed, "chain_id")
	}
	return changed
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Summary renders the one-line counts for CLI output.
func (p *Preview) Summary() string {
	return fmt.Sprintf("%d venue additions, %d dish additions, %d updates, %d removal candidates",
		len(p.Additions), p.DishAdditions, len(p.Updates), len(p.Removals))
}
