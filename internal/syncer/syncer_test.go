package syncer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/store/memory"
)

func fixedClock() func() time.Time {
	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func verifiedVenue(id, name string) *models.DiscoveredVenue {
	return &models.DiscoveredVenue{
		ID:   id,
		Name: name,
		Address: models.Address{
			City:    "Zurich",
			Country: "CH",
		},
		PlatformLinks: []models.DeliveryPlatformLink{
			{Platform: models.PlatformWolt, URL: "https://wolt.com/en/che/zurich/restaurant/" + id},
		},
		Confidence: 95,
		Status:     models.VenueVerified,
	}
}

func verifiedDish(id, venueID string) *models.DiscoveredDish {
	return &models.DiscoveredDish{
		ID:      id,
		VenueID: venueID,
		Name:    "planted.chicken curry",
		Product: models.ProductChicken,
		Prices:  map[string]models.Price{"CH": {Amount: 18.5, Currency: "CHF"}},
		Status:  models.VenueVerified,
	}
}

func TestPreview_CountsAndOrder(t *testing.T) {
	st := memory.New().WithClock(fixedClock())
	ctx := context.Background()

	require.NoError(t, st.Venues().Insert(ctx, verifiedVenue("v2", "Beta")))
	require.NoError(t, st.Venues().Insert(ctx, verifiedVenue("v1", "Alpha")))
	require.NoError(t, st.Dishes().Upsert(ctx, verifiedDish("d1", "v1")))
	require.NoError(t, st.Dishes().Upsert(ctx, verifiedDish("d2", "v1")))
	pending := verifiedDish("d3", "v1")
	pending.Status = models.VenueDiscovered
	require.NoError(t, st.Dishes().Upsert(ctx, pending))

	p, err := New(st).WithClock(fixedClock()).PreviewSync(ctx)
	require.NoError(t, err)

	require.Len(t, p.Additions, 2)
	assert.Equal(t, "v1", p.Additions[0].VenueID, "additions are ordered by id")
	assert.Equal(t, 3, p.Additions[0].DishTotal)
	assert.Equal(t, 2, p.Additions[0].DishVerified)
	assert.Zero(t, p.Additions[1].DishTotal)
	assert.Equal(t, 2, p.DishAdditions)
	assert.Empty(t, p.Updates)
	assert.Empty(t, p.Removals)
}

func TestPreview_RemovalCandidates(t *testing.T) {
	st := memory.New().WithClock(fixedClock())
	ctx := context.Background()
	now := fixedClock()()

	fresh := &models.ProductionVenue{ID: "p1", Name: "Fresh", Status: models.ProductionActive, LastVerified: now.Add(-24 * time.Hour)}
	overdue := &models.ProductionVenue{ID: "p2", Name: "Overdue", Status: models.ProductionStale, LastVerified: now.Add(-40 * 24 * time.Hour)}
	require.NoError(t, st.Production().InsertVenue(ctx, fresh))
	require.NoError(t, st.Production().InsertVenue(ctx, overdue))

	p, err := New(st).WithClock(fixedClock()).PreviewSync(ctx)
	require.NoError(t, err)
	require.Len(t, p.Removals, 1)
	assert.Equal(t, "p2", p.Removals[0].ProductionID)
}

func TestExecute_PromotesAndRecordsHistory(t *testing.T) {
	st := memory.New().WithClock(fixedClock())
	ctx := context.Background()

	v := verifiedVenue("v1", "Alpha")
	require.NoError(t, st.Venues().Insert(ctx, v))
	require.NoError(t, st.Dishes().Upsert(ctx, verifiedDish("d1", "v1")))

	s := New(st).WithClock(fixedClock())
	rec, err := s.Execute(ctx, Selection{SyncAll: true}, "ops@planted")
	require.NoError(t, err)

	assert.Equal(t, 2, rec.Added, "one venue and one dish")
	assert.Zero(t, rec.Failed)
	assert.Equal(t, []string{"v1"}, rec.PromotedVenues)
	assert.Equal(t, []string{"d1"}, rec.PromotedDishes)

	staged, err := st.Venues().Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, models.VenuePromoted, staged.Status)
	require.NotNil(t, staged.ProductionID)
	require.NotNil(t, staged.PromotedAt)

	prod, err := st.Production().GetVenue(ctx, *staged.ProductionID)
	require.NoError(t, err)
	assert.Equal(t, "restaurant", prod.Type, "type defaults on promotion")
	assert.True(t, prod.Hours.IsDefaultSentinel(), "hours default to the all-week sentinel")
	assert.Equal(t, models.Coordinates{}, prod.Coordinates, "missing coordinates default to zero")

	hist, err := st.SyncHistory().List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, rec.ID, hist[0].ID)
}

func TestExecute_PartialFailureContinues(t *testing.T) {
	st := memory.New().WithClock(fixedClock())
	ctx := context.Background()

	require.NoError(t, st.Venues().Insert(ctx, verifiedVenue("v1", "Alpha")))
	require.NoError(t, st.Venues().Insert(ctx, verifiedVenue("v2", "Beta")))
	for i := 1; i <= 4; i++ {
		venue := "v1"
		if i > 2 {
			venue = "v2"
		}
		require.NoError(t, st.Dishes().Upsert(ctx, verifiedDish(fmt.Sprintf("d%d", i), venue)))
	}
	// d5 references a venue that does not exist; its promotion fails while
	// the rest of the batch completes.
	require.NoError(t, st.Dishes().Upsert(ctx, verifiedDish("d5", "ghost")))

	rec, err := New(st).WithClock(fixedClock()).Execute(ctx, Selection{SyncAll: true}, "ops@planted")
	require.NoError(t, err)

	assert.Len(t, rec.PromotedVenues, 2)
	assert.Len(t, rec.PromotedDishes, 4)
	assert.Equal(t, 1, rec.Failed)
	require.Len(t, rec.Errors, 1)
	assert.Equal(t, "d5", rec.Errors[0].EntityID)
	assert.Equal(t, "dish", rec.Errors[0].Kind)
}

func TestPreviewExecutePreview_RoundTrip(t *testing.T) {
	st := memory.New().WithClock(fixedClock())
	ctx := context.Background()
	require.NoError(t, st.Venues().Insert(ctx, verifiedVenue("v1", "Alpha")))
	require.NoError(t, st.Dishes().Upsert(ctx, verifiedDish("d1", "v1")))

	s := New(st).WithClock(fixedClock())

	before, err := s.PreviewSync(ctx)
	require.NoError(t, err)
	require.Len(t, before.Additions, 1)

	_, err = s.Execute(ctx, Selection{SyncAll: true}, "ops@planted")
	require.NoError(t, err)

	after, err := s.PreviewSync(ctx)
	require.NoError(t, err)
	assert.Empty(t, after.Additions, "nothing pending after the set is promoted")
	assert.Zero(t, after.DishAdditions)
	assert.Empty(t, after.Updates, "freshly promoted venues have no drift")
}

func TestExecute_UpdatePathBumpsLastVerified(t *testing.T) {
	st := memory.New().WithClock(fixedClock())
	ctx := context.Background()

	v := verifiedVenue("v1", "Alpha")
	require.NoError(t, st.Venues().Insert(ctx, v))
	s := New(st).WithClock(fixedClock())
	_, err := s.Execute(ctx, Selection{VenueIDs: []string{"v1"}}, "ops@planted")
	require.NoError(t, err)

	// Drift the staged name, then sync the same venue again.
	staged, err := st.Venues().Get(ctx, "v1")
	require.NoError(t, err)
	staged.Name = "Alpha Renamed"
	require.NoError(t, st.Venues().Update(ctx, staged))

	rec, err := s.Execute(ctx, Selection{VenueIDs: []string{"v1"}}, "ops@planted")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Updated)
	assert.Zero(t, rec.Added)

	prod, err := st.Production().GetVenue(ctx, *staged.ProductionID)
	require.NoError(t, err)
	assert.Equal(t, "Alpha Renamed", prod.Name)
	assert.Equal(t, fixedClock()().UTC(), prod.LastVerified)
}
