package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/store"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
}

func stagedVenue(id, name, url string) *models.DiscoveredVenue {
	return &models.DiscoveredVenue{
		ID:   id,
		Name: name,
		Address: models.Address{
			City:    "Zurich",
			Country: "CH",
		},
		PlatformLinks: []models.DeliveryPlatformLink{
			{Platform: models.PlatformWolt, URL: url},
		},
		Confidence: 80,
		Status:     models.VenueVerified,
	}
}

func TestVenues_InsertGetClones(t *testing.T) {
	ctx := context.Background()
	st := New().WithClock(fixedClock())

	v := stagedVenue("v1", "Hiltl", "https://wolt.com/en/che/zurich/restaurant/hiltl")
	require.NoError(t, st.Venues().Insert(ctx, v))

	got, err := st.Venues().Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "Hiltl", got.Name)

	// Mutating the returned record must not leak into the store.
	got.Name = "mutated"
	again, err := st.Venues().Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "Hiltl", again.Name)

	_, err = st.Venues().Get(ctx, "absent")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestVenues_UpdateIfUnmodifiedConflicts(t *testing.T) {
	ctx := context.Background()
	st := New().WithClock(fixedClock())

	v := stagedVenue("v1", "Hiltl", "https://wolt.com/en/che/zurich/restaurant/hiltl")
	require.NoError(t, st.Venues().Insert(ctx, v))

	cur, err := st.Venues().Get(ctx, "v1")
	require.NoError(t, err)

	cur.Confidence = 90
	require.NoError(t, st.Venues().UpdateIfUnmodified(ctx, cur, cur.UpdatedAt))

	// A stale timestamp loses the race.
	stale := cur
	stale.Confidence = 10
	err = st.Venues().UpdateIfUnmodified(ctx, stale, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := st.Venues().Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 90.0, got.Confidence)
}

func TestVenues_FindByDedupeKeyAndNormalizedURL(t *testing.T) {
	ctx := context.Background()
	st := New().WithClock(fixedClock())

	v := stagedVenue("v1", "Grüner Garten", "https://www.wolt.com/en/che/zurich/restaurant/gruener/")
	require.NoError(t, st.Venues().Insert(ctx, v))

	// Same venue under a URL variant resolves to the stored record.
	key := models.DedupeKeyFor("GRÜNER GARTEN", "zurich", []models.DeliveryPlatformLink{
		{Platform: models.PlatformWolt, URL: "http://wolt.com/en/che/zurich/restaurant/gruener"},
	})
	found, err := st.Venues().FindByDedupeKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v1", found.ID)

	byURL, err := st.Venues().FindByNormalizedURL(ctx, models.NormalizeURL("https://wolt.com/en/che/zurich/restaurant/gruener"))
	require.NoError(t, err)
	require.Len(t, byURL, 1)
	assert.Equal(t, "v1", byURL[0].ID)

	_, err = st.Venues().FindByDedupeKey(ctx, models.DedupeKeyFor("other", "bern", nil))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestVenues_ListFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	st := New().WithClock(fixedClock())

	for i, id := range []string{"v1", "v2", "v3"} {
		v := stagedVenue(id, "Venue "+id, "https://wolt.com/en/che/zurich/restaurant/"+id)
		v.Confidence = float64(60 + i*10)
		require.NoError(t, st.Venues().Insert(ctx, v))
	}
	rejected := stagedVenue("v4", "Rejected", "https://wolt.com/en/che/zurich/restaurant/v4")
	rejected.Status = models.VenueRejected
	reason := "duplicate"
	rejected.RejectionReason = &reason
	require.NoError(t, st.Venues().Insert(ctx, rejected))

	got, total, err := st.Venues().List(ctx, store.VenueFilter{
		Status:        models.VenueVerified,
		MinConfidence: 70,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, got, 2)
	assert.Equal(t, "v2", got[0].ID)

	page, total, err := st.Venues().List(ctx, store.VenueFilter{
		Status: models.VenueVerified,
		Offset: 2,
		Limit:  5,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "v3", page[0].ID)
}

func TestVenues_CityVenueCountsSkipRejected(t *testing.T) {
	ctx := context.Background()
	st := New().WithClock(fixedClock())

	require.NoError(t, st.Venues().Insert(ctx, stagedVenue("v1", "A", "https://wolt.com/en/che/zurich/restaurant/a")))
	b := stagedVenue("v2", "B", "https://wolt.com/en/che/basel/restaurant/b")
	b.Address.City = "Basel"
	require.NoError(t, st.Venues().Insert(ctx, b))
	rejected := stagedVenue("v3", "C", "https://wolt.com/en/che/zurich/restaurant/c")
	rejected.Status = models.VenueRejected
	reason := "closed"
	rejected.RejectionReason = &reason
	require.NoError(t, st.Venues().Insert(ctx, rejected))

	counts, err := st.Venues().CityVenueCounts(ctx, "CH")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Zurich": 1, "Basel": 1}, counts)
}

func TestPromoteVenue_Atomic(t *testing.T) {
	ctx := context.Background()
	st := New().WithClock(fixedClock())

	v := stagedVenue("v1", "Hiltl", "https://wolt.com/en/che/zurich/restaurant/hiltl")
	require.NoError(t, st.Venues().Insert(ctx, v))

	prod := &models.ProductionVenue{ID: "p1", Name: "Hiltl", Status: models.ProductionActive}
	require.NoError(t, st.PromoteVenue(ctx, v, prod))

	// Staged side flips to promoted with the production pointer set.
	assert.Equal(t, models.VenuePromoted, v.Status)
	require.NotNil(t, v.ProductionID)
	assert.Equal(t, "p1", *v.ProductionID)
	require.NotNil(t, v.PromotedAt)

	got, err := st.Production().GetVenue(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Hiltl", got.Name)

	// An unknown staged venue leaves production untouched.
	ghost := stagedVenue("ghost", "Ghost", "https://wolt.com/en/che/zurich/restaurant/ghost")
	err = st.PromoteVenue(ctx, ghost, &models.ProductionVenue{ID: "p2"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Production().GetVenue(ctx, "p2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPromoteDish_RequiresProductionVenue(t *testing.T) {
	ctx := context.Background()
	st := New().WithClock(fixedClock())

	dish := &models.DiscoveredDish{ID: "d1", VenueID: "v1", Name: "Caesar", Status: models.VenueVerified}
	require.NoError(t, st.Dishes().Upsert(ctx, dish))

	err := st.PromoteDish(ctx, dish, &models.ProductionDish{ID: "pd1", VenueID: "p-missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.Production().InsertVenue(ctx, &models.ProductionVenue{ID: "p1"}))
	require.NoError(t, st.PromoteDish(ctx, dish, &models.ProductionDish{ID: "pd1", VenueID: "p1"}))
	assert.Equal(t, models.VenuePromoted, dish.Status)

	dishes, err := st.Production().ListDishesByVenue(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, dishes, 1)
	assert.Equal(t, "pd1", dishes[0].ID)
}

func TestDishes_UpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	tick := now
	st := New().WithClock(func() time.Time { return tick })

	d := &models.DiscoveredDish{ID: "d1", VenueID: "v1", Name: "Caesar"}
	require.NoError(t, st.Dishes().Upsert(ctx, d))

	tick = now.Add(time.Hour)
	d.Name = "Caesar Salad"
	require.NoError(t, st.Dishes().Upsert(ctx, d))

	got, err := st.Dishes().Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, now, got.CreatedAt)
	assert.Equal(t, now.Add(time.Hour), got.UpdatedAt)
	assert.Equal(t, "Caesar Salad", got.Name)
}

func TestStrategies_RecordUse(t *testing.T) {
	ctx := context.Background()
	st := New().WithClock(fixedClock())

	s := &models.DiscoveryStrategy{ID: "s1", Template: `vegan "planted" {city}`, Platform: models.PlatformWolt}
	require.NoError(t, st.Strategies().Upsert(ctx, s))

	require.NoError(t, st.Strategies().RecordUse(ctx, "s1", true, false))
	require.NoError(t, st.Strategies().RecordUse(ctx, "s1", false, true))

	got, err := st.Strategies().Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Uses)
	assert.Equal(t, 1, got.Successes)
	assert.Equal(t, 1, got.FalsePositives)

	assert.ErrorIs(t, st.Strategies().RecordUse(ctx, "absent", true, false), store.ErrNotFound)
}

func TestProduction_SweepStaleness(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	st := New().WithClock(func() time.Time { return now })

	fresh := &models.ProductionVenue{ID: "p1", Status: models.ProductionActive, LastVerified: now.Add(-2 * 24 * time.Hour)}
	staleSoon := &models.ProductionVenue{ID: "p2", Status: models.ProductionActive, LastVerified: now.Add(-10 * 24 * time.Hour)}
	ancient := &models.ProductionVenue{ID: "p3", Status: models.ProductionStale, LastVerified: now.Add(-40 * 24 * time.Hour)}
	for _, v := range []*models.ProductionVenue{fresh, staleSoon, ancient} {
		require.NoError(t, st.Production().InsertVenue(ctx, v))
	}

	stale, archived, err := st.Production().SweepStaleness(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, stale)
	assert.Equal(t, 1, archived)

	got, err := st.Production().GetVenue(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, models.ProductionStale, got.Status)
	got, err = st.Production().GetVenue(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, models.ProductionArchived, got.Status)
}

func TestSyncHistory_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	st := New().WithClock(fixedClock())

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, st.SyncHistory().Append(ctx, &models.SyncHistoryRecord{ID: id}))
	}

	recs, err := st.SyncHistory().List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "s3", recs[0].ID)
	assert.Equal(t, "s2", recs[1].ID)
}

func TestWithLock_Serializes(t *testing.T) {
	ctx := context.Background()
	st := New()

	var n int
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.WithLock(ctx, "sync", func(context.Context) error {
			n++
			return nil
		})
	}()
	require.NoError(t, st.WithLock(ctx, "sync", func(context.Context) error {
		n++
		return nil
	}))
	<-done
	assert.Equal(t, 2, n)
}
