package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/store/memory"
)

// 2026-08-24 is a Monday.
func fixedClock() func() time.Time {
	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func testServer(t *testing.T) (*Server, *memory.Store, *httptest.Server) {
	t.Helper()
	st := memory.New().WithClock(fixedClock())
	srv := New(st, nil).WithClock(fixedClock())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, st, ts
}

func prodVenue(id, name string, lat, lng float64) *models.ProductionVenue {
	return &models.ProductionVenue{
		ID:           id,
		Name:         name,
		Type:         "restaurant",
		Address:      models.Address{City: "Zurich", Country: "CH"},
		Coordinates:  models.Coordinates{Lat: lat, Lng: lng},
		Status:       models.ProductionActive,
		LastVerified: fixedClock()(),
	}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestNearby_RanksByDistance(t *testing.T) {
	_, st, ts := testServer(t)
	ctx := context.Background()

	// Center is Zurich main station; far venue is ~5km north.
	require.NoError(t, st.Production().InsertVenue(ctx, prodVenue("near", "Near", 47.3800, 8.5400)))
	require.NoError(t, st.Production().InsertVenue(ctx, prodVenue("far", "Far", 47.4200, 8.5500)))
	require.NoError(t, st.Production().InsertVenue(ctx, prodVenue("outside", "Outside", 47.6000, 8.5000)))

	var resp struct {
		Count  int `json:"count"`
		Venues []struct {
			ID         string  `json:"id"`
			DistanceKm float64 `json:"distance_km"`
		} `json:"venues"`
	}
	r := getJSON(t, ts.URL+"/nearby?lat=47.3769&lng=8.5417&radius_km=10", &resp)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	require.Equal(t, 2, resp.Count, "venue outside the radius is excluded")
	assert.Equal(t, "near", resp.Venues[0].ID)
	assert.Equal(t, "far", resp.Venues[1].ID)
	assert.Less(t, resp.Venues[0].DistanceKm, resp.Venues[1].DistanceKm)
}

func TestNearby_DedupeChainsKeepsClosest(t *testing.T) {
	_, st, ts := testServer(t)
	ctx := context.Background()

	chain := "chain-1"
	a := prodVenue("a", "Branch A", 47.3800, 8.5400)
	a.ChainID = &chain
	b := prodVenue("b", "Branch B", 47.4000, 8.5400)
	b.ChainID = &chain
	require.NoError(t, st.Production().InsertVenue(ctx, a))
	require.NoError(t, st.Production().InsertVenue(ctx, b))

	var resp struct {
		Count  int `json:"count"`
		Venues []struct {
			ID string `json:"id"`
		} `json:"venues"`
	}
	getJSON(t, ts.URL+"/nearby?lat=47.3769&lng=8.5417&radius_km=10&dedupe_chains=true", &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "a", resp.Venues[0].ID, "closest branch survives")
}

func TestNearby_OpenNowFilterAndRanking(t *testing.T) {
	_, st, ts := testServer(t)
	ctx := context.Background()

	open := prodVenue("open", "Open", 47.4000, 8.5400)
	open.Hours = models.OpeningHours{"monday": {Open: "10:00", Close: "20:00"}}
	closed := prodVenue("closed", "Closed", 47.3800, 8.5400)
	closed.Hours = models.OpeningHours{"monday": {Open: "18:00", Close: "23:00"}}
	// Sentinel hours count as unknown: kept, but ranked last despite
	// being the closest venue.
	unknown := prodVenue("unknown", "Unknown", 47.3780, 8.5410)
	unknown.Hours = models.DefaultOpeningHours()
	require.NoError(t, st.Production().InsertVenue(ctx, open))
	require.NoError(t, st.Production().InsertVenue(ctx, closed))
	require.NoError(t, st.Production().InsertVenue(ctx, unknown))

	var resp struct {
		Count  int `json:"count"`
		Venues []struct {
			ID   string `json:"id"`
			Open *bool  `json:"open"`
		} `json:"venues"`
	}
	getJSON(t, ts.URL+"/nearby?lat=47.3769&lng=8.5417&radius_km=10&open_now=true", &resp)
	require.Equal(t, 2, resp.Count, "closed venue is filtered out")
	assert.Equal(t, "open", resp.Venues[0].ID)
	require.NotNil(t, resp.Venues[0].Open)
	assert.True(t, *resp.Venues[0].Open)
	assert.Equal(t, "unknown", resp.Venues[1].ID)
	assert.Nil(t, resp.Venues[1].Open)
}

func TestNearby_ProductFilterAndSlim(t *testing.T) {
	_, st, ts := testServer(t)
	ctx := context.Background()

	require.NoError(t, st.Production().InsertVenue(ctx, prodVenue("kebab", "Kebab House", 47.3800, 8.5400)))
	require.NoError(t, st.Production().InsertVenue(ctx, prodVenue("other", "Other", 47.3820, 8.5400)))
	require.NoError(t, st.Production().InsertDish(ctx, &models.ProductionDish{
		ID: "d1", VenueID: "kebab", Name: "planted kebab wrap",
		Product: models.ProductKebab, Status: models.ProductionActive,
	}))

	var resp struct {
		Count  int `json:"count"`
		Venues []map[string]any `json:"venues"`
	}
	getJSON(t, ts.URL+"/nearby?lat=47.3769&lng=8.5417&product_sku=planted.kebab&slim=true", &resp)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "kebab", resp.Venues[0]["id"])
	assert.NotContains(t, resp.Venues[0], "platform_links", "slim projection drops the full record")
	assert.Contains(t, resp.Venues[0], "distance_km")
}

func TestNearby_CachesResponses(t *testing.T) {
	srv, st, ts := testServer(t)
	ctx := context.Background()
	require.NoError(t, st.Production().InsertVenue(ctx, prodVenue("v", "V", 47.3800, 8.5400)))

	getJSON(t, ts.URL+"/nearby?lat=47.3769&lng=8.5417", nil)
	assert.Equal(t, 1, srv.nearby.Len())

	// A second venue inserted after the first request is invisible until
	// the cache entry expires.
	require.NoError(t, st.Production().InsertVenue(ctx, prodVenue("v2", "V2", 47.3810, 8.5400)))
	var resp struct {
		Count int `json:"count"`
	}
	getJSON(t, ts.URL+"/nearby?lat=47.3769&lng=8.5417", &resp)
	assert.Equal(t, 1, resp.Count)
}

func TestNearby_RejectsInvalidCoordinates(t *testing.T) {
	_, _, ts := testServer(t)
	for _, q := range []string{
		"lat=91&lng=8.5",
		"lat=47.3&lng=181",
		"lng=8.5",
		"lat=47.3&lng=8.5&radius_km=-2",
	} {
		r := getJSON(t, ts.URL+"/nearby?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, r.StatusCode, q)
	}
}

func TestHealthz(t *testing.T) {
	_, _, ts := testServer(t)
	var resp map[string]string
	r := getJSON(t, ts.URL+"/healthz", &resp)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, "ok", resp["status"])
}

func postJSON(t *testing.T, url string, body any, out any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func stagedVenue(id string) *models.DiscoveredVenue {
	return &models.DiscoveredVenue{
		ID:      id,
		Name:    "Green Corner",
		Address: models.Address{City: "Zurich", Country: "CH"},
		PlatformLinks: []models.DeliveryPlatformLink{
			{Platform: models.PlatformWolt, URL: fmt.Sprintf("https://wolt.com/en/che/zurich/restaurant/%s", id)},
		},
		Confidence: 85,
		Status:     models.VenueDiscovered,
	}
}

func TestReviewFlow_ApproveOverHTTP(t *testing.T) {
	_, st, ts := testServer(t)
	ctx := context.Background()
	require.NoError(t, st.Venues().Insert(ctx, stagedVenue("v1")))

	var pending struct {
		Total  int                       `json:"total"`
		Venues []*models.DiscoveredVenue `json:"venues"`
	}
	getJSON(t, ts.URL+"/admin/review/pending?country=CH", &pending)
	require.Equal(t, 1, pending.Total)

	r := postJSON(t, ts.URL+"/admin/review/v1/approve", map[string]any{
		"actor":     "ops",
		"last_seen": pending.Venues[0].UpdatedAt,
	}, nil)
	assert.Equal(t, http.StatusOK, r.StatusCode)

	v, err := st.Venues().Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, models.VenueVerified, v.Status)
}

func TestReviewFlow_StaleTimestampConflicts(t *testing.T) {
	_, st, ts := testServer(t)
	ctx := context.Background()
	require.NoError(t, st.Venues().Insert(ctx, stagedVenue("v1")))

	r := postJSON(t, ts.URL+"/admin/review/v1/approve", map[string]any{
		"actor":     "ops",
		"last_seen": time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil)
	assert.Equal(t, http.StatusConflict, r.StatusCode)
}

func TestReviewFlow_RejectWithoutReasonIsBadRequest(t *testing.T) {
	_, st, ts := testServer(t)
	ctx := context.Background()
	require.NoError(t, st.Venues().Insert(ctx, stagedVenue("v1")))
	v, err := st.Venues().Get(ctx, "v1")
	require.NoError(t, err)

	r := postJSON(t, ts.URL+"/admin/review/v1/reject", map[string]any{
		"actor":     "ops",
		"last_seen": v.UpdatedAt,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestSyncFlow_PreviewThenExecute(t *testing.T) {
	_, st, ts := testServer(t)
	ctx := context.Background()
	v := stagedVenue("v1")
	v.Status = models.VenueVerified
	require.NoError(t, st.Venues().Insert(ctx, v))

	var preview struct {
		Additions []struct {
			VenueID string `json:"venue_id"`
		} `json:"additions"`
	}
	getJSON(t, ts.URL+"/admin/sync/preview", &preview)
	require.Len(t, preview.Additions, 1)

	var rec models.SyncHistoryRecord
	r := postJSON(t, ts.URL+"/admin/sync/execute", map[string]any{
		"actor":    "ops",
		"sync_all": true,
	}, &rec)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, 1, rec.Added)

	after, err := st.Venues().Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, models.VenuePromoted, after.Status)
	require.NotNil(t, after.ProductionID)
	_, err = st.Production().GetVenue(ctx, *after.ProductionID)
	assert.NoError(t, err)
}
