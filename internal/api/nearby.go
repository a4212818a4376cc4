package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/plantedhq/venuescout/internal/geo"
	"github.com/plantedhq/venuescout/internal/models"
)

const (
	defaultRadiusKm = 5.0
	maxRadiusKm     = 50.0
	defaultLimit    = 20
	maxLimit        = 100
)

// nearbyQuery is the parsed /nearby request.
type nearbyQuery struct {
	Lat, Lng     float64
	RadiusKm     float64
	Type         string
	Limit        int
	Slim         bool
	OpenNow      bool
	ProductSKU   string
	DedupeChains bool
}

// cacheKey rounds coordinates to ~100m so nearby requests from the same
// block share a cache entry.
func (q nearbyQuery) cacheKey() string {
	return fmt.Sprintf("%.3f|%.3f|%.1f|%s|%d|%t|%t|%s|%t",
		q.Lat, q.Lng, q.RadiusKm, q.Type, q.Limit, q.Slim, q.OpenNow, q.ProductSKU, q.DedupeChains)
}

// nearbyVenue is the full response projection.
type nearbyVenue struct {
	*models.ProductionVenue
	DistanceKm float64 `json:"distance_km"`
	// Open is nil when the venue's hours are unknown (absent or the
	// promotion-time sentinel).
	Open *bool `json:"open,omitempty"`
}

// slimVenue is the reduced projection for map pins.
type slimVenue struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Type        string             `json:"type"`
	City        string             `json:"city"`
	Coordinates models.Coordinates `json:"coordinates"`
	DistanceKm  float64            `json:"distance_km"`
}

type nearbyResponse struct {
	Count  int `json:"count"`
	Venues any `json:"venues"`
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q, err := parseNearbyQuery(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	key := q.cacheKey()
	if cached, ok := s.nearby.Get(key); ok {
		if s.reg != nil {
			s.reg.NearbyCacheHits.Inc()
		}
		s.writeJSON(w, http.StatusOK, cached)
		return
	}

	box := geo.BoxAround(q.Lat, q.Lng, q.RadiusKm)
	candidates, err := s.st.Production().ListVenuesInBox(r.Context(), box)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var ranked []nearbyVenue
	for _, v := range candidates {
		if v.Status == models.ProductionArchived {
			continue
		}
		if q.Type != "" && v.Type != q.Type {
			continue
		}
		dist := geo.HaversineKm(q.Lat, q.Lng, v.Coordinates.Lat, v.Coordinates.Lng)
		if dist > q.RadiusKm {
			continue
		}
		nv := nearbyVenue{ProductionVenue: v, DistanceKm: dist}
		if known, open := openState(v.Hours, s.now()); known {
			nv.Open = &open
			if q.OpenNow && !open {
				continue
			}
		}
		// Unknown hours pass the open_now filter but rank after venues
		// with real hours.
		if q.ProductSKU != "" {
			has, err := s.venueServesProduct(r, v.ID, q.ProductSKU)
			if err != nil {
				s.writeError(w, err)
				return
			}
			if !has {
				continue
			}
		}
		ranked = append(ranked, nv)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if q.OpenNow {
			ki, kj := ranked[i].Open != nil, ranked[j].Open != nil
			if ki != kj {
				return ki
			}
		}
		if ranked[i].DistanceKm != ranked[j].DistanceKm {
			return ranked[i].DistanceKm < ranked[j].DistanceKm
		}
		return ranked[i].ID < ranked[j].ID
	})

	if q.DedupeChains {
		ranked = dedupeChains(ranked)
	}
	if len(ranked) > q.Limit {
		ranked = ranked[:q.Limit]
	}

	resp := nearbyResponse{Count: len(ranked)}
	if q.Slim {
		slim := make([]slimVenue, 0, len(ranked))
		for _, v := range ranked {
			slim = append(slim, slimVenue{
				ID:          v.ID,
				Name:        v.Name,
				Type:        v.Type,
				City:        v.Address.City,
				Coordinates: v.Coordinates,
				DistanceKm:  v.DistanceKm,
			})
		}
		resp.Venues = slim
	} else {
		resp.Venues = ranked
	}

	s.nearby.Set(key, resp)
	s.writeJSON(w, http.StatusOK, resp)
}

func parseNearbyQuery(r *http.Request) (nearbyQuery, error) {
	get := r.URL.Query().Get

	lat, errLat := strconv.ParseFloat(get("lat"), 64)
	lng, errLng := strconv.ParseFloat(get("lng"), 64)
	if errLat != nil || errLng != nil || !geo.ValidPoint(lat, lng) {
		return nearbyQuery{}, fmt.Errorf("lat/lng missing or out of range")
	}

	q := nearbyQuery{
		Lat:          lat,
		Lng:          lng,
		RadiusKm:     defaultRadiusKm,
		Type:         get("type"),
		Limit:        defaultLimit,
		Slim:         boolParam(get("slim")),
		OpenNow:      boolParam(get("open_now")),
		ProductSKU:   get("product_sku"),
		DedupeChains: boolParam(get("dedupe_chains")),
	}
	if raw := get("radius_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return nearbyQuery{}, fmt.Errorf("invalid radius_km %q", raw)
		}
		if v > maxRadiusKm {
			v = maxRadiusKm
		}
		q.RadiusKm = v
	}
	if raw := get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return nearbyQuery{}, fmt.Errorf("invalid limit %q", raw)
		}
		if v > maxLimit {
			v = maxLimit
		}
		q.Limit = v
	}
	return q, nil
}

func boolParam(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// openState evaluates the venue hours at t. Absent or sentinel hours are
// unknown (known=false).
func openState(h models.OpeningHours, t time.Time) (known, open bool) {
	if len(h) == 0 || h.IsDefaultSentinel() {
		return false, false
	}
	day, ok := h[strings.ToLower(t.Weekday().String())]
	if !ok {
		return true, false
	}
	now := t.Format("15:04")
	if day.Close < day.Open {
		// Spans midnight.
		return true, now >= day.Open || now < day.Close
	}
	return true, now >= day.Open && now < day.Close
}

func (s *Server) venueServesProduct(r *http.Request, venueID, sku string) (bool, error) {
	dishes, err := s.st.Production().ListDishesByVenue(r.Context(), venueID)
	if err != nil {
		return false, err
	}
	for _, d := range dishes {
		if d.Status != models.ProductionArchived && string(d.Product) == sku {
			return true, nil
		}
	}
	return false, nil
}

// dedupeChains keeps the closest venue per chain. ranked must already be
// sorted; chainless venues always survive.
func dedupeChains(ranked []nearbyVenue) []nearbyVenue {
	seen := map[string]bool{}
	out := ranked[:0]
	for _, v := range ranked {
		if v.ChainID != nil {
			if seen[*v.ChainID] {
				continue
			}
			seen[*v.ChainID] = true
		}
		out = append(out, v)
	}
	return out
}
