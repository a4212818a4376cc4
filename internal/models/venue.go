package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// PlatformTag identifies a delivery platform. The set is closed; adapters
// dispatch on it.
type PlatformTag string

const (
	PlatformUberEats   PlatformTag = "uber-eats"
	PlatformWolt       PlatformTag = "wolt"
	PlatformLieferando PlatformTag = "lieferando"
	PlatformJustEat    PlatformTag = "just-eat"
	PlatformDeliveroo  PlatformTag = "deliveroo"
	PlatformSmood      PlatformTag = "smood"
	PlatformEatCh      PlatformTag = "eat-ch"
)

// AllPlatforms lists every known platform tag in stable order.
func AllPlatforms() []PlatformTag {
	return []PlatformTag{
		PlatformUberEats, PlatformWolt, PlatformLieferando,
		PlatformJustEat, PlatformDeliveroo, PlatformSmood, PlatformEatCh,
	}
}

// ValidPlatform reports whether tag belongs to the closed set.
func ValidPlatform(tag PlatformTag) bool {
	for _, p := range AllPlatforms() {
		if p == tag {
			return true
		}
	}
	return false
}

// VenueStatus is the staging lifecycle of a discovered venue.
type VenueStatus string

const (
	VenueDiscovered VenueStatus = "discovered"
	VenueVerified   VenueStatus = "verified"
	VenueRejected   VenueStatus = "rejected"
	VenuePromoted   VenueStatus = "promoted"
)

// Address is the normalized postal address of a venue.
type Address struct {
	Street     string `json:"street,omitempty" db:"street"`
	City       string `json:"city" db:"city"`
	PostalCode string `json:"postal_code,omitempty" db:"postal_code"`
	Country    string `json:"country" db:"country"`
}

// Coordinates are WGS84 lat/lng. Zero value means unknown.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DeliveryPlatformLink ties a venue to its page on one delivery platform.
type DeliveryPlatformLink struct {
	Platform PlatformTag `json:"platform"`
	URL      string      `json:"url"`
	Active   *bool       `json:"active,omitempty"`
}

// ConfidenceBreakdown explains how a confidence score was assembled.
type ConfidenceBreakdown struct {
	Positive []string `json:"positive,omitempty"`
	Negative []string `json:"negative,omitempty"`
}

// DiscoveredVenue is a staged candidate venue found by the discovery
// executor. It is born in status "discovered" and ends in either "rejected"
// (with a reason) or "promoted" (with a production venue id). Staged records
// are never mutated after promotion except for the fields that record the
// promotion itself.
type DiscoveredVenue struct {
	ID              string                 `json:"id" db:"id"`
	Name            string                 `json:"name" db:"name"`
	Address         Address                `json:"address"`
	Coordinates     *Coordinates           `json:"coordinates,omitempty"`
	PlatformLinks   []DeliveryPlatformLink `json:"platform_links"`
	ChainID         *string                `json:"chain_id,omitempty" db:"chain_id"`
	Confidence      float64                `json:"confidence_score" db:"confidence_score"`
	Breakdown       ConfidenceBreakdown    `json:"confidence_breakdown"`
	Status          VenueStatus            `json:"status" db:"status"`
	RejectionReason *string                `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ProductionID    *string                `json:"production_venue_id,omitempty" db:"production_venue_id"`
	PromotedAt      *time.Time             `json:"promoted_at,omitempty" db:"promoted_at"`
	StrategyID      *string                `json:"strategy_id,omitempty" db:"strategy_id"`
	SearchQuery     string                 `json:"search_query,omitempty" db:"search_query"`

	// Extraction bookkeeping. Three consecutive failed runs set
	// ExtractionFailed; the venue is then skipped until the cooldown
	// since LastExtractedAt elapses.
	ExtractionFailures int        `json:"extraction_failures,omitempty"`
	ExtractionFailed   bool       `json:"extraction_failed,omitempty"`
	LastExtractedAt    *time.Time `json:"last_extracted_at,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DedupeKey is the normalized identity used to collapse duplicate search
// hits: lowercased name, lowercased city, and the host+path of the first
// delivery URL.
type DedupeKey struct {
	Name    string
	City    string
	URLPath string
}

func (k DedupeKey) String() string {
	return k.Name + "|" + k.City + "|" + k.URLPath
}

// NormalizeURL reduces a delivery URL to host+path, lowercased, with
// trailing slashes and query/fragment stripped. Invalid URLs normalize to
// the lowercased raw string so they still dedupe against themselves.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimRight(u.Path, "/")
	return host + path
}

// DedupeKeyFor builds the venue's dedupe key. The first platform link wins;
// a venue without links keys on name+city alone.
func DedupeKeyFor(name, city string, links []DeliveryPlatformLink) DedupeKey {
	k := DedupeKey{
		Name: strings.ToLower(strings.TrimSpace(name)),
		City: strings.ToLower(strings.TrimSpace(city)),
	}
	if len(links) > 0 {
		k.URLPath = NormalizeURL(links[0].URL)
	}
	return k
}

// DedupeKeyOf is DedupeKeyFor applied to an existing venue.
func (v *DiscoveredVenue) DedupeKeyOf() DedupeKey {
	return DedupeKeyFor(v.Name, v.Address.City, v.PlatformLinks)
}

// MergeLinks folds new platform links into the venue, skipping links whose
// normalized URL is already present. Returns the number of links added.
func (v *DiscoveredVenue) MergeLinks(links []DeliveryPlatformLink) int {
	seen := make(map[string]bool, len(v.PlatformLinks))
	for _, l := range v.PlatformLinks {
		seen[NormalizeURL(l.URL)] = true
	}
	added := 0
	for _, l := range links {
		key := NormalizeURL(l.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		v.PlatformLinks = append(v.PlatformLinks, l)
		added++
	}
	return added
}

// Validate enforces the staging invariants before a write.
func (v *DiscoveredVenue) Validate() error {
	if v.Status == VenuePromoted && v.ProductionID == nil {
		return fmt.Errorf("venue %s promoted without production_venue_id", v.ID)
	}
	if v.Status == VenueRejected && (v.RejectionReason == nil || *v.RejectionReason == "") {
		return fmt.Errorf("venue %s rejected without reason", v.ID)
	}
	for _, l := range v.PlatformLinks {
		if !ValidPlatform(l.Platform) {
			return fmt.Errorf("venue %s has unknown platform %q", v.ID, l.Platform)
		}
	}
	return nil
}
