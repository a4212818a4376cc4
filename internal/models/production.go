package models

import "time"

// ProductionStatus is the lifecycle of a publicly served record.
type ProductionStatus string

const (
	ProductionActive   ProductionStatus = "active"
	ProductionStale    ProductionStatus = "stale"
	ProductionArchived ProductionStatus = "archived"
)

// Staleness thresholds for production venues.
const (
	StaleAfter   = 7 * 24 * time.Hour
	ArchiveAfter = 30 * 24 * time.Hour
)

// DayHours is an open/close pair in "HH:MM" local time.
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// OpeningHours maps lowercase weekday names to hours. A nil map means the
// hours are unknown.
type OpeningHours map[string]DayHours

// DefaultOpeningHours is the promotion-time sentinel applied when a staged
// venue carries no hours: 11:00-22:00 all week. Ranking treats sentinel
// hours as unknown.
func DefaultOpeningHours() OpeningHours {
	h := make(OpeningHours, 7)
	for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"} {
		h[d] = DayHours{Open: "11:00", Close: "22:00"}
	}
	return h
}

// IsDefaultSentinel reports whether h is exactly the promotion-time default.
func (h OpeningHours) IsDefaultSentinel() bool {
	if len(h) != 7 {
		return false
	}
	for _, v := range h {
		if v.Open != "11:00" || v.Close != "22:00" {
			return false
		}
	}
	return true
}

// ProductionVenue is the approved, publicly served projection of a venue.
type ProductionVenue struct {
	ID            string                 `json:"id" db:"id"`
	Name          string                 `json:"name" db:"name"`
	Type          string                 `json:"type" db:"type"`
	Address       Address                `json:"address"`
	Coordinates   Coordinates            `json:"coordinates"`
	PlatformLinks []DeliveryPlatformLink `json:"platform_links"`
	ChainID       *string                `json:"chain_id,omitempty" db:"chain_id"`
	Hours         OpeningHours           `json:"opening_hours,omitempty"`
	DeliveryZones []string               `json:"delivery_zones,omitempty"`
	LastVerified  time.Time              `json:"last_verified" db:"last_verified"`
	Status        ProductionStatus       `json:"status" db:"status"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at" db:"updated_at"`
}

// NextStatus applies the staleness rule at time now: last_verified older
// than 7 days moves active to stale, older than 30 days moves anything to
// archived (skipping the stale step is allowed).
func (v *ProductionVenue) NextStatus(now time.Time) ProductionStatus {
	age := now.Sub(v.LastVerified)
	switch {
	case age > ArchiveAfter:
		return ProductionArchived
	case age > StaleAfter && v.Status == ProductionActive:
		return ProductionStale
	default:
		return v.Status
	}
}

// ProductionDish is the publicly served projection of a dish.
type ProductionDish struct {
	ID          string           `json:"id" db:"id"`
	VenueID     string           `json:"venue_id" db:"venue_id"`
	Name        string           `json:"name" db:"name"`
	Description string           `json:"description,omitempty" db:"description"`
	Category    string           `json:"category,omitempty" db:"category"`
	Product     ProductTag       `json:"product" db:"product"`
	Prices      map[string]Price `json:"prices,omitempty"`
	ImageURL    string           `json:"image_url,omitempty" db:"image_url"`
	DietaryTags []string         `json:"dietary_tags,omitempty"`
	Status      ProductionStatus `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}
