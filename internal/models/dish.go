package models

import (
	"time"
)

// ProductTag identifies one product from the closed brand catalog.
type ProductTag string

const (
	ProductChicken   ProductTag = "planted.chicken"
	ProductKebab     ProductTag = "planted.kebab"
	ProductPulled    ProductTag = "planted.pulled"
	ProductSchnitzel ProductTag = "planted.schnitzel"
	ProductBratwurst ProductTag = "planted.bratwurst"
	ProductSteak     ProductTag = "planted.steak"
	ProductDuck      ProductTag = "planted.duck"
)

// ProductCatalog lists the closed set of product tags in stable order.
func ProductCatalog() []ProductTag {
	return []ProductTag{
		ProductChicken, ProductKebab, ProductPulled, ProductSchnitzel,
		ProductBratwurst, ProductSteak, ProductDuck,
	}
}

// ValidProduct reports whether tag belongs to the catalog.
func ValidProduct(tag ProductTag) bool {
	for _, p := range ProductCatalog() {
		if p == tag {
			return true
		}
	}
	return false
}

// BrandToken is the case-insensitive word that must appear in a dish name
// or description for the dish to be retained.
const BrandToken = "planted"

// Price is an amount in a currency, keyed per country on the dish.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// DishConfidence holds the five weighted extraction factors, each in
// [0,100]. Overall is their arithmetic mean.
type DishConfidence struct {
	NameClarity         float64 `json:"name_clarity"`
	DescriptionEvidence float64 `json:"description_evidence"`
	PricePlausibility   float64 `json:"price_plausibility"`
	SourceReliability   float64 `json:"source_reliability"`
	ProductMatch        float64 `json:"product_match"`
}

// Overall returns the mean of the five factors.
func (c DishConfidence) Overall() float64 {
	return (c.NameClarity + c.DescriptionEvidence + c.PricePlausibility +
		c.SourceReliability + c.ProductMatch) / 5
}

// DiscoveredDish is a staged menu item extracted from a venue page. Every
// dish references a venue whose status is not rejected.
type DiscoveredDish struct {
	ID          string           `json:"id" db:"id"`
	VenueID     string           `json:"venue_id" db:"venue_id"`
	Name        string           `json:"name" db:"name"`
	Description string           `json:"description,omitempty" db:"description"`
	Category    string           `json:"category,omitempty" db:"category"`
	Product     ProductTag       `json:"product" db:"product"`
	Prices      map[string]Price `json:"prices,omitempty"`
	ImageURL    string           `json:"image_url,omitempty" db:"image_url"`
	DietaryTags []string         `json:"dietary_tags,omitempty"`
	Confidence  DishConfidence   `json:"confidence"`
	NeedsReview bool             `json:"needs_review" db:"needs_review"`
	Status      VenueStatus      `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}
