package models

import "time"

// Chain is a verified restaurant partner operating in one or more
// countries. Coverage is the fraction of its known locations present as
// discovered or promoted venues.
type Chain struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Countries     []string  `json:"countries"`
	LocationCount int       `json:"location_count" db:"location_count"`
	CoveragePct   float64   `json:"coverage_pct" db:"coverage_pct"`
	Verified      bool      `json:"verified" db:"verified"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// EnumerationPriority scores a chain for the planner's first tier. The
// score rewards breadth (countries), size (locations) and low coverage,
// capped at 100.
func (c *Chain) EnumerationPriority() float64 {
	p := 50.0 + 10.0*float64(len(c.Countries))
	switch {
	case c.LocationCount > 50:
		p += 20
	case c.LocationCount > 20:
		p += 10
	}
	switch {
	case c.CoveragePct < 20:
		p += 20
	case c.CoveragePct < 50:
		p += 10
	}
	if p > 100 {
		p = 100
	}
	return p
}
