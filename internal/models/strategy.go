package models

import (
	"fmt"
	"strings"
	"time"
)

// UntestedUses is the uses threshold below which a strategy is considered
// untested and excluded from the high-yield tier.
const UntestedUses = 5

// DiscoveryStrategy is a parameterised search query template with usage
// statistics. Templates interpolate {city}, {chain}, and {platform}.
type DiscoveryStrategy struct {
	ID             string      `json:"id" db:"id"`
	Template       string      `json:"template" db:"template"`
	Platform       PlatformTag `json:"platform" db:"platform"`
	Country        string      `json:"country" db:"country"`
	Tags           []string    `json:"tags,omitempty"`
	Uses           int         `json:"uses" db:"uses"`
	Successes      int         `json:"successes" db:"successes"`
	FalsePositives int         `json:"false_positives" db:"false_positives"`
	Deprecated     bool        `json:"deprecated" db:"deprecated"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// SuccessRate is successes over uses as a percentage in [0,100]. An unused
// strategy rates zero.
func (s *DiscoveryStrategy) SuccessRate() float64 {
	if s.Uses == 0 {
		return 0
	}
	return 100 * float64(s.Successes) / float64(s.Uses)
}

// Untested reports whether the strategy has too few uses to trust its rate.
func (s *DiscoveryStrategy) Untested() bool { return s.Uses < UntestedUses }

// Validate enforces counter consistency.
func (s *DiscoveryStrategy) Validate() error {
	if s.Successes+s.FalsePositives > s.Uses {
		return fmt.Errorf("strategy %s: successes+false_positives (%d) exceeds uses (%d)",
			s.ID, s.Successes+s.FalsePositives, s.Uses)
	}
	return nil
}

// Interpolate fills the template slots. Unused slots are left untouched so
// malformed templates are visible in run output rather than silently empty.
func (s *DiscoveryStrategy) Interpolate(city, chain string) string {
	r := strings.NewReplacer(
		"{city}", city,
		"{chain}", chain,
		"{platform}", string(s.Platform),
	)
	return r.Replace(s.Template)
}
