package models

import "time"

// DefaultDailyQuota is the per-credential search query allowance per UTC day.
const DefaultDailyQuota = 100

// SearchCredential is a pair of opaque identifiers granting a daily quota
// of search queries. Usage counters are scoped to a UTC calendar day and
// reset lazily on lease.
type SearchCredential struct {
	ID              string     `json:"id" db:"id"`
	APIKey          string     `json:"-" db:"api_key"`
	EngineID        string     `json:"-" db:"engine_id"`
	DailyQuota      int        `json:"daily_quota" db:"daily_quota"`
	UsedToday       int        `json:"queries_used_today" db:"queries_used_today"`
	TotalAllTime    int64      `json:"total_queries_all_time" db:"total_queries_all_time"`
	LastResetDate   string     `json:"last_reset_date" db:"last_reset_date"` // YYYY-MM-DD, UTC
	Disabled        bool       `json:"disabled" db:"disabled"`
	DisabledReason  string     `json:"disabled_reason,omitempty" db:"disabled_reason"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	lastFailureDay  string
	consecFailures  int
}

// UTCDay formats t as the credential reset-date key.
func UTCDay(t time.Time) string { return t.UTC().Format("2006-01-02") }

// ResetIfStale zeroes the daily counter when the stored reset date is not
// today (UTC). Returns true when a reset happened.
func (c *SearchCredential) ResetIfStale(now time.Time) bool {
	day := UTCDay(now)
	if c.LastResetDate == day {
		return false
	}
	c.LastResetDate = day
	c.UsedToday = 0
	c.consecFailures = 0
	c.lastFailureDay = ""
	return true
}

// Available reports whether the credential can serve one more query today.
func (c *SearchCredential) Available() bool {
	return !c.Disabled && c.UsedToday < c.DailyQuota
}

// RecordFailure tracks consecutive hard failures within a single UTC day.
// Returns the updated streak length.
func (c *SearchCredential) RecordFailure(now time.Time) int {
	day := UTCDay(now)
	if c.lastFailureDay != day {
		c.consecFailures = 0
		c.lastFailureDay = day
	}
	c.consecFailures++
	return c.consecFailures
}

// ClearFailures resets the consecutive failure streak after a success.
func (c *SearchCredential) ClearFailures() { c.consecFailures = 0 }
