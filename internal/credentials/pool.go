// Package credentials rotates search-engine API credentials across a
// shared daily quota. The pool is the only write-contended process-wide
// resource; every mutation goes through its API.
package credentials

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantedhq/venuescout/internal/logging"
	"github.com/plantedhq/venuescout/internal/models"
)

// maxConsecutiveFailures is the hard-failure streak within one UTC day
// after which a credential is disabled pending operator action.
const maxConsecutiveFailures = 3

// Lease is a granted credential. The lease already counted against the
// daily quota; callers only report the outcome, never commit usage.
type Lease struct {
	CredentialID string
	APIKey       string
	EngineID     string
}

// PoolStats is a point-in-time summary of the pool.
type PoolStats struct {
	Total      int   `json:"total"`
	Enabled    int   `json:"enabled"`
	Exhausted  int   `json:"exhausted"`
	UsedToday  int   `json:"used_today"`
	QuotaToday int   `json:"quota_today"`
	AllTime    int64 `json:"all_time"`
}

// Pool balances leases across credentials, lowest used-today first.
type Pool struct {
	mu    sync.Mutex
	creds []*models.SearchCredential
	now   func() time.Time
	log   zerolog.Logger
}

// NewPool builds a pool over the given credentials. The slice is owned by
// the pool afterwards.
func NewPool(creds []*models.SearchCredential) *Pool {
	return &Pool{creds: creds, now: time.Now, log: logging.Component("credential-pool")}
}

// WithClock overrides the pool clock, for tests.
func (p *Pool) WithClock(now func() time.Time) *Pool {
	p.now = now
	return p
}

// Lease selects the enabled credential with the lowest used-today counter
// (ties broken by id for determinism), lazily resets stale daily counters,
// and atomically counts the query against it. A false return means no
// credential has quota left; callers treat that as soft backpressure, not
// an error.
func (p *Pool) Lease() (Lease, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var best *models.SearchCredential
	for _, c := range p.creds {
		c.ResetIfStale(now)
		if !c.Available() {
			continue
		}
		if best == nil || c.UsedToday < best.UsedToday ||
			(c.UsedToday == best.UsedToday && c.ID < best.ID) {
			best = c
		}
	}
	if best == nil {
		return Lease{}, false
	}

	best.UsedToday++
	best.TotalAllTime++
	best.UpdatedAt = now
	return Lease{CredentialID: best.ID, APIKey: best.APIKey, EngineID: best.EngineID}, true
}

// Report records the outcome of a leased query. quotaExhausted forces the
// credential to its daily quota for the rest of the day, guarding against
// under-counted provider-side limits. Three consecutive hard failures in a
// day disable the credential with reason "auth-failure".
func (p *Pool) Report(credentialID string, success bool, quotaExhausted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.byID(credentialID)
	if c == nil {
		return
	}
	now := p.now()
	c.UpdatedAt = now

	if quotaExhausted {
		c.UsedToday = c.DailyQuota
		p.log.Warn().Str("credential", c.ID).Msg("credential reported quota-exhausted by provider")
	}
	if success {
		c.ClearFailures()
		return
	}
	if streak := c.RecordFailure(now); streak >= maxConsecutiveFailures {
		c.Disabled = true
		c.DisabledReason = "auth-failure"
		p.log.Error().Str("credential", c.ID).Int("failures", streak).
			Msg("credential disabled after consecutive failures")
	}
}

// Stats returns a snapshot summary across all credentials.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s PoolStats
	now := p.now()
	for _, c := range p.creds {
		c.ResetIfStale(now)
		s.Total++
		s.UsedToday += c.UsedToday
		s.QuotaToday += c.DailyQuota
		s.AllTime += c.TotalAllTime
		if c.Disabled {
			continue
		}
		s.Enabled++
		if c.UsedToday >= c.DailyQuota {
			s.Exhausted++
		}
	}
	return s
}

// Snapshot returns copies of the credentials in id order, for persistence
// and reporting.
func (p *Pool) Snapshot() []models.SearchCredential {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.SearchCredential, 0, len(p.creds))
	for _, c := range p.creds {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *Pool) byID(id string) *models.SearchCredential {
	for _, c := range p.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}
