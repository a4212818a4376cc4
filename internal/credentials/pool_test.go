package credentials

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedhq/venuescout/internal/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testCred(id string, quota, used int) *models.SearchCredential {
	return &models.SearchCredential{
		ID:            id,
		APIKey:        "key-" + id,
		EngineID:      "engine-" + id,
		DailyQuota:    quota,
		UsedToday:     used,
		LastResetDate: models.UTCDay(time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)),
	}
}

func TestPool_Lease_PicksLowestUsed(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	pool := NewPool([]*models.SearchCredential{
		testCred("b", 100, 5),
		testCred("a", 100, 2),
		testCred("c", 100, 9),
	}).WithClock(fixedClock(now))

	lease, ok := pool.Lease()
	require.True(t, ok)
	assert.Equal(t, "a", lease.CredentialID)
	assert.Equal(t, "key-a", lease.APIKey)

	// Counter was incremented atomically with the lease.
	snap := pool.Snapshot()
	assert.Equal(t, 3, snap[0].UsedToday)
	assert.Equal(t, int64(1), snap[0].TotalAllTime)
}

func TestPool_Lease_TiesBreakByID(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	pool := NewPool([]*models.SearchCredential{
		testCred("z", 100, 4),
		testCred("m", 100, 4),
	}).WithClock(fixedClock(now))

	lease, ok := pool.Lease()
	require.True(t, ok)
	assert.Equal(t, "m", lease.CredentialID)
}

func TestPool_Lease_QuotaBoundary(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	pool := NewPool([]*models.SearchCredential{
		testCred("a", 10, 9),
	}).WithClock(fixedClock(now))

	// queriesUsedToday = dailyQuota-1 serves exactly one more lease.
	_, ok := pool.Lease()
	require.True(t, ok)

	_, ok = pool.Lease()
	assert.False(t, ok, "credential at quota must return no lease")
}

func TestPool_Lease_DailyReset(t *testing.T) {
	yesterday := time.Date(2026, 8, 23, 23, 0, 0, 0, time.UTC)
	cred := testCred("a", 10, 10)
	cred.LastResetDate = models.UTCDay(yesterday)

	today := time.Date(2026, 8, 24, 0, 30, 0, 0, time.UTC)
	pool := NewPool([]*models.SearchCredential{cred}).WithClock(fixedClock(today))

	lease, ok := pool.Lease()
	require.True(t, ok, "stale counter must reset at UTC day boundary")
	assert.Equal(t, "a", lease.CredentialID)

	snap := pool.Snapshot()
	assert.Equal(t, 1, snap[0].UsedToday)
	assert.Equal(t, models.UTCDay(today), snap[0].LastResetDate)
}

func TestPool_Report_QuotaExhaustedForcesQuota(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	pool := NewPool([]*models.SearchCredential{
		testCred("a", 100, 1),
	}).WithClock(fixedClock(now))

	lease, ok := pool.Lease()
	require.True(t, ok)
	pool.Report(lease.CredentialID, false, true)

	_, ok = pool.Lease()
	assert.False(t, ok, "quota-exhausted credential must not lease again today")

	snap := pool.Snapshot()
	assert.Equal(t, snap[0].DailyQuota, snap[0].UsedToday)
}

func TestPool_Report_ThreeFailuresDisable(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	pool := NewPool([]*models.SearchCredential{
		testCred("a", 100, 0),
	}).WithClock(fixedClock(now))

	for i := 0; i < 3; i++ {
		lease, ok := pool.Lease()
		require.True(t, ok)
		pool.Report(lease.CredentialID, false, false)
	}

	snap := pool.Snapshot()
	assert.True(t, snap[0].Disabled)
	assert.Equal(t, "auth-failure", snap[0].DisabledReason)

	_, ok := pool.Lease()
	assert.False(t, ok)
}

func TestPool_Report_SuccessClearsStreak(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	pool := NewPool([]*models.SearchCredential{
		testCred("a", 100, 0),
	}).WithClock(fixedClock(now))

	for i := 0; i < 2; i++ {
		lease, _ := pool.Lease()
		pool.Report(lease.CredentialID, false, false)
	}
	lease, _ := pool.Lease()
	pool.Report(lease.CredentialID, true, false)
	for i := 0; i < 2; i++ {
		lease, _ = pool.Lease()
		pool.Report(lease.CredentialID, false, false)
	}

	snap := pool.Snapshot()
	assert.False(t, snap[0].Disabled, "success must reset the failure streak")
}

func TestPool_Stats(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	exhausted := testCred("b", 5, 5)
	disabled := testCred("c", 5, 0)
	disabled.Disabled = true
	pool := NewPool([]*models.SearchCredential{
		testCred("a", 100, 10), exhausted, disabled,
	}).WithClock(fixedClock(now))

	s := pool.Stats()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Enabled)
	assert.Equal(t, 1, s.Exhausted)
	assert.Equal(t, 15, s.UsedToday)
}
