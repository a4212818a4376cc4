package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedhq/venuescout/internal/engine"
)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestGovernor_DailyHostCeiling(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	g := NewGovernor(HostPolicy{PerDay: 2, GlobalPerDay: 100}).
		WithClock(func() time.Time { return now }, noSleep)

	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, "wolt.com"))
	require.NoError(t, g.Acquire(ctx, "wolt.com"))

	err := g.Acquire(ctx, "wolt.com")
	require.Error(t, err)
	assert.Equal(t, engine.KindQuota, engine.KindOf(err))

	// Cooldown holds even within the same day for subsequent calls.
	err = g.Acquire(ctx, "wolt.com")
	require.Error(t, err)
	assert.Equal(t, engine.KindQuota, engine.KindOf(err))

	// Other hosts are unaffected.
	assert.NoError(t, g.Acquire(ctx, "ubereats.com"))
}

func TestGovernor_GlobalCap(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	g := NewGovernor(HostPolicy{GlobalPerDay: 2}).
		WithClock(func() time.Time { return now }, noSleep)

	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, "a.example"))
	require.NoError(t, g.Acquire(ctx, "b.example"))

	err := g.Acquire(ctx, "c.example")
	require.Error(t, err)
	assert.Equal(t, engine.KindQuota, engine.KindOf(err))
	assert.Equal(t, 2, g.GlobalUsedToday())
}

func TestGovernor_CountersResetNextDay(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	g := NewGovernor(HostPolicy{PerDay: 1, GlobalPerDay: 1}).
		WithClock(func() time.Time { return now }, noSleep)

	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, "wolt.com"))

	// Next day, past the 24h cooldown window.
	now = now.Add(25 * time.Hour)
	assert.NoError(t, g.Acquire(ctx, "wolt.com"))
}

func TestGovernor_JitteredDelayBounds(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	var slept []time.Duration
	g := NewGovernor(HostPolicy{MinDelay: 30 * time.Second, MaxDelay: 60 * time.Second, GlobalPerDay: 100}).
		WithClock(func() time.Time { return now }, func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		})

	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, "wolt.com"))
	require.NoError(t, g.Acquire(ctx, "wolt.com"))

	require.Len(t, slept, 1, "first request is unpaced")
	assert.GreaterOrEqual(t, slept[0], 30*time.Second)
	assert.Less(t, slept[0], 60*time.Second)
}
