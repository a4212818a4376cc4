package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedhq/venuescout/internal/models"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Chains: []ChainCoverage{
			{
				Chain: models.Chain{
					ID: "chain-hitzberger", Name: "Hitzberger", Verified: true,
					Countries: []string{"CH"}, LocationCount: 12, CoveragePct: 10,
				},
				UncoveredCities: map[string][]string{
					"CH": {"Zurich", "Bern", "Basel"},
				},
			},
		},
		Strategies: []models.DiscoveryStrategy{
			{ID: "s-good", Template: "planted burger {city}", Country: "CH", Platform: models.PlatformWolt, Uses: 10, Successes: 8},
			{ID: "s-untested", Template: "planted wrap {city}", Country: "CH", Platform: models.PlatformWolt, Uses: 4, Successes: 4},
			{ID: "s-weak", Template: "vegan {city}", Country: "CH", Platform: models.PlatformWolt, Uses: 20, Successes: 5},
			{ID: "s-deprecated", Template: "old {city}", Country: "CH", Platform: models.PlatformWolt, Uses: 30, Successes: 30, Deprecated: true},
		},
		Cities: []CityStats{
			{Country: "CH", City: "Zurich", VenueCount: 1},
			{Country: "CH", City: "Bern", VenueCount: 0},
			{Country: "CH", City: "Geneva", VenueCount: 6},
		},
		Platforms: []models.PlatformTag{models.PlatformUberEats, models.PlatformWolt},
		Countries: []string{"CH"},
	}
}

func TestAllocate_ZeroBudget(t *testing.T) {
	plan := New(testSnapshot()).Allocate(0)
	assert.Equal(t, 0, plan.TotalQueries)
	for _, tier := range plan.Tiers {
		assert.Empty(t, tier.Queries)
	}
}

func TestAllocate_RespectsBudgetAndShares(t *testing.T) {
	plan := New(testSnapshot()).Allocate(100)

	assert.LessOrEqual(t, plan.TotalQueries, 100)
	// Tier targets are 40/30/20/10 plus anything surrendered upstream.
	assert.LessOrEqual(t, len(plan.Tiers[0].Queries), 40)
	for i, tier := range plan.Tiers {
		assert.LessOrEqual(t, len(tier.Queries), tier.Target, "tier %d over target", i+1)
	}
}

func TestAllocate_LeftoverSurrendersForward(t *testing.T) {
	snap := testSnapshot()
	// One chain, one country, three cities, two platforms: tier 1 can emit
	// at most 6 queries out of its 40 share.
	plan := New(snap).Allocate(100)

	require.Len(t, plan.Tiers[0].Queries, 6)
	assert.Equal(t, 40, plan.Tiers[0].Target)
	assert.Equal(t, 30+34, plan.Tiers[1].Target, "tier 2 absorbs tier 1 leftover")
}

func TestAllocate_ChainCoverageCeiling(t *testing.T) {
	snap := testSnapshot()
	snap.Chains[0].Chain.CoveragePct = 80
	plan := New(snap).Allocate(100)
	assert.Empty(t, plan.Tiers[0].Queries, "chains at 80%% coverage are excluded")
}

func TestAllocate_HighYieldInclusionBoundary(t *testing.T) {
	snap := Snapshot{
		Strategies: []models.DiscoveryStrategy{
			{ID: "s-four", Template: "a {city}", Country: "CH", Uses: 4, Successes: 4},
			{ID: "s-five", Template: "b {city}", Country: "CH", Uses: 5, Successes: 3}, // 60%
			{ID: "s-edge", Template: "c {city}", Country: "CH", Uses: 10, Successes: 5}, // exactly 50%
		},
		Cities:    []CityStats{{Country: "CH", City: "Zurich", VenueCount: 0}},
		Countries: []string{"CH"},
	}
	plan := New(snap).Allocate(100)

	ids := map[string]bool{}
	for _, q := range plan.Tiers[1].Queries {
		ids[q.StrategyID] = true
	}
	assert.False(t, ids["s-four"], "uses=4 is untested and excluded")
	assert.True(t, ids["s-five"])
	assert.True(t, ids["s-edge"], "success_rate exactly 50 is included")
}

func TestAllocate_Deterministic(t *testing.T) {
	snap := testSnapshot()
	a := New(snap).Allocate(100)
	b := New(snap).Allocate(100)
	require.Equal(t, a, b, "identical snapshots and budget must produce identical plans")
}

func TestAllocate_CityExplorationSkipsCoveredCities(t *testing.T) {
	plan := New(testSnapshot()).Allocate(200)
	for _, q := range plan.Tiers[2].Queries {
		assert.NotEqual(t, "Geneva", q.City, "cities with >= 5 venues are not explored")
	}
}

func TestTierString(t *testing.T) {
	// Report tables print these names; every tier must render as a word.
	cases := map[Tier]string{
		TierChainEnumeration: "chain-enumeration",
		TierHighYield:        "high-yield",
		TierCityExploration:  "city-exploration",
		TierExperimental:     "experimental",
		Tier(9):              "unknown",
	}
	for tier, want := range cases {
		assert.Equal(t, want, tier.String())
	}
}

func TestChainEnumerationPriority(t *testing.T) {
	c := models.Chain{Countries: []string{"CH", "DE"}, LocationCount: 60, CoveragePct: 10}
	// 50 + 20 (countries) + 20 (locations) + 20 (coverage) = 110, capped.
	assert.Equal(t, 100.0, c.EnumerationPriority())

	small := models.Chain{Countries: []string{"CH"}, LocationCount: 5, CoveragePct: 60}
	assert.Equal(t, 60.0, small.EnumerationPriority())
}
