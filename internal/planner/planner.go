// Package planner allocates a bounded query budget across four priority
// tiers: chain enumeration, high-yield strategies, city exploration, and
// experimental templates. Given identical snapshots and budget the plan is
// identical; every sort carries a stable-id tiebreaker.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/platforms"
)

// Tier identifies one of the four plan groups.
type Tier int

const (
	TierChainEnumeration Tier = iota + 1
	TierHighYield
	TierCityExploration
	TierExperimental
)

func (t Tier) String() string {
	switch t {
	case TierChainEnumeration:
		return "chain-enumeration"
	case TierHighYield:
		return "high-yield"
	case TierCityExploration:
		return "city-exploration"
	case TierExperimental:
		return "experimental"
	default:
		return "unknown"
	}
}

// Budget shares per tier, in percent. Leftover capacity is surrendered to
// the next tier, never borrowed backwards.
var tierShares = [4]int{40, 30, 20, 10}

// Query is one planned search query with its full origin context.
type Query struct {
	Tier       Tier               `json:"tier"`
	Text       string             `json:"text"`
	StrategyID string             `json:"strategy_id,omitempty"`
	ChainID    string             `json:"chain_id,omitempty"`
	ChainName  string             `json:"chain_name,omitempty"`
	City       string             `json:"city,omitempty"`
	Country    string             `json:"country,omitempty"`
	Platform   models.PlatformTag `json:"platform,omitempty"`
}

// TierPlan is one ordered query group with its target share.
type TierPlan struct {
	Tier    Tier    `json:"tier"`
	Target  int     `json:"target"`
	Queries []Query `json:"queries"`
}

// QueryPlan is the full allocation for one run.
type QueryPlan struct {
	Budget       int         `json:"budget"`
	Tiers        [4]TierPlan `json:"tiers"`
	TotalQueries int         `json:"total_queries"`
}

// ChainCoverage pairs a chain with the cities per country it operates in
// that have no discovered or promoted venue yet.
type ChainCoverage struct {
	Chain           models.Chain
	UncoveredCities map[string][]string
}

// CityStats is the discovery coverage of one city.
type CityStats struct {
	Country    string
	City       string
	VenueCount int
}

// CoverageGap scores how under-covered a city is; five venues close the gap.
func (c CityStats) CoverageGap() float64 {
	gap := 100 - 20*float64(c.VenueCount)
	if gap < 0 {
		gap = 0
	}
	return gap
}

// Snapshot is the frozen world state the planner allocates against.
type Snapshot struct {
	Chains     []ChainCoverage
	Strategies []models.DiscoveryStrategy
	Cities     []CityStats
	Platforms  []models.PlatformTag
	Countries  []string
	// PlatformBias orders experimental work toward platforms that the last
	// learning record found productive. Missing entries rank last.
	PlatformBias map[models.PlatformTag]float64
}

const (
	maxCitiesPerChainCountry = 5
	maxCitiesPerStrategy     = 10
	patternsPerCity          = 3
	minCityVenuesForCoverage = 5
	minHighYieldRate         = 50.0
	chainCoverageCeiling     = 80.0
)

// Planner allocates a budget over one snapshot.
type Planner struct {
	snap Snapshot
}

// New builds a planner over the snapshot.
func New(snap Snapshot) *Planner { return &Planner{snap: snap} }

// Allocate distributes totalBudget across the four tiers. The emitted
// query count never exceeds totalBudget and each tier never exceeds its
// running target (its share plus anything surrendered by earlier tiers).
func (p *Planner) Allocate(totalBudget int) QueryPlan {
	plan := QueryPlan{Budget: totalBudget}
	if totalBudget <= 0 {
		for i := range plan.Tiers {
			plan.Tiers[i] = TierPlan{Tier: Tier(i + 1)}
		}
		return plan
	}

	var shares [4]int
	for i := 0; i < 3; i++ {
		shares[i] = totalBudget * tierShares[i] / 100
	}
	// Last tier absorbs integer-division dust so the shares sum to budget.
	shares[3] = totalBudget - shares[0] - shares[1] - shares[2]

	carry := 0
	for i := 0; i < 4; i++ {
		target := shares[i] + carry

		var queries []Query
		switch Tier(i + 1) {
		case TierChainEnumeration:
			queries = p.chainEnumeration(target)
		case TierHighYield:
			queries = p.highYield(target)
		case TierCityExploration:
			queries = p.cityExploration(target)
		case TierExperimental:
			queries = p.experimental(target)
		}
		plan.Tiers[i] = TierPlan{Tier: Tier(i + 1), Target: target, Queries: queries}
		plan.TotalQueries += len(queries)
		carry = target - len(queries)
	}
	return plan
}

// chainEnumeration emits (chain, city, platform) triples for verified
// chains under 80% coverage, highest priority first.
func (p *Planner) chainEnumeration(target int) []Query {
	chains := lo.Filter(p.snap.Chains, func(c ChainCoverage, _ int) bool {
		return c.Chain.Verified && c.Chain.CoveragePct < chainCoverageCeiling
	})
	sort.Slice(chains, func(i, j int) bool {
		pi, pj := chains[i].Chain.EnumerationPriority(), chains[j].Chain.EnumerationPriority()
		if pi != pj {
			return pi > pj
		}
		return chains[i].Chain.ID < chains[j].Chain.ID
	})

	var out []Query
	for _, cc := range chains {
		countries := append([]string(nil), cc.Chain.Countries...)
		sort.Strings(countries)
		for _, country := range countries {
			cities := cc.UncoveredCities[country]
			if len(cities) > maxCitiesPerChainCountry {
				cities = cities[:maxCitiesPerChainCountry]
			}
			for _, city := range cities {
				for _, platform := range p.snap.Platforms {
					if len(out) >= target {
						return out
					}
					out = append(out, Query{
						Tier:      TierChainEnumeration,
						Text:      enumerationQuery(cc.Chain.Name, city, platform),
						ChainID:   cc.Chain.ID,
						ChainName: cc.Chain.Name,
						City:      city,
						Country:   country,
						Platform:  platform,
					})
				}
			}
		}
	}
	return out
}

// highYield expands proven strategies (uses >= 5, success rate >= 50, not
// deprecated) against the lowest-coverage cities in their country.
func (p *Planner) highYield(target int) []Query {
	strategies := lo.Filter(p.snap.Strategies, func(s models.DiscoveryStrategy, _ int) bool {
		return !s.Deprecated && !s.Untested() && s.SuccessRate() >= minHighYieldRate
	})
	sort.Slice(strategies, func(i, j int) bool {
		ri, rj := strategies[i].SuccessRate(), strategies[j].SuccessRate()
		if ri != rj {
			return ri > rj
		}
		if strategies[i].Uses != strategies[j].Uses {
			return strategies[i].Uses > strategies[j].Uses
		}
		return strategies[i].ID < strategies[j].ID
	})

	var out []Query
	for _, s := range strategies {
		cities := p.lowestCoverageCities(s.Country, maxCitiesPerStrategy)
		for _, city := range cities {
			if len(out) >= target {
				return out
			}
			out = append(out, Query{
				Tier:       TierHighYield,
				Text:       s.Interpolate(city.City, ""),
				StrategyID: s.ID,
				City:       city.City,
				Country:    s.Country,
				Platform:   s.Platform,
			})
		}
	}
	return out
}

// explorationPatterns are the three query shapes emitted per under-covered
// city in tier 3.
var explorationPatterns = []string{
	`vegan restaurant {city} planted`,
	`"planted" {city} lieferung delivery`,
	`planted chicken {city} restaurant menu`,
}

func (p *Planner) cityExploration(target int) []Query {
	var out []Query
	for _, country := range p.sortedCountries() {
		cities := lo.Filter(p.snap.Cities, func(c CityStats, _ int) bool {
			return c.Country == country && c.VenueCount < minCityVenuesForCoverage
		})
		sort.Slice(cities, func(i, j int) bool {
			gi, gj := cities[i].CoverageGap(), cities[j].CoverageGap()
			if gi != gj {
				return gi > gj
			}
			return cities[i].City < cities[j].City
		})
		for _, city := range cities {
			for _, pattern := range explorationPatterns {
				if len(out) >= target {
					return out
				}
				out = append(out, Query{
					Tier:    TierCityExploration,
					Text:    strings.ReplaceAll(pattern, "{city}", city.City),
					City:    city.City,
					Country: country,
				})
			}
		}
	}
	return out
}

// experimentalFamilies is the closed set of tier-4 template families:
// product-specific, cross-platform, localised, and menu/dish-centric.
var experimentalFamilies = []string{
	`planted.kebab {city}`,
	`planted {city} site:{platform}`,
	`planted poulet {city} végane`,
	`menu "planted chicken" {city}`,
}

func (p *Planner) experimental(target int) []Query {
	cities := append([]CityStats(nil), p.snap.Cities...)
	sort.Slice(cities, func(i, j int) bool {
		gi, gj := cities[i].CoverageGap(), cities[j].CoverageGap()
		if gi != gj {
			return gi > gj
		}
		if cities[i].Country != cities[j].Country {
			return cities[i].Country < cities[j].Country
		}
		return cities[i].City < cities[j].City
	})

	var out []Query
	for _, city := range cities {
		for fi, family := range experimentalFamilies {
			if len(out) >= target {
				return out
			}
			platform := p.biasedPlatform(fi)
			text := strings.ReplaceAll(family, "{city}", city.City)
			text = strings.ReplaceAll(text, "{platform}", platforms.Domain(platform))
			out = append(out, Query{
				Tier:     TierExperimental,
				Text:     text,
				City:     city.City,
				Country:  city.Country,
				Platform: platform,
			})
		}
	}
	return out
}

// biasedPlatform rotates through the configured platforms ordered by the
// last learning record's per-platform success rate, best first.
func (p *Planner) biasedPlatform(i int) models.PlatformTag {
	if len(p.snap.Platforms) == 0 {
		return ""
	}
	ordered := append([]models.PlatformTag(nil), p.snap.Platforms...)
	sort.Slice(ordered, func(a, b int) bool {
		ba, bb := p.snap.PlatformBias[ordered[a]], p.snap.PlatformBias[ordered[b]]
		if ba != bb {
			return ba > bb
		}
		return ordered[a] < ordered[b]
	})
	return ordered[i%len(ordered)]
}

func (p *Planner) lowestCoverageCities(country string, limit int) []CityStats {
	cities := lo.Filter(p.snap.Cities, func(c CityStats, _ int) bool {
		return c.Country == country
	})
	sort.Slice(cities, func(i, j int) bool {
		gi, gj := cities[i].CoverageGap(), cities[j].CoverageGap()
		if gi != gj {
			return gi > gj
		}
		return cities[i].City < cities[j].City
	})
	if len(cities) > limit {
		cities = cities[:limit]
	}
	return cities
}

func (p *Planner) sortedCountries() []string {
	out := append([]string(nil), p.snap.Countries...)
	sort.Strings(out)
	return out
}

func enumerationQuery(chain, city string, platform models.PlatformTag) string {
	domain := platforms.Domain(platform)
	if domain == "" {
		return fmt.Sprintf("%q %s planted", chain, city)
	}
	return fmt.Sprintf("%q %s site:%s", chain, city, domain)
}
