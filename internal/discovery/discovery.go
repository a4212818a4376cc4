// Package discovery is the query execution engine: it turns a query plan
// into staged candidate venues, feeding outcomes back into the strategy
// statistics the next plan is built from.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/sync/errgroup"

	"github.com/plantedhq/venuescout/internal/classify"
	"github.com/plantedhq/venuescout/internal/config"
	"github.com/plantedhq/venuescout/internal/credentials"
	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/logging"
	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/planner"
	"github.com/plantedhq/venuescout/internal/platforms"
	"github.com/plantedhq/venuescout/internal/search"
	"github.com/plantedhq/venuescout/internal/store"
)

// Candidate acceptance thresholds feeding the strategy counters.
const (
	successConfidence  = 70.0
	negativeConfidence = 20.0
)

// TierCount summarises one tier's execution for the run report.
type TierCount struct {
	Tier     planner.Tier `json:"tier"`
	Planned  int          `json:"planned"`
	Executed int          `json:"executed"`
}

// RunReport aggregates one discovery run.
type RunReport struct {
	Mode              config.DiscoveryMode `json:"mode"`
	DryRun            bool                 `json:"dry_run"`
	StartedAt         time.Time            `json:"started_at"`
	Duration          time.Duration        `json:"duration"`
	QueriesPlanned    int                  `json:"queries_planned"`
	QueriesExecuted   int                  `json:"queries_executed"`
	QueriesSuccessful int                  `json:"queries_successful"`
	QueriesClassified int                  `json:"queries_classified"`
	NewVenues         int                  `json:"new_venues"`
	MergedVenues      int                  `json:"merged_venues"`
	SkippedRejected   int                  `json:"skipped_rejected"`
	ChainsDetected    int                  `json:"chains_detected"`
	Backpressure      bool                 `json:"backpressure"`
	Tiers             []TierCount          `json:"tiers"`
	Errors            []string             `json:"errors,omitempty"`
}

// Runner executes discovery runs against one store.
type Runner struct {
	cfg        config.Discovery
	st         store.Store
	pool       *credentials.Pool
	search     *search.Client
	classifier *classify.Service
	log        zerolog.Logger
	now        func() time.Time

	// stageMu serializes the dedupe-then-upsert step so concurrent
	// workers cannot double-insert one venue.
	stageMu sync.Mutex
	// repMu guards the report and chain set during fan-out.
	repMu sync.Mutex
}

// NewRunner builds a discovery runner.
func NewRunner(cfg config.Discovery, st store.Store, pool *credentials.Pool, sc *search.Client, classifier *classify.Service) *Runner {
	return &Runner{
		cfg:        cfg,
		st:         st,
		pool:       pool,
		search:     sc,
		classifier: classifier,
		log:        logging.Component("discovery"),
		now:        time.Now,
	}
}

// WithClock overrides the runner clock, for tests.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run plans and executes one discovery run. Tiers run in order; inside a
// tier, queries fan out over a worker pool sized by the configured
// concurrency. Exhausted credentials abort the remaining queries of the
// tier and mark the report with backpressure.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	started := r.now()
	rep := &RunReport{Mode: r.cfg.Mode, DryRun: r.cfg.DryRun, StartedAt: started}

	snap, err := r.snapshot(ctx)
	if err != nil {
		return rep, err
	}
	plan := planner.New(snap).Allocate(r.cfg.MaxQueries)
	rep.QueriesPlanned = plan.TotalQueries

	chains := map[string]bool{}
	for _, tier := range plan.Tiers {
		tc := TierCount{Tier: tier.Tier, Planned: len(tier.Queries)}
		if !r.cfg.DryRun && !rep.Backpressure {
			tc.Executed = r.runTier(ctx, tier.Queries, rep, chains)
		}
		rep.Tiers = append(rep.Tiers, tc)
		if err := ctx.Err(); err != nil {
			rep.Duration = r.now().Sub(started)
			return rep, err
		}
	}

	rep.ChainsDetected = len(chains)
	rep.Duration = r.now().Sub(started)
	r.log.Info().
		Str("mode", string(r.cfg.Mode)).
		Int("planned", rep.QueriesPlanned).
		Int("executed", rep.QueriesExecuted).
		Int("new_venues", rep.NewVenues).
		Bool("backpressure", rep.Backpressure).
		Msg("discovery run complete")
	return rep, nil
}

// snapshot freezes the world state the planner allocates against.
func (r *Runner) snapshot(ctx context.Context) (planner.Snapshot, error) {
	snap := planner.Snapshot{
		Platforms: r.cfg.Platforms,
		Countries: r.cfg.Countries,
	}

	verified, err := r.st.Chains().ListVerified(ctx)
	if err != nil {
		return snap, engine.E(engine.KindFatal, "discovery.snapshot", err)
	}
	explicit := map[string]bool{}
	for _, id := range r.cfg.Chains {
		explicit[id] = true
	}
	for _, c := range verified {
		if len(explicit) > 0 && !explicit[c.ID] {
			continue
		}
		snap.Chains = append(snap.Chains, planner.ChainCoverage{
			Chain:           c,
			UncoveredCities: r.uncoveredCities(ctx, c),
		})
	}

	snap.Strategies, err = r.st.Strategies().ListActive(ctx)
	if err != nil {
		return snap, engine.E(engine.KindFatal, "discovery.snapshot", err)
	}

	for _, country := range r.cfg.Countries {
		counts, err := r.st.Venues().CityVenueCounts(ctx, country)
		if err != nil {
			return snap, engine.E(engine.KindFatal, "discovery.snapshot", err)
		}
		for _, city := range sortedCityKeys(counts) {
			snap.Cities = append(snap.Cities, planner.CityStats{
				Country: country, City: city, VenueCount: counts[city],
			})
		}
		for _, city := range seedCities[country] {
			if _, ok := counts[city]; !ok {
				snap.Cities = append(snap.Cities, planner.CityStats{Country: country, City: city})
			}
		}
	}

	if latest, err := r.st.Learning().Latest(ctx); err == nil {
		snap.PlatformBias = latest.PlatformBias()
	}
	return snap, nil
}

// uncoveredCities lists, per country, the seed cities where the chain has
// no discovered or promoted venue yet.
func (r *Runner) uncoveredCities(ctx context.Context, c models.Chain) map[string][]string {
	out := map[string][]string{}
	for _, country := range c.Countries {
		counts, err := r.st.Venues().CityVenueCounts(ctx, country)
		if err != nil {
			continue
		}
		for _, city := range seedCities[country] {
			if counts[city] == 0 {
				out[country] = append(out[country], city)
			}
		}
		sort.Strings(out[country])
	}
	return out
}

// runTier fans the tier's queries over the worker pool and returns the
// executed count.
func (r *Runner) runTier(ctx context.Context, queries []planner.Query, rep *RunReport, chains map[string]bool) int {
	concurrency := r.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	r.repMu.Lock()
	before := rep.QueriesExecuted
	r.repMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, q := range queries {
		q := q
		r.repMu.Lock()
		abort := rep.Backpressure
		r.repMu.Unlock()
		if abort {
			break
		}
		g.Go(func() error {
			r.runQuery(gctx, q, rep, chains)
			return gctx.Err()
		})
	}
	_ = g.Wait()

	r.repMu.Lock()
	defer r.repMu.Unlock()
	return rep.QueriesExecuted - before
}

// runQuery executes one planned query end to end: lease, search,
// classify, stage, record.
func (r *Runner) runQuery(ctx context.Context, q planner.Query, rep *RunReport, chains map[string]bool) {
	lease, ok := r.pool.Lease()
	if !ok {
		r.repMu.Lock()
		rep.Backpressure = true
		r.repMu.Unlock()
		r.log.Warn().Str("tier", q.Tier.String()).Msg("credential pool exhausted, surrendering remaining tier budget")
		return
	}

	r.repMu.Lock()
	rep.QueriesExecuted++
	r.repMu.Unlock()

	hits, err := r.search.Search(ctx, q.Text, lease)
	if err != nil {
		quota := engine.KindOf(err) == engine.KindQuota
		r.pool.Report(lease.CredentialID, false, quota)
		r.recordError(rep, fmt.Sprintf("search %q: %v", q.Text, err))
		return
	}
	r.pool.Report(lease.CredentialID, true, false)

	r.repMu.Lock()
	rep.QueriesSuccessful++
	r.repMu.Unlock()

	in := classify.Input{
		Query:    q.Text,
		Hits:     hits,
		Country:  q.Country,
		City:     q.City,
		Platform: q.Platform,
	}
	if r.cfg.Mode == config.ModeEnumerate || q.ChainName != "" {
		in.ChainFilter = q.ChainName
	}
	candidates, err := r.classifier.Classify(ctx, in)
	if err != nil {
		// Executed but not classified; the use still counts.
		if q.StrategyID != "" {
			_ = r.st.Strategies().RecordUse(ctx, q.StrategyID, false, false)
		}
		r.recordError(rep, fmt.Sprintf("classify %q: %v", q.Text, err))
		return
	}

	r.repMu.Lock()
	rep.QueriesClassified++
	r.repMu.Unlock()

	success, negative := false, false
	for _, c := range candidates {
		if in.ChainFilter != "" && !fuzzyChainMatch(c.Name, in.ChainFilter) {
			continue
		}
		if c.Confidence < negativeConfidence || hasNonVenueLink(c) {
			negative = true
			continue
		}
		isNew, err := r.stage(ctx, q, c, rep)
		if err != nil {
			r.recordError(rep, fmt.Sprintf("stage %q: %v", c.Name, err))
			continue
		}
		if isNew && c.Confidence >= successConfidence {
			success = true
		}
		if c.ChainGuess != "" {
			r.repMu.Lock()
			chains[strings.ToLower(c.ChainGuess)] = true
			r.repMu.Unlock()
		}
	}

	if q.StrategyID != "" {
		fp := negative && !success
		if err := r.st.Strategies().RecordUse(ctx, q.StrategyID, success, fp); err != nil {
			r.recordError(rep, fmt.Sprintf("strategy %s: %v", q.StrategyID, err))
		}
	}
}

// stage dedupes and upserts one candidate. Returns whether a new venue
// was created; merges into an existing venue and skips of rejected
// duplicates both report false so re-runs do not inflate strategy
// success counters.
func (r *Runner) stage(ctx context.Context, q planner.Query, c classify.Candidate, rep *RunReport) (bool, error) {
	r.stageMu.Lock()
	defer r.stageMu.Unlock()

	key := models.DedupeKeyFor(c.Name, c.City, c.Links)
	existing, err := r.st.Venues().FindByDedupeKey(ctx, key)
	switch {
	case err == nil:
		if existing.Status == models.VenueRejected {
			r.repMu.Lock()
			rep.SkippedRejected++
			r.repMu.Unlock()
			return false, nil
		}
		if existing.MergeLinks(c.Links) > 0 {
			if err := r.st.Venues().Update(ctx, existing); err != nil {
				return false, err
			}
			r.repMu.Lock()
			rep.MergedVenues++
			r.repMu.Unlock()
		}
		return false, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	venue := &models.DiscoveredVenue{
		ID:   uuid.NewString(),
		Name: c.Name,
		Address: models.Address{
			Street:     c.Street,
			City:       c.City,
			PostalCode: c.PostalCode,
			Country:    firstNonEmpty(c.Country, q.Country),
		},
		PlatformLinks: c.Links,
		Confidence:    c.Confidence,
		Breakdown: models.ConfidenceBreakdown{
			Positive: c.PositiveFactors,
			Negative: c.NegativeFactors,
		},
		Status:      models.VenueDiscovered,
		SearchQuery: q.Text,
	}
	if q.StrategyID != "" {
		sid := q.StrategyID
		venue.StrategyID = &sid
	}
	if q.ChainID != "" {
		cid := q.ChainID
		venue.ChainID = &cid
	}
	if err := r.st.Venues().Insert(ctx, venue); err != nil {
		return false, err
	}
	r.repMu.Lock()
	rep.NewVenues++
	r.repMu.Unlock()
	return true, nil
}

func (r *Runner) recordError(rep *RunReport, msg string) {
	r.repMu.Lock()
	rep.Errors = append(rep.Errors, msg)
	r.repMu.Unlock()
}

// hasNonVenueLink reports whether any of the candidate's links is a
// search, category or help page. Such hits count as negative signal for
// the originating strategy.
func hasNonVenueLink(c classify.Candidate) bool {
	for _, l := range c.Links {
		if platforms.NonVenueURL(l.URL) {
			return true
		}
	}
	return false
}

// fuzzyChainMatch accepts a candidate for chain enumeration when the
// chain name is a substring of the venue name or within a third of the
// chain name's length in edit distance.
func fuzzyChainMatch(venueName, chainName string) bool {
	v := strings.ToLower(strings.TrimSpace(venueName))
	c := strings.ToLower(strings.TrimSpace(chainName))
	if c == "" {
		return true
	}
	if strings.Contains(v, c) {
		return true
	}
	dist := levenshtein.DistanceForStrings([]rune(v), []rune(c), levenshtein.DefaultOptions)
	return dist <= len([]rune(c))/3
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedCityKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// seedCities are the market cities enumerated when the store has no
// coverage data for a country yet.
var seedCities = map[string][]string{
	"CH": {"Zurich", "Geneva", "Basel", "Bern", "Lausanne", "Winterthur", "Lucerne", "St. Gallen"},
	"DE": {"Berlin", "Hamburg", "Munich", "Cologne", "Frankfurt", "Stuttgart", "Dusseldorf", "Leipzig"},
	"AT": {"Vienna", "Graz", "Linz", "Salzburg", "Innsbruck"},
	"FR": {"Paris", "Lyon", "Marseille", "Toulouse", "Nice"},
	"GB": {"London", "Manchester", "Birmingham", "Edinburgh", "Bristol"},
}
