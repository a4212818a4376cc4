// Package extraction is the dish extraction engine: it fetches venue
// pages under the conservative pacing discipline, keeps only dishes that
// carry the brand token, maps each to one catalog product, and scores a
// five-factor confidence.
package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plantedhq/venuescout/internal/config"
	"github.com/plantedhq/venuescout/internal/engine"
	"github.com/plantedhq/venuescout/internal/fetch"
	"github.com/plantedhq/venuescout/internal/logging"
	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/platforms"
	"github.com/plantedhq/venuescout/internal/store"
)

const (
	// maxConsecutiveFailures flips a venue to extraction_failed.
	maxConsecutiveFailures = 3
	// failureCooldown is how long an extraction_failed venue stays out of
	// the queue.
	failureCooldown = 24 * time.Hour
	// needsReviewBelow flags low-overall dishes for the human queue.
	needsReviewBelow = 40.0
)

// RunReport aggregates one extraction run.
type RunReport struct {
	Mode           config.ExtractionMode `json:"mode"`
	DryRun         bool                  `json:"dry_run"`
	StartedAt      time.Time             `json:"started_at"`
	Duration       time.Duration         `json:"duration"`
	VenuesSelected int                   `json:"venues_selected"`
	VenuesVisited  int                   `json:"venues_visited"`
	VenuesOK       int                   `json:"venues_ok"`
	VenuesFailed   int                   `json:"venues_failed"`
	VenuesSkipped  int                   `json:"venues_skipped"`
	DishesFound    int                   `json:"dishes_found"`
	DishesKept     int                   `json:"dishes_kept"`
	NeedsReview    int                   `json:"needs_review"`
	Errors         []string              `json:"errors,omitempty"`
}

// Runner executes extraction runs.
type Runner struct {
	cfg      config.Extraction
	fetchCfg config.Fetch
	st       store.Store
	fetcher  *fetch.Fetcher
	log      zerolog.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// NewRunner builds an extraction runner.
func NewRunner(cfg config.Extraction, fetchCfg config.Fetch, st store.Store, fetcher *fetch.Fetcher) *Runner {
	return &Runner{
		cfg:      cfg,
		fetchCfg: fetchCfg,
		st:       st,
		fetcher:  fetcher,
		log:      logging.Component("extraction"),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// WithClock overrides the runner clock and sleeper, for tests.
func (r *Runner) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *Runner {
	r.now = now
	if sleep != nil {
		r.sleep = sleep
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run selects targets and extracts dishes venue by venue, pausing
// between batches. Per-venue failures never halt the run.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	started := r.now()
	rep := &RunReport{Mode: r.cfg.Mode, DryRun: r.cfg.DryRun, StartedAt: started}

	venues, err := r.selectTargets(ctx)
	if err != nil {
		return rep, err
	}
	rep.VenuesSelected = len(venues)

	stats := newLearningStats()
	batch := 0
	for i, venue := range venues {
		if err := ctx.Err(); err != nil {
			rep.Duration = r.now().Sub(started)
			return rep, err
		}
		if r.onCooldown(venue) {
			rep.VenuesSkipped++
			continue
		}
		if r.cfg.DryRun {
			continue
		}

		if batch >= r.batchSize() && i < len(venues) {
			if err := r.sleep(ctx, time.Duration(r.fetchCfg.BatchDelayMs)*time.Millisecond); err != nil {
				rep.Duration = r.now().Sub(started)
				return rep, err
			}
			batch = 0
		}
		batch++
		rep.VenuesVisited++

		if err := r.extractVenue(ctx, venue, rep, stats); err != nil {
			rep.VenuesFailed++
			rep.Errors = append(rep.Errors, fmt.Sprintf("venue %s: %v", venue.ID, err))
			r.recordFailure(ctx, venue, err)
		} else {
			rep.VenuesOK++
			r.recordSuccess(ctx, venue)
		}
	}

	if r.cfg.Learn && !r.cfg.DryRun {
		if err := r.st.Learning().Save(ctx, stats.record(uuid.NewString(), r.now().UTC())); err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("learning record: %v", err))
		}
	}

	rep.Duration = r.now().Sub(started)
	r.log.Info().
		Str("mode", string(r.cfg.Mode)).
		Int("selected", rep.VenuesSelected).
		Int("ok", rep.VenuesOK).
		Int("failed", rep.VenuesFailed).
		Int("dishes_kept", rep.DishesKept).
		Msg("extraction run complete")
	return rep, nil
}

// selectTargets resolves the configured target mode into a venue list,
// capped at maxVenues.
func (r *Runner) selectTargets(ctx context.Context) ([]*models.DiscoveredVenue, error) {
	var out []*models.DiscoveredVenue

	switch r.cfg.Target {
	case config.TargetVenues:
		for _, id := range r.cfg.VenueIDs {
			v, err := r.st.Venues().Get(ctx, id)
			if err != nil {
				return nil, engine.Errorf(engine.KindConfig, "extraction.targets", "venue %s: %v", id, err)
			}
			out = append(out, v)
		}
	case config.TargetChain:
		for _, status := range []models.VenueStatus{models.VenueVerified, models.VenueDiscovered} {
			vs, _, err := r.st.Venues().List(ctx, store.VenueFilter{Status: status, ChainID: r.cfg.ChainID})
			if err != nil {
				return nil, engine.E(engine.KindFatal, "extraction.targets", err)
			}
			out = append(out, vs...)
		}
	default:
		for _, status := range []models.VenueStatus{models.VenueVerified, models.VenueDiscovered} {
			vs, _, err := r.st.Venues().List(ctx, store.VenueFilter{Status: status})
			if err != nil {
				return nil, engine.E(engine.KindFatal, "extraction.targets", err)
			}
			out = append(out, vs...)
		}
	}

	out = r.filterTargets(out)
	if r.cfg.MaxVenues > 0 && len(out) > r.cfg.MaxVenues {
		out = out[:r.cfg.MaxVenues]
	}
	return out, nil
}

func (r *Runner) filterTargets(venues []*models.DiscoveredVenue) []*models.DiscoveredVenue {
	countries := map[string]bool{}
	for _, c := range r.cfg.Countries {
		countries[c] = true
	}
	platformSet := map[models.PlatformTag]bool{}
	for _, p := range r.cfg.Platforms {
		platformSet[p] = true
	}

	var out []*models.DiscoveredVenue
	for _, v := range venues {
		if len(countries) > 0 && !countries[v.Address.Country] {
			continue
		}
		if len(platformSet) > 0 && !anyPlatform(v, platformSet) {
			continue
		}
		// enrich mode only visits venues not yet extracted; refresh and
		// verify revisit everything.
		if r.cfg.Mode == config.ExtractEnrich && v.LastExtractedAt != nil && !v.ExtractionFailed {
			continue
		}
		out = append(out, v)
	}
	return out
}

func anyPlatform(v *models.DiscoveredVenue, set map[models.PlatformTag]bool) bool {
	for _, l := range v.PlatformLinks {
		if set[l.Platform] {
			return true
		}
	}
	return false
}

// onCooldown reports whether a failed venue is still inside its cooldown
// window.
func (r *Runner) onCooldown(v *models.DiscoveredVenue) bool {
	if !v.ExtractionFailed || v.LastExtractedAt == nil {
		return false
	}
	return r.now().Sub(*v.LastExtractedAt) < failureCooldown
}

// extractVenue fetches every platform link of the venue and stages the
// retained dishes. The first link that yields dishes satisfies the venue.
func (r *Runner) extractVenue(ctx context.Context, venue *models.DiscoveredVenue, rep *RunReport, stats *learningStats) error {
	var lastErr error
	extracted := false

	for _, link := range venue.PlatformLinks {
		adapter, ok := platforms.Lookup(link.Platform)
		if !ok {
			continue
		}
		stats.attempt(link.Platform)

		pd, err := r.fetcher.Fetch(ctx, link.URL, adapter)
		if err != nil {
			lastErr = err
			stats.failure(engine.KindOf(err))
			continue
		}

		items := ExtractMenu(pd)
		rep.DishesFound += len(items)
		kept := 0
		for _, item := range items {
			if !HasBrandToken(item.Name) && !HasBrandToken(item.Description) {
				continue
			}
			dish := r.buildDish(venue, adapter, item)
			if err := r.st.Dishes().Upsert(ctx, dish); err != nil {
				lastErr = err
				continue
			}
			kept++
			rep.DishesKept++
			if dish.NeedsReview {
				rep.NeedsReview++
			}
		}
		if kept > 0 {
			stats.success(link.Platform)
			if venue.StrategyID != nil {
				stats.hit(*venue.StrategyID, kept)
			}
		}
		extracted = true
	}

	if !extracted && lastErr != nil {
		return lastErr
	}
	if !extracted {
		return engine.Errorf(engine.KindContent, "extraction", "no fetchable platform link on venue %s", venue.ID)
	}
	return nil
}

// buildDish turns a raw retained item into a staged dish. The id is
// deterministic over (venue, name) so repeated runs upsert in place.
func (r *Runner) buildDish(venue *models.DiscoveredVenue, adapter platforms.Adapter, item RawItem) *models.DiscoveredDish {
	country := venue.Address.Country
	if country == "" {
		country = "CH"
	}
	product, certainty := MapProduct(item.Name, item.Description)
	price, hasPrice := ParsePrice(item.PriceText, country)
	conf := ScoreDish(item.Name, item.Description, price, hasPrice, certainty, item.Source)
	overall := conf.Overall()

	dish := &models.DiscoveredDish{
		ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte(venue.ID+"|"+item.Name)).String(),
		VenueID:     venue.ID,
		Name:        item.Name,
		Description: item.Description,
		Category:    item.Category,
		Product:     product,
		ImageURL:    item.ImageURL,
		Confidence:  conf,
		NeedsReview: overall < needsReviewBelow,
		Status:      models.VenueDiscovered,
	}
	if hasPrice {
		dish.Prices = map[string]models.Price{country: price}
	}
	return dish
}

// recordSuccess clears the venue's failure streak and stamps the run.
func (r *Runner) recordSuccess(ctx context.Context, venue *models.DiscoveredVenue) {
	at := r.now().UTC()
	venue.LastExtractedAt = &at
	venue.ExtractionFailures = 0
	venue.ExtractionFailed = false
	if err := r.st.Venues().Update(ctx, venue); err != nil {
		r.log.Warn().Err(err).Str("venue", venue.ID).Msg("failed to stamp extraction success")
	}
}

// recordFailure advances the venue's failure streak; the third
// consecutive failure marks it extraction_failed for the cooldown.
func (r *Runner) recordFailure(ctx context.Context, venue *models.DiscoveredVenue, cause error) {
	at := r.now().UTC()
	venue.LastExtractedAt = &at
	venue.ExtractionFailures++
	if venue.ExtractionFailures >= maxConsecutiveFailures {
		venue.ExtractionFailed = true
		r.log.Warn().Str("venue", venue.ID).Err(cause).
			Msg("venue marked extraction_failed after consecutive failures")
	}
	if err := r.st.Venues().Update(ctx, venue); err != nil {
		r.log.Warn().Err(err).Str("venue", venue.ID).Msg("failed to record extraction failure")
	}
}

func (r *Runner) batchSize() int {
	if r.fetchCfg.BatchSize > 0 {
		return r.fetchCfg.BatchSize
	}
	return 5
}

// learningStats accumulates the per-platform and per-strategy outcomes
// persisted as a learning record when the run completes.
type learningStats struct {
	platforms map[models.PlatformTag]models.PlatformStat
	hits      map[string]int
	failures  map[string]int
}

func newLearningStats() *learningStats {
	return &learningStats{
		platforms: map[models.PlatformTag]models.PlatformStat{},
		hits:      map[string]int{},
		failures:  map[string]int{},
	}
}

func (s *learningStats) attempt(tag models.PlatformTag) {
	st := s.platforms[tag]
	st.Attempts++
	s.platforms[tag] = st
}

func (s *learningStats) success(tag models.PlatformTag) {
	st := s.platforms[tag]
	st.Successes++
	s.platforms[tag] = st
}

func (s *learningStats) hit(strategyID string, n int) {
	s.hits[strategyID] += n
}

func (s *learningStats) failure(kind engine.Kind) {
	s.failures[kind.String()]++
}

func (s *learningStats) record(id string, at time.Time) *models.LearningRecord {
	return &models.LearningRecord{
		ID:            id,
		Timestamp:     at,
		PlatformStats: s.platforms,
		StrategyHits:  s.hits,
		FailureModes:  s.failures,
	}
}
