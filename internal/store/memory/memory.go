// Package memory is the in-process Store used by tests and dry runs. It
// mirrors the Postgres semantics, including optimistic concurrency and the
// atomic promotion primitives, behind one mutex.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/store"
)

// Store holds every collection in maps keyed by id.
type Store struct {
	mu sync.Mutex

	venues      map[string]*models.DiscoveredVenue
	dishes      map[string]*models.DiscoveredDish
	strategies  map[string]*models.DiscoveryStrategy
	chains      map[string]*models.Chain
	prodVenues  map[string]*models.ProductionVenue
	prodDishes  map[string]*models.ProductionDish
	changeLog   []*models.ChangeLogEntry
	syncHistory []*models.SyncHistoryRecord
	learning    []*models.LearningRecord
	locks       map[string]*sync.Mutex

	now func() time.Time
}

// New builds an empty in-memory store.
func New() *Store {
	return &Store{
		venues:     map[string]*models.DiscoveredVenue{},
		dishes:     map[string]*models.DiscoveredDish{},
		strategies: map[string]*models.DiscoveryStrategy{},
		chains:     map[string]*models.Chain{},
		prodVenues: map[string]*models.ProductionVenue{},
		prodDishes: map[string]*models.ProductionDish{},
		locks:      map[string]*sync.Mutex{},
		now:        time.Now,
	}
}

// WithClock overrides the store clock, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Venues() store.VenueRepo           { return (*venueRepo)(s) }
func (s *Store) Dishes() store.DishRepo            { return (*dishRepo)(s) }
func (s *Store) Strategies() store.StrategyRepo    { return (*strategyRepo)(s) }
func (s *Store) Chains() store.ChainRepo           { return (*chainRepo)(s) }
func (s *Store) Production() store.ProductionRepo  { return (*productionRepo)(s) }
func (s *Store) ChangeLog() store.ChangeLogRepo    { return (*changeLogRepo)(s) }
func (s *Store) SyncHistory() store.SyncHistoryRepo { return (*syncHistoryRepo)(s) }
func (s *Store) Learning() store.LearningRepo      { return (*learningRepo)(s) }

func (s *Store) Close() error { return nil }

// WithLock serializes fn under a process-local named mutex.
func (s *Store) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	s.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

// PromoteVenue mirrors the Postgres transaction: both writes or neither.
func (s *Store) PromoteVenue(ctx context.Context, staged *models.DiscoveredVenue, prod *models.ProductionVenue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.venues[staged.ID]
	if !ok {
		return store.ErrNotFound
	}
	if err := staged.Validate(); err != nil {
		return err
	}
	now := s.now()
	prodCopy := clone(prod)
	prodCopy.CreatedAt, prodCopy.UpdatedAt = now, now
	s.prodVenues[prod.ID] = prodCopy

	cur.Status = models.VenuePromoted
	cur.ProductionID = &prod.ID
	at := now
	cur.PromotedAt = &at
	cur.UpdatedAt = now
	*staged = *clone(cur)
	return nil
}

// PromoteDish mirrors the Postgres transaction for dishes.
func (s *Store) PromoteDish(ctx context.Context, staged *models.DiscoveredDish, prod *models.ProductionDish) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.dishes[staged.ID]
	if !ok {
		return store.ErrNotFound
	}
	if _, ok := s.prodVenues[prod.VenueID]; !ok {
		return store.ErrNotFound
	}
	now := s.now()
	prodCopy := clone(prod)
	prodCopy.CreatedAt, prodCopy.UpdatedAt = now, now
	s.prodDishes[prod.ID] = prodCopy

	cur.Status = models.VenuePromoted
	cur.UpdatedAt = now
	*staged = *clone(cur)
	return nil
}

// clone deep-copies a record through JSON so callers never alias stored
// state.
func clone[T any](v *T) *T {
	raw, _ := json.Marshal(v)
	out := new(T)
	_ = json.Unmarshal(raw, out)
	return out
}

// ---- venues ----

type venueRepo Store

func (r *venueRepo) Insert(_ context.Context, v *models.DiscoveredVenue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := v.Validate(); err != nil {
		return err
	}
	now := r.now()
	v.CreatedAt, v.UpdatedAt = now, now
	r.venues[v.ID] = clone(v)
	return nil
}

func (r *venueRepo) Update(_ context.Context, v *models.DiscoveredVenue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.venues[v.ID]; !ok {
		return store.ErrNotFound
	}
	if err := v.Validate(); err != nil {
		return err
	}
	v.UpdatedAt = r.now()
	r.venues[v.ID] = clone(v)
	return nil
}

func (r *venueRepo) UpdateIfUnmodified(_ context.Context, v *models.DiscoveredVenue, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.venues[v.ID]
	if !ok {
		return store.ErrNotFound
	}
	if !cur.UpdatedAt.Equal(lastSeen) {
		return store.ErrConflict
	}
	if err := v.Validate(); err != nil {
		return err
	}
	v.UpdatedAt = r.now()
	r.venues[v.ID] = clone(v)
	return nil
}

func (r *venueRepo) Get(_ context.Context, id string) (*models.DiscoveredVenue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.venues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(v), nil
}

func (r *venueRepo) FindByDedupeKey(_ context.Context, key models.DedupeKey) (*models.DiscoveredVenue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range sortedKeys(r.venues) {
		if r.venues[id].DedupeKeyOf() == key {
			return clone(r.venues[id]), nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *venueRepo) FindByNormalizedURL(_ context.Context, normURL string) ([]*models.DiscoveredVenue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DiscoveredVenue
	for _, id := range sortedKeys(r.venues) {
		for _, l := range r.venues[id].PlatformLinks {
			if models.NormalizeURL(l.URL) == normURL {
				out = append(out, clone(r.venues[id]))
				break
			}
		}
	}
	return out, nil
}

func (r *venueRepo) List(_ context.Context, f store.VenueFilter) ([]*models.DiscoveredVenue, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*models.DiscoveredVenue
	for _, id := range sortedKeys(r.venues) {
		v := r.venues[id]
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if f.Country != "" && !strings.EqualFold(v.Address.Country, f.Country) {
			continue
		}
		if f.ChainID != "" && (v.ChainID == nil || *v.ChainID != f.ChainID) {
			continue
		}
		if f.MinConfidence > 0 && v.Confidence < f.MinConfidence {
			continue
		}
		if f.Platform != "" && !hasPlatform(v, f.Platform) {
			continue
		}
		matched = append(matched, clone(v))
	}

	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= total {
			return nil, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (r *venueRepo) CityVenueCounts(_ context.Context, country string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for _, v := range r.venues {
		if v.Status == models.VenueRejected {
			continue
		}
		if country != "" && !strings.EqualFold(v.Address.Country, country) {
			continue
		}
		out[v.Address.City]++
	}
	return out, nil
}

func hasPlatform(v *models.DiscoveredVenue, tag models.PlatformTag) bool {
	for _, l := range v.PlatformLinks {
		if l.Platform == tag {
			return true
		}
	}
	return false
}

// ---- dishes ----

type dishRepo Store

func (r *dishRepo) Upsert(_ context.Context, d *models.DiscoveredDish) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if cur, ok := r.dishes[d.ID]; ok {
		d.CreatedAt = cur.CreatedAt
	} else {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	r.dishes[d.ID] = clone(d)
	return nil
}

func (r *dishRepo) Update(_ context.Context, d *models.DiscoveredDish) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dishes[d.ID]; !ok {
		return store.ErrNotFound
	}
	d.UpdatedAt = r.now()
	r.dishes[d.ID] = clone(d)
	return nil
}

func (r *dishRepo) Get(_ context.Context, id string) (*models.DiscoveredDish, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dishes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(d), nil
}

func (r *dishRepo) ListByVenue(_ context.Context, venueID string) ([]*models.DiscoveredDish, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DiscoveredDish
	for _, id := range sortedKeys(r.dishes) {
		if r.dishes[id].VenueID == venueID {
			out = append(out, clone(r.dishes[id]))
		}
	}
	return out, nil
}

func (r *dishRepo) ListByStatus(_ context.Context, status models.VenueStatus) ([]*models.DiscoveredDish, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DiscoveredDish
	for _, id := range sortedKeys(r.dishes) {
		if r.dishes[id].Status == status {
			out = append(out, clone(r.dishes[id]))
		}
	}
	return out, nil
}

func (r *dishRepo) CountByVenues(_ context.Context, venueIDs []string) (map[string]store.DishCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[string]bool{}
	for _, id := range venueIDs {
		want[id] = true
	}
	out := map[string]store.DishCounts{}
	for _, d := range r.dishes {
		if !want[d.VenueID] {
			continue
		}
		c := out[d.VenueID]
		c.Total++
		if d.Status == models.VenueVerified {
			c.Verified++
		}
		out[d.VenueID] = c
	}
	return out, nil
}

// ---- strategies ----

type strategyRepo Store

func (r *strategyRepo) Upsert(_ context.Context, st *models.DiscoveryStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := st.Validate(); err != nil {
		return err
	}
	now := r.now()
	if cur, ok := r.strategies[st.ID]; ok {
		st.CreatedAt = cur.CreatedAt
	} else {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	r.strategies[st.ID] = clone(st)
	return nil
}

func (r *strategyRepo) Get(_ context.Context, id string) (*models.DiscoveryStrategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.strategies[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(st), nil
}

func (r *strategyRepo) ListActive(_ context.Context) ([]models.DiscoveryStrategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DiscoveryStrategy
	for _, id := range sortedKeys(r.strategies) {
		if !r.strategies[id].Deprecated {
			out = append(out, *clone(r.strategies[id]))
		}
	}
	return out, nil
}

func (r *strategyRepo) RecordUse(_ context.Context, id string, success, falsePositive bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.strategies[id]
	if !ok {
		return store.ErrNotFound
	}
	st.Uses++
	if success {
		st.Successes++
	}
	if falsePositive {
		st.FalsePositives++
	}
	st.UpdatedAt = r.now()
	return nil
}

// ---- chains ----

type chainRepo Store

func (r *chainRepo) Upsert(_ context.Context, c *models.Chain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if cur, ok := r.chains[c.ID]; ok {
		c.CreatedAt = cur.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.chains[c.ID] = clone(c)
	return nil
}

func (r *chainRepo) Get(_ context.Context, id string) (*models.Chain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chains[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(c), nil
}

func (r *chainRepo) ListVerified(_ context.Context) ([]models.Chain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Chain
	for _, id := range sortedKeys(r.chains) {
		if r.chains[id].Verified {
			out = append(out, *clone(r.chains[id]))
		}
	}
	return out, nil
}

// ---- production ----

type productionRepo Store

func (r *productionRepo) InsertVenue(_ context.Context, v *models.ProductionVenue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	v.CreatedAt, v.UpdatedAt = now, now
	r.prodVenues[v.ID] = clone(v)
	return nil
}

func (r *productionRepo) UpdateVenue(_ context.Context, v *models.ProductionVenue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.prodVenues[v.ID]; !ok {
		return store.ErrNotFound
	}
	v.UpdatedAt = r.now()
	r.prodVenues[v.ID] = clone(v)
	return nil
}

func (r *productionRepo) GetVenue(_ context.Context, id string) (*models.ProductionVenue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.prodVenues[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(v), nil
}

func (r *productionRepo) ListVenues(_ context.Context, status models.ProductionStatus) ([]*models.ProductionVenue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ProductionVenue
	for _, id := range sortedKeys(r.prodVenues) {
		if status == "" || r.prodVenues[id].Status == status {
			out = append(out, clone(r.prodVenues[id]))
		}
	}
	return out, nil
}

func (r *productionRepo) ListVenuesInBox(_ context.Context, box store.BoundingBox) ([]*models.ProductionVenue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ProductionVenue
	for _, id := range sortedKeys(r.prodVenues) {
		v := r.prodVenues[id]
		c := v.Coordinates
		if c.Lat >= box.MinLat && c.Lat <= box.MaxLat && c.Lng >= box.MinLng && c.Lng <= box.MaxLng {
			out = append(out, clone(v))
		}
	}
	return out, nil
}

func (r *productionRepo) InsertDish(_ context.Context, d *models.ProductionDish) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	d.CreatedAt, d.UpdatedAt = now, now
	r.prodDishes[d.ID] = clone(d)
	return nil
}

func (r *productionRepo) ListDishesByVenue(_ context.Context, venueID string) ([]*models.ProductionDish, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ProductionDish
	for _, id := range sortedKeys(r.prodDishes) {
		if r.prodDishes[id].VenueID == venueID {
			out = append(out, clone(r.prodDishes[id]))
		}
	}
	return out, nil
}

func (r *productionRepo) SweepStaleness(_ context.Context, now time.Time) (stale, archived int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.prodVenues {
		next := v.NextStatus(now)
		if next == v.Status {
			continue
		}
		switch next {
		case models.ProductionStale:
			stale++
		case models.ProductionArchived:
			archived++
		}
		v.Status = next
		v.UpdatedAt = r.now()
	}
	return stale, archived, nil
}

// ---- change log, sync history, learning ----

type changeLogRepo Store

func (r *changeLogRepo) Append(_ context.Context, e *models.ChangeLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changeLog = append(r.changeLog, clone(e))
	return nil
}

func (r *changeLogRepo) ListByDocument(_ context.Context, collection, documentID string) ([]*models.ChangeLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ChangeLogEntry
	for _, e := range r.changeLog {
		if e.Collection == collection && e.DocumentID == documentID {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

type syncHistoryRepo Store

func (r *syncHistoryRepo) Append(_ context.Context, rec *models.SyncHistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncHistory = append(r.syncHistory, clone(rec))
	return nil
}

func (r *syncHistoryRepo) List(_ context.Context, limit int) ([]*models.SyncHistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.SyncHistoryRecord, 0, len(r.syncHistory))
	for i := len(r.syncHistory) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, clone(r.syncHistory[i]))
	}
	return out, nil
}

type learningRepo Store

func (r *learningRepo) Save(_ context.Context, rec *models.LearningRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.learning = append(r.learning, clone(rec))
	return nil
}

func (r *learningRepo) Latest(_ context.Context) (*models.LearningRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.learning) == 0 {
		return nil, store.ErrNotFound
	}
	return clone(r.learning[len(r.learning)-1]), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
