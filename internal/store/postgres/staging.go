package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/store"
)

type venueRepo struct{ s *Store }

func insertVenueURLs(ctx context.Context, tx sqlx.ExtContext, v *models.DiscoveredVenue) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM discovered_venue_urls WHERE venue_id = $1`, v.ID); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, l := range v.PlatformLinks {
		norm := models.NormalizeURL(l.URL)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO discovered_venue_urls (venue_id, norm_url) VALUES ($1, $2)`, v.ID, norm); err != nil {
			return err
		}
	}
	return nil
}

func writeVenue(ctx context.Context, tx *sqlx.Tx, v *models.DiscoveredVenue, insert bool) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var chainID sql.NullString
	if v.ChainID != nil {
		chainID = sql.NullString{String: *v.ChainID, Valid: true}
	}
	if insert {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO discovered_venues
				(id, name, city, country, chain_id, status, confidence, dedupe_key, doc, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			v.ID, v.Name, v.Address.City, v.Address.Country, chainID, v.Status,
			v.Confidence, v.DedupeKeyOf().String(), doc, v.CreatedAt, v.UpdatedAt)
	} else {
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE discovered_venues SET
				name = $2, city = $3, country = $4, chain_id = $5, status = $6,
				confidence = $7, dedupe_key = $8, doc = $9, updated_at = $10
			WHERE id = $1`,
			v.ID, v.Name, v.Address.City, v.Address.Country, chainID, v.Status,
			v.Confidence, v.DedupeKeyOf().String(), doc, v.UpdatedAt)
		if err == nil {
			err = requireRow(res, v.ID)
		}
	}
	if err != nil {
		return err
	}
	return insertVenueURLs(ctx, tx, v)
}

func updateVenueTx(ctx context.Context, tx *sqlx.Tx, v *models.DiscoveredVenue) error {
	return writeVenue(ctx, tx, v, false)
}

func (r *venueRepo) Insert(ctx context.Context, v *models.DiscoveredVenue) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	if err := v.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	return r.s.inTx(ctx, func(tx *sqlx.Tx) error {
		return writeVenue(ctx, tx, v, true)
	})
}

func (r *venueRepo) Update(ctx context.Context, v *models.DiscoveredVenue) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	if err := v.Validate(); err != nil {
		return err
	}
	v.UpdatedAt = time.Now().UTC()
	return r.s.inTx(ctx, func(tx *sqlx.Tx) error {
		return writeVenue(ctx, tx, v, false)
	})
}

func (r *venueRepo) UpdateIfUnmodified(ctx context.Context, v *models.DiscoveredVenue, lastSeen time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	if err := v.Validate(); err != nil {
		return err
	}
	return r.s.inTx(ctx, func(tx *sqlx.Tx) error {
		var current time.Time
		err := tx.GetContext(ctx, &current,
			`SELECT updated_at FROM discovered_venues WHERE id = $1 FOR UPDATE`, v.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !current.Equal(lastSeen) {
			return store.ErrConflict
		}
		v.UpdatedAt = time.Now().UTC()
		return writeVenue(ctx, tx, v, false)
	})
}

func (r *venueRepo) Get(ctx context.Context, id string) (*models.DiscoveredVenue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return getDoc[models.DiscoveredVenue](ctx, r.s.db,
		`SELECT doc FROM discovered_venues WHERE id = $1`, id)
}

func (r *venueRepo) FindByDedupeKey(ctx context.Context, key models.DedupeKey) (*models.DiscoveredVenue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return getDoc[models.DiscoveredVenue](ctx, r.s.db,
		`SELECT doc FROM discovered_venues WHERE dedupe_key = $1 ORDER BY created_at LIMIT 1`, key.String())
}

func (r *venueRepo) FindByNormalizedURL(ctx context.Context, normURL string) ([]*models.DiscoveredVenue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return selectDocs[models.DiscoveredVenue](ctx, r.s.db, `
		SELECT v.doc FROM discovered_venues v
		JOIN discovered_venue_urls u ON u.venue_id = v.id
		WHERE u.norm_url = $1
		ORDER BY v.id`, normURL)
}

func (r *venueRepo) List(ctx context.Context, f store.VenueFilter) ([]*models.DiscoveredVenue, int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()

	where := `WHERE ($1 = '' OR status = $1)
		AND ($2 = '' OR upper(country) = upper($2))
		AND ($3 = '' OR chain_id = $3)
		AND confidence >= $4`
	args := []any{string(f.Status), f.Country, f.ChainID, f.MinConfidence}

	if f.Platform != "" {
		where += ` AND id IN (
			SELECT venue_id FROM discovered_venue_urls WHERE norm_url LIKE $5)`
		args = append(args, platformURLPrefix(f.Platform)+"%")
	}

	var total int
	if err := r.s.db.GetContext(ctx, &total,
		`SELECT count(*) FROM discovered_venues `+where, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT doc FROM discovered_venues ` + where + ` ORDER BY created_at, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, f.Offset)
	}
	out, err := selectDocs[models.DiscoveredVenue](ctx, r.s.db, query, args...)
	return out, total, err
}

func (r *venueRepo) CityVenueCounts(ctx context.Context, country string) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()

	rows, err := r.s.db.QueryxContext(ctx, `
		SELECT city, count(*) FROM discovered_venues
		WHERE status <> 'rejected' AND ($1 = '' OR upper(country) = upper($1))
		GROUP BY city`, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var city string
		var n int
		if err := rows.Scan(&city, &n); err != nil {
			return nil, err
		}
		out[city] = n
	}
	return out, rows.Err()
}

type dishRepo struct{ s *Store }

func (r *dishRepo) Upsert(ctx context.Context, d *models.DiscoveredDish) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	doc, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO discovered_dishes (id, venue_id, status, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			venue_id = EXCLUDED.venue_id, status = EXCLUDED.status,
			doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		d.ID, d.VenueID, d.Status, doc, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *dishRepo) Update(ctx context.Context, d *models.DiscoveredDish) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	d.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(d)
	if err != nil {
		return err
	}
	res, err := r.s.db.ExecContext(ctx, `
		UPDATE discovered_dishes SET venue_id = $2, status = $3, doc = $4, updated_at = $5
		WHERE id = $1`,
		d.ID, d.VenueID, d.Status, doc, d.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res, d.ID)
}

func (r *dishRepo) Get(ctx context.Context, id string) (*models.DiscoveredDish, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return getDoc[models.DiscoveredDish](ctx, r.s.db,
		`SELECT doc FROM discovered_dishes WHERE id = $1`, id)
}

func (r *dishRepo) ListByVenue(ctx context.Context, venueID string) ([]*models.DiscoveredDish, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return selectDocs[models.DiscoveredDish](ctx, r.s.db,
		`SELECT doc FROM discovered_dishes WHERE venue_id = $1 ORDER BY id`, venueID)
}

func (r *dishRepo) ListByStatus(ctx context.Context, status models.VenueStatus) ([]*models.DiscoveredDish, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return selectDocs[models.DiscoveredDish](ctx, r.s.db,
		`SELECT doc FROM discovered_dishes WHERE status = $1 ORDER BY id`, string(status))
}

// CountByVenues is one grouped query regardless of how many venues the
// preview covers.
func (r *dishRepo) CountByVenues(ctx context.Context, venueIDs []string) (map[string]store.DishCounts, error) {
	if len(venueIDs) == 0 {
		return map[string]store.DishCounts{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()

	rows, err := r.s.db.QueryxContext(ctx, `
		SELECT venue_id, count(*), count(*) FILTER (WHERE status = 'verified')
		FROM discovered_dishes
		WHERE venue_id = ANY($1)
		GROUP BY venue_id`, pq.Array(venueIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]store.DishCounts{}
	for rows.Next() {
		var id string
		var c store.DishCounts
		if err := rows.Scan(&id, &c.Total, &c.Verified); err != nil {
			return nil, err
		}
		out[id] = c
	}
	return out, rows.Err()
}

type strategyRepo struct{ s *Store }

func (r *strategyRepo) Upsert(ctx context.Context, st *models.DiscoveryStrategy) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	if err := st.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	doc, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO discovery_strategies
			(id, country, deprecated, uses, successes, false_positives, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			country = EXCLUDED.country, deprecated = EXCLUDED.deprecated,
			uses = EXCLUDED.uses, successes = EXCLUDED.successes,
			false_positives = EXCLUDED.false_positives,
			doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		st.ID, st.Country, st.Deprecated, st.Uses, st.Successes, st.FalsePositives,
		doc, st.CreatedAt, st.UpdatedAt)
	return err
}

func (r *strategyRepo) Get(ctx context.Context, id string) (*models.DiscoveryStrategy, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	st, err := getDoc[models.DiscoveryStrategy](ctx, r.s.db,
		`SELECT doc FROM discovery_strategies WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return r.withCounters(ctx, st)
}

func (r *strategyRepo) ListActive(ctx context.Context) ([]models.DiscoveryStrategy, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	rows, err := r.s.db.QueryxContext(ctx, `
		SELECT doc, uses, successes, false_positives
		FROM discovery_strategies WHERE NOT deprecated ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DiscoveryStrategy
	for rows.Next() {
		var raw []byte
		var st models.DiscoveryStrategy
		if err := rows.Scan(&raw, &st.Uses, &st.Successes, &st.FalsePositives); err != nil {
			return nil, err
		}
		uses, successes, fps := st.Uses, st.Successes, st.FalsePositives
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, err
		}
		// Counter columns are authoritative; RecordUse bypasses the doc.
		st.Uses, st.Successes, st.FalsePositives = uses, successes, fps
		out = append(out, st)
	}
	return out, rows.Err()
}

// RecordUse increments counters in place; concurrent runs commute.
func (r *strategyRepo) RecordUse(ctx context.Context, id string, success, falsePositive bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	res, err := r.s.db.ExecContext(ctx, `
		UPDATE discovery_strategies SET
			uses = uses + 1,
			successes = successes + CASE WHEN $2 THEN 1 ELSE 0 END,
			false_positives = false_positives + CASE WHEN $3 THEN 1 ELSE 0 END,
			updated_at = now()
		WHERE id = $1`, id, success, falsePositive)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (r *strategyRepo) withCounters(ctx context.Context, st *models.DiscoveryStrategy) (*models.DiscoveryStrategy, error) {
	row := r.s.db.QueryRowxContext(ctx, `
		SELECT uses, successes, false_positives FROM discovery_strategies WHERE id = $1`, st.ID)
	if err := row.Scan(&st.Uses, &st.Successes, &st.FalsePositives); err != nil {
		return nil, err
	}
	return st, nil
}

type chainRepo struct{ s *Store }

func (r *chainRepo) Upsert(ctx context.Context, c *models.Chain) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	doc, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO chains (id, verified, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			verified = EXCLUDED.verified, doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		c.ID, c.Verified, doc, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *chainRepo) Get(ctx context.Context, id string) (*models.Chain, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return getDoc[models.Chain](ctx, r.s.db, `SELECT doc FROM chains WHERE id = $1`, id)
}

func (r *chainRepo) ListVerified(ctx context.Context) ([]models.Chain, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	ptrs, err := selectDocs[models.Chain](ctx, r.s.db,
		`SELECT doc FROM chains WHERE verified ORDER BY id`)
	if err != nil {
		return nil, err
	}
	out := make([]models.Chain, 0, len(ptrs))
	for _, p := range ptrs {
		out = append(out, *p)
	}
	return out, nil
}

func platformURLPrefix(tag models.PlatformTag) string {
	switch tag {
	case models.PlatformUberEats:
		return "ubereats.com"
	case models.PlatformWolt:
		return "wolt.com"
	case models.PlatformLieferando:
		return "lieferando."
	case models.PlatformJustEat:
		return "just-eat."
	case models.PlatformDeliveroo:
		return "deliveroo."
	case models.PlatformSmood:
		return "smood.ch"
	case models.PlatformEatCh:
		return "eat.ch"
	default:
		return string(tag)
	}
}

func getDoc[T any](ctx context.Context, db *sqlx.DB, query string, args ...any) (*T, error) {
	var raw []byte
	err := db.GetContext(ctx, &raw, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func selectDocs[T any](ctx context.Context, db *sqlx.DB, query string, args ...any) ([]*T, error) {
	var raws [][]byte
	if err := db.SelectContext(ctx, &raws, query, args...); err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		item := new(T)
		if err := json.Unmarshal(raw, item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
