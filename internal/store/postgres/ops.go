package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/store"
)

type productionRepo struct{ s *Store }

func insertProductionVenue(ctx context.Context, tx sqlx.ExtContext, v *models.ProductionVenue) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO production_venues
			(id, country, status, lat, lng, last_verified, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.Address.Country, v.Status, v.Coordinates.Lat, v.Coordinates.Lng,
		v.LastVerified, doc, v.CreatedAt, v.UpdatedAt)
	return err
}

func (r *productionRepo) InsertVenue(ctx context.Context, v *models.ProductionVenue) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	return insertProductionVenue(ctx, r.s.db, v)
}

func (r *productionRepo) UpdateVenue(ctx context.Context, v *models.ProductionVenue) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	v.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	res, err := r.s.db.ExecContext(ctx, `
		UPDATE production_venues SET
			country = $2, status = $3, lat = $4, lng = $5,
			last_verified = $6, doc = $7, updated_at = $8
		WHERE id = $1`,
		v.ID, v.Address.Country, v.Status, v.Coordinates.Lat, v.Coordinates.Lng,
		v.LastVerified, doc, v.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res, v.ID)
}

func (r *productionRepo) GetVenue(ctx context.Context, id string) (*models.ProductionVenue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return getDoc[models.ProductionVenue](ctx, r.s.db,
		`SELECT doc FROM production_venues WHERE id = $1`, id)
}

func (r *productionRepo) ListVenues(ctx context.Context, status models.ProductionStatus) ([]*models.ProductionVenue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return selectDocs[models.ProductionVenue](ctx, r.s.db, `
		SELECT doc FROM production_venues
		WHERE ($1 = '' OR status = $1) ORDER BY id`, string(status))
}

func (r *productionRepo) ListVenuesInBox(ctx context.Context, box store.BoundingBox) ([]*models.ProductionVenue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return selectDocs[models.ProductionVenue](ctx, r.s.db, `
		SELECT doc FROM production_venues
		WHERE lat BETWEEN $1 AND $2 AND lng BETWEEN $3 AND $4
		ORDER BY id`,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
}

func (r *productionRepo) InsertDish(ctx context.Context, d *models.ProductionDish) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	doc, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO production_dishes (id, venue_id, status, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.VenueID, d.Status, doc, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *productionRepo) ListDishesByVenue(ctx context.Context, venueID string) ([]*models.ProductionDish, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return selectDocs[models.ProductionDish](ctx, r.s.db,
		`SELECT doc FROM production_dishes WHERE venue_id = $1 ORDER BY id`, venueID)
}

// SweepStaleness applies the two aging transitions as set-based updates so
// a sweep touches each row at most once.
func (r *productionRepo) SweepStaleness(ctx context.Context, now time.Time) (stale, archived int, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()

	err = r.s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE production_venues
			SET status = 'archived',
			    doc = jsonb_set(doc, '{status}', '"archived"'),
			    updated_at = now()
			WHERE status IN ('active', 'stale') AND last_verified < $1`,
			now.Add(-models.ArchiveAfter))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		archived = int(n)

		res, err = tx.ExecContext(ctx, `
			UPDATE production_venues
			SET status = 'stale',
			    doc = jsonb_set(doc, '{status}', '"stale"'),
			    updated_at = now()
			WHERE status = 'active' AND last_verified < $1`,
			now.Add(-models.StaleAfter))
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		stale = int(n)
		return nil
	})
	return stale, archived, err
}

type changeLogRepo struct{ s *Store }

func (r *changeLogRepo) Append(ctx context.Context, e *models.ChangeLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	doc, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO change_logs (id, collection, document_id, doc, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Collection, e.DocumentID, doc, e.Timestamp)
	return err
}

func (r *changeLogRepo) ListByDocument(ctx context.Context, collection, documentID string) ([]*models.ChangeLogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return selectDocs[models.ChangeLogEntry](ctx, r.s.db, `
		SELECT doc FROM change_logs
		WHERE collection = $1 AND document_id = $2
		ORDER BY created_at, id`, collection, documentID)
}

type syncHistoryRepo struct{ s *Store }

func (r *syncHistoryRepo) Append(ctx context.Context, rec *models.SyncHistoryRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO sync_history (id, doc, created_at) VALUES ($1, $2, $3)`,
		rec.ID, doc, rec.Timestamp)
	return err
}

func (r *syncHistoryRepo) List(ctx context.Context, limit int) ([]*models.SyncHistoryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	if limit <= 0 {
		limit = 50
	}
	return selectDocs[models.SyncHistoryRecord](ctx, r.s.db, `
		SELECT doc FROM sync_history ORDER BY created_at DESC LIMIT $1`, limit)
}

type learningRepo struct{ s *Store }

func (r *learningRepo) Save(ctx context.Context, rec *models.LearningRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx, `
		INSERT INTO learning_records (id, doc, created_at) VALUES ($1, $2, $3)`,
		rec.ID, doc, rec.Timestamp)
	return err
}

func (r *learningRepo) Latest(ctx context.Context) (*models.LearningRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.timeout)
	defer cancel()
	return getDoc[models.LearningRecord](ctx, r.s.db,
		`SELECT doc FROM learning_records ORDER BY created_at DESC LIMIT 1`)
}
