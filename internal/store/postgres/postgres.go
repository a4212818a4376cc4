// Package postgres is the production Store backed by PostgreSQL via sqlx.
// Indexed fields live in typed columns; the full entity rides along as a
// JSONB doc. Promotion runs inside a single transaction and sync execute
// serializes on a Postgres advisory lock.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/store"
)

const defaultTimeout = 10 * time.Second

// Store implements store.Store over a sqlx connection pool.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects, applies the schema, and returns the store.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, timeout: defaultTimeout}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Venues() store.VenueRepo            { return &venueRepo{s} }
func (s *Store) Dishes() store.DishRepo             { return &dishRepo{s} }
func (s *Store) Strategies() store.StrategyRepo     { return &strategyRepo{s} }
func (s *Store) Chains() store.ChainRepo            { return &chainRepo{s} }
func (s *Store) Production() store.ProductionRepo   { return &productionRepo{s} }
func (s *Store) ChangeLog() store.ChangeLogRepo     { return &changeLogRepo{s} }
func (s *Store) SyncHistory() store.SyncHistoryRepo { return &syncHistoryRepo{s} }
func (s *Store) Learning() store.LearningRepo       { return &learningRepo{s} }

// WithLock holds a session-scoped advisory lock for the duration of fn.
func (s *Store) WithLock(ctx context.Context, name string, fn func(context.Context) error) error {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	key := advisoryKey(name)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		return fmt.Errorf("acquire advisory lock %q: %w", name, err)
	}
	defer conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, key)

	return fn(ctx)
}

func advisoryKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// PromoteVenue creates the production venue and flips the staged venue to
// promoted in one transaction.
func (s *Store) PromoteVenue(ctx context.Context, staged *models.DiscoveredVenue, prod *models.ProductionVenue) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	staged.Status = models.VenuePromoted
	staged.ProductionID = &prod.ID
	staged.PromotedAt = &now
	staged.UpdatedAt = now
	if err := staged.Validate(); err != nil {
		return err
	}
	prod.CreatedAt, prod.UpdatedAt = now, now

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertProductionVenue(ctx, tx, prod); err != nil {
			return err
		}
		return updateVenueTx(ctx, tx, staged)
	})
}

// PromoteDish creates the production dish and flips the staged dish to
// promoted in one transaction.
func (s *Store) PromoteDish(ctx context.Context, staged *models.DiscoveredDish, prod *models.ProductionDish) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	staged.Status = models.VenuePromoted
	staged.UpdatedAt = now
	prod.CreatedAt, prod.UpdatedAt = now, now

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM production_venues WHERE id = $1)`, prod.VenueID); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("production venue %s: %w", prod.VenueID, store.ErrNotFound)
		}
		doc, err := json.Marshal(prod)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO production_dishes (id, venue_id, status, doc, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)`,
			prod.ID, prod.VenueID, prod.Status, doc, now); err != nil {
			return err
		}
		stagedDoc, err := json.Marshal(staged)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE discovered_dishes SET status = $2, doc = $3, updated_at = $4 WHERE id = $1`,
			staged.ID, staged.Status, stagedDoc, now)
		if err != nil {
			return err
		}
		return requireRow(res, staged.ID)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	return nil
}
