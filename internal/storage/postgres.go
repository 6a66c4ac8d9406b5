package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryTimeout is applied to every database query.
const queryTimeout = 5 * time.Second

// dbtx is the subset of *pgxpool.Pool the repository uses.
type dbtx interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgPlacesRepository is the pgx-backed implementation of PlacesRepository.
type pgPlacesRepository struct {
	db dbtx
}

// NewPlacesRepository creates a PlacesRepository backed by the given pool.
func NewPlacesRepository(pool *pgxpool.Pool) PlacesRepository {
	return &pgPlacesRepository{db: pool}
}

func (r *pgPlacesRepository) Save(ctx context.Context, p *Place) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return fmt.Errorf("storage: Save: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: Save: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() //nolint:errcheck // rollback after commit is harmless

	var (
		id        int64
		createdAt time.Time
	)
	err = tx.QueryRow(ctx,
		`INSERT INTO places (name, address, category, image)
         VALUES ($1, $2, $3, $4)
         RETURNING id, created_at`,
		p.Name, p.Address, p.Category, nilIfEmpty(p.Image),
	).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("storage: Save: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: Save: commit: %w", err)
	}

	p.ID = id
	p.CreatedAt = createdAt
	p.HasImage = len(p.Image) > 0
	return nil
}

func (r *pgPlacesRepository) List(ctx context.Context) ([]Place, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx,
		`SELECT id, name, address, category, image IS NOT NULL, created_at
         FROM places
         ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: List: %w", err)
	}
	defer rows.Close()

	var places []Place
	for rows.Next() {
		var p Place
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.Category, &p.HasImage, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: List: scan: %w", err)
		}
		places = append(places, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: List: %w", err)
	}

	return places, nil
}

func (r *pgPlacesRepository) Get(ctx context.Context, id int64) (*Place, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Place
	err := r.db.QueryRow(ctx,
		`SELECT id, name, address, category, image, created_at
         FROM places
         WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Address, &p.Category, &p.Image, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: Get: %w", err)
	}

	p.HasImage = len(p.Image) > 0
	return &p, nil
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
