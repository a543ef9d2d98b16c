package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEntityNotFound is returned when no entity matches the given reference.
var ErrEntityNotFound = errors.New("entity not found")

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// MutateFunc receives the current normalized image list inside an entity
// lock and returns the list to write back. Returning an error aborts the
// transaction and leaves the stored list untouched.
type MutateFunc func(entries []ImageEntry, format StorageFormat) ([]ImageEntry, error)

// Store reads and writes entity image lists in Postgres.
//
// Entities are addressed by slug or by UUID string; both resolve against
// the same row. All mutations go through WithEntityLock, which holds a
// row-level lock for the full read-modify-write so concurrent mutators on
// the same entity serialize instead of overwriting each other.
type Store struct {
	pool *pgxpool.Pool
	norm *Normalizer
}

// NewStore creates a Store. The normalizer carries the configured delivery
// base URL used to classify legacy string entries.
func NewStore(pool *pgxpool.Pool, norm *Normalizer) *Store {
	return &Store{pool: pool, norm: norm}
}

const selectImages = `SELECT images FROM catalog_entities WHERE slug = $1 OR id::text = $1`

// GetImages returns the entity's normalized image list and the storage
// format it was found in. Side-effect free.
func (s *Store) GetImages(ctx context.Context, ref string) ([]ImageEntry, StorageFormat, error) {
	return s.getImages(ctx, s.pool, ref, selectImages)
}

// SetImages overwrites the entity's image list, serialized in the given
// storage format. Callers that read before writing should prefer
// WithEntityLock; this exists for migrations and tests.
func (s *Store) SetImages(ctx context.Context, ref string, entries []ImageEntry, format StorageFormat) error {
	return s.setImages(ctx, s.pool, ref, entries, format)
}

// WithEntityLock runs fn inside a transaction holding a FOR UPDATE lock on
// the entity row. The list fn returns is written back in the same storage
// format it was read in.
func (s *Store) WithEntityLock(ctx context.Context, ref string, fn MutateFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin entity lock: %w", err)
	}
	defer tx.Rollback(ctx)

	entries, format, err := s.getImages(ctx, tx, ref, selectImages+` FOR UPDATE`)
	if err != nil {
		return err
	}

	updated, err := fn(entries, format)
	if err != nil {
		return err
	}

	if err := s.setImages(ctx, tx, ref, updated, format); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) getImages(ctx context.Context, db DBTX, ref, query string) ([]ImageEntry, StorageFormat, error) {
	var raw []byte
	err := db.QueryRow(ctx, query, ref).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: %s", ErrEntityNotFound, ref)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read images for %s: %w", ref, err)
	}

	entries, format, err := s.norm.Normalize(raw)
	if err != nil {
		return nil, "", fmt.Errorf("normalize images for %s: %w", ref, err)
	}
	return entries, format, nil
}

func (s *Store) setImages(ctx context.Context, db DBTX, ref string, entries []ImageEntry, format StorageFormat) error {
	raw, err := s.norm.Marshal(entries, format)
	if err != nil {
		return fmt.Errorf("marshal images for %s: %w", ref, err)
	}

	tag, err := db.Exec(ctx,
		`UPDATE catalog_entities SET images = $2 WHERE slug = $1 OR id::text = $1`,
		ref, raw,
	)
	if err != nil {
		return fmt.Errorf("write images for %s: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, ref)
	}
	return nil
}
