package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore keeps each kind as one JSONB row of the records table.
// Update holds row locks on every kind it touches for the length of a single
// SQL transaction, so multi-kind commits are all-or-nothing.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts Options
}

// NewPostgresStore returns a store over pool. The records table must exist
// (see db.Migrate).
func NewPostgresStore(pool *pgxpool.Pool, opts Options) *PostgresStore {
	log.Info().
		Bool("tolerate_corrupt", opts.TolerateCorrupt).
		Msg("Using PostgreSQL record store")

	return &PostgresStore{pool: pool, opts: opts}
}

// Load decodes the kind's row into out. A missing row loads as empty.
func (s *PostgresStore) Load(ctx context.Context, kind Kind, out any) error {
	if err := checkKinds([]Kind{kind}); err != nil {
		return err
	}

	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM records WHERE kind = $1`, string(kind),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decode(kind, nil, out, s.opts)
		}
		return fmt.Errorf("failed to load %s: %w", kind, err)
	}
	return decode(kind, data, out, s.opts)
}

// Save upserts the kind's row.
func (s *PostgresStore) Save(ctx context.Context, kind Kind, v any) error {
	if err := checkKinds([]Kind{kind}); err != nil {
		return err
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	if err := upsert(ctx, s.pool, kind, data); err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to save records")
		return err
	}
	return nil
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsert(ctx context.Context, q querier, kind Kind, data []byte) error {
	_, err := q.Exec(ctx, `
		INSERT INTO records (kind, data, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (kind) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, string(kind), string(data))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}
	return nil
}

// Update locks the rows of kinds with SELECT ... FOR UPDATE, runs fn and
// writes every saved kind before committing.
func (s *PostgresStore) Update(ctx context.Context, kinds []Kind, fn func(tx Tx) error) error {
	if err := checkKinds(kinds); err != nil {
		return err
	}

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Make sure every row exists so FOR UPDATE has something to lock.
	if _, err := tx.Exec(ctx, `
		INSERT INTO records (kind)
		SELECT unnest($1::text[])
		ON CONFLICT (kind) DO NOTHING
	`, names); err != nil {
		return fmt.Errorf("failed to prepare records: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT kind, data FROM records
		WHERE kind = ANY($1)
		ORDER BY kind
		FOR UPDATE
	`, names)
	if err != nil {
		return fmt.Errorf("failed to lock records: %w", err)
	}

	current := make(map[Kind][]byte, len(kinds))
	for rows.Next() {
		var (
			kind string
			data []byte
		)
		if err := rows.Scan(&kind, &data); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan records: %w", err)
		}
		current[Kind(kind)] = data
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read records: %w", err)
	}

	ptx := &pgTx{kinds: kinds, current: current, pending: make(map[Kind][]byte), opts: s.opts}
	if err := fn(ptx); err != nil {
		return err
	}

	for kind, data := range ptx.pending {
		if err := upsert(ctx, tx, kind, data); err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to save records")
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}

type pgTx struct {
	kinds   []Kind
	current map[Kind][]byte
	pending map[Kind][]byte
	opts    Options
}

func (tx *pgTx) Load(kind Kind, out any) error {
	if !containsKind(tx.kinds, kind) {
		return fmt.Errorf("%w: %s", ErrKindNotLocked, kind)
	}
	if data, ok := tx.pending[kind]; ok {
		return decode(kind, data, out, tx.opts)
	}
	return decode(kind, tx.current[kind], out, tx.opts)
}

func (tx *pgTx) Save(kind Kind, v any) error {
	if !containsKind(tx.kinds, kind) {
		return fmt.Errorf("%w: %s", ErrKindNotLocked, kind)
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	tx.pending[kind] = data
	return nil
}
