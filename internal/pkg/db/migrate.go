package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrations run in order on every start. Each statement must be idempotent.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "records table",
		sql: `
			CREATE TABLE IF NOT EXISTS records (
				kind TEXT PRIMARY KEY,
				data JSONB NOT NULL DEFAULT '[]'::jsonb,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		name: "records data must be an array",
		sql: `
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint WHERE conname = 'records_data_is_array'
				) THEN
					ALTER TABLE records
						ADD CONSTRAINT records_data_is_array CHECK (jsonb_typeof(data) = 'array');
				END IF;
			END $$;
		`,
	},
}

// Migrate creates the schema used by the PostgreSQL record store.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("migration", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
