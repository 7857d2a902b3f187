package store

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pokemon-arena/internal/pkg/db"
)

func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupPostgresStore starts a PostgreSQL container and returns a migrated store.
// Skips the test if Docker is not available.
func setupPostgresStore(t *testing.T) (*PostgresStore, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("arena"),
		postgres.WithUsername("arena"),
		postgres.WithPassword("arena"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return NewPostgresStore(pool, Options{}), cleanup
}

func TestPostgresStore_LoadMissingIsEmpty(t *testing.T) {
	s, cleanup := setupPostgresStore(t)
	defer cleanup()

	var rows []row
	require.NoError(t, s.Load(context.Background(), KindUsers, &rows))
	assert.Empty(t, rows)
}

func TestPostgresStore_SaveThenLoad(t *testing.T) {
	s, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	in := []row{{ID: "1", Points: 10}}
	require.NoError(t, s.Save(ctx, KindLeaderboard, in))
	require.NoError(t, s.Save(ctx, KindLeaderboard, append(in, row{ID: "2", Points: 3})))

	var out []row
	require.NoError(t, s.Load(ctx, KindLeaderboard, &out))
	assert.Equal(t, []row{{ID: "1", Points: 10}, {ID: "2", Points: 3}}, out)
}

func TestPostgresStore_UpdateIsAtomicAcrossKinds(t *testing.T) {
	s, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, KindLeaderboard, []row{{ID: "1", Points: 5}}))

	boom := errors.New("boom")
	err := s.Update(ctx, []Kind{KindLeaderboard, KindBattleHistory}, func(tx Tx) error {
		require.NoError(t, tx.Save(KindBattleHistory, []row{{ID: "1"}}))
		require.NoError(t, tx.Save(KindLeaderboard, []row{{ID: "1", Points: 50}}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var board, history []row
	require.NoError(t, s.Load(ctx, KindLeaderboard, &board))
	require.NoError(t, s.Load(ctx, KindBattleHistory, &history))
	assert.Equal(t, []row{{ID: "1", Points: 5}}, board)
	assert.Empty(t, history)
}

func TestPostgresStore_ConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	s, cleanup := setupPostgresStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, KindLeaderboard, []row{{ID: "1"}}))

	const workers = 10
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			err := s.Update(ctx, []Kind{KindLeaderboard}, func(tx Tx) error {
				var rows []row
				if err := tx.Load(KindLeaderboard, &rows); err != nil {
					return err
				}
				rows[0].Points++
				return tx.Save(KindLeaderboard, rows)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var rows []row
	require.NoError(t, s.Load(ctx, KindLeaderboard, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, workers, rows[0].Points)
}
