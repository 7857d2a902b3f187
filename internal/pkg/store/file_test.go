package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID     string `json:"id"`
	Points int    `json:"points"`
}

func newTestFileStore(t *testing.T, opts Options) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), opts)
	require.NoError(t, err)
	return s
}

func TestFileStore_LoadMissingIsEmpty(t *testing.T) {
	s := newTestFileStore(t, Options{})

	var rows []row
	require.NoError(t, s.Load(context.Background(), KindLeaderboard, &rows))
	assert.Empty(t, rows)
}

func TestFileStore_LoadEmptyFileIsEmpty(t *testing.T) {
	s := newTestFileStore(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "leaderboard.json"), []byte("  \n"), 0o644))

	var rows []row
	require.NoError(t, s.Load(context.Background(), KindLeaderboard, &rows))
	assert.Empty(t, rows)
}

func TestFileStore_SaveThenLoad(t *testing.T) {
	s := newTestFileStore(t, Options{})
	ctx := context.Background()

	in := []row{{ID: "1", Points: 10}, {ID: "2", Points: 0}}
	require.NoError(t, s.Save(ctx, KindLeaderboard, in))

	var out []row
	require.NoError(t, s.Load(ctx, KindLeaderboard, &out))
	assert.Equal(t, in, out)

	raw, err := os.ReadFile(filepath.Join(s.Dir(), "leaderboard.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  {", "records are written indented")
}

func TestFileStore_SaveNilWritesEmptyArray(t *testing.T) {
	s := newTestFileStore(t, Options{})

	var none []row
	require.NoError(t, s.Save(context.Background(), KindFavorites, none))

	raw, err := os.ReadFile(filepath.Join(s.Dir(), "favorites.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestFileStore_CorruptContent(t *testing.T) {
	t.Run("reported by default", func(t *testing.T) {
		s := newTestFileStore(t, Options{})
		require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "users.json"), []byte("{not json"), 0o644))

		var rows []row
		err := s.Load(context.Background(), KindUsers, &rows)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("tolerated when configured", func(t *testing.T) {
		s := newTestFileStore(t, Options{TolerateCorrupt: true})
		require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "users.json"), []byte(`[{"id": "1", "points": "x"}]`), 0o644))

		var rows []row
		require.NoError(t, s.Load(context.Background(), KindUsers, &rows))
		assert.Empty(t, rows)
	})
}

func TestFileStore_UnknownKind(t *testing.T) {
	s := newTestFileStore(t, Options{})

	var rows []row
	assert.ErrorIs(t, s.Load(context.Background(), Kind("pokedex"), &rows), ErrUnknownKind)
	assert.ErrorIs(t, s.Save(context.Background(), Kind("pokedex"), rows), ErrUnknownKind)
}

func TestFileStore_UpdateRollsBackOnError(t *testing.T) {
	s := newTestFileStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, KindLeaderboard, []row{{ID: "1", Points: 5}}))

	boom := errors.New("boom")
	err := s.Update(ctx, []Kind{KindLeaderboard, KindBattleHistory}, func(tx Tx) error {
		if err := tx.Save(KindLeaderboard, []row{{ID: "1", Points: 99}}); err != nil {
			return err
		}
		if err := tx.Save(KindBattleHistory, []row{{ID: "1"}}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var board []row
	require.NoError(t, s.Load(ctx, KindLeaderboard, &board))
	assert.Equal(t, []row{{ID: "1", Points: 5}}, board)

	_, statErr := os.Stat(filepath.Join(s.Dir(), "battleHistory.json"))
	assert.True(t, os.IsNotExist(statErr), "nothing is written when fn fails")
}

func TestFileStore_UpdateSeesOwnWrites(t *testing.T) {
	s := newTestFileStore(t, Options{})
	ctx := context.Background()

	err := s.Update(ctx, []Kind{KindLeaderboard}, func(tx Tx) error {
		if err := tx.Save(KindLeaderboard, []row{{ID: "7", Points: 1}}); err != nil {
			return err
		}
		var rows []row
		if err := tx.Load(KindLeaderboard, &rows); err != nil {
			return err
		}
		assert.Equal(t, []row{{ID: "7", Points: 1}}, rows)
		return nil
	})
	require.NoError(t, err)
}

func TestFileStore_UpdateRejectsUndeclaredKind(t *testing.T) {
	s := newTestFileStore(t, Options{})

	err := s.Update(context.Background(), []Kind{KindUsers}, func(tx Tx) error {
		return tx.Save(KindLeaderboard, []row{})
	})
	assert.ErrorIs(t, err, ErrKindNotLocked)
}

func TestFileStore_ConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	s := newTestFileStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, KindLeaderboard, []row{{ID: "1"}}))

	const workers = 25
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

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	s := newTestFileStore(t, Options{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(ctx, KindOnlineUsers, []row{{ID: "a", Points: i}}))
	}

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "onlineUsers.json", entries[0].Name())
}

func TestKind_FileName(t *testing.T) {
	tests := map[Kind]string{
		KindUsers:         "users.json",
		KindFavorites:     "favorites.json",
		KindOnlineUsers:   "onlineUsers.json",
		KindBattleHistory: "battleHistory.json",
		KindLeaderboard:   "leaderboard.json",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.FileName())
		assert.True(t, kind.Valid())
	}
	assert.Len(t, Kinds(), len(tests))
	assert.False(t, Kind("nope").Valid())
}
