package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"pokemon-arena/internal/model"
	"pokemon-arena/internal/pkg/store"
)

// Leaderboard errors.
var (
	ErrInvalidPoints  = errors.New("points must be >= 0")
	ErrSameCombatants = errors.New("winner and loser must differ")
)

// BattleRecord describes one decided battle for the leaderboard.
type BattleRecord struct {
	WinnerID   model.ID
	LoserID    model.ID
	WinPoints  float64
	LosePoints float64
	WinnerName string
	LoserName  string
}

// Board is an in-memory leaderboard. Its methods mutate rows in place so a
// caller can compose several adjustments inside one store update.
type Board []model.LeaderboardRow

func (b Board) index(id model.ID) int {
	for i := range b {
		if b[i].ID == id {
			return i
		}
	}
	return -1
}

// EnsureRow returns the index of the user's row, creating it when absent.
// Rows missing a battle count get 0; a missing username is backfilled.
func (b *Board) EnsureRow(id model.ID, username string) int {
	i := b.index(id)
	if i < 0 {
		row := model.LeaderboardRow{ID: id, Username: username}
		row.SetBattles(0)
		*b = append(*b, row)
		return len(*b) - 1
	}

	row := &(*b)[i]
	if row.Battles == nil {
		row.SetBattles(0)
	}
	if row.Username == "" && username != "" {
		row.Username = username
	}
	return i
}

// AddPoints credits points and adds battlesDelta battles.
func (b *Board) AddPoints(id model.ID, points float64, username string, battlesDelta int) (model.LeaderboardRow, error) {
	if err := validatePoints(points); err != nil {
		return model.LeaderboardRow{}, err
	}
	i := b.EnsureRow(id, username)
	row := &(*b)[i]
	row.Points += points
	row.SetBattles(row.BattleCount() + battlesDelta)
	return *row, nil
}

// RemovePoints debits points, never below zero, and adds battlesDelta battles.
func (b *Board) RemovePoints(id model.ID, points float64, battlesDelta int) (model.LeaderboardRow, error) {
	if err := validatePoints(points); err != nil {
		return model.LeaderboardRow{}, err
	}
	i := b.EnsureRow(id, "")
	row := &(*b)[i]
	row.Points = math.Max(0, row.Points-points)
	row.SetBattles(row.BattleCount() + battlesDelta)
	return *row, nil
}

// RecordBattle credits the winner, debits the loser and counts one battle for
// each. Nothing is changed when validation fails.
func (b *Board) RecordBattle(rec BattleRecord) (winner, loser model.LeaderboardRow, err error) {
	if rec.WinnerID == rec.LoserID {
		return winner, loser, ErrSameCombatants
	}
	if err := validatePoints(rec.WinPoints); err != nil {
		return winner, loser, err
	}
	if err := validatePoints(rec.LosePoints); err != nil {
		return winner, loser, err
	}

	b.EnsureRow(rec.WinnerID, rec.WinnerName)
	b.EnsureRow(rec.LoserID, rec.LoserName)

	if winner, err = b.AddPoints(rec.WinnerID, rec.WinPoints, rec.WinnerName, 1); err != nil {
		return winner, loser, err
	}
	if loser, err = b.RemovePoints(rec.LoserID, rec.LosePoints, 1); err != nil {
		return winner, loser, err
	}
	return winner, loser, nil
}

// Sorted returns a copy ordered by points descending, then by username
// ascending ignoring case and accents.
func (b Board) Sorted() []model.LeaderboardRow {
	rows := make([]model.LeaderboardRow, len(b))
	copy(rows, b)
	for i := range rows {
		if rows[i].Battles == nil {
			rows[i].SetBattles(0)
		}
	}

	col := collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics, collate.IgnoreWidth)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Points != rows[j].Points {
			return rows[i].Points > rows[j].Points
		}
		return col.CompareString(rows[i].Username, rows[j].Username) < 0
	})
	return rows
}

func validatePoints(points float64) error {
	if math.IsNaN(points) || math.IsInf(points, 0) || points < 0 {
		return ErrInvalidPoints
	}
	return nil
}

// LeaderboardRepository persists the leaderboard.
type LeaderboardRepository struct {
	store store.Store
}

// NewLeaderboardRepository creates a new LeaderboardRepository instance.
func NewLeaderboardRepository(s store.Store) *LeaderboardRepository {
	return &LeaderboardRepository{store: s}
}

// Load returns the board as stored.
func (r *LeaderboardRepository) Load(ctx context.Context) (Board, error) {
	var board Board
	if err := r.store.Load(ctx, store.KindLeaderboard, &board); err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return board, nil
}

// Sorted returns every row in leaderboard order.
func (r *LeaderboardRepository) Sorted(ctx context.Context) ([]model.LeaderboardRow, error) {
	board, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return board.Sorted(), nil
}

// Get returns the user's row, or ErrUserNotFound when the user has none.
func (r *LeaderboardRepository) Get(ctx context.Context, id model.ID) (*model.LeaderboardRow, error) {
	board, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	i := board.index(id)
	if i < 0 {
		return nil, ErrUserNotFound
	}
	row := board[i]
	return &row, nil
}

// modify runs fn against the stored board and saves it when fn succeeds.
func (r *LeaderboardRepository) modify(ctx context.Context, fn func(b *Board) error) error {
	return r.store.Update(ctx, []store.Kind{store.KindLeaderboard}, func(tx store.Tx) error {
		return ModifyBoardTx(tx, fn)
	})
}

// ModifyBoardTx applies fn to the leaderboard inside a caller-owned update.
// The update must include store.KindLeaderboard.
func ModifyBoardTx(tx store.Tx, fn func(b *Board) error) error {
	var board Board
	if err := tx.Load(store.KindLeaderboard, &board); err != nil {
		return err
	}
	if err := fn(&board); err != nil {
		return err
	}
	return tx.Save(store.KindLeaderboard, board)
}

// EnsureRow creates the user's row if needed and returns it.
func (r *LeaderboardRepository) EnsureRow(ctx context.Context, id model.ID, username string) (*model.LeaderboardRow, error) {
	var row model.LeaderboardRow
	err := r.modify(ctx, func(b *Board) error {
		row = (*b)[b.EnsureRow(id, username)]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure leaderboard row: %w", err)
	}
	return &row, nil
}

// AddPoints credits points to the user.
func (r *LeaderboardRepository) AddPoints(ctx context.Context, id model.ID, points float64, username string, battlesDelta int) (*model.LeaderboardRow, error) {
	var row model.LeaderboardRow
	err := r.modify(ctx, func(b *Board) error {
		var err error
		row, err = b.AddPoints(id, points, username, battlesDelta)
		return err
	})
	if err != nil {
		return nil, wrapLeaderboardErr("add points", err)
	}
	return &row, nil
}

// RemovePoints debits points from the user, flooring at zero.
func (r *LeaderboardRepository) RemovePoints(ctx context.Context, id model.ID, points float64, battlesDelta int) (*model.LeaderboardRow, error) {
	var row model.LeaderboardRow
	err := r.modify(ctx, func(b *Board) error {
		var err error
		row, err = b.RemovePoints(id, points, battlesDelta)
		return err
	})
	if err != nil {
		return nil, wrapLeaderboardErr("remove points", err)
	}
	return &row, nil
}

// RecordBattle applies a battle result to both rows in one update.
func (r *LeaderboardRepository) RecordBattle(ctx context.Context, rec BattleRecord) (winner, loser *model.LeaderboardRow, err error) {
	var w, l model.LeaderboardRow
	err = r.modify(ctx, func(b *Board) error {
		var err error
		w, l, err = b.RecordBattle(rec)
		return err
	})
	if err != nil {
		return nil, nil, wrapLeaderboardErr("record battle", err)
	}
	return &w, &l, nil
}

func wrapLeaderboardErr(op string, err error) error {
	if errors.Is(err, ErrInvalidPoints) || errors.Is(err, ErrSameCombatants) {
		return err
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
