package service

import (
	"context"
	"fmt"

	"pokemon-arena/internal/model"
	"pokemon-arena/internal/repository"
)

// Default points for a manually recorded battle.
const (
	DefaultWinPoints  = 10
	DefaultLosePoints = 0
)

// RecordBattleInput is a manually reported battle. Nil points take the defaults.
type RecordBattleInput struct {
	WinnerID   model.ID
	LoserID    model.ID
	WinPoints  *float64
	LosePoints *float64
}

// BattleResult holds both leaderboard rows after a battle was recorded.
type BattleResult struct {
	Winner model.LeaderboardRow `json:"winner"`
	Loser  model.LeaderboardRow `json:"loser"`
}

// RankingService handles battle history and the leaderboard.
type RankingService struct {
	users       *repository.UserRepository
	history     *repository.HistoryRepository
	leaderboard *repository.LeaderboardRepository
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(
	users *repository.UserRepository,
	history *repository.HistoryRepository,
	leaderboard *repository.LeaderboardRepository,
) *RankingService {
	return &RankingService{
		users:       users,
		history:     history,
		leaderboard: leaderboard,
	}
}

// History returns the user's battle log. A registered user with no battles
// gets an empty list.
func (s *RankingService) History(ctx context.Context, userID model.ID) ([]model.HistoryEntry, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	rec, err := s.history.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.History == nil {
		return []model.HistoryEntry{}, nil
	}
	return rec.History, nil
}

// AddHistory appends one battle to the user's log.
func (s *RankingService) AddHistory(ctx context.Context, userID, opponentID model.ID, result int) (*model.HistoryRecord, *model.HistoryEntry, error) {
	if userID.IsZero() || opponentID.IsZero() {
		return nil, nil, ErrInvalidHistory
	}
	if result != model.ResultWin && result != model.ResultLoss {
		return nil, nil, ErrInvalidHistory
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, nil, err
	}
	return s.history.Append(ctx, userID, opponentID, result)
}

// Leaderboard returns every row, best first.
func (s *RankingService) Leaderboard(ctx context.Context) ([]model.LeaderboardRow, error) {
	rows, err := s.leaderboard.Sorted(ctx)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.LeaderboardRow{}
	}
	return rows, nil
}

func pointsOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// RecordBattle credits the winner and debits the loser. Both must be
// registered users.
func (s *RankingService) RecordBattle(ctx context.Context, in RecordBattleInput) (*BattleResult, error) {
	if in.WinnerID.IsZero() || in.LoserID.IsZero() {
		return nil, ErrMissingBattle
	}

	winner, err := s.users.GetByID(ctx, in.WinnerID)
	if err != nil {
		return nil, err
	}
	loser, err := s.users.GetByID(ctx, in.LoserID)
	if err != nil {
		return nil, err
	}

	w, l, err := s.leaderboard.RecordBattle(ctx, repository.BattleRecord{
		WinnerID:   winner.ID,
		LoserID:    loser.ID,
		WinPoints:  pointsOr(in.WinPoints, DefaultWinPoints),
		LosePoints: pointsOr(in.LosePoints, DefaultLosePoints),
		WinnerName: winner.Username,
		LoserName:  loser.Username,
	})
	if err != nil {
		return nil, err
	}
	return &BattleResult{Winner: *w, Loser: *l}, nil
}

// AddPoints credits points to a registered user.
func (s *RankingService) AddPoints(ctx context.Context, userID model.ID, points *float64, battlesDelta int) (*model.LeaderboardRow, error) {
	if userID.IsZero() || points == nil {
		return nil, ErrPointsRequired
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.leaderboard.AddPoints(ctx, user.ID, *points, user.Username, battlesDelta)
}

// RemovePoints debits points, flooring at zero. The user does not have to be
// registered.
func (s *RankingService) RemovePoints(ctx context.Context, userID model.ID, points *float64, battlesDelta int) (*model.LeaderboardRow, error) {
	if userID.IsZero() || points == nil {
		return nil, ErrPointsRequired
	}
	row, err := s.leaderboard.RemovePoints(ctx, userID, *points, battlesDelta)
	if err != nil {
		return nil, fmt.Errorf("failed to remove points: %w", err)
	}
	return row, nil
}
