package repository

import (
	"context"
	"fmt"
	"time"

	"pokemon-arena/internal/model"
	"pokemon-arena/internal/pkg/store"
)

// HistoryRepository handles the per-user battle logs.
type HistoryRepository struct {
	store store.Store
	now   func() time.Time
}

// NewHistoryRepository creates a new HistoryRepository instance.
func NewHistoryRepository(s store.Store) *HistoryRepository {
	return &HistoryRepository{store: s, now: time.Now}
}

// Get returns the user's record, or nil with no error when none exists.
func (r *HistoryRepository) Get(ctx context.Context, userID model.ID) (*model.HistoryRecord, error) {
	var records []model.HistoryRecord
	if err := r.store.Load(ctx, store.KindBattleHistory, &records); err != nil {
		return nil, fmt.Errorf("failed to load battle history: %w", err)
	}
	for _, rec := range records {
		if rec.ID == userID {
			rec := rec
			return &rec, nil
		}
	}
	return nil, nil
}

// Append adds an entry against opponentID and returns the updated record and
// the entry that was added.
func (r *HistoryRepository) Append(ctx context.Context, userID, opponentID model.ID, result int) (*model.HistoryRecord, *model.HistoryEntry, error) {
	var (
		rec   *model.HistoryRecord
		entry *model.HistoryEntry
	)
	err := r.store.Update(ctx, []store.Kind{store.KindBattleHistory}, func(tx store.Tx) error {
		var err error
		rec, entry, err = r.AppendTx(tx, userID, opponentID, result)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to append battle history: %w", err)
	}
	return rec, entry, nil
}

// AppendTx is Append inside a caller-owned update. The update must include
// store.KindBattleHistory.
func (r *HistoryRepository) AppendTx(tx store.Tx, userID, opponentID model.ID, result int) (*model.HistoryRecord, *model.HistoryEntry, error) {
	var records []model.HistoryRecord
	if err := tx.Load(store.KindBattleHistory, &records); err != nil {
		return nil, nil, err
	}

	entry := model.HistoryEntry{
		ID:     opponentID,
		Result: model.NormalizeResult(result),
		Date:   r.now().UTC(),
	}

	idx := -1
	for i := range records {
		if records[i].ID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		records = append(records, model.HistoryRecord{ID: userID})
		idx = len(records) - 1
	}
	records[idx].History = append(records[idx].History, entry)

	if err := tx.Save(store.KindBattleHistory, records); err != nil {
		return nil, nil, err
	}

	rec := records[idx]
	return &rec, &entry, nil
}

// CountOnDay returns how many of the user's entries fall on the calendar day
// containing day, evaluated in day's location.
func (r *HistoryRepository) CountOnDay(ctx context.Context, userID model.ID, day time.Time) (int, error) {
	rec, err := r.Get(ctx, userID)
	if err != nil || rec == nil {
		return 0, err
	}
	return CountEntriesOnDay(rec.History, day), nil
}

// CountEntriesOnDay counts entries dated within the calendar day containing day.
func CountEntriesOnDay(entries []model.HistoryEntry, day time.Time) int {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	n := 0
	for _, e := range entries {
		if !e.Date.Before(start) && e.Date.Before(end) {
			n++
		}
	}
	return n
}
