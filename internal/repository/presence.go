package repository

import (
	"context"
	"fmt"
	"time"

	"pokemon-arena/internal/model"
	"pokemon-arena/internal/pkg/store"
)

// PresenceRepository tracks which users are logged in.
// Rows are keyed by user id; Since is set on first insert only.
type PresenceRepository interface {
	AddOrRefresh(ctx context.Context, id model.ID, username, email string) (*model.OnlineUser, error)
	Remove(ctx context.Context, id model.ID) (bool, error)
	// Touch refreshes LastSeen and reports whether the user was online.
	Touch(ctx context.Context, id model.ID) (bool, error)
	IsOnline(ctx context.Context, id model.ID) (bool, error)
	List(ctx context.Context) ([]model.OnlineUser, error)
}

// StorePresenceRepository keeps presence in the record store.
type StorePresenceRepository struct {
	store store.Store
	now   func() time.Time
}

// NewStorePresenceRepository creates a presence repository over the record store.
func NewStorePresenceRepository(s store.Store) *StorePresenceRepository {
	return &StorePresenceRepository{store: s, now: time.Now}
}

func (r *StorePresenceRepository) modify(ctx context.Context, fn func(list []model.OnlineUser) ([]model.OnlineUser, bool, error)) error {
	return r.store.Update(ctx, []store.Kind{store.KindOnlineUsers}, func(tx store.Tx) error {
		var list []model.OnlineUser
		if err := tx.Load(store.KindOnlineUsers, &list); err != nil {
			return err
		}
		next, changed, err := fn(list)
		if err != nil || !changed {
			return err
		}
		return tx.Save(store.KindOnlineUsers, next)
	})
}

// AddOrRefresh upserts the user's presence row.
func (r *StorePresenceRepository) AddOrRefresh(ctx context.Context, id model.ID, username, email string) (*model.OnlineUser, error) {
	var row model.OnlineUser
	err := r.modify(ctx, func(list []model.OnlineUser) ([]model.OnlineUser, bool, error) {
		now := r.now().UTC()
		for i := range list {
			if list[i].ID == id {
				list[i].Username = username
				list[i].Email = email
				list[i].LastSeen = now
				row = list[i]
				return list, true, nil
			}
		}
		row = model.OnlineUser{ID: id, Username: username, Email: email, Since: now, LastSeen: now}
		return append(list, row), true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark user online: %w", err)
	}
	return &row, nil
}

// Remove drops the user's row and reports whether one existed.
func (r *StorePresenceRepository) Remove(ctx context.Context, id model.ID) (bool, error) {
	removed := false
	err := r.modify(ctx, func(list []model.OnlineUser) ([]model.OnlineUser, bool, error) {
		next := list[:0]
		for _, u := range list {
			if u.ID == id {
				removed = true
				continue
			}
			next = append(next, u)
		}
		return next, removed, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark user offline: %w", err)
	}
	return removed, nil
}

// Touch refreshes LastSeen for an online user.
func (r *StorePresenceRepository) Touch(ctx context.Context, id model.ID) (bool, error) {
	found := false
	err := r.modify(ctx, func(list []model.OnlineUser) ([]model.OnlineUser, bool, error) {
		for i := range list {
			if list[i].ID == id {
				list[i].LastSeen = r.now().UTC()
				found = true
				break
			}
		}
		return list, found, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to refresh presence: %w", err)
	}
	return found, nil
}

// IsOnline reports whether the user has a presence row.
func (r *StorePresenceRepository) IsOnline(ctx context.Context, id model.ID) (bool, error) {
	list, err := r.List(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range list {
		if u.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// List returns every presence row in insertion order.
func (r *StorePresenceRepository) List(ctx context.Context) ([]model.OnlineUser, error) {
	var list []model.OnlineUser
	if err := r.store.Load(ctx, store.KindOnlineUsers, &list); err != nil {
		return nil, fmt.Errorf("failed to load online users: %w", err)
	}
	if list == nil {
		list = []model.OnlineUser{}
	}
	return list, nil
}
