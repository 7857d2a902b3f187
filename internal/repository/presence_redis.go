package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"pokemon-arena/internal/model"
)

// presenceKey is the hash holding one JSON-encoded row per user id.
const presenceKey = "presence:online"

const presenceMaxRetries = 10

// RedisPresenceRepository keeps presence in a Redis hash so several server
// instances share one online list.
type RedisPresenceRepository struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewRedisPresenceRepository creates a presence repository over rdb.
func NewRedisPresenceRepository(rdb redis.UniversalClient) *RedisPresenceRepository {
	return &RedisPresenceRepository{rdb: rdb, now: time.Now}
}

// update runs fn on the user's current row under WATCH, retrying when another
// client changed the hash in between. fn returns nil to leave the hash as is.
func (r *RedisPresenceRepository) update(ctx context.Context, id model.ID, fn func(cur *model.OnlineUser) *model.OnlineUser) (*model.OnlineUser, error) {
	var result *model.OnlineUser

	txf := func(tx *redis.Tx) error {
		var cur *model.OnlineUser
		raw, err := tx.HGet(ctx, presenceKey, id.String()).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var row model.OnlineUser
			if err := json.Unmarshal(raw, &row); err != nil {
				return fmt.Errorf("corrupt presence row for %s: %w", id, err)
			}
			cur = &row
		}

		next := fn(cur)
		if next == nil {
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, presenceKey, id.String(), data)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < presenceMaxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, presenceKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return nil, errors.New("presence update retries exhausted")
}

// AddOrRefresh upserts the user's presence row.
func (r *RedisPresenceRepository) AddOrRefresh(ctx context.Context, id model.ID, username, email string) (*model.OnlineUser, error) {
	row, err := r.update(ctx, id, func(cur *model.OnlineUser) *model.OnlineUser {
		now := r.now().UTC()
		if cur == nil {
			return &model.OnlineUser{ID: id, Username: username, Email: email, Since: now, LastSeen: now}
		}
		cur.Username = username
		cur.Email = email
		cur.LastSeen = now
		return cur
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark user online: %w", err)
	}
	return row, nil
}

// Remove drops the user's row and reports whether one existed.
func (r *RedisPresenceRepository) Remove(ctx context.Context, id model.ID) (bool, error) {
	n, err := r.rdb.HDel(ctx, presenceKey, id.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark user offline: %w", err)
	}
	return n > 0, nil
}

// Touch refreshes LastSeen for an online user.
func (r *RedisPresenceRepository) Touch(ctx context.Context, id model.ID) (bool, error) {
	row, err := r.update(ctx, id, func(cur *model.OnlineUser) *model.OnlineUser {
		if cur == nil {
			return nil
		}
		cur.LastSeen = r.now().UTC()
		return cur
	})
	if err != nil {
		return false, fmt.Errorf("failed to refresh presence: %w", err)
	}
	return row != nil, nil
}

// IsOnline reports whether the user has a presence row.
func (r *RedisPresenceRepository) IsOnline(ctx context.Context, id model.ID) (bool, error) {
	ok, err := r.rdb.HExists(ctx, presenceKey, id.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return ok, nil
}

// List returns every presence row ordered by login time.
func (r *RedisPresenceRepository) List(ctx context.Context) ([]model.OnlineUser, error) {
	all, err := r.rdb.HGetAll(ctx, presenceKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load online users: %w", err)
	}

	list := make([]model.OnlineUser, 0, len(all))
	for id, raw := range all {
		var row model.OnlineUser
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("corrupt presence row for %s: %w", id, err)
		}
		list = append(list, row)
	}

	sort.Slice(list, func(i, j int) bool {
		if !list[i].Since.Equal(list[j].Since) {
			return list[i].Since.Before(list[j].Since)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}
