// Package store persists whole JSON arrays of records, one array per kind.
//
// Two backends implement Store: a directory of JSON files and a PostgreSQL
// table holding one JSONB document per kind. Both expose Update, the single
// transactional boundary every read-modify-write goes through.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog/log"
)

// Kind names a record collection.
type Kind string

// Record kinds.
const (
	KindUsers         Kind = "users"
	KindFavorites     Kind = "favorites"
	KindOnlineUsers   Kind = "online_users"
	KindBattleHistory Kind = "battle_history"
	KindLeaderboard   Kind = "leaderboard"
)

// fileNames are the file names of the data directory layout.
var fileNames = map[Kind]string{
	KindUsers:         "users.json",
	KindFavorites:     "favorites.json",
	KindOnlineUsers:   "onlineUsers.json",
	KindBattleHistory: "battleHistory.json",
	KindLeaderboard:   "leaderboard.json",
}

// Kinds returns every known kind.
func Kinds() []Kind {
	return []Kind{KindUsers, KindFavorites, KindOnlineUsers, KindBattleHistory, KindLeaderboard}
}

// FileName returns the file backing the kind in the file backend.
func (k Kind) FileName() string {
	return fileNames[k]
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := fileNames[k]
	return ok
}

// Store errors.
var (
	// ErrCorrupt is returned when stored content is not a valid JSON array.
	// A missing or empty collection is never corrupt; it loads as empty.
	ErrCorrupt = errors.New("stored records are corrupt")

	ErrUnknownKind   = errors.New("unknown record kind")
	ErrKindNotLocked = errors.New("kind not part of this update")
)

// Tx is the view of the store inside Update.
type Tx interface {
	Load(kind Kind, out any) error
	Save(kind Kind, v any) error
}

// Store loads and saves whole record lists.
type Store interface {
	// Load decodes the kind's list into out, which must point to a slice.
	Load(ctx context.Context, kind Kind, out any) error
	// Save replaces the kind's list with v.
	Save(ctx context.Context, kind Kind, v any) error
	// Update runs fn with exclusive access to kinds and commits every Save
	// made through tx only if fn returns nil.
	Update(ctx context.Context, kinds []Kind, fn func(tx Tx) error) error
	Close() error
}

// Options tunes backend behaviour.
type Options struct {
	// TolerateCorrupt makes Load log and return an empty list instead of
	// ErrCorrupt.
	TolerateCorrupt bool
}

// encode renders v as an indented JSON array. nil slices become [].
func encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	if bytes.Equal(data, []byte("null")) {
		return []byte("[]"), nil
	}
	return data, nil
}

// decode fills out from data. Empty content decodes to the zero value.
func decode(kind Kind, data []byte, out any, opts Options) error {
	resetValue(out)

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		if opts.TolerateCorrupt {
			log.Warn().
				Err(err).
				Str("kind", string(kind)).
				Msg("Corrupt records treated as empty")
			resetValue(out)
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, kind, err)
	}
	return nil
}

func resetValue(out any) {
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	v.Elem().Set(reflect.Zero(v.Elem().Type()))
}

func checkKinds(kinds []Kind) error {
	for _, k := range kinds {
		if !k.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownKind, k)
		}
	}
	return nil
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
