// Package model defines the records persisted by the arena backend.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// ID is the canonical identifier used by every ledger.
// Stored files written by older clients may carry numeric ids, so decoding
// accepts both JSON strings and JSON numbers and always yields the string form.
type ID string

// UnmarshalJSON accepts `"abc"`, `"12"` and `12`. Numbers are formatted
// canonically, so 25, 25.0 and 2.5e1 all decode to "25".
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("id must be a string or a number")
	}
	f, err := n.Float64()
	if err != nil {
		return errors.New("id must be a string or a number")
	}
	*id = ID(formatNumber(f))
	return nil
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// String returns the id as a plain string.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool {
	return id == ""
}

// User is a registered account. Password holds the bcrypt hash.
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PublicUser is the response view of a User; it never carries the hash.
type PublicUser struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Public strips the password hash.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Email: u.Email}
}

// OnlineUser is a presence row. One row per user id.
type OnlineUser struct {
	ID       ID        `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Since    time.Time `json:"since"`
	LastSeen time.Time `json:"lastSeen"`
}

// Favorite is a bookmarked Pokémon with cached display fields.
type Favorite struct {
	ID        ID       `json:"id"`
	Name      string   `json:"name"`
	Image     string   `json:"image"`
	Types     []string `json:"types"`
	Abilities []string `json:"abilities"`
}

// FavoriteSet holds one user's favorites. At most one entry per Pokémon id.
type FavoriteSet struct {
	UserID    ID         `json:"userId"`
	Favorites []Favorite `json:"favorites"`
}

// Has reports whether the set already contains the Pokémon id.
func (s *FavoriteSet) Has(pokemonID ID) bool {
	for _, f := range s.Favorites {
		if f.ID == pokemonID {
			return true
		}
	}
	return false
}

// Battle results as stored in history entries.
const (
	ResultLoss = 0
	ResultWin  = 1
)

// HistoryEntry is one battle seen from the owner's side. ID is the opponent.
type HistoryEntry struct {
	ID     ID        `json:"id"`
	Result int       `json:"result"`
	Date   time.Time `json:"date"`
}

// HistoryRecord is the append-only battle log of a single user.
type HistoryRecord struct {
	ID      ID             `json:"id"`
	History []HistoryEntry `json:"history"`
}

// LeaderboardRow accumulates a user's points and battle count.
// Battles is a pointer so rows written before the field existed can be told apart.
type LeaderboardRow struct {
	ID       ID      `json:"id"`
	Username string  `json:"username"`
	Points   float64 `json:"points"`
	Battles  *int    `json:"battles,omitempty"`
}

// BattleCount returns the number of battles, treating a missing field as 0.
func (r *LeaderboardRow) BattleCount() int {
	if r.Battles == nil {
		return 0
	}
	return *r.Battles
}

// SetBattles stores n as the battle count.
func (r *LeaderboardRow) SetBattles(n int) {
	r.Battles = &n
}

// ErrInvalidResult is returned when a battle result is neither 0 nor 1.
var ErrInvalidResult = errors.New("result must be 1 or 0")

// ParseResult decodes a raw JSON battle result: a number or numeric string
// equal to 0 or 1, so 1, 1.0 and "1" are all wins.
func ParseResult(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, ErrInvalidResult
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, ErrInvalidResult
		}
	} else {
		text = string(raw)
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, ErrInvalidResult
	}
	switch f {
	case 0:
		return ResultLoss, nil
	case 1:
		return ResultWin, nil
	}
	return 0, ErrInvalidResult
}

// NormalizeResult maps any value whose numeric form equals 1 to a win.
func NormalizeResult(v any) int {
	switch t := v.(type) {
	case bool:
		if t {
			return ResultWin
		}
		return ResultLoss
	case int:
		if t == 1 {
			return ResultWin
		}
	case float64:
		if t == 1 {
			return ResultWin
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil && f == 1 {
			return ResultWin
		}
	}
	return ResultLoss
}
