// Package service provides the arena's business logic.
package service

import "errors"

// Validation errors. Their messages are returned to clients as-is.
var (
	ErrMissingFields   = errors.New("All fields are required")
	ErrUserIDRequired  = errors.New("userId is required")
	ErrInvalidPokemon  = errors.New("Invalid Pokémon data")
	ErrInvalidHistory  = errors.New("id, opponentId and result (1|0) are required")
	ErrMissingBattle   = errors.New("winnerId and loserId are required")
	ErrPointsRequired  = errors.New("userId and points are required")
	ErrPokemonRequired = errors.New("pokemonId is required")
	ErrOpponentMissing = errors.New("opponentId is required")
	ErrSelfBattle      = errors.New("cannot battle yourself")
)

// Arena errors.
var (
	ErrNotOnline         = errors.New("user is not online")
	ErrOpponentOffline   = errors.New("opponent is not online")
	ErrNoFavorites       = errors.New("both players need at least one favorite")
	ErrDailyLimitReached = errors.New("daily battle limit reached")
	ErrBattleInProgress  = errors.New("a battle involving this player is already in progress")
	ErrBotUnavailable    = errors.New("could not find a bot opponent")
)

// IsValidation reports whether err is a client input error.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrMissingFields, ErrUserIDRequired, ErrInvalidPokemon, ErrInvalidHistory,
		ErrMissingBattle, ErrPointsRequired, ErrPokemonRequired, ErrOpponentMissing,
		ErrSelfBattle,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
