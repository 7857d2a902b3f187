package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pokemon-arena/internal/battle"
	"pokemon-arena/internal/catalog"
	"pokemon-arena/internal/config"
	"pokemon-arena/internal/model"
	"pokemon-arena/internal/pkg/lock"
	"pokemon-arena/internal/pkg/store"
	"pokemon-arena/internal/repository"
)

// Catalog is the part of the Pokémon API the arena needs.
type Catalog interface {
	Pokemon(ctx context.Context, idOrName string) (*catalog.Pokemon, error)
	RandomPokemon(ctx context.Context, rng battle.Rand) (*catalog.Pokemon, error)
}

// OnlineChecker reports presence.
type OnlineChecker interface {
	IsOnline(ctx context.Context, userID model.ID) (bool, error)
}

// Quota is a user's vs-player allowance for the current day.
type Quota struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

func newQuota(used, limit int) Quota {
	return Quota{Used: used, Limit: limit, Remaining: max(0, limit-used)}
}

// BotBattle is the result of a battle against a random wild Pokémon.
type BotBattle struct {
	Challenger *battle.Combatant `json:"challenger"`
	Opponent   *battle.Combatant `json:"opponent"`
	Outcome    battle.Outcome    `json:"outcome"`
	Result     int               `json:"result"`
}

// PlayerBattle is the result of a battle against another user. Result is
// from the challenger's side.
type PlayerBattle struct {
	Challenger *battle.Combatant    `json:"challenger"`
	Opponent   *battle.Combatant    `json:"opponent"`
	Outcome    battle.Outcome       `json:"outcome"`
	Result     int                  `json:"result"`
	Winner     model.LeaderboardRow `json:"winner"`
	Loser      model.LeaderboardRow `json:"loser"`
	Quota      Quota                `json:"quota"`
}

// sharedRand draws from the goroutine-safe top-level generator.
type sharedRand struct{}

func (sharedRand) Float64() float64 { return rand.Float64() }
func (sharedRand) IntN(n int) int   { return rand.IntN(n) }

// ArenaService runs battles server-side.
type ArenaService struct {
	store     store.Store
	users     *repository.UserRepository
	favorites *repository.FavoriteRepository
	history   *repository.HistoryRepository
	catalog   Catalog
	online    OnlineChecker
	judges    *battle.Registry
	locks     *lock.KeyLock
	cfg       config.ArenaConfig
	loc       *time.Location
	rng       battle.Rand
	now       func() time.Time
}

// NewArenaService creates a new ArenaService instance.
func NewArenaService(
	s store.Store,
	users *repository.UserRepository,
	favorites *repository.FavoriteRepository,
	history *repository.HistoryRepository,
	cat Catalog,
	online OnlineChecker,
	judges *battle.Registry,
	cfg config.ArenaConfig,
) (*ArenaService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if judges == nil {
		judges = battle.DefaultRegistry()
	}
	return &ArenaService{
		store:     s,
		users:     users,
		favorites: favorites,
		history:   history,
		catalog:   cat,
		online:    online,
		judges:    judges,
		locks:     lock.New(),
		cfg:       cfg,
		loc:       loc,
		rng:       sharedRand{},
		now:       time.Now,
	}, nil
}

func (s *ArenaService) judge(mode string) (battle.Judge, error) {
	j, ok := s.judges.Get(mode)
	if !ok {
		return nil, fmt.Errorf("no judge registered for mode %q", mode)
	}
	return j, nil
}

func (s *ArenaService) usedToday(ctx context.Context, userID model.ID) (int, error) {
	return s.history.CountOnDay(ctx, userID, s.now().In(s.loc))
}

// Quota returns how many vs-player battles the user fought today.
func (s *ArenaService) Quota(ctx context.Context, userID model.ID) (*Quota, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	used, err := s.usedToday(ctx, userID)
	if err != nil {
		return nil, err
	}
	q := newQuota(used, s.cfg.DailyLimit)
	return &q, nil
}

func (s *ArenaService) fetchCombatant(ctx context.Context, id model.ID) (*battle.Combatant, error) {
	p, err := s.catalog.Pokemon(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load pokémon %s: %w", id, err)
	}
	return p.Combatant(), nil
}

// BattleBot pits one of the user's favorites against a random Pokémon.
// Nothing is persisted and no quota is used.
func (s *ArenaService) BattleBot(ctx context.Context, userID, pokemonID model.ID) (*BotBattle, error) {
	if pokemonID.IsZero() {
		return nil, ErrPokemonRequired
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	favs, err := s.favorites.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := model.FavoriteSet{UserID: userID, Favorites: favs}
	if !set.Has(pokemonID) {
		return nil, repository.ErrFavoriteNotFound
	}

	judge, err := s.judge(battle.ModeBot)
	if err != nil {
		return nil, err
	}

	var challenger, bot *battle.Combatant
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		challenger, err = s.fetchCombatant(gctx, pokemonID)
		return err
	})
	g.Go(func() error {
		p, err := s.catalog.RandomPokemon(gctx, s.rng)
		if err != nil {
			if errors.Is(err, catalog.ErrRandomExhausted) {
				return fmt.Errorf("%w: %v", ErrBotUnavailable, err)
			}
			return err
		}
		bot = p.Combatant()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outcome := judge.Decide(challenger, bot, s.rng)

	log.Info().
		Str("user_id", userID.String()).
		Str("challenger", challenger.Name).
		Str("bot", bot.Name).
		Bool("won", outcome.ChallengerWins).
		Str("reason", outcome.Reason).
		Msg("Bot battle decided")

	return &BotBattle{
		Challenger: challenger,
		Opponent:   bot,
		Outcome:    outcome,
		Result:     resultOf(outcome.ChallengerWins),
	}, nil
}

func resultOf(won bool) int {
	if won {
		return model.ResultWin
	}
	return model.ResultLoss
}

func lockKey(id model.ID) string {
	return "arena:" + id.String()
}

// lockPair takes both players' battle locks without waiting.
func (s *ArenaService) lockPair(a, b model.ID) (func(), error) {
	keys := []string{lockKey(a), lockKey(b)}
	if keys[1] < keys[0] {
		keys[0], keys[1] = keys[1], keys[0]
	}
	if !s.locks.TryLock(keys[0]) {
		return nil, ErrBattleInProgress
	}
	if !s.locks.TryLock(keys[1]) {
		s.locks.Unlock(keys[0])
		return nil, ErrBattleInProgress
	}
	return func() {
		s.locks.Unlock(keys[1])
		s.locks.Unlock(keys[0])
	}, nil
}

func (s *ArenaService) pickFavorite(ctx context.Context, userID model.ID) (model.Favorite, error) {
	favs, err := s.favorites.List(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrFavoritesNotFound) {
		return model.Favorite{}, err
	}
	if len(favs) == 0 {
		return model.Favorite{}, ErrNoFavorites
	}
	return favs[s.rng.IntN(len(favs))], nil
}

// BattlePlayer fights a random favorite of the user against a random
// favorite of an online opponent. Both histories and the leaderboard are
// updated in one store transaction.
func (s *ArenaService) BattlePlayer(ctx context.Context, userID, opponentID model.ID) (*PlayerBattle, error) {
	if opponentID.IsZero() {
		return nil, ErrOpponentMissing
	}
	if userID == opponentID {
		return nil, ErrSelfBattle
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	opponent, err := s.users.GetByID(ctx, opponentID)
	if err != nil {
		return nil, err
	}

	online, err := s.online.IsOnline(ctx, opponentID)
	if err != nil {
		return nil, err
	}
	if !online {
		return nil, ErrOpponentOffline
	}

	unlock, err := s.lockPair(userID, opponentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	used, err := s.usedToday(ctx, userID)
	if err != nil {
		return nil, err
	}
	if used >= s.cfg.DailyLimit {
		return nil, ErrDailyLimitReached
	}

	mine, err := s.pickFavorite(ctx, userID)
	if err != nil {
		return nil, err
	}
	theirs, err := s.pickFavorite(ctx, opponentID)
	if err != nil {
		return nil, err
	}

	judge, err := s.judge(battle.ModePlayer)
	if err != nil {
		return nil, err
	}

	var challenger, defender *battle.Combatant
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		challenger, err = s.fetchCombatant(gctx, mine.ID)
		return err
	})
	g.Go(func() error {
		var err error
		defender, err = s.fetchCombatant(gctx, theirs.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outcome := judge.Decide(challenger, defender, s.rng)
	result := resultOf(outcome.ChallengerWins)

	rec := repository.BattleRecord{
		WinnerID:   user.ID,
		LoserID:    opponent.ID,
		WinPoints:  s.cfg.WinPoints,
		LosePoints: s.cfg.LosePoints,
		WinnerName: user.Username,
		LoserName:  opponent.Username,
	}
	if !outcome.ChallengerWins {
		rec.WinnerID, rec.LoserID = opponent.ID, user.ID
		rec.WinnerName, rec.LoserName = opponent.Username, user.Username
	}

	var winner, loser model.LeaderboardRow
	kinds := []store.Kind{store.KindBattleHistory, store.KindLeaderboard}
	err = s.store.Update(ctx, kinds, func(tx store.Tx) error {
		if _, _, err := s.history.AppendTx(tx, user.ID, opponent.ID, result); err != nil {
			return err
		}
		if _, _, err := s.history.AppendTx(tx, opponent.ID, user.ID, 1-result); err != nil {
			return err
		}
		return repository.ModifyBoardTx(tx, func(b *repository.Board) error {
			var err error
			winner, loser, err = b.RecordBattle(rec)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save battle: %w", err)
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("opponent_id", opponentID.String()).
		Str("winner_id", rec.WinnerID.String()).
		Float64("challenger_score", outcome.ChallengerScore).
		Float64("opponent_score", outcome.OpponentScore).
		Msg("Player battle decided")

	return &PlayerBattle{
		Challenger: challenger,
		Opponent:   defender,
		Outcome:    outcome,
		Result:     result,
		Winner:     winner,
		Loser:      loser,
		Quota:      newQuota(used+1, s.cfg.DailyLimit),
	}, nil
}
