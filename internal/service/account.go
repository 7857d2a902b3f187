package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pokemon-arena/internal/auth"
	"pokemon-arena/internal/model"
	"pokemon-arena/internal/realtime"
	"pokemon-arena/internal/repository"
)

// Session is what register and login hand back to the client.
type Session struct {
	User  model.PublicUser `json:"user"`
	Token string           `json:"token"`
}

// AccountService handles registration, login and presence.
type AccountService struct {
	users       *repository.UserRepository
	presence    repository.PresenceRepository
	tokens      *auth.TokenIssuer
	events      realtime.Publisher
	bcryptCost  int
	idleTimeout time.Duration
	now         func() time.Time
}

// NewAccountService creates a new AccountService instance.
// idleTimeout of zero keeps presence rows until logout.
func NewAccountService(
	users *repository.UserRepository,
	presence repository.PresenceRepository,
	tokens *auth.TokenIssuer,
	events realtime.Publisher,
	bcryptCost int,
	idleTimeout time.Duration,
) *AccountService {
	return &AccountService{
		users:       users,
		presence:    presence,
		tokens:      tokens,
		events:      events,
		bcryptCost:  bcryptCost,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

func (s *AccountService) session(u *model.User) (*Session, error) {
	pub := u.Public()
	token, err := s.tokens.Issue(pub)
	if err != nil {
		return nil, err
	}
	return &Session{User: pub, Token: token}, nil
}

// Register creates an account with a hashed password and a fresh id.
func (s *AccountService) Register(ctx context.Context, username, email, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, model.User{
		ID:       model.ID(uuid.NewString()),
		Username: username,
		Email:    email,
		Password: hash,
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("user_id", user.ID.String()).Str("username", username).Msg("User registered")
	return s.session(user)
}

// Login verifies the password of the account matching identifier (email
// first, then username) and marks the user online.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, auth.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, identifier)
	if errors.Is(err, repository.ErrUserNotFound) {
		user, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := auth.CheckPassword(user.Password, password); err != nil {
		return nil, err
	}

	row, err := s.presence.AddOrRefresh(ctx, user.ID, user.Username, user.Email)
	if err != nil {
		return nil, err
	}
	s.events.Publish(realtime.Online(*row))

	log.Info().Str("user_id", user.ID.String()).Msg("User logged in")
	return s.session(user)
}

// Logout removes the user's presence row and reports whether one existed.
func (s *AccountService) Logout(ctx context.Context, userID model.ID) (bool, error) {
	if userID.IsZero() {
		return false, ErrUserIDRequired
	}
	removed, err := s.presence.Remove(ctx, userID)
	if err != nil {
		return false, err
	}
	if removed {
		s.events.Publish(realtime.Offline(userID))
		log.Info().Str("user_id", userID.String()).Msg("User logged out")
	}
	return removed, nil
}

// Heartbeat refreshes the user's last-seen time.
func (s *AccountService) Heartbeat(ctx context.Context, userID model.ID) error {
	ok, err := s.presence.Touch(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOnline
	}
	return nil
}

func (s *AccountService) fresh(u model.OnlineUser) bool {
	return s.idleTimeout <= 0 || s.now().Sub(u.LastSeen) <= s.idleTimeout
}

// Online lists the users currently online, oldest session first.
func (s *AccountService) Online(ctx context.Context) ([]model.OnlineUser, error) {
	rows, err := s.presence.List(ctx)
	if err != nil {
		return nil, err
	}
	online := make([]model.OnlineUser, 0, len(rows))
	for _, u := range rows {
		if s.fresh(u) {
			online = append(online, u)
		}
	}
	return online, nil
}

// IsOnline reports whether the user has a live presence row. Without an idle
// timeout any row counts, so the repository lookup answers directly.
func (s *AccountService) IsOnline(ctx context.Context, userID model.ID) (bool, error) {
	if s.idleTimeout <= 0 {
		return s.presence.IsOnline(ctx, userID)
	}
	rows, err := s.presence.List(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range rows {
		if u.ID == userID {
			return s.fresh(u), nil
		}
	}
	return false, nil
}
