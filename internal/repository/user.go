// Package repository provides data access over the record store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pokemon-arena/internal/model"
	"pokemon-arena/internal/pkg/store"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// UserRepository handles user persistence.
type UserRepository struct {
	store store.Store
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(s store.Store) *UserRepository {
	return &UserRepository{store: s}
}

// List returns every registered user.
func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.store.Load(ctx, store.KindUsers, &users); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) find(ctx context.Context, match func(u *model.User) bool) (*model.User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if match(&users[i]) {
			u := users[i]
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

// GetByID retrieves a user by id.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id model.ID) (*model.User, error) {
	return r.find(ctx, func(u *model.User) bool { return u.ID == id })
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	return r.find(ctx, func(u *model.User) bool { return u.Email == email })
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	return r.find(ctx, func(u *model.User) bool { return u.Username == username })
}

// Create stores user unless its username or email is already taken.
// The uniqueness check and the insert happen in one store update.
func (r *UserRepository) Create(ctx context.Context, user model.User) (*model.User, error) {
	err := r.store.Update(ctx, []store.Kind{store.KindUsers}, func(tx store.Tx) error {
		var users []model.User
		if err := tx.Load(store.KindUsers, &users); err != nil {
			return err
		}
		for _, u := range users {
			if u.Username == user.Username || u.Email == user.Email || u.ID == user.ID {
				return ErrUserExists
			}
		}
		return tx.Save(store.KindUsers, append(users, user))
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}
