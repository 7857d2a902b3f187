package repository

import (
	"context"
	"errors"
	"fmt"

	"pokemon-arena/internal/model"
	"pokemon-arena/internal/pkg/store"
)

// Favorite errors.
var (
	ErrFavoritesNotFound = errors.New("no favorites found for this user")
	ErrFavoriteExists    = errors.New("pokémon already in favorites")
	ErrFavoriteNotFound  = errors.New("pokémon not found in favorites")
)

// FavoriteRepository handles per-user favorite sets.
type FavoriteRepository struct {
	store store.Store
}

// NewFavoriteRepository creates a new FavoriteRepository instance.
func NewFavoriteRepository(s store.Store) *FavoriteRepository {
	return &FavoriteRepository{store: s}
}

// List returns the user's favorites. ErrFavoritesNotFound means the user never
// saved one; an emptied set returns an empty slice.
func (r *FavoriteRepository) List(ctx context.Context, userID model.ID) ([]model.Favorite, error) {
	var sets []model.FavoriteSet
	if err := r.store.Load(ctx, store.KindFavorites, &sets); err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	for _, s := range sets {
		if s.UserID == userID {
			if s.Favorites == nil {
				return []model.Favorite{}, nil
			}
			return s.Favorites, nil
		}
	}
	return nil, ErrFavoritesNotFound
}

// Add appends fav to the user's set, creating the set on first use.
func (r *FavoriteRepository) Add(ctx context.Context, userID model.ID, fav model.Favorite) (*model.Favorite, error) {
	err := r.store.Update(ctx, []store.Kind{store.KindFavorites}, func(tx store.Tx) error {
		var sets []model.FavoriteSet
		if err := tx.Load(store.KindFavorites, &sets); err != nil {
			return err
		}

		for i := range sets {
			if sets[i].UserID != userID {
				continue
			}
			if sets[i].Has(fav.ID) {
				return ErrFavoriteExists
			}
			sets[i].Favorites = append(sets[i].Favorites, fav)
			return tx.Save(store.KindFavorites, sets)
		}

		sets = append(sets, model.FavoriteSet{UserID: userID, Favorites: []model.Favorite{fav}})
		return tx.Save(store.KindFavorites, sets)
	})
	if err != nil {
		if errors.Is(err, ErrFavoriteExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add favorite: %w", err)
	}
	return &fav, nil
}

// Remove deletes the Pokémon from the user's set.
func (r *FavoriteRepository) Remove(ctx context.Context, userID, pokemonID model.ID) error {
	err := r.store.Update(ctx, []store.Kind{store.KindFavorites}, func(tx store.Tx) error {
		var sets []model.FavoriteSet
		if err := tx.Load(store.KindFavorites, &sets); err != nil {
			return err
		}

		for i := range sets {
			if sets[i].UserID != userID {
				continue
			}
			kept := make([]model.Favorite, 0, len(sets[i].Favorites))
			for _, f := range sets[i].Favorites {
				if f.ID != pokemonID {
					kept = append(kept, f)
				}
			}
			if len(kept) == len(sets[i].Favorites) {
				return ErrFavoriteNotFound
			}
			sets[i].Favorites = kept
			return tx.Save(store.KindFavorites, sets)
		}
		return ErrFavoritesNotFound
	})
	if err != nil {
		if errors.Is(err, ErrFavoritesNotFound) || errors.Is(err, ErrFavoriteNotFound) {
			return err
		}
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}
