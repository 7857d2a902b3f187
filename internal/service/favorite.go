package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"pokemon-arena/internal/model"
	"pokemon-arena/internal/repository"
)

// FavoriteService manages users' favorite Pokémon.
type FavoriteService struct {
	users     *repository.UserRepository
	favorites *repository.FavoriteRepository
}

// NewFavoriteService creates a new FavoriteService instance.
func NewFavoriteService(users *repository.UserRepository, favorites *repository.FavoriteRepository) *FavoriteService {
	return &FavoriteService{users: users, favorites: favorites}
}

// ValidateFavorite checks that fav carries an id, a name, an image and both
// list fields.
func ValidateFavorite(fav model.Favorite) error {
	if fav.ID.IsZero() ||
		strings.TrimSpace(fav.Name) == "" ||
		strings.TrimSpace(fav.Image) == "" ||
		fav.Types == nil ||
		fav.Abilities == nil {
		return ErrInvalidPokemon
	}
	return nil
}

// Add saves fav for the user.
func (s *FavoriteService) Add(ctx context.Context, userID model.ID, fav model.Favorite) (*model.Favorite, error) {
	if err := ValidateFavorite(fav); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.favorites.Add(ctx, userID, fav)
}

// Remove deletes one Pokémon from the user's favorites.
func (s *FavoriteService) Remove(ctx context.Context, userID, pokemonID model.ID) error {
	return s.favorites.Remove(ctx, userID, pokemonID)
}

// List returns the user's favorites.
func (s *FavoriteService) List(ctx context.Context, userID model.ID) ([]model.Favorite, error) {
	return s.favorites.List(ctx, userID)
}

var csvHeader = []string{"ID", "Name", "Image", "Types", "Abilities"}

// ExportCSV writes the user's favorites as CSV. An empty set is reported as
// repository.ErrFavoritesNotFound.
func (s *FavoriteService) ExportCSV(ctx context.Context, userID model.ID, w io.Writer) error {
	favs, err := s.favorites.List(ctx, userID)
	if err != nil {
		return err
	}
	if len(favs) == 0 {
		return repository.ErrFavoritesNotFound
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	for _, f := range favs {
		record := []string{
			f.ID.String(),
			f.Name,
			f.Image,
			strings.Join(f.Types, ", "),
			strings.Join(f.Abilities, ", "),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}
