package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"pokemon-arena/internal/model"
	"pokemon-arena/internal/repository"
	"pokemon-arena/internal/service"
)

// FavoriteHandler serves /users/{userId}/favorites.
type FavoriteHandler struct {
	favorites *service.FavoriteService
}

// NewFavoriteHandler creates a new FavoriteHandler.
func NewFavoriteHandler(favorites *service.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites}
}

func pathID(r *http.Request, name string) model.ID {
	return model.ID(mux.Vars(r)[name])
}

// HandleAdd handles POST /users/{userId}/favorites.
func (h *FavoriteHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID := pathID(r, "userId")
	if err := requireSelf(r, userID); err != nil {
		respondError(w, r, err)
		return
	}

	var fav model.Favorite
	if err := decodeJSON(r, &fav); err != nil {
		writeError(w, http.StatusBadRequest, service.ErrInvalidPokemon.Error())
		return
	}

	added, err := h.favorites.Add(r.Context(), userID, fav)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "Pokémon added to favorites",
		"favorite": added,
	})
}

// HandleRemove handles DELETE /users/{userId}/favorites/{pokemonId}.
func (h *FavoriteHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	userID := pathID(r, "userId")
	if err := requireSelf(r, userID); err != nil {
		respondError(w, r, err)
		return
	}

	err := h.favorites.Remove(r.Context(), userID, pathID(r, "pokemonId"))
	if errors.Is(err, repository.ErrFavoritesNotFound) {
		writeError(w, http.StatusNotFound, "User or favorites not found")
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Pokémon removed from favorites"})
}

// HandleList handles GET /users/{userId}/favorites.
func (h *FavoriteHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	favs, err := h.favorites.List(r.Context(), pathID(r, "userId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorites": favs})
}

// HandleDownload handles GET /users/{userId}/favorites/download.
func (h *FavoriteHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	userID := pathID(r, "userId")

	var buf bytes.Buffer
	if err := h.favorites.ExportCSV(r.Context(), userID, &buf); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "favorites-"+userID.String()+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
