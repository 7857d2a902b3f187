package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"pokemon-arena/internal/catalog"
	"pokemon-arena/internal/model"
)

// Catalog is the Pokémon API surface the handlers use.
type Catalog interface {
	Pokemon(ctx context.Context, idOrName string) (*catalog.Pokemon, error)
	List(ctx context.Context, offset, limit int) (*catalog.Page, error)
	ByType(ctx context.Context, typ string, offset, limit int) (*catalog.Page, error)
	ByAbility(ctx context.Context, ability string, offset, limit int) (*catalog.Page, error)
	Hydrate(ctx context.Context, refs []catalog.Ref) ([]catalog.Summary, error)
}

// PokemonHandler proxies listing and search to the Pokémon API.
type PokemonHandler struct {
	catalog Catalog
}

// NewPokemonHandler creates a new PokemonHandler.
func NewPokemonHandler(c Catalog) *PokemonHandler {
	return &PokemonHandler{catalog: c}
}

type pageResponse struct {
	Results []catalog.Summary `json:"results"`
	Total   int               `json:"total"`
}

func queryInt(r *http.Request, name string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func window(w http.ResponseWriter, r *http.Request) (offset, limit int, ok bool) {
	offset, okOffset := queryInt(r, "offset")
	limit, okLimit := queryInt(r, "limit")
	if !okOffset || !okLimit {
		writeError(w, http.StatusBadRequest, "offset and limit must be non-negative integers")
		return 0, 0, false
	}
	return offset, limit, true
}

// HandleList handles GET /pokemon. With a type query only that type is listed.
func (h *PokemonHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := window(w, r)
	if !ok {
		return
	}

	var (
		page *catalog.Page
		err  error
	)
	if typ := strings.TrimSpace(r.URL.Query().Get("type")); typ != "" {
		page, err = h.catalog.ByType(r.Context(), typ, offset, limit)
	} else {
		page, err = h.catalog.List(r.Context(), offset, limit)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Results: catalog.Summaries(page.Results), Total: page.Total})
}

// HandleSearch handles GET /pokemon/search?ability=|type=. Results carry
// types, abilities and artwork fetched per Pokémon.
func (h *PokemonHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := window(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	ability := strings.TrimSpace(q.Get("ability"))
	typ := strings.TrimSpace(q.Get("type"))

	var (
		page *catalog.Page
		err  error
	)
	switch {
	case ability != "":
		page, err = h.catalog.ByAbility(r.Context(), ability, offset, limit)
	case typ != "":
		page, err = h.catalog.ByType(r.Context(), typ, offset, limit)
	default:
		writeError(w, http.StatusBadRequest, "ability or type is required")
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	results, err := h.catalog.Hydrate(r.Context(), page.Results)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Results: results, Total: page.Total})
}

type pokemonDetails struct {
	model.Favorite
	Stats map[string]int `json:"stats"`
}

// HandleGet handles GET /pokemon/{id}.
func (h *PokemonHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Pokemon(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pokemonDetails{
		Favorite: p.Favorite(),
		Stats:    p.Combatant().Stats,
	})
}
