// Package catalogtest provides an in-process fake of the Pokémon API.
package catalogtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"pokemon-arena/internal/config"
)

// Mon describes a fake Pokémon. Stats are hp, attack, defense,
// special-attack, special-defense and speed.
type Mon struct {
	ID        int
	Name      string
	Types     []string
	Abilities []string
	Stats     [6]int
	NoSprites bool
}

var statNames = [6]string{"hp", "attack", "defense", "special-attack", "special-defense", "speed"}

// Server serves a fixed set of Pokémon.
type Server struct {
	*httptest.Server

	mu       sync.RWMutex
	mons     map[int]Mon
	failing  bool
	requests atomic.Int64
}

// New starts a fake API serving mons.
func New(mons ...Mon) *Server {
	s := &Server{mons: make(map[int]Mon, len(mons))}
	for _, m := range mons {
		s.mons[m.ID] = m
	}

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			s.requests.Add(1)
			s.mu.RLock()
			failing := s.failing
			s.mu.RUnlock()
			if failing {
				http.Error(w, "upstream down", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc("/pokemon", s.list).Methods(http.MethodGet)
	r.HandleFunc("/pokemon/{key}", s.pokemon).Methods(http.MethodGet)
	r.HandleFunc("/type/{name}", s.byType).Methods(http.MethodGet)
	r.HandleFunc("/ability/{name}", s.byAbility).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)
	return s
}

// Config returns a catalog config pointing at the fake.
func (s *Server) Config() config.CatalogConfig {
	maxID := 1
	s.mu.RLock()
	for id := range s.mons {
		maxID = max(maxID, id)
	}
	s.mu.RUnlock()

	return config.CatalogConfig{
		BaseURL:        s.URL,
		Timeout:        2 * time.Second,
		MaxID:          maxID,
		BotAttempts:    6,
		HydrateWorkers: 4,
		PageSize:       12,
	}
}

// SetFailing makes every request answer 503.
func (s *Server) SetFailing(failing bool) {
	s.mu.Lock()
	s.failing = failing
	s.mu.Unlock()
}

// Requests returns how many requests the fake has served.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) sorted() []Mon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Mon, 0, len(s.mons))
	for _, m := range s.mons {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) url(id int) string {
	return fmt.Sprintf("%s/pokemon/%d/", s.URL, id)
}

func (s *Server) pokemon(w http.ResponseWriter, r *http.Request) {
	key := strings.ToLower(mux.Vars(r)["key"])

	var (
		m     Mon
		found bool
	)
	if id, err := strconv.Atoi(key); err == nil {
		s.mu.RLock()
		m, found = s.mons[id]
		s.mu.RUnlock()
	} else {
		for _, c := range s.sorted() {
			if c.Name == key {
				m, found = c, true
				break
			}
		}
	}
	if !found {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	types := make([]map[string]any, 0, len(m.Types))
	for i, t := range m.Types {
		types = append(types, map[string]any{"slot": i + 1, "type": map[string]string{"name": t}})
	}
	abilities := make([]map[string]any, 0, len(m.Abilities))
	for _, a := range m.Abilities {
		abilities = append(abilities, map[string]any{"ability": map[string]string{"name": a}, "is_hidden": false})
	}
	stats := make([]map[string]any, 0, len(statNames))
	for i, name := range statNames {
		stats = append(stats, map[string]any{"base_stat": m.Stats[i], "stat": map[string]string{"name": name}})
	}

	body := map[string]any{
		"id":        m.ID,
		"name":      m.Name,
		"types":     types,
		"abilities": abilities,
		"stats":     stats,
	}
	if !m.NoSprites {
		body["sprites"] = map[string]any{
			"front_default": fmt.Sprintf("https://sprites.test/%d.png", m.ID),
			"other": map[string]any{
				"official-artwork": map[string]any{
					"front_default": fmt.Sprintf("https://artwork.test/%d.png", m.ID),
				},
			},
		}
	}
	writeJSON(w, body)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	all := s.sorted()
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	results := []map[string]string{}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		results = append(results, map[string]string{"name": all[i].Name, "url": s.url(all[i].ID)})
	}
	writeJSON(w, map[string]any{"count": len(all), "results": results})
}

func (s *Server) members(w http.ResponseWriter, match func(m Mon) bool) {
	entries := []map[string]any{}
	for _, m := range s.sorted() {
		if match(m) {
			entries = append(entries, map[string]any{
				"pokemon": map[string]string{"name": m.Name, "url": s.url(m.ID)},
			})
		}
	}
	if len(entries) == 0 {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"pokemon": entries})
}

func (s *Server) byType(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.members(w, func(m Mon) bool { return contains(m.Types, name) })
}

func (s *Server) byAbility(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.members(w, func(m Mon) bool { return contains(m.Abilities, name) })
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Starters returns a small roster used across tests.
func Starters() []Mon {
	return []Mon{
		{ID: 1, Name: "bulbasaur", Types: []string{"grass", "poison"}, Abilities: []string{"overgrow", "chlorophyll"}, Stats: [6]int{45, 49, 49, 65, 65, 45}},
		{ID: 4, Name: "charmander", Types: []string{"fire"}, Abilities: []string{"blaze", "solar-power"}, Stats: [6]int{39, 52, 43, 60, 50, 65}},
		{ID: 7, Name: "squirtle", Types: []string{"water"}, Abilities: []string{"torrent", "rain-dish"}, Stats: [6]int{44, 48, 65, 50, 64, 43}},
		{ID: 25, Name: "pikachu", Types: []string{"electric"}, Abilities: []string{"static", "lightning-rod"}, Stats: [6]int{35, 55, 40, 50, 50, 90}},
		{ID: 150, Name: "mewtwo", Types: []string{"psychic"}, Abilities: []string{"pressure", "unnerve"}, Stats: [6]int{106, 110, 90, 154, 90, 130}},
	}
}
