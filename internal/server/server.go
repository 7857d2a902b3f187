// Package server wires the HTTP routes, middleware and listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"pokemon-arena/internal/auth"
	"pokemon-arena/internal/config"
	"pokemon-arena/internal/handler"
	"pokemon-arena/internal/realtime"
	"pokemon-arena/internal/service"
)

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Config    *config.Config
	Accounts  *service.AccountService
	Favorites *service.FavoriteService
	Ranking   *service.RankingService
	Arena     *service.ArenaService
	Catalog   handler.Catalog
	Tokens    *auth.TokenIssuer
	Hub       *realtime.Hub

	// HealthCheck reports backend health on /health. Optional.
	HealthCheck func(ctx context.Context) error
}

// Server is the arena HTTP server.
type Server struct {
	cfg     *config.Config
	router  *mux.Router
	http    *http.Server
	health  func(ctx context.Context) error
	handler http.Handler

	authHandler     *handler.AuthHandler
	favoriteHandler *handler.FavoriteHandler
	arenaHandler    *handler.ArenaHandler
	pokemonHandler  *handler.PokemonHandler
	infoHandler     *handler.InfoHandler
	presenceFeed    *realtime.Handler
}

// New creates a server with every route registered.
func New(deps *Dependencies) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Accounts == nil || deps.Favorites == nil || deps.Ranking == nil || deps.Arena == nil {
		return nil, errors.New("all services are required")
	}
	if deps.Tokens == nil || deps.Hub == nil || deps.Catalog == nil {
		return nil, errors.New("tokens, hub and catalog are required")
	}

	s := &Server{
		cfg:    deps.Config,
		router: mux.NewRouter(),
		health: deps.HealthCheck,
	}

	s.authHandler = handler.NewAuthHandler(deps.Accounts)
	s.favoriteHandler = handler.NewFavoriteHandler(deps.Favorites)
	s.arenaHandler = handler.NewArenaHandler(deps.Ranking, deps.Arena)
	s.pokemonHandler = handler.NewPokemonHandler(deps.Catalog)
	s.infoHandler = handler.NewInfoHandler(deps.Config.Server.InfoFile)
	s.presenceFeed = realtime.NewHandler(deps.Hub, deps.Accounts.Online)

	s.registerHandlers(AuthMiddleware(deps.Tokens, deps.Config.Auth.Enforce))
	s.handler = s.registerMiddleware(s.router)

	s.http = &http.Server{
		Addr:         deps.Config.Server.Addr(),
		Handler:      s.handler,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}
	return s, nil
}

// registerMiddleware wraps the router so that preflight and unmatched
// requests also get CORS headers and logging.
func (s *Server) registerMiddleware(next http.Handler) http.Handler {
	h := CORSMiddleware(s.cfg.Server.CORSOrigin)(next)
	h = LoggingMiddleware()(h)
	return RecoveryMiddleware()(h)
}

func (s *Server) registerHandlers(protect mux.MiddlewareFunc) {
	r := s.router
	guarded := func(fn http.HandlerFunc) http.Handler {
		return protect(fn)
	}

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/info", s.infoHandler.HandleInfo).Methods(http.MethodGet)

	// Auth
	r.HandleFunc("/auth/register", s.authHandler.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.authHandler.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", s.authHandler.HandleLogout).Methods(http.MethodPost)
	r.HandleFunc("/auth/online", s.authHandler.HandleOnline).Methods(http.MethodGet)
	r.Handle("/auth/online/ws", s.presenceFeed).Methods(http.MethodGet)
	r.Handle("/auth/heartbeat", guarded(s.authHandler.HandleHeartbeat)).Methods(http.MethodPost)

	// Favorites
	r.HandleFunc("/users/{userId}/favorites/download", s.favoriteHandler.HandleDownload).Methods(http.MethodGet)
	r.HandleFunc("/users/{userId}/favorites", s.favoriteHandler.HandleList).Methods(http.MethodGet)
	r.Handle("/users/{userId}/favorites", guarded(s.favoriteHandler.HandleAdd)).Methods(http.MethodPost)
	r.Handle("/users/{userId}/favorites/{pokemonId}", guarded(s.favoriteHandler.HandleRemove)).Methods(http.MethodDelete)

	// Arena
	r.Handle("/arena/history", guarded(s.arenaHandler.HandleAddHistory)).Methods(http.MethodPost)
	r.HandleFunc("/arena/history/{userId}", s.arenaHandler.HandleHistory).Methods(http.MethodGet)
	r.HandleFunc("/arena/leaderboard", s.arenaHandler.HandleLeaderboard).Methods(http.MethodGet)
	r.Handle("/arena/leaderboard/record-battle", guarded(s.arenaHandler.HandleRecordBattle)).Methods(http.MethodPost)
	r.Handle("/arena/leaderboard/add", guarded(s.arenaHandler.HandleAddPoints)).Methods(http.MethodPost)
	r.Handle("/arena/leaderboard/remove", guarded(s.arenaHandler.HandleRemovePoints)).Methods(http.MethodPost)
	r.HandleFunc("/arena/quota/{userId}", s.arenaHandler.HandleQuota).Methods(http.MethodGet)
	r.Handle("/arena/battles/bot", guarded(s.arenaHandler.HandleBotBattle)).Methods(http.MethodPost)
	r.Handle("/arena/battles/player", guarded(s.arenaHandler.HandlePlayerBattle)).Methods(http.MethodPost)

	// Pokémon catalog
	r.HandleFunc("/pokemon", s.pokemonHandler.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/pokemon/search", s.pokemonHandler.HandleSearch).Methods(http.MethodGet)
	r.HandleFunc("/pokemon/{id}", s.pokemonHandler.HandleGet).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not found"}`))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}
