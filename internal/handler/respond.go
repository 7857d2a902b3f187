// Package handler provides the HTTP handlers of the arena API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"pokemon-arena/internal/auth"
	"pokemon-arena/internal/catalog"
	"pokemon-arena/internal/model"
	"pokemon-arena/internal/repository"
	"pokemon-arena/internal/service"
)

// ErrForbidden is returned when a token acts on another user's data.
var ErrForbidden = errors.New("forbidden")

type claimsKey struct{}

// WithClaims stores verified token claims on the context.
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims stored by WithClaims, or nil.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return c
}

// actor returns the id of the authenticated caller. When the request carries
// no claims (auth not enforced) fallback is trusted.
func actor(r *http.Request, fallback model.ID) model.ID {
	if c := ClaimsFrom(r.Context()); c != nil {
		return model.ID(c.UserID)
	}
	return fallback
}

// requireSelf rejects requests whose token belongs to someone other than id.
func requireSelf(r *http.Request, id model.ID) error {
	if c := ClaimsFrom(r.Context()); c != nil && model.ID(c.UserID) != id {
		return ErrForbidden
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps service and repository errors to a status and client message.
func statusFor(err error) (int, string) {
	switch {
	case service.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrInvalidResult):
		return http.StatusBadRequest, service.ErrInvalidHistory.Error()
	case errors.Is(err, repository.ErrInvalidPoints),
		errors.Is(err, repository.ErrSameCombatants):
		return http.StatusBadRequest, unwrapMessage(err)

	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "Forbidden"

	case errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, repository.ErrFavoritesNotFound):
		return http.StatusNotFound, "No favorites found for this user"
	case errors.Is(err, repository.ErrFavoriteNotFound):
		return http.StatusNotFound, "Pokémon not found in favorites"
	case errors.Is(err, service.ErrNotOnline):
		return http.StatusNotFound, "User is not online"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "Pokémon not found"

	case errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict, "User already exists"
	case errors.Is(err, repository.ErrFavoriteExists):
		return http.StatusConflict, "Pokémon already in favorites"
	case errors.Is(err, service.ErrOpponentOffline),
		errors.Is(err, service.ErrBattleInProgress),
		errors.Is(err, service.ErrNoFavorites):
		return http.StatusConflict, unwrapMessage(err)

	case errors.Is(err, service.ErrDailyLimitReached):
		return http.StatusTooManyRequests, "Daily battle limit reached"

	case errors.Is(err, service.ErrBotUnavailable),
		errors.Is(err, catalog.ErrRandomExhausted),
		errors.Is(err, catalog.ErrUnavailable):
		return http.StatusBadGateway, "Pokémon service unavailable"
	}
	return http.StatusInternalServerError, "Server error"
}

// unwrapMessage returns the message of the sentinel at the bottom of err.
func unwrapMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	writeError(w, status, msg)
}
