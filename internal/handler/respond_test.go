package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"pokemon-arena/internal/auth"
	"pokemon-arena/internal/catalog"
	"pokemon-arena/internal/model"
	"pokemon-arena/internal/repository"
	"pokemon-arena/internal/service"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", service.ErrMissingFields, http.StatusBadRequest, "All fields are required"},
		{"invalid result", model.ErrInvalidResult, http.StatusBadRequest, service.ErrInvalidHistory.Error()},
		{"wrapped points", fmt.Errorf("failed to add points: %w", repository.ErrInvalidPoints), http.StatusBadRequest, repository.ErrInvalidPoints.Error()},
		{"credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "Forbidden"},
		{"user", repository.ErrUserNotFound, http.StatusNotFound, "User not found"},
		{"favorites", repository.ErrFavoritesNotFound, http.StatusNotFound, "No favorites found for this user"},
		{"catalog miss", fmt.Errorf("pokemon 0: %w", catalog.ErrNotFound), http.StatusNotFound, "Pokémon not found"},
		{"exists", repository.ErrUserExists, http.StatusConflict, "User already exists"},
		{"busy", service.ErrBattleInProgress, http.StatusConflict, service.ErrBattleInProgress.Error()},
		{"quota", service.ErrDailyLimitReached, http.StatusTooManyRequests, "Daily battle limit reached"},
		{"upstream", catalog.ErrUnavailable, http.StatusBadGateway, "Pokémon service unavailable"},
		{"unknown", fmt.Errorf("disk full"), http.StatusInternalServerError, "Server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestRequireSelf(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.NoError(t, requireSelf(r, "anyone"))
	assert.Equal(t, model.ID("body-id"), actor(r, "body-id"))

	r = r.WithContext(WithClaims(r.Context(), &auth.Claims{UserID: "ash"}))
	assert.NoError(t, requireSelf(r, "ash"))
	assert.ErrorIs(t, requireSelf(r, "gary"), ErrForbidden)
	assert.Equal(t, model.ID("ash"), actor(r, "body-id"))
}

func TestWindow(t *testing.T) {
	rec := httptest.NewRecorder()
	offset, limit, ok := window(rec, httptest.NewRequest(http.MethodGet, "/pokemon?offset=12&limit=6", nil))
	assert.True(t, ok)
	assert.Equal(t, 12, offset)
	assert.Equal(t, 6, limit)

	for _, q := range []string{"offset=-1", "limit=abc"} {
		rec = httptest.NewRecorder()
		_, _, ok = window(rec, httptest.NewRequest(http.MethodGet, "/pokemon?"+q, nil))
		assert.False(t, ok, q)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}
