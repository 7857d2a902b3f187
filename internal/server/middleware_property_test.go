package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"pokemon-arena/internal/auth"
	"pokemon-arena/internal/handler"
	"pokemon-arena/internal/model"
)

// TestBearerTokenProperty checks that any non-blank token survives the
// Authorization header round trip regardless of scheme casing.
func TestBearerTokenProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		token := rapid.StringMatching(`[A-Za-z0-9._-]{1,64}`).Draw(t, "token")
		scheme := rapid.SampledFrom([]string{"Bearer", "bearer", "BEARER", "BeArEr"}).Draw(t, "scheme")

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", scheme+" "+token)

		got, ok := bearerToken(r)
		if !ok || got != token {
			t.Fatalf("bearerToken(%q %q) = %q, %v", scheme, token, got, ok)
		}
	})
}

// TestBearerTokenRejectsOtherSchemesProperty checks that only the bearer
// scheme yields a token.
func TestBearerTokenRejectsOtherSchemesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		scheme := rapid.StringMatching(`[A-Za-z]{1,10}`).Filter(func(s string) bool {
			return !strings.EqualFold(s, "bearer")
		}).Draw(t, "scheme")

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", scheme+" abc")

		if _, ok := bearerToken(r); ok {
			t.Fatalf("scheme %q should be rejected", scheme)
		}
	})
}

// TestAuthMiddlewareIdentityProperty checks that the claims reaching the
// handler always belong to the user the token was issued for.
func TestAuthMiddlewareIdentityProperty(t *testing.T) {
	tokens := auth.NewTokenIssuer("property-secret", time.Hour)

	rapid.Check(t, func(t *rapid.T) {
		user := model.PublicUser{
			ID:       model.ID(rapid.StringMatching(`[a-f0-9]{8}`).Draw(t, "id")),
			Username: rapid.StringMatching(`[a-z]{3,12}`).Draw(t, "username"),
		}
		user.Email = user.Username + "@kanto.test"

		raw, err := tokens.Issue(user)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}

		var seen *auth.Claims
		h := AuthMiddleware(tokens, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = handler.ClaimsFrom(r.Context())
		}))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+raw)
		h.ServeHTTP(httptest.NewRecorder(), r)

		if seen == nil || seen.UserID != user.ID.String() || seen.Username != user.Username {
			t.Fatalf("claims mismatch for %+v: %+v", user, seen)
		}
	})
}

func TestAuthMiddlewareNotEnforced(t *testing.T) {
	called := false
	h := AuthMiddleware(auth.NewTokenIssuer("s", time.Hour), false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, handler.ClaimsFrom(r.Context()))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestAuthMiddlewareRejectsForeignToken(t *testing.T) {
	other := auth.NewTokenIssuer("other-secret", time.Hour)
	raw, err := other.Issue(model.PublicUser{ID: "1", Username: "ash"})
	require.NoError(t, err)

	h := AuthMiddleware(auth.NewTokenIssuer("s", time.Hour), true)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Server error"}`, rec.Body.String())
}

func TestLoggingMiddlewareKeepsStatus(t *testing.T) {
	h := LoggingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
