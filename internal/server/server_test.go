package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pokemon-arena/internal/auth"
	"pokemon-arena/internal/battle"
	"pokemon-arena/internal/catalog"
	"pokemon-arena/internal/catalog/catalogtest"
	"pokemon-arena/internal/config"
	"pokemon-arena/internal/pkg/store"
	"pokemon-arena/internal/realtime"
	"pokemon-arena/internal/repository"
	"pokemon-arena/internal/service"
)

type testEnv struct {
	srv      *httptest.Server
	infoFile string
}

func newTestEnv(t *testing.T, health func(ctx context.Context) error) *testEnv {
	t.Helper()

	dir := t.TempDir()
	s, err := store.NewFileStore(filepath.Join(dir, "data"), store.Options{})
	require.NoError(t, err)

	api := catalogtest.New(catalogtest.Starters()...)
	t.Cleanup(api.Close)
	catCfg := api.Config()
	catCfg.MaxID = 1

	cfg := &config.Config{
		Server: config.ServerConfig{
			InfoFile:   filepath.Join(dir, "info.json"),
			CORSOrigin: "*",
		},
		Auth:    config.AuthConfig{Enforce: true, JWTSecret: "e2e-secret", TokenTTL: time.Hour},
		Arena:   config.ArenaConfig{DailyLimit: 1, WinPoints: 10, LosePoints: 3, Timezone: "UTC"},
		Catalog: catCfg,
	}

	users := repository.NewUserRepository(s)
	favorites := repository.NewFavoriteRepository(s)
	history := repository.NewHistoryRepository(s)
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hub := realtime.NewHub()
	cat := catalog.New(cfg.Catalog, nil)

	accounts := service.NewAccountService(users, repository.NewStorePresenceRepository(s), tokens, hub, bcrypt.MinCost, 0)
	arena, err := service.NewArenaService(s, users, favorites, history, cat, accounts, battle.DefaultRegistry(), cfg.Arena)
	require.NoError(t, err)

	srv, err := New(&Dependencies{
		Config:      cfg,
		Accounts:    accounts,
		Favorites:   service.NewFavoriteService(users, favorites),
		Ranking:     service.NewRankingService(users, history, repository.NewLeaderboardRepository(s)),
		Arena:       arena,
		Catalog:     cat,
		Tokens:      tokens,
		Hub:         hub,
		HealthCheck: health,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &testEnv{srv: ts, infoFile: cfg.Server.InfoFile}
}

type session struct {
	ID    string
	Token string
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeBody(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func (e *testEnv) register(t *testing.T, name string) session {
	t.Helper()
	resp, data := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": name,
		"email":    name + "@kanto.test",
		"password": "pw-" + name,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	body := decodeBody(t, data)
	user := body["user"].(map[string]any)
	assert.NotContains(t, user, "password")
	return session{ID: user["id"].(string), Token: body["token"].(string)}
}

func (e *testEnv) login(t *testing.T, name string) session {
	t.Helper()
	resp, data := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": name,
		"password": "pw-" + name,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	body := decodeBody(t, data)
	return session{ID: body["user"].(map[string]any)["id"].(string), Token: body["token"].(string)}
}

func favorite(id, name string) map[string]any {
	return map[string]any{
		"id":        id,
		"name":      name,
		"image":     "https://img.test/" + id + ".png",
		"types":     []string{"normal"},
		"abilities": []string{"run-away"},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, data := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	down := newTestEnv(t, func(context.Context) error { return errors.New("db down") })
	resp, _ = down.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	ash := env.register(t, "ash")
	resp, data := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "ash", "email": "other@kanto.test", "password": "x",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(data))

	resp, data = env.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "brock"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"All fields are required"}`, string(data))

	resp, _ = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ash@kanto.test", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, data = env.do(t, http.MethodGet, "/auth/online", "", nil)
	assert.JSONEq(t, `{"online":[]}`, string(data))

	sess := env.login(t, "ash")
	assert.Equal(t, ash.ID, sess.ID)

	_, data = env.do(t, http.MethodGet, "/auth/online", "", nil)
	online := decodeBody(t, data)["online"].([]any)
	require.Len(t, online, 1)
	assert.Equal(t, ash.ID, online[0].(map[string]any)["id"])

	resp, _ = env.do(t, http.MethodPost, "/auth/heartbeat", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/auth/heartbeat", sess.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/auth/logout", "", map[string]string{"userId": ash.ID})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, data = env.do(t, http.MethodGet, "/auth/online", "", nil)
	assert.JSONEq(t, `{"online":[]}`, string(data))
}

func TestFavoritesFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	ash := env.register(t, "ash")
	misty := env.register(t, "misty")
	path := "/users/" + ash.ID + "/favorites"

	resp, _ := env.do(t, http.MethodPost, path, "", favorite("25", "pikachu"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, path, misty.Token, favorite("25", "pikachu"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, data := env.do(t, http.MethodPost, path, ash.Token, favorite("25", "pikachu"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	resp, _ = env.do(t, http.MethodPost, path, ash.Token, favorite("25", "pikachu"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, path, ash.Token, map[string]any{"id": "1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, data = env.do(t, http.MethodGet, path, "", nil)
	favs := decodeBody(t, data)["favorites"].([]any)
	require.Len(t, favs, 1)

	resp, data = env.do(t, http.MethodGet, path+"/download", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="favorites-`+ash.ID+`.csv"`, resp.Header.Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Name,Image,Types,Abilities", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "25,pikachu,"))

	resp, _ = env.do(t, http.MethodGet, "/users/"+misty.ID+"/favorites/download", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, path+"/25", ash.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, path+"/25", ash.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistoryAndLeaderboard(t *testing.T) {
	env := newTestEnv(t, nil)
	ash := env.register(t, "ash")
	gary := env.register(t, "gary")

	resp, _ := env.do(t, http.MethodPost, "/arena/history", gary.Token, map[string]any{
		"id": ash.ID, "opponentId": gary.ID, "result": 1,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/arena/history", ash.Token, map[string]any{
		"id": ash.ID, "opponentId": gary.ID, "result": 2,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data := env.do(t, http.MethodPost, "/arena/history", ash.Token, map[string]any{
		"id": ash.ID, "opponentId": gary.ID, "result": "1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	_, data = env.do(t, http.MethodGet, "/arena/history/"+ash.ID, "", nil)
	history := decodeBody(t, data)["history"].([]any)
	require.Len(t, history, 1)
	assert.EqualValues(t, 1, history[0].(map[string]any)["result"])

	_, data = env.do(t, http.MethodGet, "/arena/history/"+gary.ID, "", nil)
	assert.JSONEq(t, `{"history":[]}`, string(data))

	resp, _ = env.do(t, http.MethodGet, "/arena/history/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, data = env.do(t, http.MethodGet, "/arena/leaderboard", "", nil)
	assert.JSONEq(t, `{"leaderboard":[]}`, string(data))

	resp, data = env.do(t, http.MethodPost, "/arena/leaderboard/record-battle", ash.Token, map[string]any{
		"winnerId": gary.ID, "loserId": ash.ID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	body := decodeBody(t, data)
	assert.EqualValues(t, 10, body["winner"].(map[string]any)["points"])
	assert.EqualValues(t, 0, body["loser"].(map[string]any)["points"])

	resp, _ = env.do(t, http.MethodPost, "/arena/leaderboard/record-battle", ash.Token, map[string]any{
		"winnerId": ash.ID, "loserId": ash.ID,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/arena/leaderboard/add", ash.Token, map[string]any{
		"userId": ash.ID, "points": 25,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/arena/leaderboard/remove", ash.Token, map[string]any{
		"userId": gary.ID, "points": 4,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, data = env.do(t, http.MethodGet, "/arena/leaderboard", "", nil)
	board := decodeBody(t, data)["leaderboard"].([]any)
	require.Len(t, board, 2)
	assert.Equal(t, ash.ID, board[0].(map[string]any)["id"])
	assert.EqualValues(t, 25, board[0].(map[string]any)["points"])
	assert.EqualValues(t, 6, board[1].(map[string]any)["points"])
}

func TestPlayerBattleQuota(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "ash")
	env.register(t, "gary")
	ash := env.login(t, "ash")
	gary := env.login(t, "gary")

	resp, _ := env.do(t, http.MethodPost, "/arena/battles/player", ash.Token, map[string]any{"opponentId": gary.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/users/"+ash.ID+"/favorites", ash.Token, favorite("4", "charmander"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/users/"+gary.ID+"/favorites", gary.Token, favorite("150", "mewtwo"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data := env.do(t, http.MethodPost, "/arena/battles/player", ash.Token, map[string]any{"opponentId": gary.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	body := decodeBody(t, data)
	assert.EqualValues(t, 0, body["quota"].(map[string]any)["remaining"])

	resp, _ = env.do(t, http.MethodPost, "/arena/battles/player", ash.Token, map[string]any{"opponentId": gary.ID})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	_, data = env.do(t, http.MethodGet, "/arena/quota/"+ash.ID, "", nil)
	assert.JSONEq(t, `{"used":1,"limit":1,"remaining":0}`, string(data))

	_, data = env.do(t, http.MethodGet, "/arena/leaderboard", "", nil)
	assert.Len(t, decodeBody(t, data)["leaderboard"].([]any), 2)

	resp, data = env.do(t, http.MethodPost, "/arena/battles/bot", ash.Token, map[string]any{"pokemonId": "4"})
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(data))
}

func TestPokemonRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodGet, "/pokemon?limit=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Len(t, decodeBody(t, data)["results"].([]any), 2)

	resp, _ = env.do(t, http.MethodGet, "/pokemon?offset=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = env.do(t, http.MethodGet, "/pokemon/search?type=fire", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	results := decodeBody(t, data)["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "charmander", results[0].(map[string]any)["name"])

	resp, _ = env.do(t, http.MethodGet, "/pokemon/search", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = env.do(t, http.MethodGet, "/pokemon/pikachu", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.EqualValues(t, 90, decodeBody(t, data)["stats"].(map[string]any)["speed"])

	resp, _ = env.do(t, http.MethodGet, "/pokemon/missingno", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInfo(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodGet, "/info", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Could not load info data"}`, string(data))

	require.NoError(t, os.WriteFile(env.infoFile, []byte(`{"name":"Pokémon Arena"}`), 0o644))
	resp, data = env.do(t, http.MethodGet, "/info", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"Pokémon Arena"}`, string(data))
}

func TestCORSAndNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodOptions, "/arena/battles/player", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, data := env.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Not found"}`, string(data))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(&Dependencies{})
	assert.Error(t, err)
}
