package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/waveroom/internal/auth"
	"github.com/sakif/waveroom/internal/handler"
	"github.com/sakif/waveroom/internal/model"
	"github.com/sakif/waveroom/internal/realtime"
	"github.com/sakif/waveroom/internal/repository/sqlite"
	"github.com/sakif/waveroom/internal/service"
)

// clipTestEnv wires a real service over an in-memory database, so these
// tests exercise the whole request path: router → middleware → handler →
// service → SQLite.
type clipTestEnv struct {
	router *chi.Mux
	tokens *auth.TokenService
	userID string
}

func newClipTestEnv(t *testing.T) *clipTestEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("clip-handler-test-secret")
	require.NoError(t, err)

	users := sqlite.NewUserRepo(db)
	clips := service.NewClipService(sqlite.NewClipRepo(db), users, realtime.NewHub(logger), logger)
	h := handler.NewClipHandler(clips, logger)

	user := &model.User{Handle: "clip_tester"}
	require.NoError(t, users.Create(context.Background(), user))

	router := chi.NewRouter()
	router.Get("/api/feed", h.HandleFeed)
	router.Get("/api/clips/{id}", h.HandleGet)
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Post("/api/clips", h.HandleCreate)
	})

	return &clipTestEnv{router: router, tokens: tokens, userID: user.ID}
}

// authedRequest builds a request carrying a valid session cookie for the
// seeded test user.
func (env *clipTestEnv) authedRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	token, err := env.tokens.Generate(env.userID)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	return req
}

func TestClipHandler_HandleCreate(t *testing.T) {
	t.Run("valid clip", func(t *testing.T) {
		env := newClipTestEnv(t)

		reqBody := `{"audioUrl":"https://cdn.example/a.ogg","mood":"calm","duration":30}`
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, env.authedRequest(t, http.MethodPost, "/api/clips", reqBody))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var clip model.Clip
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&clip))
		assert.NotEmpty(t, clip.ID)
		assert.Equal(t, model.ClipStatusLive, clip.Status)
		assert.Equal(t, "calm", clip.Mood)
	})

	t.Run("missing audio url", func(t *testing.T) {
		env := newClipTestEnv(t)

		reqBody := `{"mood":"calm","duration":30}`
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, env.authedRequest(t, http.MethodPost, "/api/clips", reqBody))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid request body", func(t *testing.T) {
		env := newClipTestEnv(t)

		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, env.authedRequest(t, http.MethodPost, "/api/clips", `{"audioUrl":`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("no session cookie", func(t *testing.T) {
		env := newClipTestEnv(t)

		reqBody := `{"audioUrl":"https://cdn.example/a.ogg","duration":30}`
		req := httptest.NewRequest(http.MethodPost, "/api/clips", bytes.NewBufferString(reqBody))
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestClipHandler_HandleFeed(t *testing.T) {
	env := newClipTestEnv(t)

	// Post a clip, then read the public feed without a session.
	reqBody := `{"audioUrl":"https://cdn.example/a.ogg","mood":"calm","duration":30}`
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, env.authedRequest(t, http.MethodPost, "/api/clips", reqBody))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/feed", nil))

	assert.Equal(t, http.StatusOK, rr.Code)

	var feed []model.Clip
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&feed))
	assert.Len(t, feed, 1)
	assert.Equal(t, "calm", feed[0].Mood)
}

func TestClipHandler_HandleGet_NotFound(t *testing.T) {
	env := newClipTestEnv(t)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/clips/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
