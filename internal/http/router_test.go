// README: End-to-end tests of the trip API routes over an in-memory session store.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "wayfarer/internal/http"
	"wayfarer/internal/infra"
	"wayfarer/internal/metrics"
	"wayfarer/internal/modules/session"
	"wayfarer/internal/service"
)

type tokenVerifier map[string]string

func (v tokenVerifier) Verify(_ context.Context, token string) (*infra.Identity, error) {
	uid, ok := v[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &infra.Identity{UID: uid}, nil
}

func newTestRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	mgr := session.NewManager(session.NewMemoryStore(100, time.Hour, 0, log), session.NewKeyedMutex(), log)
	parser := service.NewHybridParser(nil, nil, nil, service.DefaultParserOptions(), log)
	conv := service.NewConversation(parser, nil, mgr, log)
	return httptransport.NewRouter(httptransport.RouterDeps{Conversation: conv, Verifier: verifier, Logger: log})
}

func call(t *testing.T, r *gin.Engine, method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "text/plain; charset=utf-8" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestTripFlow(t *testing.T) {
	r := newTestRouter(nil)

	w, body := call(t, r, http.MethodPost, "/api/trips/parse", map[string]any{"text": "5 days in London", "session_id": "trip-1"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "trip-1", body["session_id"])
	assert.Nil(t, body["error"])

	w, body = call(t, r, http.MethodPost, "/api/trips/parse", map[string]any{"text": "from NYC", "session_id": "trip-1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	plan := body["plan"].(map[string]any)
	assert.Equal(t, "NYC", plan["origin"])
	assert.EqualValues(t, 5, plan["total_days"])

	w, body = call(t, r, http.MethodPost, "/api/trips/modify", map[string]any{"text": "add Paris for 3 days", "session_id": "trip-1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 8, body["plan"].(map[string]any)["total_days"])
	assert.NotNil(t, body["diff"])

	w, body = call(t, r, http.MethodPost, "/api/trips/modify", map[string]any{"text": "remove Tokyo", "session_id": "trip-1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "Tokyo")
	assert.Nil(t, body["plan"])

	w, body = call(t, r, http.MethodPost, "/api/sessions/trip-1/undo", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, body["current_plan"].(map[string]any)["total_days"])

	w, body = call(t, r, http.MethodGet, "/api/sessions/trip-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["history"], 6)

	w, _ = call(t, r, http.MethodDelete, "/api/sessions/trip-1", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = call(t, r, http.MethodGet, "/api/sessions/trip-1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestParseFailureIsNotAnHTTPError(t *testing.T) {
	r := newTestRouter(nil)
	w, body := call(t, r, http.MethodPost, "/api/trips/parse", map[string]any{"text": "Europe"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, service.ErrAllFailed, body["error"])
	assert.NotEmpty(t, body["reply"])
	assert.NotEmpty(t, body["session_id"])
	assert.Equal(t, "ambiguous", body["classification"].(map[string]any)["type"])
}

func TestBadRequests(t *testing.T) {
	r := newTestRouter(nil)
	cases := []struct {
		name, method, path string
		body               any
	}{
		{"missing text", http.MethodPost, "/api/trips/parse", map[string]any{"text": "  "}},
		{"bad session id", http.MethodPost, "/api/trips/parse", map[string]any{"text": "5 days in Rome", "session_id": "../etc"}},
		{"modify without session", http.MethodPost, "/api/trips/modify", map[string]any{"text": "remove Rome"}},
		{"bad json", http.MethodPost, "/api/trips/parse", "not an object"},
		{"bad path id", http.MethodGet, "/api/sessions/a.b", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, _ := call(t, r, tc.method, tc.path, tc.body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w, _ := call(t, r, http.MethodPost, "/api/sessions/nope/undo", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionsAreScopedToCaller(t *testing.T) {
	r := newTestRouter(tokenVerifier{"tok-a": "alice", "tok-b": "bob"})

	w, _ := call(t, r, http.MethodPost, "/api/trips/parse", map[string]any{"text": "5 days in London", "session_id": "s1"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = call(t, r, http.MethodPost, "/api/trips/parse", map[string]any{"text": "5 days in London", "session_id": "s1"}, "tok-a")
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = call(t, r, http.MethodGet, "/api/sessions/s1", nil, "tok-b")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = call(t, r, http.MethodPost, "/api/trips/parse", map[string]any{"text": "from NYC", "session_id": "s1"}, "tok-b")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := call(t, r, http.MethodGet, "/api/sessions/s1", nil, "tok-a")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", body["user_id"])
}

func TestHealthAndMetrics(t *testing.T) {
	metrics.RegisterDefault()
	r := newTestRouter(nil)

	w, _ := call(t, r, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	_, _ = call(t, r, http.MethodPost, "/api/trips/parse", map[string]any{"text": "5 days in London"}, "")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wayfarer_classifications_total")
	assert.Contains(t, rec.Body.String(), "wayfarer_http_requests_total")
}
