package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/renkonet/internal/logging"
)

type fakeSession struct {
	loading bool
	userID  string
	admin   bool
}

func (f fakeSession) IsLoading() bool       { return f.loading }
func (f fakeSession) IsAuthenticated() bool { return f.userID != "" }
func (f fakeSession) IsAdmin() bool         { return f.admin }
func (f fakeSession) CurrentUserID() string { return f.userID }

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-User", GetUserID(r))
	w.WriteHeader(http.StatusOK)
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRequireSession(t *testing.T) {
	t.Run("anonymous redirects to auth", func(t *testing.T) {
		g := NewGate(fakeSession{}, nil)
		rec := serve(g.RequireSession(http.HandlerFunc(okHandler)), http.MethodGet, "/messages")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, AuthPath, rec.Header().Get("Location"))
	})

	t.Run("loading returns 503", func(t *testing.T) {
		g := NewGate(fakeSession{loading: true}, nil)
		rec := serve(g.RequireSession(http.HandlerFunc(okHandler)), http.MethodGet, "/")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "loading", body["status"])
	})

	t.Run("signed in passes with user id", func(t *testing.T) {
		g := NewGate(fakeSession{userID: "u1"}, nil)
		rec := serve(g.RequireSession(http.HandlerFunc(okHandler)), http.MethodGet, "/")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", rec.Header().Get("X-User"))
	})
}

func TestPublicOnly(t *testing.T) {
	rec := serve(NewGate(fakeSession{userID: "u1"}, nil).PublicOnly(http.HandlerFunc(okHandler)), http.MethodGet, "/auth")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, HomePath, rec.Header().Get("Location"))

	rec = serve(NewGate(fakeSession{}, nil).PublicOnly(http.HandlerFunc(okHandler)), http.MethodGet, "/auth")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })

	rec := serve(NewGate(fakeSession{userID: "u1"}, nil).RequireAdmin(next), http.MethodGet, "/admin")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "access denied")
	assert.False(t, reached)

	rec = serve(NewGate(fakeSession{userID: "root", admin: true}, nil).RequireAdmin(next), http.MethodGet, "/admin")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}

func TestCORS(t *testing.T) {
	h := NewCORSMiddleware([]string{"http://localhost:5173"}).Handler(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodOptions, "/api/posts", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	h := rl.Handler(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(h, http.MethodGet, "/").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(5, 5, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.getLimiter("10.0.0.1")

	now = now.Add(limiterIdleTTL + time.Second)
	rl.getLimiter("10.0.0.2")
	assert.Equal(t, 1, rl.Cleanup())
}

func TestTracingPropagatesHeader(t *testing.T) {
	var seen string
	h := NewTracingMiddleware(logging.NewDiscard()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "trace-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "trace-1", seen)
	assert.Equal(t, "trace-1", rec.Header().Get(TraceHeader))

	rec = serve(h, http.MethodGet, "/")
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics())
	r.HandleFunc("/profile/{username}", okHandler)

	rec := serve(r, http.MethodGet, "/profile/alice")
	assert.Equal(t, http.StatusOK, rec.Code)
}
