package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/R3E-Network/renkonet/internal/app"
	"github.com/R3E-Network/renkonet/internal/config"
	"github.com/R3E-Network/renkonet/internal/database"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/internal/session"
	"github.com/R3E-Network/renkonet/supabase/client"
)

type fakeAuth struct {
	mu    sync.Mutex
	users map[string]*client.User
	seq   int
}

func (f *fakeAuth) session(u *client.User) *client.Session {
	f.seq++
	return &client.Session{
		AccessToken:  "token-" + u.ID,
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User:         u,
	}
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*client.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &client.User{ID: "uid-" + email, Email: email, UserMetadata: metadata}
	f.users[email] = u
	return f.session(u), nil
}

func (f *fakeAuth) SignInWithPassword(ctx context.Context, email, password string) (*client.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok || password != "secret" {
		return nil, &client.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid login credentials"}
	}
	return f.session(u), nil
}

func (f *fakeAuth) RefreshToken(ctx context.Context, refreshToken string) (*client.Session, error) {
	return nil, &client.APIError{StatusCode: http.StatusBadRequest, Message: "refresh not supported"}
}

func (f *fakeAuth) GetUser(ctx context.Context, accessToken string) (*client.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if "token-"+u.ID == accessToken {
			return u, nil
		}
	}
	return nil, &client.APIError{StatusCode: http.StatusUnauthorized, Message: "invalid token"}
}

func (f *fakeAuth) SignOut(ctx context.Context, accessToken string) error { return nil }

type memBucket struct{}

func (memBucket) Upload(ctx context.Context, path string, data []byte, contentType string) (*client.Response, error) {
	return &client.Response{StatusCode: http.StatusOK}, nil
}

func (memBucket) GetPublicURL(path string) string { return "https://cdn.example/" + path }

type harness struct {
	t      *testing.T
	app    *app.Application
	repo   *database.MockRepository
	server *Server
}

func newHarness(t *testing.T, start bool) *harness {
	t.Helper()
	repo := database.NewMockRepository()
	auth := &fakeAuth{users: map[string]*client.User{
		"alice@example.com": {ID: "alice", Email: "alice@example.com"},
		"root@example.com":  {ID: "root", Email: "root@example.com"},
	}}
	repo.SeedProfile(database.Profile{ID: "alice", Username: "alice", Role: database.RoleNormal})
	repo.SeedProfile(database.Profile{ID: "root", Username: "root", Role: database.RoleAdmin})
	repo.SeedProfile(database.Profile{ID: "bob", Username: "bob", Role: database.RoleNormal})
	repo.SeedPost(database.Post{ID: "p1", UserID: "bob", Content: "hello", LikesCount: 3})

	cfg := &config.Config{
		SupabaseURL:     "http://supabase.test",
		SupabaseAnonKey: "anon",
		AllowedOrigins:  []string{"http://localhost:5173"},
		RateLimitRPS:    1000,
		RateLimitBurst:  1000,
		RefreshSchedule: "@every 1h",
		RefreshLeeway:   time.Minute,
		SearchDebounce:  10 * time.Millisecond,
	}
	a, err := app.New(cfg, app.Deps{
		Repository:   repo,
		Auth:         auth,
		SessionStore: session.NewMemoryStore(),
		PostImages:   memBucket{},
		StoryMedia:   memBucket{},
	}, logging.NewDiscard())
	require.NoError(t, err)

	if start {
		require.NoError(t, a.Start(context.Background()))
	}
	srv := NewServer(a, "test")
	t.Cleanup(func() {
		_ = srv.Close()
		_ = a.Stop(context.Background())
	})
	return &harness{t: t, app: a, repo: repo, server: srv}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func (h *harness) signIn(email string) {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/auth/signin", credentials{Email: email, Password: "secret"})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestLoadingSessionAnswers503(t *testing.T) {
	h := newHarness(t, false)
	rec := h.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "loading", decode[map[string]string](t, rec)["status"])
}

func TestAnonymousRouting(t *testing.T) {
	h := newHarness(t, true)

	for _, path := range []string{"/", "/messages", "/admin", "/profile/bob"} {
		rec := h.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusFound, rec.Code, path)
		assert.Equal(t, "/auth", rec.Header().Get("Location"), path)
	}

	rec := h.do(http.MethodGet, "/auth", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[sessionView](t, rec).Authenticated)

	rec = h.do(http.MethodGet, "/no/such/page", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestSignInThenPublicOnlyRedirects(t *testing.T) {
	h := newHarness(t, true)
	h.signIn("alice@example.com")

	rec := h.do(http.MethodGet, "/auth", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = h.do(http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sv := decode[sessionView](t, rec)
	assert.Equal(t, "alice", sv.UserID)
	assert.False(t, sv.IsAdmin)
}

func TestBadCredentials(t *testing.T) {
	h := newHarness(t, true)
	rec := h.do(http.MethodPost, "/api/auth/signin", credentials{Email: "alice@example.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignUpCreatesProfile(t *testing.T) {
	h := newHarness(t, true)
	rec := h.do(http.MethodPost, "/api/auth/signup", credentials{Email: "carol@example.com", Password: "secret", FullName: "Carol"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	p, ok := h.repo.Profile("uid-carol@example.com")
	require.True(t, ok)
	assert.Equal(t, "carol", p.Username)
	assert.Equal(t, database.RoleNormal, p.Role)
	assert.False(t, p.IsVerified)
}

func TestNonAdminCannotOpenAdmin(t *testing.T) {
	h := newHarness(t, true)
	h.signIn("alice@example.com")

	rec := h.do(http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "access denied")
	assert.NotContains(t, rec.Body.String(), "users")
	assert.Equal(t, 0, h.repo.Calls("ListProfiles"))

	rec = h.do(http.MethodDelete, "/api/admin/posts/p1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	_, ok := h.repo.Post("p1")
	assert.True(t, ok)
}

func TestAdminPanelAndAudit(t *testing.T) {
	h := newHarness(t, true)
	h.signIn("root@example.com")

	rec := h.do(http.MethodGet, "/admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st struct {
		Users []database.Profile `json:"users"`
		Stats struct {
			TotalUsers int `json:"total_users"`
			TotalPosts int `json:"total_posts"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Stats.TotalUsers)
	assert.Equal(t, 1, st.Stats.TotalPosts)

	rec = h.do(http.MethodPut, "/api/admin/users/bob/role", map[string]string{"role": database.RoleVerified})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bob, _ := h.repo.Profile("bob")
	assert.Equal(t, database.RoleVerified, bob.Role)

	rec = h.do(http.MethodGet, "/api/admin/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]auditEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "root", entries[0].User)
	assert.Equal(t, http.MethodPut, entries[0].Method)
}

func TestFeedAndLikeRoundTrip(t *testing.T) {
	h := newHarness(t, true)
	h.signIn("alice@example.com")

	rec := h.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	home := decode[homeState](t, rec)
	require.Len(t, home.Posts, 1)
	assert.Equal(t, 3, home.Posts[0].LikesCount)

	rec = h.do(http.MethodPost, "/api/posts/p1/like", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	liked := decode[map[string]any](t, rec)
	assert.Equal(t, "applied", liked["outcome"])
	assert.Equal(t, float64(4), liked["likes_count"])

	rec = h.do(http.MethodPost, "/api/posts/p1/like", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decode[map[string]any](t, rec)["likes_count"])
	assert.False(t, h.repo.HasLike("alice", "p1"))
}

func TestCreatePostValidation(t *testing.T) {
	h := newHarness(t, true)
	h.signIn("alice@example.com")

	rec := h.do(http.MethodPost, "/api/posts", newPostRequest{Content: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, h.repo.Calls("CreatePost"))

	rec = h.do(http.MethodPost, "/api/posts", newPostRequest{Content: "first post"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestMessagesAndSync(t *testing.T) {
	h := newHarness(t, true)
	h.signIn("alice@example.com")

	rec := h.do(http.MethodPost, "/api/messages", sendMessageRequest{ReceiverID: "bob", Content: "hi bob"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/messages?with=bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox struct {
		Conversations []struct {
			CounterpartID string `json:"counterpart_id"`
		} `json:"conversations"`
		Thread []database.Message `json:"thread"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inbox))
	require.Len(t, inbox.Conversations, 1)
	assert.Equal(t, "bob", inbox.Conversations[0].CounterpartID)
	assert.Len(t, inbox.Thread, 1)

	rec = h.do(http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, syncResult{Posts: 1, Conversations: 1}, decode[syncResult](t, rec))
}

func TestTopicsJoinLeave(t *testing.T) {
	h := newHarness(t, true)
	h.repo.SeedTopic(database.Topic{ID: "t1", Name: "golang", CreatorID: "bob", MembersCount: 1})
	h.repo.SeedMember("t1", "bob")
	h.signIn("alice@example.com")

	rec := h.do(http.MethodPost, "/api/topics/t1/members", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.True(t, h.app.Topics.IsMember("t1"))

	rec = h.do(http.MethodDelete, "/api/topics/t1/members", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.False(t, h.app.Topics.IsMember("t1"))

	rec = h.do(http.MethodGet, "/topics?q=GO", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[topicsState](t, rec)
	require.Len(t, st.Matches, 1)
	assert.False(t, st.Member["t1"])
}

func TestVerificationBlankProfessionRejected(t *testing.T) {
	h := newHarness(t, true)
	h.signIn("alice@example.com")

	rec := h.do(http.MethodPost, "/api/verification", map[string]string{
		"plan": "monthly", "profession": "  ", "reason": "journalist",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, h.repo.Calls("CreateVerificationRequest"))
}

func TestExploreEmptySearchClears(t *testing.T) {
	h := newHarness(t, true)
	h.signIn("alice@example.com")

	rec := h.do(http.MethodPost, "/api/explore/search", searchRequest{Query: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	var st struct {
		Results *struct {
			Posts []database.Post `json:"posts"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.NotNil(t, st.Results)
	assert.Len(t, st.Results.Posts, 1)

	before := h.repo.Calls("SearchPosts")
	rec = h.do(http.MethodPost, "/api/explore/search", searchRequest{Query: "   "})
	require.Equal(t, http.StatusOK, rec.Code)
	st.Results = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Nil(t, st.Results)
	assert.Equal(t, before, h.repo.Calls("SearchPosts"))
}

func TestSignOutResetsViews(t *testing.T) {
	h := newHarness(t, true)
	h.signIn("alice@example.com")
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/", nil).Code)
	require.NotEmpty(t, h.app.Feed.Cards())

	rec := h.do(http.MethodPost, "/api/auth/signout", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.app.Feed.Cards())

	rec = h.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth", rec.Header().Get("Location"))
}

func TestHealthAndStatus(t *testing.T) {
	h := newHarness(t, true)
	rec := h.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])

	h.signIn("alice@example.com")
	rec = h.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"feed"`)
}
