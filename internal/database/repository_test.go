package database

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R3E-Network/renkonet/supabase/client"
)

func newClientWithHandler(t *testing.T, handler http.Handler) *client.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := client.New(client.Config{URL: server.URL, AnonKey: "anon"})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func TestGetProfile_NotFound(t *testing.T) {
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/profiles" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("id") != "eq.u1" {
			t.Fatalf("unexpected id query: %q", r.URL.Query().Get("id"))
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	repo := NewRepository(c)

	_, err := repo.GetProfile(context.Background(), "u1")
	if !IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestGetProfile_EmptyID(t *testing.T) {
	repo := NewRepository(newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})))
	if _, err := repo.GetProfile(context.Background(), " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestListFeed_Query(t *testing.T) {
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("select") != postSelect {
			t.Fatalf("unexpected select: %q", q.Get("select"))
		}
		if q.Get("order") != "created_at.desc" || q.Get("limit") != "20" {
			t.Fatalf("unexpected order/limit: %q %q", q.Get("order"), q.Get("limit"))
		}
		_, _ = w.Write([]byte(`[{"id":"p1","user_id":"u1","content":"hi","likes_count":2,"created_at":"2024-01-01T00:00:00Z","profiles":{"username":"alice","is_verified":true}}]`))
	}))
	repo := NewRepository(c)

	posts, err := repo.ListFeed(context.Background(), 20)
	if err != nil {
		t.Fatalf("ListFeed: %v", err)
	}
	if len(posts) != 1 || posts[0].Author == nil || posts[0].Author.Username != "alice" {
		t.Fatalf("unexpected posts: %+v", posts)
	}
	if posts[0].LikesCount != 2 {
		t.Fatalf("likes_count = %d", posts[0].LikesCount)
	}
}

func TestListThread_BidirectionalFilter(t *testing.T) {
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "(and(sender_id.eq.a,receiver_id.eq.b),and(sender_id.eq.b,receiver_id.eq.a))"
		if got := r.URL.Query().Get("or"); got != want {
			t.Fatalf("or = %q, want %q", got, want)
		}
		if r.URL.Query().Get("order") != "created_at.asc" {
			t.Fatalf("unexpected order: %q", r.URL.Query().Get("order"))
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	if _, err := NewRepository(c).ListThread(context.Background(), "a", "b"); err != nil {
		t.Fatalf("ListThread: %v", err)
	}
}

func TestSearchProfiles_SanitizesPattern(t *testing.T) {
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "(username.ilike.%alice%,full_name.ilike.%alice%)"
		if got := r.URL.Query().Get("or"); got != want {
			t.Fatalf("or = %q, want %q", got, want)
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	if _, err := NewRepository(c).SearchProfiles(context.Background(), " al,(ice) ", 5); err != nil {
		t.Fatalf("SearchProfiles: %v", err)
	}
}

func TestCreateLike_Conflict(t *testing.T) {
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
	}))
	err := NewRepository(c).CreateLike(context.Background(), "u1", "p1")
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAdjustPostLikes_RPC(t *testing.T) {
	var fn string
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fn = r.URL.Path
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["post_id"] != "p1" {
			t.Fatalf("unexpected body: %v", body)
		}
		_, _ = w.Write([]byte(`0`))
	}))
	repo := NewRepository(c)

	n, err := repo.AdjustPostLikes(context.Background(), "p1", -1)
	if err != nil {
		t.Fatalf("AdjustPostLikes: %v", err)
	}
	if fn != "/rest/v1/rpc/decrement_post_likes" || n != 0 {
		t.Fatalf("fn = %s, n = %d", fn, n)
	}
	if _, err := repo.AdjustPostLikes(context.Background(), "p1", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero delta should be invalid, got %v", err)
	}
}

func TestCountTopicMembers(t *testing.T) {
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Fatalf("method = %s", r.Method)
		}
		w.Header().Set("Content-Range", "0-2/3")
	}))
	n, err := NewRepository(c).CountTopicMembers(context.Background(), "t1")
	if err != nil || n != 3 {
		t.Fatalf("CountTopicMembers = %d, %v", n, err)
	}
}

func TestCountPosts(t *testing.T) {
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/posts" || r.Method != http.MethodHead {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Range", "*/42")
	}))
	n, err := NewRepository(c).CountPosts(context.Background())
	if err != nil || n != 42 {
		t.Fatalf("CountPosts = %d, %v", n, err)
	}

	missing := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	if _, err := NewRepository(missing).CountPosts(context.Background()); !errors.Is(err, ErrDatabaseError) {
		t.Fatalf("expected ErrDatabaseError without Content-Range, got %v", err)
	}
}

func TestListMemberTopics_Unwraps(t *testing.T) {
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/topic_members" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"topic_id":"t1","topics":{"id":"t1","name":"Go"}},{"topic_id":"t2","topics":null}]`))
	}))
	topics, err := NewRepository(c).ListMemberTopics(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListMemberTopics: %v", err)
	}
	if len(topics) != 1 || topics[0].Name != "Go" {
		t.Fatalf("unexpected topics: %+v", topics)
	}
}

func TestUpdateVerificationStatus(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Query().Get("id") != "eq.v1" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.RawQuery)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["status"] != VerificationApproved || body["updated_at"] != "2024-05-01T10:00:00Z" {
			t.Fatalf("unexpected body: %v", body)
		}
		_, _ = w.Write([]byte(`[{"id":"v1","status":"approved"}]`))
	}))
	repo := NewRepository(c)

	v, err := repo.UpdateVerificationStatus(context.Background(), "v1", VerificationApproved, at)
	if err != nil || v.Status != VerificationApproved {
		t.Fatalf("UpdateVerificationStatus = %+v, %v", v, err)
	}
	if _, err := repo.UpdateVerificationStatus(context.Background(), "v1", "maybe", at); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown status should be invalid, got %v", err)
	}
}

func TestDeletePost_NotFound(t *testing.T) {
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	if err := NewRepository(c).DeletePost(context.Background(), "p404"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClassify_ServerError(t *testing.T) {
	c := newClientWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	_, err := NewRepository(c).ListAds(context.Background())
	if !errors.Is(err, ErrDatabaseError) {
		t.Fatalf("expected database error, got %v", err)
	}
}
