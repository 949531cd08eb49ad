package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/renkonet/internal/database"
	"github.com/R3E-Network/renkonet/internal/httputil"
	"github.com/R3E-Network/renkonet/internal/session"
	"github.com/R3E-Network/renkonet/services/feed"
	"github.com/R3E-Network/renkonet/services/stories"
	"github.com/R3E-Network/renkonet/services/topics"
)

type sessionView struct {
	Authenticated bool              `json:"authenticated"`
	Loading       bool              `json:"loading"`
	UserID        string            `json:"user_id,omitempty"`
	Email         string            `json:"email,omitempty"`
	Profile       *database.Profile `json:"profile,omitempty"`
	IsAdmin       bool              `json:"is_admin"`
	IsVerified    bool              `json:"is_verified"`
	Error         string            `json:"error,omitempty"`
}

func newSessionView(snap session.Snapshot) sessionView {
	v := sessionView{
		Authenticated: snap.IsAuthenticated(),
		Loading:       snap.Loading,
		UserID:        snap.UserID(),
		Profile:       snap.Profile,
		IsAdmin:       snap.IsAdmin(),
		IsVerified:    snap.IsVerified(),
	}
	if snap.User != nil {
		v.Email = snap.User.Email
	}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
	}
	return v
}

func (s *Server) authPage(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, newSessionView(s.app.Session.Snapshot()))
}

func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, newSessionView(s.app.Session.Snapshot()))
}

type homeState struct {
	Posts   []feed.CardView `json:"posts"`
	Stories []stories.Group `json:"stories"`
	Loading bool            `json:"loading"`
	Error   string          `json:"error,omitempty"`
}

// homePage loads the feed and the story strip. A failing story strip does
// not hide the feed.
func (s *Server) homePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.app.Feed.Load(ctx); err != nil {
		s.writeError(w, r, err)
		return
	}
	st := homeState{Posts: s.app.Feed.Views(), Loading: s.app.Feed.Loading()}
	if err := s.app.Stories.Load(ctx); err != nil {
		st.Error = err.Error()
	}
	st.Stories = s.app.Stories.Groups()
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (s *Server) explorePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.app.Explore.Load(ctx); err != nil {
		s.writeError(w, r, err)
		return
	}
	if q := r.URL.Query().Get("q"); q != "" {
		if err := s.app.Explore.Search(ctx, q); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, s.app.Explore.State())
}

func (s *Server) messagesPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.app.Inbox.Load(ctx); err != nil {
		s.writeError(w, r, err)
		return
	}
	if with := r.URL.Query().Get("with"); with != "" {
		if err := s.app.Inbox.Select(ctx, with); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, s.app.Inbox.State())
}

func (s *Server) profilePage(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Profile.Load(r.Context(), mux.Vars(r)["username"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.app.Profile.State())
}

type topicsState struct {
	topics.State
	Matches []database.Topic `json:"matches,omitempty"`
	Member  map[string]bool  `json:"member"`
}

func (s *Server) topicsPage(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Topics.Refresh(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	st := topicsState{State: s.app.Topics.State(), Member: make(map[string]bool)}
	for _, t := range st.Topics {
		st.Member[t.ID] = s.app.Topics.IsMember(t.ID)
	}
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		st.Matches = s.app.Topics.Search(q)
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (s *Server) verificationPage(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Verification.Load(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.app.Verification.State())
}

type syncResult struct {
	Posts         int `json:"posts"`
	Conversations int `json:"conversations"`
}

// sync is the background-sync endpoint: it reloads the feed and the
// conversation list.
func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.app.Feed.Load(ctx); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.app.Inbox.Load(ctx); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, syncResult{
		Posts:         len(s.app.Feed.Cards()),
		Conversations: len(s.app.Inbox.Conversations()),
	})
}
