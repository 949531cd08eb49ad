package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	svcerrors "github.com/R3E-Network/renkonet/internal/errors"
	"github.com/R3E-Network/renkonet/internal/httputil"
	"github.com/R3E-Network/renkonet/services/feed"
	"github.com/R3E-Network/renkonet/services/profile"
	"github.com/R3E-Network/renkonet/services/stories"
	"github.com/R3E-Network/renkonet/services/verification"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.app.Session.SignIn(r.Context(), req.Email, req.Password); err != nil {
		s.writeError(w, r, svcerrors.Wrap(err, svcerrors.CodeUnauthorized, "sign in failed", http.StatusUnauthorized))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newSessionView(s.app.Session.Snapshot()))
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var meta map[string]any
	if req.FullName != "" {
		meta = map[string]any{"full_name": req.FullName}
	}
	signedIn, err := s.app.Session.SignUp(r.Context(), req.Email, req.Password, meta)
	if err != nil {
		s.writeError(w, r, svcerrors.Wrap(err, svcerrors.CodeInvalidInput, "sign up failed", http.StatusBadRequest))
		return
	}
	status := http.StatusCreated
	if !signedIn {
		// Email confirmation pending.
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, newSessionView(s.app.Session.Snapshot()))
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Session.SignOut(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type newPostRequest struct {
	Content string  `json:"content"`
	Image   *upload `json:"image,omitempty"`
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req newPostRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var img *feed.Image
	if req.Image != nil {
		img = &feed.Image{Name: req.Image.Name, ContentType: req.Image.ContentType, Data: req.Image.Data}
	}
	post, err := s.app.Feed.CreatePost(r.Context(), req.Content, img)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, post)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Feed.DeletePost(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// toggleLike answers 200 with the outcome even when the write was reverted;
// the body says what the card shows now.
func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Feed.ToggleLike(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := struct {
		feed.Result
		Error string `json:"error,omitempty"`
	}{Result: res}
	if res.Err != nil {
		body.Error = res.Err.Error()
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

type searchRequest struct {
	Query string `json:"query"`
	// Debounce queues the query behind the search debouncer instead of
	// running it now.
	Debounce bool `json:"debounce,omitempty"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Debounce {
		// The request context ends with this response.
		s.app.Explore.QueueSearch(context.WithoutCancel(r.Context()), req.Query)
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := s.app.Explore.Search(r.Context(), req.Query); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.app.Explore.State())
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	inbox := s.app.Inbox
	if req.ReceiverID != "" && inbox.Selected() != req.ReceiverID {
		if err := inbox.Select(ctx, req.ReceiverID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	inbox.SetDraft(req.Content)
	msg, err := inbox.Send(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, msg)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var form profile.Form
	if err := httputil.DecodeJSON(w, r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.app.Profile.Update(r.Context(), form)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

type newTopicRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) createTopic(w http.ResponseWriter, r *http.Request) {
	var req newTopicRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.app.Topics.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (s *Server) joinTopic(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Topics.Join(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) leaveTopic(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Topics.Leave(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type newStoryRequest struct {
	Media upload `json:"media"`
	// TTL is a Go duration string; empty means the default lifetime.
	TTL string `json:"ttl,omitempty"`
}

func (s *Server) createStory(w http.ResponseWriter, r *http.Request) {
	var req newStoryRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ttl := stories.DefaultTTL
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			s.writeError(w, r, svcerrors.Validation("ttl", "ttl must be a positive duration"))
			return
		}
		ttl = d
	}
	story, err := s.app.Stories.Create(r.Context(), stories.Media{
		Name:        req.Media.Name,
		ContentType: req.Media.ContentType,
		Data:        req.Media.Data,
	}, ttl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, story)
}

func (s *Server) submitVerification(w http.ResponseWriter, r *http.Request) {
	var form verification.Form
	if err := httputil.DecodeJSON(w, r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.app.Verification.Submit(r.Context(), form)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, req)
}
