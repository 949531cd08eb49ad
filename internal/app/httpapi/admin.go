package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/renkonet/internal/httputil"
	"github.com/R3E-Network/renkonet/services/admin"
)

func (s *Server) adminPage(w http.ResponseWriter, r *http.Request) {
	panel := s.app.Admin
	if err := panel.Load(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := panel.State()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (s *Server) adminAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	httputil.WriteJSON(w, http.StatusOK, s.audit.listLimit(limit))
}

// adminDone answers an admin action with the refreshed stats.
func (s *Server) adminDone(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.app.Admin.Stats())
}

func (s *Server) adminSetRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.adminDone(w, r, s.app.Admin.UpdateUserRole(r.Context(), mux.Vars(r)["id"], req.Role))
}

func (s *Server) adminToggleVerified(w http.ResponseWriter, r *http.Request) {
	s.adminDone(w, r, s.app.Admin.ToggleUserVerification(r.Context(), mux.Vars(r)["id"]))
}

func (s *Server) adminDeletePost(w http.ResponseWriter, r *http.Request) {
	s.adminDone(w, r, s.app.Admin.DeletePost(r.Context(), mux.Vars(r)["id"]))
}

func (s *Server) adminResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.adminDone(w, r, s.app.Admin.ResolveVerification(r.Context(), mux.Vars(r)["id"], req.Status))
}

func (s *Server) adminCreateAd(w http.ResponseWriter, r *http.Request) {
	var form admin.AdForm
	if err := httputil.DecodeJSON(w, r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}
	ad, err := s.app.Admin.CreateAd(r.Context(), form)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ad)
}

func (s *Server) adminToggleAd(w http.ResponseWriter, r *http.Request) {
	s.adminDone(w, r, s.app.Admin.ToggleAd(r.Context(), mux.Vars(r)["id"]))
}
