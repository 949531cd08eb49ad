// Package middleware provides HTTP middleware for the app shell.
package middleware

import (
	"net/http"

	"github.com/R3E-Network/renkonet/internal/errors"
	internalhttputil "github.com/R3E-Network/renkonet/internal/httputil"
	"github.com/R3E-Network/renkonet/internal/logging"
)

// Route targets used by the gate.
const (
	AuthPath = "/auth"
	HomePath = "/"
)

// SessionState is the part of the session manager the gate reads.
// *session.Manager satisfies it.
type SessionState interface {
	IsLoading() bool
	IsAuthenticated() bool
	IsAdmin() bool
	CurrentUserID() string
}

// Gate guards routes on the current session.
type Gate struct {
	session SessionState
	logger  *logging.Logger
}

func NewGate(session SessionState, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &Gate{session: session, logger: logger}
}

// RequireSession lets authenticated requests through with the user id and
// role on the context. Anonymous requests are redirected to AuthPath and
// requests made while the session is still restoring get 503.
func (g *Gate) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.session.IsLoading() {
			internalhttputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
			return
		}
		if !g.session.IsAuthenticated() {
			http.Redirect(w, r, AuthPath, http.StatusFound)
			return
		}

		ctx := logging.WithUserID(r.Context(), g.session.CurrentUserID())
		if g.session.IsAdmin() {
			ctx = logging.WithRole(ctx, "admin")
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PublicOnly redirects signed-in users away from the sign-in route.
func (g *Gate) PublicOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.session.IsLoading() && g.session.IsAuthenticated() {
			http.Redirect(w, r, HomePath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin must run inside RequireSession.
func (g *Gate) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.session.IsAdmin() {
			g.logger.LogSecurityEvent(r.Context(), "admin_access_denied", map[string]interface{}{
				"path":   r.URL.Path,
				"method": r.Method,
			})
			internalhttputil.WriteServiceError(w, r, errors.Forbidden("access denied: admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID extracts the user id placed by RequireSession.
func GetUserID(r *http.Request) string {
	return logging.GetUserID(r.Context())
}
