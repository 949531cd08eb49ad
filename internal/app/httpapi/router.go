// Package httpapi is the app shell's local JSON API. Page routes mirror the
// UI's routes and return the state of the matching view; /api routes carry
// user actions.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	app "github.com/R3E-Network/renkonet/internal/app"
	"github.com/R3E-Network/renkonet/internal/app/metrics"
	"github.com/R3E-Network/renkonet/internal/logging"
	"github.com/R3E-Network/renkonet/internal/middleware"
	"github.com/R3E-Network/renkonet/services/common/service"
)

// Server routes requests to the application's views.
type Server struct {
	app     *app.Application
	log     *logging.Logger
	gate    *middleware.Gate
	audit   *auditLog
	router  *mux.Router
	handler http.Handler
	limiter *middleware.RateLimiter
	stop    chan struct{}
}

// NewServer builds the router and its middleware chain.
func NewServer(a *app.Application, version string) *Server {
	cfg := a.Config()
	log := a.Logger().Named("httpapi")

	sink, err := newFileAuditSink(cfg.AdminAuditFile)
	if err != nil {
		log.WithError(err).Warn("admin audit file unavailable; keeping audit in memory only")
		sink = nil
	}

	s := &Server{
		app:     a,
		log:     log,
		gate:    middleware.NewGate(a.Session, log),
		audit:   newAuditLog(200, sink),
		router:  mux.NewRouter(),
		limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log),
		stop:    make(chan struct{}),
	}
	s.routes(version)
	s.limiter.StartCleanup(time.Minute, s.stop)

	tracing := middleware.NewTracingMiddleware(log)
	cors := middleware.NewCORSMiddleware(cfg.AllowedOrigins)
	s.handler = tracing.Handler(cors.Handler(s.limiter.Handler(s.router)))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops the limiter janitor and closes the audit file.
func (s *Server) Close() error {
	close(s.stop)
	return s.audit.close()
}

func (s *Server) routes(version string) {
	r := s.router
	r.Use(middleware.Metrics())

	r.Handle("/health", service.HealthHandler("renkonet", version, func(req *http.Request) error {
		return s.app.Ping(req.Context())
	})).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	public := r.NewRoute().Subrouter()
	public.Use(s.gate.PublicOnly)
	public.HandleFunc("/auth", s.authPage).Methods(http.MethodGet)
	public.HandleFunc("/api/auth/signin", s.signIn).Methods(http.MethodPost)
	public.HandleFunc("/api/auth/signup", s.signUp).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(s.gate.RequireSession)
	protected.HandleFunc("/", s.homePage).Methods(http.MethodGet)
	protected.HandleFunc("/explore", s.explorePage).Methods(http.MethodGet)
	protected.HandleFunc("/messages", s.messagesPage).Methods(http.MethodGet)
	protected.HandleFunc("/profile", s.profilePage).Methods(http.MethodGet)
	protected.HandleFunc("/profile/{username}", s.profilePage).Methods(http.MethodGet)
	protected.HandleFunc("/topics", s.topicsPage).Methods(http.MethodGet)
	protected.HandleFunc("/verification", s.verificationPage).Methods(http.MethodGet)

	protected.HandleFunc("/api/session", s.sessionState).Methods(http.MethodGet)
	protected.HandleFunc("/api/auth/signout", s.signOut).Methods(http.MethodPost)
	protected.HandleFunc("/api/status", service.StatusHandler(s.app.Views()...)).Methods(http.MethodGet)
	protected.HandleFunc("/api/sync", s.sync).Methods(http.MethodPost)
	protected.HandleFunc("/api/posts", s.createPost).Methods(http.MethodPost)
	protected.HandleFunc("/api/posts/{id}", s.deletePost).Methods(http.MethodDelete)
	protected.HandleFunc("/api/posts/{id}/like", s.toggleLike).Methods(http.MethodPost)
	protected.HandleFunc("/api/explore/search", s.search).Methods(http.MethodPost)
	protected.HandleFunc("/api/messages", s.sendMessage).Methods(http.MethodPost)
	protected.HandleFunc("/api/profile", s.updateProfile).Methods(http.MethodPut)
	protected.HandleFunc("/api/topics", s.createTopic).Methods(http.MethodPost)
	protected.HandleFunc("/api/topics/{id}/members", s.joinTopic).Methods(http.MethodPost)
	protected.HandleFunc("/api/topics/{id}/members", s.leaveTopic).Methods(http.MethodDelete)
	protected.HandleFunc("/api/stories", s.createStory).Methods(http.MethodPost)
	protected.HandleFunc("/api/verification", s.submitVerification).Methods(http.MethodPost)

	admin := r.NewRoute().Subrouter()
	admin.Use(s.gate.RequireSession, s.gate.RequireAdmin, s.auditAdmin)
	admin.HandleFunc("/admin", s.adminPage).Methods(http.MethodGet)
	admin.HandleFunc("/api/admin/audit", s.adminAudit).Methods(http.MethodGet)
	admin.HandleFunc("/api/admin/users/{id}/role", s.adminSetRole).Methods(http.MethodPut)
	admin.HandleFunc("/api/admin/users/{id}/verification", s.adminToggleVerified).Methods(http.MethodPost)
	admin.HandleFunc("/api/admin/posts/{id}", s.adminDeletePost).Methods(http.MethodDelete)
	admin.HandleFunc("/api/admin/verifications/{id}", s.adminResolve).Methods(http.MethodPut)
	admin.HandleFunc("/api/admin/ads", s.adminCreateAd).Methods(http.MethodPost)
	admin.HandleFunc("/api/admin/ads/{id}/toggle", s.adminToggleAd).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, middleware.HomePath, http.StatusFound)
	})
}
