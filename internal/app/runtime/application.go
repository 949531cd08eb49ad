// Package runtime runs the application behind its HTTP server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	app "github.com/R3E-Network/renkonet/internal/app"
	"github.com/R3E-Network/renkonet/internal/app/httpapi"
	"github.com/R3E-Network/renkonet/internal/config"
	"github.com/R3E-Network/renkonet/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Application wires the app shell and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logging.Logger
	app        *app.Application
	api        *httpapi.Server
	httpServer *http.Server

	mu   sync.Mutex
	addr net.Addr
}

// NewApplication builds the application from cfg. deps may override any
// backend; the zero value talks to Supabase.
func NewApplication(cfg *config.Config, deps app.Deps, version string, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.New("renkonet", cfg.LogLevel, cfg.LogFormat)
	}
	a, err := app.New(cfg, deps, log)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}
	api := httpapi.NewServer(a, version)
	return &Application{
		cfg: cfg,
		log: log,
		app: a,
		api: api,
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           api,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// App exposes the composed application.
func (a *Application) App() *app.Application { return a.app }

// Addr is the bound listen address once Run has started listening.
func (a *Application) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run starts the application and serves HTTP until ctx is cancelled or the
// server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.httpServer.Addr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		a.log.WithFields(map[string]interface{}{"addr": ln.Addr().String()}).Info("HTTP server listening")
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server and the application.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if cerr := a.api.Close(); cerr != nil {
		a.log.WithError(cerr).Warn("error closing admin audit log")
	}
	if serr := a.app.Stop(shutdownCtx); serr != nil {
		a.log.WithError(serr).Warn("error stopping background services")
	}
	return err
}
