// Command renkonet runs the RenkoNet app shell: the local JSON API the UI
// talks to, backed by a Supabase project.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	app "github.com/R3E-Network/renkonet/internal/app"
	"github.com/R3E-Network/renkonet/internal/app/runtime"
	"github.com/R3E-Network/renkonet/internal/config"
	"github.com/R3E-Network/renkonet/internal/logging"
)

var version = "dev"

func main() {
	envFile := flag.String("env", ".env", "Path to a .env file (missing files are ignored)")
	addr := flag.String("addr", "", "Listen address (overrides RENKONET_LISTEN_ADDR)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	logger := logging.New("renkonet", cfg.LogLevel, cfg.LogFormat)
	rt, err := runtime.NewApplication(cfg, app.Deps{}, version, logger)
	if err != nil {
		logger.WithError(err).Fatal("build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithFields(map[string]interface{}{"signal": sig.String()}).Info("shutting down")
		cancel()
	}()

	runErr := rt.Run(ctx)
	if err := rt.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
	if runErr != nil {
		logger.WithError(runErr).Fatal("server stopped")
	}
}
