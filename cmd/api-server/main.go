package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/hospital-registration-agent/internal/api"
	"github.com/hackgods/hospital-registration-agent/internal/app"
	"github.com/hackgods/hospital-registration-agent/internal/config"
	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

var version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s store=%s sessions=%s",
		cfg.Env, cfg.HTTPPort, cfg.StoreDriver, cfg.SessionDriver)

	logger := logging.New(cfg.LogLevel)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(rootCtx, cfg, logger, nil)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}
	defer a.Close()
	log.Printf("catalog loaded: %v", a.Catalog.Names())

	router := api.NewRouter(api.RouterConfig{
		Turns:    a.Machine,
		Records:  a.Allocator,
		Postgres: pinger(a),
		Redis:    a.Redis,
		Logger:   logger,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// pinger avoids handing the router a typed-nil pool
func pinger(a *app.App) api.Pinger {
	if a.Postgres == nil {
		return nil
	}
	return a.Postgres
}
