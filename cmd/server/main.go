package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/agreemo/dashboard/backend/internal/config"
	"github.com/agreemo/dashboard/backend/internal/database"
	"github.com/agreemo/dashboard/backend/internal/handler"
	"github.com/agreemo/dashboard/backend/internal/hub"
	"github.com/agreemo/dashboard/backend/internal/middleware"
	"github.com/agreemo/dashboard/backend/internal/repository"
	"github.com/agreemo/dashboard/backend/internal/service/agreemo"
	"github.com/agreemo/dashboard/backend/internal/service/broadcaster"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional poll history
	var runRepo *repository.PollRunRepository
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := database.Migrate(pool); err != nil {
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}
		runRepo = repository.NewPollRunRepository(pool)
		go pruneHistory(ctx, runRepo, cfg.HistoryRetention)
	} else {
		slog.Info("DATABASE_URL not set, poll history disabled")
	}

	// Services
	client := agreemo.NewClient(cfg.AgreemoBaseURL, cfg.AgreemoAPIKey,
		agreemo.WithRateLimit(cfg.UpstreamRateLimit))
	subscribers := hub.New(logger)

	opts := []broadcaster.Option{
		broadcaster.WithFetchTimeout(cfg.FetchTimeout),
		broadcaster.WithLogger(logger),
	}
	if runRepo != nil {
		opts = append(opts, broadcaster.WithRecorder(runRepo))
	}
	bc, err := broadcaster.New(client, subscribers, cfg.Domains, opts...)
	if err != nil {
		slog.Error("invalid domain configuration", "error", err)
		os.Exit(1)
	}

	// Handlers
	bcHandler := handler.NewBroadcasterHandler(bc, subscribers)
	socketHandler := handler.NewSocketHandler(subscribers, bc, cfg.CORSAllowOrigin, logger)
	// A nil *PollRunRepository must not reach the handler as a non-nil interface.
	runHandler := handler.NewRunHandler(nil, bc.Domains())
	if runRepo != nil {
		runHandler = handler.NewRunHandler(runRepo, bc.Domains())
	}

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORSAllowOrigin))
	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/ws", socketHandler)
	r.Route("/api/v1", func(r chi.Router) {
		bcHandler.RegisterRoutes(r)
		runHandler.RegisterRoutes(r)
	})

	// WriteTimeout stays zero: websocket subscribers hold their connection
	// open and rely on per-frame write deadlines instead.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if err := bc.Start(ctx); err != nil {
		slog.Error("failed to start broadcaster", "error", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("server starting", "port", cfg.ServerPort, "domains", bc.Domains())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	// Cancels in-flight upstream requests so shutdown does not wait on them.
	switch err := bc.Stop(); {
	case errors.Is(err, broadcaster.ErrNotRunning):
		slog.Debug("broadcaster already stopped")
	case err != nil:
		slog.Error("failed to stop broadcaster", "error", err)
	}
	bc.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func pruneHistory(ctx context.Context, repo *repository.PollRunRepository, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := repo.Prune(pruneCtx, retention)
		cancel()
		if err != nil {
			slog.Warn("failed to prune poll history", "error", err)
		} else if n > 0 {
			slog.Info("pruned poll history", "rows", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
