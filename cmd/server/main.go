// Command server runs the SQL execution-flow visualizer HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sqlflow/internal/api"
	"sqlflow/internal/config"
	"sqlflow/internal/middleware"
	"sqlflow/internal/service/visualizer"
	"sqlflow/internal/session"
)

func main() {
	// Load .env file (if present)
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	var seed *session.Seed
	if cfg.SeedSchemaPath != "" {
		seed, err = session.LoadSeed(cfg.SeedSchemaPath)
		if err != nil {
			logger.Error("loading seed schema", "path", cfg.SeedSchemaPath, "error", err)
			os.Exit(1)
		}
	}

	opts := []session.Option{session.WithTTL(cfg.SessionTTL)}
	if seed != nil {
		opts = append(opts, session.WithSeed(seed))
	}
	sessions := session.NewManager(logger.With("component", "sessions"), opts...)
	defer sessions.Close()

	vis := visualizer.New(
		logger.With("component", "visualizer"),
		sessions,
		visualizer.WithTimeout(cfg.VisualizeTimeout),
		visualizer.WithMaxJoinRows(cfg.MaxJoinRows),
	)

	var limiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		})
		defer limiter.Close()
	}

	handler := api.NewHandler(logger.With("component", "api"), sessions, vis)
	router := api.NewRouter(handler, api.RouterConfig{
		RateLimiter:        limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP API listening",
			"addr", cfg.ListenAddr,
			"try", fmt.Sprintf("curl http://%s/healthz", curlHostForListenAddr(cfg.ListenAddr)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// curlHostForListenAddr turns a listen address into something a curl command
// can reach. Wildcard and empty hosts become localhost.
func curlHostForListenAddr(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return "localhost:8080"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		return "localhost:" + port
	}
	return net.JoinHostPort(host, port)
}
