package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/webkit"
	"github.com/giantswarm/webkit/config"
	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/security"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the authorization endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			proc, logger, cfg, err := setup(opts)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), proc, logger, cfg)
		},
	}
}

func serve(ctx context.Context, proc *config.Process, logger *slog.Logger, cfg webkit.Config) error {
	inst, err := instrumentation.New(instrumentation.Config{
		ServiceVersion: Version,
		Enabled:        proc.EnableMetrics,
	})
	if err != nil {
		return fmt.Errorf("creating instrumentation: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	}()

	auditor := security.NewAuditor(logger.With("component", "audit"), true)
	tk, err := webkit.New(ctx, cfg, webkit.Options{Instrumentation: inst, Auditor: auditor})
	if err != nil {
		return err
	}
	defer func() {
		if err := tk.Close(); err != nil {
			logger.Warn("Toolkit close failed", "error", err)
		}
	}()

	var limiter *security.RateLimiter
	if proc.RateLimit > 0 {
		limiter = security.NewRateLimiter(security.RateLimiterConfig{
			RequestsPerSecond: proc.RateLimit,
			Burst:             proc.RateLimitBurst,
			Name:              "authorize",
			Logger:            logger,
			Instrumentation:   inst,
		})
		defer limiter.Stop()
	}

	handler, err := webkit.NewHandler(tk, webkit.HandlerConfig{
		BasePath:    proc.BasePath,
		ServerURL:   proc.ServerURL,
		RateLimiter: limiter,
		ClientIP:    security.ClientIPResolver{TrustProxy: proc.TrustProxy},
	})
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle(proc.BasePath+"/*", handler)

	servers := []*http.Server{newHTTPServer(proc.ListenAddr, router)}
	if proc.EnableMetrics && proc.MetricsAddr != "" {
		metrics := chi.NewRouter()
		metrics.Handle("/metrics", promhttp.Handler())
		servers = append(servers, newHTTPServer(proc.MetricsAddr, metrics))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("Listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return tk.Sessions().Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
