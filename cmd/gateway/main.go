// Command gateway runs either the inway or outway role of the mesh
// gateway, selected by its first argument, with flags/env per spec.md §6.
// Grounded on the teacher's cmd/server/main.go for logger construction,
// signal handling, and graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nlx-io/nlx-gateway/internal/config"
	"github.com/nlx-io/nlx-gateway/internal/health"
	"github.com/nlx-io/nlx-gateway/internal/inway"
	"github.com/nlx-io/nlx-gateway/internal/metrics"
	"github.com/nlx-io/nlx-gateway/internal/outway"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: gateway <inway|outway> [flags]")
		os.Exit(1)
	}

	role := config.Role(os.Args[1])
	cfg, err := config.Parse(role, os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger()
	reg := metrics.New()
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		run          func(ctx context.Context) error
		healthDetail func() any
	)

	switch role {
	case config.RoleInway:
		gw, err := inway.New(cfg, logger, reg)
		if err != nil {
			logger.Error("gateway: failed to initialize inway", slog.Any("error", err))
			os.Exit(1)
		}
		run = gw.Run
		healthDetail = func() any {
			return map[string]int{"routing_table_size": gw.RoutingTableSize()}
		}

	case config.RoleOutway:
		gw, err := outway.New(cfg, logger, reg)
		if err != nil {
			logger.Error("gateway: failed to initialize outway", slog.Any("error", err))
			os.Exit(1)
		}
		run = gw.Run
		healthDetail = func() any {
			return map[string]int{"organization_count": gw.OrganizationCount()}
		}

	default:
		fmt.Fprintln(os.Stderr, "gateway: first argument must be \"inway\" or \"outway\"")
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Registerer(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.Handler(startTime, logger, healthDetail))
	metricsServer := &http.Server{Addr: cfg.MetricsAddress, Handler: mux}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error { return run(egCtx) })
	eg.Go(func() error {
		go func() {
			<-egCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
		logger.Info("gateway: metrics/health listening", slog.String("addr", cfg.MetricsAddress))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		logger.Error("gateway: exited with error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("gateway: exited cleanly")
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr, matching the teacher's cmd/server/main.go newLogger.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
