// Package main provides the Maelstrom node entry point.
// The node serves the txn-list-append workload plus the echo, generate, and
// broadcast collaborators over newline-delimited JSON on stdin/stdout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/maelstrom-txn/internal/adapter/linkv"
	"github.com/fairyhunter13/maelstrom-txn/internal/adapter/stdio"
	"github.com/fairyhunter13/maelstrom-txn/internal/config"
	"github.com/fairyhunter13/maelstrom-txn/internal/node"
	"github.com/fairyhunter13/maelstrom-txn/internal/observability"
	"github.com/fairyhunter13/maelstrom-txn/internal/txn"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Setup logging. Everything diagnostic goes to stderr; stdout carries
	// protocol frames only.
	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register Prometheus metrics and expose them on a dedicated endpoint
	// when configured. The listener runs outside the protocol path.
	observability.InitMetrics()
	if cfg.MetricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			if err := http.ListenAndServe(addr, otelhttp.NewHandler(mux, "metrics")); err != nil {
				slog.Error("metrics server error", slog.Any("error", err))
			}
		}()
	}

	// Enable tracing for transactor and KV spans when an OTLP endpoint is
	// configured.
	shutdownTracer, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting node",
		slog.String("env", cfg.AppEnv),
		slog.Uint64("partition_width", cfg.PartitionWidth),
		slog.String("lin_kv_service", cfg.LinKVService))

	transport := stdio.New(os.Stdin, os.Stdout, logger)
	n := node.New(transport, logger)
	kv := linkv.New(n, cfg.LinKVService)
	n.SetTransactor(txn.New(kv, n, cfg.PartitionWidth, logger))

	if err := n.Run(context.Background()); err != nil {
		slog.Error("node stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("node stopped")
}
