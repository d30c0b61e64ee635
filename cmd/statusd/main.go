// Command statusd serves the statusboard: it loads the infrastructure
// inventory, accepts configuration uploads and relays status updates to every
// connected observer over WebSocket.
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
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/dreamware/statusboard/internal/ingest"
	"github.com/dreamware/statusboard/internal/inventory"
	"github.com/dreamware/statusboard/internal/metrics"
	"github.com/dreamware/statusboard/internal/server"
	"github.com/dreamware/statusboard/internal/storage"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}

func run() error {
	showVersion := pflag.Bool("version", false, "show version and exit")
	verbose := pflag.BoolP("verbose", "v", false, "verbose mode - show debug logs")
	listenAddr := pflag.String("listen", getenv("STATUSD_LISTEN", ":8080"), "address to serve HTTP and WebSocket traffic on")
	metricsAddr := pflag.String("metrics-addr", getenv("STATUSD_METRICS_ADDR", ":2112"), "address to serve prometheus metrics on, empty to disable")
	configPath := pflag.String("config", getenv("STATUSD_CONFIG", ""), "YAML configuration to load at startup, empty for the built-in seed")
	healthCacheSize := pflag.Int("health-cache-size", 0, "zone health cache capacity, 0 for the default")
	pingInterval := pflag.Duration("ping-interval", 30*time.Second, "interval between liveness pings to observers")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(*verbose)
	clock := clockwork.NewRealClock()

	store, err := storage.NewStore(storage.Config{
		Logger:          log,
		Clock:           clock,
		HealthCacheSize: *healthCacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	ing, err := ingest.New(ingest.Config{Logger: log, Clock: clock})
	if err != nil {
		return fmt.Errorf("failed to create ingestor: %w", err)
	}

	state, err := loadInitialState(ing, *configPath)
	if err != nil {
		return err
	}
	store.ReplaceState(state)
	sum := state.Summary()
	metrics.SetInventory(sum.Capabilities, sum.Zones, sum.Servers, sum.Relationships)
	log.Info("inventory loaded",
		"capabilities", sum.Capabilities,
		"zones", sum.Zones,
		"servers", sum.Servers,
		"relationships", sum.Relationships)

	if *metricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go serveMetrics(log, *metricsAddr)
	}

	srv, err := server.New(log, server.Config{
		Store:        store,
		Ingestor:     ing,
		Clock:        clock,
		PingInterval: *pingInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	listener, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	defer listener.Close()

	errCh := srv.Start(ctx, cancel, listener)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("context done, stopping")
	}
	return nil
}

// loadInitialState builds the startup inventory from the file at path, or
// from the embedded seed when path is empty.
func loadInitialState(ing *ingest.Ingestor, path string) (inventory.State, error) {
	var (
		doc *ingest.Document
		err error
	)
	if path == "" {
		doc, err = ingest.Seed()
	} else {
		doc, err = ingest.Load(path)
	}
	if err != nil {
		return inventory.State{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if problems := ingest.Validate(doc); len(problems) > 0 {
		return inventory.State{}, &ingest.ValidationError{Problems: problems}
	}
	state, err := ing.Transform(doc)
	if err != nil {
		return inventory.State{}, fmt.Errorf("failed to transform configuration: %w", err)
	}
	return state, nil
}

func serveMetrics(log *slog.Logger, addr string) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("Failed to start prometheus metrics server listener", "error", err)
		os.Exit(1)
	}
	log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.Serve(listener, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Failed to start prometheus metrics server", "error", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(formatRFC3339Millis(a.Value.Time()))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s.%03dZ", t.Format("2006-01-02T15:04:05"), t.Nanosecond()/1_000_000)
}

// getenv returns the value of environment variable k, or def when unset.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
