// Package cli wires configuration, every pipeline component, and the
// scheduling loop into one runnable process, following the cobra/viper
// bootstrap idiom of cli/root.go, generalized from an HTTP API server to
// a periodic background agent with a liveness/metrics surface.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"riverwatch.dev/agent/internal/config"
	"riverwatch.dev/agent/internal/logging"
	"riverwatch.dev/agent/internal/metrics"
	"riverwatch.dev/agent/internal/pgdb"
	"riverwatch.dev/agent/internal/telemetry"
	"riverwatch.dev/agent/pkg/anomaly"
	"riverwatch.dev/agent/pkg/compose"
	"riverwatch.dev/agent/pkg/fetch"
	"riverwatch.dev/agent/pkg/graph"
	"riverwatch.dev/agent/pkg/incidents"
	"riverwatch.dev/agent/pkg/orchestrator"
	"riverwatch.dev/agent/pkg/permits"
	"riverwatch.dev/agent/pkg/rainfall"
	"riverwatch.dev/agent/pkg/runlog"
	"riverwatch.dev/agent/pkg/similarity"
	"riverwatch.dev/agent/pkg/stations"
)

var cfgFile string

// RootCmd is the agent's single entry point: there are no subcommands,
// since the process does one thing (run the cycle loop) for as long as
// it's alive.
var RootCmd = &cobra.Command{
	Use:   "riverwatch-agent",
	Short: "Environmental telemetry monitoring agent",
	Long: `riverwatch-agent polls flood, hydrology, and rainfall telemetry,
clusters co-located anomalies, correlates them against environmental
permits and rainfall, and persists the resulting incidents to CouchDB,
Postgres (similarity index), and Neo4j (relationship graph).`,
	RunE: runAgent,
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, environment variables only)")
	RootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	RootCmd.PersistentFlags().String("health-addr", "", "liveness/metrics listen address override")
	viper.BindPFlag("log_level", RootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("health_addr", RootCmd.PersistentFlags().Lookup("health-addr"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err == nil {
			fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
		}
	}
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if v := viper.GetString("log_level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("health_addr"); v != "" {
		cfg.HealthAddr = v
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Level: cfg.LogLevel, Format: cfg.LogFormat,
		Service: "riverwatch-agent", Output: os.Stdout,
	})
	ctxLogger := logging.NewContextLogger(logger, "riverwatch-agent", "dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(cfg.MetricsNamespace)

	tp, err := telemetry.NewProvider(ctx, telemetry.ConfigFromEnv("riverwatch-agent", "dev"))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer tp.Shutdown(context.Background())

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	cache := redis.NewClient(redisOpts)
	defer cache.Close()

	db, err := pgdb.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	stationStore := stations.New(cache, db)
	if err := stationStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure station schema: %w", err)
	}

	simIndex := similarity.NewIndex(db, similarity.NewHashEmbedder(cfg.EmbeddingDim))
	if err := simIndex.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure embeddings schema: %w", err)
	}

	graphIngestor, err := graph.NewIngestor(cfg.Neo4jURL, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return fmt.Errorf("connect neo4j: %w", err)
	}
	defer graphIngestor.Close(context.Background())

	incidentStore, err := incidents.New(ctx, cfg.CouchDBURL, cfg.CouchDBUser, cfg.CouchDBPassword,
		cache, time.Duration(cfg.DedupWindowHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("connect incidents store: %w", err)
	}

	runLogRecorder, err := runlog.New(ctx, cfg.CouchDBURL, cfg.CouchDBUser, cfg.CouchDBPassword, ctxLogger)
	if err != nil {
		return fmt.Errorf("connect run log store: %w", err)
	}

	fetchers := []fetch.Fetcher{
		fetch.NewFloodFetcher(fetch.ClientConfig{
			BaseURL: cfg.FloodBaseURL, Timeout: cfg.UpstreamTimeout, MaxRetries: cfg.UpstreamMaxRetries,
		}, stationStore),
		fetch.NewHydrologyFetcher(fetch.ClientConfig{
			BaseURL: cfg.HydrologyBaseURL, Timeout: cfg.UpstreamTimeout, MaxRetries: cfg.UpstreamMaxRetries,
		}, stationStore),
		fetch.NewRainfallFetcher(fetch.ClientConfig{
			BaseURL: cfg.RainfallBaseURL, Timeout: cfg.UpstreamTimeout, MaxRetries: cfg.UpstreamMaxRetries,
		}, stationStore),
	}

	detector := anomaly.NewDetector(cfg)
	permitSearcher := permits.NewSearcher(fetch.ClientConfig{
		BaseURL: cfg.PermitsBaseURL, Timeout: cfg.UpstreamTimeout, MaxRetries: cfg.UpstreamMaxRetries,
	})
	composer := compose.NewComposer(compose.PriorityThresholds{
		High: cfg.PriorityExceedanceHigh, Medium: cfg.PriorityExceedanceMedium,
	}, nil)

	orch := orchestrator.New(
		orchestrator.Config{
			CycleDeadline:               time.Duration(cfg.CycleDeadlineSeconds) * time.Second,
			SpatialRadiusKM:             cfg.SpatialRadiusKM,
			TemporalWindow:              time.Duration(cfg.TemporalWindowHours) * time.Hour,
			MinClusterSize:              cfg.MinClusterSize,
			MaxClusterFanout:            cfg.MaxClusterFanout,
			PermitSearchRadiusKM:        cfg.PermitSearchRadiusKM,
			RainfallCorrelationRadiusKM: cfg.RainfallCorrelationRadiusKM,
			RainfallWindow:              time.Duration(cfg.RainfallWindowHours) * time.Hour,
			RainfallThresholds: rainfall.Thresholds{
				HeavyMM: cfg.RainfallThresholdHeavyMM, ModerateMM: cfg.RainfallThresholdModerateMM,
			},
			SimilarityTopK:     cfg.SimilarityTopK,
			SimilarityMinScore: cfg.SimilarityMinScore,
		},
		fetchers, detector, permitSearcher, composer, incidentStore, simIndex, graphIngestor, runLogRecorder,
		ctxLogger, m,
	)

	srv := newHealthServer(cfg.HealthAddr, db.Pool())
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ctxLogger.WithError(err).Error("health server stopped")
		}
	}()

	runLoop(ctx, orch, time.Duration(cfg.ScheduleIntervalSeconds)*time.Second, ctxLogger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newHealthServer(addr string, pool *pgxpool.Pool) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "postgres unreachable: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

// runLoop drives non-overlapping cycles on a fixed schedule: the first
// cycle fires immediately, and a missed tick while a cycle overruns its
// interval is never queued, matching a simple for-select ticker loop
// rather than a buffered/backpressured scheduler.
func runLoop(ctx context.Context, orch *orchestrator.Orchestrator, interval time.Duration, logger *logging.ContextLogger) {
	runOnce := func() {
		log := orch.RunCycle(ctx)
		logger.WithFields(map[string]interface{}{
			"run_id": log.RunID, "incidents_created": log.IncidentsCreated,
			"clusters_found": log.ClustersFound, "aborted": log.Aborted,
		}).Info("cycle complete")
	}

	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
