package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"PredictMesh/internal/core"
	"PredictMesh/internal/event"
	"PredictMesh/internal/ingestion"
	"PredictMesh/internal/observability"
	"PredictMesh/internal/persistence"
	"PredictMesh/internal/query"
	"PredictMesh/internal/server"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

const (
	rawChanCapacity      = 4096
	outboundChanCapacity = 4096
	persistChanCapacity  = 4096
	requestChanCapacity  = 1024

	persistBatchSize    = 100
	persistFlushTimeout = 50 * time.Millisecond
	lruWarmLimit        = 50_000
)

func main() {
	logger := observability.NewLogger("main")

	shardID := os.Getenv("PREDICT_SHARD_ID")
	if shardID == "" {
		logger.Fatal().Msg("PREDICT_SHARD_ID is required")
	}

	httpAddr := envOrDefault("PREDICT_HTTP_ADDR", ":8080")
	metricsAddr := envOrDefault("PREDICT_METRICS_ADDR", ":9100")
	pgDSN := envOrDefault("PREDICT_POSTGRES_DSN", "postgres://localhost:5432/predictmesh?sslmode=disable")
	natsURL := envOrDefault("PREDICT_NATS_URL", "nats://localhost:4222")
	migrationsDir := envOrDefault("PREDICT_MIGRATIONS_DIR", "migrations")
	adminToken := os.Getenv("PREDICT_ADMIN_TOKEN")
	seedShards := splitNonEmpty(os.Getenv("PREDICT_SEED_SHARDS"))
	initialGrant := envOrDefaultInt64("PREDICT_INITIAL_GRANT", core.DefaultInitialGrant)
	tickEvery := envOrDefaultDuration("PREDICT_TICK_EVERY", time.Minute)
	retentionKeep := envOrDefaultDuration("PREDICT_RETENTION_KEEP", 96*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Postgres ---
	db, err := sql.Open("postgres", pgDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open postgres")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping postgres")
	}

	migrator := persistence.NewMigrator(db, migrationsDir)
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrations")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(natsURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect nats")
	}
	defer nc.Close()
	if err := ingestion.EnsureGossipStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure gossip stream")
	}

	// --- Channels ---
	metrics := observability.NewMetrics()
	rawChan := make(chan ingestion.RawMessage, rawChanCapacity)
	outboundChan := make(chan event.Message, outboundChanCapacity)
	corePersistChan := make(chan core.CoreOutput, persistChanCapacity)
	persistChan := make(chan persistence.CoreOutput, persistChanCapacity)
	requestChan := make(chan core.Request, requestChanCapacity)

	// --- Core ---
	dbChecker := persistence.NewPostgresMessageChecker(db)
	shardCore := core.NewShardCore(core.Config{
		ShardID:      shardID,
		InitialGrant: initialGrant,
		SeedShards:   seedShards,
	}, dbChecker, metrics, outboundChan, corePersistChan)

	if keys, err := dbChecker.LoadRecentKeys(ctx, lruWarmLimit); err != nil {
		logger.Warn().Err(err).Msg("lru warm failed, continuing cold")
	} else {
		shardCore.WarmLRU(keys)
		logger.Info().Int("keys", len(keys)).Msg("warmed dedup lru")
	}

	go func() {
		if err := shardCore.Loop(ctx, requestChan); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("core loop exited")
		}
	}()

	// Bridge core output into the persistence worker's mirror type.
	go func() {
		for out := range corePersistChan {
			po := persistence.CoreOutput{
				Players:  out.Players,
				Guilds:   out.Guilds,
				Markets:  out.Markets,
				Price:    out.Price,
				Supplies: out.Supplies,
			}
			if out.Processed != nil {
				po.Processed = &persistence.ProcessedMessageRow{
					MessageID:   out.Processed.ID,
					OriginShard: out.Processed.Origin,
					Kind:        out.Processed.Kind.String(),
					LogicalTime: out.Processed.LogicalTime,
				}
			}
			persistChan <- po
		}
	}()

	worker := persistence.NewPersistenceWorker(db, persistChan, persistBatchSize, persistFlushTimeout, metrics)
	go func() {
		if err := worker.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("persistence worker exited")
		}
	}()

	// --- Gossip ---
	publisher := ingestion.NewGossipPublisher(js, outboundChan, metrics)
	go func() {
		if err := publisher.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("gossip publisher exited")
		}
	}()

	// Parse raw deliveries and hand typed messages to the core. A
	// message that cannot parse will never parse, so it is acked and
	// dropped instead of redelivered.
	go func() {
		for raw := range rawChan {
			msg, err := ingestion.ParseMessage(raw.Data)
			if err != nil {
				logger.Error().Err(err).Str("subject", raw.Subject).Msg("dropping unparseable gossip")
				raw.AckFunc()
				continue
			}
			m := msg
			requestChan <- core.Request{Msg: &m, Ack: raw.AckFunc, Nak: raw.NakFunc}
		}
	}()

	subscriber := ingestion.NewGossipSubscriber(js, rawChan)
	if err := subscriber.Subscribe(ctx, shardID); err != nil {
		logger.Fatal().Err(err).Msg("subscribe gossip")
	}
	defer subscriber.Stop()

	// --- Schedules ---
	retention := persistence.NewRetentionRunner(db, persistence.TimeBucketRetention{Keep: retentionKeep}, metrics)
	scheduler := cron.New()
	scheduler.Schedule(cron.Every(tickEvery), cron.FuncJob(func() {
		requestChan <- core.Request{Op: core.PriceRefreshTick{Timestamp: time.Now().UnixMicro()}}
	}))
	scheduler.Schedule(cron.Every(time.Hour), cron.FuncJob(func() {
		retention.RunOnce(ctx)
	}))
	scheduler.Start()
	defer scheduler.Stop()

	// Channel utilization gauges
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetChannelMetrics("raw", len(rawChan), cap(rawChan))
				metrics.SetChannelMetrics("outbound", len(outboundChan), cap(outboundChan))
				metrics.SetChannelMetrics("persist", len(persistChan), cap(persistChan))
				metrics.SetChannelMetrics("requests", len(requestChan), cap(requestChan))
			}
		}
	}()

	// --- HTTP ---
	health := observability.NewHealthChecker()
	queries := query.NewQueryService(db)
	api := server.NewServer(requestChan, queries, health, adminToken)

	apiServer := &http.Server{Addr: httpAddr, Handler: api.Router()}
	go func() {
		logger.Info().Str("addr", httpAddr).Msg("http listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}
	go func() {
		logger.Info().Str("addr", metricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("metrics server")
		}
	}()

	health.SetReady(true)
	logger.Info().
		Str("shard", shardID).
		Strs("seed_shards", seedShards).
		Int64("initial_grant", initialGrant).
		Msg("predictmesh up")

	// --- Shutdown ---
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	apiServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)
	cancel()

	// Give the persistence worker a moment to flush its final batch
	time.Sleep(2 * persistFlushTimeout)
	logger.Info().Msg("goodbye")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
