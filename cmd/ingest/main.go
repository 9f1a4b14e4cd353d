package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"solana-trade-feed/internal/candles"
	"solana-trade-feed/internal/feed"
	"solana-trade-feed/internal/observability"
	"solana-trade-feed/internal/pipeline"
	"solana-trade-feed/internal/ratelimit"
	"solana-trade-feed/internal/storage"
	clickstore "solana-trade-feed/internal/storage/clickhouse"
	"solana-trade-feed/internal/storage/memory"
	"solana-trade-feed/internal/storage/migrations"
	pgstore "solana-trade-feed/internal/storage/postgres"
)

func main() {
	feedURL := flag.String("feed-url", "wss://frontend-api.pump.fun/socket", "Realtime feed WebSocket URL")
	subjects := flag.String("subjects", "tradeCreated,newCoinCreated", "Comma-separated feed subjects to subscribe to")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for the raw trade archive (empty to disable)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	migrate := flag.Bool("migrate", true, "Apply database migrations on startup")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	solPriceURL := flag.String("sol-price-url", "https://frontend-api.pump.fun/sol-price", "SOL/USD rate endpoint")
	solPriceTTL := flag.Duration("sol-price-ttl", 30*time.Second, "SOL/USD rate cache TTL")
	metadataRate := flag.Float64("metadata-rate", 2, "Metadata fetches per second per host (0 disables limiting)")
	metadataBurst := flag.Int("metadata-burst", 5, "Metadata fetch burst per host")
	drainInterval := flag.Duration("drain-interval", 200*time.Millisecond, "Pause between queue drain passes")
	aggInterval := flag.Duration("aggregate-interval", 30*time.Second, "Pause between candle aggregation runs (0 disables)")
	aggMinTrades := flag.Int64("aggregate-min-trades", 1, "Trades in the activity window required to aggregate a token")
	aggWindow := flag.Duration("aggregate-window", time.Hour, "Activity window for token selection")

	flag.Parse()

	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err := run(ctx, logger, options{
		feedURL:       *feedURL,
		subjects:      splitSubjects(*subjects),
		postgresDSN:   *postgresDSN,
		clickhouseDSN: *clickhouseDSN,
		useMemory:     *useMemory,
		migrate:       *migrate,
		solPriceURL:   *solPriceURL,
		solPriceTTL:   *solPriceTTL,
		metadataRate:  *metadataRate,
		metadataBurst: *metadataBurst,
		drainInterval: *drainInterval,
		aggInterval:   *aggInterval,
		aggMinTrades:  *aggMinTrades,
		aggWindow:     *aggWindow,
	})

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type options struct {
	feedURL       string
	subjects      []string
	postgresDSN   string
	clickhouseDSN string
	useMemory     bool
	migrate       bool
	solPriceURL   string
	solPriceTTL   time.Duration
	metadataRate  float64
	metadataBurst int
	drainInterval time.Duration
	aggInterval   time.Duration
	aggMinTrades  int64
	aggWindow     time.Duration
}

func run(ctx context.Context, logger *log.Logger, opts options) error {
	if len(opts.subjects) == 0 {
		return fmt.Errorf("--subjects must name at least one subject")
	}
	if !opts.useMemory && opts.postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	var tokenStore storage.TokenStore = memory.NewTokenStore()
	var tradeStore storage.TradeStore = memory.NewTradeStore()
	var candleStore storage.CandleStore = memory.NewCandleStore()

	if !opts.useMemory {
		pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if opts.migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				return fmt.Errorf("apply postgres migrations: %w", err)
			}
		}

		tokenStore = pgstore.NewTokenStore(pool)
		tradeStore = pgstore.NewTradeStore(pool)
		candleStore = pgstore.NewCandleStore(pool)
	}

	var archive storage.TradeArchive
	if opts.clickhouseDSN != "" {
		conn, err := clickstore.NewConn(ctx, opts.clickhouseDSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()

		if opts.migrate {
			if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
				return fmt.Errorf("apply clickhouse migrations: %w", err)
			}
		}
		archive = clickstore.NewTradeArchive(conn)
		logger.Printf("Raw trade archive enabled")
	}

	queue := feed.NewEventQueue()
	client := feed.NewClient(feed.DefaultClientConfig(opts.feedURL, opts.subjects), queue, logger)

	solPrice := pipeline.NewSolPrice(opts.solPriceURL, opts.solPriceTTL, nil, logger)
	limiter := ratelimit.New(opts.metadataRate, opts.metadataBurst)
	enricher := pipeline.NewEnricher(nil, limiter, logger)

	processor := pipeline.NewProcessor(tokenStore, tradeStore, archive, queue, solPrice, enricher, logger)

	var aggregator *candles.Aggregator
	if opts.aggInterval > 0 {
		aggregator = candles.New(tradeStore, candleStore, candles.Config{
			MinTrades:    opts.aggMinTrades,
			ActiveWindow: opts.aggWindow,
		}, logger)
	}

	runnerCfg := pipeline.DefaultRunnerConfig()
	runnerCfg.DrainInterval = opts.drainInterval
	runnerCfg.AggregateInterval = opts.aggInterval

	runner := pipeline.NewRunner(runnerCfg, client, processor, aggregator, queue, logger)

	logger.Printf("Ingesting from %s, subjects %v", opts.feedURL, opts.subjects)
	return runner.Run(ctx)
}

func splitSubjects(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
