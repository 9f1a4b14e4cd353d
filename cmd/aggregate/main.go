package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"solana-trade-feed/internal/candles"
	"solana-trade-feed/internal/domain"
	"solana-trade-feed/internal/storage/migrations"
	pgstore "solana-trade-feed/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	mint := flag.String("mint", "", "Aggregate a single token by mint (default: all active tokens)")
	intervals := flag.String("intervals", "", "Comma-separated intervals in minutes (default: all supported)")
	minTrades := flag.Int64("min-trades", 1, "Trades in the activity window required to aggregate a token")
	window := flag.Duration("window", 24*time.Hour, "Activity window for token selection")
	lookback := flag.Duration("lookback", 0, "Trade scan bound for pairs with no candles yet (0 scans all history)")
	migrate := flag.Bool("migrate", false, "Apply database migrations before running")

	flag.Parse()

	logger := log.New(os.Stdout, "[aggregate] ", log.LstdFlags|log.Lshortfile)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, canceling", sig)
		cancel()
	}()

	if err := run(ctx, logger, *postgresDSN, *mint, *intervals, *minTrades, *window, *lookback, *migrate); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, dsn, mint, intervals string, minTrades int64, window, lookback time.Duration, migrate bool) error {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	parsedIntervals, err := parseIntervals(intervals)
	if err != nil {
		return err
	}

	tokenStore := pgstore.NewTokenStore(pool)
	tradeStore := pgstore.NewTradeStore(pool)
	candleStore := pgstore.NewCandleStore(pool)

	agg := candles.New(tradeStore, candleStore, candles.Config{
		Intervals:         parsedIntervals,
		MinTrades:         minTrades,
		ActiveWindow:      window,
		ColdStartLookback: lookback,
	}, logger)

	start := time.Now()
	if mint != "" {
		token, err := tokenStore.GetByMint(ctx, mint)
		if err != nil {
			return fmt.Errorf("look up mint %s: %w", mint, err)
		}
		if err := agg.AggregateToken(ctx, token.ID); err != nil {
			return fmt.Errorf("aggregate token %s: %w", mint, err)
		}
		logger.Printf("Aggregated token %s in %s", mint, time.Since(start))
		return nil
	}

	if err := agg.Run(ctx); err != nil {
		return fmt.Errorf("aggregation run: %w", err)
	}
	logger.Printf("Aggregation run finished in %s", time.Since(start))
	return nil
}

// parseIntervals parses the --intervals flag, validating each value
// against the supported granularities.
func parseIntervals(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}

	supported := make(map[int]bool, len(domain.CandleIntervals))
	for _, i := range domain.CandleIntervals {
		supported[i] = true
	}

	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad interval %q: %w", part, err)
		}
		if !supported[n] {
			return nil, fmt.Errorf("unsupported interval %d (supported: %v)", n, domain.CandleIntervals)
		}
		out = append(out, n)
	}
	return out, nil
}
