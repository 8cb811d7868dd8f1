// cmd/downloader bulk-downloads broker history into SQLite or Redis.
//
// Usage:
//
//	go run ./cmd/downloader --tickers=RELIANCE,INFY --type=equity \
//	    --resolution=minute --from=2026-03-02 --to=2026-03-07 --sink=sqlite
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"samco-bridge/config"
	"samco-bridge/internal/downloader"
	"samco-bridge/internal/history"
	"samco-bridge/internal/instruments"
	"samco-bridge/internal/logger"
	"samco-bridge/internal/model"
	redisstore "samco-bridge/internal/store/redis"
	sqlitestore "samco-bridge/internal/store/sqlite"
	"samco-bridge/internal/symbols"
	"samco-bridge/pkg/samco"
)

const dateLayout = "2006-01-02"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exit.
func run() int {

	// Flags
	tickers := flag.String("tickers", "", "Comma-separated tickers, e.g. RELIANCE,INFY")
	secType := flag.String("type", "equity", "Security type: equity, index or future")
	market := flag.String("market", model.MarketIndia, "Market")
	resolution := flag.String("resolution", "daily", "Resolution: minute, hour or daily")
	from := flag.String("from", "", "Start date, inclusive (YYYY-MM-DD)")
	to := flag.String("to", "", "End date, exclusive (YYYY-MM-DD)")
	expiry := flag.String("expiry", "", "Future expiry (YYYY-MM-DD), futures only")
	sink := flag.String("sink", "sqlite", "Where bars go: sqlite or redis")
	dbPath := flag.String("db", "", "SQLite path (default: SQLITE_PATH)")
	concurrency := flag.Int("concurrency", 4, "Tickers downloaded in parallel")
	resume := flag.Bool("resume", true, "Start each ticker after the newest bar already in the sink")
	flag.Parse()

	cfg := config.Load()
	logger.Init("downloader", logger.ParseLevel(cfg.LogLevel))

	job, err := parseJob(*tickers, *secType, *market, *resolution, *from, *to, *expiry)
	if err != nil {
		log.Fatalf("[downloader] %v", err)
	}
	job.Concurrency = *concurrency
	if err := downloader.Validate(job); err != nil {
		log.Fatalf("[downloader] invalid job: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// ---- Sink ----
	var writer model.BarWriter
	var sqlWriter *sqlitestore.Writer
	var lastStored func(ctx context.Context, sym model.Symbol, period time.Duration) (time.Time, error)
	switch *sink {
	case "sqlite":
		path := cfg.SQLitePath
		if *dbPath != "" {
			path = *dbPath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Fatalf("[downloader] create %s: %v", filepath.Dir(path), err)
		}
		sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: path})
		if err != nil {
			log.Fatalf("[downloader] sqlite init failed: %v", err)
		}
		writer = sqlWriter
		lastStored = sqlWriter.LastTimestamp
	case "redis":
		rdb, err := redisstore.NewClient(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Fatalf("[downloader] redis init failed: %v", err)
		}
		rw := redisstore.NewWriter(rdb)
		bw := redisstore.NewBufferedWriter(ctx, rw, redisstore.NewCircuitBreaker("bars", 5, 10*time.Second), 0)
		writer = closeBoth{bw, rw}
		lastStored = latestFrom(redisstore.NewReader(rdb))
	default:
		log.Fatalf("[downloader] unknown sink %q (want sqlite or redis)", *sink)
	}
	defer writer.Close()

	// ---- Broker session + catalogue ----
	exec := samco.NewExecutor(samco.ExecutorConfig{
		BaseURL: cfg.SamcoBaseURL,
		Rate:    cfg.SamcoRateLimit,
		Timeout: cfg.SamcoHTTPTimeout,
		Retry:   samco.RetryPolicy{MaxAttempts: cfg.SamcoMaxAttempts, Retryable: samco.IsThrottled},
	})
	if _, err := exec.Authorize(ctx, cfg.SamcoUserID, cfg.SamcoPassword, cfg.SamcoYOB); err != nil {
		log.Fatalf("[downloader] login failed: %v", err)
	}
	defer func() {
		logoutCtx, logoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer logoutCancel()
		if err := exec.Logout(logoutCtx); err != nil {
			log.Printf("[downloader] logout failed: %v", err)
		}
	}()

	cache, err := instruments.New(ctx, instruments.Config{
		Fetcher: instruments.NewHTTPFetcher(cfg.SamcoScripMasterURL, 2*time.Minute),
	})
	if err != nil {
		log.Fatalf("[downloader] catalogue load failed: %v", err)
	}
	log.Printf("[downloader] catalogue loaded: %d instruments", cache.Len())

	assembler := history.NewAssembler(samco.NewClient(exec), symbols.NewMapper(cache))

	// ---- Run ----
	start := time.Now()
	dl := downloader.New(assembler, writer)
	if *resume {
		dl.LastStored = lastStored
	}
	results, err := dl.Run(ctx, job)
	if err != nil {
		log.Printf("[downloader] run stopped: %v", err)
	}

	total := 0
	for _, r := range results {
		total += r.Bars
	}
	failed := downloader.Failed(results)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        DOWNLOAD COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Tickers:      %-21d ║\n", len(results))
	fmt.Printf("║  Failed:       %-21d ║\n", len(failed))
	fmt.Printf("║  Bars written: %-21d ║\n", total)
	fmt.Printf("║  Took:         %-21v ║\n", time.Since(start).Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")

	if sqlWriter != nil {
		period := job.Resolution.Span()
		for _, r := range results {
			if r.Err != nil || r.Bars == 0 {
				continue
			}
			last, err := sqlWriter.LastTimestamp(ctx, r.Symbol, period)
			if err == nil {
				fmt.Printf("  %-20s last bar %s\n", r.Ticker, last.Format("2006-01-02 15:04"))
			}
		}
	}
	for _, r := range failed {
		fmt.Printf("  FAILED %-13s %v\n", r.Ticker, r.Err)
	}
	if len(failed) > 0 {
		return 1
	}
	return 0
}

func parseJob(tickers, secType, market, resolution, from, to, expiry string) (downloader.Config, error) {
	var job downloader.Config
	for _, t := range strings.Split(tickers, ",") {
		if t = strings.TrimSpace(t); t != "" {
			job.Tickers = append(job.Tickers, t)
		}
	}
	st, ok := model.ParseSecurityType(secType)
	if !ok {
		return job, fmt.Errorf("unknown security type %q", secType)
	}
	job.SecurityType = st
	job.Market = market

	res, err := model.ParseResolution(resolution)
	if err != nil {
		return job, err
	}
	job.Resolution = res

	if job.Start, err = time.ParseInLocation(dateLayout, from, time.UTC); err != nil {
		return job, fmt.Errorf("--from: %w", err)
	}
	if job.End, err = time.ParseInLocation(dateLayout, to, time.UTC); err != nil {
		return job, fmt.Errorf("--to: %w", err)
	}
	if expiry != "" {
		if job.Expiry, err = time.ParseInLocation(dateLayout, expiry, time.UTC); err != nil {
			return job, fmt.Errorf("--expiry: %w", err)
		}
	}
	return job, nil
}

// latestFrom resumes from the newest bar cached in Redis.
func latestFrom(r *redisstore.Reader) func(ctx context.Context, sym model.Symbol, period time.Duration) (time.Time, error) {
	return func(ctx context.Context, sym model.Symbol, period time.Duration) (time.Time, error) {
		bar, ok, err := r.Latest(ctx, sym, period)
		if err != nil || !ok {
			return time.Time{}, err
		}
		return bar.Time, nil
	}
}

// closeBoth flushes the buffered writer before closing the Redis writer.
type closeBoth struct {
	*redisstore.BufferedWriter
	inner *redisstore.Writer
}

func (c closeBoth) Close() error {
	c.BufferedWriter.Close()
	return c.inner.Close()
}
