// cmd/samcobridge runs the StockNote bridge: it logs in, keeps the scrip
// master cache fresh across daily cutoffs and serves lookups, history,
// option chains and order routing over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"samco-bridge/config"
	"samco-bridge/internal/api"
	"samco-bridge/internal/execution"
	"samco-bridge/internal/history"
	"samco-bridge/internal/instruments"
	"samco-bridge/internal/logger"
	"samco-bridge/internal/markethours"
	"samco-bridge/internal/metrics"
	"samco-bridge/internal/notification"
	"samco-bridge/internal/optionchain"
	"samco-bridge/internal/model"
	redisstore "samco-bridge/internal/store/redis"
	sqlitestore "samco-bridge/internal/store/sqlite"
	"samco-bridge/internal/symbols"
	"samco-bridge/pkg/samco"

	"github.com/cenkalti/backoff/v5"
	goredis "github.com/go-redis/redis/v8"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[samcobridge] starting...")

	cfg := config.Load()
	logger.Init("samcobridge", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics, health & alerts ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	alerts := buildNotifier(cfg)

	// ---- Broker session ----
	execCfg := samco.ExecutorConfig{
		BaseURL: cfg.SamcoBaseURL,
		Rate:    cfg.SamcoRateLimit,
		Timeout: cfg.SamcoHTTPTimeout,
		Retry:   samco.RetryPolicy{MaxAttempts: cfg.SamcoMaxAttempts, Retryable: samco.IsThrottled},
	}
	prom.ExecutorHooks(&execCfg)
	exec := samco.NewExecutor(execCfg)

	if err := login(ctx, exec, cfg); err != nil {
		notification.Notify(alerts, notification.Alert{
			Level: notification.AlertCritical, Component: "session", Title: "login failed", Message: err.Error(),
		})
		log.Fatalf("[samcobridge] login failed: %v", err)
	}
	health.SetBrokerSession(true)
	log.Println("[samcobridge] session ready")
	client := samco.NewClient(exec)

	// ---- Catalogue: optional Redis share in front of the HTTP download ----
	var fetcher instruments.Fetcher = instruments.NewHTTPFetcher(cfg.SamcoScripMasterURL, 2*time.Minute)
	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		var err error
		rdb, err = redisstore.NewClient(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Printf("[samcobridge] WARNING: redis init failed: %v (downloading the catalogue directly)", err)
		} else {
			store := redisstore.NewCatalogueStore(rdb, nil)
			prom.WatchBreaker(store.Breaker())
			fetcher = &instruments.StoreFetcher{Next: fetcher, Store: store}
			log.Println("[samcobridge] redis catalogue store ready")
		}
	}

	cache, err := instruments.New(ctx, instruments.Config{
		Fetcher: fetcher,
		OnRefresh: func(s instruments.RefreshStats) {
			prom.ObserveRefresh(s)
			health.SetRefresh(s, time.Now())
			if s.Err != nil {
				notification.Notify(alerts, notification.Alert{
					Level: notification.AlertWarning, Component: "catalogue",
					Title: "scrip master refresh failed", Message: s.Err.Error(),
				})
			}
		},
	})
	if err != nil {
		log.Fatalf("[samcobridge] initial catalogue load failed: %v", err)
	}
	log.Printf("[samcobridge] catalogue loaded: %d instruments", cache.Len())

	go refreshLoop(ctx, cache)

	// ---- Services ----
	mapper := symbols.NewMapper(cache)
	assembler := history.NewAssembler(client, mapper)
	assembler.OnBars = prom.ObserveBars

	var orderClient execution.OrderClient = client
	if cfg.PaperTrading {
		orderClient = execution.NewPaperClient()
		log.Println("[samcobridge] *** PAPER TRADING: orders are not sent to the broker ***")
	}
	var recorder execution.Recorder
	if cfg.OrderJournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OrderJournalPath), 0o755); err != nil {
			log.Fatalf("[samcobridge] create %s: %v", filepath.Dir(cfg.OrderJournalPath), err)
		}
		journal, err := execution.NewJournal(cfg.OrderJournalPath)
		if err != nil {
			log.Fatalf("[samcobridge] order journal init failed: %v", err)
		}
		defer journal.Close()
		recorder = journal
	}
	router := execution.NewRouter(orderClient, mapper, recorder)
	router.OnResult = func(r execution.OrderResult) {
		prom.ObserveOrder(r)
		if r.Status == execution.StatusRejected || r.Status == execution.StatusError {
			notification.Notify(alerts, notification.Alert{
				Level: notification.AlertWarning, Component: "router",
				Title:   fmt.Sprintf("%s %s", r.Action, r.Status),
				Message: fmt.Sprintf("%s: %s", r.Order.Symbol, r.Message),
			})
		}
	}

	// ---- Stored bars written by cmd/downloader ----
	deps := api.Deps{
		Catalogue: cache,
		Mapper:    mapper,
		History:   assembler,
		Chains:    optionchain.NewProvider(cache),
		Orders:    router,
	}
	var barReader model.BarReader
	var sqlDB *sql.DB
	switch {
	case cfg.BarsSource == "redis" && rdb != nil:
		barReader = redisstore.NewReader(rdb)
	case cfg.BarsSource == "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			log.Printf("[samcobridge] WARNING: create %s: %v (stored bars disabled)", filepath.Dir(cfg.SQLitePath), err)
			break
		}
		r, err := sqlitestore.NewReader(cfg.SQLitePath)
		if err != nil {
			log.Printf("[samcobridge] WARNING: sqlite reader init failed: %v (stored bars disabled)", err)
			break
		}
		defer r.Close()
		sqlDB = r.DB()
		barReader = r
	}
	if barReader != nil {
		deps.Bars = barReader
	}
	if rdb != nil {
		deps.Latest = redisstore.NewReader(rdb)
	}
	if rdb != nil || sqlDB != nil {
		health.StartLivenessChecker(ctx, rdb, sqlDB, 10*time.Second)
	}

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[samcobridge] api listening on %s", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[samcobridge] api server error: %v", err)
		}
	}()

	log.Printf("[samcobridge] %s", markethours.StatusString(time.Now()))
	log.Printf("[samcobridge] next catalogue cutoff %s",
		markethours.NextCatalogueCutoff(time.Now()).In(markethours.IST).Format("Mon 02 Jan 15:04"))

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[samcobridge] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[samcobridge] api server shutdown: %v", err)
	}
	metricsSrv.Stop(shutdownCtx)

	if err := exec.Logout(shutdownCtx); err != nil {
		log.Printf("[samcobridge] logout failed: %v", err)
	}
	health.SetBrokerSession(false)
	if rdb != nil {
		rdb.Close()
	}

	log.Println("[samcobridge] shutdown complete.")
}

func login(ctx context.Context, exec *samco.Executor, cfg *config.Config) error {
	loginCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	resp, err := exec.Authorize(loginCtx, cfg.SamcoUserID, cfg.SamcoPassword, cfg.SamcoYOB)
	if err != nil {
		return err
	}
	slog.Info("broker session established",
		slog.String("component", "session"),
		slog.String("account", resp.AccountID))
	return nil
}

// refreshLoop reloads the catalogue after every daily cutoff. The cache
// itself decides whether a reload is due, so a late wake-up is harmless.
// A failed reload is retried with backoff until it succeeds or the next
// cutoff comes round.
func refreshLoop(ctx context.Context, cache *instruments.Cache) {
	for {
		now := time.Now()
		next := markethours.NextCatalogueCutoff(now)
		// small margin so the broker has published the new file
		wait := next.Sub(now) + 30*time.Second
		log.Printf("[samcobridge] next catalogue refresh in %v", wait.Truncate(time.Second))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 30 * time.Second
		b.MaxInterval = 15 * time.Minute
		untilNext := markethours.NextCatalogueCutoff(time.Now()).Sub(time.Now())
		if err := cache.RefreshUntilFresh(ctx, b, untilNext); err != nil {
			log.Printf("[samcobridge] catalogue refresh gave up, keeping previous snapshot: %v", err)
			continue
		}
		log.Printf("[samcobridge] catalogue refreshed: %d instruments (epoch %d)", cache.Len(), cache.Epoch())
	}
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier(nil)}
	if cfg.AlertWebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		n = append(n, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return n
}
