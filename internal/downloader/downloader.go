// Package downloader bulk-fetches broker history for a list of tickers and
// writes the bars to a model.BarWriter.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"
	"sync"
	"time"

	"samco-bridge/internal/history"
	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"

	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 4
	writeBatch         = 1000
)

// HistorySource is satisfied by *history.Assembler.
type HistorySource interface {
	History(ctx context.Context, r history.Request) (iter.Seq2[model.Bar, error], error)
}

// Config describes one download job.
type Config struct {
	Tickers      []string
	SecurityType model.SecurityType
	Market       string
	Resolution   model.Resolution
	Start        time.Time
	End          time.Time
	Expiry       time.Time // futures only
	Concurrency  int
}

// Result reports the outcome for one ticker.
type Result struct {
	Ticker string
	Symbol model.Symbol
	Bars   int
	Err    error
}

// Downloader runs download jobs.
type Downloader struct {
	src    HistorySource
	writer model.BarWriter

	// LastStored, when set, reports the newest bar already in the sink.
	// Each ticker then resumes one period after it instead of at Start.
	LastStored func(ctx context.Context, sym model.Symbol, period time.Duration) (time.Time, error)
}

func New(src HistorySource, writer model.BarWriter) *Downloader {
	return &Downloader{src: src, writer: writer}
}

// Validate checks the job before any broker call.
func Validate(cfg Config) error {
	if len(cfg.Tickers) == 0 {
		return &samco.ValidationError{Field: "tickers", Reason: "at least one ticker required"}
	}
	if cfg.Market != "" && !strings.EqualFold(cfg.Market, model.MarketIndia) {
		return &samco.ValidationError{Field: "market", Reason: fmt.Sprintf("unsupported market %q", cfg.Market)}
	}
	switch cfg.SecurityType {
	case model.SecurityEquity, model.SecurityIndex:
	case model.SecurityFuture:
		if cfg.Expiry.IsZero() {
			return &samco.ValidationError{Field: "expiry", Reason: "futures need an expiry"}
		}
	default:
		return &samco.ValidationError{Field: "security_type", Reason: cfg.SecurityType.String() + " not supported by the downloader"}
	}
	if !cfg.Start.Before(cfg.End) {
		return &samco.ValidationError{Field: "range", Reason: "start must precede end"}
	}
	if cfg.Resolution == model.ResolutionTick || cfg.Resolution == model.ResolutionSecond {
		return &samco.ValidationError{Field: "resolution", Reason: cfg.Resolution.String() + " not supported"}
	}
	return nil
}

// SymbolFor builds the canonical symbol a ticker stands for in cfg.
func SymbolFor(ticker string, cfg Config) model.Symbol {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	switch cfg.SecurityType {
	case model.SecurityIndex:
		return model.NewIndex(ticker)
	case model.SecurityFuture:
		return model.NewFuture(ticker, cfg.Expiry)
	default:
		return model.NewEquity(ticker)
	}
}

// Run downloads every ticker. A failing ticker is reported in its Result and
// does not stop the others; the returned error is non-nil only for an
// invalid job or a cancelled context.
func (d *Downloader) Run(ctx context.Context, cfg Config) ([]Result, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	n := cfg.Concurrency
	if n <= 0 {
		n = defaultConcurrency
	}

	results := make([]Result, len(cfg.Tickers))
	var writeMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for i, ticker := range cfg.Tickers {
		sym := SymbolFor(ticker, cfg)
		results[i] = Result{Ticker: ticker, Symbol: sym}
		g.Go(func() error {
			bars, err := d.one(gctx, sym, cfg, &writeMu)
			results[i].Bars = bars
			results[i].Err = err
			if err != nil {
				log.Printf("[downloader] %s: %v", ticker, err)
			} else {
				log.Printf("[downloader] %s: saved %d bars", ticker, bars)
			}
			// per-ticker failures never cancel the group
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (d *Downloader) one(ctx context.Context, sym model.Symbol, cfg Config, writeMu *sync.Mutex) (int, error) {
	start := cfg.Start
	if d.LastStored != nil {
		period := cfg.Resolution.Span()
		last, err := d.LastStored(ctx, sym, period)
		if err != nil {
			return 0, fmt.Errorf("resume point: %w", err)
		}
		if !last.IsZero() && last.Add(period).After(start) {
			start = last.Add(period)
		}
		if !start.Before(cfg.End) {
			log.Printf("[downloader] %s: up to date (last bar %s)", sym.Ticker, last.Format("2006-01-02 15:04"))
			return 0, nil
		}
	}

	seq, err := d.src.History(ctx, history.Request{
		Symbol:     sym,
		Resolution: cfg.Resolution,
		TickType:   model.TickTrade,
		Start:      start,
		End:        cfg.End,
	})
	if err != nil {
		var nf *samco.NotFoundError
		if errors.As(err, &nf) {
			return 0, fmt.Errorf("ticker %s is not available: %w", sym.Ticker, err)
		}
		return 0, err
	}

	written := 0
	batch := make([]model.Bar, 0, writeBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		writeMu.Lock()
		err := d.writer.WriteBars(ctx, batch)
		writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("write bars: %w", err)
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	for bar, err := range seq {
		if err != nil {
			return written, err
		}
		batch = append(batch, bar)
		if len(batch) == writeBatch {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	return written, flush()
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
