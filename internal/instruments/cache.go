// Package instruments keeps the broker's instrument master in memory.
//
// The Cache downloads the scrip master, classifies each retained row into a
// canonical model.Symbol and serves lookups in both directions. A refresh
// builds a complete new snapshot without holding the lock and then swaps it
// in, so readers always see either the old or the new catalogue in full.
package instruments

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"samco-bridge/internal/markethours"
	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
)

// snapshot is one immutable catalogue epoch.
type snapshot struct {
	epoch        uint64
	loadedAt     time.Time
	recordByCode map[string]model.InstrumentRecord
	codeBySymbol map[string]string // model.Symbol.Key() -> code
	symbolByCode map[string]model.Symbol
	records      []model.InstrumentRecord
	symbols      []model.Symbol
}

// RefreshStats describes one refresh attempt.
type RefreshStats struct {
	Duration    time.Duration
	Instruments int
	Skipped     int // rows outside the retained exchanges/classes
	Dropped     int // retained rows that could not be classified, plus duplicates
	Err         error
}

// Config configures a Cache.
type Config struct {
	Fetcher Fetcher
	Now     func() time.Time // default: time.Now

	// OnRefresh is called after every refresh attempt (for metrics).
	OnRefresh func(RefreshStats)
}

// Cache is the instrument master cache. Safe for concurrent use.
type Cache struct {
	fetcher   Fetcher
	now       func() time.Time
	onRefresh func(RefreshStats)

	mu   sync.RWMutex
	snap *snapshot

	sf singleflight.Group
}

// New creates the cache and performs the initial refresh.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	c := newCache(cfg)
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newCache(cfg Config) *Cache {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		fetcher:   cfg.Fetcher,
		now:       cfg.Now,
		onRefresh: cfg.OnRefresh,
		snap:      emptySnapshot(),
	}
}

func emptySnapshot() *snapshot {
	return &snapshot{
		recordByCode: map[string]model.InstrumentRecord{},
		codeBySymbol: map[string]string{},
		symbolByCode: map[string]model.Symbol{},
	}
}

// Refresh downloads the catalogue and replaces every index at once.
// A fetch error is returned unchanged. A malformed retained row fails the
// refresh and the previous snapshot stays in place. With a SharedFetcher, a
// rejected shared copy is replaced by an origin download, and only a
// catalogue that built cleanly is published.
func (c *Cache) Refresh(ctx context.Context) error {
	start := time.Now()
	stats := RefreshStats{}
	defer func() {
		stats.Duration = time.Since(start)
		if c.onRefresh != nil {
			c.onRefresh(stats)
		}
	}()

	raw, err := c.fetcher.Fetch(ctx)
	if err != nil {
		stats.Err = err
		slog.Error("catalogue download failed", slog.String("component", "instruments"), slog.Any("error", err))
		return err
	}

	next, skipped, dropped, err := build(raw)
	shared, isShared := c.fetcher.(SharedFetcher)
	if err != nil && isShared {
		slog.Warn("shared catalogue rejected, downloading from origin",
			slog.String("component", "instruments"), slog.Any("error", err))
		if raw, err = shared.Origin(ctx); err != nil {
			stats.Err = err
			slog.Error("catalogue download failed", slog.String("component", "instruments"), slog.Any("error", err))
			return err
		}
		next, skipped, dropped, err = build(raw)
	}
	stats.Skipped, stats.Dropped = skipped, dropped
	if err != nil {
		stats.Err = err
		slog.Error("catalogue rejected, keeping previous snapshot",
			slog.String("component", "instruments"), slog.Any("error", err))
		return err
	}
	next.loadedAt = c.now()

	c.mu.Lock()
	next.epoch = c.snap.epoch + 1
	c.snap = next
	c.mu.Unlock()

	if isShared {
		shared.Publish(ctx, raw)
	}

	stats.Instruments = len(next.records)
	slog.Info("catalogue refreshed",
		slog.String("component", "instruments"),
		slog.Uint64("epoch", next.epoch),
		slog.Int("instruments", len(next.records)),
		slog.Int("skipped", skipped),
		slog.Int("dropped", dropped),
		slog.Duration("took", time.Since(start)))
	return nil
}

// build parses and classifies raw into a new snapshot.
func build(raw []byte) (snap *snapshot, skipped, dropped int, err error) {
	records, skipped, err := parseCatalogue(bytes.NewReader(injectIndexRows(raw)))
	if err != nil {
		return nil, skipped, 0, err
	}

	s := emptySnapshot()
	s.records = make([]model.InstrumentRecord, 0, len(records))
	s.symbols = make([]model.Symbol, 0, len(records))

	for i := range records {
		rec := records[i]
		sym, err := Classify(&rec)
		if err != nil {
			var unsup *samco.UnsupportedInstrumentError
			if errors.As(err, &unsup) {
				dropped++
				slog.Warn("dropping catalogue row", slog.String("component", "instruments"), slog.Any("error", err))
				continue
			}
			return nil, skipped, dropped, err
		}

		key := sym.Key()
		if _, dup := s.recordByCode[rec.SymbolCode]; dup {
			dropped++
			continue
		}
		if prev, dup := s.codeBySymbol[key]; dup {
			dropped++
			slog.Debug("duplicate canonical symbol, keeping first row",
				slog.String("component", "instruments"),
				slog.String("symbol", key),
				slog.String("kept", prev),
				slog.String("dropped", rec.SymbolCode))
			continue
		}

		s.recordByCode[rec.SymbolCode] = rec
		s.codeBySymbol[key] = rec.SymbolCode
		s.symbolByCode[rec.SymbolCode] = sym
		s.records = append(s.records, rec)
		s.symbols = append(s.symbols, sym)
	}
	return s, skipped, dropped, nil
}

// RefreshDue reports whether a snapshot loaded at last is stale at now:
// true when an 08:45 IST cutoff lies in (last, now].
func RefreshDue(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return last.Before(markethours.LastCatalogueCutoff(now))
}

// RefreshIfDue refreshes when the daily cutoff has passed since the last
// load. Concurrent callers share a single download.
func (c *Cache) RefreshIfDue(ctx context.Context) error {
	if !RefreshDue(c.LoadedAt(), c.now()) {
		return nil
	}
	_, err, _ := c.sf.Do("refresh", func() (any, error) {
		// another caller may have finished a refresh while we queued
		if !RefreshDue(c.LoadedAt(), c.now()) {
			return nil, nil
		}
		return nil, c.Refresh(ctx)
	})
	return err
}

// RefreshUntilFresh calls RefreshIfDue until it succeeds, waiting between
// attempts as b dictates, and gives up after maxElapsed. The previous
// snapshot keeps serving while attempts fail.
func (c *Cache) RefreshUntilFresh(ctx context.Context, b backoff.BackOff, maxElapsed time.Duration) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.RefreshIfDue(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("catalogue refresh failed, retrying",
				slog.String("component", "instruments"),
				slog.Duration("in", wait),
				slog.Any("error", err))
		}),
	)
	return err
}

func (c *Cache) current() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// LoadedAt returns when the current snapshot was published (zero before the first refresh).
func (c *Cache) LoadedAt() time.Time {
	return c.current().loadedAt
}

// Epoch increments with every successful refresh.
func (c *Cache) Epoch() uint64 {
	return c.current().epoch
}

// Len returns the number of retained instruments.
func (c *Cache) Len() int {
	return len(c.current().records)
}

// LookupByCode returns the canonical symbol for a broker code.
func (c *Cache) LookupByCode(code string) (model.Symbol, error) {
	s := c.current()
	sym, ok := s.symbolByCode[code]
	if !ok {
		return model.Symbol{}, &samco.NotFoundError{Kind: "code", Key: code, Caller: callerName()}
	}
	return sym, nil
}

// LookupBySymbol returns the broker code for a canonical symbol.
func (c *Cache) LookupBySymbol(sym model.Symbol) (string, error) {
	s := c.current()
	code, ok := s.codeBySymbol[sym.Key()]
	if !ok {
		return "", &samco.NotFoundError{Kind: "symbol", Key: sym.Key(), Caller: callerName()}
	}
	return code, nil
}

// RecordForCode returns the catalogue row for a broker code.
func (c *Cache) RecordForCode(code string) (model.InstrumentRecord, error) {
	s := c.current()
	rec, ok := s.recordByCode[code]
	if !ok {
		return model.InstrumentRecord{}, &samco.NotFoundError{Kind: "code", Key: code, Caller: callerName()}
	}
	return rec, nil
}

// RecordForSymbol returns the catalogue row behind a canonical symbol. The
// code and the row come from the same snapshot.
func (c *Cache) RecordForSymbol(sym model.Symbol) (model.InstrumentRecord, error) {
	s := c.current()
	code, ok := s.codeBySymbol[sym.Key()]
	if !ok {
		return model.InstrumentRecord{}, &samco.NotFoundError{Kind: "symbol", Key: sym.Key(), Caller: callerName()}
	}
	return s.recordByCode[code], nil
}

// Resolve returns the record and symbol for a code from the same snapshot.
func (c *Cache) Resolve(code string) (model.InstrumentRecord, model.Symbol, error) {
	s := c.current()
	rec, ok := s.recordByCode[code]
	if !ok {
		return model.InstrumentRecord{}, model.Symbol{}, &samco.NotFoundError{Kind: "code", Key: code, Caller: callerName()}
	}
	return rec, s.symbolByCode[code], nil
}

// Symbols returns the canonical symbols of the current snapshot.
// The slice is shared; callers must not modify it.
func (c *Cache) Symbols() []model.Symbol {
	return c.current().symbols
}

// callerName names the function that called the exported lookup.
func callerName() string {
	var pcs [1]uintptr
	if runtime.Callers(3, pcs[:]) == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames(pcs[:]).Next()
	name := frame.Function
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
