package instruments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"samco-bridge/internal/markethours"
	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rowReliance = "NSE,nse_cm,2885,RELIANCE-EQ,RELIANCE,1400,EQ,1,,,0.05"
	rowInfy     = "NSE,nse_cm,1594,INFY-EQ,INFOSYS,1500,EQ,1,,,0.05"
	rowNiftyCE  = "NFO,nse_fo,43210,NIFTY26MAR22500CE,NIFTY,120.5,OPTIDX,75,22500,2026-03-26,0.05"
	rowNiftyPE  = "NFO,nse_fo,43211,NIFTY26MAR22500PE,NIFTY,98,OPTIDX,75,22500,2026-03-26,0.05"
	rowNiftyFut = "NFO,nse_fo,35001,NIFTY26MARFUT,NIFTY,22510,FUTIDX,75,,2026-03-26,0.1"
	rowBadSfx   = "NFO,nse_fo,43299,NIFTY26MAR22500XX,NIFTY,1,OPTIDX,75,22500,2026-03-26,0.05"
	rowGold     = "MCX,mcx_fo,9001,GOLD26MARFUT,GOLD,70000,FUTCOM,1,,2026-03-26,1"
)

func catalogue(rows ...string) []byte {
	return []byte(strings.Join(columns, ",") + "\n" + strings.Join(rows, "\n") + "\n")
}

// fakeFetcher serves whatever body is currently set.
type fakeFetcher struct {
	mu    sync.Mutex
	body  []byte
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeFetcher) set(body []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body, f.err = body, err
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]byte, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body, f.err
}

func newTestCache(t *testing.T, rows ...string) (*Cache, *fakeFetcher) {
	t.Helper()
	f := &fakeFetcher{body: catalogue(rows...)}
	c, err := New(context.Background(), Config{Fetcher: f})
	require.NoError(t, err)
	return c, f
}

func TestCache_IndexRowsAlwaysPresent(t *testing.T) {
	c, _ := newTestCache(t)

	for _, name := range []string{"NIFTY", "BANKNIFTY", "FINNIFTY"} {
		code, err := c.LookupBySymbol(model.NewIndex(name))
		require.NoError(t, err, name)
		assert.True(t, strings.HasPrefix(code, "-"), "synthetic code for %s: %s", name, code)
	}
	assert.Equal(t, 3, c.Len())
}

func TestCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t, rowReliance, rowInfy, rowNiftyCE, rowNiftyPE, rowNiftyFut)

	require.Equal(t, 8, c.Len())
	for _, sym := range c.Symbols() {
		code, err := c.LookupBySymbol(sym)
		require.NoError(t, err)
		back, err := c.LookupByCode(code)
		require.NoError(t, err)
		assert.True(t, sym.Equal(back), "%s != %s", sym, back)
	}

	rec, err := c.RecordForCode("43211")
	require.NoError(t, err)
	assert.Equal(t, "NIFTY26MAR22500PE", rec.TradingSymbol)
	assert.EqualValues(t, 75, rec.LotSize)
}

func TestCache_DropsUnsupportedRows(t *testing.T) {
	var stats RefreshStats
	f := &fakeFetcher{body: catalogue(rowReliance, rowBadSfx, rowGold)}
	c, err := New(context.Background(), Config{Fetcher: f, OnRefresh: func(s RefreshStats) { stats = s }})
	require.NoError(t, err)

	assert.Equal(t, 4, c.Len())
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 1, stats.Skipped)
	_, err = c.LookupByCode("43299")
	var nf *samco.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestCache_Staleness(t *testing.T) {
	c, f := newTestCache(t, rowReliance, rowInfy)

	_, err := c.LookupByCode("1594")
	require.NoError(t, err)

	f.set(catalogue(rowReliance), nil)
	require.NoError(t, c.Refresh(context.Background()))

	_, err = c.LookupByCode("1594")
	var nf *samco.NotFoundError
	require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
	assert.Equal(t, "1594", nf.Key)
	assert.Contains(t, nf.Caller, "TestCache_Staleness")

	_, err = c.LookupBySymbol(model.NewEquity("INFY"))
	assert.True(t, errors.As(err, &nf))
	assert.EqualValues(t, 2, c.Epoch())
}

func TestCache_FailedRefreshKeepsSnapshot(t *testing.T) {
	c, f := newTestCache(t, rowReliance)
	before := c.LoadedAt()

	bad := strings.Replace(rowNiftyCE, "2026-03-26", "26/03/2026", 1)
	f.set(catalogue(rowInfy, bad), nil)
	err := c.Refresh(context.Background())
	var pe *samco.ParseError
	require.True(t, errors.As(err, &pe), "expected ParseError, got %v", err)

	// nothing from the rejected catalogue is visible
	_, err = c.LookupByCode("1594")
	assert.Error(t, err)
	_, err = c.LookupByCode("2885")
	assert.NoError(t, err)
	assert.Equal(t, before, c.LoadedAt())
	assert.EqualValues(t, 1, c.Epoch())
}

func TestCache_FetchErrorUnchanged(t *testing.T) {
	boom := errors.New("connection reset")
	c, f := newTestCache(t, rowReliance)
	f.set(nil, boom)

	err := c.Refresh(context.Background())
	assert.Same(t, boom, err)

	_, err = New(context.Background(), Config{Fetcher: f})
	assert.Same(t, boom, err)
}

// Two catalogues reuse the same codes for different instruments. A reader
// must never see a code from one epoch paired with the other epoch's record.
func TestCache_RefreshAtomicity(t *testing.T) {
	epochA := catalogue(
		"NSE,nse_cm,100,AAA-EQ,AAA,1,EQ,1,,,0.05",
		"NSE,nse_cm,101,BBB-EQ,BBB,1,EQ,1,,,0.05",
	)
	epochB := catalogue(
		"NSE,nse_cm,100,ZZZ-EQ,ZZZ,1,EQ,1,,,0.05",
		"NSE,nse_cm,101,YYY-EQ,YYY,1,EQ,1,,,0.05",
	)
	f := &fakeFetcher{body: epochA}
	c, err := New(context.Background(), Config{Fetcher: f})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		flip := false
		for ctx.Err() == nil {
			if flip {
				f.set(epochA, nil)
			} else {
				f.set(epochB, nil)
			}
			flip = !flip
			assert.NoError(t, c.Refresh(context.Background()))
		}
	}()

	var mismatches atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				rec, sym, err := c.Resolve("100")
				if err != nil {
					mismatches.Add(1)
					continue
				}
				if rec.TradingSymbol != sym.Ticker+"-EQ" {
					mismatches.Add(1)
				}
				code, err := c.LookupBySymbol(sym)
				if err == nil && code != "100" {
					mismatches.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, mismatches.Load())
	assert.Greater(t, c.Epoch(), uint64(1))
}

func TestRefreshDue(t *testing.T) {
	at := func(d, hh, mm int) time.Time { return time.Date(2026, 3, d, hh, mm, 0, 0, markethours.IST) }
	tests := []struct {
		name      string
		last, now time.Time
		want      bool
	}{
		{"never loaded", time.Time{}, at(10, 9, 0), true},
		{"loaded after today's cutoff", at(10, 8, 50), at(10, 15, 0), false},
		{"loaded before today's cutoff", at(10, 8, 0), at(10, 9, 0), true},
		{"loaded yesterday, now before cutoff", at(9, 12, 0), at(10, 8, 0), false},
		{"loaded yesterday morning, now before cutoff", at(9, 8, 0), at(10, 8, 0), true},
		{"loaded exactly at cutoff", at(10, 8, 45), at(10, 8, 45), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RefreshDue(tt.last, tt.now))
		})
	}
}

func TestCache_RefreshIfDueCoalesces(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, markethours.IST)
	var clock atomic.Pointer[time.Time]
	clock.Store(&now)

	f := &fakeFetcher{body: catalogue(rowReliance)}
	c, err := New(context.Background(), Config{Fetcher: f, Now: func() time.Time { return *clock.Load() }})
	require.NoError(t, err)
	require.EqualValues(t, 1, f.calls.Load())

	require.NoError(t, c.RefreshIfDue(context.Background()))
	assert.EqualValues(t, 1, f.calls.Load(), "no cutoff crossed")

	later := now.Add(2 * time.Hour)
	clock.Store(&later)
	f.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.RefreshIfDue(context.Background()))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 2, f.calls.Load())
}

type memStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	ttl   time.Duration
	loads int
}

func (m *memStore) LoadCatalogue(ctx context.Context, day string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return m.data[day], nil
}

func (m *memStore) DeleteCatalogue(ctx context.Context, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, day)
	return nil
}

func (m *memStore) SaveCatalogue(ctx context.Context, day string, csv []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[day] = csv
	m.ttl = ttl
	return nil
}

func TestStoreFetcher(t *testing.T) {
	now := time.Date(2026, 3, 10, 7, 45, 0, 0, markethours.IST)
	origin := &fakeFetcher{body: catalogue(rowReliance)}
	store := &memStore{data: map[string][]byte{}}
	sf := &StoreFetcher{Next: origin, Store: store, Now: func() time.Time { return now }}

	raw, err := sf.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, origin.body, raw)
	assert.Empty(t, store.data, "fetch alone never publishes")

	sf.Publish(context.Background(), raw)
	// before the cutoff the catalogue belongs to the previous day
	assert.Contains(t, store.data, "2026-03-09")
	assert.Equal(t, time.Hour, store.ttl)

	_, err = sf.Fetch(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, origin.calls.Load())
	assert.Equal(t, 2, store.loads)
}

func TestCache_PublishesOnlyCleanCatalogue(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, markethours.IST)
	origin := &fakeFetcher{body: catalogue(rowReliance, "NFO,nse_fo,777,TCS26MARFUT,TCS,1,FUTSTK,1,,not-a-date,0.05")}
	store := &memStore{data: map[string][]byte{}}
	sf := &StoreFetcher{Next: origin, Store: store, Now: func() time.Time { return now }}

	_, err := New(context.Background(), Config{Fetcher: sf, Now: func() time.Time { return now }})
	var pe *samco.ParseError
	require.True(t, errors.As(err, &pe), "expected ParseError, got %v", err)
	assert.Empty(t, store.data)

	origin.set(catalogue(rowReliance), nil)
	c, err := New(context.Background(), Config{Fetcher: sf, Now: func() time.Time { return now }})
	require.NoError(t, err)
	assert.Equal(t, catalogue(rowReliance), store.data["2026-03-10"])
	assert.Equal(t, 4, c.Len())
}

func TestCache_RecoversFromBadSharedCatalogue(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, markethours.IST)
	bad := catalogue(rowReliance, "NFO,nse_fo,777,TCS26MARFUT,TCS,1,FUTSTK,1,,not-a-date,0.05")
	origin := &fakeFetcher{body: catalogue(rowReliance, rowInfy)}
	store := &memStore{data: map[string][]byte{"2026-03-10": bad}}
	sf := &StoreFetcher{Next: origin, Store: store, Now: func() time.Time { return now }}

	c, err := New(context.Background(), Config{Fetcher: sf, Now: func() time.Time { return now }})
	require.NoError(t, err)
	assert.EqualValues(t, 1, origin.calls.Load())
	assert.Equal(t, origin.body, store.data["2026-03-10"], "good origin copy replaces the bad one")

	_, err = c.LookupBySymbol(model.NewEquity("INFY"))
	require.NoError(t, err)

	// later refreshes are served from the repaired store
	require.NoError(t, c.Refresh(context.Background()))
	assert.EqualValues(t, 1, origin.calls.Load())
}

func TestCache_RefreshUntilFresh(t *testing.T) {
	var calls atomic.Int32
	fetch := FetcherFunc(func(context.Context) ([]byte, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return catalogue(rowReliance), nil
	})
	c := newCache(Config{Fetcher: fetch})

	err := c.RefreshUntilFresh(context.Background(), backoff.NewConstantBackOff(time.Millisecond), time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	assert.EqualValues(t, 1, c.Epoch())

	// already fresh: no further download
	require.NoError(t, c.RefreshUntilFresh(context.Background(), backoff.NewConstantBackOff(time.Millisecond), time.Minute))
	assert.EqualValues(t, 3, calls.Load())
}

func TestCache_RefreshUntilFreshGivesUp(t *testing.T) {
	fetch := FetcherFunc(func(context.Context) ([]byte, error) { return nil, errors.New("down") })
	c := newCache(Config{Fetcher: fetch})

	err := c.RefreshUntilFresh(context.Background(), backoff.NewConstantBackOff(5*time.Millisecond), 30*time.Millisecond)
	require.Error(t, err)
	assert.Zero(t, c.Epoch())
}
