package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"samco-bridge/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySink struct {
	mu      sync.Mutex
	fail    bool
	written []model.Bar
}

func (s *flakySink) WriteBars(_ context.Context, bars []model.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("connection refused")
	}
	s.written = append(s.written, bars...)
	return nil
}

func (s *flakySink) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *flakySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

func minuteBar(i int) model.Bar {
	return model.Bar{
		Symbol: model.NewEquity("RELIANCE"),
		Time:   time.Unix(1_773_114_300+int64(i)*60, 0).UTC(),
		Period: time.Minute,
		Open:   decimal.NewFromInt(1400), High: decimal.NewFromInt(1401),
		Low: decimal.NewFromInt(1399), Close: decimal.NewFromInt(1400),
		Volume: 10,
	}
}

func TestBufferedWriter_BuffersWhileOpenAndFlushesOnClose(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var clockMu sync.Mutex
	cb := NewCircuitBreaker("bars", 1, time.Second)
	cb.now = func() time.Time { clockMu.Lock(); defer clockMu.Unlock(); return now }

	sink := &flakySink{fail: true}
	bw := NewBufferedWriter(context.Background(), sink, cb, 100)

	flushed := make(chan int, 1)
	bw.OnFlush = func(n int) { flushed <- n }

	// first failure trips the breaker and is returned
	err := bw.WriteBars(context.Background(), []model.Bar{minuteBar(0)})
	require.Error(t, err)
	require.Equal(t, StateOpen, cb.CurrentState())

	// while open, writes are buffered
	require.NoError(t, bw.WriteBars(context.Background(), []model.Bar{minuteBar(1), minuteBar(2)}))
	assert.Equal(t, 2, bw.PendingCount())

	sink.setFail(false)
	clockMu.Lock()
	now = now.Add(2 * time.Second)
	clockMu.Unlock()

	require.NoError(t, bw.WriteBars(context.Background(), []model.Bar{minuteBar(3)}))

	select {
	case n := <-flushed:
		assert.Equal(t, 2, n)
	case <-time.After(2 * time.Second):
		t.Fatal("buffer was not flushed after the circuit closed")
	}
	assert.Equal(t, 3, sink.count())
	assert.Zero(t, bw.PendingCount())
}

func TestBufferedWriter_DropsOldest(t *testing.T) {
	cb := NewCircuitBreaker("bars", 1, time.Hour)
	sink := &flakySink{fail: true}
	bw := NewBufferedWriter(context.Background(), sink, cb, 3)

	_ = bw.WriteBars(context.Background(), []model.Bar{minuteBar(0)})
	for i := 1; i <= 5; i++ {
		require.NoError(t, bw.WriteBars(context.Background(), []model.Bar{minuteBar(i)}))
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()
	require.Len(t, bw.buffer, 3)
	assert.True(t, bw.buffer[0].Time.Equal(minuteBar(3).Time))
}

func TestCollectBars(t *testing.T) {
	sym := model.NewEquity("RELIANCE")
	msg := func(id string, b model.Bar) goredis.XMessage {
		return goredis.XMessage{ID: id, Values: barFields(&b)}
	}
	rewritten := minuteBar(1)
	rewritten.Close = decimal.NewFromInt(1402)

	msgs := []goredis.XMessage{
		msg("1-0", minuteBar(2)),
		msg("2-0", minuteBar(1)),
		msg("3-0", minuteBar(0)),
		msg("4-0", rewritten),
		msg("5-0", minuteBar(9)),
	}
	bars, err := collectBars(sym, time.Minute, minuteBar(0).Time, minuteBar(3).Time, msgs)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.True(t, bars[0].Time.Equal(minuteBar(0).Time))
	assert.Equal(t, "1402", bars[1].Close.String())
	assert.EqualValues(t, 10, bars[2].Volume)
}

func TestParseBar_StringFields(t *testing.T) {
	b, err := parseBar(model.NewIndex("NIFTY"), 24*time.Hour, map[string]any{
		"ts": "1773100800", "open": "22400.5", "high": "22550", "low": "22380", "close": "22510", "volume": "0",
	})
	require.NoError(t, err)
	assert.Equal(t, "22400.5", b.Open.String())

	_, err = parseBar(model.NewIndex("NIFTY"), 24*time.Hour, map[string]any{"ts": "x"})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	sym := model.NewEquity("RELIANCE")
	assert.Equal(t, "bars:60s:Equity|india|RELIANCE", StreamKey(sym, time.Minute))
	assert.Equal(t, "latest:bars:86400s:Equity|india|RELIANCE", LatestKey(sym, 24*time.Hour))
	assert.Equal(t, "samco:scripmaster:2026-03-10", CatalogueKey("2026-03-10"))
}
