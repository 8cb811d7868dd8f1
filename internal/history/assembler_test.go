package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"samco-bridge/internal/markethours"
	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type candleCall struct {
	endpoint         string
	name, exchange   string
	from, to, interv string
}

type fakeSource struct {
	mu       sync.Mutex
	calls    []candleCall
	intraday []samco.IntradayCandle
	daily    []samco.HistoricalCandle
	err      error
}

func (f *fakeSource) record(c candleCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeSource) IntradayCandles(_ context.Context, symbolName, exchange, from, to, interval string) (*samco.IntradayCandleResponse, error) {
	f.record(candleCall{"intraday", symbolName, exchange, from, to, interval})
	return &samco.IntradayCandleResponse{IntradayCandleData: f.intraday}, f.err
}

func (f *fakeSource) IndexIntradayCandles(_ context.Context, indexName, from, to, interval string) (*samco.IndexIntradayCandleResponse, error) {
	f.record(candleCall{"index-intraday", indexName, "", from, to, interval})
	return &samco.IndexIntradayCandleResponse{IndexIntradayCandleData: f.intraday}, f.err
}

func (f *fakeSource) HistoricalCandles(_ context.Context, symbolName, exchange, from, to string) (*samco.HistoricalCandleResponse, error) {
	f.record(candleCall{"historical", symbolName, exchange, from, to, ""})
	return &samco.HistoricalCandleResponse{HistoricalCandleData: f.daily}, f.err
}

func (f *fakeSource) IndexHistoricalCandles(_ context.Context, indexName, from, to string) (*samco.IndexHistoricalCandleResponse, error) {
	f.record(candleCall{"index-historical", indexName, "", from, to, ""})
	return &samco.IndexHistoricalCandleResponse{IndexHistoricalCandleData: f.daily}, f.err
}

type fakeResolver map[string]model.InstrumentRecord

func (r fakeResolver) Record(sym model.Symbol) (model.InstrumentRecord, error) {
	rec, ok := r[sym.Key()]
	if !ok {
		return model.InstrumentRecord{}, &samco.NotFoundError{Kind: "symbol", Key: sym.Key()}
	}
	return rec, nil
}

var (
	nifty    = model.NewIndex("NIFTY")
	reliance = model.NewEquity("RELIANCE")

	resolver = fakeResolver{
		nifty.Key():    {Exchange: "NSE", SymbolCode: "-21", TradingSymbol: "NIFTY", Name: "NIFTY 50", Instrument: model.ClassIndex},
		reliance.Key(): {Exchange: "NSE", SymbolCode: "2885", TradingSymbol: "RELIANCE", Name: "RELIANCE", Instrument: model.ClassEquity},
	}

	t0 = time.Date(2026, 3, 10, 9, 15, 0, 0, markethours.IST)
)

func TestValidate_StartNotBeforeEnd(t *testing.T) {
	for _, res := range []model.Resolution{
		model.ResolutionTick, model.ResolutionSecond, model.ResolutionMinute, model.ResolutionHour, model.ResolutionDaily,
	} {
		for _, end := range []time.Time{t0, t0.Add(-time.Minute)} {
			a := NewAssembler(&fakeSource{}, resolver)
			_, err := a.History(context.Background(), Request{
				Symbol: reliance, Resolution: res, TickType: model.TickTrade, Start: t0, End: end,
			})
			var ve *samco.ValidationError
			assert.True(t, errors.As(err, &ve), "resolution %s: expected ValidationError, got %v", res, err)
		}
	}
}

func TestValidate_Rejections(t *testing.T) {
	base := Request{Symbol: reliance, Resolution: model.ResolutionMinute, TickType: model.TickTrade, Start: t0, End: t0.Add(time.Hour)}

	tests := []struct {
		name  string
		mut   func(r *Request)
		field string
	}{
		{"quote ticks", func(r *Request) { r.TickType = model.TickQuote }, "tick_type"},
		{"unknown security", func(r *Request) { r.Symbol = model.Symbol{Ticker: "X"} }, "security_type"},
		{"tick resolution", func(r *Request) { r.Resolution = model.ResolutionTick }, "resolution"},
		{"second resolution", func(r *Request) { r.Resolution = model.ResolutionSecond }, "resolution"},
		{"out of range resolution", func(r *Request) { r.Resolution = model.Resolution(42) }, "resolution"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mut(&r)
			var ve *samco.ValidationError
			err := Validate(r)
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.NoError(t, Validate(base))
}

func TestSelectEndpoint(t *testing.T) {
	assert.Equal(t, EndpointIndexHistorical, SelectEndpoint(model.SecurityIndex, model.ResolutionDaily))
	assert.Equal(t, EndpointIndexIntraday, SelectEndpoint(model.SecurityIndex, model.ResolutionMinute))
	assert.Equal(t, EndpointIndexIntraday, SelectEndpoint(model.SecurityIndex, model.ResolutionHour))
	assert.Equal(t, EndpointHistorical, SelectEndpoint(model.SecurityEquity, model.ResolutionDaily))
	assert.Equal(t, EndpointIntraday, SelectEndpoint(model.SecurityIndexOption, model.ResolutionHour))
	assert.Equal(t, EndpointIntraday, SelectEndpoint(model.SecurityFuture, model.ResolutionMinute))
}

func TestHistory_IndexDailyCallsIndexHistoryOnce(t *testing.T) {
	src := &fakeSource{daily: []samco.HistoricalCandle{
		{Date: "2026-03-10", Open: "22400", High: "22550.5", Low: "22380", Close: "22510", Volume: "0"},
		{Date: "2026-03-11", Open: "22510", High: "22600", Low: "22450", Close: "22580.25", Volume: ""},
	}}
	a := NewAssembler(src, resolver)

	var reported int
	a.OnBars = func(ep Endpoint, n int) {
		assert.Equal(t, EndpointIndexHistorical, ep)
		reported = n
	}

	seq, err := a.History(context.Background(), Request{
		Symbol: nifty, Resolution: model.ResolutionDaily, TickType: model.TickTrade,
		Start: t0, End: t0.AddDate(0, 0, 2),
	})
	require.NoError(t, err)
	assert.Empty(t, src.calls, "broker must not be called before iteration")

	bars, err := Collect(seq)
	require.NoError(t, err)

	require.Len(t, src.calls, 1)
	call := src.calls[0]
	assert.Equal(t, "index-historical", call.endpoint)
	assert.Equal(t, "NIFTY 50", call.name)
	assert.Equal(t, "2026-03-10", call.from)
	assert.Equal(t, "2026-03-12", call.to)

	require.Len(t, bars, 2)
	assert.Equal(t, 2, reported)
	assert.Equal(t, 24*time.Hour, bars[0].Period)
	assert.True(t, bars[1].Close.Equal(decimal.RequireFromString("22580.25")))
	assert.True(t, bars[0].Symbol.Equal(nifty))
	assert.True(t, bars[1].Time.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, markethours.IST)))
}

func TestHistory_IntradayUsesTradingSymbolAndIST(t *testing.T) {
	src := &fakeSource{intraday: []samco.IntradayCandle{
		{DateTime: "2026-03-10 09:15:00.0", Open: "1400", High: "1402", Low: "1399.5", Close: "1401", Volume: "12500"},
		{DateTime: "2026-03-10 10:15:00", Open: "1401", High: "1405", Low: "1400", Close: "1404", Volume: "9800.0"},
	}}
	a := NewAssembler(src, resolver)

	// 03:45 UTC is 09:15 IST
	start := time.Date(2026, 3, 10, 3, 45, 0, 0, time.UTC)
	seq, err := a.History(context.Background(), Request{
		Symbol: reliance, Resolution: model.ResolutionHour, TickType: model.TickTrade,
		Start: start, End: start.Add(6 * time.Hour),
	})
	require.NoError(t, err)
	bars, err := Collect(seq)
	require.NoError(t, err)

	require.Len(t, src.calls, 1)
	call := src.calls[0]
	assert.Equal(t, "intraday", call.endpoint)
	assert.Equal(t, "RELIANCE", call.name)
	assert.Equal(t, "NSE", call.exchange)
	assert.Equal(t, "2026-03-10 09:15:00", call.from)
	assert.Equal(t, "2026-03-10 15:15:00", call.to)
	assert.Equal(t, "60", call.interv)

	require.Len(t, bars, 2)
	assert.Equal(t, time.Hour, bars[0].Period)
	assert.EqualValues(t, 9800, bars[1].Volume)
	assert.True(t, bars[0].Time.Equal(start))
	assert.True(t, bars[1].EndTime().Equal(start.Add(2*time.Hour)))
}

func TestHistory_SequenceIsSingleUse(t *testing.T) {
	src := &fakeSource{intraday: []samco.IntradayCandle{
		{DateTime: "2026-03-10 09:15:00", Open: "1", High: "1", Low: "1", Close: "1", Volume: "1"},
	}}
	a := NewAssembler(src, resolver)
	seq, err := a.History(context.Background(), Request{
		Symbol: nifty, Resolution: model.ResolutionMinute, TickType: model.TickTrade, Start: t0, End: t0.Add(time.Minute),
	})
	require.NoError(t, err)

	_, err = Collect(seq)
	require.NoError(t, err)
	_, err = Collect(seq)
	assert.Error(t, err)
	assert.Len(t, src.calls, 1)
	assert.Equal(t, "1", src.calls[0].interv)
}

func TestHistory_EarlyBreak(t *testing.T) {
	src := &fakeSource{daily: []samco.HistoricalCandle{
		{Date: "2026-03-10", Open: "1", High: "1", Low: "1", Close: "1"},
		{Date: "2026-03-11", Open: "1", High: "1", Low: "1", Close: "1"},
		{Date: "2026-03-12", Open: "1", High: "1", Low: "1", Close: "1"},
	}}
	a := NewAssembler(src, resolver)
	var reported int
	a.OnBars = func(_ Endpoint, n int) { reported = n }

	seq, err := a.History(context.Background(), Request{
		Symbol: reliance, Resolution: model.ResolutionDaily, TickType: model.TickTrade, Start: t0, End: t0.AddDate(0, 0, 5),
	})
	require.NoError(t, err)

	for range seq {
		break
	}
	assert.Equal(t, 1, reported)
}

func TestHistory_Errors(t *testing.T) {
	t.Run("unknown symbol", func(t *testing.T) {
		a := NewAssembler(&fakeSource{}, resolver)
		_, err := a.History(context.Background(), Request{
			Symbol: model.NewEquity("TCS"), Resolution: model.ResolutionDaily, TickType: model.TickTrade, Start: t0, End: t0.AddDate(0, 0, 1),
		})
		var nf *samco.NotFoundError
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("broker error surfaces", func(t *testing.T) {
		httpErr := &samco.HTTPError{Endpoint: "GET /history/candleData", StatusCode: 500}
		a := NewAssembler(&fakeSource{err: httpErr}, resolver)
		seq, err := a.History(context.Background(), Request{
			Symbol: reliance, Resolution: model.ResolutionDaily, TickType: model.TickTrade, Start: t0, End: t0.AddDate(0, 0, 1),
		})
		require.NoError(t, err)
		_, err = Collect(seq)
		assert.Same(t, httpErr, err)
	})

	t.Run("malformed candle", func(t *testing.T) {
		src := &fakeSource{daily: []samco.HistoricalCandle{{Date: "2026-03-10", Open: "x", High: "1", Low: "1", Close: "1"}}}
		a := NewAssembler(src, resolver)
		seq, err := a.History(context.Background(), Request{
			Symbol: reliance, Resolution: model.ResolutionDaily, TickType: model.TickTrade, Start: t0, End: t0.AddDate(0, 0, 1),
		})
		require.NoError(t, err)
		_, err = Collect(seq)
		var pe *samco.ParseError
		require.True(t, errors.As(err, &pe), "expected ParseError, got %v", err)
		assert.Equal(t, "open", pe.Field)
	})
}

func TestHistory_BankNiftyIndexName(t *testing.T) {
	bank := model.NewIndex("BANKNIFTY")
	src := &fakeSource{intraday: []samco.IntradayCandle{
		{DateTime: "2026-03-10 09:15:00", Open: "48000", High: "48010", Low: "47990", Close: "48005", Volume: "0"},
	}}
	a := NewAssembler(src, fakeResolver{
		bank.Key(): {Exchange: "NSE", SymbolCode: "-22", TradingSymbol: "BANKNIFTY", Name: "NIFTY BANk", Instrument: model.ClassIndex},
	})

	seq, err := a.History(context.Background(), Request{
		Symbol: bank, Resolution: model.ResolutionMinute, TickType: model.TickTrade,
		Start: t0, End: t0.Add(time.Minute),
	})
	require.NoError(t, err)
	_, err = Collect(seq)
	require.NoError(t, err)

	require.Len(t, src.calls, 1)
	assert.Equal(t, "index-intraday", src.calls[0].endpoint)
	assert.Equal(t, "NIFTY BANK", src.calls[0].name)
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, "NIFTY 50", IndexName(model.InstrumentRecord{SymbolCode: "-21", Name: "NIFTY 50"}))
	assert.Equal(t, "NIFTY FIN SERVICE", IndexName(model.InstrumentRecord{SymbolCode: "-29"}))
	assert.Equal(t, "NIFTY IT", IndexName(model.InstrumentRecord{SymbolCode: "999", Name: "NIFTY IT"}))
}
