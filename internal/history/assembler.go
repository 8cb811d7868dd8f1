// Package history turns canonical history requests into broker candle calls
// and normalizes the four candle payload shapes into model.Bar values.
package history

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"samco-bridge/internal/markethours"
	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"

	"github.com/shopspring/decimal"
)

// Broker date layouts.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Broker intraday intervals, in minutes.
const (
	intervalMinute = "1"
	intervalHour   = "60"
)

// CandleSource is the subset of *samco.Client used for history.
type CandleSource interface {
	IntradayCandles(ctx context.Context, symbolName, exchange, fromDate, toDate, interval string) (*samco.IntradayCandleResponse, error)
	IndexIntradayCandles(ctx context.Context, indexName, fromDate, toDate, interval string) (*samco.IndexIntradayCandleResponse, error)
	HistoricalCandles(ctx context.Context, symbolName, exchange, fromDate, toDate string) (*samco.HistoricalCandleResponse, error)
	IndexHistoricalCandles(ctx context.Context, indexName, fromDate, toDate string) (*samco.IndexHistoricalCandleResponse, error)
}

// Resolver finds the catalogue row for a canonical symbol.
// *symbols.Mapper satisfies it.
type Resolver interface {
	Record(sym model.Symbol) (model.InstrumentRecord, error)
}

// Request is one history request.
type Request struct {
	Symbol     model.Symbol
	Resolution model.Resolution
	TickType   model.TickType
	Start      time.Time
	End        time.Time
}

// Endpoint identifies which of the four candle endpoints serves a request.
type Endpoint int

const (
	EndpointIntraday Endpoint = iota
	EndpointIndexIntraday
	EndpointHistorical
	EndpointIndexHistorical
)

func (e Endpoint) String() string {
	switch e {
	case EndpointIntraday:
		return "intraday"
	case EndpointIndexIntraday:
		return "index-intraday"
	case EndpointHistorical:
		return "historical"
	case EndpointIndexHistorical:
		return "index-historical"
	}
	return "unknown"
}

// SelectEndpoint picks the endpoint for (is-index, is-daily).
func SelectEndpoint(st model.SecurityType, res model.Resolution) Endpoint {
	index := st == model.SecurityIndex
	daily := res == model.ResolutionDaily
	switch {
	case index && daily:
		return EndpointIndexHistorical
	case index:
		return EndpointIndexIntraday
	case daily:
		return EndpointHistorical
	default:
		return EndpointIntraday
	}
}

// Assembler serves history requests.
type Assembler struct {
	src      CandleSource
	resolver Resolver

	// OnBars, when set, is called with the number of bars each request yielded.
	OnBars func(ep Endpoint, n int)
}

func NewAssembler(src CandleSource, resolver Resolver) *Assembler {
	return &Assembler{src: src, resolver: resolver}
}

// Validate checks a request without touching the broker.
func Validate(r Request) error {
	if r.TickType != model.TickTrade {
		return &samco.ValidationError{Field: "tick_type", Reason: "only trade history is available, got " + r.TickType.String()}
	}
	switch r.Symbol.SecurityType {
	case model.SecurityEquity, model.SecurityFuture, model.SecurityOption, model.SecurityIndex, model.SecurityIndexOption:
	default:
		return &samco.ValidationError{Field: "security_type", Reason: r.Symbol.SecurityType.String() + " not supported"}
	}
	if r.Resolution == model.ResolutionTick || r.Resolution == model.ResolutionSecond {
		return &samco.ValidationError{Field: "resolution", Reason: r.Resolution.String() + " not supported"}
	}
	if !r.Start.Before(r.End) {
		return &samco.ValidationError{Field: "range", Reason: "start must precede end"}
	}
	switch r.Resolution {
	case model.ResolutionMinute, model.ResolutionHour, model.ResolutionDaily:
	default:
		return &samco.ValidationError{Field: "resolution", Reason: r.Resolution.String() + " not supported"}
	}
	return nil
}

// History validates r synchronously and returns a lazy sequence of bars.
// The broker is called when the sequence is first ranged over; the
// sequence can be consumed only once.
func (a *Assembler) History(ctx context.Context, r Request) (iter.Seq2[model.Bar, error], error) {
	if err := Validate(r); err != nil {
		return nil, err
	}
	rec, err := a.resolver.Record(r.Symbol)
	if err != nil {
		return nil, err
	}

	ep := SelectEndpoint(r.Symbol.SecurityType, r.Resolution)
	var used atomic.Bool

	return func(yield func(model.Bar, error) bool) {
		if used.Swap(true) {
			yield(model.Bar{}, errors.New("history: sequence already consumed"))
			return
		}

		candles, err := a.fetch(ctx, ep, rec, r)
		if err != nil {
			yield(model.Bar{}, err)
			return
		}

		n := 0
		defer func() {
			if a.OnBars != nil {
				a.OnBars(ep, n)
			}
		}()
		span := r.Resolution.Span()
		for _, c := range candles {
			bar, err := c.toBar(r.Symbol, span)
			if err != nil {
				yield(model.Bar{}, &samco.ParseError{Source: ep.String() + " candles", Field: err.field, Value: err.value, Err: err.err})
				return
			}
			n++
			if !yield(bar, nil) {
				return
			}
		}
	}, nil
}

// Collect drains a history sequence into a slice.
func Collect(seq iter.Seq2[model.Bar, error]) ([]model.Bar, error) {
	var out []model.Bar
	for bar, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, bar)
	}
	return out, nil
}

// indexNames are the names the index candle endpoints accept, by broker
// code. The catalogue's own name column is not reliable for these rows.
var indexNames = map[string]string{
	"-21": "NIFTY 50",
	"-22": "NIFTY BANK",
	"-29": "NIFTY FIN SERVICE",
}

// IndexName returns the name to send as indexName for an index record.
func IndexName(rec model.InstrumentRecord) string {
	if n, ok := indexNames[rec.SymbolCode]; ok {
		return n
	}
	return rec.Name
}

func (a *Assembler) fetch(ctx context.Context, ep Endpoint, rec model.InstrumentRecord, r Request) ([]candle, error) {
	from, to := formatRange(r)
	interval := intervalMinute
	if r.Resolution == model.ResolutionHour {
		interval = intervalHour
	}

	slog.Debug("history request",
		slog.String("component", "history"),
		slog.String("endpoint", ep.String()),
		slog.String("symbol", r.Symbol.String()),
		slog.String("from", from),
		slog.String("to", to))

	switch ep {
	case EndpointIndexHistorical:
		resp, err := a.src.IndexHistoricalCandles(ctx, IndexName(rec), from, to)
		if err != nil {
			return nil, err
		}
		return fromHistorical(resp.IndexHistoricalCandleData), nil
	case EndpointIndexIntraday:
		resp, err := a.src.IndexIntradayCandles(ctx, IndexName(rec), from, to, interval)
		if err != nil {
			return nil, err
		}
		return fromIntraday(resp.IndexIntradayCandleData), nil
	case EndpointHistorical:
		resp, err := a.src.HistoricalCandles(ctx, rec.TradingSymbol, rec.Exchange, from, to)
		if err != nil {
			return nil, err
		}
		return fromHistorical(resp.HistoricalCandleData), nil
	default:
		resp, err := a.src.IntradayCandles(ctx, rec.TradingSymbol, rec.Exchange, from, to, interval)
		if err != nil {
			return nil, err
		}
		return fromIntraday(resp.IntradayCandleData), nil
	}
}

// formatRange renders the request bounds in IST, date-only for daily bars.
func formatRange(r Request) (from, to string) {
	layout := DateTimeLayout
	if r.Resolution == model.ResolutionDaily {
		layout = DateLayout
	}
	return r.Start.In(markethours.IST).Format(layout), r.End.In(markethours.IST).Format(layout)
}

// candle is the common shape of intraday and historical candles.
type candle struct {
	when                   string
	open, high, low, close string
	volume                 string
}

func fromIntraday(in []samco.IntradayCandle) []candle {
	out := make([]candle, len(in))
	for i, c := range in {
		out[i] = candle{c.DateTime, c.Open, c.High, c.Low, c.Close, c.Volume}
	}
	return out
}

func fromHistorical(in []samco.HistoricalCandle) []candle {
	out := make([]candle, len(in))
	for i, c := range in {
		out[i] = candle{c.Date, c.Open, c.High, c.Low, c.Close, c.Volume}
	}
	return out
}

type fieldErr struct {
	field, value string
	err          error
}

var timeLayouts = []string{"2006-01-02 15:04:05.0", DateTimeLayout, DateLayout}

func (c candle) toBar(sym model.Symbol, span time.Duration) (model.Bar, *fieldErr) {
	var (
		t   time.Time
		err error
	)
	for _, layout := range timeLayouts {
		if t, err = time.ParseInLocation(layout, c.when, markethours.IST); err == nil {
			break
		}
	}
	if err != nil {
		return model.Bar{}, &fieldErr{"time", c.when, err}
	}

	bar := model.Bar{Symbol: sym, Time: t, Period: span}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", c.open, &bar.Open},
		{"high", c.high, &bar.High},
		{"low", c.low, &bar.Low},
		{"close", c.close, &bar.Close},
	} {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return model.Bar{}, &fieldErr{f.name, f.raw, err}
		}
		*f.dst = d
	}

	if c.volume != "" {
		v, err := decimal.NewFromString(c.volume)
		if err != nil {
			return model.Bar{}, &fieldErr{"volume", c.volume, err}
		}
		bar.Volume = v.IntPart()
	}
	return bar, nil
}
