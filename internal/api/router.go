// Package api serves the bridge's JSON API: catalogue lookups, symbol
// mapping, history, stored bars, option chains and order routing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"samco-bridge/internal/execution"
	"samco-bridge/internal/history"
	"samco-bridge/internal/logger"
	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Catalogue is the subset of *instruments.Cache the API reads.
type Catalogue interface {
	Resolve(code string) (model.InstrumentRecord, model.Symbol, error)
	LoadedAt() time.Time
	Len() int
}

// SymbolMapper is the subset of *symbols.Mapper the API uses.
type SymbolMapper interface {
	ToBrokerCode(sym model.Symbol) (string, error)
}

// HistorySource is satisfied by *history.Assembler.
type HistorySource interface {
	History(ctx context.Context, r history.Request) (iter.Seq2[model.Bar, error], error)
}

// ChainProvider is satisfied by *optionchain.Provider.
type ChainProvider interface {
	OptionChain(underlying model.Symbol, date time.Time) []model.Symbol
	FutureChain(underlying model.Symbol, date time.Time) []model.Symbol
}

// OrderRouter is satisfied by *execution.Router.
type OrderRouter interface {
	Place(ctx context.Context, o model.Order) (execution.OrderResult, error)
	Modify(ctx context.Context, o model.Order) (execution.OrderResult, error)
	Cancel(ctx context.Context, o model.Order) (execution.OrderResult, error)
}

// StoredBars is satisfied by the SQLite and Redis bar readers.
type StoredBars interface {
	ReadBars(ctx context.Context, sym model.Symbol, period time.Duration, from, to time.Time) ([]model.Bar, error)
}

// LatestBars is satisfied by the Redis bar reader.
type LatestBars interface {
	Latest(ctx context.Context, sym model.Symbol, period time.Duration) (model.Bar, bool, error)
}

// Deps are the services behind the routes. Orders, Bars and Latest may be
// nil, which leaves their routes unregistered.
type Deps struct {
	Catalogue Catalogue
	Mapper    SymbolMapper
	History   HistorySource
	Chains    ChainProvider
	Orders    OrderRouter
	Bars      StoredBars
	Latest    LatestBars
}

// NewRouter sets up the HTTP routes for the API server.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"instruments": d.Catalogue.Len(),
			"loaded_at":   d.Catalogue.LoadedAt().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("GET /api/v1/instruments/{code}", d.instrument)
	mux.HandleFunc("GET /api/v1/symbols/code", d.brokerCode)
	mux.HandleFunc("GET /api/v1/history", d.history)
	mux.HandleFunc("GET /api/v1/optionchain", d.chain)

	if d.Bars != nil {
		mux.HandleFunc("GET /api/v1/bars", d.storedBars)
	}
	if d.Latest != nil {
		mux.HandleFunc("GET /api/v1/bars/latest", d.latestBar)
	}

	if d.Orders != nil {
		mux.HandleFunc("POST /api/v1/orders", d.placeOrder)
		mux.HandleFunc("PUT /api/v1/orders/{id}", d.modifyOrder)
		mux.HandleFunc("DELETE /api/v1/orders/{id}", d.cancelOrder)
	}

	return withTrace(mux)
}

// withTrace tags each request with a trace id, taken from X-Trace-Id when
// the caller sends one.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := r.Header.Get("X-Trace-Id")
		if tid == "" {
			tid = logger.NewTraceID("api")
		}
		w.Header().Set("X-Trace-Id", tid)
		ctx := logger.WithTraceID(r.Context(), tid)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		slog.Debug("api request",
			append(logger.LogWithTrace(ctx),
				slog.String("component", "api"),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("took", time.Since(start)))...)
	})
}

type instrumentView struct {
	Symbol string                 `json:"symbol"`
	Record model.InstrumentRecord `json:"record"`
}

func (d Deps) instrument(w http.ResponseWriter, r *http.Request) {
	rec, sym, err := d.Catalogue.Resolve(r.PathValue("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, instrumentView{Symbol: sym.Key(), Record: rec})
}

func (d Deps) brokerCode(w http.ResponseWriter, r *http.Request) {
	sym, err := symbolFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	code, err := d.Mapper.ToBrokerCode(sym)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"symbol": sym.Key(), "code": code})
}

type barView struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

func (d Deps) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sym, err := symbolFromQuery(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := model.ParseResolution(q.Get("resolution"))
	if err != nil {
		writeError(w, r, &samco.ValidationError{Field: "resolution", Reason: err.Error()})
		return
	}
	start, err := parseDate(q, "start")
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseDate(q, "end")
	if err != nil {
		writeError(w, r, err)
		return
	}

	seq, err := d.History.History(r.Context(), history.Request{
		Symbol: sym, Resolution: res, TickType: model.TickTrade, Start: start, End: end,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	bars, err := history.Collect(seq)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"symbol": sym.Key(), "resolution": res.String(), "bars": barViews(bars)})
}

func newBarView(b model.Bar) barView {
	return barView{Time: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
}

func barViews(bars []model.Bar) []barView {
	out := make([]barView, len(bars))
	for i, b := range bars {
		out[i] = newBarView(b)
	}
	return out
}

// barQuery reads the symbol and a bar resolution with a fixed span.
func barQuery(q url.Values) (model.Symbol, model.Resolution, error) {
	sym, err := symbolFromQuery(q)
	if err != nil {
		return model.Symbol{}, 0, err
	}
	res, err := model.ParseResolution(q.Get("resolution"))
	if err != nil {
		return model.Symbol{}, 0, &samco.ValidationError{Field: "resolution", Reason: err.Error()}
	}
	if res.Span() == 0 {
		return model.Symbol{}, 0, &samco.ValidationError{Field: "resolution", Reason: res.String() + " bars are not stored"}
	}
	return sym, res, nil
}

// storedBars serves bars previously written by the downloader.
func (d Deps) storedBars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sym, res, err := barQuery(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	start, err := parseDate(q, "start")
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseDate(q, "end")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !start.Before(end) {
		writeError(w, r, &samco.ValidationError{Field: "range", Reason: "start must precede end"})
		return
	}

	bars, err := d.Bars.ReadBars(r.Context(), sym, res.Span(), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": sym.Key(), "resolution": res.String(), "bars": barViews(bars)})
}

func (d Deps) latestBar(w http.ResponseWriter, r *http.Request) {
	sym, res, err := barQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	bar, ok, err := d.Latest.Latest(r.Context(), sym, res.Span())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, &samco.NotFoundError{Kind: "bar", Key: sym.Key() + "/" + res.String()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": sym.Key(), "resolution": res.String(), "bar": newBarView(bar)})
}

func (d Deps) chain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	underlying, err := symbolFromQuery(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	date := time.Now()
	if q.Get("date") != "" {
		if date, err = parseDate(q, "date"); err != nil {
			writeError(w, r, err)
			return
		}
	}

	var contracts []model.Symbol
	switch kind := q.Get("kind"); kind {
	case "", "option":
		contracts = d.Chains.OptionChain(underlying, date)
	case "future":
		contracts = d.Chains.FutureChain(underlying, date)
	default:
		writeError(w, r, &samco.ValidationError{Field: "kind", Reason: "want option or future, got " + kind})
		return
	}

	keys := make([]string, len(contracts))
	for i, c := range contracts {
		keys[i] = c.Key()
	}
	writeJSON(w, http.StatusOK, map[string]any{"underlying": underlying.Key(), "contracts": keys})
}

// orderRequest is the wire form of an order; symbols travel as query-style
// fields rather than model.Symbol's numeric enums.
type orderRequest struct {
	Ticker       string          `json:"ticker"`
	SecurityType string          `json:"security_type"`
	Expiry       string          `json:"expiry"`
	Strike       string          `json:"strike"`
	Right        string          `json:"right"`
	Direction    string          `json:"direction"`
	Type         string          `json:"type"`
	TimeInForce  string          `json:"time_in_force"`
	Quantity     int64           `json:"quantity"`
	LimitPrice   decimal.Decimal `json:"limit_price"`
	StopPrice    decimal.Decimal `json:"stop_price"`
	ProductType  string          `json:"product_type"`
}

func (o orderRequest) order() (model.Order, error) {
	q := url.Values{}
	q.Set("ticker", o.Ticker)
	q.Set("type", o.SecurityType)
	q.Set("expiry", o.Expiry)
	q.Set("strike", o.Strike)
	q.Set("right", o.Right)
	sym, err := symbolFromQuery(q)
	if err != nil {
		return model.Order{}, err
	}
	return model.Order{
		Symbol:      sym,
		Direction:   model.OrderDirection(strings.ToUpper(o.Direction)),
		Type:        model.OrderType(strings.ToUpper(o.Type)),
		TimeInForce: model.TimeInForce(strings.ToUpper(o.TimeInForce)),
		Quantity:    o.Quantity,
		LimitPrice:  o.LimitPrice,
		StopPrice:   o.StopPrice,
		ProductType: o.ProductType,
		CreatedAt:   time.Now(),
	}, nil
}

func decodeOrder(r *http.Request) (model.Order, error) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return model.Order{}, &samco.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return req.order()
}

func (d Deps) placeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := decodeOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := d.Orders.Place(r.Context(), o)
	writeOrderResult(w, r, res, err)
}

func (d Deps) modifyOrder(w http.ResponseWriter, r *http.Request) {
	o, err := decodeOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o.ID = r.PathValue("id")
	res, err := d.Orders.Modify(r.Context(), o)
	writeOrderResult(w, r, res, err)
}

func (d Deps) cancelOrder(w http.ResponseWriter, r *http.Request) {
	res, err := d.Orders.Cancel(r.Context(), model.Order{ID: r.PathValue("id")})
	writeOrderResult(w, r, res, err)
}

func writeOrderResult(w http.ResponseWriter, r *http.Request, res execution.OrderResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if res.Status == execution.StatusRejected {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, res)
}

// symbolFromQuery reads ticker, type, expiry, strike and right.
// type defaults to Equity.
func symbolFromQuery(q url.Values) (model.Symbol, error) {
	ticker := strings.ToUpper(strings.TrimSpace(q.Get("ticker")))
	if ticker == "" {
		return model.Symbol{}, &samco.ValidationError{Field: "ticker", Reason: "required"}
	}
	st := model.SecurityEquity
	if v := q.Get("type"); v != "" {
		var ok bool
		if st, ok = model.ParseSecurityType(v); !ok {
			return model.Symbol{}, &samco.ValidationError{Field: "type", Reason: "unknown security type " + v}
		}
	}

	switch st {
	case model.SecurityEquity:
		return model.NewEquity(ticker), nil
	case model.SecurityIndex:
		return model.NewIndex(ticker), nil
	}

	expiry, err := parseDate(q, "expiry")
	if err != nil {
		return model.Symbol{}, err
	}
	if st == model.SecurityFuture {
		return model.NewFuture(ticker, expiry), nil
	}

	strike, err := decimal.NewFromString(q.Get("strike"))
	if err != nil {
		return model.Symbol{}, &samco.ValidationError{Field: "strike", Reason: err.Error()}
	}
	right, ok := model.ParseOptionRight(q.Get("right"))
	if !ok {
		return model.Symbol{}, &samco.ValidationError{Field: "right", Reason: "want call or put"}
	}
	return model.NewOption(ticker, st == model.SecurityIndexOption, right, strike, expiry), nil
}

func parseDate(q url.Values, field string) (time.Time, error) {
	v := q.Get(field)
	if v == "" {
		return time.Time{}, &samco.ValidationError{Field: field, Reason: "required"}
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, v); err != nil {
			return time.Time{}, &samco.ValidationError{Field: field, Reason: "want YYYY-MM-DD or RFC 3339"}
		}
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the bridge's typed errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *samco.ValidationError
		ue *samco.UnsupportedInstrumentError
		nf *samco.NotFoundError
		he *samco.HTTPError
		pe *samco.ParseError
	)
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve), errors.As(err, &ue):
		code = http.StatusBadRequest
	case errors.As(err, &nf):
		code = http.StatusNotFound
	case errors.As(err, &he), errors.As(err, &pe):
		code = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	if code >= http.StatusInternalServerError {
		slog.Error("api request failed",
			append(logger.LogWithTrace(r.Context()),
				slog.String("component", "api"),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()))...)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
