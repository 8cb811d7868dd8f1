package api

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"samco-bridge/internal/execution"
	"samco-bridge/internal/history"
	"samco-bridge/internal/instruments"
	"samco-bridge/internal/model"
	"samco-bridge/internal/optionchain"
	sqlitestore "samco-bridge/internal/store/sqlite"
	"samco-bridge/internal/symbols"
	"samco-bridge/pkg/samco"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalogue = `exchange,exchangeSegment,symbolCode,tradingSymbol,name,lastPrice,instrument,lotSize,strikePrice,expiryDate,tickSize
NSE,nse_cm,2885,RELIANCE-EQ,RELIANCE,1400,EQ,1,,,0.05
NFO,nse_fo,43210,NIFTY26MAR22500CE,NIFTY,120.5,OPTIDX,75,22500,2026-03-26,0.05
NFO,nse_fo,43211,NIFTY26MAR22500PE,NIFTY,98,OPTIDX,75,22500,2026-03-26,0.05
NFO,nse_fo,43300,NIFTY26APR23000CE,NIFTY,80,OPTIDX,75,23000,2026-04-30,0.05
`

// fakeHistory serves two daily bars per request.
type fakeHistory struct{}

func (fakeHistory) History(_ context.Context, r history.Request) (iter.Seq2[model.Bar, error], error) {
	if err := history.Validate(r); err != nil {
		return nil, err
	}
	return func(yield func(model.Bar, error) bool) {
		for i := range 2 {
			b := model.Bar{Symbol: r.Symbol, Time: r.Start.AddDate(0, 0, i), Period: 24 * time.Hour,
				Open: decimal.NewFromInt(100), High: decimal.NewFromInt(110),
				Low: decimal.NewFromInt(90), Close: decimal.NewFromInt(105), Volume: 1000}
			if !yield(b, nil) {
				return
			}
		}
	}, nil
}

// latestOnly knows one cached daily bar for RELIANCE.
type latestOnly struct{}

func (latestOnly) Latest(_ context.Context, sym model.Symbol, period time.Duration) (model.Bar, bool, error) {
	if sym.Ticker != "RELIANCE" || period != 24*time.Hour {
		return model.Bar{}, false, nil
	}
	return model.Bar{Symbol: sym, Time: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), Period: period,
		Close: decimal.NewFromInt(1410)}, true, nil
}

func newTestServer(t *testing.T, opts ...func(*Deps)) (*httptest.Server, *execution.PaperClient) {
	t.Helper()
	fetch := instruments.FetcherFunc(func(context.Context) ([]byte, error) { return []byte(testCatalogue), nil })
	cache, err := instruments.New(context.Background(), instruments.Config{Fetcher: fetch})
	require.NoError(t, err)

	mapper := symbols.NewMapper(cache)
	paper := execution.NewPaperClient()
	deps := Deps{
		Catalogue: cache,
		Mapper:    mapper,
		History:   fakeHistory{},
		Chains:    optionchain.NewProvider(cache),
		Orders:    execution.NewRouter(paper, mapper, nil),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return srv, paper
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestInstrument(t *testing.T) {
	srv, _ := newTestServer(t)

	var got struct {
		Symbol string `json:"symbol"`
		Record struct {
			TradingSymbol string `json:"trading_symbol"`
		} `json:"record"`
	}
	resp := getJSON(t, srv.URL+"/api/v1/instruments/43211", &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "IndexOption|india|NIFTY|20260326|22500|Put", got.Symbol)
	assert.Equal(t, "NIFTY26MAR22500PE", got.Record.TradingSymbol)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))

	resp = getJSON(t, srv.URL+"/api/v1/instruments/999", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBrokerCode(t *testing.T) {
	srv, _ := newTestServer(t)

	var got map[string]string
	resp := getJSON(t, srv.URL+"/api/v1/symbols/code?ticker=nifty&type=indexoption&expiry=2026-03-26&strike=22500&right=call", &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "43210", got["code"])

	resp = getJSON(t, srv.URL+"/api/v1/symbols/code?ticker=NIFTY&type=indexoption&expiry=2026-03-26&strike=22500", &got)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, got["error"], "right")
}

func TestHistory(t *testing.T) {
	srv, _ := newTestServer(t)

	var got struct {
		Resolution string `json:"resolution"`
		Bars       []struct {
			Close decimal.Decimal `json:"close"`
		} `json:"bars"`
	}
	resp := getJSON(t, srv.URL+"/api/v1/history?ticker=RELIANCE&resolution=daily&start=2026-03-02&end=2026-03-06", &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Daily", got.Resolution)
	require.Len(t, got.Bars, 2)
	assert.Equal(t, "105", got.Bars[0].Close.String())

	// start >= end is rejected before any broker call
	resp = getJSON(t, srv.URL+"/api/v1/history?ticker=RELIANCE&resolution=daily&start=2026-03-06&end=2026-03-06", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = getJSON(t, srv.URL+"/api/v1/history?ticker=RELIANCE&resolution=weekly&start=2026-03-02&end=2026-03-06", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOptionChain(t *testing.T) {
	srv, _ := newTestServer(t)

	var got struct {
		Contracts []string `json:"contracts"`
	}
	resp := getJSON(t, srv.URL+"/api/v1/optionchain?ticker=NIFTY&type=index&date=2026-03-27", &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"IndexOption|india|NIFTY|20260430|23000|Call"}, got.Contracts)

	resp = getJSON(t, srv.URL+"/api/v1/optionchain?ticker=NIFTY&type=index&kind=swap", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrders_PlaceAndCancel(t *testing.T) {
	srv, paper := newTestServer(t)

	body := `{"ticker":"RELIANCE","direction":"buy","type":"limit","quantity":10,"limit_price":"1399.5"}`
	resp, err := http.Post(srv.URL+"/api/v1/orders", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var res execution.OrderResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, execution.StatusPlaced, res.Status)
	require.Contains(t, paper.Open(), res.OrderID)
	assert.Equal(t, "RELIANCE-EQ", paper.Open()[res.OrderID].SymbolName)
	assert.Equal(t, samco.OrderTypeLimit, paper.Open()[res.OrderID].OrderType)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/orders/"+res.OrderID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, paper.Open())

	// cancelling again is a broker-side rejection
	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/orders/"+res.OrderID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestOrders_UnsupportedType(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"ticker":"RELIANCE","direction":"sell","type":"stop_limit","quantity":1}`
	resp, err := http.Post(srv.URL+"/api/v1/orders", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStoredBars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.db")
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: path})
	require.NoError(t, err)
	defer w.Close()

	sym := model.NewEquity("RELIANCE")
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	var bars []model.Bar
	for i := range 5 {
		px := decimal.NewFromInt(int64(1400 + i))
		bars = append(bars, model.Bar{Symbol: sym, Time: day.AddDate(0, 0, i), Period: 24 * time.Hour,
			Open: px, High: px, Low: px, Close: px, Volume: 10})
	}
	require.NoError(t, w.WriteBars(context.Background(), bars))

	r, err := sqlitestore.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	srv, _ := newTestServer(t, func(d *Deps) { d.Bars = r })

	var got struct {
		Bars []struct {
			Close decimal.Decimal `json:"close"`
		} `json:"bars"`
	}
	resp := getJSON(t, srv.URL+"/api/v1/bars?ticker=RELIANCE&resolution=daily&start=2026-03-03&end=2026-03-05", &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, got.Bars, 2)
	assert.Equal(t, "1401", got.Bars[0].Close.String())

	resp = getJSON(t, srv.URL+"/api/v1/bars?ticker=RELIANCE&resolution=tick&start=2026-03-03&end=2026-03-05", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = getJSON(t, srv.URL+"/api/v1/bars/latest?ticker=RELIANCE&resolution=daily", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "latest is unregistered without a cache")
}

func TestLatestBar(t *testing.T) {
	srv, _ := newTestServer(t, func(d *Deps) { d.Latest = latestOnly{} })

	var got struct {
		Bar struct {
			Close decimal.Decimal `json:"close"`
		} `json:"bar"`
	}
	resp := getJSON(t, srv.URL+"/api/v1/bars/latest?ticker=RELIANCE&resolution=daily", &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1410", got.Bar.Close.String())

	resp = getJSON(t, srv.URL+"/api/v1/bars/latest?ticker=INFY&resolution=daily", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
