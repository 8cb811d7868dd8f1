// Package samco is a client for the Samco StockNote REST API.
// It covers session handling, market data, candles, account state and order
// routing. Every call goes through an Executor, which signs the request,
// holds it to the broker's rate limit and retries throttled responses.
//
// Usage example:
//
//	exec := samco.NewExecutor(samco.ExecutorConfig{})
//	if _, err := exec.Authorize(ctx, "USERID", "PASSWORD", "1990"); err != nil { log.Fatal(err) }
//	sc := samco.NewClient(exec)
//	q, err := sc.Quote(ctx, "RELIANCE", "NSE")
//	if err != nil { log.Fatal(err) }
//	fmt.Println("LTP:", q.LastTradedPrice)
package samco

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

var routes = map[string]string{
	"api.quote.index": "/quote/indexQuote",
	"api.quote":       "/quote/getQuote",
	"api.optionchain": "/option/optionChain",
	"api.search":      "/eqDervSearch/search",

	"api.candle.intraday":       "/intraday/candleData",
	"api.candle.index.intraday": "/intraday/indexCandleData",
	"api.candle.history":        "/history/candleData",
	"api.candle.index.history":  "/history/indexCandleData",

	"api.holding":      "holding/getHoldings",
	"api.order.book":   "order/orderBook",
	"api.order.status": "order/getOrderStatus",
	"api.position":     "position/getPositions",
	"api.limit":        "limit/getLimits",
	"api.trade.book":   "trade/tradeBook",

	"api.order.place":  "order/placeOrder",
	"api.order.modify": "order/modifyOrder/%s",
	"api.order.cancel": "order/cancelOrder",
}

// Status texts the broker uses for an empty order book or position list.
const (
	noOrdersFound    = "No Orders found"
	noPositionsFound = "No Positions found"
)

// Client exposes typed StockNote endpoints.
type Client struct {
	exec *Executor
}

// NewClient wraps an executor. The executor owns the session.
func NewClient(exec *Executor) *Client {
	return &Client{exec: exec}
}

// Executor returns the underlying executor.
func (sc *Client) Executor() *Executor { return sc.exec }

// ---- Helpers ----

type call struct {
	method   string
	route    string
	args     []any
	query    url.Values
	payload  any
	tolerate string // non-200 status text treated as an empty result
}

func (sc *Client) buildPath(route string, args ...any) (string, error) {
	uri, ok := routes[route]
	if !ok {
		return "", fmt.Errorf("unknown route: %s", route)
	}
	if len(args) > 0 {
		uri = fmt.Sprintf(uri, args...)
	}
	return uri, nil
}

// doRequest executes c and decodes a 200 body into out.
// It returns found=false when the response matched c.tolerate.
func (sc *Client) doRequest(ctx context.Context, c call, out any) (found bool, err error) {
	path, err := sc.buildPath(c.route, c.args...)
	if err != nil {
		return false, err
	}

	req := Request{Method: c.method, Path: path, Query: c.query}
	if c.payload != nil {
		b, err := json.Marshal(c.payload)
		if err != nil {
			return false, fmt.Errorf("%s: marshal payload: %w", req.Endpoint(), err)
		}
		req.Body = b
	}

	resp, err := sc.exec.Execute(ctx, req)
	if err != nil {
		return false, err
	}

	if resp.StatusCode != http.StatusOK {
		if c.tolerate != "" && noData(resp, c.tolerate) {
			slog.Debug("broker returned no data",
				slog.String("component", "samco"),
				slog.String("endpoint", req.Endpoint()),
				slog.String("status", resp.Status))
			return false, nil
		}
		return false, &HTTPError{
			Endpoint:   req.Endpoint(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       resp.Body,
		}
	}

	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return false, &ParseError{Source: req.Endpoint(), Err: err}
	}
	return true, nil
}

// noData reports whether a failed response is the broker's "nothing here" answer.
// The text may arrive as the status reason phrase or as statusMessage in the body.
func noData(resp *Response, text string) bool {
	if strings.Contains(resp.Status, text) {
		return true
	}
	msg := gjson.GetBytes(resp.Body, "statusMessage").String()
	return strings.Contains(msg, text)
}

func params(kv ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			q.Set(kv[i], kv[i+1])
		}
	}
	return q
}

// ---- Session ----

// Authorize logs in; see Executor.Authorize.
func (sc *Client) Authorize(ctx context.Context, userID, password, yob string) (*LoginResponse, error) {
	return sc.exec.Authorize(ctx, userID, password, yob)
}

// Logout ends the session; see Executor.Logout.
func (sc *Client) Logout(ctx context.Context) error {
	return sc.exec.Logout(ctx)
}

// ---- Market data ----

func (sc *Client) IndexQuote(ctx context.Context, indexName string) (*IndexQuoteResponse, error) {
	var out IndexQuoteResponse
	_, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.quote.index",
		query: params("indexName", indexName)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (sc *Client) Quote(ctx context.Context, symbolName, exchange string) (*QuoteResponse, error) {
	var out QuoteResponse
	_, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.quote",
		query: params("symbolName", symbolName, "exchange", exchange)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// OptionChainQuery filters the option chain. Only SearchSymbolName is required.
type OptionChainQuery struct {
	SearchSymbolName string
	Exchange         string // default: NFO
	ExpiryDate       string // 2006-01-02
	StrikePrice      string
	OptionType       string // CE, PE
}

func (sc *Client) OptionChain(ctx context.Context, q OptionChainQuery) (*OptionChainResponse, error) {
	if q.Exchange == "" {
		q.Exchange = "NFO"
	}
	var out OptionChainResponse
	_, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.optionchain",
		query: params(
			"searchSymbolName", q.SearchSymbolName,
			"exchange", q.Exchange,
			"expiryDate", q.ExpiryDate,
			"strikePrice", q.StrikePrice,
			"optionType", q.OptionType,
		)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchEquityDerivative searches scrips by name on one exchange.
func (sc *Client) SearchEquityDerivative(ctx context.Context, searchSymbolName, exchange string) (*SearchResponse, error) {
	var out SearchResponse
	_, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.search",
		query: params("exchange", exchange, "searchSymbolName", searchSymbolName)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- Candles ----
// Empty optional arguments are omitted from the query.

func (sc *Client) IntradayCandles(ctx context.Context, symbolName, exchange, fromDate, toDate, interval string) (*IntradayCandleResponse, error) {
	var out IntradayCandleResponse
	_, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.candle.intraday",
		query: params(
			"symbolName", symbolName,
			"fromDate", fromDate,
			"exchange", exchange,
			"toDate", toDate,
			"interval", interval,
		)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (sc *Client) IndexIntradayCandles(ctx context.Context, indexName, fromDate, toDate, interval string) (*IndexIntradayCandleResponse, error) {
	var out IndexIntradayCandleResponse
	_, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.candle.index.intraday",
		query: params(
			"indexName", indexName,
			"fromDate", fromDate,
			"toDate", toDate,
			"interval", interval,
		)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (sc *Client) HistoricalCandles(ctx context.Context, symbolName, exchange, fromDate, toDate string) (*HistoricalCandleResponse, error) {
	var out HistoricalCandleResponse
	_, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.candle.history",
		query: params(
			"symbolName", symbolName,
			"fromDate", fromDate,
			"exchange", exchange,
			"toDate", toDate,
		)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (sc *Client) IndexHistoricalCandles(ctx context.Context, indexName, fromDate, toDate string) (*IndexHistoricalCandleResponse, error) {
	var out IndexHistoricalCandleResponse
	_, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.candle.index.history",
		query: params(
			"indexName", indexName,
			"fromDate", fromDate,
			"toDate", toDate,
		)}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- Account ----

func (sc *Client) Holdings(ctx context.Context) (*HoldingsResponse, error) {
	var out HoldingsResponse
	if _, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.holding"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OrderBook returns an empty book when the broker reports no orders.
func (sc *Client) OrderBook(ctx context.Context) (*OrderBookResponse, error) {
	var out OrderBookResponse
	if _, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.order.book",
		tolerate: noOrdersFound}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (sc *Client) OrderStatus(ctx context.Context, orderNumber string) (*OrderResponse, error) {
	var out OrderResponse
	if _, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.order.status",
		query: params("orderNumber", orderNumber)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Positions returns day positions; empty when the broker reports none.
func (sc *Client) Positions(ctx context.Context) (*PositionsResponse, error) {
	var out PositionsResponse
	if _, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.position",
		query: params("positionType", "DAY"), tolerate: noPositionsFound}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (sc *Client) Limits(ctx context.Context) (*LimitsResponse, error) {
	var out LimitsResponse
	if _, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.limit"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (sc *Client) TradeBook(ctx context.Context) (*TradeBookResponse, error) {
	var out TradeBookResponse
	if _, err := sc.doRequest(ctx, call{method: http.MethodGet, route: "api.trade.book"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---- Orders ----

func (sc *Client) PlaceOrder(ctx context.Context, p PlaceOrderRequest) (*OrderResponse, error) {
	var out OrderResponse
	if _, err := sc.doRequest(ctx, call{method: http.MethodPost, route: "api.order.place",
		payload: p}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (sc *Client) ModifyOrder(ctx context.Context, orderNumber string, p ModifyOrderRequest) (*OrderResponse, error) {
	var out OrderResponse
	if _, err := sc.doRequest(ctx, call{method: http.MethodPut, route: "api.order.modify",
		args: []any{url.PathEscape(orderNumber)}, payload: p}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (sc *Client) CancelOrder(ctx context.Context, orderNumber string) (*OrderResponse, error) {
	var out OrderResponse
	if _, err := sc.doRequest(ctx, call{method: http.MethodDelete, route: "api.order.cancel",
		query: params("orderNumber", orderNumber)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
