// Package execution routes engine orders to the broker.
//
// The Router resolves each order's canonical symbol to the broker's trading
// symbol and exchange, builds the StockNote payload and calls the order
// endpoints. Results can be journaled and observed through OnResult.
package execution

import (
	"context"
	"errors"
	"log"
	"time"

	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"
)

// Order statuses reported in OrderResult.
const (
	StatusPlaced    = "PLACED"
	StatusModified  = "MODIFIED"
	StatusCancelled = "CANCELLED"
	StatusRejected  = "REJECTED"
	StatusError     = "ERROR"
)

// OrderClient is the subset of *samco.Client that routes orders.
type OrderClient interface {
	PlaceOrder(ctx context.Context, p samco.PlaceOrderRequest) (*samco.OrderResponse, error)
	ModifyOrder(ctx context.Context, orderNumber string, p samco.ModifyOrderRequest) (*samco.OrderResponse, error)
	CancelOrder(ctx context.Context, orderNumber string) (*samco.OrderResponse, error)
}

// SymbolResolver is the subset of *symbols.Mapper the router needs.
type SymbolResolver interface {
	TradingSymbol(sym model.Symbol) (tradingSymbol, exchange string, err error)
}

// Recorder persists order results.
type Recorder interface {
	RecordResult(r OrderResult) error
}

// OrderResult represents the outcome of one order action.
type OrderResult struct {
	OrderID string      `json:"order_id"`
	Action  string      `json:"action"` // place, modify, cancel
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Order   model.Order `json:"order"`
	At      time.Time   `json:"at"`
}

// Router places, modifies and cancels orders.
type Router struct {
	client   OrderClient
	symbols  SymbolResolver
	recorder Recorder

	// OnResult, when set, sees every result (for metrics).
	OnResult func(OrderResult)
}

// NewRouter creates an order router. recorder may be nil.
func NewRouter(client OrderClient, symbols SymbolResolver, recorder Recorder) *Router {
	return &Router{
		client:   client,
		symbols:  symbols,
		recorder: recorder,
	}
}

// Place sends a new order. The broker order number is returned in OrderID.
func (r *Router) Place(ctx context.Context, o model.Order) (OrderResult, error) {
	ts, exch, err := r.symbols.TradingSymbol(o.Symbol)
	if err != nil {
		return r.finish("place", o, nil, err), err
	}
	p, err := BuildPlaceOrder(&o, ts, exch)
	if err != nil {
		return r.finish("place", o, nil, err), err
	}
	resp, err := r.client.PlaceOrder(ctx, p)
	return r.finish("place", o, resp, err), err
}

// Modify changes price, quantity or type of the order numbered o.ID.
func (r *Router) Modify(ctx context.Context, o model.Order) (OrderResult, error) {
	if o.ID == "" {
		err := &samco.ValidationError{Field: "id", Reason: "order number required"}
		return r.finish("modify", o, nil, err), err
	}
	p, err := BuildModifyOrder(&o)
	if err != nil {
		return r.finish("modify", o, nil, err), err
	}
	resp, err := r.client.ModifyOrder(ctx, o.ID, p)
	return r.finish("modify", o, resp, err), err
}

// Cancel cancels the order numbered o.ID.
func (r *Router) Cancel(ctx context.Context, o model.Order) (OrderResult, error) {
	if o.ID == "" {
		err := &samco.ValidationError{Field: "id", Reason: "order number required"}
		return r.finish("cancel", o, nil, err), err
	}
	resp, err := r.client.CancelOrder(ctx, o.ID)
	return r.finish("cancel", o, resp, err), err
}

func (r *Router) finish(action string, o model.Order, resp *samco.OrderResponse, err error) OrderResult {
	res := OrderResult{Action: action, Order: o, OrderID: o.ID, At: time.Now()}
	switch {
	case err != nil:
		res.Status = StatusError
		var ve *samco.ValidationError
		if errors.As(err, &ve) {
			res.Status = StatusRejected
		}
		res.Message = err.Error()
	case resp.RejectionReason != "":
		res.Status = StatusRejected
		res.Message = resp.RejectionReason
	default:
		if resp.OrderNumber != "" {
			res.OrderID = resp.OrderNumber
		}
		res.Status = map[string]string{"place": StatusPlaced, "modify": StatusModified, "cancel": StatusCancelled}[action]
		res.Message = resp.StatusMessage
	}

	log.Printf("[router] %s %s %s %s qty=%d order=%s status=%s",
		action, o.Direction, o.Type, o.Symbol, o.Quantity, res.OrderID, res.Status)

	if r.recorder != nil {
		if rerr := r.recorder.RecordResult(res); rerr != nil {
			log.Printf("[router] journal write failed: %v", rerr)
		}
	}
	if r.OnResult != nil {
		r.OnResult(res)
	}
	return res
}
