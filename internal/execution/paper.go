package execution

import (
	"context"
	"fmt"
	"log"
	"sync"

	"samco-bridge/pkg/samco"
)

// PaperClient accepts orders without calling the broker. It satisfies
// OrderClient, so a Router can run against it for dry runs.
type PaperClient struct {
	mu       sync.Mutex
	orderSeq int64
	open     map[string]samco.PlaceOrderRequest
}

// NewPaperClient creates a paper order client.
func NewPaperClient() *PaperClient {
	return &PaperClient{open: make(map[string]samco.PlaceOrderRequest)}
}

func (p *PaperClient) PlaceOrder(_ context.Context, req samco.PlaceOrderRequest) (*samco.OrderResponse, error) {
	p.mu.Lock()
	p.orderSeq++
	id := fmt.Sprintf("PAPER-%d", p.orderSeq)
	p.open[id] = req
	p.mu.Unlock()

	log.Printf("[paper] %s %s %s:%s qty=%s type=%s price=%s order=%s",
		req.TransactionType, req.ProductType, req.Exchange, req.SymbolName,
		req.Quantity, req.OrderType, req.Price, id)

	return &samco.OrderResponse{
		Envelope:    samco.Envelope{Status: "Success", StatusMessage: "paper order accepted"},
		OrderNumber: id,
		OrderStatus: "OPEN",
	}, nil
}

func (p *PaperClient) ModifyOrder(_ context.Context, orderNumber string, req samco.ModifyOrderRequest) (*samco.OrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.open[orderNumber]
	if !ok {
		return &samco.OrderResponse{OrderNumber: orderNumber, RejectionReason: "order not open"}, nil
	}
	cur.Quantity = req.Quantity
	cur.OrderType = req.OrderType
	cur.Price = req.Price
	cur.TriggerPrice = req.TriggerPrice
	p.open[orderNumber] = cur
	return &samco.OrderResponse{
		Envelope:    samco.Envelope{Status: "Success", StatusMessage: "paper order modified"},
		OrderNumber: orderNumber,
		OrderStatus: "OPEN",
	}, nil
}

func (p *PaperClient) CancelOrder(_ context.Context, orderNumber string) (*samco.OrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.open[orderNumber]; !ok {
		return &samco.OrderResponse{OrderNumber: orderNumber, RejectionReason: "order not open"}, nil
	}
	delete(p.open, orderNumber)
	return &samco.OrderResponse{
		Envelope:    samco.Envelope{Status: "Success", StatusMessage: "paper order cancelled"},
		OrderNumber: orderNumber,
		OrderStatus: "CANCELLED",
	}, nil
}

// Open returns a copy of the orders still open.
func (p *PaperClient) Open() map[string]samco.PlaceOrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make(map[string]samco.PlaceOrderRequest, len(p.open))
	for k, v := range p.open {
		cp[k] = v
	}
	return cp
}
