package execution

import (
	"fmt"
	"strconv"

	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"

	"github.com/shopspring/decimal"
)

// DefaultProductType is used when an order leaves ProductType empty.
const DefaultProductType = "MIS"

func orderType(t model.OrderType) (string, error) {
	switch t {
	case model.OrderLimit:
		return samco.OrderTypeLimit, nil
	case model.OrderMarket:
		return samco.OrderTypeMarket, nil
	case model.OrderStopMarket:
		return samco.OrderTypeStopMarket, nil
	}
	return "", &samco.ValidationError{Field: "order_type", Reason: fmt.Sprintf("unsupported order type %s", t)}
}

func validity(tif model.TimeInForce) (string, error) {
	switch tif {
	case model.TIFDay, model.TIFGoodTilCanceled, "":
		return samco.ValidityDay, nil
	}
	return "", &samco.ValidationError{Field: "time_in_force", Reason: fmt.Sprintf("unsupported time in force %s", tif)}
}

func transaction(d model.OrderDirection) (string, error) {
	switch d {
	case model.DirectionBuy:
		return samco.TransactionBuy, nil
	case model.DirectionSell:
		return samco.TransactionSell, nil
	}
	return "", &samco.ValidationError{Field: "direction", Reason: fmt.Sprintf("unsupported direction %q", d)}
}

// orderPrice is the limit price for limit orders, the stop price for
// stop-market orders and zero for market orders. The broker takes the same
// value as trigger price.
func orderPrice(o *model.Order) decimal.Decimal {
	switch o.Type {
	case model.OrderLimit:
		return o.LimitPrice
	case model.OrderStopMarket:
		return o.StopPrice
	}
	return decimal.Zero
}

func quantity(q int64) string {
	if q < 0 {
		q = -q
	}
	return strconv.FormatInt(q, 10)
}

// BuildPlaceOrder maps an order to the placeOrder payload.
func BuildPlaceOrder(o *model.Order, tradingSymbol, exchange string) (samco.PlaceOrderRequest, error) {
	ot, err := orderType(o.Type)
	if err != nil {
		return samco.PlaceOrderRequest{}, err
	}
	v, err := validity(o.TimeInForce)
	if err != nil {
		return samco.PlaceOrderRequest{}, err
	}
	tx, err := transaction(o.Direction)
	if err != nil {
		return samco.PlaceOrderRequest{}, err
	}
	if o.Quantity == 0 {
		return samco.PlaceOrderRequest{}, &samco.ValidationError{Field: "quantity", Reason: "must be non-zero"}
	}

	product := o.ProductType
	if product == "" {
		product = DefaultProductType
	}
	qty := quantity(o.Quantity)
	p := samco.PlaceOrderRequest{
		Exchange:             exchange,
		OrderValidity:        v,
		AfterMarketOrderFlag: "NO",
		ProductType:          product,
		SymbolName:           tradingSymbol,
		Quantity:             qty,
		DisclosedQuantity:    qty,
		TransactionType:      tx,
		OrderType:            ot,
	}

	price := orderPrice(o)
	if o.Type == model.OrderMarket || o.Type == model.OrderStopMarket {
		p.MarketProtection = samco.DefaultMarketProtection
	}
	if o.Type == model.OrderLimit || o.Type == model.OrderStopMarket {
		p.TriggerPrice = price.String()
	}
	if !price.IsZero() {
		p.Price = price.String()
	}
	return p, nil
}

// BuildModifyOrder maps an order to the modifyOrder payload.
func BuildModifyOrder(o *model.Order) (samco.ModifyOrderRequest, error) {
	ot, err := orderType(o.Type)
	if err != nil {
		return samco.ModifyOrderRequest{}, err
	}
	v, err := validity(o.TimeInForce)
	if err != nil {
		return samco.ModifyOrderRequest{}, err
	}
	price := orderPrice(o).String()
	return samco.ModifyOrderRequest{
		OrderValidity: v,
		Quantity:      quantity(o.Quantity),
		OrderType:     ot,
		Price:         price,
		TriggerPrice:  price,
	}, nil
}
