package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderDirection is the side of an order.
type OrderDirection string

const (
	DirectionBuy  OrderDirection = "BUY"
	DirectionSell OrderDirection = "SELL"
)

// OrderType is the engine-side order type.
type OrderType string

const (
	OrderMarket     OrderType = "MARKET"
	OrderLimit      OrderType = "LIMIT"
	OrderStopMarket OrderType = "STOP_MARKET"
	OrderStopLimit  OrderType = "STOP_LIMIT"
)

// TimeInForce is the engine-side validity.
type TimeInForce string

const (
	TIFDay             TimeInForce = "DAY"
	TIFGoodTilCanceled TimeInForce = "GTC"
	TIFGoodTilDate     TimeInForce = "GTD"
)

// Order represents an engine order routed to the broker.
type Order struct {
	ID          string          `json:"id"` // broker order number once placed
	Symbol      Symbol          `json:"symbol"`
	Direction   OrderDirection  `json:"direction"`
	Type        OrderType       `json:"type"`
	TimeInForce TimeInForce     `json:"time_in_force"`
	Quantity    int64           `json:"quantity"` // signed quantities are accepted; the sign is ignored
	LimitPrice  decimal.Decimal `json:"limit_price"`
	StopPrice   decimal.Decimal `json:"stop_price"`
	ProductType string          `json:"product_type"` // CNC, MIS, NRML
	CreatedAt   time.Time       `json:"created_at"`
}
