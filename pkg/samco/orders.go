package samco

// Broker order vocabulary.
const (
	OrderTypeLimit      = "L"
	OrderTypeMarket     = "MKT"
	OrderTypeStopMarket = "SL-M"

	ValidityDay = "DAY"

	TransactionBuy  = "BUY"
	TransactionSell = "SELL"

	// marketProtection percentage sent with market and stop-market orders
	DefaultMarketProtection = "2"
)

// PlaceOrderRequest is the order/placeOrder payload. Every value is textual.
type PlaceOrderRequest struct {
	Exchange             string `json:"exchange"`
	OrderValidity        string `json:"orderValidity"`
	AfterMarketOrderFlag string `json:"afterMarketOrderFlag"`
	ProductType          string `json:"productType"`
	SymbolName           string `json:"symbolName"`
	Quantity             string `json:"quantity"`
	DisclosedQuantity    string `json:"disclosedQuantity"`
	TransactionType      string `json:"transactionType"`
	OrderType            string `json:"orderType"`
	MarketProtection     string `json:"marketProtection,omitempty"`
	TriggerPrice         string `json:"triggerPrice,omitempty"`
	Price                string `json:"price,omitempty"`
}

// ModifyOrderRequest is the order/modifyOrder/{id} payload.
type ModifyOrderRequest struct {
	OrderValidity string `json:"orderValidity"`
	Quantity      string `json:"quantity"`
	OrderType     string `json:"orderType"`
	Price         string `json:"price"`
	TriggerPrice  string `json:"triggerPrice"`
}
