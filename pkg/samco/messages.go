package samco

import "github.com/shopspring/decimal"

// ---- Authentication ----

// AuthRequest is the /login payload.
type AuthRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
	YOB      string `json:"yob"`
}

// Envelope carries the fields every StockNote response has.
type Envelope struct {
	ServerTime    string `json:"serverTime"`
	MsgID         string `json:"msgId"`
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage"`
}

type LoginResponse struct {
	Envelope
	SessionToken  string   `json:"sessionToken"`
	AccountID     string   `json:"accountID"`
	AccountName   string   `json:"accountName"`
	ExchangeList  []string `json:"exchangeList"`
	OrderTypeList []string `json:"orderTypeList"`
	ProductList   []string `json:"productList"`
}

type LogoutResponse struct {
	Envelope
}

// ---- Market data ----

type IndexQuoteResponse struct {
	Envelope
	IndexName          string          `json:"indexName"`
	ListingID          string          `json:"listingId"`
	LastTradedTime     string          `json:"lastTradedTime"`
	LastTradedPrice    decimal.Decimal `json:"lastTradedPrice"`
	SpotPrice          decimal.Decimal `json:"spotPrice"`
	ChangePercentage   decimal.Decimal `json:"changePercentage"`
	LastTradedQuantity int64           `json:"lastTradedQuantity"`
	AveragePrice       decimal.Decimal `json:"averagePrice"`
	OpenValue          decimal.Decimal `json:"openValue"`
	HighValue          decimal.Decimal `json:"highValue"`
	LowValue           decimal.Decimal `json:"lowValue"`
	CloseValue         decimal.Decimal `json:"closeValue"`
	TotalBuyQuantity   int64           `json:"totalBuyQuantity"`
	TotalSellQuantity  int64           `json:"totalSellQuantity"`
	TotalTradedValue   decimal.Decimal `json:"totalTradedValue"`
	TotalTradedVolume  decimal.Decimal `json:"totalTradedVolume"`
	OpenInterest       decimal.Decimal `json:"openInterest"`
	OIChangePercentage decimal.Decimal `json:"getoIChangePer"`
}

// BookLevel is one level of best bids or asks.
type BookLevel struct {
	Number   string          `json:"number"`
	Quantity string          `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type QuoteResponse struct {
	Envelope
	TradingSymbol      string          `json:"tradingSymbol"`
	Exchange           string          `json:"exchange"`
	CompanyName        string          `json:"companyName"`
	LastTradedTime     string          `json:"lastTradedTime"`
	LastTradedPrice    string          `json:"lastTradedPrice"`
	PreviousClose      string          `json:"previousClose"`
	ChangeValue        string          `json:"changeValue"`
	ChangePercentage   string          `json:"changePercentage"`
	LastTradedQuantity string          `json:"lastTradedQuantity"`
	LowerCircuitLimit  string          `json:"lowerCircuitLimit"`
	UpperCircuitLimit  string          `json:"upperCircuitLimit"`
	AveragePrice       string          `json:"averagePrice"`
	OpenValue          string          `json:"openValue"`
	HighValue          string          `json:"highValue"`
	LowValue           string          `json:"lowValue"`
	CloseValue         string          `json:"closeValue"`
	TotalBuyQuantity   string          `json:"totalBuyQuantity"`
	TotalSellQuantity  string          `json:"totalSellQuantity"`
	TotalTradedValue   string          `json:"totalTradedValue"`
	TotalTradedVolume  decimal.Decimal `json:"totalTradedVolume"`
	YearlyHighPrice    string          `json:"yearlyHighPrice"`
	YearlyLowPrice     string          `json:"yearlyLowPrice"`
	TickSize           string          `json:"tickSize"`
	OpenInterest       string          `json:"openInterest"`
	BestBids           []BookLevel     `json:"bestBids"`
	BestAsks           []BookLevel     `json:"bestAsks"`
	ExpiryDate         string          `json:"expiryDate"`
	SpotPrice          string          `json:"spotPrice"`
	Instrument         string          `json:"instrument"`
	LotQuantity        string          `json:"lotQuantity"`
	ListingID          string          `json:"listingId"`
	OpenInterestChange string          `json:"openInterestChange"`
	OIChangePercentage string          `json:"getoIChangePer"`
}

type OptionChainDetail struct {
	TradingSymbol      string      `json:"tradingSymbol"`
	Exchange           string      `json:"exchange"`
	Symbol             string      `json:"symbol"`
	StrikePrice        string      `json:"strikePrice"`
	ExpiryDate         string      `json:"expiryDate"`
	Instrument         string      `json:"instrument"`
	OptionType         string      `json:"optionType"`
	UnderlyingSymbol   string      `json:"underLyingSymbol"`
	SpotPrice          string      `json:"spotPrice"`
	LastTradedPrice    string      `json:"lastTradedPrice"`
	OpenInterest       string      `json:"openInterest"`
	OpenInterestChange string      `json:"openInterestChange"`
	OIChangePercentage string      `json:"oichangePer"`
	BestBids           []BookLevel `json:"bestBids"`
	BestAsks           []BookLevel `json:"bestAsks"`
}

type OptionChainResponse struct {
	Envelope
	OptionChainDetails []OptionChainDetail `json:"optionChainDetails"`
}

type SearchResult struct {
	Exchange         string          `json:"exchange"`
	ScripDescription string          `json:"scripDescription"`
	TradingSymbol    string          `json:"tradingSymbol"`
	ISIN             string          `json:"isin"`
	BodLotQuantity   string          `json:"bodLotQuantity"`
	TickSize         decimal.Decimal `json:"tickSize"`
	Instrument       string          `json:"instrument"`
	QuantityInLots   int64           `json:"quantityInLots"`
}

type SearchResponse struct {
	Envelope
	SearchResults []SearchResult `json:"searchResults"`
}

// ---- Candles ----
// All OHLCV fields arrive as strings.

type IntradayCandle struct {
	DateTime string `json:"dateTime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

type IntradayCandleResponse struct {
	Envelope
	IntradayCandleData []IntradayCandle `json:"intradayCandleData"`
}

type IndexIntradayCandleResponse struct {
	Envelope
	IndexIntradayCandleData []IntradayCandle `json:"indexIntradayCandleData"`
}

type HistoricalCandle struct {
	Date   string `json:"date"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	LTP    string `json:"ltp"`
	Volume string `json:"volume"`
}

type HistoricalCandleResponse struct {
	Envelope
	HistoricalCandleData []HistoricalCandle `json:"historicalCandleData"`
}

type IndexHistoricalCandleResponse struct {
	Envelope
	IndexHistoricalCandleData []HistoricalCandle `json:"indexHistoricalCandleData"`
}

// ---- Account ----

type HoldingDetail struct {
	AveragePrice             decimal.Decimal `json:"averagePrice"`
	Exchange                 string          `json:"exchange"`
	MarkToMarketPrice        string          `json:"markToMarketPrice"`
	LastTradedPrice          decimal.Decimal `json:"lastTradedPrice"`
	PreviousClose            string          `json:"previousClose"`
	ProductCode              string          `json:"productCode"`
	SymbolDescription        string          `json:"symbolDescription"`
	TradingSymbol            string          `json:"tradingSymbol"`
	CalculatedNetQuantity    string          `json:"calculatedNetQuantity"`
	HoldingsQuantity         decimal.Decimal `json:"holdingsQuantity"`
	CollateralQuantity       string          `json:"collateralQuantity"`
	HoldingsValue            string          `json:"holdingsValue"`
	ISIN                     string          `json:"ISIN"`
	SellableQuantity         string          `json:"sellableQuantity"`
	TotalMarketToMarketPrice string          `json:"totalMarketToMarketPrice"`
}

type HoldingsResponse struct {
	Envelope
	HoldingDetails []HoldingDetail `json:"holdingDetails"`
}

type SegmentLimit struct {
	GrossAvailableMargin          string          `json:"grossAvailableMargin"`
	PayInToday                    decimal.Decimal `json:"payInToday"`
	NotionalCash                  decimal.Decimal `json:"notionalCash"`
	CollateralMarginAgainstShares decimal.Decimal `json:"collateralMarginAgainstShares"`
	MarginUsed                    string          `json:"marginUsed"`
	NetAvailableMargin            string          `json:"netAvailableMargin"`
}

type LimitsResponse struct {
	Envelope
	EquityLimit    SegmentLimit `json:"equityLimit"`
	CommodityLimit SegmentLimit `json:"commodityLimit"`
}

type PositionDetail struct {
	AveragePrice          string   `json:"averagePrice"`
	Exchange              string   `json:"exchange"`
	MarkToMarketPrice     string   `json:"markToMarketPrice"`
	LastTradedPrice       string   `json:"lastTradedPrice"`
	PreviousClose         string   `json:"previousClose"`
	ProductCode           string   `json:"productCode"`
	TradingSymbol         string   `json:"tradingSymbol"`
	CalculatedNetQuantity string   `json:"calculatedNetQuantity"`
	AverageBuyPrice       string   `json:"averageBuyPrice"`
	AverageSellPrice      string   `json:"averageSellPrice"`
	BoardLotQuantity      int64    `json:"boardLotQuantity"`
	BoughtPrice           string   `json:"boughtPrice"`
	BuyQuantity           int64    `json:"buyQuantity"`
	CarryForwardQuantity  int64    `json:"carryForwardQuantity"`
	CarryForwardValue     string   `json:"carryForwardValue"`
	Multiplier            int64    `json:"multiplier"`
	NetPositionValue      string   `json:"netPositionValue"`
	NetQuantity           int64    `json:"netQuantity"`
	NetValue              string   `json:"netValue"`
	PositionType          string   `json:"positionType"`
	PositionConversions   []string `json:"positionConversions"`
	SoldValue             string   `json:"soldValue"`
	TransactionType       string   `json:"transactionType"`
	RealizedGainAndLoss   string   `json:"realizedGainAndLoss"`
	UnrealizedGainAndLoss string   `json:"unrealizedGainAndLoss"`
	CompanyName           string   `json:"companyName"`
}

type PositionSummary struct {
	GainingTodayCount      int64  `json:"gainingTodayCount"`
	LosingTodayCount       int64  `json:"losingTodayCount"`
	TotalGainAndLossAmount string `json:"totalGainAndLossAmount"`
	DayGainAndLossAmount   string `json:"dayGainAndLossAmount"`
}

type PositionsResponse struct {
	Envelope
	PositionSummary PositionSummary  `json:"positionSummary"`
	PositionDetails []PositionDetail `json:"positionDetails"`
}

// ---- Orders ----

type OrderDetails struct {
	PendingQuantity   string `json:"pendingQuantity"`
	AvgExecutionPrice string `json:"avgExecutionPrice"`
	OrderPlacedBy     string `json:"orderPlacedBy"`
	TradingSymbol     string `json:"tradingSymbol"`
	TriggerPrice      string `json:"triggerPrice"`
	Exchange          string `json:"exchange"`
	TotalQuantity     string `json:"totalQuantity"`
	Expiry            string `json:"expiry"`
	TransactionType   string `json:"transactionType"`
	ProductType       string `json:"productType"`
	OrderType         string `json:"orderType"`
	Quantity          string `json:"quantity"`
	FilledQuantity    string `json:"filledQuantity"`
	OrderPrice        string `json:"orderPrice"`
	FilledPrice       string `json:"filledPrice"`
	ExchangeOrderNo   string `json:"exchangeOrderNo"`
	OrderValidity     string `json:"orderValidity"`
	OrderNumber       string `json:"orderNumber"`
	OrderStatus       string `json:"orderStatus"`
	OrderTime         string `json:"orderTime"`
}

type OrderBookResponse struct {
	Envelope
	OrderBookDetails []OrderDetails `json:"orderBookDetails"`
}

type OrderResponse struct {
	Envelope
	OrderNumber         string       `json:"orderNumber"`
	OrderStatus         string       `json:"orderStatus"`
	ExchangeOrderStatus string       `json:"exchangeOrderStatus"`
	RejectionReason     string       `json:"rejectionReason"`
	OrderDetails        OrderDetails `json:"orderDetails"`
	ValidationErrors    []string     `json:"validationErrors"`
}

type TradeBookDetail struct {
	OrderNumber              string `json:"orderNumber"`
	Exchange                 string `json:"exchange"`
	TradingSymbol            string `json:"tradingSymbol"`
	SymbolDescription        string `json:"symbolDescription"`
	TransactionType          string `json:"transactionType"`
	ProductCode              string `json:"productCode"`
	OrderType                string `json:"orderType"`
	OrderPrice               string `json:"orderPrice"`
	Quantity                 string `json:"quantity"`
	DisclosedQuantity        string `json:"disclosedQuantity"`
	TriggerPrice             string `json:"triggerPrice"`
	MarketProtection         string `json:"marketProtection"`
	OrderValidity            string `json:"orderValidity"`
	OrderStatus              string `json:"orderStatus"`
	OrderValue               string `json:"orderValue"`
	InstrumentName           string `json:"instrumentName"`
	OrderTime                string `json:"orderTime"`
	UserID                   string `json:"userId"`
	FilledQuantity           string `json:"filledQuantity"`
	UnfilledQuantity         string `json:"unfilledQuantity"`
	ExchangeConfirmationTime string `json:"exchangeConfirmationTime"`
	CoverOrderPercentage     string `json:"coverOrderPercentage"`
	ExchangeOrderNumber      string `json:"exchangeOrderNumber"`
	TradeNumber              string `json:"tradeNumber"`
	TradePrice               string `json:"tradePrice"`
	TradeDate                string `json:"tradeDate"`
	TradeTime                string `json:"tradeTime"`
	StrikePrice              string `json:"strikePrice"`
	OptionType               string `json:"optionType"`
	LastTradePrice           string `json:"lastTradePrice"`
	Expiry                   string `json:"expiry"`
}

type TradeBookResponse struct {
	Envelope
	TradeBookDetails []TradeBookDetail `json:"tradeBookDetails"`
}
