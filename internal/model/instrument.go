package model

import "github.com/shopspring/decimal"

// InstrumentClass is the broker's instrument tag from the scrip master.
type InstrumentClass string

const (
	ClassEquity      InstrumentClass = "EQ"
	ClassIndex       InstrumentClass = "INDEX"
	ClassIndexOption InstrumentClass = "OPTIDX"
	ClassIndexFuture InstrumentClass = "FUTIDX"
	ClassStockOption InstrumentClass = "OPTSTK"
	ClassStockFuture InstrumentClass = "FUTSTK"

	// Present in the catalogue but not tradable through this bridge.
	ClassCommodityFuture InstrumentClass = "FUTCOM"
	ClassCommodityOption InstrumentClass = "OPTCOM"
	ClassBullionOption   InstrumentClass = "OPTBLN"
	ClassEnergyFuture    InstrumentClass = "FUTENR"
	ClassCurrencyOption  InstrumentClass = "OPTCUR"
	ClassCurrencyFuture  InstrumentClass = "FUTCUR"
	ClassBondFuture      InstrumentClass = "FUTIRC"
	ClassBondFutureT     InstrumentClass = "FUTIRT"
	ClassBondOption      InstrumentClass = "OPTIRC"
)

// Supported reports whether rows of this class are retained in the cache.
func (c InstrumentClass) Supported() bool {
	switch c {
	case ClassEquity, ClassIndex, ClassIndexOption, ClassIndexFuture, ClassStockOption, ClassStockFuture:
		return true
	}
	return false
}

// Exchange codes used by the broker.
const (
	ExchangeNSE = "NSE" // cash
	ExchangeNFO = "NFO" // derivatives
)

// InstrumentRecord is one row of the broker's scrip master.
// StrikePrice and ExpiryDate are kept as raw text; they are empty for rows
// that do not carry them.
type InstrumentRecord struct {
	Exchange        string          `json:"exchange"`
	ExchangeSegment string          `json:"exchange_segment"`
	SymbolCode      string          `json:"symbol_code"`
	TradingSymbol   string          `json:"trading_symbol"`
	Name            string          `json:"name"`
	LastPrice       decimal.Decimal `json:"last_price"`
	Instrument      InstrumentClass `json:"instrument"`
	LotSize         int64           `json:"lot_size"`
	StrikePrice     string          `json:"strike_price,omitempty"`
	ExpiryDate      string          `json:"expiry_date,omitempty"`
	TickSize        decimal.Decimal `json:"tick_size"`
}

// Key returns a unique key for this instrument: "exchange:code".
func (r *InstrumentRecord) Key() string {
	return r.Exchange + ":" + r.SymbolCode
}

// Retained reports whether the row passes the exchange and class filter.
func (r *InstrumentRecord) Retained() bool {
	return (r.Exchange == ExchangeNSE || r.Exchange == ExchangeNFO) && r.Instrument.Supported()
}
