package instruments

import (
	"strings"
	"time"

	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"

	"github.com/shopspring/decimal"
)

// ExpiryLayout is the catalogue's expiry date format.
const ExpiryLayout = "2006-01-02"

// Classify maps one catalogue row to its canonical symbol.
// Every InstrumentClass has its own arm; unsupported classes and option rows
// without a CE/PE suffix return *samco.UnsupportedInstrumentError, bad expiry
// or strike fields return *samco.ParseError.
func Classify(r *model.InstrumentRecord) (model.Symbol, error) {
	switch r.Instrument {
	case model.ClassEquity:
		return model.NewEquity(strings.TrimSuffix(r.TradingSymbol, "-EQ")), nil

	case model.ClassIndex:
		return model.NewIndex(r.TradingSymbol), nil

	case model.ClassIndexFuture, model.ClassStockFuture:
		expiry, err := parseExpiry(r)
		if err != nil {
			return model.Symbol{}, err
		}
		return model.NewFuture(r.Name, expiry), nil

	case model.ClassIndexOption:
		return classifyOption(r, true)

	case model.ClassStockOption:
		return classifyOption(r, false)

	case model.ClassCommodityFuture, model.ClassCommodityOption, model.ClassBullionOption,
		model.ClassEnergyFuture, model.ClassCurrencyOption, model.ClassCurrencyFuture,
		model.ClassBondFuture, model.ClassBondFutureT, model.ClassBondOption:
		return model.Symbol{}, unsupported(r, "instrument class not supported")

	default:
		return model.Symbol{}, unsupported(r, "unknown instrument class")
	}
}

func classifyOption(r *model.InstrumentRecord, overIndex bool) (model.Symbol, error) {
	right, ok := optionRight(r.TradingSymbol)
	if !ok {
		return model.Symbol{}, unsupported(r, "trading symbol ends with neither CE nor PE")
	}
	strike, err := decimal.NewFromString(r.StrikePrice)
	if err != nil {
		return model.Symbol{}, rowError(*r, "strikePrice", r.StrikePrice, err)
	}
	expiry, err := parseExpiry(r)
	if err != nil {
		return model.Symbol{}, err
	}
	return model.NewOption(r.Name, overIndex, right, strike, expiry), nil
}

// optionRight reads the right from the trading-symbol suffix, ignoring case.
func optionRight(tradingSymbol string) (model.OptionRight, bool) {
	s := strings.ToUpper(tradingSymbol)
	switch {
	case strings.HasSuffix(s, "PE"):
		return model.RightPut, true
	case strings.HasSuffix(s, "CE"):
		return model.RightCall, true
	}
	return model.RightNone, false
}

func parseExpiry(r *model.InstrumentRecord) (time.Time, error) {
	t, err := time.Parse(ExpiryLayout, r.ExpiryDate)
	if err != nil {
		return time.Time{}, rowError(*r, "expiryDate", r.ExpiryDate, err)
	}
	return t, nil
}

func unsupported(r *model.InstrumentRecord, reason string) error {
	return &samco.UnsupportedInstrumentError{
		SymbolCode:    r.SymbolCode,
		TradingSymbol: r.TradingSymbol,
		Instrument:    string(r.Instrument),
		Reason:        reason,
	}
}
