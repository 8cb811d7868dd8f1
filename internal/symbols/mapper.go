// Package symbols converts between canonical symbols and broker codes.
package symbols

import (
	"fmt"
	"time"

	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"

	"github.com/shopspring/decimal"
)

// Catalogue is the subset of *instruments.Cache the mapper reads.
type Catalogue interface {
	LookupByCode(code string) (model.Symbol, error)
	LookupBySymbol(sym model.Symbol) (string, error)
	RecordForSymbol(sym model.Symbol) (model.InstrumentRecord, error)
}

// Mapper holds no state of its own.
type Mapper struct {
	cat Catalogue
}

func NewMapper(cat Catalogue) *Mapper {
	return &Mapper{cat: cat}
}

// ToBrokerCode returns the broker code for sym.
func (m *Mapper) ToBrokerCode(sym model.Symbol) (string, error) {
	return m.cat.LookupBySymbol(sym)
}

// Expect lists the attributes the caller believes the code carries.
// Zero Expiry, zero Strike and RightNone are only accepted for symbols that
// do not carry them.
type Expect struct {
	SecurityType model.SecurityType
	Market       string
	Expiry       time.Time
	Strike       decimal.Decimal
	Right        model.OptionRight
}

// ExpectFrom builds an Expect describing sym.
func ExpectFrom(sym model.Symbol) Expect {
	return Expect{
		SecurityType: sym.SecurityType,
		Market:       sym.Market,
		Expiry:       sym.Expiry,
		Strike:       sym.Strike,
		Right:        sym.Right,
	}
}

// ToCanonicalSymbol resolves code and checks the result against want.
// A mismatch means the caller holds a stale or corrupted mapping and is
// reported as *samco.ValidationError.
func (m *Mapper) ToCanonicalSymbol(code string, want Expect) (model.Symbol, error) {
	sym, err := m.cat.LookupByCode(code)
	if err != nil {
		return model.Symbol{}, err
	}

	if sym.SecurityType != want.SecurityType {
		return model.Symbol{}, mismatch(code, "security_type", want.SecurityType, sym.SecurityType)
	}
	if sym.Market != want.Market {
		return model.Symbol{}, mismatch(code, "market", want.Market, sym.Market)
	}
	if !sameDay(sym.Expiry, want.Expiry) {
		return model.Symbol{}, mismatch(code, "expiry", day(want.Expiry), day(sym.Expiry))
	}
	if !sym.Strike.Equal(want.Strike) {
		return model.Symbol{}, mismatch(code, "strike", want.Strike, sym.Strike)
	}
	if sym.Right != want.Right {
		return model.Symbol{}, mismatch(code, "right", want.Right, sym.Right)
	}
	return sym, nil
}

// TradingSymbol returns the broker's trading symbol and exchange for sym,
// which is what the quote and candle endpoints take.
func (m *Mapper) TradingSymbol(sym model.Symbol) (tradingSymbol, exchange string, err error) {
	rec, err := m.cat.RecordForSymbol(sym)
	if err != nil {
		return "", "", err
	}
	return rec.TradingSymbol, rec.Exchange, nil
}

// Record returns the catalogue row behind sym. The row's SymbolCode is the
// broker code from the same catalogue epoch.
func (m *Mapper) Record(sym model.Symbol) (model.InstrumentRecord, error) {
	return m.cat.RecordForSymbol(sym)
}

func mismatch(code, field string, want, got any) error {
	return &samco.ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("code %s: expected %v, got %v", code, want, got),
	}
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}
	return day(a) == day(b)
}

func day(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	return t.Format("2006-01-02")
}
