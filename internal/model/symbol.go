package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketIndia is the only market identifier the broker serves.
const MarketIndia = "india"

// SecurityType is the broker-agnostic asset class of a canonical symbol.
type SecurityType int

const (
	SecurityUnknown SecurityType = iota
	SecurityEquity
	SecurityIndex
	SecurityFuture
	SecurityOption
	SecurityIndexOption
)

func (s SecurityType) String() string {
	switch s {
	case SecurityEquity:
		return "Equity"
	case SecurityIndex:
		return "Index"
	case SecurityFuture:
		return "Future"
	case SecurityOption:
		return "Option"
	case SecurityIndexOption:
		return "IndexOption"
	default:
		return "Unknown"
	}
}

// ParseSecurityType is case-insensitive and accepts the String() forms.
func ParseSecurityType(s string) (SecurityType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equity":
		return SecurityEquity, true
	case "index":
		return SecurityIndex, true
	case "future":
		return SecurityFuture, true
	case "option":
		return SecurityOption, true
	case "indexoption":
		return SecurityIndexOption, true
	}
	return SecurityUnknown, false
}

// IsOption reports whether the type carries strike, expiry and right.
func (s SecurityType) IsOption() bool {
	return s == SecurityOption || s == SecurityIndexOption
}

// OptionRight is Call or Put. Zero for non-options.
type OptionRight int

const (
	RightNone OptionRight = iota
	RightCall
	RightPut
)

func (r OptionRight) String() string {
	switch r {
	case RightCall:
		return "Call"
	case RightPut:
		return "Put"
	default:
		return "None"
	}
}

// ParseOptionRight accepts "call"/"put" and the broker's "CE"/"PE".
func ParseOptionRight(s string) (OptionRight, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "CE", "C":
		return RightCall, true
	case "PUT", "PE", "P":
		return RightPut, true
	}
	return RightNone, false
}

// Symbol is the canonical, broker-agnostic identifier of a tradable instrument.
//
// For futures and options Ticker holds the underlying name. Expiry is set for
// Future, Option and IndexOption; Strike and Right only for options.
type Symbol struct {
	Ticker       string          `json:"ticker"`
	SecurityType SecurityType    `json:"security_type"`
	Market       string          `json:"market"`
	Expiry       time.Time       `json:"expiry,omitempty"`
	Strike       decimal.Decimal `json:"strike"`
	Right        OptionRight     `json:"right,omitempty"`
}

// NewEquity returns an equity symbol on the Indian market.
func NewEquity(ticker string) Symbol {
	return Symbol{Ticker: ticker, SecurityType: SecurityEquity, Market: MarketIndia}
}

// NewIndex returns an index symbol on the Indian market.
func NewIndex(ticker string) Symbol {
	return Symbol{Ticker: ticker, SecurityType: SecurityIndex, Market: MarketIndia}
}

// NewFuture returns a future over the named underlying.
func NewFuture(underlying string, expiry time.Time) Symbol {
	return Symbol{Ticker: underlying, SecurityType: SecurityFuture, Market: MarketIndia, Expiry: dateOnly(expiry)}
}

// NewOption returns an Option over an equity or, when overIndex is set, an
// IndexOption over an index.
func NewOption(underlying string, overIndex bool, right OptionRight, strike decimal.Decimal, expiry time.Time) Symbol {
	st := SecurityOption
	if overIndex {
		st = SecurityIndexOption
	}
	return Symbol{
		Ticker:       underlying,
		SecurityType: st,
		Market:       MarketIndia,
		Expiry:       dateOnly(expiry),
		Strike:       strike,
		Right:        right,
	}
}

// Underlying returns the symbol a derivative is written on. Futures resolve to
// an Equity underlying; index futures are indistinguishable by symbol alone.
func (s Symbol) Underlying() (Symbol, bool) {
	switch s.SecurityType {
	case SecurityOption, SecurityFuture:
		return NewEquity(s.Ticker), true
	case SecurityIndexOption:
		return NewIndex(s.Ticker), true
	}
	return Symbol{}, false
}

// Key returns a stable identity string, usable as a map key.
// Format: "TYPE|market|TICKER[|yyyymmdd[|strike|right]]".
func (s Symbol) Key() string {
	var b strings.Builder
	b.WriteString(s.SecurityType.String())
	b.WriteByte('|')
	b.WriteString(s.Market)
	b.WriteByte('|')
	b.WriteString(s.Ticker)
	switch s.SecurityType {
	case SecurityFuture:
		b.WriteByte('|')
		b.WriteString(s.Expiry.Format("20060102"))
	case SecurityOption, SecurityIndexOption:
		b.WriteByte('|')
		b.WriteString(s.Expiry.Format("20060102"))
		b.WriteByte('|')
		b.WriteString(s.Strike.String())
		b.WriteByte('|')
		b.WriteString(s.Right.String())
	}
	return b.String()
}

// Equal compares two symbols by value.
func (s Symbol) Equal(o Symbol) bool {
	return s.Key() == o.Key()
}

func (s Symbol) String() string {
	return s.Key()
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
