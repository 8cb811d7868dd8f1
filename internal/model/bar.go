package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Resolution is the requested bar granularity.
type Resolution int

const (
	ResolutionTick Resolution = iota
	ResolutionSecond
	ResolutionMinute
	ResolutionHour
	ResolutionDaily
)

func (r Resolution) String() string {
	switch r {
	case ResolutionTick:
		return "Tick"
	case ResolutionSecond:
		return "Second"
	case ResolutionMinute:
		return "Minute"
	case ResolutionHour:
		return "Hour"
	case ResolutionDaily:
		return "Daily"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}

// Span returns the fixed time span of one bar. Zero for tick.
func (r Resolution) Span() time.Duration {
	switch r {
	case ResolutionSecond:
		return time.Second
	case ResolutionMinute:
		return time.Minute
	case ResolutionHour:
		return time.Hour
	case ResolutionDaily:
		return 24 * time.Hour
	}
	return 0
}

// ParseResolution is case-insensitive.
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tick":
		return ResolutionTick, nil
	case "second":
		return ResolutionSecond, nil
	case "minute":
		return ResolutionMinute, nil
	case "hour":
		return ResolutionHour, nil
	case "daily", "day":
		return ResolutionDaily, nil
	}
	return 0, fmt.Errorf("unknown resolution %q", s)
}

// TickType classifies the market data being requested.
type TickType int

const (
	TickTrade TickType = iota
	TickQuote
	TickOpenInterest
)

func (t TickType) String() string {
	switch t {
	case TickTrade:
		return "Trade"
	case TickQuote:
		return "Quote"
	case TickOpenInterest:
		return "OpenInterest"
	default:
		return fmt.Sprintf("TickType(%d)", int(t))
	}
}

// Bar is one OHLCV observation for a canonical symbol.
type Bar struct {
	Symbol Symbol          `json:"symbol"`
	Time   time.Time       `json:"time"`   // bar start, IST
	Period time.Duration   `json:"period"` // resolution span
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// EndTime returns the bar close time.
func (b *Bar) EndTime() time.Time {
	return b.Time.Add(b.Period)
}
