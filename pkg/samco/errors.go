package samco

import (
	"fmt"
	"strings"
)

// maxErrBody caps how much of a response body is echoed in error messages.
const maxErrBody = 4096

// NotFoundError reports a lookup miss in the instrument cache.
type NotFoundError struct {
	Kind   string // "code", "symbol"
	Key    string
	Caller string
}

func (e *NotFoundError) Error() string {
	if e.Caller != "" {
		return fmt.Sprintf("%s: %s %q not found", e.Caller, e.Kind, e.Key)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// UnsupportedInstrumentError reports a catalogue row this bridge cannot classify.
type UnsupportedInstrumentError struct {
	SymbolCode    string
	TradingSymbol string
	Instrument    string
	Reason        string
}

func (e *UnsupportedInstrumentError) Error() string {
	msg := fmt.Sprintf("unsupported instrument %s (code=%s class=%s)", e.TradingSymbol, e.SymbolCode, e.Instrument)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ValidationError reports a request or mapping that failed a precondition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// HTTPError is a non-200 broker response, or a 429 left after all retries.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	body := string(e.Body)
	if len(body) > maxErrBody {
		body = body[:maxErrBody] + "..."
	}
	return fmt.Sprintf("%s: request failed: [%d] %s, content: %s",
		e.Endpoint, e.StatusCode, strings.TrimSpace(e.Status), body)
}

// ParseError reports a malformed CSV row or JSON payload.
type ParseError struct {
	Source string // e.g. "scripmaster", "/history/candleData"
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: parse %s %q: %v", e.Source, e.Field, e.Value, e.Err)
	default:
		return fmt.Sprintf("%s: parse: %v", e.Source, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }
