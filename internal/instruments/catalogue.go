package instruments

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"samco-bridge/internal/model"
	"samco-bridge/pkg/samco"

	"github.com/shopspring/decimal"
)

// ScripMasterURL is where the broker publishes its instrument catalogue.
const ScripMasterURL = "https://developers.stocknote.com/doc/ScripMaster.csv"

const catalogueSource = "scripmaster"

// Catalogue columns, in the broker's header order.
var columns = []string{
	"exchange", "exchangeSegment", "symbolCode", "tradingSymbol", "name", "lastPrice",
	"instrument", "lotSize", "strikePrice", "expiryDate", "tickSize",
}

// The broker feed omits index instruments; these rows are always injected.
const syntheticIndexRows = `NSE,nse_index,-21,NIFTY,NIFTY 50,0,INDEX,1,,,0.01
NSE,nse_index,-22,BANKNIFTY,NIFTY BANk,0,INDEX,1,,,0.01
NSE,nse_index,-29,FINNIFTY,NIFTY FIN SERVICE,0,INDEX,1,,,0.01
`

// injectIndexRows places the synthetic index rows right after the header line.
func injectIndexRows(raw []byte) []byte {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	header, body, found := bytes.Cut(raw, []byte("\n"))
	out := make([]byte, 0, len(raw)+len(syntheticIndexRows)+1)
	out = append(out, bytes.TrimRight(header, "\r")...)
	out = append(out, '\n')
	out = append(out, syntheticIndexRows...)
	if found {
		out = append(out, body...)
	}
	return out
}

// parseCatalogue reads a scrip master CSV and returns the retained rows.
// Rows outside the retained exchanges and classes are skipped without
// inspecting their numeric fields; skipped counts them. A retained row
// whose numeric fields do not parse fails the whole read.
func parseCatalogue(r io.Reader) (records []model.InstrumentRecord, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, &samco.ParseError{Source: catalogueSource, Field: "header", Err: err}
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, c := range columns {
		if _, ok := idx[c]; !ok {
			return nil, 0, &samco.ParseError{Source: catalogueSource, Field: "header", Value: strings.Join(header, ","),
				Err: fmt.Errorf("missing column %q", c)}
		}
	}

	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, skipped, &samco.ParseError{Source: catalogueSource, Field: fmt.Sprintf("line %d", line), Err: err}
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		get := func(col string) string {
			i := idx[col]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		rec := model.InstrumentRecord{
			Exchange:        get("exchange"),
			ExchangeSegment: get("exchangeSegment"),
			SymbolCode:      get("symbolCode"),
			TradingSymbol:   get("tradingSymbol"),
			Name:            get("name"),
			Instrument:      model.InstrumentClass(get("instrument")),
			StrikePrice:     get("strikePrice"),
			ExpiryDate:      get("expiryDate"),
		}
		if !rec.Retained() {
			skipped++
			continue
		}
		if len(row) < len(columns) {
			return nil, skipped, &samco.ParseError{Source: catalogueSource, Field: fmt.Sprintf("line %d", line),
				Value: strings.Join(row, ","), Err: fmt.Errorf("expected %d fields, got %d", len(columns), len(row))}
		}
		if rec.SymbolCode == "" {
			return nil, skipped, &samco.ParseError{Source: catalogueSource, Field: "symbolCode",
				Value: strings.Join(row, ","), Err: errors.New("empty symbol code")}
		}

		if rec.LastPrice, err = parseDecimal(get("lastPrice")); err != nil {
			return nil, skipped, rowError(rec, "lastPrice", get("lastPrice"), err)
		}
		if rec.TickSize, err = parseDecimal(get("tickSize")); err != nil {
			return nil, skipped, rowError(rec, "tickSize", get("tickSize"), err)
		}
		if rec.LotSize, err = parseLot(get("lotSize")); err != nil {
			return nil, skipped, rowError(rec, "lotSize", get("lotSize"), err)
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func rowError(rec model.InstrumentRecord, field, value string, err error) error {
	return &samco.ParseError{
		Source: fmt.Sprintf("%s code=%s", catalogueSource, rec.SymbolCode),
		Field:  field,
		Value:  value,
		Err:    err,
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// parseLot accepts "75" and "75.0".
func parseLot(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("fractional lot size")
	}
	return d.IntPart(), nil
}
