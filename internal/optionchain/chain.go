// Package optionchain lists the derivative contracts the catalogue carries
// for an underlying.
package optionchain

import (
	"sort"
	"time"

	"samco-bridge/internal/model"
)

// Source provides the canonical symbols of the current catalogue snapshot.
type Source interface {
	Symbols() []model.Symbol
}

type Provider struct {
	src Source
}

func NewProvider(src Source) *Provider {
	return &Provider{src: src}
}

// OptionChain returns the options written on underlying that expire on or
// after date, ordered by expiry, strike and right.
func (p *Provider) OptionChain(underlying model.Symbol, date time.Time) []model.Symbol {
	var out []model.Symbol
	for _, s := range p.src.Symbols() {
		if !s.SecurityType.IsOption() || !notBefore(s.Expiry, date) {
			continue
		}
		u, _ := s.Underlying()
		if u.Equal(underlying) {
			out = append(out, s)
		}
	}
	sortContracts(out)
	return out
}

// FutureChain returns the futures on underlying's ticker that expire on or
// after date, nearest first. Index and stock futures share the ticker space.
func (p *Provider) FutureChain(underlying model.Symbol, date time.Time) []model.Symbol {
	var out []model.Symbol
	for _, s := range p.src.Symbols() {
		if s.SecurityType != model.SecurityFuture || s.Ticker != underlying.Ticker || s.Market != underlying.Market {
			continue
		}
		if notBefore(s.Expiry, date) {
			out = append(out, s)
		}
	}
	sortContracts(out)
	return out
}

// notBefore compares calendar days; expiry is stored at UTC midnight.
func notBefore(expiry, date time.Time) bool {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return !expiry.Before(d)
}

func sortContracts(s []model.Symbol) {
	sort.Slice(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if !a.Expiry.Equal(b.Expiry) {
			return a.Expiry.Before(b.Expiry)
		}
		if c := a.Strike.Cmp(b.Strike); c != 0 {
			return c < 0
		}
		return a.Right < b.Right
	})
}
