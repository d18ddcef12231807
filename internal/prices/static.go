package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// StaticProvider serves a fixed close fixture (replay audits, tests)
type StaticProvider struct {
	mu     sync.RWMutex
	series map[string][]contracts.DailyClose
}

// NewStaticProvider creates an empty fixture provider
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{series: make(map[string][]contracts.DailyClose)}
}

// SetCloses replaces the series of ticker; input order does not matter
func (p *StaticProvider) SetCloses(ticker string, closes []contracts.DailyClose) {
	sorted := make([]contracts.DailyClose, len(closes))
	for i, c := range closes {
		sorted[i] = contracts.DailyClose{Date: civil(c.Date), Close: c.Close}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	p.mu.Lock()
	defer p.mu.Unlock()
	p.series[ticker] = sorted
}

// Tickers lists tickers in the fixture
func (p *StaticProvider) Tickers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.series))
	for t := range p.series {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Series returns a copy of the full series of ticker
func (p *StaticProvider) Series(ticker string) []contracts.DailyClose {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]contracts.DailyClose(nil), p.series[ticker]...)
}

func (p *StaticProvider) ResolveClose(_ context.Context, ticker string, date time.Time) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	date = civil(date)
	for _, c := range p.series[ticker] {
		if c.Date.Equal(date) {
			return c.Close, nil
		}
	}
	return 0, fmt.Errorf("%w: %s on %s", contracts.ErrPriceUnavailable, ticker, date.Format(contracts.DateLayout))
}

func (p *StaticProvider) DailyCloses(_ context.Context, ticker string, from, to time.Time) ([]contracts.DailyClose, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	from, to = civil(from), civil(to)
	var out []contracts.DailyClose
	for _, c := range p.series[ticker] {
		if c.Date.Before(from) || c.Date.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// fixtureClose is one row of the JSON fixture form: {"005930": [{"date": "2025-01-02", "close": 72300}]}
type fixtureClose struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// LoadStaticFile reads a JSON close fixture
func LoadStaticFile(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price fixture: %w", err)
	}

	var raw map[string][]fixtureClose
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse price fixture: %w", err)
	}

	p := NewStaticProvider()
	for ticker, rows := range raw {
		closes := make([]contracts.DailyClose, 0, len(rows))
		for i, r := range rows {
			d, err := time.Parse(contracts.DateLayout, r.Date)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: invalid date %q: %w", ticker, i, r.Date, err)
			}
			closes = append(closes, contracts.DailyClose{Date: d, Close: r.Close})
		}
		p.SetCloses(ticker, closes)
	}
	return p, nil
}
