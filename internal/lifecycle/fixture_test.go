package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rexfever/showmethestock-sub000/internal/calendar"
	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/internal/prices"
	"github.com/rexfever/showmethestock-sub000/internal/store"
	"github.com/rexfever/showmethestock-sub000/internal/strategyconfig"
	"github.com/rexfever/showmethestock-sub000/pkg/logger"
)

type fixture struct {
	t        *testing.T
	store    *store.MemoryStore
	prices   *prices.StaticProvider
	cal      *calendar.Calendar
	policies *strategyconfig.Policies
	exec     *Executor
	gate     *Gate
	engine   *Engine
}

type fixtureOptions struct {
	config   func(cfg *strategyconfig.Config)
	provider func(p contracts.PriceHistoryProvider) contracts.PriceHistoryProvider
	store    func(s *store.MemoryStore) contracts.RecommendationStore
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	cfg := strategyconfig.Default()
	if opts.config != nil {
		opts.config(cfg)
	}
	policies, err := strategyconfig.NewPolicies(cfg)
	require.NoError(t, err)

	f := &fixture{
		t:        t,
		store:    store.NewMemoryStore(),
		prices:   prices.NewStaticProvider(),
		cal:      calendar.NewKRX(),
		policies: policies,
	}

	var provider contracts.PriceHistoryProvider = f.prices
	if opts.provider != nil {
		provider = opts.provider(provider)
	}
	var st contracts.RecommendationStore = f.store
	if opts.store != nil {
		st = opts.store(f.store)
	}

	log := logger.Nop()
	f.exec = NewExecutor(st, log)
	f.gate = NewGate(st, provider, f.cal, policies, f.exec, log)
	f.engine = NewEngine(st, provider, f.cal, policies, f.exec, EngineConfig{
		Concurrency:     4,
		MaxErrorSamples: 10,
		Location:        time.UTC,
	}, log)
	return f
}

func day(s string) time.Time {
	d, err := calendar.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// series sets closes for the anchor day and the next n trading days.
// overrides are keyed by trading-day index (0 = anchor day).
func (f *fixture) series(ticker, anchor string, n int, base float64, overrides map[int]float64) {
	f.t.Helper()

	closes := make([]contracts.DailyClose, 0, n+1)
	for i := 0; i <= n; i++ {
		price := base
		if p, ok := overrides[i]; ok {
			price = p
		}
		closes = append(closes, contracts.DailyClose{
			Date:  f.cal.NthTradingDayAfter(day(anchor), i),
			Close: price,
		})
	}
	f.prices.SetCloses(ticker, closes)
}

func (f *fixture) create(ticker, strategy, date string) *contracts.CreateResult {
	f.t.Helper()

	res, err := f.gate.Create(context.Background(), contracts.Candidate{
		ID:           ticker + "-" + date,
		Ticker:       ticker,
		Strategy:     strategy,
		ProposedDate: day(date),
	})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) evaluate(mode Mode, asOf string) *Summary {
	f.t.Helper()

	s, err := f.engine.Evaluate(context.Background(), EvaluateRequest{Mode: mode, AsOf: day(asOf)})
	require.NoError(f.t, err)
	return s
}

func (f *fixture) get(id string) *contracts.Recommendation {
	f.t.Helper()

	rec, err := f.store.GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) events(id string) []*contracts.StateEvent {
	f.t.Helper()

	evs, err := f.store.ListEvents(context.Background(), id)
	require.NoError(f.t, err)
	return evs
}

func (f *fixture) all() []*contracts.Recommendation {
	f.t.Helper()

	recs, err := f.store.ListByStatus(context.Background())
	require.NoError(f.t, err)
	return recs
}

// insertRaw writes an ACTIVE record without going through the gate
func (f *fixture) insertRaw(rec *contracts.Recommendation) *contracts.Recommendation {
	f.t.Helper()

	var created *contracts.Recommendation
	err := f.store.WithTickerLock(context.Background(), rec.Ticker, func(tx contracts.RecommendationTx) error {
		var err error
		created, err = f.exec.Create(context.Background(), tx, rec, contracts.EventMetadata{})
		return err
	})
	require.NoError(f.t, err)
	return created
}

func ptr[T any](v T) *T {
	return &v
}
