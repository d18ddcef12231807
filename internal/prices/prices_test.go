package prices

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/pkg/logger"
)

func day(s string) time.Time {
	d, err := time.Parse(contracts.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// countingProvider counts calls that reach the underlying provider
type countingProvider struct {
	*StaticProvider
	resolveCalls int32
	seriesCalls  int32
	delay        time.Duration
}

func (p *countingProvider) ResolveClose(ctx context.Context, ticker string, date time.Time) (float64, error) {
	atomic.AddInt32(&p.resolveCalls, 1)
	if err := p.sleep(ctx); err != nil {
		return 0, err
	}
	return p.StaticProvider.ResolveClose(ctx, ticker, date)
}

func (p *countingProvider) DailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]contracts.DailyClose, error) {
	atomic.AddInt32(&p.seriesCalls, 1)
	if err := p.sleep(ctx); err != nil {
		return nil, err
	}
	return p.StaticProvider.DailyCloses(ctx, ticker, from, to)
}

func (p *countingProvider) sleep(ctx context.Context) error {
	if p.delay == 0 {
		return nil
	}
	select {
	case <-time.After(p.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func fixture() *countingProvider {
	s := NewStaticProvider()
	s.SetCloses("005930", []contracts.DailyClose{
		{Date: day("2025-01-06"), Close: 10200},
		{Date: day("2025-01-02"), Close: 10000},
		{Date: day("2025-01-03"), Close: 10100},
	})
	return &countingProvider{StaticProvider: s}
}

func TestStaticProvider(t *testing.T) {
	p := fixture().StaticProvider
	ctx := context.Background()

	closes, err := p.DailyCloses(ctx, "005930", day("2025-01-01"), day("2025-01-03"))
	require.NoError(t, err)
	require.Len(t, closes, 2)
	assert.Equal(t, day("2025-01-02"), closes[0].Date)

	price, err := p.ResolveClose(ctx, "005930", day("2025-01-06"))
	require.NoError(t, err)
	assert.Equal(t, 10200.0, price)

	_, err = p.ResolveClose(ctx, "005930", day("2025-01-07"))
	assert.True(t, errors.Is(err, contracts.ErrPriceUnavailable))

	assert.Equal(t, []string{"005930"}, p.Tickers())
}

func TestLoadStaticFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closes.json")
	content := `{"000660": [{"date": "2025-01-03", "close": 180000}, {"date": "2025-01-02", "close": 175000}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := LoadStaticFile(path)
	require.NoError(t, err)

	series := p.Series("000660")
	require.Len(t, series, 2)
	assert.Equal(t, 175000.0, series[0].Close)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"x": [{"date": "01/02/2025", "close": 1}]}`), 0o644))
	_, err = LoadStaticFile(bad)
	assert.Error(t, err)
}

func TestCachedSeries_Covers(t *testing.T) {
	s := &CachedSeries{
		From: day("2025-01-02"),
		To:   day("2025-01-06"),
		Closes: []contracts.DailyClose{
			{Date: day("2025-01-02"), Close: 1},
			{Date: day("2025-01-06"), Close: 1},
		},
	}

	assert.True(t, s.Covers(day("2025-01-02"), day("2025-01-06")))
	assert.True(t, s.Covers(day("2025-01-03"), day("2025-01-03")))
	assert.False(t, s.Covers(day("2025-01-01"), day("2025-01-06")), "starts before cached range")
	assert.False(t, s.Covers(day("2025-01-02"), day("2025-01-07")), "asOf close not cached yet")
	assert.False(t, (&CachedSeries{}).Covers(day("2025-01-02"), day("2025-01-02")))
}

func TestCachedProvider_DailyCloses(t *testing.T) {
	next := fixture()
	cache := NewMemorySeriesCache(time.Hour)
	p := NewCachedProvider(next, cache, logger.Nop())
	ctx := context.Background()

	first, err := p.DailyCloses(ctx, "005930", day("2025-01-02"), day("2025-01-06"))
	require.NoError(t, err)
	require.Len(t, first, 3)

	// 같은 범위 재조회 → 캐시 적중
	second, err := p.DailyCloses(ctx, "005930", day("2025-01-02"), day("2025-01-03"))
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.seriesCalls))

	// 더 늦은 asOf → 재조회, 캐시 덮어쓰기
	next.SetCloses("005930", append(next.Series("005930"), contracts.DailyClose{Date: day("2025-01-07"), Close: 9000}))
	third, err := p.DailyCloses(ctx, "005930", day("2025-01-02"), day("2025-01-07"))
	require.NoError(t, err)
	assert.Len(t, third, 4)
	assert.Equal(t, int32(2), atomic.LoadInt32(&next.seriesCalls))
}

func TestCachedProvider_ResolveClose(t *testing.T) {
	next := fixture()
	p := NewCachedProvider(next, NewMemorySeriesCache(time.Hour), logger.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		price, err := p.ResolveClose(ctx, "005930", day("2025-01-02"))
		require.NoError(t, err)
		assert.Equal(t, 10000.0, price)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.resolveCalls))

	// 미존재 종가는 캐시하지 않음
	for i := 0; i < 2; i++ {
		_, err := p.ResolveClose(ctx, "005930", day("2025-01-08"))
		assert.ErrorIs(t, err, contracts.ErrPriceUnavailable)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&next.resolveCalls))
}

func TestMemorySeriesCache_Expiry(t *testing.T) {
	cache := NewMemorySeriesCache(time.Minute)
	now := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.PutClose(ctx, "005930", day("2025-01-02"), 10000))
	_, ok, _ := cache.GetClose(ctx, "005930", day("2025-01-02"))
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = cache.GetClose(ctx, "005930", day("2025-01-02"))
	assert.False(t, ok)

	require.NoError(t, cache.PutSeries(ctx, "005930", &CachedSeries{}))
	now = now.Add(2 * time.Minute)
	_, ok, _ = cache.GetSeries(ctx, "005930")
	assert.False(t, ok)
}

func TestLimitedProvider_Timeout(t *testing.T) {
	next := fixture()
	next.delay = 200 * time.Millisecond
	p := NewLimitedProvider(next, 0, 20*time.Millisecond)

	_, err := p.DailyCloses(context.Background(), "005930", day("2025-01-02"), day("2025-01-06"))
	assert.ErrorIs(t, err, contracts.ErrPriceUnavailable)

	_, err = p.ResolveClose(context.Background(), "005930", day("2025-01-02"))
	assert.ErrorIs(t, err, contracts.ErrPriceUnavailable)
}

func TestLimitedProvider_PassThrough(t *testing.T) {
	p := NewLimitedProvider(fixture(), 100, time.Second)

	price, err := p.ResolveClose(context.Background(), "005930", day("2025-01-03"))
	require.NoError(t, err)
	assert.Equal(t, 10100.0, price)

	_, err = p.ResolveClose(context.Background(), "005930", day("2025-01-09"))
	assert.ErrorIs(t, err, contracts.ErrPriceUnavailable)
}

func TestLimitedProvider_ParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	next := fixture()
	next.delay = time.Second
	p := NewLimitedProvider(next, 0, time.Second)

	_, err := p.DailyCloses(ctx, "005930", day("2025-01-02"), day("2025-01-06"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, contracts.ErrPriceUnavailable))
}

func TestCheckWholeCloses(t *testing.T) {
	whole := []contracts.DailyClose{
		{Date: day("2025-01-02"), Close: 72300},
		{Date: day("2025-01-03"), Close: 72400.0},
	}
	assert.NoError(t, CheckWholeCloses("005930", whole))

	fractional := []contracts.DailyClose{
		{Date: day("2025-01-02"), Close: 9300},
		{Date: day("2025-01-03"), Close: 9299.99},
		{Date: day("2025-01-06"), Close: 9310.5},
	}
	err := CheckWholeCloses("X", fractional)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFractionalClose))
	assert.Contains(t, err.Error(), "2 row(s)")
	assert.Contains(t, err.Error(), "2025-01-03=9299.99")
	assert.Contains(t, err.Error(), "2025-01-06=9310.5")
	assert.NotContains(t, err.Error(), "2025-01-02")
}

func TestRepository_SaveBatchRefusesFractionalCloses(t *testing.T) {
	// 검증이 DB 접근보다 먼저이므로 pool 없이도 거부됨
	repo := NewRepository(nil)
	err := repo.SaveBatch(context.Background(), "X", []contracts.DailyClose{
		{Date: day("2025-01-02"), Close: 9299.99},
	})
	assert.True(t, errors.Is(err, ErrFractionalClose))
}
