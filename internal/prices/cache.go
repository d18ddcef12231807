package prices

import (
	"context"
	"sync"
	"time"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/pkg/logger"
	"github.com/rexfever/showmethestock-sub000/pkg/redis"
)

// CachedSeries is one cached close series with the range it was fetched for
type CachedSeries struct {
	From      time.Time              `json:"from"`
	To        time.Time              `json:"to"`
	Closes    []contracts.DailyClose `json:"closes"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// Covers reports whether the series answers [from, to] without a refetch.
// The last cached close must be on or after to, so a series fetched before
// the asOf close was published is never served for that asOf.
func (s *CachedSeries) Covers(from, to time.Time) bool {
	if s == nil || len(s.Closes) == 0 {
		return false
	}
	if s.From.After(from) {
		return false
	}
	return !s.Closes[len(s.Closes)-1].Date.Before(to)
}

// Slice returns the closes inside [from, to]
func (s *CachedSeries) Slice(from, to time.Time) []contracts.DailyClose {
	var out []contracts.DailyClose
	for _, c := range s.Closes {
		if c.Date.Before(from) || c.Date.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SeriesCache is the injected cache port.
// Entries expire after the TTL given to the implementation.
type SeriesCache interface {
	GetSeries(ctx context.Context, ticker string) (*CachedSeries, bool, error)
	PutSeries(ctx context.Context, ticker string, series *CachedSeries) error
	GetClose(ctx context.Context, ticker string, date time.Time) (float64, bool, error)
	PutClose(ctx context.Context, ticker string, date time.Time, price float64) error
}

// CachedProvider serves reads from a SeriesCache in front of a provider
type CachedProvider struct {
	next  contracts.PriceHistoryProvider
	cache SeriesCache
	log   *logger.Logger
}

// NewCachedProvider wraps next with cache
func NewCachedProvider(next contracts.PriceHistoryProvider, cache SeriesCache, log *logger.Logger) *CachedProvider {
	return &CachedProvider{
		next:  next,
		cache: cache,
		log:   log.WithComponent("prices.cache"),
	}
}

// ResolveClose returns the pinned close; only found closes are cached
func (p *CachedProvider) ResolveClose(ctx context.Context, ticker string, date time.Time) (float64, error) {
	if price, ok, err := p.cache.GetClose(ctx, ticker, date); err != nil {
		p.log.WithError(err).WithField("ticker", ticker).Warn("close cache read failed")
	} else if ok {
		return price, nil
	}

	price, err := p.next.ResolveClose(ctx, ticker, date)
	if err != nil {
		return 0, err
	}

	if err := p.cache.PutClose(ctx, ticker, date, price); err != nil {
		p.log.WithError(err).WithField("ticker", ticker).Warn("close cache write failed")
	}
	return price, nil
}

// DailyCloses serves a covering cached series or refetches and overwrites it
func (p *CachedProvider) DailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]contracts.DailyClose, error) {
	cached, ok, err := p.cache.GetSeries(ctx, ticker)
	if err != nil {
		p.log.WithError(err).WithField("ticker", ticker).Warn("series cache read failed")
	} else if ok && cached.Covers(from, to) {
		return cached.Slice(from, to), nil
	}

	closes, err := p.next.DailyCloses(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}

	series := &CachedSeries{From: from, To: to, Closes: closes, FetchedAt: time.Now()}
	if err := p.cache.PutSeries(ctx, ticker, series); err != nil {
		p.log.WithError(err).WithField("ticker", ticker).Warn("series cache write failed")
	}
	return closes, nil
}

// =============================================================================
// Redis-backed cache
// =============================================================================

// RedisSeriesCache stores series in Redis through pkg/redis.Cache.
// Redis 비활성 시 pkg/redis.Cache 가 no-op 이므로 항상 miss
type RedisSeriesCache struct {
	cache *redis.Cache
	ttl   time.Duration
}

// NewRedisSeriesCache creates a Redis series cache with the given TTL
func NewRedisSeriesCache(cache *redis.Cache, ttl time.Duration) *RedisSeriesCache {
	if ttl <= 0 {
		ttl = redis.TTLDaily
	}
	return &RedisSeriesCache{cache: cache, ttl: ttl}
}

func (c *RedisSeriesCache) GetSeries(ctx context.Context, ticker string) (*CachedSeries, bool, error) {
	var s CachedSeries
	found, err := c.cache.Get(ctx, redis.CloseSeriesKey(ticker), &s)
	if err != nil || !found {
		return nil, false, err
	}
	return &s, true, nil
}

func (c *RedisSeriesCache) PutSeries(ctx context.Context, ticker string, series *CachedSeries) error {
	return c.cache.Set(ctx, redis.CloseSeriesKey(ticker), series, c.ttl)
}

func (c *RedisSeriesCache) GetClose(ctx context.Context, ticker string, date time.Time) (float64, bool, error) {
	var price float64
	found, err := c.cache.Get(ctx, redis.CloseKey(ticker, date.Format(contracts.DateLayout)), &price)
	return price, found, err
}

func (c *RedisSeriesCache) PutClose(ctx context.Context, ticker string, date time.Time, price float64) error {
	return c.cache.Set(ctx, redis.CloseKey(ticker, date.Format(contracts.DateLayout)), price, c.ttl)
}

// =============================================================================
// Process-local cache
// =============================================================================

type memoryEntry struct {
	series    *CachedSeries
	expiresAt time.Time
}

type closeKey struct {
	ticker string
	date   string
}

type closeEntry struct {
	price     float64
	expiresAt time.Time
}

// MemorySeriesCache is a TTL cache scoped to one process (replay, backfill)
type MemorySeriesCache struct {
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	series map[string]memoryEntry
	closes map[closeKey]closeEntry
}

// NewMemorySeriesCache creates a process-local cache
func NewMemorySeriesCache(ttl time.Duration) *MemorySeriesCache {
	return &MemorySeriesCache{
		ttl:    ttl,
		now:    time.Now,
		series: make(map[string]memoryEntry),
		closes: make(map[closeKey]closeEntry),
	}
}

func (c *MemorySeriesCache) GetSeries(_ context.Context, ticker string) (*CachedSeries, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.series[ticker]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.series, true, nil
}

func (c *MemorySeriesCache) PutSeries(_ context.Context, ticker string, series *CachedSeries) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.series[ticker] = memoryEntry{series: series, expiresAt: c.now().Add(c.ttl)}
	return nil
}

func (c *MemorySeriesCache) GetClose(_ context.Context, ticker string, date time.Time) (float64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.closes[closeKey{ticker, date.Format(contracts.DateLayout)}]
	if !ok || c.now().After(e.expiresAt) {
		return 0, false, nil
	}
	return e.price, true, nil
}

func (c *MemorySeriesCache) PutClose(_ context.Context, ticker string, date time.Time, price float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closes[closeKey{ticker, date.Format(contracts.DateLayout)}] = closeEntry{price: price, expiresAt: c.now().Add(c.ttl)}
	return nil
}
