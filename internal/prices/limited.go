package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// LimitedProvider bounds every lookup with a timeout and a shared rate limit.
// Timeouts surface as ErrPriceUnavailable so the record is retried next cycle.
type LimitedProvider struct {
	next    contracts.PriceHistoryProvider
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimitedProvider wraps next. perSecond <= 0 disables rate limiting.
func NewLimitedProvider(next contracts.PriceHistoryProvider, perSecond int, timeout time.Duration) *LimitedProvider {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return &LimitedProvider{
		next:    next,
		limiter: limiter,
		timeout: timeout,
	}
}

func (p *LimitedProvider) ResolveClose(ctx context.Context, ticker string, date time.Time) (float64, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	if err := p.wait(ctx, ticker); err != nil {
		return 0, err
	}

	price, err := p.next.ResolveClose(ctx, ticker, date)
	if err != nil {
		return 0, p.classify(ctx, err, ticker)
	}
	return price, nil
}

func (p *LimitedProvider) DailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]contracts.DailyClose, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	if err := p.wait(ctx, ticker); err != nil {
		return nil, err
	}

	closes, err := p.next.DailyCloses(ctx, ticker, from, to)
	if err != nil {
		return nil, p.classify(ctx, err, ticker)
	}
	return closes, nil
}

func (p *LimitedProvider) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// wait takes a rate token. A token that cannot arrive before the lookup
// deadline counts as a timeout.
func (p *LimitedProvider) wait(ctx context.Context, ticker string) error {
	err := p.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s rate limit wait: %v", contracts.ErrPriceUnavailable, ticker, err)
}

// classify maps a lookup deadline onto the retryable taxonomy.
// 상위 ctx 취소(배치 중단)는 그대로 전달
func (p *LimitedProvider) classify(ctx context.Context, err error, ticker string) error {
	if errors.Is(err, contracts.ErrPriceUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s lookup timed out after %s", contracts.ErrPriceUnavailable, ticker, p.timeout)
	}
	return err
}
