package contracts

import (
	"context"
	"time"
)

// TradingCalendar answers trading-day questions.
// ⭐ SSOT: 거래일 계산 규약
//
// TradingDaysBetween(d1, d2) counts trading days t with d1 < t <= d2
// (negative mirror when d2 < d1). NthTradingDayAfter(d, n) is the n-th
// trading day strictly after d, so TradingDaysBetween(d, NthTradingDayAfter(d, n)) == n.
type TradingCalendar interface {
	IsTradingDay(d time.Time) bool
	TradingDaysBetween(d1, d2 time.Time) int
	NthTradingDayAfter(d time.Time, n int) time.Time
}

// PriceHistoryProvider serves daily closes.
// Missing data is reported as ErrPriceUnavailable.
type PriceHistoryProvider interface {
	// ResolveClose returns the pinned close for a trading date
	ResolveClose(ctx context.Context, ticker string, date time.Time) (float64, error)
	// DailyCloses returns closes in [from, to] ordered by date ascending
	DailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]DailyClose, error)
}

// RecommendationReader is the read-only consumer surface
type RecommendationReader interface {
	GetByID(ctx context.Context, id string) (*Recommendation, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Recommendation, error)
	ListEvents(ctx context.Context, recommendationID string) ([]*StateEvent, error)
}

// RecommendationStore adds the per-ticker unit of work.
// WithTickerLock runs fn inside the ticker's critical section; everything fn
// writes through tx is committed iff fn returns nil.
type RecommendationStore interface {
	RecommendationReader
	WithTickerLock(ctx context.Context, ticker string, fn func(tx RecommendationTx) error) error
}

// RecommendationTx is the write side, only valid inside WithTickerLock
type RecommendationTx interface {
	Get(ctx context.Context, id string) (*Recommendation, error)
	// FindOpen returns every ACTIVE/WEAK_WARNING record of the ticker (normally 0 or 1)
	FindOpen(ctx context.Context, ticker string) ([]*Recommendation, error)
	// FindLatestClosed returns the most recently closed BROKEN/ARCHIVED record
	FindLatestClosed(ctx context.Context, ticker string) (*Recommendation, error)
	Insert(ctx context.Context, rec *Recommendation) error
	Update(ctx context.Context, rec *Recommendation) error
	AppendEvent(ctx context.Context, ev *StateEvent) error
}

// CandidateFeed proposes new recommendations
type CandidateFeed interface {
	Pending(ctx context.Context, limit int) ([]*Candidate, error)
	Ack(ctx context.Context, candidateID string, result *CreateResult) error
}
