package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

func day(s string) time.Time {
	d, err := time.Parse(contracts.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func newRec(ticker string, status contracts.Status) *contracts.Recommendation {
	now := time.Date(2025, 1, 2, 16, 30, 0, 0, time.UTC)
	return &contracts.Recommendation{
		ID:              uuid.NewString(),
		Ticker:          ticker,
		Strategy:        "midterm",
		Status:          status,
		AnchorDate:      day("2025-01-02"),
		AnchorClose:     10000,
		CreatedAt:       now,
		StatusChangedAt: now,
	}
}

func event(rec *contracts.Recommendation, reason contracts.ReasonCode) *contracts.StateEvent {
	return &contracts.StateEvent{
		ID:               uuid.NewString(),
		RecommendationID: rec.ID,
		Ticker:           rec.Ticker,
		ToStatus:         rec.Status,
		Reason:           reason,
		OccurredAt:       rec.StatusChangedAt,
	}
}

func insert(t *testing.T, s *MemoryStore, rec *contracts.Recommendation) {
	t.Helper()
	err := s.WithTickerLock(context.Background(), rec.Ticker, func(tx contracts.RecommendationTx) error {
		if err := tx.Insert(context.Background(), rec); err != nil {
			return err
		}
		return tx.AppendEvent(context.Background(), event(rec, contracts.ReasonCreated))
	})
	require.NoError(t, err)
}

func TestMemoryStore_InsertAndRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRec("005930", contracts.StatusActive)
	insert(t, s, rec)

	got, err := s.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Ticker, got.Ticker)

	// 반환값 수정이 저장 상태에 영향 없음
	got.AnchorClose = 1
	again, _ := s.GetByID(ctx, rec.ID)
	assert.Equal(t, 10000.0, again.AnchorClose)

	open, err := s.ListByStatus(ctx, contracts.OpenStatuses...)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	broken, err := s.ListByStatus(ctx, contracts.StatusBroken)
	require.NoError(t, err)
	assert.Empty(t, broken)

	events, err := s.ListEvents(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, contracts.ReasonCreated, events[0].Reason)
	assert.Equal(t, 1, s.EventCount())

	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRec("005930", contracts.StatusActive)

	boom := errors.New("boom")
	err := s.WithTickerLock(ctx, rec.Ticker, func(tx contracts.RecommendationTx) error {
		require.NoError(t, tx.Insert(ctx, rec))
		require.NoError(t, tx.AppendEvent(ctx, event(rec, contracts.ReasonCreated)))

		// 같은 트랜잭션 안에서는 보임
		open, err := tx.FindOpen(ctx, rec.Ticker)
		require.NoError(t, err)
		assert.Len(t, open, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetByID(ctx, rec.ID)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
	assert.Equal(t, 0, s.EventCount())
}

func TestMemoryStore_OneOpenPerTicker(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	insert(t, s, newRec("005930", contracts.StatusActive))

	err := s.WithTickerLock(ctx, "005930", func(tx contracts.RecommendationTx) error {
		return tx.Insert(ctx, newRec("005930", contracts.StatusWeakWarning))
	})
	assert.ErrorIs(t, err, contracts.ErrDuplicateActive)

	// 다른 종목은 무관
	insert(t, s, newRec("000660", contracts.StatusActive))
}

func TestMemoryStore_TickerLockEnforced(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.WithTickerLock(ctx, "005930", func(tx contracts.RecommendationTx) error {
		return tx.Insert(ctx, newRec("000660", contracts.StatusActive))
	})
	assert.ErrorIs(t, err, contracts.ErrTickerNotLocked)
}

func TestMemoryStore_WriteOnceFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRec("005930", contracts.StatusActive)
	insert(t, s, rec)

	brokenAt := day("2025-01-09")
	ret := -8.0
	reason := contracts.ReasonNoMomentum

	err := s.WithTickerLock(ctx, rec.Ticker, func(tx contracts.RecommendationTx) error {
		cur, err := tx.Get(ctx, rec.ID)
		if err != nil {
			return err
		}
		cur.Status = contracts.StatusBroken
		cur.BrokenAt = &brokenAt
		cur.BrokenReturnPct = &ret
		cur.BrokenReason = &reason
		return tx.Update(ctx, cur)
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(r *contracts.Recommendation)
	}{
		{"anchor close", func(r *contracts.Recommendation) { r.AnchorClose = 9000 }},
		{"anchor date", func(r *contracts.Recommendation) { r.AnchorDate = day("2025-01-03") }},
		{"broken return", func(r *contracts.Recommendation) { v := -9.0; r.BrokenReturnPct = &v }},
		{"broken at cleared", func(r *contracts.Recommendation) { r.BrokenAt = nil }},
		{"strategy", func(r *contracts.Recommendation) { r.Strategy = "swing" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.WithTickerLock(ctx, rec.Ticker, func(tx contracts.RecommendationTx) error {
				cur, err := tx.Get(ctx, rec.ID)
				if err != nil {
					return err
				}
				tt.mutate(cur)
				return tx.Update(ctx, cur)
			})
			assert.ErrorIs(t, err, contracts.ErrSnapshotImmutable)
		})
	}

	got, _ := s.GetByID(ctx, rec.ID)
	assert.Equal(t, -8.0, *got.BrokenReturnPct)
	assert.Equal(t, 10000.0, got.AnchorClose)
}

func TestMemoryStore_FindLatestClosed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	older := newRec("005930", contracts.StatusArchived)
	olderAt := day("2025-01-10")
	older.ArchivedAt = &olderAt

	newer := newRec("005930", contracts.StatusBroken)
	newerAt := day("2025-02-10")
	newer.BrokenAt = &newerAt

	insert(t, s, older)
	insert(t, s, newer)

	err := s.WithTickerLock(ctx, "005930", func(tx contracts.RecommendationTx) error {
		latest, err := tx.FindLatestClosed(ctx, "005930")
		require.NoError(t, err)
		assert.Equal(t, newer.ID, latest.ID)

		_, err = tx.FindLatestClosed(ctx, "000660")
		assert.ErrorIs(t, err, contracts.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_ConcurrentInsertSameTicker(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var created int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithTickerLock(ctx, "005930", func(tx contracts.RecommendationTx) error {
				open, err := tx.FindOpen(ctx, "005930")
				if err != nil || len(open) > 0 {
					return err
				}
				atomic.AddInt32(&created, 1)
				return tx.Insert(ctx, newRec("005930", contracts.StatusActive))
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created)
	open, _ := s.ListByStatus(ctx, contracts.OpenStatuses...)
	assert.Len(t, open, 1)
}

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := k.Lock(ctx, "a")
	require.NoError(t, err)

	// 다른 키는 즉시 획득
	unlockB, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()

	// 같은 키는 ctx 만료까지 대기
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(short, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Equal(t, 0, k.Len())

	unlock, err = k.Lock(ctx, "a")
	require.NoError(t, err)
	unlock()
}
