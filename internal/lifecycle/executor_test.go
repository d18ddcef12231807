package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

func TestExecutor_BrokenNeverReturnsToActive(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.series("B", "2025-01-02", 10, 10000, map[int]float64{2: 9000})
	res := f.create("B", "midterm", "2025-01-02")
	require.True(t, res.Created)
	f.evaluate(ModeLive, "2025-01-06")

	before := f.get(res.RecommendationID)
	require.Equal(t, contracts.StatusBroken, before.Status)
	events := f.store.EventCount()

	_, err := f.exec.Transition(context.Background(), TransitionRequest{
		RecommendationID: res.RecommendationID,
		To:               contracts.StatusActive,
		Reason:           contracts.ReasonRecovered,
		EffectiveDate:    day("2025-01-07"),
	})
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	var terr *contracts.TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, contracts.StatusBroken, terr.From)
	assert.Equal(t, contracts.StatusActive, terr.To)

	assert.Equal(t, before, f.get(res.RecommendationID))
	assert.Equal(t, events, f.store.EventCount())
}

func TestExecutor_ArchiveCopiesBrokenSnapshot(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.series("S", "2025-01-02", 10, 10000, map[int]float64{1: 9100, 2: 15000})
	res := f.create("S", "midterm", "2025-01-02")
	require.True(t, res.Created)
	f.evaluate(ModeLive, "2025-01-03")

	// 요청에 다른 수익률을 넣어도 BROKEN 스냅샷을 그대로 복사
	rec, err := f.exec.Transition(context.Background(), TransitionRequest{
		RecommendationID: res.RecommendationID,
		To:               contracts.StatusArchived,
		EffectiveDate:    day("2025-01-06"),
		ReturnPct:        ptr(50.0),
	})
	require.NoError(t, err)
	assert.Equal(t, -9.0, *rec.ArchiveReturnPct)
	assert.Equal(t, contracts.ReasonNoMomentum, *rec.ArchiveReason)
	assert.Equal(t, 9100.0, *rec.ArchivePrice)
	assert.Equal(t, -9.0, *rec.BrokenReturnPct)

	evs := f.events(rec.ID)
	require.Len(t, evs, 3)
	assert.Equal(t, contracts.ReasonNoMomentum, evs[2].Reason)
}

func TestExecutor_BrokenRequiresSnapshotInputs(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.series("Q", "2025-01-02", 3, 10000, nil)
	res := f.create("Q", "midterm", "2025-01-02")
	require.True(t, res.Created)

	_, err := f.exec.Transition(context.Background(), TransitionRequest{
		RecommendationID: res.RecommendationID,
		To:               contracts.StatusBroken,
		Reason:           contracts.ReasonNoMomentum,
		EffectiveDate:    day("2025-01-03"),
	})
	assert.Error(t, err)
	assert.Equal(t, contracts.StatusActive, f.get(res.RecommendationID).Status)
}

func TestExecutor_UnknownRecord(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, err := f.exec.Transition(context.Background(), TransitionRequest{
		RecommendationID: "missing",
		To:               contracts.StatusArchived,
		EffectiveDate:    day("2025-01-03"),
	})
	assert.True(t, errors.Is(err, contracts.ErrNotFound))
}

func TestExecutor_EveryTransitionHasOneEvent(t *testing.T) {
	f := newFixture(t, fixtureOptions{config: withWeakWarning(4)})
	f.series("W", "2025-01-02", 10, 10000, map[int]float64{1: 9500, 2: 9900, 3: 9000})
	res := f.create("W", "midterm", "2025-01-02")
	require.True(t, res.Created)

	for _, d := range []string{"2025-01-03", "2025-01-06", "2025-01-07", "2025-01-08"} {
		f.evaluate(ModeLive, d)
	}

	evs := f.events(res.RecommendationID)
	var path []contracts.ReasonCode
	for i, ev := range evs {
		path = append(path, ev.Reason)
		if ev.FromStatus != nil {
			assert.True(t, CanTransition(*ev.FromStatus, ev.ToStatus), "event %d", i)
		}
	}
	assert.Equal(t, []contracts.ReasonCode{
		contracts.ReasonCreated,
		contracts.ReasonWeakWarning,
		contracts.ReasonRecovered,
		contracts.ReasonNoMomentum,
		contracts.ReasonNoMomentum,
	}, path)
	assert.Equal(t, contracts.StatusArchived, f.get(res.RecommendationID).Status)
}
