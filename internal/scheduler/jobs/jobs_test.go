package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexfever/showmethestock-sub000/internal/calendar"
	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/internal/lifecycle"
	"github.com/rexfever/showmethestock-sub000/pkg/logger"
)

type fakeEvaluator struct {
	calls []lifecycle.EvaluateRequest
	err   error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, req lifecycle.EvaluateRequest) (*lifecycle.Summary, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &lifecycle.Summary{Mode: req.Mode, AsOf: req.AsOf.Format(contracts.DateLayout)}, nil
}

var kst = time.FixedZone("KST", 9*60*60)

func TestEvaluationJob_UsesMarketDate(t *testing.T) {
	eval := &fakeEvaluator{}
	job := NewEvaluationJob(eval, calendar.NewKRX(), kst, "0 30 16 * * 1-5", logger.Nop())
	// 2025-01-09 20:00 UTC = 2025-01-10 05:00 KST
	job.now = func() time.Time { return time.Date(2025, 1, 9, 20, 0, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, eval.calls, 1)
	assert.Equal(t, lifecycle.ModeLive, eval.calls[0].Mode)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), eval.calls[0].AsOf)
	assert.Equal(t, "lifecycle_evaluation", job.Name())
	assert.Equal(t, "0 30 16 * * 1-5", job.Schedule())
}

func TestEvaluationJob_SkipsNonTradingDay(t *testing.T) {
	eval := &fakeEvaluator{}
	job := NewEvaluationJob(eval, calendar.NewKRX(), kst, "@daily", logger.Nop())
	job.now = func() time.Time { return time.Date(2025, 1, 28, 8, 0, 0, 0, time.UTC) } // 설 연휴

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, eval.calls)
}

func TestEvaluationJob_PropagatesRunError(t *testing.T) {
	eval := &fakeEvaluator{err: errors.New("store unavailable")}
	job := NewEvaluationJob(eval, calendar.NewKRX(), kst, "@daily", logger.Nop())
	job.now = func() time.Time { return time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC) }

	assert.Error(t, job.Run(context.Background()))
}

type fakeIntake struct {
	summary *lifecycle.IntakeSummary
	err     error
	limit   int
}

func (f *fakeIntake) Run(_ context.Context, _ contracts.CandidateFeed, limit int) (*lifecycle.IntakeSummary, error) {
	f.limit = limit
	return f.summary, f.err
}

func TestIntakeJob(t *testing.T) {
	runner := &fakeIntake{summary: &lifecycle.IntakeSummary{Pulled: 3, Created: 2, Rejected: 1}}
	job := NewIntakeJob(runner, nil, 50, "0 */10 * * * *", logger.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 50, runner.limit)
	assert.Equal(t, "candidate_intake", job.Name())

	runner.err = errors.New("feed down")
	assert.Error(t, job.Run(context.Background()))
}
