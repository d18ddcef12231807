package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rexfever/showmethestock-sub000/internal/calendar"
	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/internal/lifecycle"
	"github.com/rexfever/showmethestock-sub000/pkg/logger"
)

// Evaluator runs one evaluation cycle
type Evaluator interface {
	Evaluate(ctx context.Context, req lifecycle.EvaluateRequest) (*lifecycle.Summary, error)
}

// EvaluationJob runs the LIVE evaluation loop after the session closes
// ⭐ SSOT: 일일 평가 스케줄은 이 Job에서만
type EvaluationJob struct {
	engine   Evaluator
	cal      contracts.TradingCalendar
	loc      *time.Location
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewEvaluationJob creates a new evaluation job
func NewEvaluationJob(engine Evaluator, cal contracts.TradingCalendar, loc *time.Location, schedule string, log *logger.Logger) *EvaluationJob {
	return &EvaluationJob{
		engine:   engine,
		cal:      cal,
		loc:      loc,
		schedule: schedule,
		logger:   log,
		now:      time.Now,
	}
}

// Name returns the job name
func (j *EvaluationJob) Name() string {
	return "lifecycle_evaluation"
}

// Schedule returns the cron schedule (weekdays after close by default)
func (j *EvaluationJob) Schedule() string {
	return j.schedule
}

// Run evaluates every open and broken recommendation as of today.
// Per-record failures stay in the summary and do not fail the job.
func (j *EvaluationJob) Run(ctx context.Context) error {
	today := calendar.Civil(j.now().In(j.loc))
	if !j.cal.IsTradingDay(today) {
		j.logger.WithField("date", today.Format(contracts.DateLayout)).Info("Not a trading day, evaluation skipped")
		return nil
	}

	summary, err := j.engine.Evaluate(ctx, lifecycle.EvaluateRequest{
		Mode: lifecycle.ModeLive,
		AsOf: today,
	})
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", today.Format(contracts.DateLayout), err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("evaluation interrupted: %w", err)
	}

	log := j.logger.WithFields(map[string]interface{}{
		"as_of":        summary.AsOf,
		"evaluated":    summary.Evaluated,
		"transitioned": summary.Transitioned,
		"archived":     summary.Archived,
		"skipped":      summary.Skipped,
		"errors":       summary.ErrorCount,
	})
	if summary.ErrorCount > 0 {
		log.Warn("Scheduled evaluation completed with errors")
		return nil
	}
	log.Info("Scheduled evaluation completed")
	return nil
}
