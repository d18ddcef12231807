package jobs

import (
	"context"
	"fmt"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/internal/lifecycle"
	"github.com/rexfever/showmethestock-sub000/pkg/logger"
)

// IntakeRunner drains a candidate feed
type IntakeRunner interface {
	Run(ctx context.Context, feed contracts.CandidateFeed, limit int) (*lifecycle.IntakeSummary, error)
}

// IntakeJob pulls pending candidates through the creation gate
type IntakeJob struct {
	intake   IntakeRunner
	feed     contracts.CandidateFeed
	limit    int
	schedule string
	logger   *logger.Logger
}

// NewIntakeJob creates a new intake job
func NewIntakeJob(intake IntakeRunner, feed contracts.CandidateFeed, limit int, schedule string, log *logger.Logger) *IntakeJob {
	return &IntakeJob{
		intake:   intake,
		feed:     feed,
		limit:    limit,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *IntakeJob) Name() string {
	return "candidate_intake"
}

// Schedule returns the cron schedule
func (j *IntakeJob) Schedule() string {
	return j.schedule
}

// Run executes one intake pass
func (j *IntakeJob) Run(ctx context.Context) error {
	summary, err := j.intake.Run(ctx, j.feed, j.limit)
	if err != nil {
		return fmt.Errorf("candidate intake: %w", err)
	}

	if summary.Pulled == 0 {
		j.logger.Debug("No pending candidates")
		return nil
	}
	j.logger.WithFields(map[string]interface{}{
		"pulled":   summary.Pulled,
		"created":  summary.Created,
		"rejected": summary.Rejected,
		"deferred": summary.Deferred,
		"failed":   summary.Failed,
	}).Info("Scheduled intake completed")
	return nil
}
