package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rexfever/showmethestock-sub000/internal/feed"
	"github.com/rexfever/showmethestock-sub000/internal/scheduler"
	"github.com/rexfever/showmethestock-sub000/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/reco scheduler start
  go run ./cmd/reco scheduler list
  go run ./cmd/reco scheduler run lifecycle_evaluation`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- lifecycle_evaluation: 평일 장 마감 후 (EVALUATION_SCHEDULE, 기본 16:30)
- candidate_intake: 평일 장중 10분마다 (INTAKE_SCHEDULE)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	sched.Start()

	PrintHeader("Lifecycle Scheduler", [][2]string{
		{"ENV", a.cfg.Env},
		{"Timezone", a.cfg.Lifecycle.Location().String()},
	})
	PrintSuccess("Scheduler started successfully")
	printJobs(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	// cron 엔트리의 다음 실행 시각은 Start 이후에 계산됨
	sched.Start()
	defer sched.Stop()

	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, sched, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunJob(ctx, jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if jsonOutput {
		return printJSON(result)
	}
	if !result.Success {
		PrintError(fmt.Sprintf("Job %s failed after %d attempt(s): %s", jobName, result.Attempts, result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess(fmt.Sprintf("Job %s completed in %s", jobName, result.Duration))
	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()

	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		next := "-"
		if t, ok := sched.NextRun(jobName); ok && !t.IsZero() {
			next = t.Format("2006-01-02 15:04:05 MST")
		}
		fmt.Printf("  - %-22s %-20s next: %s\n", jobName, stats[jobName].Schedule, next)
	}
}

// initScheduler wires the engine and registers the lifecycle jobs
func initScheduler() (*app, *scheduler.Scheduler, error) {
	a, err := newApp(appOptions{})
	if err != nil {
		return nil, nil, err
	}

	opts := scheduler.DefaultOptions()
	opts.Location = a.cfg.Lifecycle.Location()
	sched := scheduler.New(a.log, opts)

	evaluation := jobs.NewEvaluationJob(a.engine, a.cal, opts.Location, a.cfg.Lifecycle.EvaluationSchedule,
		a.log.WithComponent("jobs.evaluation"))
	intake := jobs.NewIntakeJob(a.intake, feed.NewPostgresFeed(a.db.Pool, a.cfg.Lifecycle.CandidateLease), a.cfg.Lifecycle.IntakeBatchSize,
		a.cfg.Lifecycle.IntakeSchedule, a.log.WithComponent("jobs.intake"))

	for _, job := range []scheduler.Job{evaluation, intake} {
		if err := sched.AddJob(job); err != nil {
			a.Close()
			return nil, nil, err
		}
	}
	return a, sched, nil
}
