package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/internal/feed"
)

// intakeCmd drains a candidate feed through the gate
var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "후보 피드 → 생성 게이트",
	Long: `대기 중인 후보를 생성 게이트로 처리합니다.

기본 피드는 lifecycle.candidates 테이블입니다.
--file 을 주면 JSON 후보 파일을 직접 처리하고,
--enqueue 와 함께 주면 파일의 후보를 테이블 큐에 적재만 합니다.

PRICE_UNAVAILABLE 후보는 ack 하지 않고 다음 주기에 재시도합니다.

Example:
  go run ./cmd/reco intake
  go run ./cmd/reco intake --file candidates.json
  go run ./cmd/reco intake --file candidates.json --enqueue`,
	RunE: runIntake,
}

var (
	intakeFile    string
	intakeLimit   int
	intakeEnqueue bool
)

func init() {
	rootCmd.AddCommand(intakeCmd)

	intakeCmd.Flags().StringVar(&intakeFile, "file", "", "JSON candidate file")
	intakeCmd.Flags().IntVar(&intakeLimit, "limit", 0, "max candidates per run (default: INTAKE_BATCH_SIZE)")
	intakeCmd.Flags().BoolVar(&intakeEnqueue, "enqueue", false, "with --file: queue candidates in the database instead of processing them")
}

func runIntake(cmd *cobra.Command, args []string) error {
	if intakeEnqueue && intakeFile == "" {
		return fmt.Errorf("--enqueue requires --file")
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	limit := intakeLimit
	if limit <= 0 {
		limit = a.cfg.Lifecycle.IntakeBatchSize
	}

	pgFeed := feed.NewPostgresFeed(a.db.Pool, a.cfg.Lifecycle.CandidateLease)
	var source contracts.CandidateFeed = pgFeed
	if intakeFile != "" {
		fileFeed, err := feed.LoadFile(intakeFile)
		if err != nil {
			return err
		}
		if intakeEnqueue {
			return enqueueFile(ctx, pgFeed, fileFeed)
		}
		source = fileFeed
	}

	summary, err := a.intake.Run(ctx, source, limit)
	if err != nil {
		return fmt.Errorf("intake: %w", err)
	}

	if jsonOutput {
		return printJSON(summary)
	}
	printIntake(summary)

	if intakeFile == "" {
		counts, err := pgFeed.Counts(ctx)
		if err != nil {
			return err
		}
		PrintInfo(fmt.Sprintf("Queue: %d pending, %d created, %d rejected",
			counts["PENDING"], counts["CREATED"], counts["REJECTED"]))
	}
	return nil
}

// enqueueFile copies every candidate of a file into the database queue
func enqueueFile(ctx context.Context, pgFeed *feed.PostgresFeed, fileFeed *feed.MemoryFeed) error {
	pending, err := fileFeed.Pending(ctx, 0)
	if err != nil {
		return err
	}

	for _, c := range pending {
		if _, err := pgFeed.Enqueue(ctx, c); err != nil {
			return fmt.Errorf("enqueue %s: %w", c.Ticker, err)
		}
	}
	PrintSuccess(fmt.Sprintf("Queued %d candidate(s)", len(pending)))
	return nil
}
