package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rexfever/showmethestock-sub000/internal/calendar"
	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// createCmd runs one candidate through the creation gate
var createCmd = &cobra.Command{
	Use:   "create TICKER",
	Short: "추천 생성 (게이트)",
	Long: `후보 1건을 생성 게이트에 통과시킵니다.

게이트 규칙:
- 종목당 열린 추천은 1건 (기존 추천이 있으면 REPEAT_SIGNAL)
- 최근 종료 후 쿨다운 거래일 이내면 COOLDOWN
- 기준일 종가가 없으면 PRICE_UNAVAILABLE (재시도 가능)

Example:
  go run ./cmd/reco create 005930 --strategy midterm --date 2025-01-10
  go run ./cmd/reco create 005930 --strategy swing --snapshot '{"score":82.5,"rank":3}'`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

var (
	createStrategy string
	createDate     string
	createSnapshot string
)

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&createStrategy, "strategy", "", "strategy name (required)")
	createCmd.Flags().StringVar(&createDate, "date", "", "proposed date YYYY-MM-DD (default: today)")
	createCmd.Flags().StringVar(&createSnapshot, "snapshot", "", "score snapshot JSON")
	_ = createCmd.MarkFlagRequired("strategy")
}

func runCreate(cmd *cobra.Command, args []string) error {
	proposed, err := parseDateFlag("date", createDate)
	if err != nil {
		return err
	}

	snapshot, err := contracts.ParseScoreSnapshot([]byte(createSnapshot))
	if err != nil {
		return fmt.Errorf("--snapshot: %w", err)
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if proposed.IsZero() {
		proposed = calendar.Today(a.cfg.Lifecycle.Location())
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := a.gate.Create(ctx, contracts.Candidate{
		ID:            uuid.NewString(),
		Ticker:        args[0],
		Strategy:      createStrategy,
		ProposedDate:  proposed,
		ScoreSnapshot: snapshot,
	})
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	if jsonOutput {
		return printJSON(res)
	}
	switch {
	case res.Created:
		PrintSuccess(fmt.Sprintf("Created %s (%s @ %.2f)",
			res.RecommendationID, res.AnchorDate.Format(contracts.DateLayout), res.AnchorClose))
	case res.Retryable:
		PrintWarning(fmt.Sprintf("Deferred: %s (retry later)", res.Reason))
	default:
		msg := fmt.Sprintf("Rejected: %s", res.Reason)
		if res.RecommendationID != "" {
			msg += fmt.Sprintf(" (existing %s)", res.RecommendationID)
		}
		PrintError(msg)
	}
	return nil
}
