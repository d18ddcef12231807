package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rexfever/showmethestock-sub000/internal/lifecycle"
)

// evaluateCmd runs one LIVE cycle
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "LIVE 평가 1회 실행",
	Long: `열린(ACTIVE/WEAK_WARNING) 추천과 BROKEN 추천을 평가합니다.

이 명령어는:
- 기준일(기본: 오늘, 시장 시간대) 종가로 손절/TTL 판정
- BROKEN 추천을 다음 거래일에 ARCHIVED 로 보관
- 종목 단위 병렬 처리, 실패는 레코드 단위로 요약에 기록

Example:
  go run ./cmd/reco evaluate
  go run ./cmd/reco evaluate --as-of 2025-01-10`,
	RunE: runEvaluate,
}

// replayCmd runs REPLAY for one date or a range
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "REPLAY 평가 / 백필",
	Long: `과거 기준일로 평가를 재실행합니다.

--as-of 는 하루, --from/--to 는 거래일 단위 백필입니다.
같은 기간을 다시 실행해도 결과는 동일합니다 (멱등).
--dry-run 은 저장 없이 결과만 계산합니다.

Example:
  go run ./cmd/reco replay --as-of 2025-02-14 --dry-run
  go run ./cmd/reco replay --from 2025-01-02 --to 2025-03-31 --strategy midterm
  go run ./cmd/reco replay --as-of 2025-02-14 --prices fixtures/closes.json --dry-run`,
	RunE: runReplay,
}

var (
	evalAsOf string

	replayAsOf       string
	replayFrom       string
	replayTo         string
	replayStrategies []string
	replayStatuses   []string
	replayTickers    []string
	replayAnchorFrom string
	replayAnchorTo   string
	replayDryRun     bool
	replayPrices     string
)

func init() {
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(replayCmd)

	evaluateCmd.Flags().StringVar(&evalAsOf, "as-of", "", "evaluation date YYYY-MM-DD (default: today)")

	replayCmd.Flags().StringVar(&replayAsOf, "as-of", "", "single replay date YYYY-MM-DD")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "backfill start date YYYY-MM-DD")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "backfill end date YYYY-MM-DD")
	replayCmd.Flags().StringSliceVar(&replayStrategies, "strategy", nil, "only these strategies")
	replayCmd.Flags().StringSliceVar(&replayStatuses, "status", nil, "only these statuses (ACTIVE, WEAK_WARNING, BROKEN)")
	replayCmd.Flags().StringSliceVar(&replayTickers, "ticker", nil, "only these tickers")
	replayCmd.Flags().StringVar(&replayAnchorFrom, "anchor-from", "", "only records anchored on/after this date")
	replayCmd.Flags().StringVar(&replayAnchorTo, "anchor-to", "", "only records anchored on/before this date")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "compute transitions without persisting")
	replayCmd.Flags().StringVar(&replayPrices, "prices", "", "JSON close fixture used instead of the daily_prices table")
	replayCmd.MarkFlagsMutuallyExclusive("as-of", "from")
	replayCmd.MarkFlagsMutuallyExclusive("as-of", "to")
	replayCmd.MarkFlagsRequiredTogether("from", "to")
}

// signalContext cancels on Ctrl+C / SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	asOf, err := parseDateFlag("as-of", evalAsOf)
	if err != nil {
		return err
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := a.engine.Evaluate(ctx, lifecycle.EvaluateRequest{
		Mode: lifecycle.ModeLive,
		AsOf: asOf,
	})
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	if jsonOutput {
		return printJSON(summary)
	}
	printSummary(summary)
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	req, err := replayRequest()
	if err != nil {
		return err
	}
	from, err := parseDateFlag("from", replayFrom)
	if err != nil {
		return err
	}
	to, err := parseDateFlag("to", replayTo)
	if err != nil {
		return err
	}
	if req.AsOf.IsZero() && from.IsZero() {
		return fmt.Errorf("replay requires --as-of or --from/--to")
	}

	a, err := newApp(appOptions{priceFixture: replayPrices})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if !from.IsZero() {
		backfill, err := a.engine.Backfill(ctx, from, to, req)
		if err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
		if jsonOutput {
			return printJSON(backfill)
		}
		printBackfill(backfill)
		return nil
	}

	summary, err := a.engine.Evaluate(ctx, req)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if jsonOutput {
		return printJSON(summary)
	}
	printSummary(summary)
	return nil
}

// replayRequest builds the REPLAY request from flags
func replayRequest() (lifecycle.EvaluateRequest, error) {
	asOf, err := parseDateFlag("as-of", replayAsOf)
	if err != nil {
		return lifecycle.EvaluateRequest{}, err
	}
	anchorFrom, err := parseDateFlag("anchor-from", replayAnchorFrom)
	if err != nil {
		return lifecycle.EvaluateRequest{}, err
	}
	anchorTo, err := parseDateFlag("anchor-to", replayAnchorTo)
	if err != nil {
		return lifecycle.EvaluateRequest{}, err
	}
	statuses, err := parseStatuses(replayStatuses)
	if err != nil {
		return lifecycle.EvaluateRequest{}, err
	}

	return lifecycle.EvaluateRequest{
		Mode:   lifecycle.ModeReplay,
		AsOf:   asOf,
		DryRun: replayDryRun,
		Filters: lifecycle.Filters{
			AnchorFrom: anchorFrom,
			AnchorTo:   anchorTo,
			Strategies: splitList(replayStrategies),
			Statuses:   statuses,
			Tickers:    splitList(replayTickers),
		},
	}, nil
}
