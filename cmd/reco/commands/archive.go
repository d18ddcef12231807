package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// archiveCmd closes one recommendation manually
var archiveCmd = &cobra.Command{
	Use:   "archive ID",
	Short: "추천 수동 보관 (MANUAL_ARCHIVE)",
	Long: `추천 1건을 ARCHIVED 로 종결합니다.

- ACTIVE/WEAK_WARNING: 기준일 종가 수익률로 보관 (종가 없으면 수익률 없이)
- BROKEN: 손절/만료 시점의 수익률과 사유를 그대로 유지
- ARCHIVED: 종결 상태이므로 거부

Example:
  go run ./cmd/reco archive 3f6c... --note "상장폐지 예정"
  go run ./cmd/reco archive 3f6c... --as-of 2025-02-14`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

var (
	archiveNote string
	archiveAsOf string
)

func init() {
	rootCmd.AddCommand(archiveCmd)

	archiveCmd.Flags().StringVar(&archiveNote, "note", "", "operator note stored in the event metadata")
	archiveCmd.Flags().StringVar(&archiveAsOf, "as-of", "", "archive date YYYY-MM-DD (default: today)")
}

func runArchive(cmd *cobra.Command, args []string) error {
	asOf, err := parseDateFlag("as-of", archiveAsOf)
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

	rec, err := a.engine.ManualArchive(ctx, args[0], asOf, archiveNote)
	if err != nil {
		return fmt.Errorf("archive %s: %w", args[0], err)
	}

	if jsonOutput {
		return printJSON(rec)
	}
	PrintSuccess(fmt.Sprintf("Archived %s (%s) on %s, return %s",
		rec.ID, rec.Ticker, dateOrDash(rec.ArchivedAt), pct(rec.ArchiveReturnPct)))
	return nil
}
