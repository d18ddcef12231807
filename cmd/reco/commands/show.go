package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// showCmd prints one recommendation with its audit trail
var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "추천 상세 + 상태 이력",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

// listCmd lists recommendations by status
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "상태별 추천 목록",
	Long: `상태별 추천 목록을 조회합니다 (기본: 전체).

Example:
  go run ./cmd/reco list --status ACTIVE,WEAK_WARNING
  go run ./cmd/reco list --status BROKEN --ticker 005930`,
	RunE: runList,
}

var (
	listStatuses []string
	listTickers  []string
)

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringSliceVar(&listStatuses, "status", nil, "statuses to list (default: all)")
	listCmd.Flags().StringSliceVar(&listTickers, "ticker", nil, "only these tickers")
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	rec, err := a.store.GetByID(ctx, args[0])
	if err != nil {
		return fmt.Errorf("show %s: %w", args[0], err)
	}
	events, err := a.store.ListEvents(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	if jsonOutput {
		return printJSON(struct {
			Recommendation *contracts.Recommendation `json:"recommendation"`
			Events         []*contracts.StateEvent   `json:"events"`
		}{rec, events})
	}
	printRecommendation(rec, events)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	statuses, err := parseStatuses(listStatuses)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		statuses = []contracts.Status{
			contracts.StatusActive,
			contracts.StatusWeakWarning,
			contracts.StatusBroken,
			contracts.StatusArchived,
		}
	}
	tickers := splitList(listTickers)

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	recs, err := a.store.ListByStatus(cmd.Context(), statuses...)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	if len(tickers) > 0 {
		filtered := recs[:0]
		for _, r := range recs {
			for _, t := range tickers {
				if r.Ticker == t {
					filtered = append(filtered, r)
					break
				}
			}
		}
		recs = filtered
	}

	if jsonOutput {
		return printJSON(recs)
	}
	printRecommendationList(recs)
	return nil
}
