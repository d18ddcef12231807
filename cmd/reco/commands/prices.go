package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rexfever/showmethestock-sub000/internal/prices"
)

// pricesCmd groups daily close maintenance
var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "일별 종가 관리",
}

// pricesLoadCmd upserts a JSON close fixture into data.daily_prices
var pricesLoadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "JSON 종가 파일 적재",
	Long: `JSON 종가 파일을 data.daily_prices 에 적재합니다 (upsert).

파일 형식:
  {"005930": [{"date": "2025-01-02", "close": 72300}, ...]}

close_price 는 원 단위 정수이므로 소수점 종가가 있으면 전체 적재를 거부합니다.

Example:
  go run ./cmd/reco prices load fixtures/closes.json`,
	Args: cobra.ExactArgs(1),
	RunE: runPricesLoad,
}

func init() {
	rootCmd.AddCommand(pricesCmd)
	pricesCmd.AddCommand(pricesLoadCmd)
}

func runPricesLoad(cmd *cobra.Command, args []string) error {
	static, err := prices.LoadStaticFile(args[0])
	if err != nil {
		return err
	}

	// 소수점 종가가 하나라도 있으면 아무것도 적재하지 않음
	var bad []error
	for _, ticker := range static.Tickers() {
		if err := prices.CheckWholeCloses(ticker, static.Series(ticker)); err != nil {
			bad = append(bad, err)
		}
	}
	if len(bad) > 0 {
		for _, err := range bad {
			PrintError(err.Error())
		}
		return fmt.Errorf("%d ticker(s) with fractional closes, nothing loaded", len(bad))
	}

	_, db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := prices.NewRepository(db.Pool)
	total := 0
	for _, ticker := range static.Tickers() {
		closes := static.Series(ticker)
		if err := repo.SaveBatch(cmd.Context(), ticker, closes); err != nil {
			return fmt.Errorf("save %s: %w", ticker, err)
		}
		total += len(closes)
	}

	PrintSuccess(fmt.Sprintf("Loaded %d close(s) for %d ticker(s)", total, len(static.Tickers())))
	return nil
}
