package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	holidayFile  string
	jsonOutput   bool
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reco",
	Short: "추천 라이프사이클 엔진",
	Long: `Recommendation Lifecycle Engine CLI

추천 생성(게이트)부터 일일 평가, 손절/만료 처리, 보관까지
추천 레코드의 전체 수명주기를 관리합니다.

Usage:
  go run ./cmd/reco [command]

Examples:
  go run ./cmd/reco db migrate
  go run ./cmd/reco evaluate
  go run ./cmd/reco replay --from 2025-01-02 --to 2025-03-31 --dry-run
  go run ./cmd/reco create 005930 --strategy midterm --date 2025-01-10
  go run ./cmd/reco scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags (env 설정보다 우선)
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategies", "", "strategy policy YAML (default: LIFECYCLE_STRATEGY_FILE or built-in)")
	rootCmd.PersistentFlags().StringVar(&holidayFile, "holidays", "", "holiday calendar YAML (default: LIFECYCLE_HOLIDAY_FILE or built-in KRX)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logs)")
}
