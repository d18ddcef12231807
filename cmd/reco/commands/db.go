package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/rexfever/showmethestock-sub000/internal/store"
	"github.com/rexfever/showmethestock-sub000/pkg/config"
	"github.com/rexfever/showmethestock-sub000/pkg/database"
	"github.com/rexfever/showmethestock-sub000/pkg/redis"
)

// dbCmd groups database maintenance
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "데이터베이스 관리",
	Long: `데이터베이스 연결 확인 및 스키마 생성.

Subcommands:
  ping     - 연결 테스트 + 풀 통계
  migrate  - lifecycle 스키마 생성 (멱등)
  schema   - 적용될 DDL 출력

Example:
  go run ./cmd/reco db ping
  go run ./cmd/reco db migrate`,
}

var (
	dbPingCmd = &cobra.Command{
		Use:   "ping",
		Short: "PostgreSQL 연결 테스트",
		RunE:  runDBPing,
	}

	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "lifecycle 스키마 생성",
		RunE:  runDBMigrate,
	}

	dbSchemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "DDL 출력",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(store.Schema())
		},
	}
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbPingCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbSchemaCmd)
}

// openDB connects without wiring the rest of the engine
func openDB() (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return cfg, db, nil
}

func runDBPing(cmd *cobra.Command, args []string) error {
	cfg, db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if jsonOutput {
		return printJSON(status)
	}

	PrintHeader("Database Connection", [][2]string{
		{"ENV", cfg.Env},
		{"URL", maskPassword(cfg.Database.URL)},
	})
	PrintSuccess(fmt.Sprintf("Ping successful (%v)", status.ResponseTime))
	PrintKeyValue("Total Conns", fmt.Sprintf("%d", status.Stats.TotalConns), 14)
	PrintKeyValue("Idle Conns", fmt.Sprintf("%d", status.Stats.IdleConns), 14)
	PrintKeyValue("Acquired", fmt.Sprintf("%d", status.Stats.AcquiredConns), 14)
	PrintKeyValue("Max Conns", fmt.Sprintf("%d", status.Stats.MaxConns), 14)

	// 가격 캐시 (REDIS_ENABLED=true 일 때만)
	rdb, err := redis.New(cfg)
	if err != nil {
		PrintError(err.Error())
		return nil
	}
	defer rdb.Close()
	if !rdb.Enabled() {
		PrintInfo("Redis disabled, close cache is in-memory")
	} else if latency, err := rdb.Ping(ctx); err != nil {
		PrintError(fmt.Sprintf("Redis ping failed (%s): %v", rdb.Addr(), err))
	} else {
		PrintSuccess(fmt.Sprintf("Redis ping successful (%s, %v)", rdb.Addr(), latency))
	}
	fmt.Println()
	return nil
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	_, db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.EnsureSchema(cmd.Context(), db); err != nil {
		return err
	}
	PrintSuccess("lifecycle schema is up to date")
	return nil
}

// maskPassword hides the password part of a connection URL
func maskPassword(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil || u.User == nil {
		return dbURL
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
