package commands

import (
	"fmt"

	"github.com/rexfever/showmethestock-sub000/internal/calendar"
	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/internal/lifecycle"
	"github.com/rexfever/showmethestock-sub000/internal/prices"
	"github.com/rexfever/showmethestock-sub000/internal/store"
	"github.com/rexfever/showmethestock-sub000/internal/strategyconfig"
	"github.com/rexfever/showmethestock-sub000/pkg/config"
	"github.com/rexfever/showmethestock-sub000/pkg/database"
	"github.com/rexfever/showmethestock-sub000/pkg/logger"
	"github.com/rexfever/showmethestock-sub000/pkg/redis"
)

// app holds every wired component of one CLI invocation
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	cal      *calendar.Calendar
	policies *strategyconfig.Policies
	store    *store.PostgresStore
	prices   contracts.PriceHistoryProvider
	exec     *lifecycle.Executor
	gate     *lifecycle.Gate
	engine   *lifecycle.Engine
	intake   *lifecycle.Intake
}

// appOptions overrides parts of the wiring for a single command
type appOptions struct {
	// priceFixture replaces the daily_prices table with a JSON close fixture
	priceFixture string
}

// newApp wires config → logger → database → redis → calendar → policies →
// price providers → store → executor/gate/engine/intake.
// ⭐ SSOT: CLI 의존성 조립은 여기서만
func newApp(opts appOptions) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if strategyFile != "" {
		cfg.Lifecycle.StrategyFile = strategyFile
	}
	if holidayFile != "" {
		cfg.Lifecycle.HolidayFile = holidayFile
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Trading calendar
	cal, err := calendar.Load(cfg.Lifecycle.HolidayFile)
	if err != nil {
		return nil, fmt.Errorf("load calendar: %w", err)
	}

	// 4. Strategy policies (검증 실패 시 중단, 권장 위반은 경고)
	policyCfg, err := strategyconfig.LoadOrDefault(cfg.Lifecycle.StrategyFile)
	if err != nil {
		return nil, err
	}
	for _, w := range strategyconfig.Warn(policyCfg) {
		log.WithField("code", w.Code).Warn(w.Message)
	}
	policies, err := strategyconfig.NewPolicies(policyCfg)
	if err != nil {
		return nil, fmt.Errorf("strategy policy: %w", err)
	}

	// 5. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 6. Redis (REDIS_ENABLED=false 이면 메모리 캐시)
	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 7. Price providers: cache → rate limit/timeout → source
	var source contracts.PriceHistoryProvider = prices.NewRepository(db.Pool)
	if opts.priceFixture != "" {
		static, err := prices.LoadStaticFile(opts.priceFixture)
		if err != nil {
			_ = rdb.Close()
			db.Close()
			return nil, err
		}
		source = static
	}
	var cache prices.SeriesCache = prices.NewMemorySeriesCache(cfg.Lifecycle.PriceCacheTTL)
	if rdb.Enabled() && opts.priceFixture == "" {
		cache = prices.NewRedisSeriesCache(redis.NewCache(rdb, "reco"), cfg.Lifecycle.PriceCacheTTL)
	}
	provider := prices.NewCachedProvider(
		prices.NewLimitedProvider(source, cfg.Lifecycle.PriceRateLimit, cfg.Lifecycle.PriceTimeout),
		cache,
		log,
	)

	// 8. Lifecycle components
	recStore := store.NewPostgresStore(db.Pool)
	exec := lifecycle.NewExecutor(recStore, log)
	gate := lifecycle.NewGate(recStore, provider, cal, policies, exec, log)
	engine := lifecycle.NewEngine(recStore, provider, cal, policies, exec, lifecycle.EngineConfig{
		Concurrency:     cfg.Lifecycle.Concurrency,
		MaxErrorSamples: cfg.Lifecycle.MaxErrorSamples,
		Location:        cfg.Lifecycle.Location(),
	}, log)
	intake := lifecycle.NewIntake(gate, cfg.Lifecycle.Concurrency, cfg.Lifecycle.MaxErrorSamples, log)

	log.WithFields(map[string]interface{}{
		"env":         cfg.Env,
		"market":      cal.Market(),
		"policy_id":   policies.PolicyID(),
		"policy_hash": policies.Hash(),
		"redis":       rdb.Enabled(),
	}).Debug("lifecycle engine wired")

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		redis:    rdb,
		cal:      cal,
		policies: policies,
		store:    recStore,
		prices:   provider,
		exec:     exec,
		gate:     gate,
		engine:   engine,
		intake:   intake,
	}, nil
}

// Close releases connections
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
