package strategyconfig

// Config는 추천 라이프사이클 정책 전체 설정
// 전략별 손절/TTL 은 외부에서 고정 설정되며 평가 중 재계산하지 않음
type Config struct {
	Meta       Meta                `yaml:"meta" json:"meta"`
	Strategies map[string]Strategy `yaml:"strategies" json:"strategies"`
	Lifecycle  Lifecycle           `yaml:"lifecycle" json:"lifecycle"`
}

// Meta 메타 정보
type Meta struct {
	PolicyID string `yaml:"policy_id" json:"policy_id"`
	Version  string `yaml:"version" json:"version"`
}

// Strategy 전략별 평가 파라미터
type Strategy struct {
	StopLossPct    float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`       // 7 → -7% 이하 손절
	TTLTradingDays int     `yaml:"ttl_trading_days" json:"ttl_trading_days"` // 기준일 이후 거래일 수
	WeakWarningPct float64 `yaml:"weak_warning_pct" json:"weak_warning_pct"` // 0 = 경고 비활성
}

// Lifecycle 생성 게이트 정책
type Lifecycle struct {
	CooldownTradingDays int             `yaml:"cooldown_trading_days" json:"cooldown_trading_days"`
	DuplicatePolicy     DuplicatePolicy `yaml:"duplicate_policy" json:"duplicate_policy"`
}

// DuplicatePolicy 열린 추천이 있는 종목에 신규 신호가 들어왔을 때의 처리
type DuplicatePolicy string

const (
	DuplicateReject  DuplicatePolicy = "reject"  // REPEAT_SIGNAL 기록 후 거절 (기본)
	DuplicateReplace DuplicatePolicy = "replace" // 기존 추천을 REPLACED 로 보관 후 신규 생성
)

// Default returns the built-in policy used when no file is configured
func Default() *Config {
	return &Config{
		Meta: Meta{
			PolicyID: "default",
			Version:  "1",
		},
		Strategies: map[string]Strategy{
			"midterm":  {StopLossPct: 7, TTLTradingDays: 25},
			"swing":    {StopLossPct: 5, TTLTradingDays: 10},
			"longterm": {StopLossPct: 10, TTLTradingDays: 60},
		},
		Lifecycle: Lifecycle{
			CooldownTradingDays: 3,
			DuplicatePolicy:     DuplicateReject,
		},
	}
}
