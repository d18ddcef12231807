package strategyconfig

import (
	"fmt"
	"sort"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.PolicyID == "" {
		return ValidationError{"meta.policy_id", "required"}
	}

	// === Strategies ===
	if len(cfg.Strategies) == 0 {
		return ValidationError{"strategies", "at least one strategy required"}
	}

	for _, name := range sortedNames(cfg.Strategies) {
		s := cfg.Strategies[name]
		field := "strategies." + name

		if name == "" {
			return ValidationError{"strategies", "strategy name must not be empty"}
		}
		if s.StopLossPct <= 0 || s.StopLossPct >= 100 {
			return ValidationError{field + ".stop_loss_pct", "must be in (0, 100)"}
		}
		if s.TTLTradingDays < 1 {
			return ValidationError{field + ".ttl_trading_days", "must be >= 1"}
		}
		// 경고 구간은 손절선보다 얕아야 함
		if s.WeakWarningPct < 0 || (s.WeakWarningPct > 0 && s.WeakWarningPct >= s.StopLossPct) {
			return ValidationError{
				Field:   field + ".weak_warning_pct",
				Message: fmt.Sprintf("must be 0 or in (0, stop_loss_pct=%.2f)", s.StopLossPct),
			}
		}
	}

	// === Lifecycle ===
	if cfg.Lifecycle.CooldownTradingDays < 0 {
		return ValidationError{"lifecycle.cooldown_trading_days", "must be >= 0"}
	}
	switch cfg.Lifecycle.DuplicatePolicy {
	case DuplicateReject, DuplicateReplace:
	default:
		return ValidationError{"lifecycle.duplicate_policy", "must be reject or replace"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	for _, name := range sortedNames(cfg.Strategies) {
		s := cfg.Strategies[name]
		// 1년(약 250 거래일) 초과 TTL 경고
		if s.TTLTradingDays > 250 {
			warnings = append(warnings, Warning{
				Code:    "LONG_TTL",
				Message: fmt.Sprintf("%s: TTL %d 거래일 > 250", name, s.TTLTradingDays),
			})
		}
		if s.StopLossPct > 30 {
			warnings = append(warnings, Warning{
				Code:    "WIDE_STOP",
				Message: fmt.Sprintf("%s: 손절 %.1f%% > 30%%", name, s.StopLossPct),
			})
		}
	}

	if cfg.Lifecycle.CooldownTradingDays == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_COOLDOWN",
			Message: "쿨다운 0: 종료 직후 동일 종목 재추천 허용",
		})
	}

	return warnings
}

func sortedNames(m map[string]Strategy) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
