package strategyconfig

import (
	"fmt"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// Policy is the resolved evaluation parameters of one strategy
type Policy struct {
	Strategy       string
	StopLossPct    float64
	TTLTradingDays int
	WeakWarningPct float64
	Hash           string // 정책 파일 해시 (이벤트 메타데이터 기록용)
}

// Metadata stamps the policy onto an audit payload
func (p Policy) Metadata() contracts.EventMetadata {
	stop := p.StopLossPct
	ttl := p.TTLTradingDays
	return contracts.EventMetadata{
		Strategy:       p.Strategy,
		StopLossPct:    &stop,
		TTLTradingDays: &ttl,
		PolicyHash:     p.Hash,
	}
}

// Policies is the read-only, hashed view of a validated Config
// ⭐ SSOT: 전략 정책 조회는 여기서만
type Policies struct {
	cfg  *Config
	hash string
}

// NewPolicies validates cfg and pins its hash
func NewPolicies(cfg *Config) (*Policies, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	hash, err := Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash policy: %w", err)
	}
	return &Policies{cfg: cfg, hash: hash}, nil
}

// MustDefault returns the built-in policies
func MustDefault() *Policies {
	p, err := NewPolicies(Default())
	if err != nil {
		panic(err)
	}
	return p
}

// Lookup returns the policy of a strategy or ErrUnknownStrategy
func (p *Policies) Lookup(strategy string) (Policy, error) {
	s, ok := p.cfg.Strategies[strategy]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", contracts.ErrUnknownStrategy, strategy)
	}
	return Policy{
		Strategy:       strategy,
		StopLossPct:    s.StopLossPct,
		TTLTradingDays: s.TTLTradingDays,
		WeakWarningPct: s.WeakWarningPct,
		Hash:           p.hash,
	}, nil
}

// Lifecycle returns the creation gate settings
func (p *Policies) Lifecycle() Lifecycle {
	return p.cfg.Lifecycle
}

// Names lists configured strategies, sorted
func (p *Policies) Names() []string {
	return sortedNames(p.cfg.Strategies)
}

// Hash returns the SHA-256 of the canonical config
func (p *Policies) Hash() string {
	return p.hash
}

// PolicyID returns meta.policy_id
func (p *Policies) PolicyID() string {
	return p.cfg.Meta.PolicyID
}
