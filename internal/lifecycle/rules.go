package lifecycle

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/internal/strategyconfig"
)

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
)

// ReturnPct is (price/anchor - 1) * 100 rounded to 4 decimal places.
// Decimal arithmetic keeps an exact -7% close at exactly -7.
func ReturnPct(anchor, price float64) float64 {
	r := decimal.NewFromFloat(price).
		Div(decimal.NewFromFloat(anchor)).
		Sub(decOne).
		Mul(decHundred).
		Round(4)
	f, _ := r.Float64()
	return f
}

// ArchivePrice is anchor * (1 + pct/100) rounded to 2 decimal places
func ArchivePrice(anchor, pct float64) float64 {
	p := decimal.NewFromFloat(anchor).
		Mul(decOne.Add(decimal.NewFromFloat(pct).Div(decHundred))).
		Round(2)
	f, _ := p.Float64()
	return f
}

// atOrBelow reports ret <= -threshold
func atOrBelow(ret, threshold float64) bool {
	return decimal.NewFromFloat(ret).LessThanOrEqual(decimal.NewFromFloat(threshold).Neg())
}

// Step is one transition the rules want applied
type Step struct {
	To            contracts.Status
	Reason        contracts.ReasonCode
	EffectiveDate time.Time
	ReturnPct     *float64
	Close         *float64
}

// Decision is the outcome of evaluating one record as of a date
type Decision struct {
	Steps        []Step
	TTLExpiry    time.Time // zero for records that are not open
	LatestReturn *float64  // 마지막으로 확인한 수익률 (열린 추천만)
}

// Decide evaluates rec as of asOf. It is a pure function of the record's
// anchor, the close series, the policy, the calendar and asOf.
//
// closes must cover [anchorDate, min(asOf, ttlExpiry)]; days missing from the
// series are skipped, except the TTL expiry close which is required.
func Decide(rec *contracts.Recommendation, policy strategyconfig.Policy, closes []contracts.DailyClose, cal contracts.TradingCalendar, asOf time.Time) (*Decision, error) {
	switch {
	case rec.Status.IsOpen():
		return decideOpen(rec, policy, closes, cal, asOf)
	case rec.Status == contracts.StatusBroken:
		d := &Decision{}
		if rec.BrokenAt == nil {
			return nil, fmt.Errorf("%w: %s is BROKEN without broken_at", contracts.ErrSnapshotImmutable, rec.ID)
		}
		if step, ok := archiveStep(cal, *rec.BrokenAt, asOf); ok {
			d.Steps = append(d.Steps, step)
		}
		return d, nil
	default:
		return &Decision{}, nil
	}
}

// EvaluationWindow returns the close range Decide needs for an open record
func EvaluationWindow(rec *contracts.Recommendation, policy strategyconfig.Policy, cal contracts.TradingCalendar, asOf time.Time) (from, to, ttlExpiry time.Time) {
	ttlExpiry = cal.NthTradingDayAfter(rec.AnchorDate, policy.TTLTradingDays)
	to = asOf
	if ttlExpiry.Before(to) {
		to = ttlExpiry
	}
	return rec.AnchorDate, to, ttlExpiry
}

func decideOpen(rec *contracts.Recommendation, policy strategyconfig.Policy, closes []contracts.DailyClose, cal contracts.TradingCalendar, asOf time.Time) (*Decision, error) {
	from, end, ttlExpiry := EvaluationWindow(rec, policy, cal, asOf)
	d := &Decision{TTLExpiry: ttlExpiry}

	var (
		latest   *contracts.DailyClose
		ttlClose *contracts.DailyClose
	)

	// 1) 손절 탐색: 첫 번째 이탈일이 확정, 이후 날짜는 보지 않음
	for i := range closes {
		c := closes[i]
		if c.Date.Before(from) || c.Date.After(end) {
			continue
		}

		r := ReturnPct(rec.AnchorClose, c.Close)
		if atOrBelow(r, policy.StopLossPct) {
			d.Steps = append(d.Steps, brokenStep(contracts.ReasonNoMomentum, c, r))
			d.LatestReturn = &r
			return withArchive(d, cal, c.Date, asOf), nil
		}

		latest = &closes[i]
		if c.Date.Equal(ttlExpiry) {
			ttlClose = &closes[i]
		}
	}

	// 2) TTL 도달: 만기일 종가로 종료 사유 결정
	if !asOf.Before(ttlExpiry) {
		if ttlClose == nil {
			return nil, fmt.Errorf("%w: %s close missing on ttl expiry %s",
				contracts.ErrPriceUnavailable, rec.Ticker, ttlExpiry.Format(contracts.DateLayout))
		}

		r := ReturnPct(rec.AnchorClose, ttlClose.Close)
		reason := contracts.ReasonTTLExpired
		if r < 0 {
			// 만기일 손절선 도달 또는 손실 상태 종료 모두 NO_MOMENTUM
			reason = contracts.ReasonNoMomentum
		}
		d.Steps = append(d.Steps, brokenStep(reason, *ttlClose, r))
		d.LatestReturn = &r
		return withArchive(d, cal, ttlExpiry, asOf), nil
	}

	if latest == nil {
		return d, nil
	}

	// 3) 경고 구간 (정책 입력, 0이면 비활성)
	r := ReturnPct(rec.AnchorClose, latest.Close)
	d.LatestReturn = &r
	if policy.WeakWarningPct <= 0 {
		return d, nil
	}

	weak := atOrBelow(r, policy.WeakWarningPct)
	switch {
	case rec.Status == contracts.StatusActive && weak:
		d.Steps = append(d.Steps, observedStep(contracts.StatusWeakWarning, contracts.ReasonWeakWarning, *latest, r))
	case rec.Status == contracts.StatusWeakWarning && !weak:
		d.Steps = append(d.Steps, observedStep(contracts.StatusActive, contracts.ReasonRecovered, *latest, r))
	}
	return d, nil
}

// withArchive appends the ARCHIVED step when asOf is at least one trading
// day past brokenAt, so one replay run equals daily live runs.
func withArchive(d *Decision, cal contracts.TradingCalendar, brokenAt, asOf time.Time) *Decision {
	if step, ok := archiveStep(cal, brokenAt, asOf); ok {
		d.Steps = append(d.Steps, step)
	}
	return d
}

func archiveStep(cal contracts.TradingCalendar, brokenAt, asOf time.Time) (Step, bool) {
	if cal.TradingDaysBetween(brokenAt, asOf) < 1 {
		return Step{}, false
	}
	// 사유와 수익률은 Executor 가 BROKEN 스냅샷에서 복사
	return Step{
		To:            contracts.StatusArchived,
		EffectiveDate: cal.NthTradingDayAfter(brokenAt, 1),
	}, true
}

func brokenStep(reason contracts.ReasonCode, c contracts.DailyClose, r float64) Step {
	return observedStep(contracts.StatusBroken, reason, c, r)
}

func observedStep(to contracts.Status, reason contracts.ReasonCode, c contracts.DailyClose, r float64) Step {
	ret := r
	price := c.Close
	return Step{
		To:            to,
		Reason:        reason,
		EffectiveDate: c.Date,
		ReturnPct:     &ret,
		Close:         &price,
	}
}
