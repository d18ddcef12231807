package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexfever/showmethestock-sub000/internal/calendar"
	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/internal/strategyconfig"
)

var midterm = strategyconfig.Policy{Strategy: "midterm", StopLossPct: 7, TTLTradingDays: 25}

func closesFrom(cal *calendar.Calendar, anchor string, prices ...float64) []contracts.DailyClose {
	out := make([]contracts.DailyClose, 0, len(prices))
	for i, p := range prices {
		out = append(out, contracts.DailyClose{Date: cal.NthTradingDayAfter(day(anchor), i), Close: p})
	}
	return out
}

func openRec(anchor string, close float64) *contracts.Recommendation {
	return &contracts.Recommendation{
		ID:          "r1",
		Ticker:      "005930",
		Strategy:    "midterm",
		Status:      contracts.StatusActive,
		AnchorDate:  day(anchor),
		AnchorClose: close,
	}
}

func TestReturnPct(t *testing.T) {
	tests := []struct {
		anchor, price, want float64
	}{
		{10000, 9200, -8},
		{10000, 9300, -7},
		{10000, 9280, -7.2},
		{10000, 10100, 1},
		{72300, 70000, -3.1812},
		{3, 2, -33.3333},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReturnPct(tt.anchor, tt.price), "ReturnPct(%v, %v)", tt.anchor, tt.price)
	}
}

func TestArchivePrice(t *testing.T) {
	assert.Equal(t, 9200.0, ArchivePrice(10000, -8))
	assert.Equal(t, 9280.0, ArchivePrice(10000, -7.2))
	assert.Equal(t, 69999.99, ArchivePrice(72300, -3.1812))
}

func TestDecide_FirstBreachWins(t *testing.T) {
	cal := calendar.NewKRX()
	closes := closesFrom(cal, "2025-01-02", 10000, 10000, 9800, 9500, 9400, 9200, 8000, 7000)

	d, err := Decide(openRec("2025-01-02", 10000), midterm, closes, cal, day("2025-01-09"))
	require.NoError(t, err)
	require.Len(t, d.Steps, 1)

	step := d.Steps[0]
	assert.Equal(t, contracts.StatusBroken, step.To)
	assert.Equal(t, contracts.ReasonNoMomentum, step.Reason)
	assert.Equal(t, day("2025-01-09"), step.EffectiveDate)
	assert.Equal(t, -8.0, *step.ReturnPct)
}

func TestDecide_OvershootIsNotClamped(t *testing.T) {
	cal := calendar.NewKRX()
	closes := closesFrom(cal, "2025-01-02", 10000, 8500)

	d, err := Decide(openRec("2025-01-02", 10000), midterm, closes, cal, day("2025-01-03"))
	require.NoError(t, err)
	require.Len(t, d.Steps, 1)
	assert.Equal(t, -15.0, *d.Steps[0].ReturnPct)
}

func TestDecide_ExactThresholdBreaks(t *testing.T) {
	cal := calendar.NewKRX()
	closes := closesFrom(cal, "2025-01-02", 10000, 9300)

	d, err := Decide(openRec("2025-01-02", 10000), midterm, closes, cal, day("2025-01-03"))
	require.NoError(t, err)
	require.Len(t, d.Steps, 1)
	assert.Equal(t, contracts.StatusBroken, d.Steps[0].To)
}

func TestDecide_TTLReasons(t *testing.T) {
	cal := calendar.NewKRX()
	expiry := cal.NthTradingDayAfter(day("2025-01-02"), 25)
	require.Equal(t, day("2025-02-12"), expiry)

	tests := []struct {
		name       string
		finalClose float64
		want       contracts.ReasonCode
	}{
		{"profit", 10100, contracts.ReasonTTLExpired},
		{"flat", 10000, contracts.ReasonTTLExpired},
		{"small loss", 9900, contracts.ReasonNoMomentum},
		{"breach on expiry", 9000, contracts.ReasonNoMomentum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := make([]float64, 26)
			for i := range prices {
				prices[i] = 10000
			}
			prices[25] = tt.finalClose

			d, err := Decide(openRec("2025-01-02", 10000), midterm, closesFrom(cal, "2025-01-02", prices...), cal, expiry)
			require.NoError(t, err)
			require.Len(t, d.Steps, 1)
			assert.Equal(t, contracts.StatusBroken, d.Steps[0].To)
			assert.Equal(t, tt.want, d.Steps[0].Reason)
			assert.Equal(t, expiry, d.Steps[0].EffectiveDate)
			assert.Equal(t, expiry, d.TTLExpiry)
		})
	}
}

func TestDecide_TTLCloseMissing(t *testing.T) {
	cal := calendar.NewKRX()
	closes := closesFrom(cal, "2025-01-02", 10000, 10000, 10000)

	_, err := Decide(openRec("2025-01-02", 10000), midterm, closes, cal, day("2025-02-12"))
	assert.True(t, errors.Is(err, contracts.ErrPriceUnavailable))
}

func TestDecide_BreakAndArchiveInOneCycle(t *testing.T) {
	cal := calendar.NewKRX()
	closes := closesFrom(cal, "2025-01-02", 10000, 10000, 9000)

	d, err := Decide(openRec("2025-01-02", 10000), midterm, closes, cal, day("2025-01-15"))
	require.NoError(t, err)
	require.Len(t, d.Steps, 2)
	assert.Equal(t, contracts.StatusBroken, d.Steps[0].To)
	assert.Equal(t, day("2025-01-06"), d.Steps[0].EffectiveDate)
	assert.Equal(t, contracts.StatusArchived, d.Steps[1].To)
	assert.Equal(t, day("2025-01-07"), d.Steps[1].EffectiveDate)
}

func TestDecide_BrokenArchivesNextTradingDay(t *testing.T) {
	cal := calendar.NewKRX()
	rec := openRec("2025-02-03", 10000)
	rec.Status = contracts.StatusBroken
	rec.BrokenAt = ptr(day("2025-02-10"))

	d, err := Decide(rec, midterm, nil, cal, day("2025-02-10"))
	require.NoError(t, err)
	assert.Empty(t, d.Steps)

	d, err = Decide(rec, midterm, nil, cal, day("2025-02-11"))
	require.NoError(t, err)
	require.Len(t, d.Steps, 1)
	assert.Equal(t, contracts.StatusArchived, d.Steps[0].To)
	assert.Equal(t, day("2025-02-11"), d.Steps[0].EffectiveDate)

	// 휴장일을 건너 다음 거래일
	rec.BrokenAt = ptr(day("2025-01-24"))
	d, err = Decide(rec, midterm, nil, cal, day("2025-02-05"))
	require.NoError(t, err)
	require.Len(t, d.Steps, 1)
	assert.Equal(t, day("2025-01-31"), d.Steps[0].EffectiveDate)
}

func TestDecide_BrokenWithoutSnapshot(t *testing.T) {
	rec := openRec("2025-02-03", 10000)
	rec.Status = contracts.StatusBroken

	_, err := Decide(rec, midterm, nil, calendar.NewKRX(), day("2025-02-11"))
	assert.True(t, errors.Is(err, contracts.ErrSnapshotImmutable))
}

func TestDecide_ArchivedIsTerminal(t *testing.T) {
	rec := openRec("2025-02-03", 10000)
	rec.Status = contracts.StatusArchived

	d, err := Decide(rec, midterm, nil, calendar.NewKRX(), day("2025-03-11"))
	require.NoError(t, err)
	assert.Empty(t, d.Steps)
}

func TestDecide_WeakWarning(t *testing.T) {
	cal := calendar.NewKRX()
	policy := midterm
	policy.WeakWarningPct = 4

	rec := openRec("2025-01-02", 10000)
	d, err := Decide(rec, policy, closesFrom(cal, "2025-01-02", 10000, 9500), cal, day("2025-01-03"))
	require.NoError(t, err)
	require.Len(t, d.Steps, 1)
	assert.Equal(t, contracts.StatusWeakWarning, d.Steps[0].To)
	assert.Equal(t, contracts.ReasonWeakWarning, d.Steps[0].Reason)

	rec.Status = contracts.StatusWeakWarning
	d, err = Decide(rec, policy, closesFrom(cal, "2025-01-02", 10000, 9500, 9900), cal, day("2025-01-06"))
	require.NoError(t, err)
	require.Len(t, d.Steps, 1)
	assert.Equal(t, contracts.StatusActive, d.Steps[0].To)
	assert.Equal(t, contracts.ReasonRecovered, d.Steps[0].Reason)

	// 경고 구간 유지 → 전이 없음
	d, err = Decide(rec, policy, closesFrom(cal, "2025-01-02", 10000, 9500, 9550), cal, day("2025-01-06"))
	require.NoError(t, err)
	assert.Empty(t, d.Steps)

	// 비활성 정책
	d, err = Decide(openRec("2025-01-02", 10000), midterm, closesFrom(cal, "2025-01-02", 10000, 9500), cal, day("2025-01-03"))
	require.NoError(t, err)
	assert.Empty(t, d.Steps)
	assert.Equal(t, -5.0, *d.LatestReturn)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to contracts.Status
		want     bool
	}{
		{contracts.StatusActive, contracts.StatusWeakWarning, true},
		{contracts.StatusActive, contracts.StatusBroken, true},
		{contracts.StatusActive, contracts.StatusArchived, true},
		{contracts.StatusWeakWarning, contracts.StatusActive, true},
		{contracts.StatusWeakWarning, contracts.StatusBroken, true},
		{contracts.StatusWeakWarning, contracts.StatusArchived, true},
		{contracts.StatusBroken, contracts.StatusArchived, true},
		{contracts.StatusBroken, contracts.StatusActive, false},
		{contracts.StatusBroken, contracts.StatusWeakWarning, false},
		{contracts.StatusArchived, contracts.StatusActive, false},
		{contracts.StatusArchived, contracts.StatusBroken, false},
		{contracts.StatusActive, contracts.StatusActive, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.Empty(t, AllowedTargets(contracts.StatusArchived))
	assert.Equal(t, []contracts.Status{contracts.StatusArchived}, AllowedTargets(contracts.StatusBroken))
}
