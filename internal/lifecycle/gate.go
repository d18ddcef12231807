package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rexfever/showmethestock-sub000/internal/calendar"
	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/internal/strategyconfig"
	"github.com/rexfever/showmethestock-sub000/pkg/logger"
)

// ErrInvalidCandidate marks candidates that can never pass the gate
var ErrInvalidCandidate = errors.New("invalid candidate")

// Gate decides whether a candidate may become a new recommendation.
// Every decision runs inside the ticker's critical section.
type Gate struct {
	store    contracts.RecommendationStore
	prices   contracts.PriceHistoryProvider
	cal      contracts.TradingCalendar
	policies *strategyconfig.Policies
	exec     *Executor
	log      *logger.Logger
}

// NewGate creates the creation gate
func NewGate(
	store contracts.RecommendationStore,
	prices contracts.PriceHistoryProvider,
	cal contracts.TradingCalendar,
	policies *strategyconfig.Policies,
	exec *Executor,
	log *logger.Logger,
) *Gate {
	return &Gate{
		store:    store,
		prices:   prices,
		cal:      cal,
		policies: policies,
		exec:     exec,
		log:      log.WithComponent("lifecycle.gate"),
	}
}

// Create runs the gate for one candidate.
// Rejections are results, not errors; an error means the candidate itself
// is invalid or the store failed.
func (g *Gate) Create(ctx context.Context, c contracts.Candidate) (*contracts.CreateResult, error) {
	ticker := strings.TrimSpace(c.Ticker)
	if ticker == "" {
		return nil, fmt.Errorf("%w %q: ticker is required", ErrInvalidCandidate, c.ID)
	}
	if c.ProposedDate.IsZero() {
		return nil, fmt.Errorf("%w %q: proposed date is required", ErrInvalidCandidate, c.ID)
	}
	policy, err := g.policies.Lookup(c.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidCandidate, c.ID, err)
	}

	proposed := calendar.Civil(c.ProposedDate)
	anchorDate := onOrAfter(g.cal, proposed)
	if !anchorDate.Equal(proposed) {
		g.log.WithFields(map[string]interface{}{
			"ticker":        ticker,
			"proposed_date": dateString(proposed),
			"anchor_date":   dateString(anchorDate),
		}).WithError(contracts.ErrCalendarAmbiguity).Warn("proposed date normalized to next trading day")
	}

	lifecycle := g.policies.Lifecycle()
	meta := policy.Metadata()
	meta.Mode = "GATE"
	meta.CandidateDate = dateString(proposed)

	var result *contracts.CreateResult
	err = g.store.WithTickerLock(ctx, ticker, func(tx contracts.RecommendationTx) error {
		result = nil

		// 1) 열린 추천 확인
		open, err := tx.FindOpen(ctx, ticker)
		if err != nil {
			return fmt.Errorf("find open %s: %w", ticker, err)
		}
		if len(open) > 1 {
			g.alertDuplicate(ticker, open)
		}

		var replaced *contracts.Recommendation
		if len(open) > 0 {
			existing := open[0]
			// 중복 상태에서는 replace 정책이어도 신규 생성 거부
			if len(open) > 1 || lifecycle.DuplicatePolicy != strategyconfig.DuplicateReplace || !anchorDate.After(existing.AnchorDate) {
				note := meta
				note.Note = "new signal while open"
				if err := g.exec.Annotate(ctx, tx, existing, contracts.ReasonRepeatSignal, note); err != nil {
					return err
				}
				result = contracts.Rejected(contracts.ReasonRepeatSignal, existing.ID)
				return nil
			}
			replaced = existing
		}

		// 2) 쿨다운: 마지막 종료일 이후 거래일 수
		if lifecycle.CooldownTradingDays > 0 {
			latest, err := tx.FindLatestClosed(ctx, ticker)
			switch {
			case errors.Is(err, contracts.ErrNotFound):
			case err != nil:
				return fmt.Errorf("find latest closed %s: %w", ticker, err)
			default:
				elapsed := g.cal.TradingDaysBetween(*latest.ClosedAt(), anchorDate)
				if elapsed < lifecycle.CooldownTradingDays {
					g.log.WithFields(map[string]interface{}{
						"ticker":      ticker,
						"closed_id":   latest.ID,
						"elapsed":     elapsed,
						"cooldown":    lifecycle.CooldownTradingDays,
						"anchor_date": dateString(anchorDate),
					}).Info("candidate rejected: cooldown active")
					result = contracts.Rejected(contracts.ReasonCooldownActive, latest.ID)
					return nil
				}
			}
		}

		// 3) 기준가 확정
		anchorClose, err := g.prices.ResolveClose(ctx, ticker, anchorDate)
		if err != nil {
			if contracts.IsRetryable(err) {
				g.log.WithFields(map[string]interface{}{
					"ticker":      ticker,
					"anchor_date": dateString(anchorDate),
				}).WithError(err).Warn("candidate deferred: anchor close unavailable")
				result = contracts.Rejected(contracts.ReasonPriceUnavailable, "")
				return nil
			}
			return fmt.Errorf("resolve anchor close %s: %w", ticker, err)
		}

		if replaced != nil {
			ret := ReturnPct(replaced.AnchorClose, anchorClose)
			price := anchorClose
			note := meta
			note.Close = &price
			note.Note = "replaced by new signal"
			if _, _, err := g.exec.Apply(ctx, tx, TransitionRequest{
				RecommendationID: replaced.ID,
				To:               contracts.StatusArchived,
				Reason:           contracts.ReasonReplaced,
				EffectiveDate:    anchorDate,
				ReturnPct:        &ret,
				Metadata:         note,
			}); err != nil {
				return err
			}
		}

		// 4) 신규 생성
		created, err := g.exec.Create(ctx, tx, &contracts.Recommendation{
			Ticker:        ticker,
			Strategy:      c.Strategy,
			AnchorDate:    anchorDate,
			AnchorClose:   anchorClose,
			ScoreSnapshot: c.ScoreSnapshot.Clone(),
		}, meta)
		if err != nil {
			return err
		}

		result = &contracts.CreateResult{
			Created:          true,
			RecommendationID: created.ID,
			Reason:           contracts.ReasonCreated,
			AnchorDate:       created.AnchorDate,
			AnchorClose:      created.AnchorClose,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		g.log.WithFields(map[string]interface{}{
			"ticker":            ticker,
			"strategy":          c.Strategy,
			"recommendation_id": result.RecommendationID,
			"anchor_date":       dateString(result.AnchorDate),
			"anchor_close":      result.AnchorClose,
		}).Info("recommendation created")
	}
	return result, nil
}

func (g *Gate) alertDuplicate(ticker string, open []*contracts.Recommendation) {
	ids := make([]string, 0, len(open))
	for _, r := range open {
		ids = append(ids, r.ID)
	}
	g.log.WithFields(map[string]interface{}{
		"ticker": ticker,
		"ids":    ids,
	}).WithError(contracts.ErrDuplicateActive).Alert("duplicate active recommendations detected")
}
