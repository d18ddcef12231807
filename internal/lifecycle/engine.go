package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rexfever/showmethestock-sub000/internal/calendar"
	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/internal/strategyconfig"
	"github.com/rexfever/showmethestock-sub000/pkg/logger"
)

// Mode is the operating mode of an evaluation run
type Mode string

const (
	ModeLive   Mode = "LIVE"
	ModeReplay Mode = "REPLAY"
)

// ErrFutureAsOf is returned when a LIVE run is asked to evaluate a day after
// today in the market timezone
var ErrFutureAsOf = errors.New("as-of date is in the future")

// errDryRun rolls back a unit of work after the decision was computed
var errDryRun = errors.New("dry run: rollback")

// Filters narrows a run to a subset of records. Zero values match everything.
type Filters struct {
	AnchorFrom time.Time          `json:"anchor_from,omitempty"`
	AnchorTo   time.Time          `json:"anchor_to,omitempty"`
	Strategies []string           `json:"strategies,omitempty"`
	Statuses   []contracts.Status `json:"statuses,omitempty"`
	Tickers    []string           `json:"tickers,omitempty"`
}

func (f Filters) match(rec *contracts.Recommendation) bool {
	if !f.AnchorFrom.IsZero() && rec.AnchorDate.Before(calendar.Civil(f.AnchorFrom)) {
		return false
	}
	if !f.AnchorTo.IsZero() && rec.AnchorDate.After(calendar.Civil(f.AnchorTo)) {
		return false
	}
	if len(f.Strategies) > 0 && !containsString(f.Strategies, rec.Strategy) {
		return false
	}
	if len(f.Tickers) > 0 && !containsString(f.Tickers, rec.Ticker) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == rec.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// EvaluateRequest is one evaluation cycle.
// AsOf is explicit; LIVE falls back to today in the market timezone.
type EvaluateRequest struct {
	Mode    Mode
	AsOf    time.Time
	DryRun  bool // REPLAY 전용: 계산만 하고 저장하지 않음
	Filters Filters
}

// Outcome of one record in a run
type Outcome string

const (
	OutcomeUnchanged    Outcome = "UNCHANGED"
	OutcomeTransitioned Outcome = "TRANSITIONED"
	OutcomeSkipped      Outcome = "SKIPPED" // 재시도 가능 (가격 없음/타임아웃)
	OutcomeFailed       Outcome = "FAILED"
)

// AppliedTransition is one edge taken (or, in a dry run, that would be taken)
type AppliedTransition struct {
	From          contracts.Status     `json:"from"`
	To            contracts.Status     `json:"to"`
	Reason        contracts.ReasonCode `json:"reason"`
	EffectiveDate string               `json:"effective_date"`
	ReturnPct     *float64             `json:"return_pct,omitempty"`
}

// RecordResult is the per-record result of a run
type RecordResult struct {
	RecommendationID string              `json:"recommendation_id"`
	Ticker           string              `json:"ticker"`
	Strategy         string              `json:"strategy"`
	Outcome          Outcome             `json:"outcome"`
	Transitions      []AppliedTransition `json:"transitions,omitempty"`
	Error            string              `json:"error,omitempty"`
}

func (r RecordResult) archived() bool {
	for _, t := range r.Transitions {
		if t.To == contracts.StatusArchived {
			return true
		}
	}
	return false
}

func (r RecordResult) changed() bool {
	for _, t := range r.Transitions {
		if t.To != contracts.StatusArchived {
			return true
		}
	}
	return false
}

// ErrorSample is one bounded entry of Summary.Errors
type ErrorSample struct {
	RecommendationID string `json:"recommendation_id,omitempty"`
	Ticker           string `json:"ticker"`
	Error            string `json:"error"`
}

// Summary is the batch result; live and dry-run replay return the same shape
type Summary struct {
	Mode         Mode           `json:"mode"`
	AsOf         string         `json:"as_of"`
	DryRun       bool           `json:"dry_run"`
	Evaluated    int            `json:"evaluated"`
	Transitioned int            `json:"transitioned"`
	Archived     int            `json:"archived"`
	Skipped      int            `json:"skipped"`
	ErrorCount   int            `json:"error_count"`
	Errors       []ErrorSample  `json:"errors"`
	Duplicates   []string       `json:"duplicates,omitempty"` // 열린 추천이 2개 이상인 종목
	Results      []RecordResult `json:"results"`
	Duration     time.Duration  `json:"duration"`

	maxErrors int
}

func (s *Summary) addError(sample ErrorSample) {
	s.ErrorCount++
	if len(s.Errors) < s.maxErrors {
		s.Errors = append(s.Errors, sample)
	}
}

func (s *Summary) add(r RecordResult) {
	s.Evaluated++
	s.Results = append(s.Results, r)

	switch r.Outcome {
	case OutcomeSkipped:
		s.Skipped++
		s.addError(ErrorSample{RecommendationID: r.RecommendationID, Ticker: r.Ticker, Error: r.Error})
	case OutcomeFailed:
		s.addError(ErrorSample{RecommendationID: r.RecommendationID, Ticker: r.Ticker, Error: r.Error})
	}
	if r.changed() {
		s.Transitioned++
	}
	if r.archived() {
		s.Archived++
	}
}

// EngineConfig holds the loop's runtime knobs
type EngineConfig struct {
	Concurrency     int
	MaxErrorSamples int
	Location        *time.Location
}

// Engine is the evaluation loop
// ⭐ SSOT: 추천 평가 루프
type Engine struct {
	store    contracts.RecommendationStore
	prices   contracts.PriceHistoryProvider
	cal      contracts.TradingCalendar
	policies *strategyconfig.Policies
	exec     *Executor
	cfg      EngineConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewEngine creates the evaluation loop
func NewEngine(
	store contracts.RecommendationStore,
	prices contracts.PriceHistoryProvider,
	cal contracts.TradingCalendar,
	policies *strategyconfig.Policies,
	exec *Executor,
	cfg EngineConfig,
	log *logger.Logger,
) *Engine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxErrorSamples < 1 {
		cfg.MaxErrorSamples = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{
		store:    store,
		prices:   prices,
		cal:      cal,
		policies: policies,
		exec:     exec,
		cfg:      cfg,
		log:      log.WithComponent("lifecycle.engine"),
		now:      time.Now,
	}
}

// ResolveAsOf returns the trading day a run evaluates as of.
// A non-trading date falls back to the last trading day on or before it.
// LIVE never evaluates past today (closes after today do not exist yet).
func (e *Engine) ResolveAsOf(mode Mode, asOf time.Time) (time.Time, error) {
	today := calendar.Civil(e.now().In(e.cfg.Location))

	if asOf.IsZero() {
		if mode == ModeReplay {
			return time.Time{}, fmt.Errorf("replay requires an explicit as-of date")
		}
		asOf = today
	}

	d := calendar.Civil(asOf)
	if mode == ModeLive && d.After(today) {
		return time.Time{}, fmt.Errorf("%w: %s is after today %s (%s)", ErrFutureAsOf, dateString(d), dateString(today), e.cfg.Location)
	}
	if !e.cal.IsTradingDay(d) {
		normalized := onOrBefore(e.cal, d)
		e.log.WithFields(map[string]interface{}{
			"as_of":      dateString(d),
			"normalized": dateString(normalized),
		}).WithError(contracts.ErrCalendarAmbiguity).Warn("as-of date normalized to previous trading day")
		d = normalized
	}
	return d, nil
}

// Evaluate runs one cycle. Per-record failures land in the summary; the
// returned error is reserved for invalid requests and store listing failures.
func (e *Engine) Evaluate(ctx context.Context, req EvaluateRequest) (*Summary, error) {
	start := e.now()
	if req.Mode == "" {
		req.Mode = ModeLive
	}
	if req.Mode != ModeLive && req.Mode != ModeReplay {
		return nil, fmt.Errorf("unknown mode %q", req.Mode)
	}
	if req.DryRun && req.Mode != ModeReplay {
		return nil, fmt.Errorf("dry run is only available in replay mode")
	}

	asOf, err := e.ResolveAsOf(req.Mode, req.AsOf)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Mode:      req.Mode,
		AsOf:      dateString(asOf),
		DryRun:    req.DryRun,
		Errors:    []ErrorSample{},
		Results:   []RecordResult{},
		maxErrors: e.cfg.MaxErrorSamples,
	}

	recs, err := e.store.ListByStatus(ctx, contracts.StatusActive, contracts.StatusWeakWarning, contracts.StatusBroken)
	if err != nil {
		return nil, fmt.Errorf("list evaluable records: %w", err)
	}

	e.detectDuplicates(recs, summary)

	byTicker := make(map[string][]*contracts.Recommendation)
	for _, rec := range recs {
		if rec.AnchorDate.After(asOf) || !req.Filters.match(rec) {
			continue
		}
		byTicker[rec.Ticker] = append(byTicker[rec.Ticker], rec)
	}

	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	// 종목 단위 병렬, 종목 내부는 순차
	results := make([][]RecordResult, len(tickers))
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)
	for i, ticker := range tickers {
		i, group := i, byTicker[ticker]
		g.Go(func() error {
			results[i] = e.evaluateTicker(ctx, req, asOf, group)
			return nil
		})
	}
	_ = g.Wait()

	for _, rs := range results {
		for _, r := range rs {
			summary.add(r)
		}
	}
	summary.Duration = e.now().Sub(start)

	e.log.WithFields(map[string]interface{}{
		"mode":         summary.Mode,
		"as_of":        summary.AsOf,
		"dry_run":      summary.DryRun,
		"evaluated":    summary.Evaluated,
		"transitioned": summary.Transitioned,
		"archived":     summary.Archived,
		"skipped":      summary.Skipped,
		"errors":       summary.ErrorCount,
		"duration_ms":  summary.Duration.Milliseconds(),
	}).Info("evaluation cycle completed")

	return summary, nil
}

// detectDuplicates flags tickers holding more than one open record
func (e *Engine) detectDuplicates(recs []*contracts.Recommendation, summary *Summary) {
	open := make(map[string][]string)
	for _, rec := range recs {
		if rec.Status.IsOpen() {
			open[rec.Ticker] = append(open[rec.Ticker], rec.ID)
		}
	}

	tickers := make([]string, 0)
	for t, ids := range open {
		if len(ids) > 1 {
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)

	for _, t := range tickers {
		e.log.WithFields(map[string]interface{}{
			"ticker": t,
			"ids":    open[t],
		}).WithError(contracts.ErrDuplicateActive).Alert("duplicate active recommendations detected")
		summary.Duplicates = append(summary.Duplicates, t)
		summary.addError(ErrorSample{
			Ticker: t,
			Error:  fmt.Sprintf("%v: %d open records", contracts.ErrDuplicateActive, len(open[t])),
		})
	}
}

func (e *Engine) evaluateTicker(ctx context.Context, req EvaluateRequest, asOf time.Time, recs []*contracts.Recommendation) []RecordResult {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].AnchorDate.Before(recs[j].AnchorDate)
	})

	out := make([]RecordResult, 0, len(recs))
	for _, rec := range recs {
		out = append(out, e.evaluateRecord(ctx, req, asOf, rec))
	}
	return out
}

func (e *Engine) evaluateRecord(ctx context.Context, req EvaluateRequest, asOf time.Time, rec *contracts.Recommendation) RecordResult {
	result := RecordResult{
		RecommendationID: rec.ID,
		Ticker:           rec.Ticker,
		Strategy:         rec.Strategy,
		Outcome:          OutcomeUnchanged,
	}
	log := e.log.WithRecommendation(rec.ID, rec.Ticker).WithField("as_of", dateString(asOf))

	if err := ctx.Err(); err != nil {
		return e.fail(log, result, err)
	}

	policy, err := e.policies.Lookup(rec.Strategy)
	if err != nil {
		return e.fail(log, result, err)
	}

	// 가격은 락 밖에서 조회 (타임아웃은 provider 가 보장)
	var closes []contracts.DailyClose
	if rec.Status.IsOpen() {
		from, to, _ := EvaluationWindow(rec, policy, e.cal, asOf)
		closes, err = e.prices.DailyCloses(ctx, rec.Ticker, from, to)
		if err != nil {
			return e.fail(log, result, err)
		}
	}

	var applied []AppliedTransition
	err = e.store.WithTickerLock(ctx, rec.Ticker, func(tx contracts.RecommendationTx) error {
		applied = nil

		// 락 안에서 현재 상태 재확인
		cur, err := tx.Get(ctx, rec.ID)
		if err != nil {
			return err
		}
		if cur.Status.IsOpen() && !rec.Status.IsOpen() {
			return fmt.Errorf("%s reopened from %s to %s", rec.ID, rec.Status, cur.Status)
		}

		decision, err := Decide(cur, policy, closes, e.cal, asOf)
		if err != nil {
			return err
		}

		for _, step := range decision.Steps {
			meta := policy.Metadata()
			meta.Mode = string(req.Mode)
			meta.AsOf = dateString(asOf)
			meta.Close = step.Close

			next, _, err := e.exec.Apply(ctx, tx, TransitionRequest{
				RecommendationID: cur.ID,
				To:               step.To,
				Reason:           step.Reason,
				EffectiveDate:    step.EffectiveDate,
				ReturnPct:        step.ReturnPct,
				Metadata:         meta,
			})
			if err != nil {
				return err
			}

			t := AppliedTransition{
				From:          cur.Status,
				To:            next.Status,
				Reason:        step.Reason,
				EffectiveDate: dateString(step.EffectiveDate),
				ReturnPct:     step.ReturnPct,
			}
			if next.Status == contracts.StatusArchived {
				t.Reason = *next.ArchiveReason
				t.ReturnPct = next.ArchiveReturnPct
			}
			applied = append(applied, t)
			cur = next
		}

		if req.DryRun && len(applied) > 0 {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return e.fail(log, result, err)
	}

	if len(applied) > 0 {
		result.Outcome = OutcomeTransitioned
		result.Transitions = applied
	}
	return result
}

func (e *Engine) fail(log *logger.Logger, result RecordResult, err error) RecordResult {
	result.Error = err.Error()
	if contracts.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) {
		result.Outcome = OutcomeSkipped
		log.WithError(err).Warn("record skipped, retry next cycle")
		return result
	}
	result.Outcome = OutcomeFailed
	log.WithError(err).Error("record evaluation failed")
	return result
}

// ManualArchive closes a record directly (MANUAL_ARCHIVE).
// Open records are archived at asOf with the return of the asOf close when
// it is available; BROKEN records keep their broken reason and return.
func (e *Engine) ManualArchive(ctx context.Context, id string, asOf time.Time, note string) (*contracts.Recommendation, error) {
	asOf, err := e.ResolveAsOf(ModeLive, asOf)
	if err != nil {
		return nil, err
	}

	rec, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	meta := contracts.EventMetadata{
		Strategy: rec.Strategy,
		Mode:     "MANUAL",
		AsOf:     dateString(asOf),
		Note:     note,
	}
	req := TransitionRequest{
		RecommendationID: rec.ID,
		To:               contracts.StatusArchived,
		Reason:           contracts.ReasonManualArchive,
		EffectiveDate:    asOf,
	}

	switch {
	case rec.Status.IsOpen():
		if asOf.Before(rec.AnchorDate) {
			return nil, fmt.Errorf("archive date %s is before anchor date %s", dateString(asOf), dateString(rec.AnchorDate))
		}
		price, err := e.prices.ResolveClose(ctx, rec.Ticker, asOf)
		switch {
		case err == nil:
			ret := ReturnPct(rec.AnchorClose, price)
			req.ReturnPct = &ret
			meta.Close = &price
		case contracts.IsRetryable(err):
			e.log.WithRecommendation(rec.ID, rec.Ticker).WithError(err).Warn("manual archive without return: close unavailable")
		default:
			return nil, err
		}
	case rec.Status == contracts.StatusBroken:
		if rec.BrokenAt != nil && !asOf.After(*rec.BrokenAt) {
			req.EffectiveDate = e.cal.NthTradingDayAfter(*rec.BrokenAt, 1)
		}
	}

	req.Metadata = meta
	return e.exec.Transition(ctx, req)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
