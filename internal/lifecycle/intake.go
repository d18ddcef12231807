package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/pkg/logger"
)

// IntakeSummary is the result of one feed drain
type IntakeSummary struct {
	Pulled   int                          `json:"pulled"`
	Created  int                          `json:"created"`
	Rejected int                          `json:"rejected"`
	Deferred int                          `json:"deferred"` // PRICE_UNAVAILABLE, 다음 주기 재시도
	Invalid  int                          `json:"invalid"`
	Failed   int                          `json:"failed"`
	ByReason map[contracts.ReasonCode]int `json:"by_reason"`
	Errors   []string                     `json:"errors"`

	maxErrors int
}

func (s *IntakeSummary) addError(err error) {
	if len(s.Errors) < s.maxErrors {
		s.Errors = append(s.Errors, err.Error())
	}
}

// Intake drains a CandidateFeed through the gate
type Intake struct {
	gate        *Gate
	concurrency int
	maxErrors   int
	log         *logger.Logger
}

// NewIntake creates a feed consumer
func NewIntake(gate *Gate, concurrency, maxErrors int, log *logger.Logger) *Intake {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxErrors < 1 {
		maxErrors = 10
	}
	return &Intake{
		gate:        gate,
		concurrency: concurrency,
		maxErrors:   maxErrors,
		log:         log.WithComponent("lifecycle.intake"),
	}
}

type intakeOutcome struct {
	result *contracts.CreateResult
	err    error
}

// Run pulls up to limit candidates and runs them through the gate.
// Different tickers run in parallel; candidates of one ticker keep feed order.
// Every final outcome is acked; retryable ones stay pending.
func (in *Intake) Run(ctx context.Context, feed contracts.CandidateFeed, limit int) (*IntakeSummary, error) {
	pending, err := feed.Pending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("pull candidates: %w", err)
	}

	summary := &IntakeSummary{
		Pulled:    len(pending),
		ByReason:  make(map[contracts.ReasonCode]int),
		Errors:    []string{},
		maxErrors: in.maxErrors,
	}

	byTicker := make(map[string][]*contracts.Candidate)
	for _, c := range pending {
		byTicker[c.Ticker] = append(byTicker[c.Ticker], c)
	}
	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(in.concurrency)
	for _, ticker := range tickers {
		group := byTicker[ticker]
		g.Go(func() error {
			for _, c := range group {
				out := in.process(ctx, feed, c)
				mu.Lock()
				in.record(summary, c, out)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	in.log.WithFields(map[string]interface{}{
		"pulled":   summary.Pulled,
		"created":  summary.Created,
		"rejected": summary.Rejected,
		"deferred": summary.Deferred,
		"invalid":  summary.Invalid,
		"failed":   summary.Failed,
	}).Info("candidate intake completed")
	return summary, nil
}

func (in *Intake) process(ctx context.Context, feed contracts.CandidateFeed, c *contracts.Candidate) intakeOutcome {
	res, err := in.gate.Create(ctx, *c)
	if err != nil {
		if !errors.Is(err, ErrInvalidCandidate) {
			return intakeOutcome{err: err}
		}
		in.log.WithField("candidate_id", c.ID).WithError(err).Warn("candidate rejected as invalid")
		res = contracts.Rejected(contracts.ReasonInvalidCandidate, "")
	}

	if res.Retryable {
		return intakeOutcome{result: res}
	}
	if err := feed.Ack(ctx, c.ID, res); err != nil {
		return intakeOutcome{result: res, err: fmt.Errorf("ack %s: %w", c.ID, err)}
	}
	return intakeOutcome{result: res}
}

func (in *Intake) record(s *IntakeSummary, c *contracts.Candidate, out intakeOutcome) {
	if out.err != nil {
		s.Failed++
		s.addError(fmt.Errorf("%s (%s): %w", c.ID, c.Ticker, out.err))
		in.log.WithField("candidate_id", c.ID).WithError(out.err).Error("candidate intake failed")
		return
	}

	res := out.result
	s.ByReason[res.Reason]++
	switch {
	case res.Created:
		s.Created++
	case res.Retryable:
		s.Deferred++
	case res.Reason == contracts.ReasonInvalidCandidate:
		s.Invalid++
	default:
		s.Rejected++
	}
}
