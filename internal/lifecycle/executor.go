package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/pkg/logger"
)

// TransitionRequest asks the executor to move a record to a new status
type TransitionRequest struct {
	RecommendationID string
	To               contracts.Status
	Reason           contracts.ReasonCode // ARCHIVED from BROKEN: empty → broken reason
	EffectiveDate    time.Time            // brokenAt / archivedAt (거래일)
	ReturnPct        *float64             // BROKEN 필수, 직접 ARCHIVED 선택
	Metadata         contracts.EventMetadata
}

// Executor is the only component that mutates status and snapshot fields.
// Every write is paired with exactly one StateEvent in the same unit of work.
// ⭐ SSOT: 상태 변경은 여기서만
type Executor struct {
	store contracts.RecommendationStore
	log   *logger.Logger
	now   func() time.Time
	newID func() string
}

// NewExecutor creates a transition executor
func NewExecutor(store contracts.RecommendationStore, log *logger.Logger) *Executor {
	return &Executor{
		store: store,
		log:   log.WithComponent("lifecycle.executor"),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// withStore returns a copy of the executor writing to store
func (e *Executor) withStore(store contracts.RecommendationStore) *Executor {
	c := *e
	c.store = store
	return &c
}

// Transition is the standalone contract: it opens the record's per-ticker
// unit of work, applies the edge and returns the updated record, or a
// *contracts.TransitionError when the edge is not in the graph.
func (e *Executor) Transition(ctx context.Context, req TransitionRequest) (*contracts.Recommendation, error) {
	rec, err := e.store.GetByID(ctx, req.RecommendationID)
	if err != nil {
		return nil, err
	}

	var applied *contracts.Recommendation
	err = e.store.WithTickerLock(ctx, rec.Ticker, func(tx contracts.RecommendationTx) error {
		next, _, err := e.Apply(ctx, tx, req)
		applied = next
		return err
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Apply validates and applies one transition inside tx.
// The record is re-read through tx so the decision uses the locked state.
func (e *Executor) Apply(ctx context.Context, tx contracts.RecommendationTx, req TransitionRequest) (*contracts.Recommendation, *contracts.StateEvent, error) {
	cur, err := tx.Get(ctx, req.RecommendationID)
	if err != nil {
		return nil, nil, err
	}

	if !CanTransition(cur.Status, req.To) {
		terr := &contracts.TransitionError{
			RecommendationID: cur.ID,
			From:             cur.Status,
			To:               req.To,
			Reason:           req.Reason,
		}
		e.log.WithFields(map[string]interface{}{
			"recommendation_id": cur.ID,
			"ticker":            cur.Ticker,
			"from":              cur.Status,
			"to":                req.To,
			"reason":            req.Reason,
		}).Error("invalid transition rejected")
		return nil, nil, terr
	}

	now := e.now()
	next := cur.Clone()
	next.Status = req.To
	next.StatusChangedAt = now
	reason := req.Reason

	switch req.To {
	case contracts.StatusBroken:
		if req.ReturnPct == nil || req.EffectiveDate.IsZero() {
			return nil, nil, fmt.Errorf("broken transition for %s requires effective date and return", cur.ID)
		}
		brokenAt := req.EffectiveDate
		ret := *req.ReturnPct
		next.BrokenAt = &brokenAt
		next.BrokenReturnPct = &ret
		next.BrokenReason = &reason

	case contracts.StatusArchived:
		if req.EffectiveDate.IsZero() {
			return nil, nil, fmt.Errorf("archive transition for %s requires effective date", cur.ID)
		}
		archivedAt := req.EffectiveDate
		next.ArchivedAt = &archivedAt

		if cur.Status == contracts.StatusBroken {
			// 보관 수익률은 BROKEN 시점 값 복사, 재계산 금지
			if cur.BrokenReturnPct == nil || cur.BrokenReason == nil {
				return nil, nil, fmt.Errorf("%w: %s is BROKEN without snapshot", contracts.ErrSnapshotImmutable, cur.ID)
			}
			if reason == "" {
				reason = *cur.BrokenReason
			}
			ret := *cur.BrokenReturnPct
			archiveReason := *cur.BrokenReason
			next.ArchiveReturnPct = &ret
			next.ArchiveReason = &archiveReason
		} else {
			archiveReason := reason
			next.ArchiveReason = &archiveReason
			if req.ReturnPct != nil {
				ret := *req.ReturnPct
				next.ArchiveReturnPct = &ret
			}
		}

		if next.ArchiveReturnPct != nil {
			price := ArchivePrice(cur.AnchorClose, *next.ArchiveReturnPct)
			next.ArchivePrice = &price
		}
	}

	if err := tx.Update(ctx, next); err != nil {
		return nil, nil, fmt.Errorf("update %s: %w", cur.ID, err)
	}

	meta := req.Metadata
	meta.EffectiveDate = req.EffectiveDate.Format(contracts.DateLayout)
	if meta.ReturnPct == nil {
		ret := req.ReturnPct
		if req.To == contracts.StatusArchived {
			ret = next.ArchiveReturnPct
		}
		if ret != nil {
			v := *ret
			meta.ReturnPct = &v
		}
	}

	from := cur.Status
	ev := &contracts.StateEvent{
		ID:               e.newID(),
		RecommendationID: cur.ID,
		Ticker:           cur.Ticker,
		FromStatus:       &from,
		ToStatus:         req.To,
		Reason:           reason,
		OccurredAt:       now,
		Metadata:         meta,
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return nil, nil, fmt.Errorf("append event %s: %w", cur.ID, err)
	}

	e.log.WithFields(map[string]interface{}{
		"recommendation_id": cur.ID,
		"ticker":            cur.Ticker,
		"from":              from,
		"to":                req.To,
		"reason":            reason,
		"effective_date":    meta.EffectiveDate,
	}).Info("transition applied")

	return next, ev, nil
}

// Create inserts a new ACTIVE record with its CREATED event
func (e *Executor) Create(ctx context.Context, tx contracts.RecommendationTx, rec *contracts.Recommendation, meta contracts.EventMetadata) (*contracts.Recommendation, error) {
	now := e.now()
	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = e.newID()
	}
	rec.Status = contracts.StatusActive
	rec.CreatedAt = now
	rec.StatusChangedAt = now

	if err := tx.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert %s: %w", rec.Ticker, err)
	}

	meta.EffectiveDate = rec.AnchorDate.Format(contracts.DateLayout)
	if meta.Close == nil {
		anchor := rec.AnchorClose
		meta.Close = &anchor
	}
	ev := &contracts.StateEvent{
		ID:               e.newID(),
		RecommendationID: rec.ID,
		Ticker:           rec.Ticker,
		FromStatus:       nil,
		ToStatus:         contracts.StatusActive,
		Reason:           contracts.ReasonCreated,
		OccurredAt:       now,
		Metadata:         meta,
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("append created event %s: %w", rec.ID, err)
	}
	return rec, nil
}

// Annotate appends an audit-only event (from = to = current status)
func (e *Executor) Annotate(ctx context.Context, tx contracts.RecommendationTx, rec *contracts.Recommendation, reason contracts.ReasonCode, meta contracts.EventMetadata) error {
	status := rec.Status
	ev := &contracts.StateEvent{
		ID:               e.newID(),
		RecommendationID: rec.ID,
		Ticker:           rec.Ticker,
		FromStatus:       &status,
		ToStatus:         status,
		Reason:           reason,
		OccurredAt:       e.now(),
		Metadata:         meta,
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("annotate %s: %w", rec.ID, err)
	}
	return nil
}

// IsInvalidTransition reports whether err is a rejected graph edge
func IsInvalidTransition(err error) bool {
	return errors.Is(err, contracts.ErrInvalidTransition)
}
