package contracts

import (
	"errors"
	"fmt"
)

// ⭐ SSOT: 라이프사이클 에러 분류는 여기서만
var (
	// ErrNotFound is returned by store lookups that match nothing
	ErrNotFound = errors.New("recommendation not found")

	// ErrPriceUnavailable is retryable: skip the record this cycle
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrInvalidTransition means an edge outside the lifecycle graph was attempted
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrDuplicateActive means more than one open record exists for a ticker
	ErrDuplicateActive = errors.New("duplicate active recommendation detected")

	// ErrCalendarAmbiguity means a required trading date was not a trading day
	ErrCalendarAmbiguity = errors.New("date is not a trading day")

	// ErrSnapshotImmutable means a write tried to change a write-once field
	ErrSnapshotImmutable = errors.New("snapshot field is immutable")

	// ErrUnknownStrategy means the strategy has no configured policy
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrTickerNotLocked means a write was attempted outside the ticker's critical section
	ErrTickerNotLocked = errors.New("ticker not locked by this unit of work")
)

// TransitionError describes a rejected edge
type TransitionError struct {
	RecommendationID string
	From             Status
	To               Status
	Reason           ReasonCode
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s (reason=%s, id=%s)", e.From, e.To, e.Reason, e.RecommendationID)
}

// Unwrap lets errors.Is(err, ErrInvalidTransition) match
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsRetryable reports whether a per-record failure should be retried next cycle
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPriceUnavailable)
}
