package store

import (
	"fmt"
	"time"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// checkUpdate enforces the write-once fields on an update of prev to next.
// Anchor and identity fields never change; broken/archive snapshot fields may
// go from nil to a value once and never change afterwards.
func checkUpdate(prev, next *contracts.Recommendation) error {
	switch {
	case prev.Ticker != next.Ticker:
		return immutable(prev.ID, "ticker")
	case prev.Strategy != next.Strategy:
		return immutable(prev.ID, "strategy")
	case !prev.AnchorDate.Equal(next.AnchorDate):
		return immutable(prev.ID, "anchor_date")
	case prev.AnchorClose != next.AnchorClose:
		return immutable(prev.ID, "anchor_close")
	case !prev.CreatedAt.Equal(next.CreatedAt):
		return immutable(prev.ID, "created_at")
	}

	if !writeOnceTime(prev.BrokenAt, next.BrokenAt) {
		return immutable(prev.ID, "broken_at")
	}
	if !writeOnceFloat(prev.BrokenReturnPct, next.BrokenReturnPct) {
		return immutable(prev.ID, "broken_return_pct")
	}
	if !writeOnceReason(prev.BrokenReason, next.BrokenReason) {
		return immutable(prev.ID, "broken_reason")
	}
	if !writeOnceTime(prev.ArchivedAt, next.ArchivedAt) {
		return immutable(prev.ID, "archived_at")
	}
	if !writeOnceReason(prev.ArchiveReason, next.ArchiveReason) {
		return immutable(prev.ID, "archive_reason")
	}
	if !writeOnceFloat(prev.ArchiveReturnPct, next.ArchiveReturnPct) {
		return immutable(prev.ID, "archive_return_pct")
	}
	if !writeOnceFloat(prev.ArchivePrice, next.ArchivePrice) {
		return immutable(prev.ID, "archive_price")
	}

	if prev.Status.IsTerminal() && next.Status != prev.Status {
		return fmt.Errorf("%w: %s is terminal", contracts.ErrSnapshotImmutable, prev.ID)
	}
	return nil
}

func immutable(id, field string) error {
	return fmt.Errorf("%w: %s.%s", contracts.ErrSnapshotImmutable, id, field)
}

func writeOnceTime(prev, next *time.Time) bool {
	if prev == nil {
		return true
	}
	return next != nil && prev.Equal(*next)
}

func writeOnceFloat(prev, next *float64) bool {
	if prev == nil {
		return true
	}
	return next != nil && *prev == *next
}

func writeOnceReason(prev, next *contracts.ReasonCode) bool {
	if prev == nil {
		return true
	}
	return next != nil && *prev == *next
}
