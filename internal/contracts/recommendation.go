package contracts

import (
	"encoding/json"
	"time"
)

// DateLayout is the wire form of trading dates (civil dates, no time part)
const DateLayout = "2006-01-02"

// =============================================================================
// Lifecycle Status / Reason
// =============================================================================

// Status 추천 상태 (상태 머신)
type Status string

const (
	StatusActive      Status = "ACTIVE"       // 추천 유효
	StatusWeakWarning Status = "WEAK_WARNING" // 유효하지만 손실 경고 구간
	StatusBroken      Status = "BROKEN"       // 손절/TTL 종료 (보관 대기)
	StatusArchived    Status = "ARCHIVED"     // 종결 (영구 보관)
)

// OpenStatuses are the statuses that count toward the one-open-per-ticker rule
var OpenStatuses = []Status{StatusActive, StatusWeakWarning}

// IsOpen reports whether the record is still live (ACTIVE or WEAK_WARNING)
func (s Status) IsOpen() bool {
	return s == StatusActive || s == StatusWeakWarning
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusArchived
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusWeakWarning, StatusBroken, StatusArchived:
		return true
	}
	return false
}

// ParseStatus converts a user supplied status string
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.Valid()
}

// ReasonCode 상태 전이 / 생성 거절 사유
type ReasonCode string

const (
	ReasonCreated          ReasonCode = "CREATED"
	ReasonRepeatSignal     ReasonCode = "REPEAT_SIGNAL"     // 이미 열린 추천 존재
	ReasonCooldownActive   ReasonCode = "COOLDOWN_ACTIVE"   // 직전 종료 후 쿨다운 중
	ReasonPriceUnavailable ReasonCode = "PRICE_UNAVAILABLE" // 기준가 조회 실패 (재시도 가능)
	ReasonNoMomentum       ReasonCode = "NO_MOMENTUM"       // 손절 또는 손실 상태로 TTL 도달
	ReasonTTLExpired       ReasonCode = "TTL_EXPIRED"       // 손실 없이 TTL 도달
	ReasonWeakWarning      ReasonCode = "WEAK_WARNING"
	ReasonRecovered        ReasonCode = "RECOVERED"
	ReasonManualArchive    ReasonCode = "MANUAL_ARCHIVE"
	ReasonReplaced         ReasonCode = "REPLACED"

	// 후보 검증 실패 (전략 미등록 등), 재시도 불가
	ReasonInvalidCandidate ReasonCode = "INVALID_CANDIDATE"
)

// =============================================================================
// Recommendation
// =============================================================================

// Recommendation is one lifecycle instance for a ticker.
// ⭐ SSOT: 추천 레코드 구조는 여기서만
//
// Anchor fields are fixed at creation. Broken* and Archive* fields are
// written exactly once; nil means "not set yet".
type Recommendation struct {
	ID       string `json:"id"`
	Ticker   string `json:"ticker"`
	Strategy string `json:"strategy"`
	Status   Status `json:"status"`

	AnchorDate  time.Time `json:"anchor_date"`
	AnchorClose float64   `json:"anchor_close"`

	BrokenAt        *time.Time  `json:"broken_at,omitempty"`
	BrokenReturnPct *float64    `json:"broken_return_pct,omitempty"`
	BrokenReason    *ReasonCode `json:"broken_reason,omitempty"`

	ArchivedAt       *time.Time  `json:"archived_at,omitempty"`
	ArchiveReason    *ReasonCode `json:"archive_reason,omitempty"`
	ArchiveReturnPct *float64    `json:"archive_return_pct,omitempty"`
	ArchivePrice     *float64    `json:"archive_price,omitempty"`

	ScoreSnapshot ScoreSnapshot `json:"score_snapshot"`

	CreatedAt       time.Time `json:"created_at"`
	StatusChangedAt time.Time `json:"status_changed_at"`
}

// Clone returns a deep copy so callers can never alias stored state
func (r *Recommendation) Clone() *Recommendation {
	if r == nil {
		return nil
	}
	c := *r
	c.BrokenAt = cloneTime(r.BrokenAt)
	c.BrokenReturnPct = cloneFloat(r.BrokenReturnPct)
	c.BrokenReason = cloneReason(r.BrokenReason)
	c.ArchivedAt = cloneTime(r.ArchivedAt)
	c.ArchiveReason = cloneReason(r.ArchiveReason)
	c.ArchiveReturnPct = cloneFloat(r.ArchiveReturnPct)
	c.ArchivePrice = cloneFloat(r.ArchivePrice)
	c.ScoreSnapshot = r.ScoreSnapshot.Clone()
	return &c
}

// ClosedAt is the date the record stopped being open:
// brokenAt, or archivedAt when it was archived directly.
func (r *Recommendation) ClosedAt() *time.Time {
	if r.BrokenAt != nil {
		return r.BrokenAt
	}
	return r.ArchivedAt
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneReason(r *ReasonCode) *ReasonCode {
	if r == nil {
		return nil
	}
	v := *r
	return &v
}

// =============================================================================
// State Event (append-only audit log)
// =============================================================================

// StateEvent is one row of the audit trail. Creation has FromStatus == nil.
// REPEAT_SIGNAL audit rows have FromStatus == ToStatus.
type StateEvent struct {
	ID               string        `json:"id"`
	RecommendationID string        `json:"recommendation_id"`
	Ticker           string        `json:"ticker"`
	FromStatus       *Status       `json:"from_status"`
	ToStatus         Status        `json:"to_status"`
	Reason           ReasonCode    `json:"reason"`
	OccurredAt       time.Time     `json:"occurred_at"`
	Metadata         EventMetadata `json:"metadata"`
}

// IsStatusChange reports whether the event moved the record to a new status
func (e *StateEvent) IsStatusChange() bool {
	return e.FromStatus == nil || *e.FromStatus != e.ToStatus
}

// =============================================================================
// Price / Candidate
// =============================================================================

// DailyClose is one close price on a trading date
type DailyClose struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Candidate is a proposal from the candidate feed
type Candidate struct {
	ID            string        `json:"id"`
	Ticker        string        `json:"ticker"`
	Strategy      string        `json:"strategy"`
	ProposedDate  time.Time     `json:"proposed_date"`
	ScoreSnapshot ScoreSnapshot `json:"score_snapshot"`
}

// CreateResult is the gate's answer: Created(id) or Rejected(reason)
type CreateResult struct {
	Created          bool       `json:"created"`
	RecommendationID string     `json:"recommendation_id,omitempty"`
	Reason           ReasonCode `json:"reason"`
	Retryable        bool       `json:"retryable"`
	AnchorDate       time.Time  `json:"anchor_date"`
	AnchorClose      float64    `json:"anchor_close"`
}

// Rejected builds a rejection result.
// PRICE_UNAVAILABLE is the only retryable rejection.
func Rejected(reason ReasonCode, existingID string) *CreateResult {
	return &CreateResult{
		Created:          false,
		RecommendationID: existingID,
		Reason:           reason,
		Retryable:        reason == ReasonPriceUnavailable,
	}
}

// marshalWithExtra encodes known fields and merges residual keys that do not
// shadow a known one.
func marshalWithExtra(known interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return data, nil
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// extraKeys returns every key of data not in known
func extraKeys(data []byte, known map[string]struct{}) (map[string]json.RawMessage, error) {
	all := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func cloneExtra(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if extra == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
