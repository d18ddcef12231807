package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ScoreSnapshot is the candidate feed's scoring payload, stored for audit.
// The payload is kept byte-for-byte as received; the engine never reinterprets
// it. Fields gives a lenient read-only view of the conventional keys.
type ScoreSnapshot struct {
	raw json.RawMessage
}

// NewScoreSnapshot encodes v as a snapshot payload
func NewScoreSnapshot(v interface{}) (ScoreSnapshot, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ScoreSnapshot{}, err
	}
	return ParseScoreSnapshot(data)
}

// ParseScoreSnapshot wraps an already encoded payload. Any valid JSON value
// is accepted; empty input and null yield the zero snapshot.
func ParseScoreSnapshot(data []byte) (ScoreSnapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || isNullJSON(trimmed) {
		return ScoreSnapshot{}, nil
	}
	if !json.Valid(trimmed) {
		return ScoreSnapshot{}, errors.New("score snapshot is not valid JSON")
	}
	return ScoreSnapshot{raw: append(json.RawMessage(nil), trimmed...)}, nil
}

// Raw returns a copy of the payload, nil for the zero snapshot
func (s ScoreSnapshot) Raw() json.RawMessage {
	if s.raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), s.raw...)
}

// IsZero reports whether the snapshot carries no data at all
func (s ScoreSnapshot) IsZero() bool {
	return len(s.raw) == 0
}

// Clone deep-copies the snapshot
func (s ScoreSnapshot) Clone() ScoreSnapshot {
	return ScoreSnapshot{raw: s.Raw()}
}

// MarshalJSON emits the payload unmodified ({} when empty)
func (s ScoreSnapshot) MarshalJSON() ([]byte, error) {
	if len(s.raw) == 0 {
		return []byte("{}"), nil
	}
	return s.Raw(), nil
}

// UnmarshalJSON keeps the payload as received
func (s *ScoreSnapshot) UnmarshalJSON(data []byte) error {
	parsed, err := ParseScoreSnapshot(data)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SnapshotFields is a best-effort view of a snapshot's conventional keys.
// A known key whose value has an unexpected type stays in Extra.
type SnapshotFields struct {
	Score  *float64
	Rank   *int
	Signal *string
	Regime *string

	Extra map[string]json.RawMessage
}

// Fields decodes the conventional keys without ever failing. Non-object
// payloads yield an empty view.
func (s ScoreSnapshot) Fields() SnapshotFields {
	var f SnapshotFields

	var all map[string]json.RawMessage
	if len(s.raw) == 0 || json.Unmarshal(s.raw, &all) != nil {
		return f
	}

	for k, v := range all {
		var ok bool
		switch k {
		case "score":
			f.Score, ok = decodeAs[float64](v)
		case "rank":
			f.Rank, ok = decodeAs[int](v)
		case "signal":
			f.Signal, ok = decodeAs[string](v)
		case "regime":
			f.Regime, ok = decodeAs[string](v)
		}
		if ok {
			continue
		}
		if f.Extra == nil {
			f.Extra = make(map[string]json.RawMessage)
		}
		f.Extra[k] = append(json.RawMessage(nil), v...)
	}
	return f
}

// decodeAs decodes a non-null value into T (타입 불일치 시 ok=false)
func decodeAs[T any](v json.RawMessage) (*T, bool) {
	if isNullJSON(v) {
		return nil, false
	}
	var out T
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, false
	}
	return &out, true
}

// EventMetadata is the typed audit payload attached to a StateEvent
type EventMetadata struct {
	Strategy       string   `json:"strategy,omitempty"`
	StopLossPct    *float64 `json:"stop_loss_pct,omitempty"`
	TTLTradingDays *int     `json:"ttl_trading_days,omitempty"`
	PolicyHash     string   `json:"policy_hash,omitempty"` // strategy 설정 파일 SHA-256

	Mode          string   `json:"mode,omitempty"` // LIVE | REPLAY | GATE | MANUAL
	AsOf          string   `json:"as_of,omitempty"`
	EffectiveDate string   `json:"effective_date,omitempty"` // 전이가 발생한 거래일
	ReturnPct     *float64 `json:"return_pct,omitempty"`
	Close         *float64 `json:"close,omitempty"`
	CandidateDate string   `json:"candidate_date,omitempty"`
	Note          string   `json:"note,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var eventMetadataKeys = map[string]struct{}{
	"strategy": {}, "stop_loss_pct": {}, "ttl_trading_days": {}, "policy_hash": {},
	"mode": {}, "as_of": {}, "effective_date": {}, "return_pct": {}, "close": {},
	"candidate_date": {}, "note": {},
}

// MarshalJSON merges Extra into the known fields
func (m EventMetadata) MarshalJSON() ([]byte, error) {
	type plain EventMetadata
	return marshalWithExtra(plain(m), m.Extra)
}

// UnmarshalJSON keeps unknown keys in Extra
func (m *EventMetadata) UnmarshalJSON(data []byte) error {
	if isNullJSON(data) {
		*m = EventMetadata{}
		return nil
	}

	type plain EventMetadata
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraKeys(data, eventMetadataKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*m = EventMetadata(p)
	return nil
}

func isNullJSON(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}
