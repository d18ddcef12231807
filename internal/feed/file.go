package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/rexfever/showmethestock-sub000/internal/calendar"
	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// fileCandidate is the JSON form of one candidate in a feed file
type fileCandidate struct {
	ID            string                  `json:"id"`
	Ticker        string                  `json:"ticker"`
	Strategy      string                  `json:"strategy"`
	ProposedDate  string                  `json:"proposed_date"`
	ScoreSnapshot contracts.ScoreSnapshot `json:"score_snapshot"`
}

// MemoryFeed serves a fixed candidate list and keeps acks in memory.
// It backs `reco intake --file` and tests.
type MemoryFeed struct {
	mu         sync.Mutex
	candidates []*contracts.Candidate
	acks       map[string]*contracts.CreateResult
}

// NewMemoryFeed creates a feed over candidates (ids are assigned when empty)
func NewMemoryFeed(candidates []*contracts.Candidate) *MemoryFeed {
	for _, c := range candidates {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
	}
	return &MemoryFeed{
		candidates: candidates,
		acks:       make(map[string]*contracts.CreateResult),
	}
}

// LoadFile reads a JSON array of candidates
func LoadFile(path string) (*MemoryFeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of candidates. Only a malformed array fails;
// a row that cannot be decoded is kept with blank fields so the gate rejects
// it as INVALID_CANDIDATE and the rest of the file still flows.
func Parse(data []byte) (*MemoryFeed, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse candidate file: %w", err)
	}

	candidates := make([]*contracts.Candidate, 0, len(rows))
	for _, raw := range rows {
		candidates = append(candidates, parseCandidate(raw))
	}
	return NewMemoryFeed(candidates), nil
}

func parseCandidate(raw json.RawMessage) *contracts.Candidate {
	var r fileCandidate
	if err := json.Unmarshal(raw, &r); err != nil {
		// id 만이라도 살려 ack 추적 가능하게
		var idOnly struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw, &idOnly)
		return &contracts.Candidate{ID: idOnly.ID}
	}

	c := &contracts.Candidate{
		ID:            r.ID,
		Ticker:        r.Ticker,
		Strategy:      r.Strategy,
		ScoreSnapshot: r.ScoreSnapshot,
	}
	// 날짜 오류는 zero 로 남겨 게이트가 INVALID_CANDIDATE 로 처리
	if d, err := calendar.ParseDate(r.ProposedDate); err == nil {
		c.ProposedDate = d
	}
	return c
}

// Pending returns un-acked candidates in file order
func (f *MemoryFeed) Pending(_ context.Context, limit int) ([]*contracts.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*contracts.Candidate
	for _, c := range f.candidates {
		if _, done := f.acks[c.ID]; done {
			continue
		}
		cp := *c
		cp.ScoreSnapshot = c.ScoreSnapshot.Clone()
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Ack records a final outcome
func (f *MemoryFeed) Ack(_ context.Context, candidateID string, res *contracts.CreateResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, done := f.acks[candidateID]; done {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, candidateID)
	}
	cp := *res
	f.acks[candidateID] = &cp
	return nil
}

// Outcome returns the acked result of a candidate
func (f *MemoryFeed) Outcome(candidateID string) (*contracts.CreateResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res, ok := f.acks[candidateID]
	return res, ok
}

// Remaining counts candidates still pending
func (f *MemoryFeed) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.candidates) - len(f.acks)
}
