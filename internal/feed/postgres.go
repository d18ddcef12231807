package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// ErrAlreadyProcessed is returned when acking a candidate that is no longer pending
var ErrAlreadyProcessed = errors.New("candidate already processed")

// defaultClaimLease is used when NewPostgresFeed gets a non-positive lease
const defaultClaimLease = 5 * time.Minute

// PostgresFeed is a CandidateFeed backed by the lifecycle.candidates queue table.
// The scanning pipeline enqueues rows; intake drains them.
type PostgresFeed struct {
	pool  *pgxpool.Pool
	lease time.Duration
}

// NewPostgresFeed creates a queue-table feed. A pulled candidate stays
// claimed for lease; un-acked (retryable) rows become pending again after it.
func NewPostgresFeed(pool *pgxpool.Pool, lease time.Duration) *PostgresFeed {
	if lease <= 0 {
		lease = defaultClaimLease
	}
	return &PostgresFeed{pool: pool, lease: lease}
}

// Enqueue adds a pending candidate and returns its id
func (f *PostgresFeed) Enqueue(ctx context.Context, c *contracts.Candidate) (string, error) {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}

	snapshot, err := json.Marshal(c.ScoreSnapshot)
	if err != nil {
		return "", fmt.Errorf("encode score snapshot: %w", err)
	}

	query := `
		INSERT INTO lifecycle.candidates (id, ticker, strategy, proposed_date, score_snapshot)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := f.pool.Exec(ctx, query, id, c.Ticker, c.Strategy, c.ProposedDate, snapshot); err != nil {
		return "", fmt.Errorf("failed to enqueue candidate: %w", err)
	}
	return id, nil
}

// Pending claims up to limit unclaimed candidates, oldest first.
// The claim is a lease stamped in the same statement, so concurrent intake
// processes receive disjoint batches. Rows whose payload cannot be read are
// closed as INVALID_CANDIDATE instead of failing the batch.
func (f *PostgresFeed) Pending(ctx context.Context, limit int) ([]*contracts.Candidate, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		UPDATE lifecycle.candidates c
		SET attempts = c.attempts + 1,
		    claimed_until = now() + $2::float8 * interval '1 millisecond'
		FROM (
			SELECT id FROM lifecycle.candidates
			WHERE status = 'PENDING'
			  AND (claimed_until IS NULL OR claimed_until <= now())
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		) p
		WHERE c.id = p.id
		RETURNING c.id::text, c.ticker, c.strategy, c.proposed_date, c.score_snapshot, c.created_at
	`
	rows, err := f.pool.Query(ctx, query, limit, f.lease.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending candidates: %w", err)
	}
	defer rows.Close()

	type pending struct {
		c         *contracts.Candidate
		createdAt time.Time
	}
	var (
		out     []pending
		invalid []string
	)
	for rows.Next() {
		var (
			c        contracts.Candidate
			snapshot []byte
			created  time.Time
		)
		if err := rows.Scan(&c.ID, &c.Ticker, &c.Strategy, &c.ProposedDate, &snapshot, &created); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		y, m, d := c.ProposedDate.Date()
		c.ProposedDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

		c.ScoreSnapshot, err = contracts.ParseScoreSnapshot(snapshot)
		if err != nil {
			invalid = append(invalid, c.ID)
			continue
		}
		out = append(out, pending{c: &c, createdAt: created})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}

	// 읽을 수 없는 행은 배치에서 제외하고 종료 처리
	for _, id := range invalid {
		if err := f.Ack(ctx, id, contracts.Rejected(contracts.ReasonInvalidCandidate, "")); err != nil {
			return nil, fmt.Errorf("close unreadable candidate %s: %w", id, err)
		}
	}

	// RETURNING 순서는 보장되지 않음
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].createdAt.Before(out[j].createdAt)
		}
		return out[i].c.ID < out[j].c.ID
	})

	candidates := make([]*contracts.Candidate, 0, len(out))
	for _, p := range out {
		candidates = append(candidates, p.c)
	}
	return candidates, nil
}

// Ack records the final gate outcome of a candidate
func (f *PostgresFeed) Ack(ctx context.Context, candidateID string, res *contracts.CreateResult) error {
	status := "REJECTED"
	if res.Created {
		status = "CREATED"
	}
	var recID *string
	if res.RecommendationID != "" {
		recID = &res.RecommendationID
	}

	query := `
		UPDATE lifecycle.candidates
		SET status = $2, outcome_reason = $3, recommendation_id = $4,
		    processed_at = now(), claimed_until = NULL
		WHERE id = $1 AND status = 'PENDING'
	`
	tag, err := f.pool.Exec(ctx, query, candidateID, status, string(res.Reason), recID)
	if err != nil {
		return fmt.Errorf("failed to ack candidate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, candidateID)
	}
	return nil
}

// Counts returns the number of candidates per queue status
func (f *PostgresFeed) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := f.pool.Query(ctx, `SELECT status, count(*) FROM lifecycle.candidates GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count candidates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan candidate count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
