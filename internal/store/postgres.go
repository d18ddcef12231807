package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
	"github.com/rexfever/showmethestock-sub000/pkg/database"
)

// pgUniqueViolation is SQLSTATE unique_violation
const pgUniqueViolation = "23505"

// PostgresStore implements contracts.RecommendationStore
// ⭐ SSOT: 추천/이벤트 영속화는 여기서만
//
// The per-ticker critical section is a transaction-scoped advisory lock, so
// it is shared by every process using the same database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new recommendation store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const recommendationColumns = `
	id::text, ticker, strategy, status, anchor_date, anchor_close::float8,
	broken_at, broken_return_pct::float8, broken_reason,
	archived_at, archive_reason, archive_return_pct::float8, archive_price::float8,
	score_snapshot, created_at, status_changed_at
`

// GetByID retrieves a recommendation
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*contracts.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + `
		FROM lifecycle.recommendations
		WHERE id = $1
	`
	rec, err := scanRecommendation(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", contracts.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return rec, nil
}

// ListByStatus retrieves recommendations by status (all when none given)
func (s *PostgresStore) ListByStatus(ctx context.Context, statuses ...contracts.Status) ([]*contracts.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + `
		FROM lifecycle.recommendations
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])
		ORDER BY anchor_date ASC, created_at ASC
	`

	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.pool.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEvents retrieves the audit trail in append order
func (s *PostgresStore) ListEvents(ctx context.Context, id string) ([]*contracts.StateEvent, error) {
	query := `
		SELECT id::text, recommendation_id::text, ticker, from_status, to_status, reason, occurred_at, metadata
		FROM lifecycle.state_events
		WHERE recommendation_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []*contracts.StateEvent
	for rows.Next() {
		var (
			ev       contracts.StateEvent
			from     *string
			to       string
			reason   string
			metadata []byte
		)
		if err := rows.Scan(&ev.ID, &ev.RecommendationID, &ev.Ticker, &from, &to, &reason, &ev.OccurredAt, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if from != nil {
			st := contracts.Status(*from)
			ev.FromStatus = &st
		}
		ev.ToStatus = contracts.Status(to)
		ev.Reason = contracts.ReasonCode(reason)
		if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode event metadata: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// WithTickerLock runs fn in one transaction holding the ticker's advisory lock
func (s *PostgresStore) WithTickerLock(ctx context.Context, ticker string, fn func(tx contracts.RecommendationTx) error) error {
	return database.WithTx(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		// 트랜잭션 종료 시 자동 해제
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "reco:"+ticker); err != nil {
			return fmt.Errorf("lock ticker %s: %w", ticker, err)
		}
		return fn(&postgresTx{tx: tx, ticker: ticker})
	})
}

type postgresTx struct {
	tx     pgx.Tx
	ticker string
}

func (t *postgresTx) Get(ctx context.Context, id string) (*contracts.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + `
		FROM lifecycle.recommendations
		WHERE id = $1
		FOR UPDATE
	`
	rec, err := scanRecommendation(t.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", contracts.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return rec, nil
}

func (t *postgresTx) FindOpen(ctx context.Context, ticker string) ([]*contracts.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + `
		FROM lifecycle.recommendations
		WHERE ticker = $1 AND status IN ('ACTIVE', 'WEAK_WARNING')
		ORDER BY created_at ASC
	`

	rows, err := t.tx.Query(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to find open recommendations: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *postgresTx) FindLatestClosed(ctx context.Context, ticker string) (*contracts.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + `
		FROM lifecycle.recommendations
		WHERE ticker = $1 AND status IN ('BROKEN', 'ARCHIVED')
		  AND COALESCE(broken_at, archived_at) IS NOT NULL
		ORDER BY COALESCE(broken_at, archived_at) DESC, status_changed_at DESC
		LIMIT 1
	`
	rec, err := scanRecommendation(t.tx.QueryRow(ctx, query, ticker))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no closed record for %s", contracts.ErrNotFound, ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find closed recommendation: %w", err)
	}
	return rec, nil
}

func (t *postgresTx) Insert(ctx context.Context, rec *contracts.Recommendation) error {
	if rec.Ticker != t.ticker {
		return fmt.Errorf("%w: insert %s under %s", contracts.ErrTickerNotLocked, rec.Ticker, t.ticker)
	}

	snapshot, err := json.Marshal(rec.ScoreSnapshot)
	if err != nil {
		return fmt.Errorf("failed to encode score snapshot: %w", err)
	}

	query := `
		INSERT INTO lifecycle.recommendations (
			id, ticker, strategy, status, anchor_date, anchor_close,
			broken_at, broken_return_pct, broken_reason,
			archived_at, archive_reason, archive_return_pct, archive_price,
			score_snapshot, created_at, status_changed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = t.tx.Exec(ctx, query,
		rec.ID, rec.Ticker, rec.Strategy, string(rec.Status), rec.AnchorDate, rec.AnchorClose,
		rec.BrokenAt, rec.BrokenReturnPct, reasonArg(rec.BrokenReason),
		rec.ArchivedAt, reasonArg(rec.ArchiveReason), rec.ArchiveReturnPct, rec.ArchivePrice,
		snapshot, rec.CreatedAt, rec.StatusChangedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", contracts.ErrDuplicateActive, rec.Ticker)
	}
	if err != nil {
		return fmt.Errorf("failed to insert recommendation: %w", err)
	}
	return nil
}

// Update writes status and the write-once snapshot columns.
// Anchor columns are never part of the statement; COALESCE keeps an already
// set snapshot value even if the caller's copy were stale.
func (t *postgresTx) Update(ctx context.Context, rec *contracts.Recommendation) error {
	if rec.Ticker != t.ticker {
		return fmt.Errorf("%w: update %s under %s", contracts.ErrTickerNotLocked, rec.Ticker, t.ticker)
	}

	prev, err := t.Get(ctx, rec.ID)
	if err != nil {
		return err
	}
	if err := checkUpdate(prev, rec); err != nil {
		return err
	}

	query := `
		UPDATE lifecycle.recommendations SET
			status             = $2,
			broken_at          = COALESCE(broken_at, $3),
			broken_return_pct  = COALESCE(broken_return_pct, $4),
			broken_reason      = COALESCE(broken_reason, $5),
			archived_at        = COALESCE(archived_at, $6),
			archive_reason     = COALESCE(archive_reason, $7),
			archive_return_pct = COALESCE(archive_return_pct, $8),
			archive_price      = COALESCE(archive_price, $9),
			status_changed_at  = $10
		WHERE id = $1 AND status <> 'ARCHIVED'
	`

	tag, err := t.tx.Exec(ctx, query,
		rec.ID, string(rec.Status),
		rec.BrokenAt, rec.BrokenReturnPct, reasonArg(rec.BrokenReason),
		rec.ArchivedAt, reasonArg(rec.ArchiveReason), rec.ArchiveReturnPct, rec.ArchivePrice,
		rec.StatusChangedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", contracts.ErrDuplicateActive, rec.Ticker)
	}
	if err != nil {
		return fmt.Errorf("failed to update recommendation: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s is terminal", contracts.ErrSnapshotImmutable, rec.ID)
	}
	return nil
}

func (t *postgresTx) AppendEvent(ctx context.Context, ev *contracts.StateEvent) error {
	if ev.Ticker != t.ticker {
		return fmt.Errorf("%w: event for %s under %s", contracts.ErrTickerNotLocked, ev.Ticker, t.ticker)
	}

	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode event metadata: %w", err)
	}

	var from *string
	if ev.FromStatus != nil {
		s := string(*ev.FromStatus)
		from = &s
	}

	query := `
		INSERT INTO lifecycle.state_events (
			id, recommendation_id, ticker, from_status, to_status, reason, occurred_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = t.tx.Exec(ctx, query,
		ev.ID, ev.RecommendationID, ev.Ticker, from, string(ev.ToStatus), string(ev.Reason), ev.OccurredAt, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// scanRecommendation scans one row selected with recommendationColumns
func scanRecommendation(row pgx.Row) (*contracts.Recommendation, error) {
	var (
		rec           contracts.Recommendation
		status        string
		brokenReason  *string
		archiveReason *string
		snapshot      []byte
	)

	err := row.Scan(
		&rec.ID, &rec.Ticker, &rec.Strategy, &status, &rec.AnchorDate, &rec.AnchorClose,
		&rec.BrokenAt, &rec.BrokenReturnPct, &brokenReason,
		&rec.ArchivedAt, &archiveReason, &rec.ArchiveReturnPct, &rec.ArchivePrice,
		&snapshot, &rec.CreatedAt, &rec.StatusChangedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = contracts.Status(status)
	rec.BrokenReason = reasonPtr(brokenReason)
	rec.ArchiveReason = reasonPtr(archiveReason)
	rec.AnchorDate = civil(rec.AnchorDate)
	if rec.BrokenAt != nil {
		d := civil(*rec.BrokenAt)
		rec.BrokenAt = &d
	}
	if rec.ArchivedAt != nil {
		d := civil(*rec.ArchivedAt)
		rec.ArchivedAt = &d
	}
	if err := json.Unmarshal(snapshot, &rec.ScoreSnapshot); err != nil {
		return nil, fmt.Errorf("decode score snapshot: %w", err)
	}
	return &rec, nil
}

func reasonPtr(s *string) *contracts.ReasonCode {
	if s == nil {
		return nil
	}
	r := contracts.ReasonCode(*s)
	return &r
}

func reasonArg(r *contracts.ReasonCode) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
