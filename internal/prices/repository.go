package prices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rexfever/showmethestock-sub000/internal/contracts"
)

// ErrFractionalClose is returned when a close does not fit the whole-won
// close_price column
var ErrFractionalClose = errors.New("close is not a whole number")

// maxReportedCloses caps the rows listed in an ErrFractionalClose message
const maxReportedCloses = 5

// Repository implements contracts.PriceHistoryProvider over data.daily_prices
// ⭐ SSOT: 일별 종가 조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new price repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ResolveClose returns the close of ticker on date.
// 해당 거래일 종가가 없으면 ErrPriceUnavailable
func (r *Repository) ResolveClose(ctx context.Context, ticker string, date time.Time) (float64, error) {
	query := `
		SELECT close_price::float8
		FROM data.daily_prices
		WHERE stock_code = $1 AND trade_date = $2
	`

	var price float64
	err := r.pool.QueryRow(ctx, query, ticker, date).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s on %s", contracts.ErrPriceUnavailable, ticker, date.Format(contracts.DateLayout))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query close: %w", err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: non-positive close for %s on %s", contracts.ErrPriceUnavailable, ticker, date.Format(contracts.DateLayout))
	}
	return price, nil
}

// DailyCloses returns closes in [from, to] ordered by trade_date
func (r *Repository) DailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]contracts.DailyClose, error) {
	query := `
		SELECT trade_date, close_price::float8
		FROM data.daily_prices
		WHERE stock_code = $1 AND trade_date BETWEEN $2 AND $3
		  AND close_price > 0
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query closes: %w", err)
	}
	defer rows.Close()

	var closes []contracts.DailyClose
	for rows.Next() {
		var c contracts.DailyClose
		if err := rows.Scan(&c.Date, &c.Close); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		c.Date = civil(c.Date)
		closes = append(closes, c)
	}
	return closes, rows.Err()
}

// SaveBatch upserts closes for one ticker (fixture loading, replay audits).
// The whole batch is refused when any close has a fractional part, so the
// table never holds values that differ from the source fixture.
func (r *Repository) SaveBatch(ctx context.Context, ticker string, closes []contracts.DailyClose) error {
	if len(closes) == 0 {
		return nil
	}
	if err := CheckWholeCloses(ticker, closes); err != nil {
		return err
	}

	query := `
		INSERT INTO data.daily_prices (stock_code, trade_date, close_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (stock_code, trade_date) DO UPDATE SET
			close_price = EXCLUDED.close_price
	`

	batch := &pgx.Batch{}
	for _, c := range closes {
		batch.Queue(query, ticker, c.Date, decimal.NewFromFloat(c.Close).IntPart())
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range closes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save close: %w", err)
		}
	}
	return nil
}

// CheckWholeCloses lists every close of ticker with a fractional part
func CheckWholeCloses(ticker string, closes []contracts.DailyClose) error {
	var bad []string
	for _, c := range closes {
		d := decimal.NewFromFloat(c.Close)
		if d.Equal(d.Truncate(0)) {
			continue
		}
		bad = append(bad, fmt.Sprintf("%s=%s", c.Date.Format(contracts.DateLayout), d.String()))
	}
	if len(bad) == 0 {
		return nil
	}

	shown := bad
	if len(shown) > maxReportedCloses {
		shown = shown[:maxReportedCloses]
	}
	msg := strings.Join(shown, ", ")
	if len(bad) > len(shown) {
		msg += fmt.Sprintf(" (+%d more)", len(bad)-len(shown))
	}
	return fmt.Errorf("%w: %s %d row(s): %s", ErrFractionalClose, ticker, len(bad), msg)
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
