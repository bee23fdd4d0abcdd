package settlement

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/stockleague/backend/internal/contracts"
)

// Repository persists settlement-grade weekly prices
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertWeeklyPrice writes one resolved open/close pair. Re-resolving a
// week overwrites the previous row for the same (week, ticker).
func (r *Repository) UpsertWeeklyPrice(ctx context.Context, price contracts.WeeklyPrice) error {
	query := `
		INSERT INTO league.weekly_prices (week_id, ticker, open_price, close_price, resolved_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (week_id, ticker) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			close_price = EXCLUDED.close_price,
			resolved_at = EXCLUDED.resolved_at
	`

	_, err := r.pool.Exec(ctx, query,
		price.WeekID,
		price.Ticker,
		price.OpenPrice,
		price.ClosePrice,
		price.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert weekly price: %w", err)
	}

	return nil
}
