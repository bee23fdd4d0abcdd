package universe

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/stockleague/backend/internal/contracts"
)

// ErrUnavailable means the durable store could not produce a ticker
// list. The warm scheduler aborts its pass (or falls back to the
// allowlist) when it sees this.
var ErrUnavailable = errors.New("universe unavailable")

// Repository reads universe snapshots from the durable store
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new universe repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Load retrieves the most recent universe snapshot
func (r *Repository) Load(ctx context.Context) (*contracts.Universe, error) {
	query := `
		SELECT snapshot_id, tickers
		FROM league.universe_snapshots
		ORDER BY created_at DESC
		LIMIT 1
	`

	var u contracts.Universe
	err := r.pool.QueryRow(ctx, query).Scan(&u.SnapshotID, &u.Tickers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no snapshot rows", ErrUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(u.Tickers) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot", ErrUnavailable)
	}

	return &u, nil
}
