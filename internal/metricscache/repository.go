package metricscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/stockleague/backend/internal/contracts"
)

// Repository is the durable tier of the metrics cache plus the
// singleton state store. Upserts are last-writer-wins per key, which is
// the whole concurrency contract at this boundary.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert writes one cache entry
func (r *Repository) Upsert(ctx context.Context, entry contracts.CacheEntry) error {
	snapshotJSON, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO league.metrics_cache (ticker, snapshot, schema_version, has_overview, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ticker) DO UPDATE SET
			snapshot = EXCLUDED.snapshot,
			schema_version = EXCLUDED.schema_version,
			has_overview = EXCLUDED.has_overview,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query,
		entry.Snapshot.Ticker,
		snapshotJSON,
		entry.Snapshot.SchemaVersion,
		entry.HasOverview,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert metrics cache: %w", err)
	}

	return nil
}

// GetMany retrieves cache entries for the given tickers. Absent tickers
// are simply missing from the result map.
func (r *Repository) GetMany(ctx context.Context, tickers []string) (map[string]contracts.CacheEntry, error) {
	if len(tickers) == 0 {
		return map[string]contracts.CacheEntry{}, nil
	}

	query := `
		SELECT ticker, snapshot, has_overview, updated_at
		FROM league.metrics_cache
		WHERE ticker = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, tickers)
	if err != nil {
		return nil, fmt.Errorf("query metrics cache: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]contracts.CacheEntry)
	for rows.Next() {
		var (
			ticker       string
			snapshotJSON []byte
			entry        contracts.CacheEntry
		)
		if err := rows.Scan(&ticker, &snapshotJSON, &entry.HasOverview, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan metrics cache row: %w", err)
		}
		if err := json.Unmarshal(snapshotJSON, &entry.Snapshot); err != nil {
			// A corrupt row is treated as a miss; the refresh path rewrites it
			continue
		}
		entries[ticker] = entry
	}
	return entries, rows.Err()
}

// GetSingleton reads one application state row into dest
func (r *Repository) GetSingleton(ctx context.Context, key string, dest interface{}) (bool, error) {
	query := `SELECT payload FROM league.app_state WHERE key = $1`

	var payload []byte
	err := r.pool.QueryRow(ctx, query, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query app state: %w", err)
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("unmarshal app state: %w", err)
	}
	return true, nil
}

// UpsertSingleton writes one application state row
func (r *Repository) UpsertSingleton(ctx context.Context, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal app state: %w", err)
	}

	query := `
		INSERT INTO league.app_state (key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, key, data); err != nil {
		return fmt.Errorf("upsert app state: %w", err)
	}
	return nil
}
