package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/FranksOps/endpoints/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS endpoint_records (
	scan_id TEXT NOT NULL,
	endpoint_url TEXT NOT NULL,
	host TEXT NOT NULL,
	source_url TEXT NOT NULL,
	count INTEGER NOT NULL,
	first_seen_at BIGINT NOT NULL,
	last_seen_at BIGINT NOT NULL,
	PRIMARY KEY (scan_id, endpoint_url)
);
`

const upsert = `
INSERT INTO endpoint_records (
	scan_id, endpoint_url, host, source_url, count, first_seen_at, last_seen_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (scan_id, endpoint_url) DO UPDATE SET
	host = EXCLUDED.host,
	source_url = EXCLUDED.source_url,
	count = EXCLUDED.count,
	first_seen_at = EXCLUDED.first_seen_at,
	last_seen_at = EXCLUDED.last_seen_at
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

// Save upserts all records of a scan as one batch inside a transaction.
func (b *postgresBackend) Save(ctx context.Context, scanID string, records []endpoint.Record) error {
	if len(records) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(upsert,
				scanID,
				r.EndpointURL,
				r.Host,
				r.SourceURL,
				r.Count,
				r.FirstSeenAt,
				r.LastSeenAt,
			)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert endpoint records: %w", err)
		}
		return nil
	})
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]endpoint.Record, error) {
	query := `SELECT endpoint_url, host, source_url, count, first_seen_at, last_seen_at FROM endpoint_records WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.ScanID != "" {
		query += fmt.Sprintf(` AND scan_id = $%d`, paramCount)
		args = append(args, filter.ScanID)
		paramCount++
	}
	if filter.Host != "" {
		query += fmt.Sprintf(` AND lower(host) = lower($%d)`, paramCount)
		args = append(args, filter.Host)
		paramCount++
	}
	if kw := strings.ToLower(strings.TrimSpace(filter.Keyword)); kw != "" {
		query += fmt.Sprintf(` AND strpos(lower(endpoint_url || ' ' || host || ' ' || source_url), $%d) > 0`, paramCount)
		args = append(args, kw)
		paramCount++
	}

	// byte order, independent of the database collation
	query += ` ORDER BY count DESC, endpoint_url COLLATE "C" ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query postgres: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (endpoint.Record, error) {
		var r endpoint.Record
		err := row.Scan(&r.EndpointURL, &r.Host, &r.SourceURL, &r.Count, &r.FirstSeenAt, &r.LastSeenAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan postgres rows: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
