package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/FranksOps/endpoints/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS endpoint_records (
	scan_id TEXT NOT NULL,
	endpoint_url TEXT NOT NULL,
	host TEXT NOT NULL,
	source_url TEXT NOT NULL,
	count INTEGER NOT NULL,
	first_seen_at INTEGER NOT NULL,
	last_seen_at INTEGER NOT NULL,
	PRIMARY KEY (scan_id, endpoint_url)
);
`

const upsert = `
INSERT INTO endpoint_records (
	scan_id, endpoint_url, host, source_url, count, first_seen_at, last_seen_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (scan_id, endpoint_url) DO UPDATE SET
	host = excluded.host,
	source_url = excluded.source_url,
	count = excluded.count,
	first_seen_at = excluded.first_seen_at,
	last_seen_at = excluded.last_seen_at
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

// Save upserts all records of a scan in one transaction.
func (b *sqliteBackend) Save(ctx context.Context, scanID string, records []endpoint.Record) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("prepare sqlite upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			scanID,
			r.EndpointURL,
			r.Host,
			r.SourceURL,
			r.Count,
			r.FirstSeenAt,
			r.LastSeenAt,
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", r.EndpointURL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]endpoint.Record, error) {
	query := `SELECT endpoint_url, host, source_url, count, first_seen_at, last_seen_at FROM endpoint_records WHERE 1=1`
	args := []any{}

	if filter.ScanID != "" {
		query += ` AND scan_id = ?`
		args = append(args, filter.ScanID)
	}
	if filter.Host != "" {
		query += ` AND lower(host) = lower(?)`
		args = append(args, filter.Host)
	}
	if kw := strings.ToLower(strings.TrimSpace(filter.Keyword)); kw != "" {
		query += ` AND instr(lower(endpoint_url || ' ' || host || ' ' || source_url), ?) > 0`
		args = append(args, kw)
	}

	query += ` ORDER BY count DESC, endpoint_url ASC`

	// SQLite only accepts OFFSET after LIMIT; -1 means no limit.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := -1
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sqlite: %w", err)
	}
	defer rows.Close()

	results := []endpoint.Record{}
	for rows.Next() {
		var r endpoint.Record
		err := rows.Scan(&r.EndpointURL, &r.Host, &r.SourceURL, &r.Count, &r.FirstSeenAt, &r.LastSeenAt)
		if err != nil {
			return nil, fmt.Errorf("scan sqlite row: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sqlite rows: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
