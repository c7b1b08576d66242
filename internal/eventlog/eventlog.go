// Package eventlog is an append-only Postgres sink for CrossPlatform
// records, the optional boundary persistence the pipeline itself has
// no opinion about.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/romanzzaa/crossfeed/internal/model"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS crossplatform_events (
	id         BIGSERIAL PRIMARY KEY,
	symbol     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	ts         TIMESTAMPTZ NOT NULL
)`

// Log writes CrossPlatform records to Postgres. It is append-only: no
// updates or deletes, matching the boundary-only persistence this
// product allows.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open dials dsn, applies SetMaxOpenConns/SetMaxIdleConns/
// SetConnMaxLifetime limits to the pool, and ensures the event table
// exists.
func Open(dsn string) (*Log, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure event table: %w", err)
	}

	return &Log{db: db, logger: slog.Default().With("component", "eventlog")}, nil
}

// Close releases the underlying connection pool.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append writes one CrossPlatform record. Call errors are logged, not
// propagated, since a downed event log must never block the pipeline.
func (l *Log) Append(ctx context.Context, record model.CrossPlatform) {
	payload, err := json.Marshal(record)
	if err != nil {
		l.logger.Error("marshal cross-platform record", "err", err)
		return
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO crossplatform_events (symbol, payload, ts) VALUES ($1, $2, $3)`,
		record.Symbol, payload, record.CalculatedAt,
	)
	if err != nil {
		l.logger.Error("insert cross-platform event", "symbol", record.Symbol, "err", err)
	}
}
