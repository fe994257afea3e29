package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// PostgresSink mirrors appended entries into a colab_history table for
// cross-machine SQL reporting (spec.md §4.O, supplemental). It never
// blocks Append and never fails the caller: every error is logged.
type PostgresSink struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// NewPostgresSink connects to dsn and ensures the colab_history table
// exists. Enabled only when config.HistorySinks.PostgresDSN is non-empty.
func NewPostgresSink(ctx context.Context, dsn string, logger *logrus.Entry) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	sink := &PostgresSink{pool: pool, log: logger}
	if err := sink.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

func (p *PostgresSink) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS colab_history (
			timestamp       TIMESTAMPTZ NOT NULL,
			command         TEXT NOT NULL,
			mode            TEXT NOT NULL,
			status          TEXT NOT NULL,
			error_code      INTEGER NOT NULL,
			category        TEXT,
			execution_count INTEGER,
			runtime_label   TEXT,
			accelerator     TEXT,
			payload         JSONB NOT NULL,
			PRIMARY KEY (timestamp, command)
		)`)
	return err
}

// Mirror upserts entry into colab_history. Intended to run in its own
// goroutine right after a successful local Append; errors are logged, not
// returned to the execution path (spec.md §4.O: "never propagated").
func (p *PostgresSink) Mirror(ctx context.Context, entry Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		p.log.Warnf("history: pgsink failed to encode entry: %v", err)
		return
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO colab_history
			(timestamp, command, mode, status, error_code, category, execution_count, runtime_label, accelerator, payload)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (timestamp, command) DO UPDATE SET
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			category = EXCLUDED.category,
			payload = EXCLUDED.payload
	`, parseTimestampOrNow(entry.Timestamp), entry.Command, entry.Mode, entry.Status, entry.ErrorCode,
		nullableCategory(entry.Category), entry.ExecutionCount, entry.Runtime.Label, entry.Runtime.Accelerator, payload)
	if err != nil {
		p.log.Warnf("history: pgsink mirror failed: %v", err)
	}
}

// Close releases the connection pool.
func (p *PostgresSink) Close() {
	p.pool.Close()
}

func parseTimestampOrNow(ts string) time.Time {
	if t, ok := parseTimestamp(ts); ok {
		return t
	}
	return time.Now().UTC()
}

func nullableCategory(c Category) any {
	if c == "" {
		return nil
	}
	return string(c)
}
