package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const ledgerTable = "_load_ledger"

// LoadRecord is one row of the load ledger: the latest load of a table
type LoadRecord struct {
	TableName string
	SourceURI string
	Rows      int64
	RunID     string
	LoadedAt  time.Time
}

// Ledger tracks the most recent load of every warehouse table in a dataset
type Ledger struct {
	db      *DB
	dataset string
}

func NewLedger(db *DB, dataset string) *Ledger {
	return &Ledger{db: db, dataset: dataset}
}

func (l *Ledger) name() string {
	return l.db.QualifiedName(l.dataset, ledgerTable)
}

func (l *Ledger) EnsureSchema(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if l.db.dialect == SQLite {
		ts = "TIMESTAMP"
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			table_name TEXT PRIMARY KEY,
			source_uri TEXT NOT NULL,
			row_count BIGINT NOT NULL,
			run_id TEXT NOT NULL,
			loaded_at %s NOT NULL
		)`, l.name(), ts)
	if _, err := l.db.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating load ledger: %w", err)
	}
	return nil
}

// Record upserts rec inside tx so it commits together with the table it describes
func (l *Ledger) Record(ctx context.Context, tx *sql.Tx, rec LoadRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (table_name, source_uri, row_count, run_id, loaded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (table_name) DO UPDATE SET
			source_uri = excluded.source_uri,
			row_count = excluded.row_count,
			run_id = excluded.run_id,
			loaded_at = excluded.loaded_at
	`, l.name())

	if _, err := tx.ExecContext(ctx, query, rec.TableName, rec.SourceURI, rec.Rows, rec.RunID, rec.LoadedAt.UTC()); err != nil {
		return fmt.Errorf("recording load of %s: %w", rec.TableName, err)
	}
	return nil
}

// Latest returns the last recorded load of tableName, or nil when there is none
func (l *Ledger) Latest(ctx context.Context, tableName string) (*LoadRecord, error) {
	query := fmt.Sprintf(`
		SELECT table_name, source_uri, row_count, run_id, loaded_at
		FROM %s
		WHERE table_name = $1
	`, l.name())

	var rec LoadRecord
	err := l.db.conn.QueryRowContext(ctx, query, tableName).Scan(
		&rec.TableName,
		&rec.SourceURI,
		&rec.Rows,
		&rec.RunID,
		&rec.LoadedAt,
	)

	if err == sql.ErrNoRows {
		l.db.logger.Debug("No load recorded", "table", tableName)
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("querying load ledger: %w", err)
	}

	return &rec, nil
}
