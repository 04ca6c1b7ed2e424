package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/at-bus-load/internal/common/config"
	"github.com/at-bus-load/internal/common/logger"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type DB struct {
	conn    *sql.DB
	dialect Dialect
	logger  logger.Logger
}

func New(ctx context.Context, dialect Dialect, dsn string, logger logger.Logger) (*DB, error) {
	conn, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if dialect == SQLite {
		// a single writer keeps the embedded database free of lock errors
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("Database connection established", "dialect", dialect)

	return &DB{
		conn:    conn,
		dialect: dialect,
		logger:  logger,
	}, nil
}

// Open connects to the SQL warehouse selected in cfg
func Open(ctx context.Context, cfg config.WarehouseConfig, logger logger.Logger) (*DB, error) {
	switch cfg.Backend {
	case string(Postgres):
		return New(ctx, Postgres, cfg.Database.ConnectionString(), logger)
	case string(SQLite):
		return New(ctx, SQLite, cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("warehouse backend %q is not a SQL database", cfg.Backend)
	}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Logger returns the logger instance
func (db *DB) Logger() logger.Logger {
	return db.logger
}

// QuoteIdent quotes a single identifier
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName addresses table inside dataset. Postgres maps the dataset to
// a schema; SQLite has none, so the dotted name becomes one identifier.
func (db *DB) QualifiedName(dataset, table string) string {
	if db.dialect == Postgres {
		return QuoteIdent(dataset) + "." + QuoteIdent(table)
	}
	return QuoteIdent(dataset + "." + table)
}

// EnsureDataset creates the namespace that holds the dataset's tables
func (db *DB) EnsureDataset(ctx context.Context, dataset string) error {
	if db.dialect != Postgres {
		return nil
	}
	if _, err := db.conn.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+QuoteIdent(dataset)); err != nil {
		return fmt.Errorf("creating schema %s: %w", dataset, err)
	}
	return nil
}
