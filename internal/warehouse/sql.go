package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/at-bus-load/internal/common/db"
	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/internal/stage"
	"github.com/at-bus-load/internal/table"
)

const defaultBatchSize = 500

// SQL loads artifacts into PostgreSQL or SQLite. Each load rebuilds the
// destination table and records itself in the dataset's load ledger inside a
// single transaction.
type SQL struct {
	db        *db.DB
	store     stage.ObjectStore
	batchSize int
	logger    logger.Logger
}

func NewSQL(database *db.DB, store stage.ObjectStore, log logger.Logger) *SQL {
	return &SQL{
		db:        database,
		store:     store,
		batchSize: defaultBatchSize,
		logger:    log,
	}
}

func (s *SQL) Load(ctx context.Context, dest TableRef, src stage.Artifact) (Result, error) {
	res := Result{Table: dest, Source: src.URI}

	data, err := s.store.Get(ctx, src.Path)
	if err != nil {
		return res, fmt.Errorf("reading artifact %s: %w", src.URI, err)
	}
	t, err := table.Decode(src.Key.Kind, data)
	if err != nil {
		return res, err
	}

	if err := s.db.EnsureDataset(ctx, dest.Dataset); err != nil {
		return res, err
	}
	ledger := db.NewLedger(s.db, dest.Dataset)
	if err := ledger.EnsureSchema(ctx); err != nil {
		return res, err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return res, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	name := s.db.QualifiedName(dest.Dataset, dest.Table)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return res, fmt.Errorf("dropping %s: %w", dest, err)
	}
	if _, err := tx.ExecContext(ctx, createTableQuery(name, t.Columns())); err != nil {
		return res, fmt.Errorf("creating %s: %w", dest, err)
	}

	batch := newBatchInserter(ctx, tx, name, t.Columns(), s.batchSize)
	for i := 0; i < t.Len(); i++ {
		if err := batch.Add(t.Values(i)...); err != nil {
			return res, fmt.Errorf("inserting into %s: %w", dest, err)
		}
	}
	if err := batch.Flush(); err != nil {
		return res, fmt.Errorf("inserting into %s: %w", dest, err)
	}

	res.Rows = int64(t.Len())
	err = ledger.Record(ctx, tx, db.LoadRecord{
		TableName: dest.Table,
		SourceURI: src.URI,
		Rows:      res.Rows,
		RunID:     runIDFrom(ctx),
		LoadedAt:  time.Now(),
	})
	if err != nil {
		return res, err
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Info("Loaded data into warehouse",
		"dialect", s.db.Dialect(),
		"uri", src.URI,
		"table", dest.String(),
		"rows", res.Rows)
	return res, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func sqlType(t table.ColumnType) string {
	switch t {
	case table.Float:
		return "DOUBLE PRECISION"
	case table.Int:
		return "BIGINT"
	case table.Date:
		return "DATE"
	default:
		return "TEXT"
	}
}

func createTableQuery(name string, columns []table.Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = db.QuoteIdent(c.Name) + " " + sqlType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
}

// batchInserter buffers rows and writes them as multi-row INSERT statements
type batchInserter struct {
	ctx        context.Context
	tx         *sql.Tx
	tableName  string
	columns    []string
	values     []interface{}
	valueCount int
	batchSize  int
	fieldCount int
}

func newBatchInserter(ctx context.Context, tx *sql.Tx, tableName string, columns []table.Column, batchSize int) *batchInserter {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = db.QuoteIdent(c.Name)
	}
	return &batchInserter{
		ctx:        ctx,
		tx:         tx,
		tableName:  tableName,
		columns:    names,
		values:     make([]interface{}, 0, batchSize*len(columns)),
		batchSize:  batchSize,
		fieldCount: len(columns),
	}
}

func (b *batchInserter) Add(values ...interface{}) error {
	if len(values) != b.fieldCount {
		return fmt.Errorf("row has %d values, want %d", len(values), b.fieldCount)
	}
	b.values = append(b.values, values...)
	b.valueCount++

	if b.valueCount >= b.batchSize {
		return b.Flush()
	}

	return nil
}

func (b *batchInserter) Flush() error {
	if b.valueCount == 0 {
		return nil
	}

	query := b.buildInsertQuery()
	_, err := b.tx.ExecContext(b.ctx, query, b.values...)
	if err != nil {
		return fmt.Errorf("executing batch insert: %w", err)
	}

	// Reset
	b.values = b.values[:0]
	b.valueCount = 0

	return nil
}

func (b *batchInserter) buildInsertQuery() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		b.tableName,
		strings.Join(b.columns, ", ")))

	for i := 0; i < b.valueCount; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < b.fieldCount; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("$%d", i*b.fieldCount+j+1))
		}
		sb.WriteString(")")
	}

	return sb.String()
}
