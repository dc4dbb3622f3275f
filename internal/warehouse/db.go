// Package warehouse loads the enriched table into DuckDB and runs the analytics
// reports over it.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	duckdb "github.com/duckdb/duckdb-go/v2"

	"actpipe/internal/model"
)

// Table names.
const (
	ActivityTable = "user_activity"
	ModelTable    = "product_schema"
)

// ErrTableNotFound is returned when the reporting model table does not exist.
var ErrTableNotFound = errors.New("table not found")

var (
	activityIndexes = []string{"user_id", "login_time", "account_updated", "is_active"}
	modelIndexes    = []string{"user_id", "login_time", "product_name"}
)

var columnTypes = map[string]string{
	"login_time":               "TIMESTAMP",
	"logout_time":              "TIMESTAMP",
	"account_created":          "TIMESTAMP",
	"account_updated":          "TIMESTAMP",
	"account_deleted":          "TIMESTAMP",
	"session_duration_minutes": "DOUBLE",
	"price":                    "DOUBLE",
	"customer_lifetime_value":  "DOUBLE",
	"user_age_days":            "BIGINT",
}

// DB is a DuckDB database with a shared connector, so the Appender and the
// database/sql handle see the same catalog.
type DB struct {
	connector *duckdb.Connector
	db        *sql.DB
}

// Open opens a DuckDB database file. An empty path opens an in-memory database.
func Open(path string) (*DB, error) {
	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("duckdb connector: %w", err)
	}
	return &DB{connector: connector, db: sql.OpenDB(connector)}, nil
}

func (d *DB) Close() error {
	err := d.db.Close()
	if cerr := d.connector.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// SQL exposes the database/sql handle.
func (d *DB) SQL() *sql.DB { return d.db }

// CreateTableSQL is the DDL of the persisted enriched table.
func CreateTableSQL(table string) string {
	cols := make([]string, 0, len(model.EnrichedColumns))
	for _, c := range model.EnrichedColumns {
		typ, ok := columnTypes[c]
		if !ok {
			typ = "VARCHAR"
		}
		cols = append(cols, c+" "+typ)
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", table, strings.Join(cols, ", "))
}

// Load replaces table with records using the Appender API.
func (d *DB) Load(ctx context.Context, table string, records []model.EnrichedRecord) error {
	if _, err := d.db.ExecContext(ctx, CreateTableSQL(table)); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	conn, err := d.connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("duckdb connect: %w", err)
	}
	defer conn.Close()
	duckConn, ok := conn.(*duckdb.Conn)
	if !ok {
		return fmt.Errorf("duckdb connect: unexpected connection type %T", conn)
	}
	app, err := duckdb.NewAppenderFromConn(duckConn, "", table)
	if err != nil {
		return fmt.Errorf("appender %s: %w", table, err)
	}
	for i, r := range records {
		if err := app.AppendRow(r.Row()...); err != nil {
			_ = app.Close()
			return fmt.Errorf("append row %d: %w", i, err)
		}
	}
	if err := app.Flush(); err != nil {
		_ = app.Close()
		return fmt.Errorf("flush %s: %w", table, err)
	}
	return app.Close()
}

// CreateIndexes creates one index per column, skipping existing ones.
func (d *DB) CreateIndexes(ctx context.Context, table string, columns []string) error {
	for _, c := range columns {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", table, c, table, c)
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("index %s.%s: %w", table, c, err)
		}
	}
	return nil
}

// TableExists reports whether a base table exists in the main schema.
func (d *DB) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		"SELECT count(*) FROM information_schema.tables WHERE table_schema = 'main' AND table_name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", table, err)
	}
	return n > 0, nil
}

// BuildModel derives the reporting model table from the activity table.
func (d *DB) BuildModel(ctx context.Context, source, target string) error {
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", target, source)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("build %s: %w", target, err)
	}
	return nil
}

// CopyParquet writes a table to a Parquet file.
func (d *DB) CopyParquet(ctx context.Context, table, path string) error {
	stmt := fmt.Sprintf("COPY %s TO '%s' (FORMAT PARQUET)", table, strings.ReplaceAll(path, "'", "''"))
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("copy %s to parquet: %w", table, err)
	}
	return nil
}
