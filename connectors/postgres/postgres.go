// Package postgres provides the structured store connector. It executes
// generated SQL against the fleet database and exposes schema introspection
// for query generation context.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ttpunch/AgentProject/connectors/base"
)

const (
	defaultMaxOpenConns    = 15
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultQueryTimeout    = 60 * time.Second
)

// Config holds the connector settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// Connector wraps a pooled database handle. The pool is safe for concurrent
// use; callers never own individual connections.
type Connector struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// New opens the connection pool and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Connector, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres pool")
	}

	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = defaultConnMaxLifetime
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	slog.Info("connected to postgres", "max_open_conns", cfg.MaxOpenConns)
	return &Connector{db: db, queryTimeout: cfg.QueryTimeout}, nil
}

// NewWithDB wraps an existing handle. Used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Connector {
	return &Connector{db: db, queryTimeout: defaultQueryTimeout}
}

// Close releases the pool.
func (c *Connector) Close() error {
	return c.db.Close()
}

// DB exposes the underlying handle for health checks.
func (c *Connector) DB() *sql.DB {
	return c.db
}

// FetchQuery executes a read query and scans all rows into a table. The
// error message of a failed execution is returned verbatim so the repair
// prompt can quote the backend's complaint.
func (c *Connector) FetchQuery(ctx context.Context, query string) (*base.Table, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query provided to FetchQuery")
	}

	queryCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(queryCtx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	table := &base.Table{Columns: columns}
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

// normalizeValue converts driver types into JSON-friendly values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return v
	}
}

// IntrospectSchema reads the public schema from information_schema and
// formats it as generation context, one table block per line group.
func (c *Connector) IntrospectSchema(ctx context.Context) (string, error) {
	const query = `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position
	`

	queryCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := c.db.QueryContext(queryCtx, query)
	if err != nil {
		return "", base.NewConnectorError("postgres", "IntrospectSchema", "failed to introspect schema", err)
	}
	defer rows.Close()

	var b strings.Builder
	b.WriteString("Postgres Schema:")
	currentTable := ""
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return "", errors.Wrap(err, "failed to scan schema row")
		}
		if table != currentTable {
			currentTable = table
			fmt.Fprintf(&b, "\n\nTable: %s", table)
		}
		fmt.Fprintf(&b, "\n  - %s (%s)", column, dataType)
	}
	if err := rows.Err(); err != nil {
		return "", errors.Wrap(err, "failed to read schema rows")
	}
	return b.String(), nil
}
