// Package postgres stores extracted links as rows in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "extracted_links"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and destination table.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// CreateTable issues CREATE TABLE IF NOT EXISTS on construction.
	CreateTable bool
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Pool owns the connection pool shared by the writers of every run.
type Pool struct {
	pool  execCloser
	table string
}

// Open connects to Postgres using cfg.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("output.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	p, err := NewWithPool(ctx, pool, cfg.Table, cfg.CreateTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewWithPool wraps an existing pool (primarily for testing).
func NewWithPool(ctx context.Context, pool execCloser, table string, createTable bool) (*Pool, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	p := &Pool{pool: pool, table: table}
	if createTable {
		if err := p.ensureTable(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pool) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id     TEXT        NOT NULL,
	position   BIGINT      NOT NULL,
	url        TEXT        NOT NULL,
	emitted_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, position)
)`, p.table)
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", p.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (p *Pool) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

// Writer returns a Writer for runID. Closing it leaves the pool open.
func (p *Pool) Writer(runID string) (*Writer, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	return &Writer{
		pool:  p.pool,
		runID: runID,
		query: fmt.Sprintf(`INSERT INTO %s (run_id, position, url, emitted_at) VALUES ($1, $2, $3, $4)`, p.table),
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Writer inserts one row per link. Position is the zero-based yield index.
type Writer struct {
	pool     execCloser
	runID    string
	query    string
	position int64
	now      func() time.Time
}

// Write inserts link at the next position.
func (w *Writer) Write(ctx context.Context, link string) error {
	if _, err := w.pool.Exec(ctx, w.query, w.runID, w.position, link, w.now()); err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	w.position++
	return nil
}

// Close is a no-op; rows are committed as they are written.
func (w *Writer) Close(context.Context) error {
	return nil
}
