// Package pgsql implements an engine storage backend using PostgreSQL.
package pgsql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/micromdm/nanoscreen/engine/storage"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PgSQLStorage implements a storage.Storage using PostgreSQL.
type PgSQLStorage struct {
	db *sql.DB
}

type config struct {
	driver       string
	dsn          string
	db           *sql.DB
	noMigrate    bool
	pingTimeout  time.Duration
	maxOpenConns int
}

// Option allows configuring a PgSQLStorage.
type Option func(*config)

// WithDSN sets the storage PostgreSQL connection URL.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDB sets a custom *sql.DB to the storage.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// WithoutMigrations skips applying the embedded schema migrations.
func WithoutMigrations() Option {
	return func(c *config) {
		c.noMigrate = true
	}
}

// WithMaxOpenConns limits the connection pool size.
func WithMaxOpenConns(n int) Option {
	return func(c *config) {
		c.maxOpenConns = n
	}
}

// RunMigrations applies embedded SQL migrations via goose.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// New creates and returns a new PgSQLStorage.
// Schema migrations are applied unless disabled.
func New(ctx context.Context, opts ...Option) (*PgSQLStorage, error) {
	cfg := &config{driver: "pgx", pingTimeout: 5 * time.Second, maxOpenConns: 10}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		if cfg.dsn == "" {
			return nil, errors.New("empty database url")
		}
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		cfg.db.SetMaxOpenConns(cfg.maxOpenConns)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.pingTimeout)
	defer cancel()
	if err = cfg.db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if !cfg.noMigrate {
		if err = RunMigrations(ctx, cfg.db); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return &PgSQLStorage{db: cfg.db}, nil
}

// RetrieveState returns the state record for id.
func (s *PgSQLStorage) RetrieveState(ctx context.Context, id string) (*storage.State, error) {
	if id == "" {
		return nil, storage.ErrMissingID
	}
	var doc []byte
	err := s.db.QueryRowContext(
		ctx,
		`SELECT document FROM workflow_state WHERE id = $1`,
		id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrStateNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	state := new(storage.State)
	if err = json.Unmarshal(doc, state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, nil
}

// StoreState writes state for id.
func (s *PgSQLStorage) StoreState(ctx context.Context, id string, state *storage.State) error {
	if id == "" {
		return storage.ErrMissingID
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("validating state: %w", err)
	}
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`
INSERT INTO workflow_state (id, document)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE
SET document = EXCLUDED.document, updated_at = now()`,
		id,
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}
