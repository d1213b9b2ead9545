// Package mysql implements an engine storage backend using MySQL.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/micromdm/nanoscreen/engine/storage"
	"github.com/micromdm/nanoscreen/engine/storage/mysql/sqlc"
)

// Schema contains the MySQL schema for the engine storage.
//
//go:embed schema.sql
var Schema string

// MySQLStorage implements a storage.Storage using MySQL.
type MySQLStorage struct {
	db *sql.DB
	q  *sqlc.Queries
}

type config struct {
	driver   string
	dsn      string
	db       *sql.DB
	noSchema bool
}

// Option allows configuring a MySQLStorage.
type Option func(*config)

// WithDSN sets the storage MySQL data source name.
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithDriver sets a custom MySQL driver for the storage.
//
// Default driver is "mysql".
// Value is ignored if WithDB is used.
func WithDriver(driver string) Option {
	return func(c *config) {
		c.driver = driver
	}
}

// WithDB sets a custom MySQL *sql.DB to the storage.
//
// If set, driver passed via WithDriver is ignored.
func WithDB(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// WithoutSchema skips creating the state table on startup.
func WithoutSchema() Option {
	return func(c *config) {
		c.noSchema = true
	}
}

// New creates and returns a new MySQLStorage.
// The state table is created if it does not exist.
func New(opts ...Option) (*MySQLStorage, error) {
	cfg := &config{driver: "mysql"}
	for _, opt := range opts {
		opt(cfg)
	}
	var err error
	if cfg.db == nil {
		cfg.db, err = sql.Open(cfg.driver, cfg.dsn)
		if err != nil {
			return nil, err
		}
	}
	if err = cfg.db.Ping(); err != nil {
		return nil, err
	}
	if !cfg.noSchema {
		if _, err = cfg.db.Exec(Schema); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return &MySQLStorage{db: cfg.db, q: sqlc.New(cfg.db)}, nil
}

// RetrieveState returns the state record for id.
func (s *MySQLStorage) RetrieveState(ctx context.Context, id string) (*storage.State, error) {
	if id == "" {
		return nil, storage.ErrMissingID
	}
	doc, err := s.q.GetDocument(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrStateNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	state := new(storage.State)
	if err = json.Unmarshal([]byte(doc), state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, nil
}

// StoreState writes state for id.
func (s *MySQLStorage) StoreState(ctx context.Context, id string, state *storage.State) error {
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
	// JSON columns reject binary charset parameters; send text.
	err = s.q.UpsertDocument(ctx, sqlc.UpsertDocumentParams{
		ID:       id,
		Document: string(doc),
	})
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}
