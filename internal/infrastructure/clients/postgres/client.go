package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/clinicqueue/pkg/config"
	"github.com/zatekoja/clinicqueue/pkg/retry"
)

// Client owns the queue database pool
type Client struct {
	db *sql.DB
}

// NewClient opens the pool and waits for PostgreSQL with exponential backoff.
// Room-locked transactions hold a connection for their whole callback, so the
// pool size bounds how many rooms can be mutated at once.
func NewClient(cfg *config.DatabaseConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	err = retry.DoWithLog(context.Background(), retry.DefaultConfig(), "PostgreSQL",
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return db.PingContext(ctx)
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", nextDelay).Str("host", cfg.Host).
				Msg("PostgreSQL not reachable yet")
		},
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("Connected to PostgreSQL")
	return NewClientFromDB(db), nil
}

// NewClientFromDB wraps an already opened connection, e.g. a sqlmock handle
func NewClientFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// DB returns the underlying pool
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the pool
func (c *Client) Close() error {
	return c.db.Close()
}

// InTx runs fn in a transaction that commits only when fn returns nil.
// fn's error is returned unchanged; begin and commit failures are wrapped
// in *TxError.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &TxError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &TxError{Op: "commit", Err: err}
	}
	return nil
}

// TxError reports a failure of the transaction itself rather than of the work inside it
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("failed to %s transaction: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}
