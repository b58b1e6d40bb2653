package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is the Postgres-backed Store
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new database store
func NewPostgresStore(databaseURL string, maxOpenConns int) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// View runs fn outside a transaction; each statement autocommits
func (s *PostgresStore) View(ctx context.Context, fn func(q Querier) error) error {
	return fn(queries{ext: s.db, readOnly: true})
}

// RunInTx runs fn inside one database transaction
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(q Querier) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(queries{ext: tx}); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", classifyError(err))
	}
	return nil
}

// queries implements Querier for both *sqlx.DB and *sqlx.Tx
type queries struct {
	ext      sqlx.ExtContext
	readOnly bool
}

func (q queries) writable() error {
	if q.readOnly {
		return ErrReadOnly
	}
	return nil
}

// Postgres error codes that mean "another writer won"
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
)

// classifyError maps driver errors onto the package sentinels
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Detail)
		}
	}
	return err
}
