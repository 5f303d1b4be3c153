package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pos-ledger/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	constraintProductCode = "products_code_key"
	constraintProductName = "products_active_name_key"
)

// Store is the Postgres ledger backend
type Store struct {
	queries
	db *sqlx.DB
}

var _ Backend = (*Store)(nil)

// queries runs statements against either the pool or an open transaction
type queries struct {
	ext sqlx.ExtContext
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{queries: queries{ext: db}, db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return models.StoreFailure(err)
	}
	return nil
}

// InTx runs fn inside a single database transaction
func (s *Store) InTx(ctx context.Context, fn TxFunc) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.StoreFailure(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(ctx, queries{ext: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return models.StoreFailure(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// notFoundOr maps sql.ErrNoRows to ErrNotFound and anything else to a store failure
func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return models.StoreFailure(err)
}

// uniqueViolation maps product unique constraints to their ledger errors
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return models.StoreFailure(err)
	}
	switch pqErr.Constraint {
	case constraintProductCode:
		return models.ErrDuplicateCode
	case constraintProductName:
		return models.ErrDuplicateName
	}
	return models.StoreFailure(err)
}

// likePattern escapes LIKE wildcards in user input
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}
