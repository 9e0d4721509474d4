// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"sphere/internal/models"
	"sphere/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// DefaultTimeout bounds a datastore call when the caller does not configure one.
const DefaultTimeout = 3 * time.Second

// PostgreSQL SQLSTATE codes inspected by classifyError.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// batchSize caps the number of ids bound into a single IN (...) clause.
const batchSize = 500

// base carries the connection and the per-call timeout shared by every repository.
type base struct {
	db      *gorm.DB
	timeout time.Duration
}

func newBase(db *gorm.DB, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return base{db: db, timeout: timeout}
}

// run executes fn against a handle whose context expires after the store
// timeout and classifies the resulting error. A failure observed after the
// deadline passed is reported as STORE_UNAVAILABLE whatever the driver said.
// op is "<table>.<operation>"; each call is traced as one span.
func (b base) run(ctx context.Context, op string, fn func(db *gorm.DB) error) (err error) {
	table, _, _ := strings.Cut(op, ".")
	ctx, span := observability.TraceRepositoryMethod(ctx, b.db.Dialector.Name(), op, table)
	defer func() { observability.EndSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err = fn(b.db.WithContext(ctx))
	return classifyError(op, withDeadline(ctx, err))
}

// runTx is run inside a single transaction. Any error rolls the whole unit back.
func (b base) runTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return b.run(ctx, op, func(db *gorm.DB) error {
		return db.Transaction(fn)
	})
}

func withDeadline(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("%w: %w", ctx.Err(), err)
}

// classifyError maps a driver or ORM error to the application taxonomy.
// AppErrors pass through unchanged so that domain errors raised inside a
// transaction keep their identity.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}

	if isUnavailable(err) {
		observability.StoreUnavailableTotal.WithLabelValues(op).Inc()
		return models.NewStoreUnavailableError(err)
	}
	if isUniqueViolation(err) {
		return &models.AppError{Code: models.CodeConflict, Message: "resource already exists", Err: err}
	}
	return models.NewInternalError(err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) || pgCode(err) == pgUniqueViolation {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) || pgCode(err) == pgForeignKeyViolation {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// uniqueColumn guesses which unique column a violation refers to from the constraint name.
func uniqueColumn(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return err.Error()
}

// chunk splits ids into slices of at most batchSize elements.
func chunk(ids []uint) [][]uint {
	var out [][]uint
	for len(ids) > batchSize {
		out = append(out, ids[:batchSize])
		ids = ids[batchSize:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
