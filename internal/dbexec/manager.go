// Package dbexec abstracts query execution over a database handle or an
// open transaction, so callers can tell whether they are running inside a
// caller-supplied transaction before issuing DDL.
package dbexec

import (
	"context"
	"database/sql"

	"github.com/smoogly/entity-builder/builderr"
)

// Manager executes SQL against either a pooled handle or a transaction.
type Manager interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	// InTransaction reports whether this manager is bound to an open
	// transaction. Stored-function creation is suppressed inside
	// caller-supplied transactions.
	InTransaction() bool
	// BeginTx opens a transaction-bound manager. Calling it on a manager
	// that is already transactional is a bug in the caller.
	BeginTx(ctx context.Context, opts *sql.TxOptions) (TxManager, error)
}

// TxManager is a Manager bound to one transaction.
type TxManager interface {
	Manager
	Commit() error
	Rollback() error
}

// DB wraps a pooled database handle.
type DB struct {
	db *sql.DB
}

// NewDB creates a manager over a pooled handle.
func NewDB(db *sql.DB) *DB {
	return &DB{db: db}
}

func (m *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if m.db == nil {
		return nil, sql.ErrConnDone
	}
	return m.db.QueryContext(ctx, query, args...)
}

func (m *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if m.db == nil {
		return nil, sql.ErrConnDone
	}
	return m.db.ExecContext(ctx, query, args...)
}

func (m *DB) InTransaction() bool { return false }

func (m *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (TxManager, error) {
	if m.db == nil {
		return nil, sql.ErrConnDone
	}
	tx, err := m.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, builderr.Database(err, "begin transaction")
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps an open transaction.
type Tx struct {
	tx *sql.Tx
}

// NewTx creates a manager over a caller-supplied transaction.
func NewTx(tx *sql.Tx) *Tx {
	return &Tx{tx: tx}
}

func (m *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if m.tx == nil {
		return nil, sql.ErrTxDone
	}
	return m.tx.QueryContext(ctx, query, args...)
}

func (m *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if m.tx == nil {
		return nil, sql.ErrTxDone
	}
	return m.tx.ExecContext(ctx, query, args...)
}

func (m *Tx) InTransaction() bool { return true }

func (m *Tx) BeginTx(ctx context.Context, opts *sql.TxOptions) (TxManager, error) {
	return nil, builderr.Implementation("nested transactions are not supported")
}

func (m *Tx) Commit() error {
	if m.tx == nil {
		return sql.ErrTxDone
	}
	return m.tx.Commit()
}

func (m *Tx) Rollback() error {
	if m.tx == nil {
		return sql.ErrTxDone
	}
	return m.tx.Rollback()
}
