package entitybuilder

import (
	"database/sql"

	"github.com/smoogly/entity-builder/internal/dbexec"
)

// Manager executes statements against a pooled handle or an open
// transaction. The builder never creates stored functions through a
// transaction the caller supplied.
type Manager = dbexec.Manager

// TxManager is a Manager bound to one transaction.
type TxManager = dbexec.TxManager

// NewManager wraps a pooled database handle.
func NewManager(db *sql.DB) Manager {
	return dbexec.NewDB(db)
}

// NewTxManager wraps a caller-supplied transaction.
func NewTxManager(tx *sql.Tx) TxManager {
	return dbexec.NewTx(tx)
}
