package interfaces

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// UoW is the unit-of-work contract shared across the application layer: a
// single control-database client, acquired once per job and held for the
// pipeline's whole lifetime.
type UoW interface {
	Begin() (pgx.Tx, error)
	GetTx() pgx.Tx
	Commit() error
	Rollback() error
	// Finalize rolls back if *err is non-nil and the transaction was never
	// committed, otherwise is a no-op. Callers defer it right after Begin.
	Finalize(err *error)
}

// Processor handles one job kind dispatched by the worker runtime.
type Processor interface {
	Process(ctx context.Context, payload []byte) error
}
