package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/turbobackend/worker/pkg/interfaces"
)

// UOW is a single control-database transaction, held for the whole lifetime
// of a pipeline run. It is not safe for concurrent use — callers acquire
// one per job.
type UOW struct {
	pool *Pool
	tx   pgx.Tx
}

var _ interfaces.UoW = (*UOW)(nil)

func (u *UOW) Begin() (pgx.Tx, error) {
	tx, err := u.pool.BeginTx(context.Background(), pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("can't begin tx, %v", err)
	}
	u.tx = tx
	return u.tx, nil
}

func (u *UOW) GetTx() pgx.Tx {
	return u.tx
}

func (u *UOW) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction is not started yet")
	}
	return u.tx.Commit(context.Background())
}

func (u *UOW) Rollback() error {
	if u.tx == nil {
		return fmt.Errorf("transaction is not started yet")
	}
	return u.tx.Rollback(context.Background())
}

// Finalize rolls back the transaction if err points at a non-nil error and
// the transaction has not already been committed. Callers defer it
// immediately after Begin:
//
//	uow := factory.GetUoW()
//	_, err := uow.Begin()
//	defer uow.Finalize(&err)
func (u *UOW) Finalize(err *error) {
	if u.tx == nil {
		return
	}
	if err != nil && *err != nil {
		_ = u.Rollback()
	}
}

type UOWFactory struct {
	Pool *Pool
}

func (f *UOWFactory) GetUoW() interfaces.UoW {
	return &UOW{pool: f.Pool}
}

func NewUoWFactory(pool Pool) *UOWFactory {
	return &UOWFactory{Pool: &pool}
}
