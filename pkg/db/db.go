package db

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps the process-wide control-database connection pool. Every job
// acquires one unit of work from it at pipeline start and holds that
// connection for the pipeline's whole lifetime.
type Pool struct {
	*pgxpool.Pool
}

func New(ctx context.Context, dsn string) Pool {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalln("error creating pool ", err)
	}
	return Pool{pool}
}
