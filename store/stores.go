// Package store persists player statistics in PostgreSQL.
package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"go.uber.org/zap"
	"time"
)

// querier is the subset of pgxpool.Pool that is used by Mall.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Mall implements all database operations.
type Mall struct {
	logger *zap.Logger
	// db is the actual database to perform operations in.
	db querier
	// dialect is the SQL dialect for building queries.
	dialect goqu.DialectWrapper
	now     func() time.Time
}

// NewMall creates a new Mall using the given database, usually a
// pgxpool.Pool. It uses the PostgreSQL dialect for queries.
func NewMall(logger *zap.Logger, db querier) *Mall {
	return &Mall{
		logger:  logger,
		db:      db,
		dialect: goqu.Dialect("postgres"),
		now:     time.Now,
	}
}
