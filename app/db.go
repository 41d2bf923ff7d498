package app

import (
	"context"
	nativeerrors "errors"
	"fmt"
	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lefinal/minigame-host/embedded"
	"github.com/lefinal/minigame-host/errors"
	"go.uber.org/zap"
)

// pgErrUndefinedTable is the PostgreSQL error code for missing relations.
const pgErrUndefinedTable = "42P01"

// dbVersion is used for determining the current database version. This is
// saved in a special table when properly set up. If the version does not exist,
// one can know that the database needs to be initialized. If it is and the
// latest version is greater, migrations can be performed.
type dbVersion string

// dbVersionZero is used when no database version could be found, and therefore
// we conclude that it has not been initialized yet.
const dbVersionZero dbVersion = "0"

// dbMigration is used for performing and checking database migrations. They lie
// in dbMigrations which is an ordered list of versions with their migrations.
type dbMigration struct {
	version dbVersion
	up      string
}

// dbMigrations are the sql migrations in an ordered (!) list. The order is used
// to determine which migrations need to be done when the current database
// version is not the latest one.
var dbMigrations = []dbMigration{
	{
		version: "1.0",
		up:      embedded.DBMigration1x0,
	},
	{
		version: "1.1",
		up:      embedded.DBMigration1x1,
	},
}

// connectDB connects to the database with the given connection string,
// performs migrations and returns the connection pool.
func connectDB(ctx context.Context, logger *zap.Logger, connectionStr string, maxDBConnections int) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connectionStr)
	if err != nil {
		return nil, errors.Error{
			Code:    errors.ErrFatal,
			Kind:    errors.KindDB,
			Err:     err,
			Message: "parse connection string",
		}
	}
	poolConfig.MaxConns = int32(maxDBConnections)
	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Error{
			Code:    errors.ErrFatal,
			Kind:    errors.KindDB,
			Err:     err,
			Message: "connect to database",
		}
	}
	// Perform test query.
	err = testDBConnection(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "test db connection", nil)
	}
	// Perform db migrations.
	err = performDBMigrations(ctx, logger, pool)
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "perform db migrations", nil)
	}
	return pool, nil
}

// testDBConnection tests the database connection by simply querying 1.
func testDBConnection(ctx context.Context, db *pgxpool.Pool) error {
	// Build test query.
	q, _, err := goqu.Select(goqu.V(1)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, nil)
	}
	// Query database.
	var got int
	err = db.QueryRow(ctx, q).Scan(&got)
	if err != nil {
		return errors.NewScanDBRowError(err, "test query failed", q)
	}
	// Assure that we got 1.
	if got != 1 {
		return errors.Error{
			Code:    errors.ErrFatal,
			Kind:    errors.KindDB,
			Message: fmt.Sprintf("test db connection: expected 1 as result but got %d", got),
			Details: errors.Details{"got": got},
		}
	}
	return nil
}

// performDBMigrations performs all needed database migrations according to the
// (un)set database version. Migrations and the version update are performed in
// a single transaction.
func performDBMigrations(ctx context.Context, logger *zap.Logger, db *pgxpool.Pool) error {
	currentVersion, err := retrieveCurrentDBVersion(ctx, db)
	if err != nil {
		return errors.Wrap(err, "retrieve current db version", nil)
	}
	logger.Info(fmt.Sprintf("current database version: %v", currentVersion))
	migrationsToDo, err := getDBMigrationsToDo(currentVersion)
	if err != nil {
		return errors.Wrap(err, "get db migrations to do", nil)
	}
	// Check if migrations need to be performed.
	if len(migrationsToDo) == 0 {
		return nil
	}
	// Begin tx for avoiding database destruction if something fails.
	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.NewDBTxBeginError(err)
	}
	defer rollbackTx(ctx, logger, tx)
	// Perform migrations.
	var newVersion dbVersion
	for i, migration := range migrationsToDo {
		logger.Info(fmt.Sprintf("performing database migration %d/%d...", i+1, len(migrationsToDo)))
		_, err = tx.Exec(ctx, migration.up)
		if err != nil {
			return errors.NewExecQueryError(err, fmt.Sprintf("migrate to %v", migration.version), migration.up)
		}
		newVersion = migration.version
	}
	// Update database version.
	var updateDBVersionQuery string
	if currentVersion == dbVersionZero {
		updateDBVersionQuery, _, err = goqu.Dialect("postgres").Insert(goqu.T("minigame")).Rows(goqu.Record{
			"key":   "db-version",
			"value": newVersion,
		}).ToSQL()
	} else {
		updateDBVersionQuery, _, err = goqu.Dialect("postgres").Update(goqu.T("minigame")).
			Set(goqu.Record{"value": newVersion}).
			Where(goqu.C("key").Eq("db-version")).ToSQL()
	}
	if err != nil {
		return errors.NewQueryToSQLError(err, errors.Details{"version": newVersion})
	}
	_, err = tx.Exec(ctx, updateDBVersionQuery)
	if err != nil {
		return errors.NewExecQueryError(err, "update database version", updateDBVersionQuery)
	}
	// Commit tx.
	err = tx.Commit(ctx)
	if err != nil {
		return errors.NewDBTxCommitError(err)
	}
	logger.Info(fmt.Sprintf("migrated database to version %v", newVersion))
	return nil
}

// getDBMigrationsToDo retrieves all database migrations that need to be
// performed. If the version is dbVersionZero, it will return all migrations. If
// the version is unknown, an error will be returned.
func getDBMigrationsToDo(currentVersion dbVersion) ([]dbMigration, error) {
	// Check if empty version.
	if currentVersion == dbVersionZero {
		return dbMigrations, nil
	}
	found := false
	migrationsToDo := make([]dbMigration, 0)
	for _, migration := range dbMigrations {
		if migration.version == currentVersion {
			if found {
				return nil, errors.Error{
					Code:    errors.ErrInternal,
					Kind:    errors.KindShouldNotHappen,
					Message: fmt.Sprintf("duplicate database version %v in available migrations", currentVersion),
					Details: errors.Details{"version": currentVersion},
				}
			}
			found = true
			// Everything up to this version is already performed.
			continue
		}
		if found {
			migrationsToDo = append(migrationsToDo, migration)
		}
	}
	if !found {
		return nil, errors.NewResourceNotFoundError(fmt.Sprintf("no database version found matching %v", currentVersion),
			errors.Details{"version": currentVersion})
	}
	return migrationsToDo, nil
}

// retrieveCurrentDBVersion retrieves the current dbVersion from the given
// database. If no version could be found, dbVersionZero will be returned.
func retrieveCurrentDBVersion(ctx context.Context, db *pgxpool.Pool) (dbVersion, error) {
	// Build query.
	q, _, err := goqu.Dialect("postgres").From(goqu.T("minigame")).
		Select(goqu.C("value")).
		Where(goqu.C("key").Eq("db-version")).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	// Exec query and scan value.
	var value string
	err = db.QueryRow(ctx, q).Scan(&value)
	if err != nil {
		if isNotInitialized(err) {
			return dbVersionZero, nil
		}
		return "", errors.NewScanDBRowError(err, "scan db version", q)
	}
	return dbVersion(value), nil
}

// isNotInitialized checks whether the error from retrieving the database
// version means that the database has not been set up yet.
func isNotInitialized(err error) bool {
	if nativeerrors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return nativeerrors.As(err, &pgErr) && pgErr.Code == pgErrUndefinedTable
}

// rollbackTx rolls back the given pgx.Tx if it was not committed. Rolling back
// might fail which is logged.
func rollbackTx(ctx context.Context, logger *zap.Logger, tx pgx.Tx) {
	err := tx.Rollback(ctx)
	if err != nil && !nativeerrors.Is(err, pgx.ErrTxClosed) {
		errors.Log(logger, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindDBRollback,
			Message: "rollback tx",
			Err:     err,
		})
	}
}
