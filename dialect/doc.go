// Package dialect describes the SQL dialects supported by aggrepo.
//
// A [Dialect] is a small strategy value composed into the query generator:
// it knows whether tables may carry a schema, how the last generated
// identity is read back, how a native upsert is spelled and how named
// parameters are bound by the database driver.
//
// # Supported Dialects
//
//   - MySQL: no schema support, LAST_INSERT_ID(), ON DUPLICATE KEY UPDATE
//   - Postgres: schemas, lastval(), ON CONFLICT (...) DO UPDATE SET
//   - SQLServer: schemas, SCOPE_IDENTITY(), MERGE INTO ... USING
//   - SQLite: no schema support, last_insert_rowid(), ON CONFLICT (...) DO UPDATE SET
//
// Each dialect is identified by a constant string:
//
//	dialect.MySQL     = "mysql"
//	dialect.Postgres  = "postgres"
//	dialect.SQLServer = "sqlserver"
//	dialect.SQLite    = "sqlite"
//
// and resolved with [Get]:
//
//	d, err := dialect.Get(dialect.Postgres)
//
// # Driver Interface
//
// The package also defines the Driver interface used by the execution layer
// (see dialect/sql):
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
package dialect
