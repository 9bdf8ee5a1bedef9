// Package sql executes generated statements on database/sql connections.
//
// It provides the Driver implementation of dialect.Driver, placeholder
// binding for the named @parameters produced by sqlgen, batch execution,
// query statistics and classification of constraint violations.
//
// # Opening a Driver
//
// Importing this package registers the "mysql", "postgres" and "sqlite"
// database/sql drivers:
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db?_pragma=foreign_keys(1)",
//	    sql.WithLogger(logger),
//	)
//
// # Binding
//
// Generated statements name their parameters after the flattened columns.
// [Bind] rewrites them into the bind form of the dialect:
//
//	MySQL, SQLite   WHERE Users.Id = ?     args repeated per occurrence
//	Postgres        WHERE Users.Id = $1    one argument per distinct name
//	SQL Server      WHERE Users.Id = @Id   sql.Named arguments
//
// # Batches
//
// Write statements are generated as batches such as
//
//	INSERT INTO Users (Name) VALUES (@Name);SELECT Users.Id, Users.Name FROM Users WHERE Users.Id = LAST_INSERT_ID();
//
// [Batch] splits them and runs every statement in one transaction, handing
// the rows of each SELECT to a scan function. SQL Server receives the batch
// in a single call, since SCOPE_IDENTITY() is scoped to it.
//
// # Statistics
//
// [StatsDriver] counts statements, slow statements and batches. Batches run
// under a context labeled with [WithOperation] are also counted per label:
//
//	drv, stats, err := sql.OpenWithStats(dialect.Postgres, dsn, sql.WithSlowQueryLog(logger))
//	...
//	stats.Stats().Operations["insert"]
//
// # Constraint Errors
//
// [IsUniqueConstraintError], [IsForeignKeyConstraintError] and
// [IsCheckConstraintError] recognize the error types of lib/pq,
// go-sql-driver/mysql and modernc.org/sqlite, with a message fallback for
// other drivers.
package sql
