package dialect

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
)

// Dialect names.
const (
	MySQL     = "mysql"
	Postgres  = "postgres"
	SQLServer = "sqlserver"
	SQLite    = "sqlite"
)

// ExecQuerier wraps the two query execution methods.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for executing
// the generated statements.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	driver.Tx
}

// BindStyle tells how the named @parameters of a generated statement are
// bound by the database driver.
type BindStyle int

const (
	// BindQuestion replaces every occurrence with ? and repeats arguments.
	BindQuestion BindStyle = iota
	// BindDollar numbers distinct names $1, $2, ... in order of appearance.
	BindDollar
	// BindNamed keeps @name and passes named arguments.
	BindNamed
)

// Upsert describes a native insert-or-update statement.
type Upsert struct {
	Table   string   // table reference, schema-qualified when applicable
	Columns []string // inserted columns
	Keys    []string // conflict target
	Updates []string // columns assigned when the row exists
}

// Dialect captures the statement syntax that differs between databases.
type Dialect interface {
	// Name returns the dialect name, e.g. "mysql".
	Name() string
	// SupportsSchema reports whether tables may be qualified by a schema.
	SupportsSchema() bool
	// LastInsertID returns the expression yielding the identity value
	// generated by the preceding INSERT on the same connection.
	LastInsertID() string
	// EmptyInsert returns an INSERT statement that supplies no column values.
	EmptyInsert(table string) string
	// Upsert renders a native upsert statement without trailing separator.
	Upsert(u Upsert) string
	// BindStyle returns how named parameters are bound.
	BindStyle() BindStyle
}

// Get returns the dialect registered under name. Common driver names such
// as "pgx", "sqlite3" and "mssql" are accepted as aliases.
func Get(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case MySQL:
		return mysql{}, nil
	case Postgres, "postgresql", "pgx":
		return postgres{}, nil
	case SQLServer, "mssql":
		return sqlserver{}, nil
	case SQLite, "sqlite3":
		return sqlite{}, nil
	default:
		return nil, fmt.Errorf("dialect: unsupported dialect %q", name)
	}
}

// MustGet is like Get but panics if the dialect is unknown.
func MustGet(name string) Dialect {
	d, err := Get(name)
	if err != nil {
		panic(err)
	}
	return d
}

type mysql struct{}

func (mysql) Name() string { return MySQL }
func (mysql) SupportsSchema() bool { return false }
func (mysql) LastInsertID() string { return "LAST_INSERT_ID()" }
func (mysql) BindStyle() BindStyle { return BindQuestion }
func (mysql) EmptyInsert(t string) string {
	return "INSERT INTO " + t + " () VALUES ()"
}

func (mysql) Upsert(u Upsert) string {
	return Insert(u.Table, u.Columns) + " ON DUPLICATE KEY UPDATE " + Assignments(u.Updates)
}

type postgres struct{}

func (postgres) Name() string { return Postgres }
func (postgres) SupportsSchema() bool { return true }
func (postgres) LastInsertID() string { return "lastval()" }
func (postgres) BindStyle() BindStyle { return BindDollar }
func (postgres) EmptyInsert(t string) string {
	return "INSERT INTO " + t + " DEFAULT VALUES"
}

func (postgres) Upsert(u Upsert) string {
	return onConflict(u)
}

type sqlite struct{}

func (sqlite) Name() string { return SQLite }
func (sqlite) SupportsSchema() bool { return false }
func (sqlite) LastInsertID() string { return "last_insert_rowid()" }
func (sqlite) BindStyle() BindStyle { return BindQuestion }
func (sqlite) EmptyInsert(t string) string {
	return "INSERT INTO " + t + " DEFAULT VALUES"
}

func (sqlite) Upsert(u Upsert) string {
	return onConflict(u)
}

type sqlserver struct{}

func (sqlserver) Name() string { return SQLServer }
func (sqlserver) SupportsSchema() bool { return true }
func (sqlserver) LastInsertID() string { return "SCOPE_IDENTITY()" }
func (sqlserver) BindStyle() BindStyle { return BindNamed }
func (sqlserver) EmptyInsert(t string) string {
	return "INSERT INTO " + t + " DEFAULT VALUES"
}

// Upsert renders a MERGE keyed on the key columns:
//
//	MERGE INTO T USING (SELECT @k AS k) AS source ON T.k = source.k
//	WHEN MATCHED THEN UPDATE SET a = @a
//	WHEN NOT MATCHED THEN INSERT (k, a) VALUES (@k, @a)
func (sqlserver) Upsert(u Upsert) string {
	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(u.Table)
	b.WriteString(" USING (SELECT ")
	for i, k := range u.Keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Param(k))
		b.WriteString(" AS ")
		b.WriteString(k)
	}
	b.WriteString(") AS source ON ")
	for i, k := range u.Keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(u.Table + "." + k + " = source." + k)
	}
	b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
	b.WriteString(Assignments(u.Updates))
	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(List(u.Columns))
	b.WriteString(") VALUES (")
	b.WriteString(Params(u.Columns))
	b.WriteString(")")
	return b.String()
}

func onConflict(u Upsert) string {
	return Insert(u.Table, u.Columns) + " ON CONFLICT (" + List(u.Keys) + ") DO UPDATE SET " + Assignments(u.Updates)
}

// TableRef returns the table reference used in generated statements:
// "schema.table", or the bare table name when schema is blank.
func TableRef(schema, table string) string {
	if strings.TrimSpace(schema) == "" {
		return table
	}
	return schema + "." + table
}

// Param returns the named placeholder of a column.
func Param(column string) string {
	return "@" + column
}

// List joins column names with ", ".
func List(columns []string) string {
	return strings.Join(columns, ", ")
}

// Params renders the placeholders of columns, e.g. "@a, @b".
func Params(columns []string) string {
	var b strings.Builder
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Param(c))
	}
	return b.String()
}

// Assignments renders "a = @a, b = @b".
func Assignments(columns []string) string {
	var b strings.Builder
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c)
		b.WriteString(" = ")
		b.WriteString(Param(c))
	}
	return b.String()
}

// Insert renders "INSERT INTO T (a, b) VALUES (@a, @b)".
func Insert(table string, columns []string) string {
	return "INSERT INTO " + table + " (" + List(columns) + ") VALUES (" + Params(columns) + ")"
}
