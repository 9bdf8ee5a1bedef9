package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/syssam/aggrepo/dialect"
)

// Driver is a dialect.Driver implementation for SQL based databases.
type Driver struct {
	Conn
	dialect string
}

// NewDriver creates a new Driver with the given Conn and dialect.
func NewDriver(dialect string, c Conn) *Driver {
	return &Driver{dialect: dialect, Conn: c}
}

// Open wraps the database/sql.Open method and returns a Driver. The driver
// name must be registered by importing the database driver package.
func Open(driverName, source string, opts ...ConnOption) (*Driver, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(driverName, db, opts...), nil
}

// OpenDB wraps the given database/sql.DB with a Driver.
func OpenDB(dialect string, db *sql.DB, opts ...ConnOption) *Driver {
	return NewDriver(dialect, newConn(db, opts))
}

// DB returns the underlying *sql.DB instance.
func (d Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Dialect implements the dialect.Driver method. Driver names such as
// "sqlite3" or "pgx" are reported by the dialect they speak.
func (d Driver) Dialect() string {
	if dl, err := dialect.Get(d.dialect); err == nil {
		return dl.Name()
	}
	for _, name := range []string{dialect.MySQL, dialect.SQLite, dialect.Postgres, dialect.SQLServer} {
		if strings.HasPrefix(d.dialect, name) {
			return name
		}
	}
	return d.dialect
}

// Tx starts and returns a transaction.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	tx, err := d.DB().BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{
		Conn: Conn{ExecQuerier: tx, log: d.log},
		Tx:   tx,
	}, nil
}

// Close closes the underlying connection.
func (d *Driver) Close() error { return d.DB().Close() }

// Tx implements dialect.Tx interface.
type Tx struct {
	Conn
	driver.Tx
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithLogger logs every statement at debug level.
func WithLogger(l *slog.Logger) ConnOption {
	return func(c *Conn) {
		c.log = l
	}
}

// Conn implements dialect.ExecQuerier given ExecQuerier.
type Conn struct {
	ExecQuerier
	log *slog.Logger
}

func newConn(ex ExecQuerier, opts []ConnOption) Conn {
	c := Conn{ExecQuerier: ex}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Exec implements the dialect.Exec method.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	c.debug(ctx, "exec", query, argv)
	switch v := v.(type) {
	case nil:
		if _, err := c.ExecContext(ctx, query, argv...); err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
	case *sql.Result:
		res, err := c.ExecContext(ctx, query, argv...)
		if err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
		*v = res
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	return nil
}

// Query implements the dialect.Query method.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	c.debug(ctx, "query", query, argv)
	rows, err := c.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*vr = Rows{rows}
	return nil
}

func (c Conn) debug(ctx context.Context, op, query string, args []any) {
	if c.log == nil {
		return
	}
	attrs := []any{"query", query, "args", args}
	if name := Operation(ctx); name != "" {
		attrs = append(attrs, "operation", name)
	}
	c.log.DebugContext(ctx, "dialect/sql: "+op, attrs...)
}

type operationKey struct{}

// WithOperation labels the statements executed under ctx with the name of
// the operation issuing them, e.g. "insert". The label is logged with each
// statement and StatsDriver counts committed batches per label.
func WithOperation(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operationKey{}, name)
}

// Operation returns the operation label of ctx, or "" when unlabeled.
func Operation(ctx context.Context) string {
	name, _ := ctx.Value(operationKey{}).(string)
	return name
}

var _ dialect.Driver = (*Driver)(nil)

type (
	// Rows wraps the sql.Rows to avoid locks copy.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// NamedArg is an alias to sql.NamedArg.
	NamedArg = sql.NamedArg
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// ScanFunc consumes the rows of one SELECT statement of a batch.
type ScanFunc func(ColumnScanner) error

// Batch runs the statements of a generated batch in one transaction, so
// that reads of generated identities see the preceding INSERT. Named
// arguments are bound in the dialect of drv. SELECT statements are passed
// to scan; a nil scan discards their rows.
//
// Dialects binding named parameters (SQL Server) receive the batch in a
// single call: MERGE requires its terminator and SCOPE_IDENTITY() only sees
// inserts of the same call.
func Batch(ctx context.Context, drv dialect.Driver, batch string, args []NamedArg, scan ScanFunc) (rerr error) {
	d, err := dialect.Get(drv.Dialect())
	if err != nil {
		return fmt.Errorf("dialect/sql: batch: %w", err)
	}
	stmts := statements(d, batch)
	if len(stmts) == 0 {
		return errors.New("dialect/sql: batch: no statements")
	}
	tx, err := drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: batch: begin: %w", err)
	}
	defer func() {
		if rerr != nil {
			rerr = rollback(tx, rerr)
		}
	}()
	for _, stmt := range stmts {
		query, argv, err := Bind(d, stmt.query, args)
		if err != nil {
			return err
		}
		if !stmt.rows {
			if err := tx.Exec(ctx, query, argv, nil); err != nil {
				return err
			}
			continue
		}
		rows := &Rows{}
		if err := tx.Query(ctx, query, argv, rows); err != nil {
			return err
		}
		if scan != nil {
			err = scan(rows)
		}
		if err = errors.Join(err, rows.Err(), rows.Close()); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dialect/sql: batch: commit: %w", err)
	}
	return nil
}

// statement is one server call of a batch.
type statement struct {
	query string
	rows  bool // the call returns a result set
}

// statements splits batch into the calls sent to the server.
func statements(d dialect.Dialect, batch string) []statement {
	parts := Split(batch)
	if len(parts) == 0 {
		return nil
	}
	if d.BindStyle() == dialect.BindNamed {
		return []statement{{query: strings.TrimSpace(batch), rows: slices.ContainsFunc(parts, isSelect)}}
	}
	stmts := make([]statement, len(parts))
	for i, p := range parts {
		stmts[i] = statement{query: p, rows: isSelect(p)}
	}
	return stmts
}

// rollback calls tx.Rollback and wraps the given error with the rollback error if occurred.
func rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}

func isSelect(query string) bool {
	q := strings.TrimSpace(query)
	return len(q) >= 6 && strings.EqualFold(q[:6], "SELECT")
}
