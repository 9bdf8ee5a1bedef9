package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/syssam/aggrepo"
	"github.com/syssam/aggrepo/dialect"
	sqldialect "github.com/syssam/aggrepo/dialect/sql"
	"github.com/syssam/aggrepo/schema"
	"github.com/syssam/aggrepo/sqlgen"
)

// Operation names reported by QueryError and MutationError.
const (
	OpGet    = "get"
	OpGetAll = "get all"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpUpsert = "upsert"
)

// Option configures a Table.
type Option func(*options)

type options struct {
	log *slog.Logger
}

// WithLogger sets the logger receiving one debug record per operation.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// Table persists aggregates of type T in one table. It is safe for
// concurrent use.
type Table[T any] struct {
	drv     dialect.Driver
	agg     *schema.Aggregate
	gen     *sqlgen.Generator
	log     *slog.Logger
	columns map[string]*schema.Column // lower-cased column name
}

// New returns the repository of the aggregate mapping agg, generating
// statements in the dialect of drv.
func New[T any](drv dialect.Driver, agg *schema.Aggregate, opts ...Option) (*Table[T], error) {
	if drv == nil {
		return nil, aggrepo.NewConfigurationError("", "Driver", "nil driver")
	}
	if agg != nil && agg.Type != reflect.TypeFor[T]() {
		return nil, aggrepo.NewConfigurationError(agg.Table, "Type",
			fmt.Sprintf("mapping of %s used for %s", agg.Type, reflect.TypeFor[T]()))
	}
	gen, err := sqlgen.New(agg, drv.Dialect())
	if err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.New(slog.DiscardHandler)
	}
	r := &Table[T]{
		drv:     drv,
		agg:     agg,
		gen:     gen,
		log:     o.log.With("table", gen.Table()),
		columns: make(map[string]*schema.Column, len(agg.Columns)),
	}
	for _, c := range agg.Columns {
		r.columns[strings.ToLower(c.Name)] = c
	}
	return r, nil
}

// Generator returns the statement generator of the table.
func (r *Table[T]) Generator() *sqlgen.Generator { return r.gen }

// Get returns the aggregate with the given key. id is either an aggregate
// carrying the key values or the value of the single key property.
func (r *Table[T]) Get(ctx context.Context, id any) (*T, error) {
	args, err := r.keyArgs(id)
	if err != nil {
		return nil, err
	}
	rows, err := r.run(ctx, OpGet, r.gen.GetQuery(), args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, aggrepo.NewNotFoundError(r.agg.Table, id)
	}
	return rows[0], nil
}

// GetAll returns every aggregate of the table.
func (r *Table[T]) GetAll(ctx context.Context) ([]*T, error) {
	return r.run(ctx, OpGetAll, r.gen.GetAllQuery(), nil)
}

// Insert creates v and returns the stored aggregate, including values
// assigned by the database. Identity properties of v must be unset.
func (r *Table[T]) Insert(ctx context.Context, v *T) (*T, error) {
	if v == nil {
		return nil, aggrepo.NewInvariantError(r.agg.Type.Name(), "", "nil aggregate")
	}
	if set := r.assignedIdentities(v); len(set) > 0 {
		return nil, aggrepo.NewInvariantError(r.agg.Type.Name(), strings.Join(set, ", "),
			"identity properties must not be set on insert")
	}
	query, err := r.gen.InsertQuery(v)
	if err != nil {
		return nil, err
	}
	return r.write(ctx, OpInsert, query, v)
}

// Update stores v and returns the updated aggregate.
func (r *Table[T]) Update(ctx context.Context, v *T) (*T, error) {
	if v == nil {
		return nil, aggrepo.NewInvariantError(r.agg.Type.Name(), "", "nil aggregate")
	}
	query, err := r.gen.UpdateQuery(v)
	if err != nil {
		return nil, err
	}
	return r.write(ctx, OpUpdate, query, v)
}

// Upsert creates or updates v and returns the stored aggregate.
func (r *Table[T]) Upsert(ctx context.Context, v *T) (*T, error) {
	if v == nil {
		return nil, aggrepo.NewInvariantError(r.agg.Type.Name(), "", "nil aggregate")
	}
	query, err := r.gen.UpsertQuery(v)
	if err != nil {
		return nil, err
	}
	return r.write(ctx, OpUpsert, query, v)
}

// Delete removes the aggregate with the given key and returns it as it was
// before deletion.
func (r *Table[T]) Delete(ctx context.Context, id any) (*T, error) {
	args, err := r.keyArgs(id)
	if err != nil {
		return nil, err
	}
	rows, err := r.run(ctx, OpDelete, r.gen.DeleteQuery(), args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, aggrepo.NewNotFoundError(r.agg.Table, id)
	}
	return rows[0], nil
}

func (r *Table[T]) write(ctx context.Context, op, query string, v *T) (*T, error) {
	args, err := r.gen.Params(v)
	if err != nil {
		return nil, err
	}
	rows, err := r.run(ctx, op, query, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		keys, _ := r.gen.KeyParams(v)
		return nil, aggrepo.NewNotFoundError(r.agg.Table, keyValue(keys))
	}
	return rows[0], nil
}

// run executes a statement batch and collects the rows of its SELECT.
func (r *Table[T]) run(ctx context.Context, op, query string, args []sql.NamedArg) ([]*T, error) {
	ctx = sqldialect.WithOperation(ctx, op)
	r.log.DebugContext(ctx, "aggrepo: "+op, "args", len(args))
	var out []*T
	err := sqldialect.Batch(ctx, r.drv, query, args, func(rows sqldialect.ColumnScanner) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		for rows.Next() {
			v, err := r.scan(rows, cols)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, r.wrap(op, err)
	}
	return out, nil
}

// scan reads the current row into a new aggregate. Columns are matched by
// name, ignoring case; NULL leaves the property at its default and does not
// allocate value objects.
func (r *Table[T]) scan(rows sqldialect.ColumnScanner, names []string) (*T, error) {
	dest := make([]any, len(names))
	cols := make([]*schema.Column, len(names))
	for i, n := range names {
		c, ok := r.columns[strings.ToLower(n)]
		if !ok {
			dest[i] = new(any)
			continue
		}
		cols[i] = c
		dest[i] = reflect.New(reflect.PointerTo(c.Leaf().Type)).Interface()
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	v := new(T)
	rv := reflect.ValueOf(v)
	for i, c := range cols {
		if c == nil {
			continue
		}
		p := reflect.ValueOf(dest[i]).Elem()
		if p.IsNil() {
			continue
		}
		c.Set(rv, p.Elem())
	}
	return v, nil
}

// keyArgs returns the key arguments of id.
func (r *Table[T]) keyArgs(id any) ([]sql.NamedArg, error) {
	switch v := id.(type) {
	case T:
		return r.gen.KeyParams(v)
	case *T:
		if v != nil {
			return r.gen.KeyParams(v)
		}
	}
	props := r.agg.KeyProperties()
	if len(props) != 1 {
		return nil, aggrepo.NewInvariantError(r.agg.Type.Name(), "",
			fmt.Sprintf("composite key requires a %s as id, got %T", r.agg.Type, id))
	}
	p := props[0]
	iv := reflect.ValueOf(id)
	switch {
	case !iv.IsValid():
		return nil, aggrepo.NewInvariantError(r.agg.Type.Name(), p.Name, "nil id")
	case iv.Type().AssignableTo(p.Type):
	case isNumber(iv.Kind()) && isNumber(p.Type.Kind()):
		iv = iv.Convert(p.Type)
	default:
		return nil, aggrepo.NewInvariantError(r.agg.Type.Name(), p.Name,
			fmt.Sprintf("id of type %T is not assignable to %s", id, p.Type))
	}
	agg := reflect.New(r.agg.Type)
	p.Load(agg, iv)
	return r.gen.KeyParams(agg.Interface())
}

// assignedIdentities returns the identity columns of v holding a value.
func (r *Table[T]) assignedIdentities(v *T) []string {
	var set []string
	rv := reflect.ValueOf(v)
	for _, c := range r.agg.Identities() {
		if !c.HasDefaultValue(rv) {
			set = append(set, c.PropertyPath())
		}
	}
	return set
}

// wrap classifies a driver error.
func (r *Table[T]) wrap(op string, err error) error {
	if sqldialect.IsConstraintError(err) {
		return aggrepo.NewConstraintError(err.Error(), err)
	}
	if op == OpGet || op == OpGetAll {
		return aggrepo.NewQueryError(r.agg.Table, op, err)
	}
	return aggrepo.NewMutationError(r.agg.Table, op, err)
}

func keyValue(args []sql.NamedArg) any {
	if len(args) == 1 {
		return args[0].Value
	}
	m := make(map[string]any, len(args))
	for _, a := range args {
		m[a.Name] = a.Value
	}
	return m
}

func isNumber(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}
