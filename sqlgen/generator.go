package sqlgen

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/aggrepo"
	"github.com/syssam/aggrepo/dialect"
	"github.com/syssam/aggrepo/schema"
)

// Operation names reported by UnsupportedShapeError.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpUpsert = "UPSERT"
)

// Generator renders the statements of one aggregate mapping in one dialect.
// It is immutable after construction and safe for concurrent use.
type Generator struct {
	agg     *schema.Aggregate
	dialect dialect.Dialect
	label   string // table name used in error messages
	table   string // table reference, schema-qualified when applicable

	keys       []*schema.Column
	identities []*schema.Column
	updatable  []*schema.Column // non-key, non-identity columns with a setter

	predicate string // key predicate with named placeholders
	getQuery  string
	getAll    string
	deleteQ   string
	insertGet string // GetQuery with identity keys read back from the database
}

// New returns a generator for agg in the named dialect. A blank name falls
// back to the dialect of the mapping's Defaults.
func New(agg *schema.Aggregate, dialectName string) (*Generator, error) {
	if strings.TrimSpace(dialectName) == "" && agg != nil {
		dialectName = agg.Dialect
	}
	d, err := dialect.Get(dialectName)
	if err != nil {
		table := ""
		if agg != nil {
			table = agg.Table
		}
		return nil, aggrepo.NewConfigurationError(table, "Dialect", err.Error())
	}
	return NewWithDialect(agg, d)
}

// NewWithDialect returns a generator for agg in dialect d. It validates the
// mapping and precomputes the statements that do not depend on an
// aggregate instance.
func NewWithDialect(agg *schema.Aggregate, d dialect.Dialect) (*Generator, error) {
	if agg == nil {
		return nil, aggrepo.NewConfigurationError("", "", "nil aggregate mapping")
	}
	if d == nil {
		return nil, aggrepo.NewConfigurationError(agg.Table, "Dialect", "nil dialect")
	}
	if strings.TrimSpace(agg.Table) == "" {
		var label string
		if agg.Type != nil {
			label = agg.Type.Name()
		}
		return nil, aggrepo.NewConfigurationError(label, "TableName", "entity name cannot be empty or whitespace")
	}
	if agg.Schema != "" && !d.SupportsSchema() {
		return nil, aggrepo.NewConfigurationError(agg.Table, "Schema", d.Name()+" doesn't support schema")
	}
	g := &Generator{
		agg:        agg,
		dialect:    d,
		label:      agg.Table,
		table:      dialect.TableRef(agg.Schema, agg.Table),
		keys:       agg.Keys(),
		identities: agg.Identities(),
	}
	if len(g.keys) == 0 {
		return nil, aggrepo.NewConfigurationError(agg.Table, "Key", "at least one key property is required")
	}
	for _, c := range agg.Columns {
		if !c.Key && !c.Identity && c.Updatable {
			g.updatable = append(g.updatable, c)
		}
	}
	projection := g.projection()
	g.predicate = g.keyPredicate(false)
	g.getQuery = "SELECT " + projection + " FROM " + g.table + " WHERE " + g.predicate + ";"
	g.getAll = "SELECT " + projection + " FROM " + g.table + ";"
	g.deleteQ = g.getQuery + "DELETE FROM " + g.table + " WHERE " + g.predicate + ";"
	g.insertGet = "SELECT " + projection + " FROM " + g.table + " WHERE " + g.keyPredicate(true) + ";"
	return g, nil
}

// Aggregate returns the mapping the generator was built for.
func (g *Generator) Aggregate() *schema.Aggregate { return g.agg }

// Dialect returns the dialect of the generated statements.
func (g *Generator) Dialect() dialect.Dialect { return g.dialect }

// Table returns the table reference used in generated statements.
func (g *Generator) Table() string { return g.table }

// GetQuery returns the statement reading one row by key.
func (g *Generator) GetQuery() string { return g.getQuery }

// GetAllQuery returns the statement reading every row.
func (g *Generator) GetAllQuery() string { return g.getAll }

// DeleteQuery returns the batch that reads the row by key and then deletes it.
func (g *Generator) DeleteQuery() string { return g.deleteQ }

// InsertQuery returns the INSERT batch for v, followed by a read of the
// inserted row. Identity columns and default-constrained columns still
// holding their default value are left to the database.
func (g *Generator) InsertQuery(v any) (string, error) {
	rv, err := g.value(v)
	if err != nil {
		return "", err
	}
	return g.insert(rv)
}

// UpdateQuery returns the UPDATE batch for v, followed by a read of the
// updated row.
func (g *Generator) UpdateQuery(v any) (string, error) {
	if _, err := g.value(v); err != nil {
		return "", err
	}
	return g.update()
}

// UpsertQuery returns the statement batch that creates or updates v.
//
// With identity columns, a v whose identity columns all hold their default
// value is inserted; otherwise it is updated. Without identity columns the
// dialect's native upsert is used, degrading to an insert when there is
// nothing to update.
func (g *Generator) UpsertQuery(v any) (string, error) {
	rv, err := g.value(v)
	if err != nil {
		return "", err
	}
	if len(g.identities) > 0 {
		if g.identityUnset(rv) {
			return g.insert(rv)
		}
		return g.update()
	}
	if len(g.updatable) == 0 {
		return g.insert(rv)
	}
	u := dialect.Upsert{
		Table:   g.table,
		Columns: names(g.insertColumns(rv)),
		Keys:    names(g.keys),
		Updates: names(g.updatable),
	}
	return g.dialect.Upsert(u) + ";" + g.getQuery, nil
}

// IdentityUnset reports whether every identity column of v holds its default
// value. It is false for mappings without identity.
func (g *Generator) IdentityUnset(v any) (bool, error) {
	rv, err := g.value(v)
	if err != nil {
		return false, err
	}
	return len(g.identities) > 0 && g.identityUnset(rv), nil
}

// Params returns one named argument per column of v, in declaration order.
// Columns reached through a nil value-object pointer are nil.
func (g *Generator) Params(v any) ([]sql.NamedArg, error) {
	rv, err := g.value(v)
	if err != nil {
		return nil, err
	}
	args := make([]sql.NamedArg, len(g.agg.Columns))
	for i, c := range g.agg.Columns {
		args[i] = sql.Named(c.Name, c.Arg(rv))
	}
	return args, nil
}

// KeyParams returns the named arguments of the key columns of v.
func (g *Generator) KeyParams(v any) ([]sql.NamedArg, error) {
	rv, err := g.value(v)
	if err != nil {
		return nil, err
	}
	args := make([]sql.NamedArg, len(g.keys))
	for i, c := range g.keys {
		args[i] = sql.Named(c.Name, c.Arg(rv))
	}
	return args, nil
}

func (g *Generator) insert(rv reflect.Value) (string, error) {
	if len(g.identities) > 1 {
		return "", aggrepo.NewUnsupportedShapeError(g.label, OpInsert, "multiple identity properties")
	}
	cols := g.insertColumns(rv)
	var stmt string
	if len(cols) == 0 {
		stmt = g.dialect.EmptyInsert(g.table)
	} else {
		stmt = dialect.Insert(g.table, names(cols))
	}
	return stmt + ";" + g.insertGet, nil
}

func (g *Generator) update() (string, error) {
	if len(g.updatable) == 0 {
		return "", aggrepo.NewUnsupportedShapeError(g.label, OpUpdate, "no updatable properties")
	}
	return "UPDATE " + g.table + " SET " + dialect.Assignments(names(g.updatable)) +
		" WHERE " + g.predicate + ";" + g.getQuery, nil
}

func (g *Generator) insertColumns(rv reflect.Value) []*schema.Column {
	cols := make([]*schema.Column, 0, len(g.agg.Columns))
	for _, c := range g.agg.Columns {
		if c.Identity || (c.Default && c.HasDefaultValue(rv)) {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func (g *Generator) identityUnset(rv reflect.Value) bool {
	for _, c := range g.identities {
		if !c.HasDefaultValue(rv) {
			return false
		}
	}
	return true
}

func (g *Generator) projection() string {
	var b strings.Builder
	for i, c := range g.agg.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(g.table)
		b.WriteByte('.')
		b.WriteString(c.Name)
	}
	return b.String()
}

// keyPredicate renders the key columns ANDed. With lastID, identity keys
// compare against the dialect's last-insert-id expression.
func (g *Generator) keyPredicate(lastID bool) string {
	var b strings.Builder
	for i, c := range g.keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(g.table)
		b.WriteByte('.')
		b.WriteString(c.Name)
		b.WriteString(" = ")
		if lastID && c.Identity {
			b.WriteString(g.dialect.LastInsertID())
		} else {
			b.WriteString(dialect.Param(c.Name))
		}
	}
	return b.String()
}

// value checks that v is the aggregate type or a non-nil pointer to it.
func (g *Generator) value(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem() == g.agg.Type {
		return rv, nil
	}
	if rv.IsValid() && rv.Type() == g.agg.Type {
		return rv, nil
	}
	return reflect.Value{}, aggrepo.NewInvariantError(g.agg.Type.Name(), "",
		fmt.Sprintf("expected %s or *%s, got %T", g.agg.Type, g.agg.Type, v))
}

func names(cols []*schema.Column) []string {
	ns := make([]string, len(cols))
	for i, c := range cols {
		ns[i] = c.Name
	}
	return ns
}
