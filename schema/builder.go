package schema

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-openapi/inflect"

	"github.com/syssam/aggrepo"
	"github.com/syssam/aggrepo/property"
)

var (
	timeType    = reflect.TypeFor[time.Time]()
	valuerType  = reflect.TypeFor[driver.Valuer]()
	scannerType = reflect.TypeFor[sql.Scanner]()
)

// Builder declares how the aggregate type T maps onto a table.
type Builder[T any] struct {
	cache      *property.Cache
	defaults   *Defaults
	name       string
	schema     string
	keys       []string
	identities []string
	defaulted  []string
	ignored    []string
}

// Table starts the mapping of T. A nil cache is replaced by a private one.
func Table[T any](cache *property.Cache) *Builder[T] {
	if cache == nil {
		cache = property.NewCache()
	}
	return &Builder[T]{cache: cache}
}

// Name sets the table name.
func (b *Builder[T]) Name(name string) *Builder[T] {
	b.name = name
	return b
}

// Schema sets the database schema.
func (b *Builder[T]) Schema(schema string) *Builder[T] {
	b.schema = schema
	return b
}

// Key declares the key properties, replacing earlier declarations. Several
// properties form a composite key; a value-object property contributes all of
// its leaves.
func (b *Builder[T]) Key(props ...string) *Builder[T] {
	b.keys = props
	return b
}

// Identity marks properties whose values are generated by the database.
func (b *Builder[T]) Identity(props ...string) *Builder[T] {
	b.identities = append(b.identities, props...)
	return b
}

// Default marks properties backed by a database default constraint.
func (b *Builder[T]) Default(props ...string) *Builder[T] {
	b.defaulted = append(b.defaulted, props...)
	return b
}

// Ignore excludes properties from the mapping. Paths into value objects are
// dotted, e.g. "Address.Geo".
func (b *Builder[T]) Ignore(paths ...string) *Builder[T] {
	b.ignored = append(b.ignored, paths...)
	return b
}

// Defaults applies application-wide defaults for settings left unset.
func (b *Builder[T]) Defaults(d *Defaults) *Builder[T] {
	b.defaults = d
	return b
}

// Build flattens T into columns. It performs no SQL generation and no table
// name checks; those belong to the generator.
func (b *Builder[T]) Build() (*Aggregate, error) {
	typ := reflect.TypeFor[T]()
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	name, schemaName := b.name, b.schema
	var dialectName string
	if d := b.defaults; d != nil {
		dialectName = d.Dialect
		if strings.TrimSpace(schemaName) == "" && d.Schema != "" {
			schemaName = d.Schema
		}
		if strings.TrimSpace(name) == "" && d.InferTableNames {
			name = inflect.Pluralize(typ.Name())
		}
	}
	label := name
	if strings.TrimSpace(label) == "" {
		label = typ.Name()
	}
	props, err := b.cache.Properties(typ)
	if err != nil {
		return nil, aggrepo.NewConfigurationError(label, "", err.Error())
	}
	roles := make(map[string]*role)
	lookup := func(names []string, set func(*role)) ([]*property.Descriptor, error) {
		ds := make([]*property.Descriptor, 0, len(names))
		for _, n := range names {
			d, ok := props.Lookup(n)
			if !ok {
				return nil, aggrepo.NewConfigurationError(label, n, "unknown property of "+typ.String())
			}
			r, ok := roles[n]
			if !ok {
				r = &role{}
				roles[n] = r
			}
			set(r)
			if !slices.Contains(ds, d) {
				ds = append(ds, d)
			}
		}
		return ds, nil
	}
	keys, err := lookup(b.keys, func(r *role) { r.key = true })
	if err != nil {
		return nil, err
	}
	identities, err := lookup(b.identities, func(r *role) { r.identity = true })
	if err != nil {
		return nil, err
	}
	if _, err := lookup(b.defaulted, func(r *role) { r.def = true }); err != nil {
		return nil, err
	}
	f := &flattener{
		cache:    b.cache,
		label:    label,
		roles:    roles,
		ignored:  make(map[string]bool, len(b.ignored)),
		visiting: map[reflect.Type]bool{typ: true},
		byName:   make(map[string]*Column),
	}
	for _, p := range b.ignored {
		f.ignored[p] = false
	}
	if err := f.walk(props, nil, "", "", nil); err != nil {
		return nil, err
	}
	for p, used := range f.ignored {
		if !used {
			return nil, aggrepo.NewConfigurationError(label, p, "ignored path does not name a property of "+typ.String())
		}
	}
	return &Aggregate{
		Type:       typ,
		Table:      name,
		Schema:     schemaName,
		Dialect:    dialectName,
		Columns:    f.columns,
		byName:     f.byName,
		keys:       keys,
		identities: identities,
	}, nil
}

// role holds the flags declared on a top-level property.
type role struct {
	key, identity, def bool
}

// flattener performs the depth-first traversal of value objects.
type flattener struct {
	cache    *property.Cache
	label    string
	roles    map[string]*role
	ignored  map[string]bool // path -> matched
	visiting map[reflect.Type]bool
	columns  []*Column
	byName   map[string]*Column
}

func (f *flattener) walk(set *property.Set, path []*property.Descriptor, prefix, dotted string, inherited *role) error {
	for _, d := range set.All() {
		p := dotted + d.Name
		if _, ok := f.ignored[p]; ok {
			f.ignored[p] = true
			continue
		}
		r := inherited
		if len(path) == 0 {
			r = f.roles[d.Name]
		}
		if r == nil {
			r = &role{}
		}
		full := append(slices.Clip(path), d)
		if vt, ok := valueObjectType(d.Type); ok {
			if f.visiting[vt] {
				return aggrepo.NewInvariantError(f.label, p, "value object cycle through "+vt.String())
			}
			sub, err := f.cache.Properties(vt)
			if err != nil {
				return aggrepo.NewInvariantError(f.label, p, err.Error())
			}
			f.visiting[vt] = true
			err = f.walk(sub, full, prefix+d.Name+"_", p+".", r)
			delete(f.visiting, vt)
			if err != nil {
				return err
			}
			continue
		}
		name := prefix + d.Name
		if _, ok := f.byName[name]; ok {
			return aggrepo.NewInvariantError(f.label, p, "duplicate column name "+name)
		}
		c := &Column{
			Name:      name,
			Path:      full,
			Key:       r.key,
			Identity:  r.identity,
			Default:   r.def,
			Updatable: true,
		}
		for _, pd := range full {
			c.Updatable = c.Updatable && pd.HasSetter
		}
		f.columns = append(f.columns, c)
		f.byName[name] = c
	}
	return nil
}

// valueObjectType reports whether t (or the struct t points to) flattens
// into columns. time.Time and types handled by database/sql are scalars.
func valueObjectType(t reflect.Type) (reflect.Type, bool) {
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct || base == timeType {
		return nil, false
	}
	if base.Implements(valuerType) || reflect.PointerTo(base).Implements(valuerType) ||
		reflect.PointerTo(base).Implements(scannerType) {
		return nil, false
	}
	return base, true
}
