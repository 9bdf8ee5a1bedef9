package schema

import (
	"reflect"
	"strings"

	"github.com/syssam/aggrepo/property"
)

// Column is a leaf scalar of an aggregate mapped onto exactly one SQL column.
type Column struct {
	// Name is the qualified column name: the property path from the aggregate
	// root joined by underscores, e.g. Address_City.
	Name string
	// Path lists the properties from the root to the leaf.
	Path []*property.Descriptor

	Key       bool // part of the (possibly composite) key
	Identity  bool // assigned by the database on insert
	Default   bool // the database supplies a value when omitted
	Updatable bool // every property on the path has a setter
}

// Leaf returns the descriptor of the scalar property.
func (c *Column) Leaf() *property.Descriptor {
	return c.Path[len(c.Path)-1]
}

// PropertyPath returns the dotted Go path of the column, e.g. Address.City.
func (c *Column) PropertyPath() string {
	names := make([]string, len(c.Path))
	for i, d := range c.Path {
		names[i] = d.Name
	}
	return strings.Join(names, ".")
}

// Value returns the column value held by agg. The second result is false
// when a nil value-object pointer was crossed on the way to the leaf.
func (c *Column) Value(agg reflect.Value) (reflect.Value, bool) {
	v := reflect.Indirect(agg)
	last := len(c.Path) - 1
	for i, d := range c.Path {
		v = d.Value(v)
		if i < last && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
	}
	return v, true
}

// Arg returns the column value of agg as a query argument; nil when the
// value is unreachable.
func (c *Column) Arg(agg reflect.Value) any {
	v, ok := c.Value(agg)
	if !ok {
		return nil
	}
	return v.Interface()
}

// HasDefaultValue reports whether the column of agg still holds the default
// value of its type. An unreachable leaf counts as default.
func (c *Column) HasDefaultValue(agg reflect.Value) bool {
	v, ok := c.Value(agg)
	if !ok {
		return true
	}
	return property.IsDefault(v, c.Leaf().DefaultValue())
}

// Set stores v in the leaf property of agg through the property accessors,
// allocating nil value-object pointers on the way. agg must be a non-nil
// pointer and v assignable to the leaf type.
func (c *Column) Set(agg, v reflect.Value) {
	owner := agg.Elem()
	last := len(c.Path) - 1
	for _, d := range c.Path[:last] {
		f := d.Value(owner)
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				d.Load(owner, reflect.New(f.Type().Elem()))
				f = d.Value(owner)
			}
			f = f.Elem()
		}
		owner = f
	}
	c.Path[last].Load(owner, v)
}
