package schema

import (
	"reflect"

	"github.com/syssam/aggrepo/property"
)

// Aggregate is the resolved table mapping of one aggregate type. It is
// immutable once built and may be shared by any number of generators.
type Aggregate struct {
	// Type is the aggregate struct type.
	Type reflect.Type
	// Table is the table name.
	Table string
	// Schema is the optional database schema.
	Schema string
	// Dialect is the default dialect taken from Defaults; empty when none
	// was configured.
	Dialect string
	// Columns lists the flattened columns in declaration order.
	Columns []*Column

	byName     map[string]*Column
	keys       []*property.Descriptor
	identities []*property.Descriptor
}

// Column returns the column with the given qualified name.
func (a *Aggregate) Column(name string) (*Column, bool) {
	c, ok := a.byName[name]
	return c, ok
}

// Keys returns the key columns in declaration order.
func (a *Aggregate) Keys() []*Column {
	return a.filter(func(c *Column) bool { return c.Key })
}

// Identities returns the identity columns in declaration order.
func (a *Aggregate) Identities() []*Column {
	return a.filter(func(c *Column) bool { return c.Identity })
}

// KeyProperties returns the top-level properties declared as key.
func (a *Aggregate) KeyProperties() []*property.Descriptor {
	return a.keys
}

// IdentityProperties returns the top-level properties declared as identity.
func (a *Aggregate) IdentityProperties() []*property.Descriptor {
	return a.identities
}

// HasValueObjects reports whether any column comes from a nested value object.
func (a *Aggregate) HasValueObjects() bool {
	for _, c := range a.Columns {
		if len(c.Path) > 1 {
			return true
		}
	}
	return false
}

func (a *Aggregate) filter(fn func(*Column) bool) []*Column {
	var cs []*Column
	for _, c := range a.Columns {
		if fn(c) {
			cs = append(cs, c)
		}
	}
	return cs
}
