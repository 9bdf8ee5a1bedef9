// Package property caches the exported properties of aggregate and value
// object types together with their default values.
//
// A Cache is built once at startup and handed to schema builders; every type
// is inspected at most once per cache, no matter how many goroutines ask for
// it concurrently.
//
//	cache := property.NewCache()
//	props, err := cache.Properties(reflect.TypeFor[User]())
//	if err != nil {
//	    return err
//	}
//	id, _ := props.Lookup("ID")
//	id.HasDefaultValue(reflect.ValueOf(user)) // true while ID == 0
//
// Struct fields are configured with the "aggrepo" tag:
//
//	type User struct {
//	    ID        int
//	    CreatedAt time.Time `aggrepo:"readonly"` // excluded from UPDATE
//	    cache     string                         // unexported, ignored
//	    Scratch   string    `aggrepo:"-"`        // ignored
//	}
package property

import (
	"fmt"
	"reflect"
	"strings"
)

// TagName is the struct tag key read by the cache.
const TagName = "aggrepo"

// Descriptor describes one property of a struct type. Descriptors are created
// once per type and never mutated afterwards.
type Descriptor struct {
	// Name is the Go field name, unique within its owning type.
	Name string
	// Type is the field type.
	Type reflect.Type
	// Index is the field index within the owning struct.
	Index int
	// HasSetter is false for fields tagged readonly.
	HasSetter bool

	owner reflect.Type
	def   reflect.Value
	get   func(reflect.Value) reflect.Value
	set   func(reflect.Value, reflect.Value)
}

// Owner returns the struct type declaring the property.
func (d *Descriptor) Owner() reflect.Type { return d.owner }

// DefaultValue returns the cached default value of the property type.
func (d *Descriptor) DefaultValue() reflect.Value { return d.def }

// Value returns the property value of owner. owner must be a value or a
// non-nil pointer of the declaring struct type.
func (d *Descriptor) Value(owner reflect.Value) reflect.Value {
	return d.get(reflect.Indirect(owner))
}

// HasDefaultValue reports whether the property of owner still holds the
// default value of its type, using value equality.
func (d *Descriptor) HasDefaultValue(owner reflect.Value) bool {
	return IsDefault(d.Value(owner), d.def)
}

// SetValue assigns v to the property of owner. owner must be addressable
// (typically a pointer).
func (d *Descriptor) SetValue(owner, v reflect.Value) error {
	if !d.HasSetter {
		return fmt.Errorf("property: %s.%s has no setter", d.owner.Name(), d.Name)
	}
	owner = reflect.Indirect(owner)
	if !owner.CanAddr() {
		return fmt.Errorf("property: %s.%s: owner is not addressable", d.owner.Name(), d.Name)
	}
	if !v.Type().AssignableTo(d.Type) {
		if !v.Type().ConvertibleTo(d.Type) {
			return fmt.Errorf("property: %s.%s: cannot assign %s to %s", d.owner.Name(), d.Name, v.Type(), d.Type)
		}
		v = v.Convert(d.Type)
	}
	d.set(owner, v)
	return nil
}

// Load stores v, read back from the database, in the property of owner.
// Unlike SetValue it ignores HasSetter: readonly properties are still
// materialized. owner must be addressable and v assignable to the property.
func (d *Descriptor) Load(owner, v reflect.Value) {
	d.set(reflect.Indirect(owner), v)
}

// IsDefault reports whether v equals def. Comparable values are compared
// with ==, others (slices, maps, funcs) count as default when nil.
func IsDefault(v, def reflect.Value) bool {
	if v.Comparable() && def.Comparable() {
		return v.Equal(def)
	}
	return v.IsZero()
}

// Set is the ordered collection of properties of one struct type.
type Set struct {
	typ   reflect.Type
	list  []*Descriptor
	index map[string]*Descriptor
}

// Type returns the struct type the set was built for.
func (s *Set) Type() reflect.Type { return s.typ }

// All returns the properties in declaration order.
func (s *Set) All() []*Descriptor { return s.list }

// Len returns the number of properties.
func (s *Set) Len() int { return len(s.list) }

// Lookup returns the property with the given name.
func (s *Set) Lookup(name string) (*Descriptor, bool) {
	d, ok := s.index[name]
	return d, ok
}

// build inspects the exported fields of t.
func (c *Cache) build(t reflect.Type) (*Set, error) {
	s := &Set{
		typ:   t,
		list:  make([]*Descriptor, 0, t.NumField()),
		index: make(map[string]*Descriptor, t.NumField()),
	}
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		opts, skip := parseTag(f.Tag.Get(TagName))
		if skip {
			continue
		}
		d := &Descriptor{
			Name:      f.Name,
			Type:      f.Type,
			Index:     i,
			HasSetter: !opts["readonly"],
			owner:     t,
			def:       c.DefaultValue(f.Type),
			get:       func(owner reflect.Value) reflect.Value { return owner.Field(i) },
			set:       func(owner, v reflect.Value) { owner.Field(i).Set(v) },
		}
		s.list = append(s.list, d)
		s.index[d.Name] = d
	}
	return s, nil
}

// parseTag returns the options of an aggrepo tag and whether the field is skipped.
func parseTag(tag string) (map[string]bool, bool) {
	if tag == "-" {
		return nil, true
	}
	opts := make(map[string]bool)
	for _, o := range strings.Split(tag, ",") {
		if o = strings.TrimSpace(o); o != "" {
			opts[o] = true
		}
	}
	return opts, false
}
