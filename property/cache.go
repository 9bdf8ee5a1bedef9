package property

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Cache memoizes property sets and default values per type. The zero value
// is not usable; create caches with NewCache.
type Cache struct {
	sets     sync.Map // reflect.Type -> *entry
	defaults sync.Map // reflect.Type -> reflect.Value
}

// entry guards the single computation of one type's property set.
type entry struct {
	once sync.Once
	set  *Set
	err  error
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Properties returns the property set of t, building it on first use.
// Pointer types are dereferenced; any other non-struct type is an error.
func (c *Cache) Properties(t reflect.Type) (*Set, error) {
	if t == nil {
		return nil, errors.New("property: nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("property: %s is not a struct type", t)
	}
	v, ok := c.sets.Load(t)
	if !ok {
		v, _ = c.sets.LoadOrStore(t, &entry{})
	}
	e := v.(*entry)
	e.once.Do(func() {
		e.set, e.err = c.build(t)
	})
	return e.set, e.err
}

// DefaultValue returns the default value of t: the zero value for value
// types and nil for pointers, slices, maps, channels, funcs and interfaces.
func (c *Cache) DefaultValue(t reflect.Type) reflect.Value {
	if v, ok := c.defaults.Load(t); ok {
		return v.(reflect.Value)
	}
	v, _ := c.defaults.LoadOrStore(t, reflect.Zero(t))
	return v.(reflect.Value)
}

// Warm builds the property sets of the given types concurrently. It is
// meant for startup, before any builder runs.
func (c *Cache) Warm(ctx context.Context, types ...reflect.Type) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range types {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := c.Properties(t)
			return err
		})
	}
	return g.Wait()
}

// Of returns the property set of T.
func Of[T any](c *Cache) (*Set, error) {
	return c.Properties(reflect.TypeFor[T]())
}
