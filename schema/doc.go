// Package schema describes how an aggregate type maps onto a table.
//
// A mapping is declared once at startup with the fluent [Builder] and turned
// into an immutable [Aggregate]: the ordered list of columns the aggregate
// flattens into, with the key, identity and default-constraint roles of each.
//
// # Quick Start
//
//	type Credentials struct {
//	    Username string
//	    Password string
//	}
//
//	type Account struct {
//	    ID          Credentials
//	    Age         int
//	    DateCreated time.Time `aggrepo:"readonly"`
//	}
//
//	agg, err := schema.Table[Account](cache).
//	    Name("Accounts").
//	    Key("ID").
//	    Default("DateCreated").
//	    Build()
//
// The aggregate above maps to the columns ID_Username, ID_Password, Age and
// DateCreated, where both ID columns form the composite key.
//
// # Value Objects
//
// A property whose type is a struct, or a pointer to one, is a value object:
// it has no column of its own and its properties are flattened recursively,
// with column names joined by underscores. time.Time and types implementing
// driver.Valuer or sql.Scanner are scalars. Roles declared on a value-object
// property apply to every leaf below it.
//
// Value objects must not reference their own type, directly or through other
// value objects; Build reports such cycles as an [aggrepo.InvariantError].
//
// # Defaults
//
// [Defaults] carries application-wide settings (schema, dialect, table name
// inference) and can be loaded from YAML with [LoadDefaults].
package schema
