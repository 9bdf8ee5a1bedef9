// Package aggrepo maps aggregates, including nested value objects and
// composite keys, onto relational tables and generates the SQL text for
// get, get-all, insert, update, delete and upsert from a static mapping.
//
// # Packages
//
//   - [property]: per-type cache of struct properties and their default values
//   - [schema]: the table mapping of an aggregate, flattened into columns
//   - [dialect]: MySQL, PostgreSQL, SQL Server and SQLite syntax differences
//   - [sqlgen]: the query generator
//   - [dialect/sql]: placeholder binding and batch execution over database/sql
//   - [repository]: a table repository built on the pieces above
//
// # Quick Start
//
//	type Address struct {
//	    City   string
//	    Street string
//	}
//
//	type User struct {
//	    ID      int
//	    Name    string
//	    Address Address
//	}
//
//	cache := property.NewCache()
//	agg, err := schema.Table[User](cache).
//	    Name("Users").
//	    Key("ID").
//	    Identity("ID").
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	gen, err := sqlgen.New(agg, dialect.MySQL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	gen.GetQuery()
//	// SELECT Users.ID, Users.Name, Users.Address_City, Users.Address_Street FROM Users WHERE Users.ID = @ID;
//
// # Errors
//
// Mapping and generation errors are permanent: [ConfigurationError] for
// invalid mappings, [UnsupportedShapeError] for statements that cannot be
// produced, and [InvariantError] for programmer errors in mapped types.
package aggrepo
