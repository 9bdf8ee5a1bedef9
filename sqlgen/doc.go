// Package sqlgen renders the SQL statements of an aggregate mapping.
//
// A [Generator] is constructed once per aggregate mapping and dialect. The
// constructor validates the mapping (table name, schema support, key) and
// precomputes the statements that depend only on configuration; the
// remaining statements are pure functions of an aggregate instance.
//
//	gen, err := sqlgen.New(agg, dialect.MySQL)
//	if err != nil {
//	    return err
//	}
//	gen.GetQuery()
//	// SELECT Users.Id, Users.Username FROM Users WHERE Users.Id = @Id;
//	gen.InsertQuery(&User{Username: "ada"})
//	// INSERT INTO Users (Username) VALUES (@Username);SELECT Users.Id, Users.Username FROM Users WHERE Users.Id = LAST_INSERT_ID();
//
// Statements use named placeholders (@Column) matching the flattened column
// names; [Generator.Params] returns the arguments of an instance in the same
// naming. Write statements are batches ending with a read of the affected
// row so the caller can refresh the aggregate in one round trip.
package sqlgen
