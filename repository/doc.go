// Package repository executes the statements of a [sqlgen.Generator] against
// a database and maps the resulting rows back onto aggregates.
//
// Every operation runs as one transaction: the write statement and the read
// of the affected row share a connection, so last-insert-id expressions see
// the row just created.
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db")
//	if err != nil {
//	    return err
//	}
//	agg, err := schema.Table[Account](cache).Name("Accounts").Key("ID").Identity("ID").Build()
//	if err != nil {
//	    return err
//	}
//	accounts, err := repository.New[Account](drv, agg)
//	if err != nil {
//	    return err
//	}
//	acc, err := accounts.Insert(ctx, &Account{Username: "ada"})
//	// acc.ID holds the value assigned by the database.
//
// Rows are matched to columns by name, ignoring case. A NULL column leaves its
// property at the default value, and value objects whose columns are all NULL
// stay nil.
//
// Driver failures are classified: constraint violations become
// [aggrepo.ConstraintError], failed reads [aggrepo.QueryError] and failed
// writes [aggrepo.MutationError]. A missing row is reported as
// [aggrepo.NotFoundError].
package repository
