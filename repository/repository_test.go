package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/aggrepo"
	"github.com/syssam/aggrepo/dialect"
	sqldialect "github.com/syssam/aggrepo/dialect/sql"
	"github.com/syssam/aggrepo/property"
	"github.com/syssam/aggrepo/repository"
	"github.com/syssam/aggrepo/schema"
)

type address struct {
	City   string
	Street string
}

type account struct {
	ID       int
	Username string
	Address  *address
}

type credentials struct {
	Password string
	Username string
}

type membership struct {
	Credentials credentials
	Age         int
}

var cache = property.NewCache()

const (
	selectAccount = "SELECT Accounts.ID, Accounts.Username, Accounts.Address_City, Accounts.Address_Street FROM Accounts"
	byID          = selectAccount + " WHERE Accounts.ID = ?"
)

var accountColumns = []string{"ID", "Username", "Address_City", "Address_Street"}

func accounts(t testing.TB) *schema.Aggregate {
	t.Helper()
	agg, err := schema.Table[account](cache).Name("Accounts").Key("ID").Identity("ID").Build()
	require.NoError(t, err)
	return agg
}

func memberships(t testing.TB) *schema.Aggregate {
	t.Helper()
	agg, err := schema.Table[membership](cache).Name("Memberships").Key("Credentials").Build()
	require.NoError(t, err)
	return agg
}

func newAccounts(t *testing.T) (*repository.Table[account], sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo, err := repository.New[account](sqldialect.OpenDB(dialect.MySQL, db), accounts(t))
	require.NoError(t, err)
	return repo, mock
}

func TestNew(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t.Run("nil_driver", func(t *testing.T) {
		_, err := repository.New[account](nil, accounts(t))
		require.Error(t, err)
		assert.True(t, aggrepo.IsConfigurationError(err))
	})
	t.Run("type_mismatch", func(t *testing.T) {
		_, err := repository.New[membership](sqldialect.OpenDB(dialect.MySQL, db), accounts(t))
		require.Error(t, err)
		assert.True(t, aggrepo.IsConfigurationError(err))
		assert.Contains(t, err.Error(), "repository_test.account")
	})
	t.Run("unknown_dialect", func(t *testing.T) {
		_, err := repository.New[account](sqldialect.OpenDB("oracle", db), accounts(t))
		require.Error(t, err)
		assert.True(t, aggrepo.IsConfigurationError(err))
	})
	t.Run("generator", func(t *testing.T) {
		repo, err := repository.New[account](sqldialect.OpenDB(dialect.SQLite, db), accounts(t))
		require.NoError(t, err)
		assert.Equal(t, dialect.SQLite, repo.Generator().Dialect().Name())
		assert.Equal(t, "Accounts", repo.Generator().Table())
	})
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byID).WithArgs(1).
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(1, "ada", "Oslo", "Main St"))
		mock.ExpectCommit()

		got, err := repo.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, &account{ID: 1, Username: "ada", Address: &address{City: "Oslo", Street: "Main St"}}, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null_value_object", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byID).WithArgs(2).
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(2, "bob", nil, nil))
		mock.ExpectCommit()

		got, err := repo.Get(ctx, int64(2))
		require.NoError(t, err)
		assert.Equal(t, &account{ID: 2, Username: "bob"}, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("by_aggregate", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byID).WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"id", "username", "unknown"}).AddRow(3, "cy", "x"))
		mock.ExpectCommit()

		got, err := repo.Get(ctx, &account{ID: 3})
		require.NoError(t, err)
		assert.Equal(t, &account{ID: 3, Username: "cy"}, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not_found", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byID).WithArgs(9).WillReturnRows(sqlmock.NewRows(accountColumns))
		mock.ExpectCommit()

		_, err := repo.Get(ctx, 9)
		require.Error(t, err)
		assert.True(t, aggrepo.IsNotFound(err))
		var nf *aggrepo.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, 9, nf.ID())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_error", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byID).WithArgs(1).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := repo.Get(ctx, 1)
		require.Error(t, err)
		var qe *aggrepo.QueryError
		require.ErrorAs(t, err, &qe)
		assert.Contains(t, err.Error(), "connection reset")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_id", func(t *testing.T) {
		repo, _ := newAccounts(t)
		for _, id := range []any{"1", nil, (*account)(nil)} {
			_, err := repo.Get(ctx, id)
			require.Error(t, err)
			assert.True(t, aggrepo.IsInvariantError(err), "%T", id)
		}
	})
}

func TestGetAll(t *testing.T) {
	repo, mock := newAccounts(t)
	mock.ExpectBegin()
	mock.ExpectQuery(selectAccount).
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(1, "ada", "Oslo", "Main St").
			AddRow(2, "bob", nil, nil))
	mock.ExpectCommit()

	got, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Oslo", got[0].Address.City)
	assert.Nil(t, got[1].Address)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("identity", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO Accounts (Username, Address_City, Address_Street) VALUES (?, ?, ?)").
			WithArgs("ada", "Oslo", "Main St").
			WillReturnResult(sqlmock.NewResult(7, 1))
		mock.ExpectQuery(selectAccount + " WHERE Accounts.ID = LAST_INSERT_ID()").
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(7, "ada", "Oslo", "Main St"))
		mock.ExpectCommit()

		got, err := repo.Insert(ctx, &account{Username: "ada", Address: &address{City: "Oslo", Street: "Main St"}})
		require.NoError(t, err)
		assert.Equal(t, 7, got.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("sqlserver", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		defer db.Close()
		repo, err := repository.New[account](sqldialect.OpenDB(dialect.SQLServer, db), accounts(t))
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO Accounts (Username, Address_City, Address_Street) VALUES (@Username, @Address_City, @Address_Street);" +
			selectAccount + " WHERE Accounts.ID = SCOPE_IDENTITY();").
			WithArgs(sql.Named("Username", "ada"), sql.Named("Address_City", nil), sql.Named("Address_Street", nil)).
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(11, "ada", nil, nil))
		mock.ExpectCommit()

		got, err := repo.Insert(ctx, &account{Username: "ada"})
		require.NoError(t, err)
		assert.Equal(t, &account{ID: 11, Username: "ada"}, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("identity_set", func(t *testing.T) {
		repo, _ := newAccounts(t)
		_, err := repo.Insert(ctx, &account{ID: 4, Username: "ada"})
		require.Error(t, err)
		assert.True(t, aggrepo.IsInvariantError(err))
		assert.Contains(t, err.Error(), "ID")
	})

	t.Run("nil", func(t *testing.T) {
		repo, _ := newAccounts(t)
		_, err := repo.Insert(ctx, nil)
		assert.True(t, aggrepo.IsInvariantError(err))
	})

	t.Run("duplicate", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO Accounts (Username, Address_City, Address_Street) VALUES (?, ?, ?)").
			WithArgs("ada", nil, nil).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ada'"})
		mock.ExpectRollback()

		_, err := repo.Insert(ctx, &account{Username: "ada"})
		require.Error(t, err)
		assert.True(t, aggrepo.IsConstraintError(err))
		var me *mysql.MySQLError
		assert.ErrorAs(t, err, &me)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mutation_error", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO Accounts (Username, Address_City, Address_Street) VALUES (?, ?, ?)").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		_, err := repo.Insert(ctx, &account{Username: "ada"})
		require.Error(t, err)
		assert.True(t, aggrepo.IsMutationError(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("updated", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE Accounts SET Username = ?, Address_City = ?, Address_Street = ? WHERE Accounts.ID = ?").
			WithArgs("ada", "Bergen", "Dock 1", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(byID).WithArgs(1).
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(1, "ada", "Bergen", "Dock 1"))
		mock.ExpectCommit()

		got, err := repo.Update(ctx, &account{ID: 1, Username: "ada", Address: &address{City: "Bergen", Street: "Dock 1"}})
		require.NoError(t, err)
		assert.Equal(t, "Bergen", got.Address.City)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing_row", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE Accounts SET Username = ?, Address_City = ?, Address_Street = ? WHERE Accounts.ID = ?").
			WithArgs("ada", nil, nil, 5).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(byID).WithArgs(5).WillReturnRows(sqlmock.NewRows(accountColumns))
		mock.ExpectCommit()

		_, err := repo.Update(ctx, &account{ID: 5, Username: "ada"})
		require.Error(t, err)
		var nf *aggrepo.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, 5, nf.ID())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byID).WithArgs(1).
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(1, "ada", nil, nil))
		mock.ExpectExec("DELETE FROM Accounts WHERE Accounts.ID = ?").WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, err := repo.Delete(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, &account{ID: 1, Username: "ada"}, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not_found", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectQuery(byID).WithArgs(2).WillReturnRows(sqlmock.NewRows(accountColumns))
		mock.ExpectExec("DELETE FROM Accounts WHERE Accounts.ID = ?").WithArgs(2).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		_, err := repo.Delete(ctx, 2)
		assert.True(t, aggrepo.IsNotFound(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("identity_unset_inserts", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO Accounts (Username, Address_City, Address_Street) VALUES (?, ?, ?)").
			WithArgs("ada", nil, nil).
			WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectQuery(selectAccount + " WHERE Accounts.ID = LAST_INSERT_ID()").
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(3, "ada", nil, nil))
		mock.ExpectCommit()

		got, err := repo.Upsert(ctx, &account{Username: "ada"})
		require.NoError(t, err)
		assert.Equal(t, 3, got.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("identity_set_updates", func(t *testing.T) {
		repo, mock := newAccounts(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE Accounts SET Username = ?, Address_City = ?, Address_Street = ? WHERE Accounts.ID = ?").
			WithArgs("ada", nil, nil, 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(byID).WithArgs(3).
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(3, "ada", nil, nil))
		mock.ExpectCommit()

		_, err := repo.Upsert(ctx, &account{ID: 3, Username: "ada"})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("native", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		defer db.Close()
		repo, err := repository.New[membership](sqldialect.OpenDB(dialect.Postgres, db), memberships(t))
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO Memberships (Credentials_Password, Credentials_Username, Age) VALUES ($1, $2, $3) " +
			"ON CONFLICT (Credentials_Password, Credentials_Username) DO UPDATE SET Age = $3").
			WithArgs("secret", "ada", 36).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT Memberships.Credentials_Password, Memberships.Credentials_Username, Memberships.Age " +
			"FROM Memberships WHERE Memberships.Credentials_Password = $1 AND Memberships.Credentials_Username = $2").
			WithArgs("secret", "ada").
			WillReturnRows(sqlmock.NewRows([]string{"credentials_password", "credentials_username", "age"}).AddRow("secret", "ada", 36))
		mock.ExpectCommit()

		v := &membership{Credentials: credentials{Password: "secret", Username: "ada"}, Age: 36}
		got, err := repo.Upsert(ctx, v)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		require.NoError(t, mock.ExpectationsWereMet())

		_, err = repo.Get(ctx, 36)
		require.Error(t, err)
		assert.True(t, aggrepo.IsInvariantError(err))
	})
}
