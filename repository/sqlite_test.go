package repository_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/aggrepo"
	"github.com/syssam/aggrepo/dialect"
	sqldialect "github.com/syssam/aggrepo/dialect/sql"
	"github.com/syssam/aggrepo/repository"
)

func openSQLite(t *testing.T, ddl ...string) *sqldialect.Driver {
	t.Helper()
	drv, err := sqldialect.Open(dialect.SQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	// Every connection of an in-memory database is a new database.
	drv.DB().SetMaxOpenConns(1)
	for _, stmt := range ddl {
		_, err := drv.DB().ExecContext(context.Background(), stmt)
		require.NoError(t, err)
	}
	return drv
}

func TestSQLiteAccounts(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t, `CREATE TABLE Accounts (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		Username TEXT NOT NULL UNIQUE,
		Address_City TEXT,
		Address_Street TEXT
	)`)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	repo, err := repository.New[account](drv, accounts(t), repository.WithLogger(logger))
	require.NoError(t, err)

	ada, err := repo.Insert(ctx, &account{Username: "ada", Address: &address{City: "Oslo", Street: "Main St"}})
	require.NoError(t, err)
	assert.Equal(t, &account{ID: 1, Username: "ada", Address: &address{City: "Oslo", Street: "Main St"}}, ada)

	bob, err := repo.Insert(ctx, &account{Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 2, bob.ID)
	assert.Nil(t, bob.Address)

	_, err = repo.Insert(ctx, &account{Username: "ada"})
	require.Error(t, err)
	assert.True(t, aggrepo.IsConstraintError(err), err.Error())
	assert.True(t, sqldialect.IsUniqueConstraintError(err))

	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ada, got)

	ada.Address.City = "Bergen"
	updated, err := repo.Update(ctx, ada)
	require.NoError(t, err)
	assert.Equal(t, "Bergen", updated.Address.City)

	bob.Address = &address{City: "Paris"}
	upserted, err := repo.Upsert(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, &address{City: "Paris"}, upserted.Address)

	carol, err := repo.Upsert(ctx, &account{Username: "carol"})
	require.NoError(t, err)
	assert.Equal(t, 3, carol.ID)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"ada", "bob", "carol"}, []string{all[0].Username, all[1].Username, all[2].Username})

	deleted, err := repo.Delete(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, upserted, deleted)

	_, err = repo.Get(ctx, 2)
	assert.True(t, aggrepo.IsNotFound(err))
	_, err = repo.Update(ctx, &account{ID: 2, Username: "bob"})
	assert.True(t, aggrepo.IsNotFound(err))

	assert.Contains(t, buf.String(), "aggrepo: insert")
	assert.Contains(t, buf.String(), "table=Accounts")
}

func TestSQLiteMemberships(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t, `CREATE TABLE Memberships (
		Credentials_Password TEXT NOT NULL,
		Credentials_Username TEXT NOT NULL,
		Age INTEGER NOT NULL,
		PRIMARY KEY (Credentials_Password, Credentials_Username)
	)`)
	repo, err := repository.New[membership](drv, memberships(t))
	require.NoError(t, err)

	creds := credentials{Password: "secret", Username: "ada"}
	got, err := repo.Upsert(ctx, &membership{Credentials: creds, Age: 35})
	require.NoError(t, err)
	assert.Equal(t, 35, got.Age)

	got, err = repo.Upsert(ctx, &membership{Credentials: creds, Age: 36})
	require.NoError(t, err)
	assert.Equal(t, 36, got.Age)

	got, err = repo.Get(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, &membership{Credentials: creds, Age: 36}, got)

	got, err = repo.Get(ctx, membership{Credentials: creds})
	require.NoError(t, err)
	assert.Equal(t, 36, got.Age)

	_, err = repo.Insert(ctx, &membership{Credentials: creds, Age: 1})
	assert.True(t, aggrepo.IsConstraintError(err))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = repo.Delete(ctx, creds)
	require.NoError(t, err)
	_, err = repo.Get(ctx, creds)
	assert.True(t, aggrepo.IsNotFound(err))
}

func TestSQLiteStats(t *testing.T) {
	ctx := context.Background()
	drv, stats, err := sqldialect.OpenWithStats(dialect.SQLite, "file::memory:", sqldialect.WithSlowThreshold(time.Hour))
	require.NoError(t, err)
	defer drv.Close()
	drv.DB().SetMaxOpenConns(1)
	_, err = drv.DB().ExecContext(ctx, `CREATE TABLE Accounts (ID INTEGER PRIMARY KEY AUTOINCREMENT, Username TEXT, Address_City TEXT, Address_Street TEXT)`)
	require.NoError(t, err)

	repo, err := repository.New[account](drv, accounts(t))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, &account{Username: "ada"})
	require.NoError(t, err)
	_, err = repo.Get(ctx, 1)
	require.NoError(t, err)

	snap := stats.Stats()
	assert.EqualValues(t, 1, snap.TotalExecs)
	assert.EqualValues(t, 2, snap.TotalQueries)
	assert.Zero(t, snap.SlowQueries)
	assert.Zero(t, snap.Errors)
	assert.EqualValues(t, 2, snap.Batches)
	assert.Zero(t, snap.RolledBack)
	assert.Equal(t, map[string]int64{"insert": 1, "get": 1}, snap.Operations)

	_, err = repo.Insert(ctx, &account{Username: "ada", Address: &address{City: "Oslo"}})
	require.NoError(t, err)
	_, err = repo.Delete(ctx, 2)
	require.NoError(t, err)
	_, err = repo.Get(ctx, 2)
	require.True(t, aggrepo.IsNotFound(err))
	snap = stats.Stats()
	assert.Equal(t, map[string]int64{"insert": 2, "get": 2, "delete": 1}, snap.Operations)
}
