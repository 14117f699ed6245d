package migrate

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/AdolfoEscobar473/hospital/internal/rbac"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Manager, sqlmock.Sqlmock, fstest.MapFS, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	files := fstest.MapFS{
		"0002_b.up.sql":   {Data: []byte("alter table a add column name text;")},
		"0001_a.up.sql":   {Data: []byte("create table a (id int);\n-- second; table\ncreate table b (id int);")},
		"0001_a.down.sql": {Data: []byte("drop table b;\ndrop table a;")},
		"README.md":       {Data: []byte("ignored")},
	}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(db, files, nil, WithClock(func() time.Time { return now }))
	return m, mock, files, now
}

func expectTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	m, mock, _, now := newMock(t)
	expectTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("alter table a add column name text").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_b.up.sql", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := m.Up(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"0002_b.up.sql"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpRollsBackFailedFile(t *testing.T) {
	m, mock, _, _ := newMock(t)
	expectTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table b").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	applied, err := m.Up(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "0001_a.up.sql")
	require.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownRevertsLatest(t *testing.T) {
	m, mock, _, _ := newMock(t)
	expectTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("drop table a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("delete from schema_migrations where name").
		WithArgs("0001_a.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))

	name, err := m.Down(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0001_a.up.sql", name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownWithNothingApplied(t *testing.T) {
	m, mock, _, _ := newMock(t)
	expectTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err := m.Down(context.Background())
	require.ErrorIs(t, err, ErrNothingApplied)
}

func TestDownWithoutDownFile(t *testing.T) {
	m, mock, _, _ := newMock(t)
	expectTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql").AddRow("0002_b.up.sql"))

	_, err := m.Down(context.Background())
	require.ErrorContains(t, err, "missing down migration for 0002_b.up.sql")
}

func TestCollectSQLFiltersAndSorts(t *testing.T) {
	_, _, files, _ := newMock(t)
	got, err := collectSQL(files, ".up.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, got)

	got, err = collectSQL(nil, ".sql")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("insert into t values ('a;b');\n-- note; here\nselect 1;\n  ")
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "'a;b'")
	require.NotContains(t, stmts[1], "note")
	require.Contains(t, stmts[1], "select 1;")
}

func TestEmbeddedSchemaMatchesRepositories(t *testing.T) {
	up, err := fs.ReadFile(Migrations(), "0001_init.up.sql")
	require.NoError(t, err)
	schema := string(up)
	for _, table := range []string{"users", "user_roles", "refresh_sessions", "roles_config", "role_permissions", "role_policy_version", "audit_events", "module_records"} {
		require.Contains(t, schema, "create table if not exists "+table+" (")
	}
	require.Contains(t, schema, "constraint refresh_sessions_token_hash_key unique (token_hash)")
	for _, role := range rbac.Catalog {
		require.Contains(t, schema, "'"+role.Code+"'")
	}

	_, err = fs.Stat(Migrations(), "0001_init.down.sql")
	require.NoError(t, err)
}

func TestEmbeddedSeedsCoverEveryModuleAndRole(t *testing.T) {
	names, err := collectSQL(Seeds(), ".sql")
	require.NoError(t, err)
	require.Equal(t, []string{"0001_roles.sql", "0002_default_permissions.sql"}, names)

	body, err := fs.ReadFile(Seeds(), "0002_default_permissions.sql")
	require.NoError(t, err)
	seed := string(body)
	for _, module := range rbac.Modules {
		require.Contains(t, seed, "('"+module+"')")
	}
	for _, role := range rbac.Catalog {
		require.True(t, strings.Contains(seed, "('"+role.Code+"', "), "role %s missing", role.Code)
	}
}
