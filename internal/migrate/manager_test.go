package migrate

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var appliedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func expectEnsureTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	files := fstest.MapFS{
		"0002_b.up.sql":   {Data: []byte("create table b (id int);")},
		"0001_a.up.sql":   {Data: []byte("create table a (id int);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
	}

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table b (id int);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_b.up.sql", appliedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mgr := NewManager(db, files, WithClock(func() time.Time { return appliedAt }))
	applied, err := mgr.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0002_b.up.sql" {
		t.Fatalf("unexpected applied set %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	files := fstest.MapFS{
		"0001_a.up.sql":   {Data: []byte("create table a (id int);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
	}

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from schema_migrations where name").
		WithArgs("0001_a.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	last, err := NewManager(db, files).Down(context.Background())
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if last != "0001_a.up.sql" {
		t.Fatalf("unexpected rollback target %s", last)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	files := fstest.MapFS{"0001_a.up.sql": {Data: []byte("create table a (id int);")}}

	expectEnsureTables(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table a").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	if _, err := NewManager(db, files).Up(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	files, err := collectSQL(Migrations(), ".up.sql")
	if err != nil {
		t.Fatalf("collectSQL: %v", err)
	}
	if len(files) == 0 || files[0] != "0001_identity.up.sql" {
		t.Fatalf("unexpected embedded migrations %v", files)
	}
	for _, f := range files {
		down := strings.TrimSuffix(f, ".up.sql") + ".down.sql"
		if _, err := Migrations().Open(down); err != nil {
			t.Fatalf("missing %s", down)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	src := `-- leading; comment
create table t (v text default 'a;b');
create function f() returns trigger as $$
begin
    raise exception 'x';
end;
$$ language plpgsql;
`
	stmts := splitStatements(src)
	var nonEmpty []string
	for _, s := range stmts {
		if strings.TrimSpace(s) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(s))
		}
	}
	if len(nonEmpty) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(nonEmpty), nonEmpty)
	}
	if !strings.Contains(nonEmpty[0], "'a;b'") {
		t.Fatalf("quoted semicolon split: %q", nonEmpty[0])
	}
	if !strings.HasSuffix(nonEmpty[1], "language plpgsql;") {
		t.Fatalf("dollar-quoted body split: %q", nonEmpty[1])
	}
}
