package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestMemoryBackend_CopiesPayload(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()
	if p, err := m.Load(ctx); err != nil || p != nil {
		t.Fatalf("Load empty = %q, %v", p, err)
	}
	buf := []byte("abc")
	_ = m.Save(ctx, buf)
	buf[0] = 'x'
	p, _ := m.Load(ctx)
	if string(p) != "abc" {
		t.Errorf("Load = %q, want abc", p)
	}
}

func TestSQLite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "spc.db")
	be, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	ctx := context.Background()
	if p, err := be.Load(ctx); err != nil || p != nil {
		t.Fatalf("Load fresh = %q, %v", p, err)
	}
	if err := be.Save(ctx, []byte(`[1]`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := be.Save(ctx, []byte(`[2]`)); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	_ = be.Close()

	be, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer be.Close()
	p, err := be.Load(ctx)
	if err != nil || string(p) != `[2]` {
		t.Errorf("Load = %q, %v; want [2]", p, err)
	}
}

func TestSQLite_RepositoryPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spc.db")
	ctx := context.Background()

	be, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(ctx, be)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Add(ctx, dataset("a", 1, 2), dataset("b", 3)); err != nil {
		t.Fatal(err)
	}
	_ = r.Close()

	be, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	r, err = Open(ctx, be)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if n := len(r.WorkingSet()); n != 3 {
		t.Errorf("WorkingSet after reopen = %d, want 3", n)
	}
}

func TestOpenPostgres_EmptyDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

// The postgres dialect uses $n placeholders and ON CONFLICT, both of which
// SQLite accepts, so the statements can be exercised without a server.
func TestOpenPostgres_Statements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg.db")
	var gotDriver string
	orig := sqlOpen
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		gotDriver = driver
		return orig("sqlite", path)
	}
	t.Cleanup(func() { sqlOpen = orig })

	ctx := context.Background()
	be, err := OpenPostgres(ctx, "postgres://spc@localhost/spc")
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer be.Close()
	if gotDriver != "pgx" {
		t.Errorf("driver = %q, want pgx", gotDriver)
	}
	if err := be.Save(ctx, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p, err := be.Load(ctx)
	if err != nil || string(p) != `{"a":1}` {
		t.Errorf("Load = %q, %v", p, err)
	}
}
