package testutil

import (
	"context"
	"testing"
)

func TestStubDBStoresAndQueriesRows(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if _, err := db.ExecContext(ctx, "INSERT INTO items (id, name) VALUES ($1,$2) ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name", id, "n-"+id); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO items (id, name) VALUES ($1,$2) ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name", "a", "renamed"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got := len(conn.Tables["items"]); got != 2 {
		t.Fatalf("expected 2 rows after upsert, got %d", got)
	}

	var name string
	if err := db.QueryRowContext(ctx, "SELECT name FROM items WHERE id = $1", "a").Scan(&name); err != nil || name != "renamed" {
		t.Fatalf("select: %q %v", name, err)
	}
	rows, err := db.QueryContext(ctx, "SELECT id FROM items ORDER BY id")
	if err != nil {
		t.Fatalf("select all: %v", err)
	}
	var n int
	for rows.Next() {
		n++
	}
	_ = rows.Close()
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}

	res, err := db.ExecContext(ctx, "DELETE FROM items WHERE id = $1", "b")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if affected, _ := res.RowsAffected(); affected != 1 {
		t.Fatalf("expected 1 affected row, got %d", affected)
	}
	res, _ = db.ExecContext(ctx, "DELETE FROM items WHERE id = $1", "b")
	if affected, _ := res.RowsAffected(); affected != 0 {
		t.Fatalf("expected 0 affected rows, got %d", affected)
	}
}
