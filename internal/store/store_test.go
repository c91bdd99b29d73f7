package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

type doc struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func docKey(d doc) string { return d.Name }

func openTables(t *testing.T) map[string]Table[doc] {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sqlTable, err := NewTable[doc](context.Background(), db, "docs", docKey)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	return map[string]Table[doc]{
		"sqlite": sqlTable,
		"memory": NewMemoryTable[doc]("docs", docKey),
	}
}

func TestUpsertStatus(t *testing.T) {
	ctx := context.Background()
	for name, table := range openTables(t) {
		t.Run(name, func(t *testing.T) {
			steps := []struct {
				rec  doc
				want Status
			}{
				{rec: doc{Name: "a", Value: 1}, want: Inserted},
				{rec: doc{Name: "a", Value: 1}, want: Unchanged},
				{rec: doc{Name: "a", Value: 2}, want: Updated},
				{rec: doc{Name: "b", Value: 1}, want: Inserted},
			}
			for i, step := range steps {
				got, err := table.Upsert(ctx, step.rec)
				if err != nil {
					t.Fatalf("step %d: Upsert() error = %v", i, err)
				}
				if got != step.want {
					t.Fatalf("step %d: Upsert() = %s, want %s", i, got, step.want)
				}
			}

			got, err := table.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Value != 2 {
				t.Fatalf("Get() value = %d, want 2 (last write wins)", got.Value)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	for name, table := range openTables(t) {
		t.Run(name, func(t *testing.T) {
			_, err := table.Get(ctx, "nope")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestUpsertEmptyKey(t *testing.T) {
	ctx := context.Background()
	for name, table := range openTables(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := table.Upsert(ctx, doc{}); err == nil {
				t.Fatal("expected error for empty key")
			}
		})
	}
}

func TestQueryIsFilteredOrderedAndRestartable(t *testing.T) {
	ctx := context.Background()
	for name, table := range openTables(t) {
		t.Run(name, func(t *testing.T) {
			// more than one page for the sqlite table
			total := queryPageSize + 10
			for i := 0; i < total; i++ {
				if _, err := table.Upsert(ctx, doc{Name: fmt.Sprintf("k%04d", i), Value: i}); err != nil {
					t.Fatalf("Upsert() error = %v", err)
				}
			}

			even := func(d doc) bool { return d.Value%2 == 0 }
			seq := table.Query(ctx, even)

			for pass := 0; pass < 2; pass++ {
				count := 0
				prev := ""
				for rec, err := range seq {
					if err != nil {
						t.Fatalf("Query() error = %v", err)
					}
					if rec.Value%2 != 0 {
						t.Fatalf("Query() yielded unmatched record %v", rec)
					}
					if rec.Name <= prev {
						t.Fatalf("Query() out of order: %q after %q", rec.Name, prev)
					}
					prev = rec.Name
					count++
				}
				if want := (total + 1) / 2; count != want {
					t.Fatalf("pass %d: Query() yielded %d records, want %d", pass, count, want)
				}
			}
		})
	}
}

func TestQueryAllowsWriteBack(t *testing.T) {
	ctx := context.Background()
	for name, table := range openTables(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				if _, err := table.Upsert(ctx, doc{Name: fmt.Sprintf("k%d", i)}); err != nil {
					t.Fatalf("Upsert() error = %v", err)
				}
			}
			for rec, err := range table.Query(ctx, nil) {
				if err != nil {
					t.Fatalf("Query() error = %v", err)
				}
				rec.Value = 7
				if _, err := table.Upsert(ctx, rec); err != nil {
					t.Fatalf("write back %s: %v", rec.Name, err)
				}
			}
			for rec, err := range table.Query(ctx, func(d doc) bool { return d.Value != 7 }) {
				if err != nil {
					t.Fatalf("Query() error = %v", err)
				}
				t.Fatalf("record %s not written back", rec.Name)
			}
		})
	}
}

func TestNewTableRejectsBadName(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := NewTable[doc](context.Background(), db, "docs; DROP TABLE x", docKey); err == nil {
		t.Fatal("expected error for invalid table name")
	}
}
