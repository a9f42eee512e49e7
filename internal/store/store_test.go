package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.klb.dev/clipvault/internal/history"
)

// forEachStore runs fn against every history.Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s history.Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		s := NewMemory()
		defer s.Close()
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "history.db")})
		if err != nil {
			t.Fatalf("OpenSQLite() failed: %v", err)
		}
		defer s.Close()
		fn(t, s)
	})
}

func mustInsert(t *testing.T, s history.Store, items ...history.Item) {
	t.Helper()
	for _, it := range items {
		if err := s.Insert(context.Background(), it); err != nil {
			t.Fatalf("Insert(%q) failed: %v", it.Content, err)
		}
	}
}

func contents(items []history.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Content
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStore_RecentOrdering(t *testing.T) {
	forEachStore(t, func(t *testing.T, s history.Store) {
		ctx := context.Background()
		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		mustInsert(t, s,
			history.NewItem(history.KindText, "oldest", base.Add(-time.Hour)),
			history.NewItem(history.KindText, "tie-first", base),
			history.NewItem(history.KindText, "tie-second", base),
			history.NewItem(history.KindText, "newest", base.Add(time.Hour)),
		)

		got, err := s.Recent(ctx, 3)
		if err != nil {
			t.Fatalf("Recent() failed: %v", err)
		}
		want := []string{"newest", "tie-second", "tie-first"}
		if !equalStrings(contents(got), want) {
			t.Fatalf("Recent(3) = %v, want %v", contents(got), want)
		}

		again, _ := s.Recent(ctx, 3)
		if !equalStrings(contents(again), want) {
			t.Errorf("Recent not stable: %v", contents(again))
		}

		all, err := s.All(ctx)
		if err != nil {
			t.Fatalf("All() failed: %v", err)
		}
		if want := append(want, "oldest"); !equalStrings(contents(all), want) {
			t.Errorf("All() = %v, want %v", contents(all), want)
		}

		none, err := s.Recent(ctx, 0)
		if err != nil || len(none) != 0 {
			t.Errorf("Recent(0) = %v, %v", none, err)
		}
	})
}

func TestStore_RoundTripPreservesFields(t *testing.T) {
	forEachStore(t, func(t *testing.T, s history.Store) {
		ctx := context.Background()
		at := time.Date(2025, 5, 6, 7, 8, 9, 123456789, time.UTC)
		item := history.NewItem(history.KindFilePath, "/tmp/a.txt", at)
		mustInsert(t, s, item)

		got, err := s.Get(ctx, item.ID)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.ID != item.ID || got.Content != item.Content || got.Kind() != history.KindFilePath {
			t.Errorf("Get() = %+v, want %+v", got, item)
		}
		if !got.CreatedAt.Equal(at) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, at)
		}

		if _, err := s.Get(ctx, "missing"); !errors.Is(err, history.ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_DeleteBefore(t *testing.T) {
	forEachStore(t, func(t *testing.T, s history.Store) {
		ctx := context.Background()
		cutoff := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

		mustInsert(t, s,
			history.NewItem(history.KindText, "old", cutoff.Add(-time.Nanosecond)),
			history.NewItem(history.KindText, "boundary", cutoff),
			history.NewItem(history.KindText, "new", cutoff.Add(time.Hour)),
		)

		deleted, err := s.DeleteBefore(ctx, cutoff)
		if err != nil {
			t.Fatalf("DeleteBefore() failed: %v", err)
		}
		if deleted != 1 {
			t.Errorf("deleted = %d, want 1", deleted)
		}

		deleted, err = s.DeleteBefore(ctx, cutoff)
		if err != nil || deleted != 0 {
			t.Errorf("second DeleteBefore() = %d, %v; want 0, nil", deleted, err)
		}

		all, _ := s.All(ctx)
		if want := []string{"new", "boundary"}; !equalStrings(contents(all), want) {
			t.Errorf("remaining = %v, want %v", contents(all), want)
		}
	})
}

func TestStore_DeleteAndDeleteAll(t *testing.T) {
	forEachStore(t, func(t *testing.T, s history.Store) {
		ctx := context.Background()
		now := time.Now()
		a := history.NewItem(history.KindText, "a", now)
		b := history.NewItem(history.KindText, "b", now.Add(time.Second))
		c := history.NewItem(history.KindText, "c", now.Add(2*time.Second))
		mustInsert(t, s, a, b, c)

		if err := s.Delete(ctx, b.ID); err != nil {
			t.Fatalf("Delete() failed: %v", err)
		}
		if err := s.Delete(ctx, "does-not-exist"); err != nil {
			t.Errorf("Delete(unknown) = %v, want nil", err)
		}
		all, _ := s.All(ctx)
		if want := []string{"c", "a"}; !equalStrings(contents(all), want) {
			t.Errorf("after Delete = %v, want %v", contents(all), want)
		}

		if err := s.DeleteAll(ctx); err != nil {
			t.Fatalf("DeleteAll() failed: %v", err)
		}
		recent, err := s.Recent(ctx, 10)
		if err != nil || len(recent) != 0 {
			t.Errorf("Recent after DeleteAll = %v, %v", recent, err)
		}
		n, _ := s.Count(ctx)
		if n != 0 {
			t.Errorf("Count = %d, want 0", n)
		}
	})
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := OpenSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	item := history.NewItem(history.KindText, "survives", time.Now())
	mustInsert(t, s, item)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	s2, err := OpenSQLite(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(context.Background(), item.ID)
	if err != nil || got.Content != "survives" {
		t.Fatalf("Get after reopen = %+v, %v", got, err)
	}
}

func TestSQLite_UnknownKindTagLoads(t *testing.T) {
	s, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := s.db.Exec(insertItem, "future-row", time.Now().UnixNano(), "richText", "payload"); err != nil {
		t.Fatalf("raw insert failed: %v", err)
	}
	items, err := s.All(context.Background())
	if err != nil {
		t.Fatalf("All() failed: %v", err)
	}
	if len(items) != 1 || items[0].Kind() != history.KindUnsupported || items[0].RawKind != "richText" {
		t.Errorf("items = %+v", items)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(SQLiteConfig{}); !history.IsStorageError(err) {
		t.Errorf("OpenSQLite(empty) error = %v, want StorageError", err)
	}
}

func TestMemory_FailWith(t *testing.T) {
	s := NewMemory()
	s.FailWith = errors.New("medium gone")
	err := s.Insert(context.Background(), history.NewItem(history.KindText, "x", time.Now()))
	if !history.IsStorageError(err) {
		t.Fatalf("Insert error = %v, want StorageError", err)
	}
}
