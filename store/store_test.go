package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"datasetAnalyzer/database"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.Namespace(NamespaceJobs)
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	rs, _ := newRedisStore(t)
	out := map[string]Store{
		"redis":  rs,
		"sqlite": newSQLiteStore(t),
	}
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		db, err := database.ConnectPostgres(context.Background(), url)
		if err != nil {
			t.Fatalf("ConnectPostgres: %v", err)
		}
		t.Cleanup(db.Close)
		if err := MigratePostgres(context.Background(), db.Pool); err != nil {
			t.Fatalf("MigratePostgres: %v", err)
		}
		ns := Namespace(fmt.Sprintf("test-%s", t.Name()))
		ps := NewPostgresStore(db.Pool, ns)
		t.Cleanup(func() {
			keys, _ := ps.Keys(context.Background(), "")
			ps.Delete(context.Background(), keys...)
		})
		out["postgres"] = ps
	}
	return out
}

func TestStore_GetSetDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get missing: err = %v, want ErrNotFound", err)
			}
			if err := s.Set(ctx, "k1", []byte(`{"a":1}`)); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, "k1", []byte(`{"a":2}`)); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, err := s.Get(ctx, "k1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != `{"a":2}` {
				t.Errorf("Get = %s, want {\"a\":2}", got)
			}
			if err := s.Delete(ctx, "k1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, "k1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_SetNXNeverOverwrites(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := s.SetNX(ctx, "once", []byte("first"))
			if err != nil || !ok {
				t.Fatalf("first SetNX = %v, %v; want true, nil", ok, err)
			}
			ok, err = s.SetNX(ctx, "once", []byte("second"))
			if err != nil || ok {
				t.Fatalf("second SetNX = %v, %v; want false, nil", ok, err)
			}
			got, _ := s.Get(ctx, "once")
			if string(got) != "first" {
				t.Errorf("value = %q, want %q", got, "first")
			}
		})
	}
}

func TestStore_Update(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := s.Update(ctx, "absent", func(b []byte) ([]byte, error) { return b, nil })
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("Update absent: err = %v, want ErrNotFound", err)
			}

			s.Set(ctx, "u", []byte("a"))
			if err := s.Update(ctx, "u", func(b []byte) ([]byte, error) {
				return append(b, 'b'), nil
			}); err != nil {
				t.Fatalf("Update: %v", err)
			}
			got, _ := s.Get(ctx, "u")
			if string(got) != "ab" {
				t.Errorf("value = %q, want %q", got, "ab")
			}

			sentinel := errors.New("rejected")
			err = s.Update(ctx, "u", func([]byte) ([]byte, error) { return nil, sentinel })
			if !errors.Is(err, sentinel) {
				t.Errorf("Update with failing fn: err = %v, want sentinel", err)
			}
			if errors.Is(err, ErrUnavailable) {
				t.Error("fn error must not be reported as unavailability")
			}
			got, _ = s.Get(ctx, "u")
			if string(got) != "ab" {
				t.Errorf("value after rejected update = %q, want %q", got, "ab")
			}
		})
	}
}

func TestStore_Keys(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{"hgnc:1", "hgnc:2", "wpp:2000", "other"} {
				s.Set(ctx, k, []byte("{}"))
			}

			keys, err := s.Keys(ctx, "hgnc:")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			sort.Strings(keys)
			if len(keys) != 2 || keys[0] != "hgnc:1" || keys[1] != "hgnc:2" {
				t.Errorf("Keys(hgnc:) = %v", keys)
			}

			all, err := s.Keys(ctx, "")
			if err != nil {
				t.Fatalf("Keys all: %v", err)
			}
			if len(all) != 4 {
				t.Errorf("Keys(\"\") returned %d keys, want 4", len(all))
			}
		})
	}
}

func TestStore_KeysNonASCIIPrefix(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{"loc:Côte", "loc:Côté", "loc:Cote", "loc:Cp", "loc:Cô"} {
				s.Set(ctx, k, []byte("{}"))
			}

			keys, err := s.Keys(ctx, "loc:Côt")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			sort.Strings(keys)
			if len(keys) != 2 || keys[0] != "loc:Côte" || keys[1] != "loc:Côté" {
				t.Errorf("Keys(loc:Côt) = %v", keys)
			}
		})
	}
}

func TestPrefixUpperBound(t *testing.T) {
	t.Parallel()
	tests := []struct {
		prefix string
		want   string
		ok     bool
	}{
		{"hgnc:", "hgnc;", true},
		{"a\xff", "b", true},
		{"\xff\xff", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := prefixUpperBound(tt.prefix)
		if got != tt.want || ok != tt.ok {
			t.Errorf("prefixUpperBound(%q) = %q, %v; want %q, %v", tt.prefix, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRedisStore_ConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	s.Set(ctx, "counter", []byte{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Update(ctx, "counter", func(b []byte) ([]byte, error) {
				return append(b, 'x'), nil
			}); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "counter")
	if len(got) != 5 {
		t.Errorf("counter length = %d, want 5", len(got))
	}
}

func TestRedisStore_UnavailableWhenServerDown(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Get with server down: err = %v, want ErrUnavailable", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("outage must not look like a missing record")
	}
}

func TestEscapeGlob(t *testing.T) {
	t.Parallel()
	if got := escapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Errorf("escapeGlob = %q", got)
	}
}
