package memory

import (
	"errors"
	"testing"

	"github.com/nvelasco/campusd/storage"
)

func TestMemoryStore(t *testing.T) {
	s := NewStore()

	t.Run("PutAndGet", func(t *testing.T) {
		if err := s.Put("b1", "k1", []byte("v1")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := s.Get("b1", "k1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "v1" {
			t.Fatalf("got %q, want %q", got, "v1")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.Get("b1", "no-such-key")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("GetMissingBucket", func(t *testing.T) {
		_, err := s.Get("no-such-bucket", "k1")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		s.Put("b1", "k-ow", []byte("old"))
		s.Put("b1", "k-ow", []byte("new"))
		got, err := s.Get("b1", "k-ow")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "new" {
			t.Fatalf("got %q, want %q", got, "new")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s.Put("b1", "k-del", []byte("v"))
		if err := s.Delete("b1", "k-del"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		_, err := s.Get("b1", "k-del")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		// Idempotent; should not error.
		if err := s.Delete("b1", "never-existed"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		s.Put("b-list", "a", []byte("1"))
		s.Put("b-list", "b", []byte("2"))
		keys, err := s.List("b-list")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(keys) != 2 {
			t.Fatalf("got %d keys, want 2", len(keys))
		}
	})

	t.Run("ValueIsolation", func(t *testing.T) {
		v := []byte("mutable")
		s.Put("b1", "k-iso", v)
		v[0] = 'X'
		got, _ := s.Get("b1", "k-iso")
		if string(got) != "mutable" {
			t.Fatalf("stored value aliased caller slice: %q", got)
		}
	})
}
