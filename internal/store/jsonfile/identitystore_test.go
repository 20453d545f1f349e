package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hay-kot/perch/internal/core/messaging"
)

func newIdentity(name, clientID string) messaging.Identity {
	now := time.Now()
	return messaging.Identity{
		Name:       name,
		ClientID:   clientID,
		CreatedAt:  now,
		LastUsedAt: now,
	}
}

func TestIdentityStore_SaveAndGet(t *testing.T) {
	store := NewIdentityStore(filepath.Join(t.TempDir(), "identities.json"))
	ctx := context.Background()

	if err := store.Save(ctx, newIdentity("worker", "client-1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ident, err := store.Get(ctx, "worker")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if ident.Name != "worker" {
		t.Errorf("Name = %q, want %q", ident.Name, "worker")
	}
	if ident.ClientID != "client-1" {
		t.Errorf("ClientID = %q, want %q", ident.ClientID, "client-1")
	}
	if ident.CreatedAt.IsZero() {
		t.Error("CreatedAt should not be zero")
	}
}

func TestIdentityStore_GetNotFound(t *testing.T) {
	store := NewIdentityStore(filepath.Join(t.TempDir(), "identities.json"))

	_, err := store.Get(context.Background(), "nonexistent")
	if !errors.Is(err, messaging.ErrIdentityNotFound) {
		t.Errorf("Get error = %v, want ErrIdentityNotFound", err)
	}
}

func TestIdentityStore_SaveRequiresName(t *testing.T) {
	store := NewIdentityStore(filepath.Join(t.TempDir(), "identities.json"))

	if err := store.Save(context.Background(), newIdentity("", "client-1")); err == nil {
		t.Error("Expected error for identity without a name")
	}
}

func TestIdentityStore_SaveReplaces(t *testing.T) {
	store := NewIdentityStore(filepath.Join(t.TempDir(), "identities.json"))
	ctx := context.Background()

	first := newIdentity("worker", "client-1")
	_ = store.Save(ctx, first)

	updated := first
	updated.LastUsedAt = first.LastUsedAt.Add(time.Hour)
	if err := store.Save(ctx, updated); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, _ := store.Get(ctx, "worker")
	if !got.LastUsedAt.Equal(updated.LastUsedAt) {
		t.Errorf("LastUsedAt = %v, want %v", got.LastUsedAt, updated.LastUsedAt)
	}
}

func TestIdentityStore_ListSorted(t *testing.T) {
	store := NewIdentityStore(filepath.Join(t.TempDir(), "identities.json"))
	ctx := context.Background()

	_ = store.Save(ctx, newIdentity("zeta", "c3"))
	_ = store.Save(ctx, newIdentity("alpha", "c1"))
	_ = store.Save(ctx, newIdentity("mid", "c2"))

	idents, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{"alpha", "mid", "zeta"}
	if len(idents) != len(want) {
		t.Fatalf("List returned %d identities, want %d", len(idents), len(want))
	}
	for i, name := range want {
		if idents[i].Name != name {
			t.Errorf("idents[%d].Name = %q, want %q", i, idents[i].Name, name)
		}
	}
}

func TestIdentityStore_Delete(t *testing.T) {
	store := NewIdentityStore(filepath.Join(t.TempDir(), "identities.json"))
	ctx := context.Background()

	_ = store.Save(ctx, newIdentity("worker", "client-1"))

	if err := store.Delete(ctx, "worker"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := store.Get(ctx, "worker")
	if !errors.Is(err, messaging.ErrIdentityNotFound) {
		t.Errorf("Get after delete error = %v, want ErrIdentityNotFound", err)
	}
}

func TestIdentityStore_DeleteNotFound(t *testing.T) {
	store := NewIdentityStore(filepath.Join(t.TempDir(), "identities.json"))

	err := store.Delete(context.Background(), "nonexistent")
	if !errors.Is(err, messaging.ErrIdentityNotFound) {
		t.Errorf("Delete error = %v, want ErrIdentityNotFound", err)
	}
}

func TestIdentityStore_WithResolver(t *testing.T) {
	store := NewIdentityStore(filepath.Join(t.TempDir(), "identities.json"))
	resolver := messaging.NewIdentityResolver(store)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// A second store on the same file sees the persisted identity.
	reopened := messaging.NewIdentityResolver(NewIdentityStore(store.path))
	second, err := reopened.Resolve(ctx, messaging.DefaultIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if first.ClientID != second.ClientID {
		t.Errorf("ClientID changed across stores: %q -> %q", first.ClientID, second.ClientID)
	}
}

func TestIdentityStore_ConcurrentAccess(t *testing.T) {
	store := NewIdentityStore(filepath.Join(t.TempDir(), "identities.json"))
	ctx := context.Background()

	const goroutines = 10
	const iterations = 20

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				name := fmt.Sprintf("ident-%d-%d", id, j)
				if err := store.Save(ctx, newIdentity(name, name)); err != nil {
					t.Errorf("Save failed: %v", err)
					return
				}
				if _, err := store.Get(ctx, name); err != nil {
					t.Errorf("Get failed: %v", err)
					return
				}
			}
		}(i)
	}

	wg.Wait()

	idents, err := store.List(ctx)
	if err != nil {
		t.Fatalf("Final List failed: %v", err)
	}
	if len(idents) != goroutines*iterations {
		t.Errorf("Expected %d identities, got %d", goroutines*iterations, len(idents))
	}
}

func TestIdentityStore_CorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identities.json")
	if err := os.WriteFile(path, []byte("{invalid json"), 0o644); err != nil {
		t.Fatalf("Failed to write corrupted file: %v", err)
	}

	store := NewIdentityStore(path)
	ctx := context.Background()

	if _, err := store.Get(ctx, "any"); err == nil {
		t.Error("Expected error for corrupted JSON, got nil")
	}
	if err := store.Save(ctx, newIdentity("worker", "c1")); err == nil {
		t.Error("Expected error for Save with corrupted file, got nil")
	}
}
