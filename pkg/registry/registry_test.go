package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dtnitsch/persona-ingest/models"
	"github.com/dtnitsch/persona-ingest/pkg/filelock"
	"github.com/dtnitsch/persona-ingest/pkg/storage"
)

func setupTestRegistry(t *testing.T, options ...Option) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assets.json")
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithLockOptions(filelock.Options{Timeout: 2 * time.Second, RetryInterval: time.Millisecond}),
	}
	return New(path, append(base, options...)...)
}

func asset(id, ownerID, mime string, created time.Time) models.Asset {
	meta := map[string]any{}
	if !created.IsZero() {
		meta[models.MetaCreatedAt] = created.UTC().Format(time.RFC3339Nano)
	}
	return models.Asset{
		ID:                 id,
		OwnerID:            ownerID,
		OriginalName:       id + ".bin",
		StoredRelativePath: ownerID + "/" + id,
		MimeType:           mime,
		Metadata:           meta,
	}
}

func TestAppendAndFind(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	if err := reg.Append(ctx, asset("a1", "alice", "text/plain", time.Now())); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, ok, err := reg.FindByID("a1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if !ok {
		t.Fatal("FindByID() ok = false, want true")
	}
	if got.OwnerID != "alice" {
		t.Errorf("FindByID().OwnerID = %q, want alice", got.OwnerID)
	}

	_, ok, err = reg.FindByID("missing")
	if err != nil || ok {
		t.Errorf("FindByID(missing) = ok %v, err %v; want false, nil", ok, err)
	}
}

func TestAppendCreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "assets.json")
	reg := New(path,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithLockOptions(filelock.Options{Timeout: time.Second, RetryInterval: time.Millisecond}))

	if err := reg.Append(context.Background(), asset("a1", "alice", "text/plain", time.Now())); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("registry file not written: %v", err)
	}
	if _, err := os.Stat(path + ".lock"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("lock file left behind: %v", err)
	}
	if ok, err := reg.Remove(context.Background(), "a1"); err != nil || !ok {
		t.Errorf("Remove() = %v, %v; want true, nil", ok, err)
	}
}

func TestFindAllOnMissingFile(t *testing.T) {
	reg := setupTestRegistry(t)
	got, err := reg.FindAll("")
	if err != nil {
		t.Fatalf("FindAll() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("FindAll() len = %d, want 0", len(got))
	}
}

func TestAppendReplacesOnIDCollision(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	first := asset("dup", "alice", "text/plain", time.Now())
	second := asset("dup", "alice", "text/plain", time.Now())
	second.OriginalName = "replacement.txt"

	for _, a := range []models.Asset{first, second} {
		if err := reg.Append(ctx, a); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	all, err := reg.FindAll("")
	if err != nil {
		t.Fatalf("FindAll() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("FindAll() len = %d, want 1", len(all))
	}
	if all[0].OriginalName != "replacement.txt" {
		t.Errorf("record not replaced, OriginalName = %q", all[0].OriginalName)
	}
}

func TestFindAllOrdering(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()
	now := time.Now()

	records := []models.Asset{
		asset("img-old", "alice", "image/png", now.Add(-2*time.Hour)),
		asset("pdf", "alice", "application/pdf", now),
		asset("txt-old", "alice", "text/plain", now.Add(-time.Hour)),
		asset("img-new", "alice", "image/jpeg", now),
		asset("json", "alice", "application/json", now.Add(-30*time.Minute)),
		asset("txt-undated", "alice", "text/plain", time.Time{}),
		asset("txt-new", "alice", "text/plain", now),
	}
	for _, a := range records {
		if err := reg.Append(ctx, a); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	all, err := reg.FindAll("")
	if err != nil {
		t.Fatalf("FindAll() error = %v", err)
	}
	want := []string{"txt-new", "json", "txt-old", "txt-undated", "img-new", "img-old", "pdf"}
	if len(all) != len(want) {
		t.Fatalf("FindAll() len = %d, want %d", len(all), len(want))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("FindAll()[%d] = %s, want %s", i, all[i].ID, id)
		}
	}
}

func TestFindAllOwnerFilter(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	records := []models.Asset{
		asset("canonical", "alice_example_com", "text/plain", time.Now()),
		asset("legacy", "Alice@Example.com", "text/plain", time.Now()),
		asset("other", "bob", "text/plain", time.Now()),
	}
	for _, a := range records {
		if err := reg.Append(ctx, a); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{query: "Alice@Example.com", want: 2},
		{query: "alice_example_com", want: 2},
		{query: "bob", want: 1},
		{query: "carol", want: 0},
		{query: "", want: 3},
	}
	for _, tt := range tests {
		got, err := reg.FindAll(tt.query)
		if err != nil {
			t.Fatalf("FindAll(%q) error = %v", tt.query, err)
		}
		if len(got) != tt.want {
			t.Errorf("FindAll(%q) len = %d, want %d", tt.query, len(got), tt.want)
		}
	}
}

func TestRemove(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	reg := setupTestRegistry(t, WithFileRemover(store))
	ctx := context.Background()

	a := asset("r1", "alice", "text/plain", time.Now())
	a.StoredRelativePath = "alice/notes_r1.txt"
	if _, err := store.Put(ctx, storage.Bytes{Data: []byte("hi")}, a.StoredRelativePath); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := reg.Append(ctx, a); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	removed, err := reg.Remove(ctx, "r1")
	if err != nil || !removed {
		t.Fatalf("Remove() = %v, %v; want true, nil", removed, err)
	}
	if store.HasFile(a.StoredRelativePath) {
		t.Error("backing file still present after Remove()")
	}

	removed, err = reg.Remove(ctx, "r1")
	if err != nil || removed {
		t.Errorf("second Remove() = %v, %v; want false, nil", removed, err)
	}
}

func TestRemoveToleratesMissingFile(t *testing.T) {
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	reg := setupTestRegistry(t, WithFileRemover(store))
	ctx := context.Background()

	a := asset("ghost", "alice", "image/png", time.Now())
	a.StoredRelativePath = "alice/never_written.png"
	if err := reg.Append(ctx, a); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	removed, err := reg.Remove(ctx, "ghost")
	if err != nil || !removed {
		t.Errorf("Remove() = %v, %v; want true, nil", removed, err)
	}
}

func TestCorruptRegistryIsBackedUp(t *testing.T) {
	for _, payload := range []string{"{not json", `{"id":"x"}`, "null"} {
		t.Run(payload, func(t *testing.T) {
			reg := setupTestRegistry(t)
			if err := os.WriteFile(reg.Path(), []byte(payload), 0600); err != nil {
				t.Fatal(err)
			}

			all, err := reg.FindAll("")
			if err != nil {
				t.Fatalf("FindAll() on corrupt file error = %v", err)
			}
			if len(all) != 0 {
				t.Errorf("FindAll() len = %d, want 0", len(all))
			}

			if err := reg.Append(context.Background(), asset("fresh", "alice", "text/plain", time.Now())); err != nil {
				t.Fatalf("Append() after corruption error = %v", err)
			}

			matches, _ := filepath.Glob(reg.Path() + ".corrupt-*")
			if len(matches) != 1 {
				t.Fatalf("found %d backups, want 1", len(matches))
			}
			backup, err := os.ReadFile(matches[0])
			if err != nil {
				t.Fatal(err)
			}
			if string(backup) != payload {
				t.Errorf("backup content = %q, want %q", backup, payload)
			}

			all, err = reg.FindAll("")
			if err != nil || len(all) != 1 {
				t.Errorf("FindAll() after heal = %d records, err %v; want 1", len(all), err)
			}
		})
	}
}

func TestAppendLockTimeout(t *testing.T) {
	reg := setupTestRegistry(t, WithLockOptions(filelock.Options{
		Timeout:       50 * time.Millisecond,
		RetryInterval: 5 * time.Millisecond,
		StaleAfter:    -1,
	}))
	if err := os.WriteFile(reg.Path()+".lock", []byte("other process"), 0600); err != nil {
		t.Fatal(err)
	}

	err := reg.Append(context.Background(), asset("blocked", "alice", "text/plain", time.Now()))
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("Append() error = %v, want ErrLockTimeout", err)
	}

	// Other operations keep working once the holder is gone.
	if err := os.Remove(reg.Path() + ".lock"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Append(context.Background(), asset("after", "alice", "text/plain", time.Now())); err != nil {
		t.Errorf("Append() after release error = %v", err)
	}
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	reg := setupTestRegistry(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- reg.Append(ctx, asset(fmt.Sprintf("id-%02d", i), "alice", "text/plain", time.Now()))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	all, err := reg.FindAll("alice")
	if err != nil {
		t.Fatalf("FindAll() error = %v", err)
	}
	if len(all) != writers {
		t.Errorf("FindAll() len = %d, want %d", len(all), writers)
	}
	if _, err := os.Stat(reg.Path() + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file left behind")
	}
}

func TestRegistryFileIsIndentedArray(t *testing.T) {
	reg := setupTestRegistry(t)
	if err := reg.Append(context.Background(), asset("a", "alice", "text/plain", time.Now())); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	raw, err := os.ReadFile(reg.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(raw), "[\n  {") {
		t.Errorf("registry file not an indented array: %q", raw[:min(len(raw), 20)])
	}
}
