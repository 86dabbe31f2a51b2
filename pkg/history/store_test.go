package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bootcdev/diskctl/pkg/build"
	"github.com/google/go-cmp/cmp"
)

func testRecord(id string) *Record {
	return &Record{
		ID:      id,
		Image:   "quay.io/fedora/fedora-bootc",
		Tag:     "41",
		Formats: []string{"qcow2", "raw"},
		Arch:    "amd64",
		Folder:  "/var/tmp/images",
		Status:  build.StatusPending,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	rec := testRecord(NewID())
	if err := store.AddOrUpdate(rec); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	stored, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	reloaded, err := reopened.Get(rec.ID)
	if err != nil {
		t.Fatalf("get after reload failed: %v", err)
	}

	if diff := cmp.Diff(stored, reloaded); diff != "" {
		t.Errorf("record changed across reload (-stored +reloaded):\n%s", diff)
	}
}

func TestStore_UpsertOverwritesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	rec := testRecord(NewID())
	if err := store.AddOrUpdate(rec); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	rec.Status = build.StatusFailure
	rec.Error = "builder container exited with status 1"
	if err := store.AddOrUpdate(rec); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	updated, err := store.Get(rec.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if updated.Status != build.StatusFailure || updated.Error == "" {
		t.Errorf("update not applied: %+v", updated)
	}

	if got := len(store.List()); got != 1 {
		t.Errorf("upsert duplicated the record: %d entries", got)
	}
}

func TestStore_ListPreservesInsertionOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	ids := []string{NewID(), NewID(), NewID()}
	for _, id := range ids {
		if err := store.AddOrUpdate(testRecord(id)); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	// Updating the first record must not move it.
	first := testRecord(ids[0])
	first.Status = build.StatusSuccess
	if err := store.AddOrUpdate(first); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	check := func(s *Store) {
		t.Helper()
		records := s.List()
		if len(records) != len(ids) {
			t.Fatalf("expected %d records, got %d", len(ids), len(records))
		}
		for i, id := range ids {
			if records[i].ID != id {
				t.Errorf("position %d: got %s, want %s", i, records[i].ID, id)
			}
		}
	}

	check(store)

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	check(reopened)
}

func TestStore_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	rec := testRecord(NewID())
	if err := store.AddOrUpdate(rec); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := store.Remove(rec.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := store.Get(rec.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}

	if err := store.Remove("unknown-id"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := len(reopened.List()); got != 0 {
		t.Errorf("removal not persisted: %d records after reload", got)
	}
}

func TestStore_ToleratesMissingFile(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "does", "not", "exist.json"))
	if err != nil {
		t.Fatalf("open of missing file must not fail: %v", err)
	}
	if got := len(store.List()); got != 0 {
		t.Errorf("expected empty store, got %d records", got)
	}
}

func TestStore_ToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open of corrupt file must not fail: %v", err)
	}
	if got := len(store.List()); got != 0 {
		t.Errorf("expected empty store, got %d records", got)
	}

	// The first mutation rewrites the file into a loadable form.
	if err := store.AddOrUpdate(testRecord(NewID())); err != nil {
		t.Fatalf("add after corrupt load failed: %v", err)
	}
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := len(reopened.List()); got != 1 {
		t.Errorf("expected 1 record after rewrite, got %d", got)
	}
}

func TestStore_RejectsEmptyID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := store.AddOrUpdate(&Record{}); err == nil {
		t.Error("expected error for record without id")
	}
}
