package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "storage-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewStore(tmpDir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func TestStore_PutGet(t *testing.T) {
	store := newTestStore(t)

	key := "20240101120000_0b7e2c1e-6a43-4a43-9b8b-0c1f6f8b2a11_deck_v2.pptx"
	content := []byte("pptx bytes")

	if err := store.Put(UploadsNamespace, key, content); err != nil {
		t.Fatalf("put file: %v", err)
	}

	got, err := store.Get(UploadsNamespace, key)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}

	if string(got) != string(content) {
		t.Errorf("expected %s, got %s", content, got)
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	store := newTestStore(t)

	store.Put(OutputsNamespace, "a.json", []byte("old"))
	if err := store.Put(OutputsNamespace, "a.json", []byte("new")); err != nil {
		t.Fatalf("put file: %v", err)
	}

	got, _ := store.Get(OutputsNamespace, "a.json")
	if string(got) != "new" {
		t.Errorf("expected new, got %s", got)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(UploadsNamespace, "missing.pptx")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)

	if err := store.Put(UploadsNamespace, "test.pdf", []byte("x")); err != nil {
		t.Fatalf("put file: %v", err)
	}
	if err := store.Delete(UploadsNamespace, "test.pdf"); err != nil {
		t.Fatalf("delete file: %v", err)
	}
	if _, err := store.Get(UploadsNamespace, "test.pdf"); err == nil {
		t.Error("expected error after delete")
	}
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)

	store.Put(UploadsNamespace, "b.pptx", []byte("2"))
	store.Put(UploadsNamespace, "a.pptx", []byte("1"))
	store.Put(OutputsNamespace, "a.pptx.json", []byte("[]"))

	files, err := store.List(UploadsNamespace, "")
	if err != nil {
		t.Fatalf("list files: %v", err)
	}

	if len(files) != 2 || files[0] != "a.pptx" || files[1] != "b.pptx" {
		t.Errorf("expected sorted [a.pptx b.pptx], got %v", files)
	}
}

func TestStore_ListSkipsHiddenFiles(t *testing.T) {
	store := newTestStore(t)

	store.Put(UploadsNamespace, "a.pptx", []byte("1"))
	hidden := filepath.Join(store.namespaceDir(UploadsNamespace), ".tmp-123")
	if err := os.WriteFile(hidden, []byte("partial"), 0644); err != nil {
		t.Fatalf("write hidden: %v", err)
	}

	files, _ := store.List(UploadsNamespace, "")
	if len(files) != 1 {
		t.Errorf("expected hidden file to be skipped, got %v", files)
	}
}

func TestStore_ListEmptyNamespace(t *testing.T) {
	store := newTestStore(t)

	files, err := store.List(UploadsNamespace, "")
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestStore_RejectsTraversal(t *testing.T) {
	store := newTestStore(t)

	if err := store.Put(UploadsNamespace, "../escape.pptx", []byte("x")); err == nil {
		t.Error("expected traversal to be rejected")
	}
	if store.Exists(UploadsNamespace, "../escape.pptx") {
		t.Error("expected traversal path to not exist")
	}
}

func TestStore_AllowsDotsInNames(t *testing.T) {
	store := newTestStore(t)

	if err := store.Put(UploadsNamespace, "deck..final.pptx", []byte("x")); err != nil {
		t.Fatalf("put file: %v", err)
	}
	if !store.Exists(UploadsNamespace, "deck..final.pptx") {
		t.Error("expected file to exist")
	}
}

func TestResultName(t *testing.T) {
	if got := ResultName("k.pptx"); got != "k.pptx.json" {
		t.Errorf("expected k.pptx.json, got %s", got)
	}
}
