package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDatabaseFiles(t *testing.T) {
	if files := DatabaseFiles(":memory:"); files != nil {
		t.Errorf("in-memory database has no files, got %v", files)
	}
	files := DatabaseFiles("/data/k.db")
	if len(files) != 3 || files[1] != "/data/k.db-wal" {
		t.Errorf("DatabaseFiles = %v", files)
	}
}

func TestFootprint(t *testing.T) {
	dir := t.TempDir()

	db := filepath.Join(dir, "k.db")
	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("wal"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := Footprint(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Errorf("db+wal: got %d bytes, want 8", got)
	}

	bleveDir := filepath.Join(dir, "bleve")
	if err := os.MkdirAll(filepath.Join(bleveDir, "store"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bleveDir, "index_meta.json"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bleveDir, "store", "root.bolt"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = Footprint(db, bleveDir, "", filepath.Join(dir, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if got != 11 {
		t.Errorf("with index dir: got %d bytes, want 11", got)
	}

	got, err = Footprint(":memory:")
	if err != nil || got != 0 {
		t.Errorf("in-memory: got %d, %v", got, err)
	}
}
