package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kensaku/internal/lexical"
	"github.com/hyperjump/kensaku/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func upsert(t *testing.T, store *SQLiteStore, path, title, content string) *models.Document {
	t.Helper()
	doc := &models.Document{Title: title, Content: content, Path: path}
	if _, err := store.UpsertDocument(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestSQLiteStore_OpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kensaku.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if !store.FullTextAvailable() {
		t.Error("expected FTS5 with the default driver")
	}
}

func TestSQLiteStore_UpsertReplacesOnPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := upsert(t, store, "/notes/a.md", "A", "first version")
	if first.Hash != models.ContentHash("first version") {
		t.Errorf("hash not derived from content: %s", first.Hash)
	}
	if first.CreatedAt.IsZero() || !first.Active {
		t.Errorf("unexpected document state: %+v", first)
	}

	changed, err := store.UpsertDocument(ctx, &models.Document{Title: "A", Content: "first version", Path: "/notes/a.md"})
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("identical content should not report a change")
	}

	second := upsert(t, store, "/notes/a.md", "A", "second version")
	active, err := store.GetActiveDocument(ctx, "/notes/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if active.Hash != second.Hash {
		t.Errorf("active hash = %s, want %s", active.Hash, second.Hash)
	}
	old, err := store.GetDocument(ctx, first.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if old.Active {
		t.Error("previous version should be inactive")
	}

	docs, err := store.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Hash != second.Hash {
		t.Errorf("ListDocuments = %+v", docs)
	}
}

func TestSQLiteStore_DeactivateAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := upsert(t, store, "/a.txt", "a", "alpha content")

	n, err := store.DeactivatePath(ctx, "/a.txt")
	if err != nil || n != 1 {
		t.Fatalf("DeactivatePath = %d, %v", n, err)
	}
	if _, err := store.GetActiveDocument(ctx, "/a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.DeleteDocument(ctx, doc.Hash); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDocument(ctx, doc.Hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteDocument(ctx, doc.Hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_Collections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := upsert(t, store, "/work/a.md", "a", "quarterly budget review")
	b := upsert(t, store, "/home/b.md", "b", "holiday budget plan")

	if err := store.EnsureCollection(ctx, "work", "/work"); err != nil {
		t.Fatal(err)
	}
	if err := store.EnsureCollection(ctx, "work", "/work"); err != nil {
		t.Fatal(err)
	}
	if err := store.AddToCollection(ctx, "work", a.Hash); err != nil {
		t.Fatal(err)
	}
	cols, err := store.ListCollections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 1 || cols[0].Name != "work" || cols[0].Path != "/work" {
		t.Errorf("ListCollections = %+v", cols)
	}

	all, err := store.ResolveDocuments(ctx, []string{a.Hash, b.Hash, "missing"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 resolved documents, got %d", len(all))
	}
	work, err := store.ResolveDocuments(ctx, []string{a.Hash, b.Hash}, "work")
	if err != nil {
		t.Fatal(err)
	}
	if len(work) != 1 || work[a.Hash] == nil {
		t.Errorf("collection filter: got %v", work)
	}

	rows, err := store.Query(ctx, lexical.Request{Query: "budget", Collection: "work", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Hash != a.Hash {
		t.Errorf("collection query rows = %+v", rows)
	}
}

func TestSQLiteStore_Query(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	goDoc := upsert(t, store, "/go.md", "Go concurrency", "Goroutines and channels make concurrency approachable.")
	upsert(t, store, "/rust.md", "Rust ownership", "Ownership and borrowing keep memory safe.")
	upsert(t, store, "/cook.md", "Bread", "Knead the dough and let it rise overnight.")

	rows, err := store.Query(ctx, lexical.Request{Query: "concurrency", Limit: 10, Snippets: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Hash != goDoc.Hash || rows[0].Path != "/go.md" {
		t.Errorf("unexpected row %+v", rows[0])
	}
	if rows[0].Score >= 0 {
		t.Errorf("bm25 score should be negative, got %f", rows[0].Score)
	}
	if !strings.Contains(rows[0].Snippet, "<mark>concurrency</mark>") {
		t.Errorf("snippet missing highlight: %q", rows[0].Snippet)
	}

	rows, err = store.Query(ctx, lexical.Request{Query: "ownership", Field: lexical.FieldTitle, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Snippet != "" {
		t.Errorf("title query rows = %+v", rows)
	}
	rows, err = store.Query(ctx, lexical.Request{Query: "bread", Field: lexical.FieldContent, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("content-only query should not match a title, got %d rows", len(rows))
	}

	zero := 0.0
	rows, err = store.Query(ctx, lexical.Request{Query: "concurrency", MaxAbsScore: &zero, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("zero raw threshold should exclude every match, got %d rows", len(rows))
	}

	if _, err := store.DeactivatePath(ctx, "/go.md"); err != nil {
		t.Fatal(err)
	}
	rows, _ = store.Query(ctx, lexical.Request{Query: "concurrency", Limit: 10})
	if len(rows) != 0 {
		t.Errorf("inactive documents must not match, got %d rows", len(rows))
	}
}

func TestSQLiteStore_QueryMissingIndex(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.db.Exec(`DROP TABLE documents_fts`); err != nil {
		t.Fatal(err)
	}
	_, err := store.Query(context.Background(), lexical.Request{Query: "anything", Limit: 5})
	if !errors.Is(err, lexical.ErrIndexMissing) {
		t.Errorf("expected ErrIndexMissing, got %v", err)
	}
}

func TestSQLiteStore_Chunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := upsert(t, store, "/c.md", "c", "chunked")

	chunks := []models.Chunk{
		{Hash: doc.Hash, Seq: 0, Pos: 0, Text: "one", Tokens: 2},
		{Hash: doc.Hash, Seq: 1, Pos: 4, Text: "two", Tokens: 2},
	}
	if err := store.ReplaceChunks(ctx, doc.Hash, chunks); err != nil {
		t.Fatal(err)
	}
	if err := store.ReplaceChunks(ctx, doc.Hash, chunks[:1]); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetChunks(ctx, doc.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != chunks[0] {
		t.Errorf("GetChunks = %+v", got)
	}
}

func TestSQLiteStore_Vectors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.ProbeVectors(ctx); err != nil {
		t.Fatalf("probe on empty table: %v", err)
	}

	live := upsert(t, store, "/live.md", "live", "live content")
	gone := upsert(t, store, "/gone.md", "gone", "gone content")
	records := []VectorRecord{
		{Key: models.ChunkKey(live.Hash, 0), Hash: live.Hash, Seq: 0, Model: "m", Data: []byte{1, 2, 3, 4}},
		{Key: models.ChunkKey(gone.Hash, 0), Hash: gone.Hash, Seq: 0, Model: "m", Data: []byte{5, 6, 7, 8}},
	}
	if err := store.SaveVectors(ctx, records); err != nil {
		t.Fatal(err)
	}
	if _, err := store.DeactivatePath(ctx, "/gone.md"); err != nil {
		t.Fatal(err)
	}

	loaded := map[string][]byte{}
	err := store.LoadVectors(ctx, func(key string, data []byte) error {
		loaded[key] = data
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || string(loaded[records[0].Key]) != string(records[0].Data) {
		t.Errorf("LoadVectors = %v", loaded)
	}

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.ActiveDocuments != 1 || st.InactiveDocuments != 1 || st.Vectors != 2 || !st.FullTextIndex {
		t.Errorf("Stats = %+v", st)
	}

	if err := store.DeleteVectors(ctx, live.Hash); err != nil {
		t.Fatal(err)
	}
	st, _ = store.Stats(ctx)
	if st.Vectors != 1 {
		t.Errorf("expected 1 vector after delete, got %d", st.Vectors)
	}
}
