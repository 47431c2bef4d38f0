package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/TobiSchelling/statstutor/internal/database"
	"github.com/TobiSchelling/statstutor/internal/logger"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  string // texts containing this fail
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.fail != "" && strings.Contains(t, f.fail) {
			return nil, errors.New("embedding backend down")
		}
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestChunk(t *testing.T) {
	text := strings.Repeat("word ", 25)
	chunks := Chunk(text, 10)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(strings.Fields(chunks[2])) != 5 {
		t.Errorf("expected 5 words in last chunk, got %q", chunks[2])
	}
	if Chunk("   ", 10) != nil {
		t.Error("expected no chunks for blank text")
	}
}

func TestRunIngestsTextFilesAndSkipsOthers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "week1.md"), "# Sampling\n\n"+strings.Repeat("sampling distribution ", 30))
	writeFile(t, filepath.Join(dir, "notes", "regression.txt"), "Linear regression assumes linearity and constant variance.")
	writeFile(t, filepath.Join(dir, "scan.png"), "not really an image")
	writeFile(t, filepath.Join(dir, "data.csv"), "a,b\n1,2")
	writeFile(t, filepath.Join(dir, "empty.txt"), "   \n")

	db := openTestDB(t)
	emb := &fakeEmbedder{}
	in := New(db, emb, Options{ChunkWords: 20, BatchSize: 2, Concurrency: 2}, logger.NewNop())

	r, err := in.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Scanned != 5 || r.Ingested != 2 || r.Failed != 0 {
		t.Errorf("unexpected result %+v", r)
	}
	// png, csv and the blank text file
	if r.Skipped != 3 {
		t.Errorf("expected 3 skipped, got %d", r.Skipped)
	}
	// week1.md has 62 words -> 4 chunks; regression.txt -> 1 chunk
	if r.Chunks != 5 {
		t.Errorf("expected 5 chunks, got %d", r.Chunks)
	}
	if len(r.Steps) != 2 || r.Steps[1].Err != nil {
		t.Errorf("unexpected steps %+v", r.Steps)
	}

	ok, err := db.HasCourseFile(context.Background(), "notes/regression.txt")
	if err != nil || !ok {
		t.Errorf("expected relative path key to be stored: %v, %v", ok, err)
	}

	found, err := db.SearchCourseChunks(context.Background(), []float32{58, 1}, 1)
	if err != nil || len(found) != 1 {
		t.Fatalf("search = %v, %v", found, err)
	}
}

func TestRunSkipsAlreadyIngested(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hypothesis testing and p-values")

	db := openTestDB(t)
	emb := &fakeEmbedder{}
	in := New(db, emb, Options{}, logger.NewNop())

	if _, err := in.Run(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	calls := emb.calls

	r, err := in.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if r.Ingested != 0 || r.Skipped != 1 {
		t.Errorf("expected file to be skipped on the second run, got %+v", r)
	}
	if emb.calls != calls {
		t.Error("embedder should not be called for ingested files")
	}

	stats, _ := db.Stats(context.Background())
	if stats.CourseChunks != 1 {
		t.Errorf("expected 1 stored chunk, got %d", stats.CourseChunks)
	}
}

func TestRunCountsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.txt"), "confidence intervals")
	writeFile(t, filepath.Join(dir, "bad.txt"), "POISON chunk")

	db := openTestDB(t)
	in := New(db, &fakeEmbedder{fail: "POISON"}, Options{}, logger.NewNop())

	r, err := in.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("a failing file should not abort the run: %v", err)
	}
	if r.Failed != 1 || r.Ingested != 1 {
		t.Errorf("unexpected result %+v", r)
	}
	ok, _ := db.HasCourseFile(context.Background(), "bad.txt")
	if ok {
		t.Error("failed file should leave no chunks")
	}
}

func TestRunMissingDir(t *testing.T) {
	in := New(openTestDB(t), &fakeEmbedder{}, Options{}, logger.NewNop())
	if _, err := in.Run(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}
