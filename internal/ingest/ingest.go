// Package ingest loads course materials into the retrieval index: it walks
// a directory, extracts text, splits it into chunks, embeds them and stores
// the result.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/statstutor/internal/llm"
	"github.com/TobiSchelling/statstutor/internal/logger"
	"github.com/TobiSchelling/statstutor/internal/model"
	"github.com/TobiSchelling/statstutor/internal/pdf"
)

// Store is where chunks are written.
type Store interface {
	HasCourseFile(ctx context.Context, filepath string) (bool, error)
	InsertCourseChunks(ctx context.Context, chunks []model.CourseChunk) error
}

// Options tunes an ingestion run. Zero values select defaults.
type Options struct {
	ChunkWords  int
	BatchSize   int
	Concurrency int
}

// StepResult holds the result of a single ingestion step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full ingestion run.
type Result struct {
	Dir      string
	Steps    []StepResult
	Scanned  int
	Ingested int
	Skipped  int
	Failed   int
	Chunks   int
}

type kind int

const (
	kindUnsupported kind = iota
	kindPDF
	kindText
	kindImage
)

func kindOf(path string) kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return kindPDF
	case ".txt", ".md", ".markdown":
		return kindText
	case ".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".bmp", ".webp":
		return kindImage
	}
	return kindUnsupported
}

// Ingester runs ingestion.
type Ingester struct {
	store    Store
	embedder llm.Embedder
	opts     Options
	log      *logger.Logger
}

// New creates an ingester.
func New(store Store, embedder llm.Embedder, opts Options, log *logger.Logger) *Ingester {
	if opts.ChunkWords <= 0 {
		opts.ChunkWords = 800
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Ingester{store: store, embedder: embedder, opts: opts, log: log}
}

// Run ingests every supported file under dir. A failing file is counted and
// logged; only a walk error or cancellation aborts the run.
func (in *Ingester) Run(ctx context.Context, dir string) (*Result, error) {
	r := &Result{Dir: dir}

	in.log.Info("Step 1/2: scanning course materials", "dir", dir)
	files, skipped, err := in.scan(dir)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Scan", Err: err})
		return r, err
	}
	r.Scanned = len(files) + skipped
	r.Skipped = skipped
	r.Steps = append(r.Steps, StepResult{
		Name:    "Scan",
		Summary: fmt.Sprintf("Found %d supported files, skipped %d", len(files), skipped),
	})

	in.log.Info("Step 2/2: extracting, embedding and storing", "files", len(files))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Concurrency)

	for _, f := range files {
		g.Go(func() error {
			n, skip, err := in.ingestFile(gctx, dir, f)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.Failed++
				in.log.Error("ingesting file failed", "file", f, "error", err)
			case skip:
				r.Skipped++
			default:
				r.Ingested++
				r.Chunks += n
			}
			return nil
		})
	}
	err = g.Wait()

	step := StepResult{
		Name:    "Ingest",
		Summary: fmt.Sprintf("Stored %d chunks from %d files, %d skipped, %d failed", r.Chunks, r.Ingested, r.Skipped, r.Failed),
		Err:     err,
	}
	r.Steps = append(r.Steps, step)
	return r, err
}

// scan lists supported files in lexical order and counts the rest.
func (in *Ingester) scan(dir string) ([]string, int, error) {
	var files []string
	skipped := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch kindOf(path) {
		case kindPDF, kindText:
			files = append(files, path)
		case kindImage:
			in.log.Info("skipping image, OCR is not supported", "file", path)
			skipped++
		default:
			in.log.Debug("skipping unsupported file", "file", path)
			skipped++
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, skipped, nil
}

// ingestFile returns the number of stored chunks, or skip=true when the
// file was already ingested or held no text.
func (in *Ingester) ingestFile(ctx context.Context, dir, path string) (int, bool, error) {
	key := storeKey(dir, path)
	done, err := in.store.HasCourseFile(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if done {
		in.log.Debug("already ingested", "file", key)
		return 0, true, nil
	}

	text, err := extract(path)
	if err != nil {
		return 0, false, err
	}
	chunks := Chunk(text, in.opts.ChunkWords)
	if len(chunks) == 0 {
		in.log.Warn("no extractable text", "file", key)
		return 0, true, nil
	}

	var records []model.CourseChunk
	for start := 0; start < len(chunks); start += in.opts.BatchSize {
		end := min(start+in.opts.BatchSize, len(chunks))
		vecs, err := in.embedder.Embed(ctx, chunks[start:end])
		if err != nil {
			return 0, false, fmt.Errorf("embedding chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return 0, false, fmt.Errorf("embedding chunks %d-%d: got %d vectors", start, end, len(vecs))
		}
		for i, v := range vecs {
			records = append(records, model.CourseChunk{Filepath: key, Content: chunks[start+i], Embedding: v})
		}
	}

	// One insert per file, so a failed file never leaves partial chunks.
	if err := in.store.InsertCourseChunks(ctx, records); err != nil {
		return 0, false, err
	}
	in.log.Info("ingested", "file", key, "chunks", len(records))
	return len(records), false, nil
}

func extract(path string) (string, error) {
	switch kindOf(path) {
	case kindPDF:
		doc, err := pdf.ExtractFile(path)
		if err != nil {
			return "", err
		}
		return doc.Text, nil
	case kindText:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return pdf.Normalize(string(data)), nil
	}
	return "", fmt.Errorf("unsupported file %s", path)
}

// storeKey is the path relative to the ingestion root, with forward slashes.
func storeKey(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Chunk splits text into chunks of at most size words.
func Chunk(text string, size int) []string {
	words := strings.Fields(text)
	if size <= 0 {
		size = 800
	}
	var out []string
	for i := 0; i < len(words); i += size {
		end := min(i+size, len(words))
		out = append(out, strings.Join(words[i:end], " "))
	}
	return out
}
