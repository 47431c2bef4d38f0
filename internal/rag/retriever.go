// Package rag retrieves course-material context for a query.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/statstutor/internal/llm"
	"github.com/TobiSchelling/statstutor/internal/logger"
	"github.com/TobiSchelling/statstutor/internal/model"
	"github.com/TobiSchelling/statstutor/internal/retry"
)

// NoContext is substituted into prompts when nothing was retrieved.
const NoContext = "No relevant course materials retrieved."

// DefaultK is the number of chunks retrieved when k is not positive.
const DefaultK = 5

// Index is a ranked similarity search over course material.
type Index interface {
	SearchCourseChunks(ctx context.Context, embedding []float32, k int) ([]model.CourseChunk, error)
}

// Chunk is one retrieved piece of course material.
type Chunk struct {
	Content  string
	Filepath string
}

// Retriever embeds a query and searches the course-material index.
type Retriever struct {
	embedder llm.Embedder
	index    Index
	policy   retry.Policy
	timeout  time.Duration
	log      *logger.Logger
}

// NewRetriever creates a retriever. timeout bounds each attempt of the
// embed and search calls.
func NewRetriever(embedder llm.Embedder, index Index, policy retry.Policy, timeout time.Duration, log *logger.Logger) *Retriever {
	if log == nil {
		log = logger.NewNop()
	}
	return &Retriever{embedder: embedder, index: index, policy: policy, timeout: timeout, log: log}
}

// Retrieve returns up to k chunks relevant to query. It fails open: any
// error is logged and yields an empty result.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) []Chunk {
	if k <= 0 {
		k = DefaultK
	}
	if strings.TrimSpace(query) == "" || r.embedder == nil || r.index == nil {
		return nil
	}

	chunks, err := r.retrieve(ctx, query, k)
	if err != nil {
		r.log.Warn("course retrieval failed, continuing without context", "error", err)
		return nil
	}
	return chunks
}

func (r *Retriever) retrieve(ctx context.Context, query string, k int) ([]Chunk, error) {
	vecs, err := retry.Do(ctx, r.policy, func() ([][]float32, error) {
		callCtx, cancel := r.withTimeout(ctx)
		defer cancel()
		return r.embedder.Embed(callCtx, []string{query})
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding query: empty embedding")
	}

	found, err := retry.Do(ctx, r.policy, func() ([]model.CourseChunk, error) {
		callCtx, cancel := r.withTimeout(ctx)
		defer cancel()
		return r.index.SearchCourseChunks(callCtx, vecs[0], k)
	})
	if err != nil {
		return nil, fmt.Errorf("searching course materials: %w", err)
	}

	out := make([]Chunk, 0, len(found))
	for _, c := range found {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		out = append(out, Chunk{Content: c.Content, Filepath: c.Filepath})
	}
	return out, nil
}

func (r *Retriever) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// FormatContext joins chunk contents for prompt injection, or returns
// NoContext when there are none.
func FormatContext(chunks []Chunk) string {
	if len(chunks) == 0 {
		return NoContext
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n")
}
