package database

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/TobiSchelling/statstutor/internal/model"
)

// InsertCourseChunks stores course-material chunks with their embeddings.
func (db *DB) InsertCourseChunks(ctx context.Context, chunks []model.CourseChunk) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO course_materials (filepath, content, embedding) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		emb, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.Filepath, c.Content, string(emb)); err != nil {
			return fmt.Errorf("inserting chunk from %s: %w", c.Filepath, err)
		}
	}
	return tx.Commit()
}

// HasCourseFile reports whether any chunk from filepath is stored.
func (db *DB) HasCourseFile(ctx context.Context, filepath string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM course_materials WHERE filepath = ?`, filepath,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SearchCourseChunks returns up to k chunks ranked by cosine similarity to
// the query embedding. Chunks whose dimension differs from the query are
// skipped.
func (db *DB) SearchCourseChunks(ctx context.Context, query []float32, k int) ([]model.CourseChunk, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, filepath, content, embedding FROM course_materials`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranked []model.CourseChunk
	for rows.Next() {
		var c model.CourseChunk
		var emb string
		if err := rows.Scan(&c.ID, &c.Filepath, &c.Content, &emb); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(emb), &c.Embedding); err != nil {
			db.log.Warn("skipping chunk with unreadable embedding", "chunk_id", c.ID, "error", err)
			continue
		}
		if len(c.Embedding) != len(query) {
			continue
		}
		c.Similarity = cosineSimilarity(query, c.Embedding)
		ranked = append(ranked, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// if either is the zero vector. a and b must have equal length.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
