package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/TobiSchelling/statstutor/internal/model"
)

// InsertCourseChunks stores chunks in one batch.
func (s *Store) InsertCourseChunks(ctx context.Context, chunks []model.CourseChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO course_materials (filepath, content, embedding) VALUES ($1, $2, $3)`,
			c.Filepath, c.Content, pgvector.NewVector(c.Embedding),
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("inserting chunk %d from %s: %w", i, chunks[i].Filepath, err)
		}
	}
	return nil
}

// HasCourseFile reports whether any chunk from filepath is stored.
func (s *Store) HasCourseFile(ctx context.Context, filepath string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM course_materials WHERE filepath = $1)`, filepath,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking course file: %w", err)
	}
	return exists, nil
}

// SearchCourseChunks returns up to k chunks nearest to the query embedding
// by cosine distance.
func (s *Store) SearchCourseChunks(ctx context.Context, query []float32, k int) ([]model.CourseChunk, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(query)

	var rows pgx.Rows
	var err error
	if s.matchFunction != "" {
		// The name is validated in Open.
		rows, err = s.pool.Query(ctx,
			`SELECT id, filepath, content, similarity FROM `+s.matchFunction+`($1, $2)`, vec, k)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, filepath, content, 1 - (embedding <=> $1) AS similarity
			FROM course_materials
			WHERE embedding IS NOT NULL AND vector_dims(embedding) = $3
			ORDER BY embedding <=> $1
			LIMIT $2`,
			vec, k, len(query))
	}
	if err != nil {
		return nil, fmt.Errorf("searching course materials: %w", err)
	}
	defer rows.Close()

	var out []model.CourseChunk
	for rows.Next() {
		var c model.CourseChunk
		if err := rows.Scan(&c.ID, &c.Filepath, &c.Content, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
