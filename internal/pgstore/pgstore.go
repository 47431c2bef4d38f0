// Package pgstore is the PostgreSQL store. Course-material embeddings live in
// a pgvector column and are ranked by cosine distance in the database.
package pgstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TobiSchelling/statstutor/internal/logger"
	"github.com/TobiSchelling/statstutor/internal/model"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Store wraps the connection pool.
type Store struct {
	pool          *pgxpool.Pool
	matchFunction string
	log           *logger.Logger
}

// Options configures Open.
type Options struct {
	MaxConns int32
	// MatchFunction, when set, names a set-returning SQL function
	// fn(query_embedding vector, match_count int) used for similarity search
	// instead of the built-in query.
	MatchFunction string
}

// Open connects, verifies the connection and applies pending migrations.
func Open(ctx context.Context, connString string, opts Options, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.MatchFunction != "" && !identPattern.MatchString(opts.MatchFunction) {
		return nil, fmt.Errorf("invalid match function name %q", opts.MatchFunction)
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{pool: pool, matchFunction: opts.MatchFunction, log: log}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Stats counts stored records.
func (s *Store) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	err := s.pool.QueryRow(ctx, `
SELECT
    (SELECT COUNT(*) FROM articles),
    (SELECT COUNT(*) FROM conversations),
    (SELECT COUNT(*) FROM conversation_turns),
    (SELECT COUNT(*) FROM course_materials),
    (SELECT COUNT(DISTINCT filepath) FROM course_materials)`,
	).Scan(&st.Articles, &st.Conversations, &st.Turns, &st.CourseChunks, &st.CourseFiles)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	return &st, nil
}
