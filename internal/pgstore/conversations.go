package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TobiSchelling/statstutor/internal/model"
)

const uniqueViolation = "23505"

// CreateArticle inserts an article. CreatedAt is set if zero.
func (s *Store) CreateArticle(ctx context.Context, a *model.Article) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO articles (id, title, pdf_text, source, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Title, a.FullText, a.Source, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting article: %w", err)
	}
	return nil
}

// GetArticle returns an article by ID, or nil if it does not exist.
func (s *Store) GetArticle(ctx context.Context, id string) (*model.Article, error) {
	var a model.Article
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, pdf_text, source, created_at FROM articles WHERE id = $1`, id,
	).Scan(&a.ID, &a.Title, &a.FullText, &a.Source, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting article: %w", err)
	}
	return &a, nil
}

// CreateConversation inserts a conversation. CreatedAt is set if zero.
func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, article_id, created_at) VALUES ($1, $2, $3)`,
		c.ID, c.ArticleID, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// GetConversation returns a conversation by ID, or nil if it does not exist.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, article_id, created_at FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.ArticleID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return &c, nil
}

// AppendTurn appends a turn, assigning ID and the next sequence number. Two
// writers racing for the same sequence number are resolved by retrying the
// loser.
func (s *Store) AppendTurn(ctx context.Context, t *model.Turn) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO conversation_turns (conversation_id, seq, role, content, created_at)
			VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_turns WHERE conversation_id = $1), $2, $3, $4)
			RETURNING id, seq`,
			t.ConversationID, string(t.Role), t.Content, t.CreatedAt,
		).Scan(&t.ID, &t.Seq)

		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}
	return nil
}

// ListTurns returns every turn of a conversation in log order.
func (s *Store) ListTurns(ctx context.Context, conversationID string) ([]model.Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, seq, role, content, created_at
		FROM conversation_turns WHERE conversation_id = $1 ORDER BY seq`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		var role string
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Seq, &role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Role = model.Role(role)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
