package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/statstutor/internal/model"
)

// CreateArticle inserts an article. CreatedAt is set if zero.
func (db *DB) CreateArticle(ctx context.Context, a *model.Article) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO articles (id, title, pdf_text, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.FullText, a.Source, a.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting article: %w", err)
	}
	return nil
}

// GetArticle returns an article by ID, or nil if it does not exist.
func (db *DB) GetArticle(ctx context.Context, id string) (*model.Article, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, title, pdf_text, source, created_at FROM articles WHERE id = ?`, id,
	)
	var a model.Article
	var created string
	err := row.Scan(&a.ID, &a.Title, &a.FullText, &a.Source, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(created)
	return &a, nil
}

// CreateConversation inserts a conversation. CreatedAt is set if zero.
func (db *DB) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO conversations (id, article_id, created_at) VALUES (?, ?, ?)`,
		c.ID, c.ArticleID, c.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// GetConversation returns a conversation by ID, or nil if it does not exist.
func (db *DB) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, article_id, created_at FROM conversations WHERE id = ?`, id,
	)
	var c model.Conversation
	var created string
	err := row.Scan(&c.ID, &c.ArticleID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(created)
	return &c, nil
}

// ListConversations returns the most recent conversations first.
func (db *DB) ListConversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, article_id, created_at FROM conversations ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var c model.Conversation
		var created string
		if err := rows.Scan(&c.ID, &c.ArticleID, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
