// Package transcript exports a conversation's turn log and renders it for
// reading.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/statstutor/internal/model"
)

// ErrNotFound is returned when the conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store is the read access the exporter needs.
type Store interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	GetArticle(ctx context.Context, id string) (*model.Article, error)
	ListTurns(ctx context.Context, conversationID string) ([]model.Turn, error)
}

// Entry is one exported turn. Content is passed through unchanged, so AI
// entries after the opening hold serialized replies.
type Entry struct {
	Timestamp time.Time  `json:"timestamp"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
}

// Transcript is the exported form of a conversation.
type Transcript struct {
	ConversationID string  `json:"conversation_id"`
	ArticleID      string  `json:"article_id"`
	ArticleTitle   string  `json:"article_title"`
	Entries        []Entry `json:"transcript"`
}

// Exporter reads transcripts from a store.
type Exporter struct {
	store      Store
	titleLimit int
}

// NewExporter creates an exporter. titleLimit bounds titles derived from
// article text.
func NewExporter(store Store, titleLimit int) *Exporter {
	if titleLimit <= 0 {
		titleLimit = 80
	}
	return &Exporter{store: store, titleLimit: titleLimit}
}

// Export returns the conversation's turns in log order.
func (e *Exporter) Export(ctx context.Context, conversationID string) (*Transcript, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrNotFound
	}

	title := "Untitled article"
	article, err := e.store.GetArticle(ctx, conv.ArticleID)
	if err != nil {
		return nil, fmt.Errorf("loading article: %w", err)
	}
	if article != nil {
		title = article.DisplayTitle(e.titleLimit)
	}

	turns, err := e.store.ListTurns(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading turns: %w", err)
	}

	entries := make([]Entry, len(turns))
	for i, t := range turns {
		entries[i] = Entry{Timestamp: t.CreatedAt, Role: t.Role, Content: t.Content}
	}
	return &Transcript{
		ConversationID: conv.ID,
		ArticleID:      conv.ArticleID,
		ArticleTitle:   title,
		Entries:        entries,
	}, nil
}
