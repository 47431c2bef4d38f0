// Package model holds the records shared by the stores and the tutoring
// services. Records are immutable once written: a conversation changes
// only by appending turns.
package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleStudent Role = "student"
	RoleAI      Role = "ai"
)

// Article is the extracted text of an uploaded research article.
type Article struct {
	ID        string
	Title     string
	FullText  string
	Source    string // original filename or URL
	CreatedAt time.Time
}

// DisplayTitle returns Title, or when it is empty the first line of the
// article text cut to limit characters.
func (a *Article) DisplayTitle(limit int) string {
	if t := strings.TrimSpace(a.Title); t != "" {
		return t
	}
	text := strings.TrimSpace(a.FullText)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	if text == "" {
		return "Untitled article"
	}
	if limit > 0 && utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:limit])) + "..."
	}
	return text
}

// Conversation is one tutoring session over an article.
type Conversation struct {
	ID        string
	ArticleID string
	CreatedAt time.Time
}

// Turn is one entry of a conversation's append-only log. Content of an AI
// turn is either the plain opening message or a serialized structured reply.
type Turn struct {
	ID             int64
	ConversationID string
	Seq            int
	Role           Role
	Content        string
	CreatedAt      time.Time
}

// CourseChunk is a slice of course material with its embedding.
type CourseChunk struct {
	ID         int64
	Filepath   string
	Content    string
	Embedding  []float32
	Similarity float64 // set by similarity search only
}

// Stats summarizes store contents.
type Stats struct {
	Articles      int
	Conversations int
	Turns         int
	CourseChunks  int
	CourseFiles   int
}
