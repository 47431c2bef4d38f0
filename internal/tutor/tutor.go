// Package tutor runs guided article-analysis conversations: it opens
// sessions, turns each student answer into a structured tutor reply and
// decides when a conversation is complete.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/statstutor/internal/llm"
	"github.com/TobiSchelling/statstutor/internal/lock"
	"github.com/TobiSchelling/statstutor/internal/logger"
	"github.com/TobiSchelling/statstutor/internal/model"
	"github.com/TobiSchelling/statstutor/internal/prompt"
	"github.com/TobiSchelling/statstutor/internal/rag"
	"github.com/TobiSchelling/statstutor/internal/reply"
	"github.com/TobiSchelling/statstutor/internal/retry"
	"github.com/TobiSchelling/statstutor/internal/topics"
)

var (
	ErrEmptyAnswer           = errors.New("student answer is empty")
	ErrEmptyArticle          = errors.New("article text is empty")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrConversationCompleted = errors.New("conversation is already completed")
	// ErrModelUnavailable is retryable: the model call failed or timed out.
	ErrModelUnavailable = errors.New("model unavailable")
)

// Store is the persistence the controller needs.
type Store interface {
	CreateArticle(ctx context.Context, a *model.Article) error
	GetArticle(ctx context.Context, id string) (*model.Article, error)
	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	AppendTurn(ctx context.Context, t *model.Turn) error
	ListTurns(ctx context.Context, conversationID string) ([]model.Turn, error)
}

// Retriever fetches course context for an answer. It must not fail.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) []rag.Chunk
}

// Options tunes the controller. Zero values select defaults.
type Options struct {
	RetrievalK     int
	MaxTokens      int
	TitleCharLimit int
	Timeout        time.Duration // per model call
	ReadPolicy     retry.Policy
}

// Service is the turn controller.
type Service struct {
	store     Store
	provider  llm.Provider
	retriever Retriever
	composer  *prompt.Composer
	locker    lock.Locker
	opts      Options
	log       *logger.Logger
}

// New creates a controller. A nil locker selects an in-process lock and a
// nil composer one with the default article budget.
func New(store Store, provider llm.Provider, retriever Retriever, composer *prompt.Composer, locker lock.Locker, opts Options, log *logger.Logger) *Service {
	if composer == nil {
		composer = prompt.New(0)
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	if log == nil {
		log = logger.NewNop()
	}
	if opts.RetrievalK <= 0 {
		opts.RetrievalK = rag.DefaultK
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.TitleCharLimit <= 0 {
		opts.TitleCharLimit = 80
	}
	if opts.ReadPolicy.Attempts == 0 {
		opts.ReadPolicy = retry.DefaultPolicy
	}
	return &Service{
		store:     store,
		provider:  provider,
		retriever: retriever,
		composer:  composer,
		locker:    locker,
		opts:      opts,
		log:       log,
	}
}

// ArticleInput is a validated article ready for a session.
type ArticleInput struct {
	Text   string
	Title  string // optional; derived from the text when empty
	Source string
}

// StartResult is the outcome of opening a session.
type StartResult struct {
	ConversationID string
	ArticleID      string
	Title          string
	FirstQuestion  string
}

// Start asks the model for the opening question, then stores the article,
// the conversation and the opening message as the first AI turn. Nothing is
// stored when the model call fails.
func (s *Service) Start(ctx context.Context, in ArticleInput) (*StartResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyArticle
	}

	first, err := s.complete(ctx, llm.Request{
		Messages:  s.composer.Start(in.Text),
		MaxTokens: s.opts.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	article := &model.Article{
		ID:       uuid.NewString(),
		Title:    strings.TrimSpace(in.Title),
		FullText: in.Text,
		Source:   in.Source,
	}
	if err := s.store.CreateArticle(ctx, article); err != nil {
		return nil, fmt.Errorf("creating article: %w", err)
	}

	conv := &model.Conversation{ID: uuid.NewString(), ArticleID: article.ID}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	turn := &model.Turn{ConversationID: conv.ID, Role: model.RoleAI, Content: first}
	if err := s.store.AppendTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("storing opening turn: %w", err)
	}

	s.log.Info("conversation started", "conversation_id", conv.ID, "article_id", article.ID, "chars", len(in.Text))
	return &StartResult{
		ConversationID: conv.ID,
		ArticleID:      article.ID,
		Title:          article.DisplayTitle(s.opts.TitleCharLimit),
		FirstQuestion:  first,
	}, nil
}

// Continue records the student's answer and returns the tutor's reply.
// The answer is persisted before the model is called, so a model failure
// leaves it in the log and returns ErrModelUnavailable.
func (s *Service) Continue(ctx context.Context, conversationID, answer string) (reply.Reply, error) {
	if strings.TrimSpace(answer) == "" {
		return reply.Reply{}, ErrEmptyAnswer
	}

	unlock, err := s.locker.Lock(ctx, conversationID)
	if err != nil {
		return reply.Reply{}, fmt.Errorf("locking conversation: %w", err)
	}
	defer unlock()

	conv, err := retry.Do(ctx, s.opts.ReadPolicy, func() (*model.Conversation, error) {
		return s.store.GetConversation(ctx, conversationID)
	})
	if err != nil {
		return reply.Reply{}, fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil {
		return reply.Reply{}, ErrConversationNotFound
	}

	history, err := s.listTurns(ctx, conversationID)
	if err != nil {
		return reply.Reply{}, err
	}
	if stateOf(history) == StateCompleted {
		return reply.Reply{}, ErrConversationCompleted
	}
	coverage := DeriveCoverage(history)

	student := &model.Turn{ConversationID: conversationID, Role: model.RoleStudent, Content: answer}
	if err := s.store.AppendTurn(ctx, student); err != nil {
		return reply.Reply{}, fmt.Errorf("storing student turn: %w", err)
	}

	article, err := retry.Do(ctx, s.opts.ReadPolicy, func() (*model.Article, error) {
		return s.store.GetArticle(ctx, conv.ArticleID)
	})
	if err != nil {
		return reply.Reply{}, fmt.Errorf("loading article: %w", err)
	}
	if article == nil {
		return reply.Reply{}, fmt.Errorf("article %s of conversation %s is missing", conv.ArticleID, conversationID)
	}

	var courseContext string
	if s.retriever != nil {
		courseContext = rag.FormatContext(s.retriever.Retrieve(ctx, answer, s.opts.RetrievalK))
	}

	raw, err := s.complete(ctx, llm.Request{
		Messages: s.composer.Continue(prompt.ContinueInput{
			Answer:      answer,
			History:     history,
			ArticleText: article.FullText,
			Context:     courseContext,
			Coverage:    coverage,
		}),
		MaxTokens: s.opts.MaxTokens,
		JSON:      true,
	})
	if err != nil {
		s.log.Error("model call failed, student turn kept", "conversation_id", conversationID, "error", err)
		return reply.Reply{}, err
	}

	r, decodeErr := reply.Decode(raw)
	if decodeErr != nil {
		s.log.Warn("model reply repaired", "conversation_id", conversationID, "error", decodeErr)
	}
	r = s.settle(r, decodeErr, answer, coverage)

	aiTurn := &model.Turn{ConversationID: conversationID, Role: model.RoleAI, Content: reply.Encode(r)}
	if err := s.store.AppendTurn(ctx, aiTurn); err != nil {
		return reply.Reply{}, fmt.Errorf("storing tutor turn: %w", err)
	}

	if r.Final() {
		s.log.Info("conversation completed", "conversation_id", conversationID, "reason", r.CompletionReason)
	}
	return r, nil
}

// settle applies the completion rules to a decoded reply and attributes
// its follow-up question to a category.
func (s *Service) settle(r reply.Reply, decodeErr error, answer string, coverage *topics.Coverage) reply.Reply {
	switch {
	case IsStopRequest(answer):
		r.FollowupQuestion = nil
		r.Category = ""
		r.CompletionReason = reply.ReasonUserRequested
		return r
	case coverage.Complete():
		r.FollowupQuestion = nil
		r.Category = ""
		r.CompletionReason = reply.ReasonAllTopicsCovered
		return r
	}

	r.CompletionReason = ""
	if strings.TrimSpace(r.Followup()) == "" {
		if errors.Is(decodeErr, reply.ErrMalformedReply) {
			// The fallback contract keeps the empty follow-up.
			r.FollowupQuestion = reply.Question("")
			r.Category = ""
			return r
		}
		next := coverage.Remaining()[0]
		r.FollowupQuestion = reply.Question(next.Example)
		r.Category = next.Key
		return r
	}

	if cat, ok := attribute(coverage, r.Category, r.Followup()); ok {
		r.Category = cat.Key
	}
	return r
}

// complete calls the model once under the configured timeout.
func (s *Service) complete(ctx context.Context, req llm.Request) (string, error) {
	if s.provider == nil || !s.provider.IsConfigured() {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, llm.ErrNotConfigured)
	}
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.opts.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
	}
	defer cancel()

	out, err := s.provider.Complete(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return out, nil
}

func (s *Service) listTurns(ctx context.Context, conversationID string) ([]model.Turn, error) {
	turns, err := retry.Do(ctx, s.opts.ReadPolicy, func() ([]model.Turn, error) {
		return s.store.ListTurns(ctx, conversationID)
	})
	if err != nil {
		return nil, fmt.Errorf("loading turns: %w", err)
	}
	return turns, nil
}
