// Package chat answers stateless general statistics questions, grounded in
// retrieved course material.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/statstutor/internal/llm"
	"github.com/TobiSchelling/statstutor/internal/logger"
	"github.com/TobiSchelling/statstutor/internal/prompt"
	"github.com/TobiSchelling/statstutor/internal/rag"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	// ErrModelUnavailable is retryable: the model call failed or timed out.
	ErrModelUnavailable = errors.New("model unavailable")
)

// Retriever fetches course context for a message.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) []rag.Chunk
}

// Service answers chat messages.
type Service struct {
	provider  llm.Provider
	retriever Retriever
	composer  *prompt.Composer
	maxTokens int
	k         int
	timeout   time.Duration
	log       *logger.Logger
}

// New creates a chat service. timeout bounds a single reply; streamed
// replies are bounded by the caller's context.
func New(provider llm.Provider, retriever Retriever, maxTokens, k int, timeout time.Duration, log *logger.Logger) *Service {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		provider:  provider,
		retriever: retriever,
		composer:  prompt.New(0),
		maxTokens: maxTokens,
		k:         k,
		timeout:   timeout,
		log:       log,
	}
}

// Ask returns a single complete answer.
func (s *Service) Ask(ctx context.Context, message string) (string, error) {
	req, err := s.request(ctx, message)
	if err != nil {
		return "", err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.provider.Complete(ctx, req)
	if err != nil {
		s.log.Error("chat completion failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return strings.TrimSpace(out), nil
}

// Stream calls onDelta with each piece of the answer as the model produces
// it. An error from onDelta stops the stream and is returned.
func (s *Service) Stream(ctx context.Context, message string, onDelta func(string) error) error {
	req, err := s.request(ctx, message)
	if err != nil {
		return err
	}

	var cbErr error
	err = s.provider.Stream(ctx, req, func(delta string) error {
		if delta == "" {
			return nil
		}
		if err := onDelta(delta); err != nil {
			cbErr = err
			return err
		}
		return nil
	})
	if cbErr != nil {
		return cbErr
	}
	if err != nil {
		s.log.Error("chat stream failed", "error", err)
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return nil
}

func (s *Service) request(ctx context.Context, message string) (llm.Request, error) {
	if strings.TrimSpace(message) == "" {
		return llm.Request{}, ErrEmptyMessage
	}
	if s.provider == nil || !s.provider.IsConfigured() {
		return llm.Request{}, fmt.Errorf("%w: %v", ErrModelUnavailable, llm.ErrNotConfigured)
	}

	var courseContext string
	if s.retriever != nil {
		if chunks := s.retriever.Retrieve(ctx, message, s.k); len(chunks) > 0 {
			courseContext = rag.FormatContext(chunks)
		}
	}
	return llm.Request{
		Messages:  s.composer.Chat(message, courseContext),
		MaxTokens: s.maxTokens,
	}, nil
}
