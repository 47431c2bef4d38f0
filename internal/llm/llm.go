package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/statstutor/internal/config"
	"github.com/TobiSchelling/statstutor/internal/logger"
)

// Chat roles understood by both backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	Messages  []Message
	MaxTokens int
	// JSON asks the backend to constrain output to a single JSON object.
	JSON bool
}

// Provider is the interface for LLM providers.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	// Stream calls onDelta with each chunk of generated text as it arrives.
	// Returning an error from onDelta aborts the stream.
	Stream(ctx context.Context, req Request, onDelta func(string) error) error
	IsConfigured() bool
}

// Embedder is the interface for generating embeddings.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrNotConfigured is returned when a provider has no credentials.
var ErrNotConfigured = errors.New("llm provider not configured")

// APIError is a non-2xx answer from a backend.
type APIError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Backend, e.StatusCode, e.Body)
}

// CreateProvider creates an LLM provider based on configuration. openaiModel
// selects the OpenAI model; Ollama always uses its configured local model.
// When Ollama is requested but unreachable, OpenAI is used instead.
func CreateProvider(cfg config.LLM, openaiModel string, log *logger.Logger) Provider {
	if strings.ToLower(cfg.Provider) == "ollama" {
		p := NewOllamaProvider(cfg.OllamaModel, cfg.OllamaURL)
		if p.IsConfigured() {
			log.Info("using ollama", "model", cfg.OllamaModel)
			return p
		}
		log.Warn("ollama not available, trying OpenAI fallback", "url", cfg.OllamaURL)
	}

	p := NewOpenAIProvider(cfg.BaseURL, openaiModel, cfg.APIKey())
	if p.IsConfigured() {
		log.Info("using openai", "model", openaiModel)
	} else {
		log.Warn("no LLM provider available; set "+cfg.APIKeyEnv+" or run Ollama", "model", openaiModel)
	}
	return p
}

// CreateEmbedder creates the embedder matching the configured provider.
func CreateEmbedder(cfg config.LLM) Embedder {
	if strings.ToLower(cfg.Provider) == "ollama" {
		return NewOllamaEmbedder(cfg.OllamaEmbeddingModel, cfg.OllamaURL)
	}
	return NewOpenAIEmbedder(cfg.BaseURL, cfg.EmbeddingModel, cfg.APIKey())
}
