package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/statstutor/internal/chat"
	"github.com/TobiSchelling/statstutor/internal/fetch"
	"github.com/TobiSchelling/statstutor/internal/transcript"
	"github.com/TobiSchelling/statstutor/internal/tutor"
)

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps an APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

const retryAfterSeconds = "5"

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: message, Code: code}})
}

// fail maps a service error to a status code. Unknown errors are logged and
// hidden behind a generic 500.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tutor.ErrEmptyAnswer):
		respondError(c, http.StatusBadRequest, "empty_answer", "Student answer cannot be empty.")
	case errors.Is(err, chat.ErrEmptyMessage):
		respondError(c, http.StatusBadRequest, "empty_message", "Message cannot be empty.")
	case errors.Is(err, tutor.ErrEmptyArticle):
		respondError(c, http.StatusBadRequest, "empty_article", "Article text is empty.")
	case errors.Is(err, fetch.ErrInvalidURL):
		respondError(c, http.StatusBadRequest, "invalid_url", "URL must be an absolute http or https address.")
	case errors.Is(err, tutor.ErrConversationNotFound), errors.Is(err, transcript.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found", "Conversation not found.")
	case errors.Is(err, tutor.ErrConversationCompleted):
		respondError(c, http.StatusConflict, "conversation_completed", "This conversation is already completed. Start a new analysis to continue.")
	case errors.Is(err, tutor.ErrModelUnavailable), errors.Is(err, chat.ErrModelUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		s.log.Warn("model unavailable", "path", c.FullPath(), "error", err)
		c.Header("Retry-After", retryAfterSeconds)
		respondError(c, http.StatusServiceUnavailable, "model_unavailable", "The tutor is temporarily unavailable. Please try again shortly.")
	default:
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "internal", "Internal server error.")
	}
}
