package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", `Request body must be JSON with a "message".`)
		return
	}
	answer, err := s.deps.Chat.Ask(c.Request.Context(), req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chatResponse{Response: answer})
}

// handleChatStream writes model deltas as they arrive. Errors before the
// first delta get a normal error response; later ones can only end the body.
func (s *Server) handleChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", `Request body must be JSON with a "message".`)
		return
	}

	started := false
	err := s.deps.Chat.Stream(c.Request.Context(), req.Message, func(delta string) error {
		if !started {
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Header("Cache-Control", "no-cache")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			started = true
		}
		if _, err := c.Writer.WriteString(delta); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})

	switch {
	case err != nil && !started:
		s.fail(c, err)
	case err != nil:
		s.log.Warn("chat stream interrupted", "error", err)
	case !started:
		c.Data(http.StatusOK, "text/plain; charset=utf-8", nil)
	}
}
