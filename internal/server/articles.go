package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/statstutor/internal/config"
	"github.com/TobiSchelling/statstutor/internal/fetch"
	"github.com/TobiSchelling/statstutor/internal/transcript"
	"github.com/TobiSchelling/statstutor/internal/tutor"
	"github.com/TobiSchelling/statstutor/internal/validate"
)

// startResponse is returned for both accepted and rejected articles. A
// rejection is still a 200 with is_valid false and null ids.
type startResponse struct {
	ConversationID *string            `json:"conversation_id"`
	Message        string             `json:"message"`
	NextQuestion   *string            `json:"next_question"`
	IsValid        bool               `json:"is_valid"`
	ArticleTitle   string             `json:"article_title,omitempty"`
	Suggestions    config.Suggestions `json:"suggestions"`
}

type startURLRequest struct {
	URL string `json:"url"`
}

type continueRequest struct {
	ConversationID string `json:"conversation_id"`
	StudentAnswer  string `json:"student_answer"`
}

type continueResponse struct {
	Reflection       string  `json:"reflection"`
	Clarification    string  `json:"clarification"`
	FollowupQuestion *string `json:"followup_question"`
	CompletionReason string  `json:"completion_reason,omitempty"`
}

func (s *Server) handleStart(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		if tooLarge(err) {
			respondError(c, http.StatusRequestEntityTooLarge, "upload_too_large",
				fmt.Sprintf("File exceeds the %d MB upload limit.", s.opts.MaxUploadBytes>>20))
			return
		}
		respondError(c, http.StatusBadRequest, "missing_file", `A PDF must be uploaded in the "file" field.`)
		return
	}
	if !isPDF(fh.Header.Get("Content-Type")) {
		respondError(c, http.StatusBadRequest, "invalid_file", "File must be a PDF.")
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.fail(c, fmt.Errorf("opening upload: %w", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		if tooLarge(err) {
			respondError(c, http.StatusRequestEntityTooLarge, "upload_too_large",
				fmt.Sprintf("File exceeds the %d MB upload limit.", s.opts.MaxUploadBytes>>20))
			return
		}
		s.fail(c, fmt.Errorf("reading upload: %w", err))
		return
	}

	doc, err := s.deps.ExtractPDF(data)
	if err != nil {
		s.log.Warn("PDF extraction failed", "file", fh.Filename, "error", err)
		s.reject(c, validate.Result{Reason: validate.ReasonExtractionFailure})
		return
	}
	s.start(c, tutor.ArticleInput{Text: doc.Text, Title: doc.Title, Source: fh.Filename}, "PDF processed successfully.")
}

func (s *Server) handleStartURL(c *gin.Context) {
	var req startURLRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		respondError(c, http.StatusBadRequest, "invalid_request", `Request body must be JSON with a non-empty "url".`)
		return
	}

	a, err := s.deps.Fetcher.Fetch(c.Request.Context(), req.URL)
	if err != nil {
		if errors.Is(err, fetch.ErrInvalidURL) {
			s.fail(c, err)
			return
		}
		s.log.Warn("article fetch failed", "url", req.URL, "error", err)
		s.reject(c, validate.Result{Reason: validate.ReasonExtractionFailure})
		return
	}
	s.start(c, tutor.ArticleInput{Text: a.Text, Title: a.Title, Source: a.URL}, "Article processed successfully.")
}

// start validates the text and opens a conversation.
func (s *Server) start(c *gin.Context, in tutor.ArticleInput, message string) {
	verdict := s.deps.Validator.Validate(in.Text)
	if !verdict.Accepted {
		s.log.Info("article rejected", "source", in.Source, "reason", string(verdict.Reason))
		s.reject(c, verdict)
		return
	}

	res, err := s.deps.Tutor.Start(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, startResponse{
		ConversationID: &res.ConversationID,
		Message:        message,
		NextQuestion:   &res.FirstQuestion,
		IsValid:        true,
		ArticleTitle:   res.Title,
		Suggestions:    s.deps.Suggestions,
	})
}

func (s *Server) reject(c *gin.Context, verdict validate.Result) {
	c.JSON(http.StatusOK, startResponse{
		Message:     verdict.Message(),
		Suggestions: s.deps.Suggestions,
	})
}

func (s *Server) handleContinue(c *gin.Context) {
	var req continueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Request body must be JSON.")
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		respondError(c, http.StatusBadRequest, "invalid_request", "conversation_id is required.")
		return
	}
	if strings.TrimSpace(req.StudentAnswer) == "" {
		respondError(c, http.StatusBadRequest, "empty_answer", "Student answer cannot be empty.")
		return
	}

	r, err := s.deps.Tutor.Continue(c.Request.Context(), req.ConversationID, req.StudentAnswer)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, continueResponse{
		Reflection:       r.Reflection,
		Clarification:    r.Clarification,
		FollowupQuestion: r.FollowupQuestion,
		CompletionReason: r.CompletionReason,
	})
}

func (s *Server) handleExport(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "markdown" && format != "html" {
		respondError(c, http.StatusBadRequest, "invalid_format", "format must be json, markdown or html.")
		return
	}

	t, err := s.deps.Exporter.Export(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	switch format {
	case "markdown":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(transcript.RenderMarkdown(t)))
	case "html":
		page, err := transcript.RenderHTML(t)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	default:
		c.JSON(http.StatusOK, t)
	}
}

func (s *Server) handleProgress(c *gin.Context) {
	p, err := s.deps.Tutor.Progress(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func isPDF(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/pdf"
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
