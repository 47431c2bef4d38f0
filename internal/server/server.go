// Package server exposes the tutor, transcript export and general chat over
// HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/statstutor/internal/config"
	"github.com/TobiSchelling/statstutor/internal/fetch"
	"github.com/TobiSchelling/statstutor/internal/logger"
	"github.com/TobiSchelling/statstutor/internal/pdf"
	"github.com/TobiSchelling/statstutor/internal/reply"
	"github.com/TobiSchelling/statstutor/internal/transcript"
	"github.com/TobiSchelling/statstutor/internal/tutor"
	"github.com/TobiSchelling/statstutor/internal/validate"
)

// Tutor runs guided article-analysis conversations.
type Tutor interface {
	Start(ctx context.Context, in tutor.ArticleInput) (*tutor.StartResult, error)
	Continue(ctx context.Context, conversationID, answer string) (reply.Reply, error)
	Progress(ctx context.Context, conversationID string) (*tutor.Progress, error)
}

// Exporter builds conversation transcripts.
type Exporter interface {
	Export(ctx context.Context, conversationID string) (*transcript.Transcript, error)
}

// Chat answers general statistics questions.
type Chat interface {
	Ask(ctx context.Context, message string) (string, error)
	Stream(ctx context.Context, message string, onDelta func(string) error) error
}

// Validator screens extracted article text.
type Validator interface {
	Validate(text string) validate.Result
}

// Fetcher downloads a web article.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Article, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Tutor       Tutor
	Exporter    Exporter
	Chat        Chat
	Validator   Validator
	Fetcher     Fetcher
	ExtractPDF  func(data []byte) (*pdf.Document, error) // defaults to pdf.Extract
	Suggestions config.Suggestions
	Log         *logger.Logger
}

// Options configures the HTTP layer.
type Options struct {
	Origins              []string
	PreviewOriginPattern string
	MaxUploadBytes       int64
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	opts   Options
	log    *logger.Logger
	engine *gin.Engine
}

// New builds the router. It fails only on an invalid preview origin pattern.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.ExtractPDF == nil {
		deps.ExtractPDF = pdf.Extract
	}
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}

	corsMiddleware, err := newCORS(opts.Origins, opts.PreviewOriginPattern, deps.Log)
	if err != nil {
		return nil, err
	}

	s := &Server{deps: deps, opts: opts, log: deps.Log, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLogger(deps.Log), corsMiddleware)
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Backend is running. Use /ask/chat to interact."})
	})
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	aa := s.engine.Group("/articleanalysis")
	aa.POST("/start", s.handleStart)
	aa.POST("/start-url", s.handleStartURL)
	aa.POST("/continue", s.handleContinue)
	aa.GET("/export/:conversation_id", s.handleExport)
	aa.GET("/progress/:conversation_id", s.handleProgress)

	s.engine.POST("/ask/chat", s.handleChat)
	s.engine.POST("/chat-stream", s.handleChatStream)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log *logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info("HTTP server listening", "addr", addr)

	select {
	case <-ctx.Done():
		log.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
