package server

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/statstutor/internal/logger"
)

// newCORS allows the configured origins plus any origin matching the
// preview pattern. Entries without an http(s) scheme are dropped.
func newCORS(origins []string, previewPattern string, log *logger.Logger) (gin.HandlerFunc, error) {
	var allowed []string
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			log.Warn("ignoring CORS origin without http(s) scheme", "origin", o)
			continue
		}
		allowed = append(allowed, o)
	}

	cfg := cors.Config{
		AllowOrigins:     allowed,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if previewPattern != "" {
		re, err := regexp.Compile(previewPattern)
		if err != nil {
			return nil, fmt.Errorf("compiling preview origin pattern: %w", err)
		}
		cfg.AllowOriginFunc = re.MatchString
	}
	if len(cfg.AllowOrigins) == 0 && cfg.AllowOriginFunc == nil {
		cfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	return cors.New(cfg), nil
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []any{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id := c.Param("conversation_id"); id != "" {
			fields = append(fields, "conversation_id", id)
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
