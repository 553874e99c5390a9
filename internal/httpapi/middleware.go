package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hostelcore/internal/core"
)

// serializeWrites holds the write lock for every non-read request.
func (s *Server) serializeWrites() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		c.Next()
	}
}

func requestLogger(log core.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request", kv...)
		case status >= http.StatusBadRequest:
			log.Warn("request", kv...)
		default:
			log.Info("request", kv...)
		}
	}
}
