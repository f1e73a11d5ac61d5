package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"comment-map/metrics"
)

// requestLogger logs one structured line per request and hands the request
// context a logger carrying the route.
func requestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		logger := base.With().Str("method", c.Request.Method).Str("route", route).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		metrics.RequestDuration.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
		evt := logger.Info()
		if status >= 500 {
			evt = logger.Error()
		} else if status >= 400 {
			evt = logger.Warn()
		}
		evt.Int("status", status).
			Dur("duration", time.Since(start)).
			Int("bytes", c.Writer.Size()).
			Msg("request")
	}
}

// newCORS allows the comma-separated corsOrigins, or every origin when it is
// empty or "*".
func newCORS(corsOrigins string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:           []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:           []string{"Origin", "Content-Type", "Accept"},
		AllowBrowserExtensions: true,
		MaxAge:                 24 * time.Hour,
	}
	if corsOrigins == "" || corsOrigins == "*" {
		cfg.AllowAllOrigins = true
	} else {
		for _, o := range strings.Split(corsOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowOrigins = append(cfg.AllowOrigins, o)
			}
		}
	}
	return cors.New(cfg)
}
