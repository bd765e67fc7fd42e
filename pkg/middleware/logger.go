package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fennel/pkg/context"
)

// quietPrefixes are health and scrape paths that are only logged when they fail.
var quietPrefixes = []string{"/health/", "/metrics"}

// Logger writes one access log line per request. Server errors log at error
// level; client errors at warn.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			if res.Status < http.StatusBadRequest && isQuiet(req.URL.Path) {
				return nil
			}

			ctx := req.Context()
			entry := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id": context.GetRequestID(ctx),
				"user_id":    context.GetUserID(ctx),
				"method":     req.Method,
				"uri":        req.RequestURI,
				"route":      c.Path(),
				"status":     res.Status,
				"remote_ip":  c.RealIP(),
				"user_agent": req.UserAgent(),
				"latency_ms": time.Since(start).Milliseconds(),
				"bytes_out":  res.Size,
				"bytes_in":   req.ContentLength,
			})

			switch {
			case res.Status >= http.StatusInternalServerError:
				entry.Error("Request")
			case res.Status >= http.StatusBadRequest:
				entry.Warn("Request")
			default:
				entry.Info("Request")
			}
			return nil
		}
	}
}

func isQuiet(path string) bool {
	for _, prefix := range quietPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
