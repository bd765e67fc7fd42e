package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fennel/pkg/context"
	"github.com/Ramsey-B/fennel/pkg/tracing"
)

const (
	// HeaderUserID carries the gateway-asserted user; it becomes the operator
	// of writes.
	HeaderUserID = "X-User-ID"
	// HeaderAppID carries the calling gateway app.
	HeaderAppID = "X-App-ID"
)

// Context copies request identity from the gateway headers into the request
// context and tags the request span with it.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			userID := req.Header.Get(HeaderUserID)

			ctx := context.SetRequestID(req.Context(), requestID)
			ctx = context.SetUserID(ctx, userID)
			ctx = context.SetAppID(ctx, req.Header.Get(HeaderAppID))
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, c.Path())
			ctx = context.SetRemoteIP(ctx, c.RealIP())

			tracing.SetAttributes(ctx,
				attribute.String("request.id", requestID),
				attribute.String("enduser.id", userID),
			)

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
