package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/soulmap/server/internal/observability"
)

// HeaderRequestID carries the request id in and out.
const HeaderRequestID = echo.HeaderXRequestID

// RequestContext attaches an observability.RequestContext to every request,
// echoes the request id and records access logs and HTTP metrics.
// metrics may be nil.
func RequestContext(logger *slog.Logger, metrics *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}

			reqCtx := observability.NewRequestContext(logger, req.Header.Get(HeaderRequestID), route, c.QueryParam("userId"))
			c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))
			c.Response().Header().Set(HeaderRequestID, reqCtx.RequestID)

			err := next(c)
			if err != nil {
				// Let echo render the error so the recorded status is final.
				c.Error(err)
			}

			status := c.Response().Status
			duration := reqCtx.Duration()
			if metrics != nil {
				metrics.HTTPRequests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
				metrics.HTTPDuration.WithLabelValues(req.Method, route).Observe(duration.Seconds())
			}

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.Int("status", status),
				slog.Int64(observability.LogFieldDuration, duration.Milliseconds()),
			}
			switch {
			case status >= 500:
				reqCtx.Warn("request failed", attrs...)
			case duration > time.Second:
				reqCtx.Info("slow request", attrs...)
			default:
				reqCtx.Debug("request served", attrs...)
			}
			return nil
		}
	}
}
