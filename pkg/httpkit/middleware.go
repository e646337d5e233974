package httpkit

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	gid "github.com/google/uuid"

	"github.com/omniledger/usqf/pkg/mlog"
)

const (
	headerCorrelationID = "X-Correlation-Id"

	defaultAllowOrigin  = "*"
	defaultAllowMethods = "GET, POST, OPTIONS"
	defaultAllowHeaders = "Accept, Content-Type, Content-Length, X-Trace-Id, X-Correlation-Id"
)

// WithCORS enables cross-origin access to the search endpoints for a
// browser-hosted client. Origins/methods/headers are fixed defaults; a
// deployment fronted by a gateway that already terminates CORS can skip
// mounting this handler.
func WithCORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     defaultAllowOrigin,
		AllowMethods:     defaultAllowMethods,
		AllowHeaders:     defaultAllowHeaders,
		AllowCredentials: true,
	})
}

// WithCorrelationID stamps every request with a correlation ID, generating
// one when the caller didn't supply it, and echoes it back on the response.
func WithCorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cid := c.Get(headerCorrelationID)
		if cid == "" {
			cid = gid.NewString()
		}

		c.Set(headerCorrelationID, cid)
		c.Request().Header.Set(headerCorrelationID, cid)

		return c.Next()
	}
}

// WithAccessLog logs one line per request in a Common Log Format-flavored
// shape and injects a request-scoped logger, carrying the correlation ID,
// into the user context so handlers downstream, and anything beneath them
// that reads its logger via mlog.FromContext, log with the same fields
// attached. The usqf.Composer logs through the logger it was built with,
// not the one on the context.
func WithAccessLog(base mlog.Logger) fiber.Handler {
	if base == nil {
		base = &mlog.NoneLogger{}
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()
		cid := c.Get(headerCorrelationID)

		logger := base.WithFields(headerCorrelationID, cid)
		c.SetUserContext(mlog.ContextWithLogger(c.UserContext(), logger))

		err := c.Next()

		duration := time.Since(start)
		logger.Infof("%s %s %d %s %s", c.Method(), c.Path(), c.Response().StatusCode(), duration, remoteAddressOf(c))

		return err
	}
}

// Health reports liveness for orchestrators polling the service.
func Health(c *fiber.Ctx) error {
	return c.SendString("healthy")
}

func remoteAddressOf(c *fiber.Ctx) string {
	if forwardedFor := c.Get("X-Forwarded-For"); forwardedFor != "" {
		return strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}

	return c.IP()
}
