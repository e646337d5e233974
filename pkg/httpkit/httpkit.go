// Package httpkit is the thin illustrative boundary between the framework's
// error/page envelopes and an HTTP transport. Spec §1 scopes HTTP
// controllers and the OpenAPI surface out of this repo; httpkit only carries
// the two header-driven behaviors spec §6 calls out as binding on the core
// (trace-ID propagation, client-IP resolution) plus the envelope writers a
// controller layer would call, grounded on the teacher's
// common/net/http/httputils.go and errors.go.
package httpkit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/iancoleman/strcase"

	"github.com/omniledger/usqf/pkg/usqf"
	"github.com/omniledger/usqf/pkg/usqferr"
)

const (
	headerTraceID      = "X-Trace-Id"
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-Ip"
)

// TraceID reads X-Trace-Id off the request, generating one if absent, per
// spec §6.
func TraceID(c *fiber.Ctx) string {
	if id := c.Get(headerTraceID); id != "" {
		return id
	}

	return uuid.NewString()
}

// RemoteAddress resolves the client IP honoring X-Forwarded-For then
// X-Real-Ip then the raw remote address, per spec §4.6/§6. It mirrors the
// teacher's GetRemoteAddress but works off fiber's header/IP accessors.
func RemoteAddress(c *fiber.Ctx) string {
	if forwardedFor := c.Get(headerForwardedFor); forwardedFor != "" {
		parts := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(parts[0])
	}

	if realIP := c.Get(headerRealIP); realIP != "" {
		return realIP
	}

	return c.IP()
}

// WriteError renders err as the error envelope from spec §4.6, picking an
// HTTP status from the error's Code.
func WriteError(c *fiber.Ctx, err error) error {
	traceID := TraceID(c)
	envelope := usqferr.ToEnvelope(err, c.Path(), c.Method(), RemoteAddress(c), traceID, time.Now().UTC())

	return c.Status(statusFor(envelope.ErrorCode)).JSON(envelope)
}

func statusFor(code usqferr.Code) int {
	switch code {
	case usqferr.CodeValidationFailed, usqferr.CodeConstraintViolation:
		return http.StatusBadRequest
	case usqferr.CodeUnauthorized:
		return http.StatusUnauthorized
	case usqferr.CodeForbidden:
		return http.StatusForbidden
	case usqferr.CodeNotFound:
		return http.StatusNotFound
	case usqferr.CodeConflict:
		return http.StatusConflict
	case usqferr.CodeInfrastructureUnavailable:
		return http.StatusServiceUnavailable
	case usqferr.CodeInvariantViolation, usqferr.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// successEnvelope is the wire shape of spec §6's success response.
type successEnvelope[T any] struct {
	Success bool           `json:"success"`
	Data    usqf.Page[T] `json:"data"`
}

// WritePage renders a successful Page[T] the way spec §6 describes.
func WritePage[T any](c *fiber.Ctx, page usqf.Page[T]) error {
	return c.JSON(successEnvelope[T]{Success: true, Data: page})
}

// ParseDataTableRequest decodes the query-string form of spec §6's request
// envelope: page/size, an optional free-text search, and repeated
// columns[n].name/columns[n].filter/columns[n].sort triples. Column names
// arrive in whatever casing the caller's client convention uses
// (snake_case, kebab-case); they are normalized to the lowerCamelCase the
// descriptor's dotted paths use before resolution, the same normalization
// iancoleman/strcase performs for the teacher's other wire-boundary layers.
func ParseDataTableRequest(c *fiber.Ctx) (*usqf.DataTableRequest, error) {
	page, err := strconv.Atoi(c.Query("page", "0"))
	if err != nil {
		return nil, usqferr.NewValidation("page must be an integer", usqferr.FieldValidation{Field: "page", RejectedValue: c.Query("page")})
	}

	size, err := strconv.Atoi(c.Query("size", "20"))
	if err != nil {
		return nil, usqferr.NewValidation("size must be an integer", usqferr.FieldValidation{Field: "size", RejectedValue: c.Query("size")})
	}

	req := &usqf.DataTableRequest{
		Pagination: usqf.Pagination{Page: page, Size: size},
		SearchFilter: usqf.SearchFilter{
			SearchText: c.Query("searchText"),
		},
	}

	for i := 0; ; i++ {
		name := c.Query(columnQueryKey(i, "name"))
		if name == "" {
			break
		}

		req.Columns = append(req.Columns, usqf.Column{
			ColumnName: strcase.ToLowerCamel(name),
			Filter:     c.Query(columnQueryKey(i, "filter")),
			Sort:       c.Query(columnQueryKey(i, "sort")),
		})
	}

	return req, nil
}

func columnQueryKey(i int, field string) string {
	return "columns[" + strconv.Itoa(i) + "]." + field
}
