package httpkit

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniledger/usqf/pkg/usqf"
	"github.com/omniledger/usqf/pkg/usqferr"
)

func TestTraceIDGeneratesWhenAbsent(t *testing.T) {
	app := fiber.New()

	var got string

	app.Get("/", func(c *fiber.Ctx) error {
		got = TraceID(c)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, got)
}

func TestTraceIDHonorsIncomingHeader(t *testing.T) {
	app := fiber.New()

	var got string

	app.Get("/", func(c *fiber.Ctx) error {
		got = TraceID(c)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-Id", "trace-123")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "trace-123", got)
}

func TestRemoteAddressPrefersForwardedFor(t *testing.T) {
	app := fiber.New()

	var got string

	app.Get("/", func(c *fiber.Ctx) error {
		got = RemoteAddress(c)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "203.0.113.9", got)
}

func TestWriteErrorMapsValidationToBadRequest(t *testing.T) {
	app := fiber.New()

	app.Get("/", func(c *fiber.Ctx) error {
		return WriteError(c, usqferr.NewValidation("bad field", usqferr.FieldValidation{Field: "x"}))
	})

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestWritePageRendersSuccessEnvelope(t *testing.T) {
	app := fiber.New()

	app.Get("/", func(c *fiber.Ctx) error {
		return WritePage(c, usqf.NewPage(0, 10, 1, []string{"a"}))
	})

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"success":true`)
	assert.Contains(t, string(body), `"a"`)
}

func TestParseDataTableRequestNormalizesColumnCasing(t *testing.T) {
	app := fiber.New()

	var got *usqf.DataTableRequest

	app.Get("/", func(c *fiber.Ctx) error {
		req, err := ParseDataTableRequest(c)
		if err != nil {
			return WriteError(c, err)
		}

		got = req

		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/?page=1&size=5&searchText=jane&columns[0].name=created_at&columns[0].sort=desc", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NotNil(t, got)
	assert.Equal(t, 1, got.Pagination.Page)
	assert.Equal(t, 5, got.Pagination.Size)
	assert.Equal(t, "jane", got.SearchFilter.SearchText)
	require.Len(t, got.Columns, 1)
	assert.Equal(t, "createdAt", got.Columns[0].ColumnName)
}

func TestParseDataTableRequestRejectsNonIntegerPage(t *testing.T) {
	app := fiber.New()

	app.Get("/", func(c *fiber.Ctx) error {
		_, err := ParseDataTableRequest(c)
		if err != nil {
			return WriteError(c, err)
		}

		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/?page=notanumber", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
