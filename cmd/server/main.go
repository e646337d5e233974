package main

import (
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"

	"github.com/omniledger/usqf/internal/demo"
	"github.com/omniledger/usqf/pkg/dsrconfig"
	"github.com/omniledger/usqf/pkg/dsrouter"
	"github.com/omniledger/usqf/pkg/httpkit"
	"github.com/omniledger/usqf/pkg/mzap"
	"github.com/omniledger/usqf/pkg/usqf"
)

func main() {
	logger, err := mzap.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Errorf("server failed: %v", err)
		os.Exit(1)
	}
}

func run(logger *mzap.Logger) error {
	cfg, err := dsrconfig.Load()
	if err != nil {
		return fmt.Errorf("loading pool config: %w", err)
	}

	router, err := dsrouter.New(cfg, dsrouter.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("dialing datasource router: %w", err)
	}

	defer func() {
		if cerr := router.Close(); cerr != nil {
			logger.Errorf("closing router: %v", cerr)
		}
	}()

	registry := usqf.NewRegistry()
	registry.MustRegister(demo.NewUserDescriptor())
	registry.Seal()

	composer := usqf.NewComposer(registry, usqf.WithLogger(logger), usqf.WithTracer(otel.Tracer("usqf/server")))

	users, err := demo.NewUserRepository(router, composer, registry)
	if err != nil {
		return fmt.Errorf("wiring user repository: %w", err)
	}

	app := fiber.New()
	app.Use(httpkit.WithCorrelationID())
	app.Use(httpkit.WithAccessLog(logger))
	app.Use(httpkit.WithCORS())
	app.Get("/health", httpkit.Health)

	app.Get("/users", func(c *fiber.Ctx) error {
		req, err := httpkit.ParseDataTableRequest(c)
		if err != nil {
			return httpkit.WriteError(c, err)
		}

		ctx := dsrouter.WithRouting(c.Context(), dsrouter.Read)

		page, err := users.FindAll(ctx, req)
		if err != nil {
			return httpkit.WriteError(c, err)
		}

		return httpkit.WritePage(c, page)
	})

	return app.Listen(":8080")
}
