// package main provides the entry point and API handlers for the errata-finder microservice,
// which answers which security advisories apply to upgrades of an RPM package.
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ortelius/errata-finder/config"
	"github.com/ortelius/errata-finder/database"
	"github.com/ortelius/errata-finder/errata"
	gqlschema "github.com/ortelius/errata-finder/graphql"
	"github.com/ortelius/errata-finder/util"
)

// usageExample is appended to every 400 response and served by /test
const usageExample = "Example:\ncurl http://<FQDN>/errata?pkg=<nvrea>\n"

type server struct {
	resolver *errata.Resolver
	pinger   errata.Pinger
	logger   *zap.Logger
}

// ============================================================================
// Errata Handlers
// ============================================================================

// GetErrata answers GET /errata?pkg=<nvrea> with the advisories of the package's upgrades
func (s *server) GetErrata(c *fiber.Ctx) error {
	values := c.Context().QueryArgs().PeekMulti("pkg")

	switch {
	case len(values) > 1:
		return c.Status(fiber.StatusBadRequest).SendString("Multiple packages specified.\n" + usageExample)
	case len(values) == 0 || len(values[0]) == 0:
		return c.Status(fiber.StatusBadRequest).SendString("Package not specified.\n" + usageExample)
	}

	pkg := string(values[0])
	records, err := s.resolver.Resolve(c.UserContext(), pkg)
	switch {
	case errors.Is(err, errata.ErrEmptyPackage):
		return c.Status(fiber.StatusBadRequest).SendString("Package not specified.\n" + usageExample)
	case errors.Is(err, errata.ErrInvalidPackage):
		return c.Status(fiber.StatusBadRequest).SendString(err.Error() + "\n" + usageExample)
	case err != nil:
		return fmt.Errorf("failed to resolve advisories for %s: %w", pkg, err)
	}

	s.logger.Debug("Resolved advisories", zap.String("package", pkg), zap.Int("count", len(records)))
	return c.JSON(records)
}

// GetTest answers GET /test with usage text
func GetTest(c *fiber.Ctx) error {
	return c.SendString(usageExample)
}

// GetHealth reports whether the datastore is reachable
func (s *server) GetHealth(c *fiber.Ctx) error {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("Datastore ping failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
			})
		}
	}
	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}

// ============================================================================
// GraphQL Handler
// ============================================================================

// GraphQLHandler handles GraphQL requests
func GraphQLHandler(schema graphql.Schema, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var params struct {
			Query         string                 `json:"query"`
			OperationName string                 `json:"operationName"`
			Variables     map[string]interface{} `json:"variables"`
		}

		if err := c.BodyParser(&params); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"errors": []map[string]interface{}{
					{
						"message": "Invalid request body",
					},
				},
			})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  params.Query,
			VariableValues: params.Variables,
			OperationName:  params.OperationName,
			Context:        c.UserContext(),
		})

		if len(result.Errors) > 0 {
			log.Warn("GraphQL errors", zap.Any("errors", result.Errors))
		}

		return c.JSON(result)
	}
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("Request failed",
				zap.String("path", c.Path()),
				zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
				zap.Error(err))
			return c.Status(code).SendString("Internal server error.\n")
		}
		return c.Status(code).SendString(err.Error())
	}
}

// newApp builds the fiber application around an already connected datastore
func newApp(resolver *errata.Resolver, pinger errata.Pinger, schema graphql.Schema, log *zap.Logger) *fiber.App {
	s := &server{resolver: resolver, pinger: pinger, logger: log}

	app := fiber.New(fiber.Config{
		AppName:      "errata-finder API v1.0",
		ReadTimeout:  time.Second * 60,
		ErrorHandler: errorHandler(log),
	})

	// Middleware
	app.Use(fiberrecover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/", s.GetHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/errata", s.GetErrata)
	app.Get("/test", GetTest)

	api := app.Group("/api/v1")
	api.Post("/graphql", GraphQLHandler(schema, log))

	return app
}

// ============================================================================
// Main
// ============================================================================

func main() {
	cfg, err := config.Load(util.GetEnvDefault("ERRATA_CONFIG", ""))
	if err != nil {
		panic(err)
	}

	log := database.InitLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	// Initialize database connection
	store, err := database.Open(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to open datastore", zap.Error(err))
	}
	defer store.Close()

	resolver := errata.NewResolver(store, log)

	// Initialize GraphQL schema
	gqlschema.InitResolver(resolver)
	schema, err := gqlschema.CreateSchema()
	if err != nil {
		log.Fatal("Failed to create GraphQL schema", zap.Error(err))
	}

	app := newApp(resolver, store, schema, log)

	// Start server
	log.Info("Starting server", zap.String("port", cfg.Server.Port), zap.String("driver", cfg.Database.Driver))
	log.Info("GraphQL endpoint available at /api/v1/graphql")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
