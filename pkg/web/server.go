package web

import (
	"log/slog"
	"strconv"

	"github.com/dukex/ifured/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// Server exposes the run journal read-only.
type Server struct {
	logger   *slog.Logger
	journal  persistence.Persistence
	validate *validator.Validate
}

func NewServer(logger *slog.Logger, journal persistence.Persistence) *Server {
	return &Server{
		logger:   logger,
		journal:  journal,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Server) App() *fiber.App {
	handlers := NewAPIHandlers(s.journal, s.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("ifured journal")
	})

	r := app.Group("/runs")
	r.Get("/", handlers.GetRuns)
	r.Get("/:id", handlers.GetRun)
	r.Get("/:id/steps", handlers.GetRunSteps)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (s *Server) Start(port int) error {
	s.logger.Info("Serving run journal", "port", port)

	return s.App().Listen(":" + strconv.Itoa(port))
}
