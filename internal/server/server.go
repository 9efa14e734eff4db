package server

import (
	"context"

	"backend-fleettrack/internal/auth"
	"backend-fleettrack/internal/config"
	"backend-fleettrack/internal/fleet"
	"backend-fleettrack/internal/location"
	"backend-fleettrack/internal/metrics"
	"backend-fleettrack/internal/retention"
	"backend-fleettrack/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Hub     *stream.Hub
	Sweeper *retention.Sweeper
	Metrics *metrics.Collector
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	collector := metrics.NewCollector()
	hub := stream.NewHub(redisClient, collector)
	sweeper := retention.NewSweeper(db, cfg.RetentionWindow(), cfg.SweepInterval(), collector)

	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      db,
		Redis:   redisClient,
		Hub:     hub,
		Sweeper: sweeper,
		Metrics: collector,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	adminOnly := auth.RequireAdmin()

	locationSvc := location.NewService(s.DB, s.Hub, s.Metrics)
	fleetSvc := fleet.NewService(s.DB, s.Sweeper, s.Hub)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))
	fleet.RegisterTripRoutes(s.App.Group("/trip"), fleetSvc, jwtMiddleware)
	fleet.RegisterFleetRoutes(s.App.Group("/fleet"), fleetSvc, jwtMiddleware, adminOnly)
	location.RegisterRoutes(s.App.Group("/location"), locationSvc, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Hub, locationSvc.Latest, locationSvc.Ingest)
}

// StartBackground launches the retention sweeper; it stops when ctx is
// cancelled.
func (s *Server) StartBackground(ctx context.Context) {
	go s.Sweeper.Run(ctx)
}
