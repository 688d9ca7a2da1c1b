package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/fablechat/fable-backend/internal/api"
	"github.com/fablechat/fable-backend/internal/auth"
	"github.com/fablechat/fable-backend/internal/config"
	"github.com/fablechat/fable-backend/internal/database"
	"github.com/fablechat/fable-backend/internal/providers"
	"github.com/fablechat/fable-backend/internal/providers/openai"
	"github.com/fablechat/fable-backend/internal/repository/postgres"
	"github.com/fablechat/fable-backend/internal/services"
)

func main() {
	rollback := flag.Bool("rollback", false, "roll back the last migration and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	if *rollback {
		if err := database.RollbackMigration(cfg.Database); err != nil {
			logrus.WithError(err).Fatal("Failed to roll back migration")
		}
		logrus.Info("Rolled back last migration")
		return
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		logrus.WithError(err).Fatal("Failed to run migrations")
	}

	openaiProvider, err := openai.NewProvider(cfg.Provider)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize provider")
	}

	registry := providers.NewRegistry()
	registry.Register(cfg.Provider.Type, openaiProvider)
	provider := registry.Get(cfg.Provider.Type)
	if provider == nil {
		logrus.WithField("type", cfg.Provider.Type).Fatal("Unknown provider type")
	}

	roomRepo := postgres.NewRoomRepository(db.DB)
	turnRepo := postgres.NewTurnRepository(db.DB)
	memoryRepo := postgres.NewMemoryRepository(db.DB)
	userRepo := postgres.NewUserRepository(db.DB)

	jwtSecret := os.Getenv("FABLE_JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "change-me-in-production"
		logrus.Warn("Using default JWT secret. Set FABLE_JWT_SECRET in production!")
	}
	authService := auth.NewService(userRepo, roomRepo, jwtSecret)

	svc := services.NewServices(roomRepo, turnRepo, memoryRepo, provider, authService, cfg)

	app := fiber.New(fiber.Config{
		AppName:      "Fable Backend",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     getOrigins(),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	api.SetupRoutes(app, svc, authService)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logrus.WithField("addr", addr).Info("Fable Backend starting")
	if err := app.Listen(addr); err != nil {
		logrus.WithError(err).Fatal("Failed to start server")
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func getOrigins() string {
	origins := os.Getenv("FABLE_CORS_ORIGINS")
	if origins == "" {
		return "http://localhost:5173,http://localhost:3000"
	}
	return origins
}
