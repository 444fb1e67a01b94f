package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Boredooms/HireNexa-sub002/internal/changefeed"
	"github.com/Boredooms/HireNexa-sub002/internal/config"
	"github.com/Boredooms/HireNexa-sub002/internal/database"
	"github.com/Boredooms/HireNexa-sub002/internal/logging"
	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
	"github.com/Boredooms/HireNexa-sub002/internal/routes"
	chatws "github.com/Boredooms/HireNexa-sub002/internal/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		logger.Fatal("DB_URL is required")
	}
	pool, err := database.Connect(ctx, cfg.DBUrl)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// 3. Realtime channel service
	client, err := realtime.New(realtime.Options{
		Driver:     cfg.RealtimeDriver,
		NatsURL:    cfg.NatsURL,
		NatsStream: cfg.NatsStream,
		RedisURL:   cfg.RedisURL,
		Logger:     logger.Named("realtime"),
	})
	if err != nil {
		logger.Fatal("Failed to build realtime client", zap.Error(err))
	}
	if err := client.Connect(ctx); err != nil {
		logger.Fatal("Failed to connect realtime client", zap.String("driver", cfg.RealtimeDriver), zap.Error(err))
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("realtime close", zap.Error(err))
		}
	}()

	listenerDone := make(chan struct{})
	if cfg.EnableChangefeed {
		listener := changefeed.NewListener(pool, changefeed.Channel, client, logger.Named("changefeed"))
		listener.OnRelisten(client.NotifyReconnect)
		go func() {
			defer close(listenerDone)
			listener.Run(ctx)
		}()
	} else {
		close(listenerDone)
	}

	hub := chatws.NewHub(logger.Named("hub"))
	go hub.Run()

	// 4. Setup Fiber
	app := fiber.New(fiber.Config{DisableStartupMessage: !cfg.IsDevelopment()})

	// Middleware
	app.Use(cors.New())
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"realtime": cfg.RealtimeDriver,
		})
	})
	if err := routes.RegisterRoutes(app, cfg, pool, client, hub, logger); err != nil {
		logger.Fatal("Failed to register routes", zap.Error(err))
	}

	// 5. Start Server
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port), zap.String("realtime", cfg.RealtimeDriver))
		serverErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server")
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
		stop()
	}

	hub.Stop()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("Error shutting down fiber", zap.Error(err))
	}
	<-listenerDone

	logger.Info("Server gracefully stopped")
}
