package routes

import (
	"errors"

	"github.com/Boredooms/HireNexa-sub002/internal/config"
	"github.com/Boredooms/HireNexa-sub002/internal/handlers"
	"github.com/Boredooms/HireNexa-sub002/internal/middleware"
	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
	"github.com/Boredooms/HireNexa-sub002/internal/repository"
	"github.com/Boredooms/HireNexa-sub002/internal/services"
	chatws "github.com/Boredooms/HireNexa-sub002/internal/websocket"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func RegisterRoutes(
	app *fiber.App,
	cfg *config.Config,
	db *pgxpool.Pool,
	client realtime.Client,
	hub *chatws.Hub,
	logger *zap.Logger,
) error {
	if cfg == nil || db == nil || client == nil || hub == nil {
		return errors.New("routes: config, database, realtime client and hub are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	matchRepo := repository.NewMatchRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)

	chatService := services.NewChatService(db, matchRepo, client, logger.Named("chat"))
	assignmentService := services.NewAssignmentService(assignmentRepo, logger.Named("assignments"))

	chatHandler := handlers.NewChatHandler(chatService, hub, chatws.ChatDeps{
		Client:        client,
		Store:         messageRepo,
		TypingTimeout: cfg.TypingTimeout,
		Logger:        logger.Named("ws"),
	})
	assignmentHandler := handlers.NewAssignmentHandler(assignmentService, hub, client, logger.Named("ws"))

	api := app.Group("/api")

	// Registered before the /v1 group so its bearer-header check does not
	// run on upgrades that carry the token in the query string.
	ws := api.Group("/v1/ws", middleware.WebSocketAuth(cfg.JWTSecret))
	ws.Get("", websocket.New(chatHandler.HandleWebSocket))
	ws.Get("/assignments", websocket.New(assignmentHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	matches := authProtected.Group("/matches")
	matches.Get("", chatHandler.ListMatches)
	matches.Get("/:id/messages", chatHandler.GetMessages)
	matches.Post("/:id/messages", chatHandler.SendMessage)
	matches.Post("/:id/read", chatHandler.MarkRead)
	matches.Post("/:id/typing", chatHandler.AnnounceTyping)

	assignments := authProtected.Group("/assignments")
	assignments.Get("", assignmentHandler.List)
	assignments.Post("", assignmentHandler.Create)
	assignments.Post("/:id/close", assignmentHandler.Close)

	return nil
}
