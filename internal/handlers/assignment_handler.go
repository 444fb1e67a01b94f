package handlers

import (
	"context"
	"errors"

	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
	"github.com/Boredooms/HireNexa-sub002/internal/services"
	chatws "github.com/Boredooms/HireNexa-sub002/internal/websocket"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type assignmentApplicationService interface {
	ListActive(ctx context.Context) ([]models.Assignment, error)
	Create(ctx context.Context, actorID string, role string, input services.CreateAssignmentInput) (*models.Assignment, error)
	Close(ctx context.Context, actorID string, assignmentID string) (*models.Assignment, error)
}

type AssignmentHandler struct {
	service assignmentApplicationService
	hub     *chatws.Hub
	client  realtime.Client
	logger  *zap.Logger
}

type createAssignmentRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
	Budget      *float64 `json:"budget"`
}

func NewAssignmentHandler(
	service assignmentApplicationService,
	hub *chatws.Hub,
	client realtime.Client,
	logger *zap.Logger,
) *AssignmentHandler {
	return &AssignmentHandler{
		service: service,
		hub:     hub,
		client:  client,
		logger:  logger,
	}
}

func (h *AssignmentHandler) List(c *fiber.Ctx) error {
	assignments, err := h.service.ListActive(c.Context())
	if err != nil {
		return mapAssignmentError(c, err)
	}
	return c.JSON(fiber.Map{"assignments": assignments})
}

func (h *AssignmentHandler) Create(c *fiber.Ctx) error {
	user, ok := currentIdentity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	assignment, err := h.service.Create(c.Context(), user.UserID, user.Role, services.CreateAssignmentInput{
		Title:       req.Title,
		Description: req.Description,
		Skills:      req.Skills,
		Budget:      req.Budget,
	})
	if err != nil {
		return mapAssignmentError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"assignment": assignment})
}

func (h *AssignmentHandler) Close(c *fiber.Ctx) error {
	user, ok := currentIdentity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	assignment, err := h.service.Close(c.Context(), user.UserID, c.Params("id"))
	if err != nil {
		return mapAssignmentError(c, err)
	}
	return c.JSON(fiber.Map{"assignment": assignment})
}

func (h *AssignmentHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)

	session := chatws.NewAssignmentSession(h.hub, conn, userID, h.client, h.service.ListActive, h.logger)
	session.Serve(context.Background())
}

func mapAssignmentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Assignment not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process assignment request"})
	}
}
