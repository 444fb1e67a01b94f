package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/Boredooms/HireNexa-sub002/internal/services"
	chatws "github.com/Boredooms/HireNexa-sub002/internal/websocket"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type chatApplicationService interface {
	ListMatches(ctx context.Context, actorID string) ([]models.MatchSummary, error)
	AuthorizeMatch(ctx context.Context, actorID, matchID string) (*models.Match, error)
	ListMessages(ctx context.Context, actorID string, matchID string, page int, limit int) ([]models.Message, int, error)
	SendMessage(ctx context.Context, actorID string, input services.SendMessageInput) (*services.ChatDelivery, error)
	MarkRead(ctx context.Context, actorID, matchID string) error
	AnnounceTyping(ctx context.Context, actorID, matchID string, isTyping bool) error
}

type ChatHandler struct {
	service chatApplicationService
	hub     *chatws.Hub
	deps    chatws.ChatDeps
}

type sendMessageRequest struct {
	Body       string `json:"body"`
	Kind       string `json:"kind"`
	SenderName string `json:"sender_name"`
}

type typingRequest struct {
	IsTyping *bool `json:"is_typing"`
}

// NewChatHandler wires the HTTP chat endpoints. deps configures the
// live sessions opened on /ws; its Chat field is set to service.
func NewChatHandler(service chatApplicationService, hub *chatws.Hub, deps chatws.ChatDeps) *ChatHandler {
	deps.Chat = service
	return &ChatHandler{
		service: service,
		hub:     hub,
		deps:    deps,
	}
}

func (h *ChatHandler) ListMatches(c *fiber.Ctx) error {
	user, ok := currentIdentity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	matches, err := h.service.ListMatches(c.Context(), user.UserID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"matches": matches})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	user, ok := currentIdentity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	matchID := strings.TrimSpace(c.Params("id"))
	if matchID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid match id"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, total, err := h.service.ListMessages(c.Context(), user.UserID, matchID, page, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	user, ok := currentIdentity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	senderName := req.SenderName
	if strings.TrimSpace(senderName) == "" {
		senderName = user.Name
	}

	delivery, err := h.service.SendMessage(c.Context(), user.UserID, services.SendMessageInput{
		MatchID:    c.Params("id"),
		Body:       req.Body,
		Kind:       req.Kind,
		SenderName: senderName,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": delivery.Message})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	user, ok := currentIdentity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	if err := h.service.MarkRead(c.Context(), user.UserID, c.Params("id")); err != nil {
		return mapChatError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) AnnounceTyping(c *fiber.Ctx) error {
	user, ok := currentIdentity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req typingRequest
	if err := c.BodyParser(&req); err != nil || req.IsTyping == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.service.AnnounceTyping(c.Context(), user.UserID, c.Params("id"), *req.IsTyping); err != nil {
		return mapChatError(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	name, _ := conn.Locals("name").(string)

	session := chatws.NewChatSession(h.hub, conn, userID, name, h.deps)
	session.Serve(context.Background(), strings.TrimSpace(conn.Query("match_id")))
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidKind):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message kind"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Match not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
