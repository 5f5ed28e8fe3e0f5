package api

import (
	"errors"
	"net/url"
	"strings"
	"time"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/example/sketchroom/modules/lobby"
	"github.com/example/sketchroom/modules/room"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	app.Get("/health", m.healthHandler)
	if m.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.metrics))
	}

	// WebSocket endpoint
	app.Use("/ws", m.upgradeMiddleware)
	app.Get("/ws", websocket.New(m.handleWebSocket))

	// REST API v1
	api := app.Group("/api/v1")
	api.Post("/lobby", m.lobbyLimiter(), m.enterLobby)
	api.Get("/rooms", m.listRooms)
	api.Get("/rooms/:code", m.getRoom)
	api.Get("/rooms/:code/messages", m.getMessages)
}

// lobbyLimiter limits lobby submissions per client IP. The counters live in
// Redis when RATE_LIMIT_STORE=redis so several instances share them.
func (m *APIModule) lobbyLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        m.config.LobbyRateLimit,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "lobby:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Error:   "rate_limited",
				Message: "Too many attempts. Please wait a moment.",
			})
		},
		Storage: m.limiter,
	})
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:  "healthy",
		Modules: make(map[string]ModuleHealth, len(m.checks)),
	}
	for name, module := range m.checks {
		h := module.Health(c.UserContext())
		resp.Modules[name] = ModuleHealth{Healthy: h.Healthy, Message: h.Message, Details: h.Details}
		if !h.Healthy {
			resp.Status = "degraded"
		}
	}

	status := fiber.StatusOK
	if resp.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}

// enterLobby handles POST /api/v1/lobby.
func (m *APIModule) enterLobby(c *fiber.Ctx) error {
	var req lobby.EnterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	resp, err := m.lobby.Enter(c.UserContext(), req)
	if err != nil {
		m.logger.Error("Lobby call failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(LobbyErrorResponse{
			Error:   lobby.CodeInternal,
			Message: lobby.UserMessage(err),
			Name:    req.Name,
			Code:    req.Code,
		})
	}

	if resp.ErrorCode != "" {
		status := lobbyStatus(resp.ErrorCode)
		if status == fiber.StatusServiceUnavailable {
			c.Set(fiber.HeaderRetryAfter, "1")
		}
		return c.Status(status).JSON(LobbyErrorResponse{
			Error:   resp.ErrorCode,
			Field:   resp.Field,
			Message: resp.Message,
			Name:    req.Name,
			Code:    req.Code,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(LobbyResponse{
		Code:      resp.Code,
		Name:      resp.Name,
		Ticket:    resp.Ticket,
		SessionID: resp.SessionID,
		ExpiresAt: resp.ExpiresAt,
		WSPath:    "/ws?ticket=" + url.QueryEscape(resp.Ticket),
	})
}

func lobbyStatus(code string) int {
	switch code {
	case lobby.CodeValidation:
		return fiber.StatusBadRequest
	case lobby.CodeRoomNotFound:
		return fiber.StatusNotFound
	case lobby.CodeResourceExhausted:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// listRooms handles GET /api/v1/rooms.
func (m *APIModule) listRooms(c *fiber.Ctx) error {
	infos, err := m.rooms.ListRooms(c.UserContext())
	if err != nil {
		m.logger.Error("Room list failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "list_failed",
			Message: "Failed to list rooms",
		})
	}

	rooms := make([]RoomResponse, 0, len(infos))
	for _, info := range infos {
		rooms = append(rooms, RoomResponse{
			Code:      info.Code,
			Members:   info.Members,
			Online:    m.hub.RoomClientCount(info.Code),
			CreatedAt: info.CreatedAt,
		})
	}
	return c.JSON(RoomsResponse{Rooms: rooms, Total: len(rooms)})
}

// getRoom handles GET /api/v1/rooms/:code.
func (m *APIModule) getRoom(c *fiber.Ctx) error {
	code := room.NormalizeCode(c.Params("code"))

	info, ok, err := m.rooms.LookupRoom(c.UserContext(), code)
	if err != nil {
		m.logger.Error("Room lookup failed", "code", code, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "lookup_failed",
			Message: "Failed to look up room",
		})
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   lobby.CodeRoomNotFound,
			Message: "Room does not exist.",
		})
	}

	return c.JSON(RoomResponse{
		Code:      info.Code,
		Members:   info.Members,
		Online:    m.hub.RoomClientCount(info.Code),
		CreatedAt: info.CreatedAt,
	})
}

// getMessages handles GET /api/v1/rooms/:code/messages. The caller must hold
// a ticket for that room.
func (m *APIModule) getMessages(c *fiber.Ctx) error {
	code := room.NormalizeCode(c.Params("code"))

	ticket := bearerToken(c.Get(fiber.HeaderAuthorization))
	if ticket == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "missing_ticket",
			Message: "A lobby ticket is required",
		})
	}

	verified, err := m.lobby.VerifyTicket(c.UserContext(), ticket)
	if err != nil {
		return err
	}
	if !verified.Valid {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "invalid_ticket",
			Message: verified.Error,
		})
	}
	if verified.Room != code {
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Error:   "forbidden",
			Message: "Ticket is for a different room",
		})
	}

	messages, err := m.history.ListMessages(c.UserContext(), code)
	if err != nil {
		m.logger.Error("History read failed", "code", code, "error", err)
		if errors.Is(err, domain.ErrPersistence) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
				Error:   "persistence_failed",
				Message: "History is unavailable right now",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "history_failed",
			Message: "Failed to load history",
		})
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return c.JSON(HistoryResponse{
		Code:     code,
		Messages: messages,
		Total:    len(messages),
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
