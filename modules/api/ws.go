package api

import (
	"errors"
	"time"

	domain "github.com/example/sketchroom/domain/room"
	"github.com/example/sketchroom/modules/broadcast"
	"github.com/example/sketchroom/modules/lobby"
	"github.com/example/sketchroom/modules/room"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	localsTicket = "ticket"

	// maxFrameBytes bounds one inbound frame. Strokes are small; chat is
	// capped well below this.
	maxFrameBytes = 64 << 10
)

// sessionConn is the websocket surface a realtime session needs.
type sessionConn interface {
	broadcast.Conn
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
}

// upgradeMiddleware admits websocket upgrades that carry a valid ticket. The
// ticket is redeemed here, so it opens one session at most.
func (m *APIModule) upgradeMiddleware(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	ticket := c.Query("ticket")
	if ticket == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "missing_ticket",
			Message: "A lobby ticket is required",
		})
	}

	verified, err := m.lobby.RedeemTicket(c.UserContext(), ticket)
	if err != nil {
		return err
	}
	if !verified.Valid {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "invalid_ticket",
			Message: verified.Error,
		})
	}

	c.Locals(localsTicket, verified)
	return c.Next()
}

// handleWebSocket handles websocket connections at /ws.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	ticket, ok := c.Locals(localsTicket).(*lobby.VerifyTicketResponse)
	if !ok {
		_ = c.Close()
		return
	}
	m.serve(c, ticket)
}

// serve runs one realtime session: join, read loop, then exactly one leave.
// All writes to conn go through the client's write pump once it has joined.
func (m *APIModule) serve(conn sessionConn, ticket *lobby.VerifyTicketResponse) {
	client := broadcast.NewClient(uuid.NewString(), ticket.Name, conn, m.config.SendBuffer)
	m.hub.Register(client)

	// The session frame is queued before the room hears of the joiner.
	greeting := func(sess *room.Session) []byte {
		return room.Encode(room.KindSession, room.SessionPayload{
			Room:      sess.RoomCode,
			Name:      sess.Name,
			SessionID: ticket.SessionID,
		})
	}
	sess, err := m.realtime.Join(ticket.Room, ticket.Name, client.ID, greeting)
	if err != nil {
		m.hub.Unregister(client.ID)
		m.logger.Info("Websocket join rejected", "code", ticket.Room, "name", ticket.Name, "error", err)
		_ = conn.WriteMessage(websocket.TextMessage, room.EncodeError(joinErrorCode(err), lobby.UserMessage(err)))
		_ = conn.Close()
		return
	}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		if err := client.WritePump(m.config.PingInterval); err != nil {
			m.logger.Debug("Write pump failed", "client", client.ID, "error", err)
		}
		// Unblocks the read loop when the pump ends first.
		_ = conn.Close()
	}()

	m.logger.Info("Websocket connected", "client", client.ID, "code", sess.RoomCode, "name", sess.Name)

	defer func() {
		m.realtime.Leave(sess)
		m.hub.Unregister(client.ID)
		<-pumpDone
		m.logger.Info("Websocket disconnected", "client", client.ID, "code", sess.RoomCode, "name", sess.Name)
	}()

	m.readLoop(conn, sess)
}

func (m *APIModule) readLoop(conn sessionConn, sess *room.Session) {
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(m.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.config.PongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(m.config.EventsPerSecond), m.config.EventBurst)
	dropped := 0

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("Websocket read ended", "client", sess.ID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(m.config.PongWait))

		if !limiter.Allow() {
			dropped++
			if dropped == 1 || dropped%100 == 0 {
				m.logger.Warn("Dropping throttled frames", "client", sess.ID, "code", sess.RoomCode, "dropped", dropped)
			}
			continue
		}

		if err := m.realtime.Dispatch(sess, raw); err != nil {
			if errors.Is(err, room.ErrSessionEnded) {
				return
			}
			m.logger.Warn("Dispatch failed", "client", sess.ID, "error", err)
		}
	}
}

func joinErrorCode(err error) string {
	switch {
	case domain.IsValidation(err):
		return lobby.CodeValidation
	case errors.Is(err, domain.ErrRoomNotFound):
		return lobby.CodeRoomNotFound
	default:
		return lobby.CodeInternal
	}
}
