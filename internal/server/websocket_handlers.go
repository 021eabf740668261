package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"kindred/internal/middleware"
	"kindred/internal/models"
	"kindred/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// IssueWSTicket handles POST /api/ws/ticket
// @Summary Issue a websocket ticket
// @Description Returns a single-use ticket to pass as ?ticket= when opening a stream.
// @Tags realtime
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Failure 503 {object} object{error=string}
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	ticket, err := middleware.IssueWSTicket(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.respondError(c, models.NewDependencyError(err))
	}
	return c.JSON(fiber.Map{"ticket": ticket, "expires_in": 60})
}

// requireUpgrade rejects plain HTTP requests on websocket routes.
func (s *Server) requireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// roomAccess resolves the match in the route and stores its room for the
// stream handler. Only participants may watch a room.
func (s *Server) roomAccess(c *fiber.Ctx) error {
	matchID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	match, err := s.matchService.Participant(c.UserContext(), matchID, currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	c.Locals("roomID", match.Room.ID)
	return c.Next()
}

// UserStreamHandler serves the per-user event stream: match_created,
// match_removed and host invitations.
func (s *Server) UserStreamHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(uint)

		client, err := s.userHub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("user stream rejected",
				slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, errorFrame(err.Error()))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// RoomStreamHandler serves one room's ordered event stream: chat messages,
// host transcript entries and session status.
func (s *Server) RoomStreamHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(uint)
		roomID, _ := conn.Locals("roomID").(uint)

		client, err := s.roomHub.Join(roomID, userID, conn)
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, errorFrame(err.Error()))
			_ = conn.Close()
			return
		}
		client.IncomingHandler = s.handleRoomFrame

		go client.WritePump()
		client.ReadPump()
	})
}

// handleRoomFrame relays typing hints to the rest of the room. Everything
// else goes through the HTTP API.
func (s *Server) handleRoomFrame(c *notifications.Client, message []byte) {
	var frame struct {
		Type     string `json:"type"`
		IsTyping bool   `json:"is_typing"`
	}
	if err := json.Unmarshal(message, &frame); err != nil || frame.Type != notifications.EventTyping {
		return
	}

	ctx := s.shutdownContext()
	allowed, _ := middleware.CheckRateLimit(ctx, s.redis, "typing", fmt.Sprintf("user:%d", c.UserID), 10, 10*time.Second)
	if !allowed {
		return
	}
	if err := s.broker.PublishRoom(ctx, c.RoomID, notifications.Event{
		Type:    notifications.EventTyping,
		Payload: fiber.Map{"user_id": c.UserID, "is_typing": frame.IsTyping},
	}); err != nil {
		middleware.Logger.Warn("publish typing failed", slog.String("error", err.Error()))
	}
}

func (s *Server) shutdownContext() context.Context {
	if s.shutdownCtx != nil {
		return s.shutdownCtx
	}
	return context.Background()
}

func errorFrame(msg string) []byte {
	b, _ := json.Marshal(fiber.Map{"type": "error", "payload": fiber.Map{"message": msg}})
	return b
}
