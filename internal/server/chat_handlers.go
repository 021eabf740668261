package server

import (
	"io"
	"strings"

	"kindred/internal/featureflags"
	"kindred/internal/media"
	"kindred/internal/models"
	"kindred/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMessages handles GET /api/matches/:id/messages
// @Summary List room messages
// @Tags chat
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset"
// @Success 200 {array} models.Message
// @Failure 403 {object} object{error=string}
// @Router /matches/{id}/messages [get]
func (s *Server) GetMessages(c *fiber.Ctx) error {
	matchID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 50)

	messages, err := s.chatService.ListMessages(c.UserContext(), currentUserID(c), matchID, page.Limit, page.Offset)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(messages)
}

// SendMessage handles POST /api/matches/:id/messages
// @Summary Send a room message
// @Description Accepts JSON {content} or multipart with a content field and an optional image file.
// @Tags chat
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Success 201 {object} models.Message
// @Failure 400 {object} object{error=string}
// @Failure 403 {object} object{error=string}
// @Router /matches/{id}/messages [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	matchID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID := currentUserID(c)

	var in service.SendMessageInput
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		in.Content = c.FormValue("content")
		image, err := s.readImage(c, userID)
		if err != nil {
			return nil
		}
		in.Image = image
	} else {
		var req struct {
			Content string `json:"content"`
		}
		if err := bindJSON(c, &req); err != nil {
			return nil
		}
		in.Content = req.Content
	}

	msg, err := s.chatService.SendMessage(c.UserContext(), userID, matchID, in)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// readImage returns the optional "image" part of a multipart message.
func (s *Server) readImage(c *fiber.Ctx, userID uint) (*media.UploadInput, error) {
	header, err := c.FormFile("image")
	if err != nil {
		return nil, nil
	}
	if !s.featureFlags.Enabled(featureflags.ChatMedia, userID) {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Image messages are disabled"))
		return nil, errResponseWritten
	}

	file, err := header.Open()
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid image upload"))
		return nil, errResponseWritten
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid image upload"))
		return nil, errResponseWritten
	}

	return &media.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}
