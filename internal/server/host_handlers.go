package server

import (
	"context"

	"kindred/internal/service"

	"github.com/gofiber/fiber/v2"
)

type hostAction func(ctx context.Context, userID, matchID uint) (*service.HostSessionView, error)

// hostTransition runs a session action for the route's match.
func (s *Server) hostTransition(c *fiber.Ctx, action hostAction) error {
	matchID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	view, err := action(c.UserContext(), currentUserID(c), matchID)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(view)
}

// GetHostSession handles GET /api/matches/:id/host
// @Summary Get host session
// @Description Returns the pair's host session from the caller's point of view, creating it on first access.
// @Tags host
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Success 200 {object} service.HostSessionView
// @Failure 403 {object} object{error=string}
// @Failure 404 {object} object{error=string}
// @Router /matches/{id}/host [get]
func (s *Server) GetHostSession(c *fiber.Ctx) error {
	return s.hostTransition(c, s.hostService.GetSession)
}

// HostOptIn handles POST /api/matches/:id/host/opt-in
// @Summary Opt in to the host
// @Description The session activates once both participants have opted in.
// @Tags host
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Success 200 {object} service.HostSessionView
// @Failure 409 {object} object{error=string}
// @Router /matches/{id}/host/opt-in [post]
func (s *Server) HostOptIn(c *fiber.Ctx) error {
	return s.hostTransition(c, s.hostService.OptIn)
}

// HostOptOut handles POST /api/matches/:id/host/opt-out
// @Summary Decline the host
// @Tags host
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Success 200 {object} service.HostSessionView
// @Failure 409 {object} object{error=string}
// @Router /matches/{id}/host/opt-out [post]
func (s *Server) HostOptOut(c *fiber.Ctx) error {
	return s.hostTransition(c, s.hostService.OptOut)
}

// HostExit handles POST /api/matches/:id/host/exit
// @Summary Leave the hosted conversation
// @Tags host
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Success 200 {object} service.HostSessionView
// @Failure 409 {object} object{error=string}
// @Router /matches/{id}/host/exit [post]
func (s *Server) HostExit(c *fiber.Ctx) error {
	return s.hostTransition(c, s.hostService.Exit)
}

// HostNudge handles POST /api/matches/:id/host/nudge
// @Summary Advance an overdue timed stage
// @Description Completes the timed stage when its dwell has elapsed but the scheduled advance was lost.
// @Tags host
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Success 200 {object} service.HostSessionView
// @Failure 409 {object} object{error=string}
// @Router /matches/{id}/host/nudge [post]
func (s *Server) HostNudge(c *fiber.Ctx) error {
	return s.hostTransition(c, s.hostService.Nudge)
}

// HostAnswer handles POST /api/matches/:id/host/answer
// @Summary Answer the current prompt
// @Tags host
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Param request body object{answer=string,question_id=string} true "Answer"
// @Success 200 {object} service.AnswerResult
// @Failure 400 {object} object{error=string}
// @Failure 409 {object} object{error=string}
// @Router /matches/{id}/host/answer [post]
func (s *Server) HostAnswer(c *fiber.Ctx) error {
	matchID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Answer     string `json:"answer"`
		QuestionID string `json:"question_id"`
	}
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	result, err := s.hostService.SubmitAnswer(c.UserContext(), currentUserID(c), matchID, service.AnswerInput{
		Answer:     req.Answer,
		QuestionID: req.QuestionID,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(result)
}

// GetHostMessages handles GET /api/matches/:id/host/messages
// @Summary Host transcript
// @Description Pages the session transcript oldest first. Pass next_cursor back as cursor.
// @Tags host
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Param cursor query string false "Cursor from the previous page"
// @Param limit query int false "Page size" default(50)
// @Success 200 {object} service.TranscriptPage
// @Failure 400 {object} object{error=string}
// @Router /matches/{id}/host/messages [get]
func (s *Server) GetHostMessages(c *fiber.Ctx) error {
	matchID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 50)

	transcript, err := s.hostService.ListMessages(c.UserContext(), currentUserID(c), matchID, c.Query("cursor"), page.Limit)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(transcript)
}
