package server

import (
	"github.com/gofiber/fiber/v2"
)

// ListMatches handles GET /api/matches
// @Summary List matches
// @Description Returns the caller's matches, newest first, with the partner's profile and host session state.
// @Tags matches
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.MatchView
// @Router /matches [get]
func (s *Server) ListMatches(c *fiber.Ctx) error {
	matches, err := s.matchService.ListMatches(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(matches)
}

// Unmatch handles DELETE /api/matches/:id
// @Summary Unmatch
// @Description Removes the match, its room content and the pair's swipes.
// @Tags matches
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Success 200 {object} service.ReportResult
// @Failure 403 {object} object{error=string}
// @Failure 404 {object} object{error=string}
// @Router /matches/{id} [delete]
func (s *Server) Unmatch(c *fiber.Ctx) error {
	matchID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.moderationService.Unmatch(c.UserContext(), currentUserID(c), matchID)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(result)
}

// CallToken handles POST /api/matches/:id/call-token
// @Summary Issue a call token
// @Description Mints a short-lived token for the match's voice/video channel.
// @Tags matches
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Success 200 {object} service.CallToken
// @Failure 403 {object} object{error=string}
// @Failure 503 {object} object{error=string}
// @Router /matches/{id}/call-token [post]
func (s *Server) CallToken(c *fiber.Ctx) error {
	matchID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	token, err := s.matchService.CallToken(c.UserContext(), matchID, currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(token)
}
