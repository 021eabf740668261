package server

import (
	"kindred/internal/service"

	"github.com/gofiber/fiber/v2"
)

type reportRequest struct {
	ReportedUserID uint   `json:"reported_user_id"`
	Category       string `json:"category"`
	Reason         string `json:"reason"`
}

// ReportMatch handles POST /api/matches/:id/report
// @Summary Report a match partner
// @Description Files a report against the other participant and removes the match with all its content.
// @Tags moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Match ID"
// @Param request body object{category=string,reason=string} true "Report"
// @Success 201 {object} service.ReportResult
// @Failure 400 {object} object{error=string}
// @Failure 403 {object} object{error=string}
// @Router /matches/{id}/report [post]
func (s *Server) ReportMatch(c *fiber.Ctx) error {
	matchID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req reportRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	return s.submitReport(c, service.ReportInput{
		ReporterID: currentUserID(c),
		MatchID:    &matchID,
		Category:   req.Category,
		Reason:     req.Reason,
	})
}

// ReportUser handles POST /api/reports
// @Summary Report a user
// @Description Files a report against any user. Swipes and matches between the pair are removed.
// @Tags moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{reported_user_id=int,category=string,reason=string} true "Report"
// @Success 201 {object} service.ReportResult
// @Failure 400 {object} object{error=string}
// @Failure 404 {object} object{error=string}
// @Router /reports [post]
func (s *Server) ReportUser(c *fiber.Ctx) error {
	var req reportRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	return s.submitReport(c, service.ReportInput{
		ReporterID:     currentUserID(c),
		ReportedUserID: req.ReportedUserID,
		Category:       req.Category,
		Reason:         req.Reason,
	})
}

func (s *Server) submitReport(c *fiber.Ctx, in service.ReportInput) error {
	result, err := s.moderationService.SubmitReport(c.UserContext(), in)
	if err != nil {
		return s.respondError(c, err)
	}
	status := fiber.StatusCreated
	if result.AlreadyFiled {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(result)
}
