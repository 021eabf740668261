package server

import (
	"kindred/internal/models"
	"kindred/internal/service"

	"github.com/gofiber/fiber/v2"
)

type swipeRequest struct {
	TargetID  uint                  `json:"target_user_id"`
	Direction models.SwipeDirection `json:"direction"`
}

// Swipe handles POST /api/swipes
// @Summary Record a swipe
// @Description Likes or passes on a candidate. A like that completes a mutual pair returns the new match.
// @Tags swipes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{target_user_id=int,direction=string} true "Swipe request"
// @Success 201 {object} service.MatchResult
// @Failure 400 {object} object{error=string}
// @Failure 403 {object} object{error=string}
// @Failure 404 {object} object{error=string}
// @Failure 409 {object} object{error=string}
// @Router /swipes [post]
func (s *Server) Swipe(c *fiber.Ctx) error {
	var req swipeRequest
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	result, err := s.swipeService.RecordSwipe(c.UserContext(), service.SwipeInput{
		SwiperID:  currentUserID(c),
		TargetID:  req.TargetID,
		Direction: req.Direction,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetCandidates handles GET /api/candidates
// @Summary List swipe candidates
// @Description Returns users the caller has not swiped on, is not matched with and has no report with.
// @Tags swipes
// @Produce json
// @Security BearerAuth
// @Param min_age query int false "Minimum age"
// @Param max_age query int false "Maximum age"
// @Param max_distance_km query number false "Maximum distance in km"
// @Param gender query string false "Gender"
// @Success 200 {array} models.ProfileSummary
// @Failure 400 {object} object{error=string}
// @Router /candidates [get]
func (s *Server) GetCandidates(c *fiber.Ctx) error {
	q := service.CandidateQuery{
		MinAge:        c.QueryInt("min_age", 0),
		MaxAge:        c.QueryInt("max_age", 0),
		MaxDistanceKm: c.QueryFloat("max_distance_km", 0),
		Gender:        c.Query("gender"),
	}

	candidates, err := s.swipeService.GetCandidates(c.UserContext(), currentUserID(c), q)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(candidates)
}

// ResetSwipes handles DELETE /api/swipes
// @Summary Reset swipe history
// @Description Deletes every swipe the caller made. Existing matches are kept.
// @Tags swipes
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{deleted=int}
// @Router /swipes [delete]
func (s *Server) ResetSwipes(c *fiber.Ctx) error {
	n, err := s.swipeService.ResetSwipes(c.UserContext(), currentUserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": n})
}
