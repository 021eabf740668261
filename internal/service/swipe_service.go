package service

import (
	"context"
	"math"
	"time"

	"kindred/internal/models"
	"kindred/internal/observability"
	"kindred/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Candidate filter bounds.
const (
	MinCandidateAge = 18
	MaxCandidateAge = 120
	MaxDistanceKm   = 20000
)

// SwipeInput is one swipe request.
type SwipeInput struct {
	SwiperID  uint
	TargetID  uint
	Direction models.SwipeDirection
}

// CandidateQuery holds the optional candidate filters.
type CandidateQuery struct {
	MinAge        int
	MaxAge        int
	MaxDistanceKm float64
	Gender        string
}

// SwipeService records swipes and serves candidates.
type SwipeService struct {
	swipes  repository.SwipeRepository
	users   repository.UserRepository
	reports repository.ReportRepository
	matches *MatchService
	now     func() time.Time
}

// NewSwipeService returns a new SwipeService.
func NewSwipeService(
	swipes repository.SwipeRepository,
	users repository.UserRepository,
	reports repository.ReportRepository,
	matches *MatchService,
) *SwipeService {
	return &SwipeService{swipes: swipes, users: users, reports: reports, matches: matches, now: time.Now}
}

// RecordSwipe stores the swipe and, for likes, runs match resolution. The
// swipe is durable before resolution starts.
func (s *SwipeService) RecordSwipe(ctx context.Context, in SwipeInput) (result *MatchResult, err error) {
	ctx, span := observability.StartSpan(ctx, "swipe.record",
		attribute.Int64("swiper_id", int64(in.SwiperID)),
		attribute.Int64("target_id", int64(in.TargetID)),
		attribute.String("direction", string(in.Direction)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if !in.Direction.Valid() {
		return nil, models.NewValidationError("direction must be like or pass")
	}
	if in.TargetID == 0 {
		return nil, models.NewValidationError("target_user_id is required")
	}
	if in.SwiperID == in.TargetID {
		return nil, models.ErrSelfSwipe
	}
	if _, err := s.users.GetByID(ctx, in.TargetID); err != nil {
		return nil, err
	}
	// A report in either direction blocks the pair for good.
	blocked, err := s.reports.ExistsBetween(ctx, in.SwiperID, in.TargetID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if blocked {
		return nil, models.NewForbiddenError("You can no longer swipe on this profile")
	}

	swipe := &models.Swipe{SwiperID: in.SwiperID, SwipedID: in.TargetID, Direction: in.Direction}
	if err := s.swipes.Create(ctx, swipe); err != nil {
		return nil, err
	}
	observability.SwipesTotal.WithLabelValues(string(in.Direction)).Inc()

	if in.Direction == models.SwipePass {
		return &MatchResult{}, nil
	}
	return s.matches.Resolve(ctx, in.SwiperID, in.TargetID)
}

// GetCandidates lists profiles the user can still swipe on.
func (s *SwipeService) GetCandidates(ctx context.Context, userID uint, q CandidateQuery) ([]models.ProfileSummary, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	viewer, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	users, err := s.users.ListCandidates(ctx, viewer, repository.CandidateFilter{
		MinAge:        q.MinAge,
		MaxAge:        q.MaxAge,
		Gender:        q.Gender,
		MaxDistanceKm: q.MaxDistanceKm,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.ProfileSummary, 0, len(users))
	for i := range users {
		summary := users[i].Summary(now)
		if d, ok := viewer.DistanceKm(&users[i]); ok {
			rounded := math.Round(d*10) / 10
			summary.DistanceKm = &rounded
		}
		out = append(out, summary)
	}
	return out, nil
}

// ResetSwipes deletes every swipe the user made. Matches are untouched.
func (s *SwipeService) ResetSwipes(ctx context.Context, userID uint) (int64, error) {
	n, err := s.swipes.DeleteBySwiper(ctx, userID)
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (q CandidateQuery) validate() error {
	if q.MinAge < 0 || q.MaxAge < 0 || q.MaxDistanceKm < 0 {
		return models.NewValidationError("filters must not be negative")
	}
	if q.MinAge != 0 && q.MinAge < MinCandidateAge {
		return models.NewValidationError("ageMin must be at least 18")
	}
	if q.MaxAge > MaxCandidateAge {
		return models.NewValidationError("ageMax is out of range")
	}
	if q.MinAge != 0 && q.MaxAge != 0 && q.MinAge > q.MaxAge {
		return models.NewValidationError("ageMin must not exceed ageMax")
	}
	if q.MaxDistanceKm > MaxDistanceKm {
		return models.NewValidationError("distanceMax is out of range")
	}
	switch q.Gender {
	case "", models.GenderFemale, models.GenderMale, models.GenderNonBinary:
	default:
		return models.NewValidationError("unknown genderPreference")
	}
	return nil
}
