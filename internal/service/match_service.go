package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"kindred/internal/cache"
	"kindred/internal/middleware"
	"kindred/internal/models"
	"kindred/internal/notifications"
	"kindred/internal/observability"
	"kindred/internal/push"
	"kindred/internal/repository"
	"kindred/internal/rtc"

	"go.opentelemetry.io/otel/attribute"
)

// MatchResult is the outcome of a like. Match is set only when IsMatch is true.
type MatchResult struct {
	IsMatch bool              `json:"is_match"`
	Match   *models.MatchView `json:"match,omitempty"`
}

// CallToken lets a participant join the call channel of a match.
type CallToken struct {
	Channel string `json:"channel"`
	Token   string `json:"token"`
	UID     uint   `json:"uid"`
}

// MatchService detects mutual likes and serves matches to participants.
type MatchService struct {
	matches   repository.MatchRepository
	swipes    repository.SwipeRepository
	users     repository.UserRepository
	hosts     repository.HostRepository
	publisher EventPublisher
	presence  PresenceChecker
	pusher    push.Sender
	minter    rtc.Minter
	now       func() time.Time
}

// NewMatchService returns a new MatchService. publisher, presence, pusher and
// minter may be nil.
func NewMatchService(
	matches repository.MatchRepository,
	swipes repository.SwipeRepository,
	users repository.UserRepository,
	hosts repository.HostRepository,
	publisher EventPublisher,
	presence PresenceChecker,
	pusher push.Sender,
	minter rtc.Minter,
) *MatchService {
	return &MatchService{
		matches:   matches,
		swipes:    swipes,
		users:     users,
		hosts:     hosts,
		publisher: publisherOrNoop(publisher),
		presence:  presence,
		pusher:    pusher,
		minter:    minter,
		now:       time.Now,
	}
}

// Resolve checks whether targetID already liked swiperID and, if so, returns
// the pair's match, creating it on first detection. Concurrent creation for
// the same pair is settled by the unique index: the loser reads the winner.
func (s *MatchService) Resolve(ctx context.Context, swiperID, targetID uint) (result *MatchResult, err error) {
	ctx, span := observability.StartSpan(ctx, "match.resolve",
		attribute.Int64("swiper_id", int64(swiperID)),
		attribute.Int64("target_id", int64(targetID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	liked, err := s.swipes.HasLiked(ctx, targetID, swiperID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !liked {
		return &MatchResult{}, nil
	}

	match, err := s.matches.FindByPair(ctx, swiperID, targetID)
	if err != nil {
		return nil, err
	}
	created := false
	if match == nil {
		match, err = s.matches.CreateWithRoom(ctx, swiperID, targetID)
		switch {
		case err == nil:
			created = true
		case repository.IsUniqueViolation(err):
			match, err = s.matches.FindByPair(ctx, swiperID, targetID)
			if err != nil {
				return nil, err
			}
			if match == nil {
				return nil, models.NewInternalError(errors.New("match missing after unique conflict"))
			}
		default:
			return nil, models.NewInternalError(err)
		}
	}

	view, err := s.viewFor(ctx, match, swiperID)
	if err != nil {
		return nil, err
	}
	if created {
		observability.MatchesCreated.Inc()
		cache.InvalidateMatchLists(ctx, match.User1ID, match.User2ID)
		s.announce(ctx, match)
	}
	return &MatchResult{IsMatch: true, Match: view}, nil
}

// announce tells both participants about a new match, pushing to whoever is offline.
func (s *MatchService) announce(ctx context.Context, match *models.Match) {
	for _, userID := range []uint{match.User1ID, match.User2ID} {
		view, err := s.viewFor(ctx, match, userID)
		if err != nil {
			middleware.Logger.WarnContext(ctx, "match announcement skipped", slog.String("error", err.Error()))
			continue
		}
		publishUser(ctx, s.publisher, userID, notifications.Event{Type: notifications.EventMatchCreated, RoomID: view.RoomID, Payload: view})
		s.pushIfOffline(ctx, userID, push.Payload{
			Title: "It's a match!",
			Body:  fmt.Sprintf("You and %s liked each other.", view.Partner.DisplayName),
			Data:  map[string]string{"match_id": strconv.FormatUint(uint64(match.ID), 10)},
		})
	}
}

func (s *MatchService) pushIfOffline(ctx context.Context, userID uint, p push.Payload) {
	if s.pusher == nil || (s.presence != nil && s.presence.IsOnline(userID)) {
		return
	}
	if _, err := s.pusher.Send(ctx, userID, p); err != nil {
		middleware.Logger.WarnContext(ctx, "push failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()))
	}
}

// ProfileSummary returns the cached public profile of userID.
func (s *MatchService) ProfileSummary(ctx context.Context, userID uint) (models.ProfileSummary, error) {
	var summary models.ProfileSummary
	err := cache.Aside(ctx, cache.ProfileKey(userID), &summary, cache.ProfileTTL, func() error {
		u, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		summary = u.Summary(s.now().UTC())
		return nil
	})
	return summary, err
}

func (s *MatchService) viewFor(ctx context.Context, match *models.Match, viewerID uint) (*models.MatchView, error) {
	partner, err := s.ProfileSummary(ctx, match.OtherUserID(viewerID))
	if err != nil {
		return nil, err
	}
	view := &models.MatchView{Match: match, Partner: partner}
	if match.Room != nil {
		view.RoomID = match.Room.ID
	}
	return view, nil
}

// ListMatches returns the caller's matches, newest first, with partner
// summaries and host status.
func (s *MatchService) ListMatches(ctx context.Context, userID uint) ([]models.MatchView, error) {
	var views []models.MatchView
	err := cache.Aside(ctx, cache.MatchListKey(userID), &views, cache.MatchListTTL, func() error {
		matches, err := s.matches.ListForUser(ctx, userID)
		if err != nil {
			return models.NewInternalError(err)
		}
		views = make([]models.MatchView, 0, len(matches))
		for i := range matches {
			view, err := s.viewFor(ctx, &matches[i], userID)
			if err != nil {
				return err
			}
			if view.RoomID != 0 && s.hosts != nil {
				if session, err := s.hosts.GetByRoom(ctx, view.RoomID); err == nil {
					view.HostStatus = session.Status
				}
			}
			views = append(views, *view)
		}
		return nil
	})
	return views, err
}

// Participant loads a match and checks that userID is part of it.
func (s *MatchService) Participant(ctx context.Context, matchID, userID uint) (*models.Match, error) {
	return loadParticipantMatch(ctx, s.matches, matchID, userID)
}

// CallToken mints a call token for a participant of the match.
func (s *MatchService) CallToken(ctx context.Context, matchID, userID uint) (*CallToken, error) {
	match, err := s.Participant(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	if s.minter == nil {
		return nil, models.NewDependencyError(errors.New("rtc minter not configured"))
	}
	channel := rtc.ChannelForMatch(match.ID)
	token, err := s.minter.Mint(channel, userID)
	if err != nil {
		return nil, models.NewDependencyError(err)
	}
	return &CallToken{Channel: channel, Token: token, UID: userID}, nil
}

func loadParticipantMatch(ctx context.Context, matches repository.MatchRepository, matchID, userID uint) (*models.Match, error) {
	match, err := matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.HasUser(userID) {
		return nil, models.NewForbiddenError("You are not part of this match")
	}
	if match.Room == nil {
		return nil, models.NewInternalError(fmt.Errorf("match %d has no room", match.ID))
	}
	return match, nil
}
