package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"kindred/internal/cache"
	"kindred/internal/media"
	"kindred/internal/models"
	"kindred/internal/notifications"
	"kindred/internal/observability"
	"kindred/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// MaxReportReasonLength caps the free-text reason of a report.
const MaxReportReasonLength = 1000

// ReportInput is a report request. Exactly one of ReportedUserID and MatchID
// identifies the target; MatchID wins when both are set.
type ReportInput struct {
	ReporterID     uint
	ReportedUserID uint
	MatchID        *uint
	Category       string
	Reason         string
}

// ReportResult summarizes what a report or unmatch removed.
type ReportResult struct {
	ReportID       uint `json:"report_id,omitempty"`
	AlreadyFiled   bool `json:"already_filed"`
	MatchesRemoved int  `json:"matches_removed"`
}

// ModerationService files reports and tears down relationships between two users.
type ModerationService struct {
	db        *gorm.DB
	matches   repository.MatchRepository
	swipes    repository.SwipeRepository
	reports   repository.ReportRepository
	users     repository.UserRepository
	store     media.Store
	publisher EventPublisher
	rooms     RoomCloser
}

// NewModerationService returns a new ModerationService. store, publisher and
// rooms may be nil.
func NewModerationService(
	db *gorm.DB,
	matches repository.MatchRepository,
	swipes repository.SwipeRepository,
	reports repository.ReportRepository,
	users repository.UserRepository,
	store media.Store,
	publisher EventPublisher,
	rooms RoomCloser,
) *ModerationService {
	return &ModerationService{
		db:        db,
		matches:   matches,
		swipes:    swipes,
		reports:   reports,
		users:     users,
		store:     store,
		publisher: publisherOrNoop(publisher),
		rooms:     rooms,
	}
}

// removed is what a cleanup transaction deleted.
type removed struct {
	matches  []models.Match
	mediaIDs []string
}

// SubmitReport files a report and removes every match and swipe between the
// pair. A repeat of an identical report is not stored again, but the cleanup
// still runs.
func (s *ModerationService) SubmitReport(ctx context.Context, in ReportInput) (result *ReportResult, err error) {
	ctx, span := observability.StartSpan(ctx, "moderation.submit_report",
		attribute.Int64("reporter_id", int64(in.ReporterID)),
		attribute.String("category", in.Category),
	)
	defer func() { observability.EndSpan(span, err) }()

	in.Category = strings.TrimSpace(in.Category)
	in.Reason = strings.TrimSpace(in.Reason)
	if !models.ValidReportCategory(in.Category) {
		return nil, models.NewValidationError("unknown report category")
	}
	if utf8.RuneCountInString(in.Reason) > MaxReportReasonLength {
		return nil, models.NewValidationError("reason is too long")
	}

	reportedID := in.ReportedUserID
	if in.MatchID != nil {
		match, err := s.matches.GetByID(ctx, *in.MatchID)
		if err != nil {
			return nil, err
		}
		if !match.HasUser(in.ReporterID) {
			return nil, models.NewForbiddenError("You are not part of this match")
		}
		reportedID = match.OtherUserID(in.ReporterID)
	}
	if reportedID == 0 {
		return nil, models.NewValidationError("reportedUserId or matchId is required")
	}
	if reportedID == in.ReporterID {
		return nil, models.NewValidationError("You cannot report yourself")
	}
	if _, err := s.users.GetByID(ctx, reportedID); err != nil {
		return nil, err
	}

	exists, err := s.reports.Exists(ctx, in.ReporterID, reportedID, in.Category)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	result = &ReportResult{AlreadyFiled: exists}
	var gone removed
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !exists {
			report := &models.Report{
				ReporterID: in.ReporterID,
				ReportedID: reportedID,
				MatchID:    in.MatchID,
				Category:   in.Category,
				Reason:     in.Reason,
				Status:     models.ReportPending,
			}
			if err := s.reports.Create(tx, report); err != nil {
				return err
			}
			result.ReportID = report.ID
		}
		var err error
		gone, err = s.cleanup(tx, in.ReporterID, reportedID)
		return err
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	if !exists {
		observability.ReportsTotal.WithLabelValues(in.Category).Inc()
	}
	result.MatchesRemoved = len(gone.matches)
	s.afterCleanup(ctx, in.ReporterID, reportedID, gone)
	return result, nil
}

// Unmatch removes the match and every swipe between its participants.
func (s *ModerationService) Unmatch(ctx context.Context, userID, matchID uint) (*ReportResult, error) {
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.HasUser(userID) {
		return nil, models.NewForbiddenError("You are not part of this match")
	}
	otherID := match.OtherUserID(userID)

	var gone removed
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		gone, err = s.cleanup(tx, userID, otherID)
		return err
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	s.afterCleanup(ctx, userID, otherID, gone)
	return &ReportResult{MatchesRemoved: len(gone.matches)}, nil
}

// cleanup deletes all matches between a and b with their rooms and content,
// then both swipe directions. Media ids are collected before the rows go.
func (s *ModerationService) cleanup(tx *gorm.DB, a, b uint) (removed, error) {
	matches, err := s.matches.ListBetween(tx, a, b)
	if err != nil {
		return removed{}, err
	}
	ids := make([]uint, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	mediaIDs, err := s.matches.MediaIDs(tx, ids)
	if err != nil {
		return removed{}, err
	}
	if err := s.matches.DeleteCascade(tx, ids); err != nil {
		return removed{}, err
	}
	if err := s.swipes.DeleteBetween(tx, a, b); err != nil {
		return removed{}, err
	}
	return removed{matches: matches, mediaIDs: mediaIDs}, nil
}

// afterCleanup runs the committed side effects. Media deletion failures are
// logged and counted, never returned.
func (s *ModerationService) afterCleanup(ctx context.Context, a, b uint, gone removed) {
	s.deleteMedia(ctx, gone.mediaIDs)

	for i := range gone.matches {
		match := &gone.matches[i]
		var roomID uint
		if match.Room != nil {
			roomID = match.Room.ID
		}
		for _, userID := range []uint{a, b} {
			publishUser(ctx, s.publisher, userID, notifications.Event{
				Type:    notifications.EventMatchRemoved,
				RoomID:  roomID,
				Payload: map[string]uint{"match_id": match.ID},
			})
		}
		if roomID == 0 {
			continue
		}
		if s.rooms != nil {
			s.rooms.CloseRoom(roomID)
		}
	}
	cache.InvalidateMatchLists(ctx, a, b)
}

func (s *ModerationService) deleteMedia(ctx context.Context, ids []string) {
	if s.store == nil || len(ids) == 0 {
		return
	}
	fields := map[string]interface{}{"objects": len(ids)}
	observability.LogAsyncOperationStart(ctx, "media_cleanup", fields)
	var failed []error
	for _, id := range ids {
		if err := s.store.Delete(ctx, id); err != nil {
			observability.MediaDeleteFailures.Inc()
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		observability.LogAsyncOperationError(ctx, "media_cleanup", errors.Join(failed...), fields)
		return
	}
	observability.LogAsyncOperationEnd(ctx, "media_cleanup", fields)
}
