package repository

import (
	"context"
	"errors"
	"time"

	"kindred/internal/models"
	"kindred/internal/observability"

	"gorm.io/gorm"
)

// MatchRepository persists matches and their conversation rooms.
type MatchRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Match, error)
	FindByPair(ctx context.Context, a, b uint) (*models.Match, error)
	CreateWithRoom(ctx context.Context, a, b uint) (*models.Match, error)
	ListForUser(ctx context.Context, userID uint) ([]models.Match, error)
	ListBetween(tx *gorm.DB, a, b uint) ([]models.Match, error)
	MediaIDs(tx *gorm.DB, matchIDs []uint) ([]string, error)
	DeleteCascade(tx *gorm.DB, matchIDs []uint) error
}

type matchRepository struct {
	db *gorm.DB
}

// NewMatchRepository returns a new MatchRepository implementation.
func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepository{db: db}
}

func (r *matchRepository) GetByID(ctx context.Context, id uint) (*models.Match, error) {
	var match models.Match
	if err := r.db.WithContext(ctx).Preload("Room").First(&match, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Match", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &match, nil
}

// FindByPair returns the canonical match for the unordered pair, or nil.
func (r *matchRepository) FindByPair(ctx context.Context, a, b uint) (*models.Match, error) {
	u1, u2 := models.CanonicalPair(a, b)
	var match models.Match
	err := r.db.WithContext(ctx).Preload("Room").
		Where("user1_id = ? AND user2_id = ?", u1, u2).
		First(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &match, nil
}

// CreateWithRoom inserts the canonical match and its room in one transaction.
// A concurrent insert for the same pair surfaces as a unique violation, which
// callers treat as "already exists".
func (r *matchRepository) CreateWithRoom(ctx context.Context, a, b uint) (*models.Match, error) {
	defer observability.TrackQuery("create", "matches")()

	u1, u2 := models.CanonicalPair(a, b)
	match := &models.Match{User1ID: u1, User2ID: u2, MatchedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Room").Create(match).Error; err != nil {
			return err
		}
		room := &models.ConversationRoom{MatchID: match.ID}
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		match.Room = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (r *matchRepository) ListForUser(ctx context.Context, userID uint) ([]models.Match, error) {
	var matches []models.Match
	err := r.db.WithContext(ctx).Preload("Room").
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("matched_at DESC").
		Find(&matches).Error
	return matches, err
}

// ListBetween finds every match row for the pair, in either orientation.
func (r *matchRepository) ListBetween(tx *gorm.DB, a, b uint) ([]models.Match, error) {
	var matches []models.Match
	err := tx.Preload("Room").
		Where("(user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)", a, b, b, a).
		Find(&matches).Error
	return matches, err
}

// MediaIDs lists object-store ids referenced by messages in the matches' rooms.
func (r *matchRepository) MediaIDs(tx *gorm.DB, matchIDs []uint) ([]string, error) {
	if len(matchIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := tx.Model(&models.Message{}).
		Joins("JOIN conversation_rooms ON conversation_rooms.id = messages.room_id").
		Where("conversation_rooms.match_id IN ? AND messages.media_id <> ''", matchIDs).
		Pluck("messages.media_id", &ids).Error
	return ids, err
}

// DeleteCascade removes the matches and everything hanging off their rooms.
// Children are deleted explicitly so the result does not depend on the
// dialect enforcing foreign keys.
func (r *matchRepository) DeleteCascade(tx *gorm.DB, matchIDs []uint) error {
	if len(matchIDs) == 0 {
		return nil
	}
	rooms := tx.Model(&models.ConversationRoom{}).Select("id").Where("match_id IN ?", matchIDs)
	sessions := tx.Model(&models.HostSession{}).Select("id").Where("room_id IN (?)", rooms)

	steps := []struct {
		model any
		query string
		arg   any
	}{
		{&models.HostMessage{}, "session_id IN (?)", sessions},
		{&models.HostSession{}, "room_id IN (?)", rooms},
		{&models.Message{}, "room_id IN (?)", rooms},
		{&models.ConversationRoom{}, "match_id IN ?", matchIDs},
		{&models.Match{}, "id IN ?", matchIDs},
	}
	for _, step := range steps {
		if err := tx.Where(step.query, step.arg).Delete(step.model).Error; err != nil {
			return err
		}
	}
	return nil
}
