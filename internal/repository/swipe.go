package repository

import (
	"context"

	"kindred/internal/models"
	"kindred/internal/observability"

	"gorm.io/gorm"
)

// SwipeRepository persists the swipe ledger.
type SwipeRepository interface {
	Create(ctx context.Context, swipe *models.Swipe) error
	Exists(ctx context.Context, swiperID, swipedID uint) (bool, error)
	HasLiked(ctx context.Context, swiperID, swipedID uint) (bool, error)
	DeleteBySwiper(ctx context.Context, swiperID uint) (int64, error)
	DeleteBetween(tx *gorm.DB, a, b uint) error
}

type swipeRepository struct {
	db *gorm.DB
}

// NewSwipeRepository returns a new SwipeRepository implementation.
func NewSwipeRepository(db *gorm.DB) SwipeRepository {
	return &swipeRepository{db: db}
}

// Create inserts the swipe. A second swipe on the same ordered pair yields
// models.ErrDuplicateSwipe through the unique index.
func (r *swipeRepository) Create(ctx context.Context, swipe *models.Swipe) error {
	defer observability.TrackQuery("create", "swipes")()

	if err := r.db.WithContext(ctx).Create(swipe).Error; err != nil {
		if IsUniqueViolation(err) {
			return models.ErrDuplicateSwipe
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *swipeRepository) Exists(ctx context.Context, swiperID, swipedID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Swipe{}).
		Where("swiper_id = ? AND swiped_id = ?", swiperID, swipedID).
		Count(&count).Error
	return count > 0, err
}

func (r *swipeRepository) HasLiked(ctx context.Context, swiperID, swipedID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Swipe{}).
		Where("swiper_id = ? AND swiped_id = ? AND direction = ?", swiperID, swipedID, models.SwipeLike).
		Count(&count).Error
	return count > 0, err
}

func (r *swipeRepository) DeleteBySwiper(ctx context.Context, swiperID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("swiper_id = ?", swiperID).Delete(&models.Swipe{})
	return res.RowsAffected, res.Error
}

// DeleteBetween removes the pair's swipes in both directions inside tx.
func (r *swipeRepository) DeleteBetween(tx *gorm.DB, a, b uint) error {
	return tx.Where("(swiper_id = ? AND swiped_id = ?) OR (swiper_id = ? AND swiped_id = ?)", a, b, b, a).
		Delete(&models.Swipe{}).Error
}
