package repository

import (
	"context"
	"errors"
	"math"
	"time"

	"kindred/internal/models"
	"kindred/internal/observability"

	"gorm.io/gorm"
)

// CandidatePageSize caps every candidate listing.
const CandidatePageSize = 20

// distanceProbe is how many rows are pulled when a distance filter has to be
// applied in Go after the bounding-box prefilter.
const distanceProbe = 200

// CandidateFilter narrows a candidate listing. Zero values mean "no filter".
type CandidateFilter struct {
	MinAge        int
	MaxAge        int
	Gender        string
	MaxDistanceKm float64
	Now           time.Time
}

// UserRepository reads the profile read model.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	ListCandidates(ctx context.Context, viewer *models.User, filter CandidateFilter) ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// ListCandidates returns up to CandidatePageSize profiles the viewer has not
// swiped on and shares no report with, in id order.
func (r *userRepository) ListCandidates(ctx context.Context, viewer *models.User, filter CandidateFilter) ([]models.User, error) {
	defer observability.TrackQuery("list_candidates", "users")()

	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	db := r.db.WithContext(ctx)
	q := db.Model(&models.User{}).
		Where("id <> ?", viewer.ID).
		Where("id NOT IN (?)", db.Model(&models.Swipe{}).Select("swiped_id").Where("swiper_id = ?", viewer.ID)).
		Where("id NOT IN (?)", db.Model(&models.Report{}).Select("reported_id").Where("reporter_id = ?", viewer.ID)).
		Where("id NOT IN (?)", db.Model(&models.Report{}).Select("reporter_id").Where("reported_id = ?", viewer.ID))

	if filter.Gender != "" {
		q = q.Where("gender = ?", filter.Gender)
	}
	if filter.MinAge > 0 {
		q = q.Where("birth_date <= ?", now.AddDate(-filter.MinAge, 0, 0))
	}
	if filter.MaxAge > 0 {
		q = q.Where("birth_date > ?", now.AddDate(-(filter.MaxAge+1), 0, 0))
	}

	useDistance := filter.MaxDistanceKm > 0 && viewer.HasLocation()
	limit := CandidatePageSize
	if useDistance {
		latDelta := filter.MaxDistanceKm / 111.0
		lonDelta := filter.MaxDistanceKm / (111.0 * math.Max(math.Cos(*viewer.Latitude*math.Pi/180), 0.01))
		q = q.Where("latitude BETWEEN ? AND ?", *viewer.Latitude-latDelta, *viewer.Latitude+latDelta).
			Where("longitude BETWEEN ? AND ?", *viewer.Longitude-lonDelta, *viewer.Longitude+lonDelta)
		limit = distanceProbe
	}

	var users []models.User
	if err := q.Order("id ASC").Limit(limit).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if !useDistance {
		return users, nil
	}

	out := make([]models.User, 0, CandidatePageSize)
	for i := range users {
		if d, ok := viewer.DistanceKm(&users[i]); ok && d <= filter.MaxDistanceKm {
			out = append(out, users[i])
			if len(out) == CandidatePageSize {
				break
			}
		}
	}
	return out, nil
}
