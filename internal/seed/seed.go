package seed

import (
	"context"
	"fmt"
	"log"

	"kindred/internal/models"
	"kindred/internal/repository"
	"kindred/internal/service"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	Users int
	// SwipesPerUser is how many other profiles each user swipes on.
	SwipesPerUser int
	// LikePercent is the share of swipes that are likes.
	LikePercent int
	ShouldClean bool
	// RandomSeed makes the run repeatable.
	RandomSeed int64
	Cities     []City
}

// Result summarizes what a seeding run created.
type Result struct {
	Users   []models.User
	Swipes  int
	Matches int
}

// Seed populates the database with profiles and swipes. Swipes go through the
// swipe service, so mutual likes produce matches and rooms exactly as the API would.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Result, error) {
	if opts.LikePercent <= 0 {
		opts.LikePercent = 60
	}
	log.Printf("🌱 Seeding %d users, %d swipes each", opts.Users, opts.SwipesPerUser)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			return nil, fmt.Errorf("clear data: %w", err)
		}
	}

	f := NewFactory(db, opts.RandomSeed, opts.Cities)
	users, err := f.CreateUsers(opts.Users)
	if err != nil {
		return nil, err
	}
	log.Printf("✓ %d users created", len(users))

	swipes := newSwipeService(db)
	res := &Result{Users: users}
	for i := range users {
		for _, j := range f.Pick(len(users), opts.SwipesPerUser, i) {
			dir := models.SwipePass
			if f.Percent(opts.LikePercent) {
				dir = models.SwipeLike
			}
			out, err := swipes.RecordSwipe(ctx, service.SwipeInput{
				SwiperID:  users[i].ID,
				TargetID:  users[j].ID,
				Direction: dir,
			})
			if err != nil {
				return nil, fmt.Errorf("swipe %d->%d: %w", users[i].ID, users[j].ID, err)
			}
			res.Swipes++
			if out.IsMatch {
				res.Matches++
			}
		}
	}
	log.Printf("✓ %d swipes, %d matches", res.Swipes, res.Matches)
	return res, nil
}

func newSwipeService(db *gorm.DB) *service.SwipeService {
	users := repository.NewUserRepository(db)
	swipes := repository.NewSwipeRepository(db)
	matches := service.NewMatchService(repository.NewMatchRepository(db), swipes, users,
		repository.NewHostRepository(db), nil, nil, nil, nil)
	return service.NewSwipeService(swipes, users, repository.NewReportRepository(db), matches)
}

func clearData(db *gorm.DB) error {
	log.Println("🗑️  Clearing existing data...")
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE host_messages, host_sessions, messages, conversation_rooms,
			matches, reports, swipes, users RESTART IDENTITY CASCADE`).Error
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{
			&models.HostMessage{}, &models.HostSession{}, &models.Message{}, &models.ConversationRoom{},
			&models.Match{}, &models.Report{}, &models.Swipe{}, &models.User{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
