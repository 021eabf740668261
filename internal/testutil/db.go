// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"kindred/internal/database"
	"kindred/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var phoneSeq atomic.Int64

// NewSQLiteDB opens a private in-memory database with the full schema.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// UserOption customises a fixture user.
type UserOption func(*models.User)

// WithGender sets the fixture gender.
func WithGender(g string) UserOption {
	return func(u *models.User) { u.Gender = g }
}

// WithAge sets the birth date so the user is age years old today.
func WithAge(age int) UserOption {
	return func(u *models.User) {
		u.BirthDate = time.Now().UTC().AddDate(-age, 0, -1)
	}
}

// WithLocation sets the fixture coordinates.
func WithLocation(lat, lon float64) UserOption {
	return func(u *models.User) {
		u.Latitude = &lat
		u.Longitude = &lon
	}
}

// CreateUser inserts a user with a unique phone number.
func CreateUser(t *testing.T, db *gorm.DB, name string, opts ...UserOption) *models.User {
	t.Helper()
	u := &models.User{
		Phone:       fmt.Sprintf("+4470000%05d", phoneSeq.Add(1)),
		DisplayName: name,
		Gender:      models.GenderFemale,
		BirthDate:   time.Now().UTC().AddDate(-28, 0, -1),
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateMatch inserts a canonical match with its room.
func CreateMatch(t *testing.T, db *gorm.DB, a, b uint) *models.Match {
	t.Helper()
	u1, u2 := models.CanonicalPair(a, b)
	m := &models.Match{User1ID: u1, User2ID: u2, MatchedAt: time.Now().UTC()}
	require.NoError(t, db.Omit("Room").Create(m).Error)
	room := &models.ConversationRoom{MatchID: m.ID}
	require.NoError(t, db.Create(room).Error)
	m.Room = room
	return m
}
