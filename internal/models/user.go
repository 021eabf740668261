// Package models contains data structures for the application's domain models.
package models

import (
	"math"
	"time"
)

// Gender values stored on profiles and accepted as candidate filters.
const (
	GenderFemale    = "female"
	GenderMale      = "male"
	GenderNonBinary = "nonbinary"
)

// User is the identity anchor for swipes, matches and reports. Authentication
// and profile editing live in other services; this table is a read model.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Phone       string    `gorm:"size:32;uniqueIndex" json:"-"`
	DisplayName string    `gorm:"size:80;not null" json:"display_name"`
	Gender      string    `gorm:"size:16;index" json:"gender"`
	BirthDate   time.Time `json:"-"`
	Bio         string    `gorm:"size:500" json:"bio"`
	PhotoURL    string    `json:"photo_url"`
	Latitude    *float64  `json:"-"`
	Longitude   *float64  `json:"-"`
	IsVerified  bool      `gorm:"default:false" json:"is_verified"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Age returns the user's age in whole years at now.
func (u *User) Age(now time.Time) int {
	if u.BirthDate.IsZero() {
		return 0
	}
	years := now.Year() - u.BirthDate.Year()
	if now.Month() < u.BirthDate.Month() ||
		(now.Month() == u.BirthDate.Month() && now.Day() < u.BirthDate.Day()) {
		years--
	}
	return years
}

// HasLocation reports whether both coordinates are known.
func (u *User) HasLocation() bool {
	return u.Latitude != nil && u.Longitude != nil
}

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance to other, false when either
// location is unknown.
func (u *User) DistanceKm(other *User) (float64, bool) {
	if !u.HasLocation() || !other.HasLocation() {
		return 0, false
	}
	lat1, lat2 := radians(*u.Latitude), radians(*other.Latitude)
	dLat := lat2 - lat1
	dLon := radians(*other.Longitude - *u.Longitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a)), true
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// ProfileSummary is the public view of another user.
type ProfileSummary struct {
	ID          uint     `json:"id"`
	DisplayName string   `json:"display_name"`
	Age         int      `json:"age"`
	Gender      string   `json:"gender"`
	Bio         string   `json:"bio"`
	PhotoURL    string   `json:"photo_url"`
	IsVerified  bool     `json:"is_verified"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
}

// Summary builds the public profile view.
func (u *User) Summary(now time.Time) ProfileSummary {
	return ProfileSummary{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Age:         u.Age(now),
		Gender:      u.Gender,
		Bio:         u.Bio,
		PhotoURL:    u.PhotoURL,
		IsVerified:  u.IsVerified,
	}
}
