package models

import "time"

// SwipeDirection is the verdict a user gives another profile.
type SwipeDirection string

const (
	SwipeLike SwipeDirection = "like"
	SwipePass SwipeDirection = "pass"
)

// Valid reports whether d is a known direction.
func (d SwipeDirection) Valid() bool {
	return d == SwipeLike || d == SwipePass
}

// Swipe is one directional verdict. The (swiper, swiped) pair is unique; rows
// are never updated, only deleted by reset, unmatch and report flows.
type Swipe struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	SwiperID  uint           `gorm:"not null;uniqueIndex:idx_swipes_pair,priority:1" json:"swiper_id"`
	SwipedID  uint           `gorm:"not null;uniqueIndex:idx_swipes_pair,priority:2;index:idx_swipes_swiped" json:"swiped_id"`
	Direction SwipeDirection `gorm:"size:8;not null" json:"direction"`
	CreatedAt time.Time      `json:"created_at"`
}
