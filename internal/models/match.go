package models

import "time"

// Match links two users who liked each other. User1ID is always the smaller
// id so a pair maps to exactly one row.
type Match struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	User1ID   uint              `gorm:"not null;uniqueIndex:idx_matches_pair,priority:1" json:"user1_id"`
	User2ID   uint              `gorm:"not null;uniqueIndex:idx_matches_pair,priority:2;index:idx_matches_user2" json:"user2_id"`
	MatchedAt time.Time         `gorm:"not null" json:"matched_at"`
	Room      *ConversationRoom `gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE" json:"room,omitempty"`
}

// CanonicalPair orders two user ids as (user1, user2).
func CanonicalPair(a, b uint) (uint, uint) {
	if a < b {
		return a, b
	}
	return b, a
}

// HasUser reports whether userID participates in the match.
func (m *Match) HasUser(userID uint) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// OtherUserID returns the participant that is not userID.
func (m *Match) OtherUserID(userID uint) uint {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}

// ConversationRoom is the one-per-match container for chat and the host session.
type ConversationRoom struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MatchID   uint      `gorm:"not null;uniqueIndex" json:"match_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message types for ordinary room messages.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// Message is an ordinary chat message between the matched pair.
type Message struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RoomID      uint      `gorm:"not null;index:idx_messages_room_created,priority:1" json:"room_id"`
	SenderID    uint      `gorm:"not null" json:"sender_id"`
	Content     string    `gorm:"type:text" json:"content"`
	MessageType string    `gorm:"size:16;default:'text'" json:"message_type"`
	MediaID     string    `gorm:"size:128" json:"media_id,omitempty"`
	MediaURL    string    `json:"media_url,omitempty"`
	CreatedAt   time.Time `gorm:"index:idx_messages_room_created,priority:2" json:"created_at"`
}

// MatchView is a match as seen by one participant.
type MatchView struct {
	Match      *Match         `json:"match"`
	RoomID     uint           `json:"room_id"`
	Partner    ProfileSummary `json:"partner"`
	HostStatus HostStatus     `json:"host_status,omitempty"`
}
