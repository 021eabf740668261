package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"kindred/internal/media"
	"kindred/internal/models"
	"kindred/internal/notifications"
	"kindred/internal/repository"
)

// MaxMessageLength caps a chat message, in runes.
const MaxMessageLength = 2000

// SendMessageInput is a chat message. Image is optional; a message needs text,
// an image, or both.
type SendMessageInput struct {
	Content string
	Image   *media.UploadInput
}

// ChatService stores and relays the pair's ordinary room messages.
type ChatService struct {
	chats     repository.ChatRepository
	matches   repository.MatchRepository
	store     media.Store
	publisher EventPublisher
	now       func() time.Time
}

// NewChatService returns a new ChatService.
func NewChatService(chats repository.ChatRepository, matches repository.MatchRepository, store media.Store, publisher EventPublisher) *ChatService {
	return &ChatService{
		chats:     chats,
		matches:   matches,
		store:     store,
		publisher: publisherOrNoop(publisher),
		now:       time.Now,
	}
}

// SendMessage stores a message in the match's room and relays it.
func (s *ChatService) SendMessage(ctx context.Context, userID, matchID uint, in SendMessageInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.Image == nil {
		return nil, models.NewValidationError("Message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, models.NewValidationError("Message is too long")
	}

	match, err := loadParticipantMatch(ctx, s.matches, matchID, userID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		RoomID:      match.Room.ID,
		SenderID:    userID,
		Content:     content,
		MessageType: models.MessageTypeText,
		CreatedAt:   s.now().UTC(),
	}
	if in.Image != nil {
		if s.store == nil {
			return nil, models.NewValidationError("Image messages are not available")
		}
		in.Image.OwnerID = userID
		obj, err := s.store.Upload(ctx, *in.Image)
		if err != nil {
			return nil, err
		}
		msg.MessageType = models.MessageTypeImage
		msg.MediaID = obj.ID
		msg.MediaURL = obj.URL
	}

	if err := s.chats.CreateMessage(ctx, msg); err != nil {
		if msg.MediaID != "" {
			_ = s.store.Delete(ctx, msg.MediaID)
		}
		return nil, models.NewInternalError(err)
	}

	publishRoom(ctx, s.publisher, msg.RoomID, notifications.Event{Type: notifications.EventChatMessage, Payload: msg})
	return msg, nil
}

// ListMessages returns the room's messages, newest first.
func (s *ChatService) ListMessages(ctx context.Context, userID, matchID uint, limit, offset int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	match, err := loadParticipantMatch(ctx, s.matches, matchID, userID)
	if err != nil {
		return nil, err
	}
	messages, err := s.chats.GetMessages(ctx, match.Room.ID, limit, offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return messages, nil
}
