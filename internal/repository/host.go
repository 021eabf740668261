package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kindred/internal/models"
	"kindred/internal/observability"

	"gorm.io/gorm"
)

// HostRepository persists host sessions and their transcript.
type HostRepository interface {
	GetByRoom(ctx context.Context, roomID uint) (*models.HostSession, error)
	FindOrCreate(ctx context.Context, roomID uint) (*models.HostSession, error)
	WithLockedSession(ctx context.Context, roomID uint, fn func(tx *gorm.DB, session *models.HostSession) error) error
	Save(tx *gorm.DB, session *models.HostSession) error
	AppendMessage(tx *gorm.DB, msg *models.HostMessage) error
	ListMessages(ctx context.Context, sessionID uint, cursor string, limit int) ([]models.HostMessage, string, error)
}

type hostRepository struct {
	db *gorm.DB
}

// NewHostRepository returns a new HostRepository implementation.
func NewHostRepository(db *gorm.DB) HostRepository {
	return &hostRepository{db: db}
}

func (r *hostRepository) GetByRoom(ctx context.Context, roomID uint) (*models.HostSession, error) {
	var session models.HostSession
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("HostSession", roomID)
		}
		return nil, models.NewInternalError(err)
	}
	return &session, nil
}

// FindOrCreate returns the room's session, creating a pending one on first
// use. Losing an insert race to another request falls back to reading the winner.
func (r *hostRepository) FindOrCreate(ctx context.Context, roomID uint) (*models.HostSession, error) {
	session, err := r.GetByRoom(ctx, roomID)
	if err == nil {
		return session, nil
	}
	if !models.HasCode(err, models.CodeNotFound) {
		return nil, err
	}

	session = &models.HostSession{
		RoomID:       roomID,
		Status:       models.HostPending,
		CurrentStage: models.StageWaiting,
	}
	session.SetData(models.StageData{})
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		if IsUniqueViolation(err) {
			return r.GetByRoom(ctx, roomID)
		}
		return nil, models.NewInternalError(err)
	}
	return session, nil
}

// WithLockedSession runs fn in a transaction holding the session row lock so
// read-modify-write sequences on one session are serialized. The session is
// created first if it does not exist.
func (r *hostRepository) WithLockedSession(ctx context.Context, roomID uint, fn func(tx *gorm.DB, session *models.HostSession) error) error {
	if _, err := r.FindOrCreate(ctx, roomID); err != nil {
		return err
	}
	defer observability.TrackQuery("locked_update", "host_sessions")()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.HostSession
		if err := forUpdate(tx).Where("room_id = ?", roomID).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("HostSession", roomID)
			}
			return err
		}
		return fn(tx, &session)
	})
}

func (r *hostRepository) Save(tx *gorm.DB, session *models.HostSession) error {
	return tx.Omit("Messages").Save(session).Error
}

func (r *hostRepository) AppendMessage(tx *gorm.DB, msg *models.HostMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return tx.Create(msg).Error
}

type transcriptCursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uint      `json:"id"`
}

func encodeCursor(m models.HostMessage) string {
	b, _ := json.Marshal(transcriptCursor{CreatedAt: m.CreatedAt, ID: m.ID})
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (*transcriptCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var c transcriptCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListMessages pages the transcript in ascending order. The returned cursor is
// empty when there are no further rows.
func (r *hostRepository) ListMessages(ctx context.Context, sessionID uint, cursor string, limit int) ([]models.HostMessage, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if cursor != "" {
		c, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", models.NewValidationError(fmt.Sprintf("invalid cursor: %v", err))
		}
		q = q.Where("(created_at > ?) OR (created_at = ? AND id > ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}

	var messages []models.HostMessage
	if err := q.Order("created_at ASC, id ASC").Limit(limit + 1).Find(&messages).Error; err != nil {
		return nil, "", models.NewInternalError(err)
	}

	next := ""
	if len(messages) > limit {
		messages = messages[:limit]
		next = encodeCursor(messages[len(messages)-1])
	}
	return messages, next, nil
}
