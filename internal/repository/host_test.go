package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"kindred/internal/models"
	"kindred/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestHostRepository_FindOrCreate(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewHostRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "Alice")
	bob := testutil.CreateUser(t, db, "Bob")
	m := testutil.CreateMatch(t, db, alice.ID, bob.ID)

	_, err := repo.GetByRoom(ctx, m.Room.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	first, err := repo.FindOrCreate(ctx, m.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostPending, first.Status)
	assert.Equal(t, models.StageWaiting, first.CurrentStage)

	second, err := repo.FindOrCreate(ctx, m.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestHostRepository_WithLockedSession(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewHostRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "Alice")
	bob := testutil.CreateUser(t, db, "Bob")
	m := testutil.CreateMatch(t, db, alice.ID, bob.ID)

	err := repo.WithLockedSession(ctx, m.Room.ID, func(tx *gorm.DB, s *models.HostSession) error {
		s.SetOptIn(models.HostSenderUser1, true)
		if err := repo.Save(tx, s); err != nil {
			return err
		}
		return repo.AppendMessage(tx, &models.HostMessage{
			SessionID: s.ID, SenderType: models.HostSenderHost, Content: "welcome", MessageType: models.HostMessageText,
		})
	})
	require.NoError(t, err)

	s, err := repo.GetByRoom(ctx, m.Room.ID)
	require.NoError(t, err)
	assert.True(t, s.User1OptIn)

	rollback := errors.New("boom")
	err = repo.WithLockedSession(ctx, m.Room.ID, func(tx *gorm.DB, s *models.HostSession) error {
		s.SetOptIn(models.HostSenderUser2, true)
		require.NoError(t, repo.Save(tx, s))
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	s, err = repo.GetByRoom(ctx, m.Room.ID)
	require.NoError(t, err)
	assert.False(t, s.User2OptIn, "failed callback rolls back")
}

func TestHostRepository_ListMessagesCursor(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewHostRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "Alice")
	bob := testutil.CreateUser(t, db, "Bob")
	m := testutil.CreateMatch(t, db, alice.ID, bob.ID)
	s, err := repo.FindOrCreate(ctx, m.Room.ID)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendMessage(db, &models.HostMessage{
			SessionID:   s.ID,
			SenderType:  models.HostSenderHost,
			Content:     "line",
			MessageType: models.HostMessageText,
			// Two rows share a timestamp so the id tiebreak is exercised.
			CreatedAt: base.Add(time.Duration(i/2) * time.Second),
		}))
	}

	var seen []uint
	cursor := ""
	for page := 0; page < 5; page++ {
		msgs, next, err := repo.ListMessages(ctx, s.ID, cursor, 2)
		require.NoError(t, err)
		for _, msg := range msgs {
			seen = append(seen, msg.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}

	_, _, err = repo.ListMessages(ctx, s.ID, "not-a-cursor!", 10)
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func TestHostRepository_LocksRowOnPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewHostRepository(db)

	cols := []string{"id", "room_id", "status", "current_stage"}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "host_sessions" WHERE room_id = $1`)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, 7, "pending", "STAGE_0"))
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, 7, "pending", "STAGE_0"))
	mock.ExpectCommit()

	var locked *models.HostSession
	err := repo.WithLockedSession(context.Background(), 7, func(_ *gorm.DB, s *models.HostSession) error {
		locked = s
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, locked)
	assert.Equal(t, uint(3), locked.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: swipes.swiper_id, swipes.swiped_id")))
	assert.False(t, IsUniqueViolation(errors.New("connection reset")))
}
