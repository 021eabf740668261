package repository

import (
	"context"
	"testing"

	"kindred/internal/models"
	"kindred/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRepository_CreateWithRoom(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewMatchRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "Alice")
	bob := testutil.CreateUser(t, db, "Bob")

	match, err := repo.CreateWithRoom(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, match.User1ID)
	assert.Equal(t, bob.ID, match.User2ID)
	require.NotNil(t, match.Room)
	assert.Equal(t, match.ID, match.Room.MatchID)

	_, err = repo.CreateWithRoom(ctx, alice.ID, bob.ID)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	var rooms int64
	db.Model(&models.ConversationRoom{}).Count(&rooms)
	assert.Equal(t, int64(1), rooms, "failed insert must not leave a room behind")

	found, err := repo.FindByPair(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, match.ID, found.ID)
	assert.Equal(t, match.Room.ID, found.Room.ID)
}

func TestMatchRepository_FindByPairMissing(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewMatchRepository(db)

	found, err := repo.FindByPair(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestMatchRepository_ListForUser(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewMatchRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "Alice")
	bob := testutil.CreateUser(t, db, "Bob")
	carol := testutil.CreateUser(t, db, "Carol")
	testutil.CreateMatch(t, db, alice.ID, bob.ID)
	testutil.CreateMatch(t, db, carol.ID, alice.ID)
	testutil.CreateMatch(t, db, bob.ID, carol.ID)

	matches, err := repo.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.True(t, m.HasUser(alice.ID))
		assert.NotNil(t, m.Room)
	}
}

func TestMatchRepository_DeleteCascade(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewMatchRepository(db)
	hosts := NewHostRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "Alice")
	bob := testutil.CreateUser(t, db, "Bob")
	carol := testutil.CreateUser(t, db, "Carol")
	doomed := testutil.CreateMatch(t, db, alice.ID, bob.ID)
	kept := testutil.CreateMatch(t, db, alice.ID, carol.ID)

	for _, m := range []*models.Match{doomed, kept} {
		require.NoError(t, db.Create(&models.Message{RoomID: m.Room.ID, SenderID: alice.ID, Content: "hi"}).Error)
		session, err := hosts.FindOrCreate(ctx, m.Room.ID)
		require.NoError(t, err)
		require.NoError(t, hosts.AppendMessage(db, &models.HostMessage{
			SessionID: session.ID, SenderType: models.HostSenderHost, Content: "hello", MessageType: models.HostMessageText,
		}))
	}
	require.NoError(t, db.Create(&models.Message{
		RoomID: doomed.Room.ID, SenderID: bob.ID, MessageType: models.MessageTypeImage, MediaID: "abc.webp",
	}).Error)

	between, err := repo.ListBetween(db, bob.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, between, 1)

	mediaIDs, err := repo.MediaIDs(db, []uint{doomed.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc.webp"}, mediaIDs)

	require.NoError(t, repo.DeleteCascade(db, []uint{doomed.ID}))

	count := func(model any) int64 {
		var n int64
		db.Model(model).Count(&n)
		return n
	}
	assert.Equal(t, int64(1), count(&models.Match{}))
	assert.Equal(t, int64(1), count(&models.ConversationRoom{}))
	assert.Equal(t, int64(1), count(&models.Message{}))
	assert.Equal(t, int64(1), count(&models.HostSession{}))
	assert.Equal(t, int64(1), count(&models.HostMessage{}))

	_, err = repo.GetByID(ctx, kept.ID)
	assert.NoError(t, err)
	_, err = repo.GetByID(ctx, doomed.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}
