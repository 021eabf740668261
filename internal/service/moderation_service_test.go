package service

import (
	"context"
	"errors"
	"testing"

	"kindred/internal/models"
	"kindred/internal/notifications"
	"kindred/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matchedWithContent builds a match between two users with mutual likes,
// chat messages (one carrying media) and an active host session.
func matchedWithContent(t *testing.T, f *fixture) hostPair {
	t.Helper()
	ctx := context.Background()
	a := testutil.CreateUser(t, f.db, "Ana")
	b := testutil.CreateUser(t, f.db, "Bea")

	_, err := f.swipes.RecordSwipe(ctx, like(a.ID, b.ID))
	require.NoError(t, err)
	res, err := f.swipes.RecordSwipe(ctx, like(b.ID, a.ID))
	require.NoError(t, err)
	require.True(t, res.IsMatch)

	match, err := f.matchRepo.GetByID(ctx, res.Match.Match.ID)
	require.NoError(t, err)
	p := hostPair{a: a, b: b, match: match}

	require.NoError(t, f.db.Create(&models.Message{RoomID: match.Room.ID, SenderID: a.ID, Content: "hi", MessageType: models.MessageTypeText}).Error)
	require.NoError(t, f.db.Create(&models.Message{RoomID: match.Room.ID, SenderID: b.ID, MessageType: models.MessageTypeImage, MediaID: "photo-1.webp", MediaURL: "/media/photo-1.webp"}).Error)
	activate(t, f, p)
	return p
}

func assertPairGone(t *testing.T, f *fixture, p hostPair) {
	t.Helper()
	a, b := p.a.ID, p.b.ID
	assert.EqualValues(t, 0, f.count(t, &models.Match{}, "id = ?", p.match.ID))
	assert.EqualValues(t, 0, f.count(t, &models.ConversationRoom{}, "match_id = ?", p.match.ID))
	assert.EqualValues(t, 0, f.count(t, &models.HostSession{}, "room_id = ?", p.match.Room.ID))
	assert.EqualValues(t, 0, f.count(t, &models.HostMessage{}, ""))
	assert.EqualValues(t, 0, f.count(t, &models.Message{}, "room_id = ?", p.match.Room.ID))
	assert.EqualValues(t, 0, f.count(t, &models.Swipe{},
		"(swiper_id = ? AND swiped_id = ?) OR (swiper_id = ? AND swiped_id = ?)", a, b, b, a))
}

func TestSubmitReport_ByMatchRemovesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := matchedWithContent(t, f)
	bystander := testutil.CreateUser(t, f.db, "Cat")

	matchID := p.match.ID
	res, err := f.moderation.SubmitReport(ctx, ReportInput{
		ReporterID: p.a.ID,
		MatchID:    &matchID,
		Category:   models.ReportHarassment,
		Reason:     "rude messages",
	})
	require.NoError(t, err)
	assert.NotZero(t, res.ReportID)
	assert.False(t, res.AlreadyFiled)
	assert.Equal(t, 1, res.MatchesRemoved)

	assertPairGone(t, f, p)
	assert.Equal(t, []string{"photo-1.webp"}, f.store.deleted)
	assert.Equal(t, []uint{p.match.Room.ID}, f.rooms.closed)
	assert.Len(t, f.publisher.ofType(notifications.EventMatchRemoved), 2)

	var report models.Report
	require.NoError(t, f.db.First(&report, res.ReportID).Error)
	assert.Equal(t, p.b.ID, report.ReportedID)
	assert.Equal(t, models.ReportPending, report.Status)

	forA, err := f.swipes.GetCandidates(ctx, p.a.ID, CandidateQuery{})
	require.NoError(t, err)
	assert.Equal(t, []uint{bystander.ID}, summaryIDs(forA))
	forB, err := f.swipes.GetCandidates(ctx, p.b.ID, CandidateQuery{})
	require.NoError(t, err)
	assert.Equal(t, []uint{bystander.ID}, summaryIDs(forB))
}

func TestSubmitReport_BlocksSwipesBothWays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := matchedWithContent(t, f)

	_, err := f.moderation.SubmitReport(ctx, ReportInput{
		ReporterID:     p.a.ID,
		ReportedUserID: p.b.ID,
		Category:       models.ReportSpam,
	})
	require.NoError(t, err)

	_, err = f.swipes.RecordSwipe(ctx, like(p.a.ID, p.b.ID))
	assert.True(t, models.HasCode(err, models.CodeForbidden))
	_, err = f.swipes.RecordSwipe(ctx, like(p.b.ID, p.a.ID))
	assert.True(t, models.HasCode(err, models.CodeForbidden))

	assert.EqualValues(t, 0, f.count(t, &models.Swipe{}, ""))
	assert.EqualValues(t, 0, f.count(t, &models.Match{}, ""))
}

func TestSubmitReport_MediaFailureDoesNotBlockCleanup(t *testing.T) {
	f := newFixture(t)
	p := matchedWithContent(t, f)
	f.store.deleteErr = errors.New("bucket unavailable")

	res, err := f.moderation.SubmitReport(context.Background(), ReportInput{
		ReporterID:     p.b.ID,
		ReportedUserID: p.a.ID,
		Category:       models.ReportSpam,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchesRemoved)
	assert.Len(t, f.store.deleted, 1)
	assertPairGone(t, f, p)
}

func TestSubmitReport_RepeatStillCleansUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, f.db, "Ana")
	b := testutil.CreateUser(t, f.db, "Bea")

	in := ReportInput{ReporterID: a.ID, ReportedUserID: b.ID, Category: models.ReportFakeProfile}
	_, err := f.moderation.SubmitReport(ctx, in)
	require.NoError(t, err)

	// b liked a before seeing the report take effect.
	require.NoError(t, f.swipeRepo.Create(ctx, &models.Swipe{SwiperID: b.ID, SwipedID: a.ID, Direction: models.SwipeLike}))

	again, err := f.moderation.SubmitReport(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.AlreadyFiled)
	assert.Zero(t, again.ReportID)
	assert.EqualValues(t, 1, f.count(t, &models.Report{}, ""))
	assert.EqualValues(t, 0, f.count(t, &models.Swipe{}, ""))
}

func TestSubmitReport_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, f.db, "Ana")
	b := testutil.CreateUser(t, f.db, "Bea")
	c := testutil.CreateUser(t, f.db, "Cat")
	m := testutil.CreateMatch(t, f.db, b.ID, c.ID)

	_, err := f.moderation.SubmitReport(ctx, ReportInput{ReporterID: a.ID, ReportedUserID: b.ID, Category: "boring"})
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = f.moderation.SubmitReport(ctx, ReportInput{ReporterID: a.ID, Category: models.ReportOther})
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = f.moderation.SubmitReport(ctx, ReportInput{ReporterID: a.ID, ReportedUserID: a.ID, Category: models.ReportOther})
	assert.True(t, models.HasCode(err, models.CodeValidation))

	_, err = f.moderation.SubmitReport(ctx, ReportInput{ReporterID: a.ID, MatchID: &m.ID, Category: models.ReportOther})
	assert.True(t, models.HasCode(err, models.CodeForbidden))

	_, err = f.moderation.SubmitReport(ctx, ReportInput{ReporterID: a.ID, ReportedUserID: 9999, Category: models.ReportOther})
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	assert.EqualValues(t, 0, f.count(t, &models.Report{}, ""))
	assert.EqualValues(t, 1, f.count(t, &models.Match{}, ""))
}

func TestUnmatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := matchedWithContent(t, f)
	outsider := testutil.CreateUser(t, f.db, "Olga")

	_, err := f.moderation.Unmatch(ctx, outsider.ID, p.match.ID)
	assert.True(t, models.HasCode(err, models.CodeForbidden))

	res, err := f.moderation.Unmatch(ctx, p.b.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchesRemoved)
	assertPairGone(t, f, p)
	assert.EqualValues(t, 0, f.count(t, &models.Report{}, ""))

	_, err = f.moderation.Unmatch(ctx, p.b.ID, p.match.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	_, err = f.hosts.GetSession(ctx, p.a.ID, p.match.ID)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}
