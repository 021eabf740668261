package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"kindred/internal/models"
	"kindred/internal/notifications"
	"kindred/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hostPair struct {
	a, b  *models.User
	match *models.Match
}

func newHostPair(t *testing.T, f *fixture) hostPair {
	t.Helper()
	a := testutil.CreateUser(t, f.db, "Ana")
	b := testutil.CreateUser(t, f.db, "Bea")
	return hostPair{a: a, b: b, match: testutil.CreateMatch(t, f.db, a.ID, b.ID)}
}

func activate(t *testing.T, f *fixture, p hostPair) *HostSessionView {
	t.Helper()
	ctx := context.Background()
	_, err := f.hosts.OptIn(ctx, p.a.ID, p.match.ID)
	require.NoError(t, err)
	view, err := f.hosts.OptIn(ctx, p.b.ID, p.match.ID)
	require.NoError(t, err)
	require.Equal(t, models.HostActive, view.Status)
	return view
}

func answerRound(t *testing.T, f *fixture, p hostPair, answer string) *HostSessionView {
	t.Helper()
	ctx := context.Background()
	view, err := f.hosts.GetSession(ctx, p.a.ID, p.match.ID)
	require.NoError(t, err)

	_, err = f.hosts.SubmitAnswer(ctx, p.a.ID, p.match.ID, AnswerInput{Answer: answer, QuestionID: view.QuestionID})
	require.NoError(t, err)
	res, err := f.hosts.SubmitAnswer(ctx, p.b.ID, p.match.ID, AnswerInput{Answer: answer, QuestionID: view.QuestionID})
	require.NoError(t, err)
	return res.Session
}

func transcript(t *testing.T, f *fixture, p hostPair) []models.HostMessage {
	t.Helper()
	page, err := f.hosts.ListMessages(context.Background(), p.a.ID, p.match.ID, "", 100)
	require.NoError(t, err)
	return page.Messages
}

func ofKind(msgs []models.HostMessage, kind string) []models.HostMessage {
	var out []models.HostMessage
	for _, m := range msgs {
		if m.Metadata.Data().Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func TestHostSession_FirstViewIsPending(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)

	view, err := f.hosts.GetSession(context.Background(), p.b.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostPending, view.Status)
	assert.Equal(t, models.StageWaiting, view.CurrentStage)
	assert.False(t, view.YouOptedIn)
	assert.False(t, view.PartnerOptedIn)
}

func TestHostSession_OutsiderIsForbidden(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	outsider := testutil.CreateUser(t, f.db, "Olga")

	_, err := f.hosts.OptIn(context.Background(), outsider.ID, p.match.ID)
	assert.True(t, models.HasCode(err, models.CodeForbidden))
}

func TestHostSession_BothOptInStartsIceBreakerOnce(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()

	first, err := f.hosts.OptIn(ctx, p.a.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostPending, first.Status)
	assert.True(t, first.YouOptedIn)
	assert.Empty(t, transcript(t, f, p))

	view, err := f.hosts.OptIn(ctx, p.b.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostActive, view.Status)
	assert.Equal(t, models.StageIceBreaker, view.CurrentStage)
	assert.Equal(t, 1, view.Round)
	assert.NotEmpty(t, view.QuestionID)

	// Opting in again while active changes nothing.
	again, err := f.hosts.OptIn(ctx, p.a.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageIceBreaker, again.CurrentStage)

	msgs := transcript(t, f, p)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.HostKindIntro, msgs[0].Metadata.Data().Kind)
	prompt := msgs[1]
	assert.Equal(t, models.HostMessageQuestion, prompt.MessageType)
	assert.Equal(t, models.StageIceBreaker, prompt.Metadata.Data().Stage)
	assert.Equal(t, view.QuestionID, prompt.Metadata.Data().QuestionID)

	hostEvents := f.publisher.ofType(notifications.EventHostMessage)
	require.Len(t, hostEvents, 2)
	assert.Equal(t, p.match.Room.ID, hostEvents[0].roomID)
	assert.ElementsMatch(t, []uint{p.a.ID, p.b.ID}, f.pusher.sent)
}

func TestHostSession_ConcurrentOptInActivatesOnce(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)

	var wg sync.WaitGroup
	for _, id := range []uint{p.a.ID, p.b.ID} {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := f.hosts.OptIn(context.Background(), userID, p.match.ID)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	view, err := f.hosts.GetSession(context.Background(), p.a.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostActive, view.Status)
	assert.Len(t, ofKind(transcript(t, f, p), models.HostKindPrompt), 1)
	assert.EqualValues(t, 1, f.count(t, &models.HostSession{}, ""))
}

func TestHostSession_SingleAnswerDoesNotAdvance(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()
	view := activate(t, f, p)

	res, err := f.hosts.SubmitAnswer(ctx, p.a.ID, p.match.ID, AnswerInput{Answer: "Pancakes and a long walk", QuestionID: view.QuestionID})
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.False(t, res.Advanced)
	assert.Equal(t, models.StageIceBreaker, res.Session.CurrentStage)
	assert.True(t, res.Session.YouAnswered)

	partner, err := f.hosts.GetSession(ctx, p.b.ID, p.match.ID)
	require.NoError(t, err)
	assert.True(t, partner.PartnerAnswered)
	assert.False(t, partner.YouAnswered)

	// A repeat from the same user is kept in the transcript only.
	dup, err := f.hosts.SubmitAnswer(ctx, p.a.ID, p.match.ID, AnswerInput{Answer: "Actually, brunch", QuestionID: view.QuestionID})
	require.NoError(t, err)
	assert.False(t, dup.Recorded)
	assert.False(t, dup.Advanced)

	session, err := f.hostRepo.GetByRoom(ctx, p.match.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pancakes and a long walk", session.Data().AnswersByUser[p.a.ID])
	assert.Len(t, ofKind(transcript(t, f, p), models.HostKindAnswer), 2)
	assert.Len(t, f.publisher.ofType(notifications.EventHostAnswer), 2)
}

func TestHostSession_BothAnswersAdvance(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()
	view := activate(t, f, p)

	_, err := f.hosts.SubmitAnswer(ctx, p.a.ID, p.match.ID, AnswerInput{Answer: "Pasta", QuestionID: view.QuestionID})
	require.NoError(t, err)
	res, err := f.hosts.SubmitAnswer(ctx, p.b.ID, p.match.ID, AnswerInput{Answer: "Ramen", QuestionID: view.QuestionID})
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.Equal(t, models.StageThisOrThat, res.Session.CurrentStage)
	assert.Equal(t, 1, res.Session.Round)
	assert.Equal(t, 3, res.Session.Rounds)
	assert.False(t, res.Session.YouAnswered)

	last := res.Messages[len(res.Messages)-1]
	assert.Equal(t, models.HostMessageGamePrompt, last.MessageType)
	meta := last.Metadata.Data()
	assert.Equal(t, models.GameThisOrThat, meta.GameType)
	assert.NotEmpty(t, meta.Options)

	// Rounds repeat within a stage before moving on.
	round2 := answerRound(t, f, p, "Beach")
	assert.Equal(t, models.StageThisOrThat, round2.CurrentStage)
	assert.Equal(t, 2, round2.Round)
	assert.NotEqual(t, res.Session.QuestionID, round2.QuestionID)
	assert.NotEmpty(t, ofKind(transcript(t, f, p), models.HostKindCommentary))
}

func TestHostSession_StaleAnswerIsTranscriptOnly(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()
	activate(t, f, p)
	round1 := answerRound(t, f, p, "Pizza")
	require.Equal(t, models.StageThisOrThat, round1.CurrentStage)
	round2 := answerRound(t, f, p, "Beach")
	require.Equal(t, 2, round2.Round)

	res, err := f.hosts.SubmitAnswer(ctx, p.a.ID, p.match.ID, AnswerInput{Answer: "Mountains", QuestionID: round1.QuestionID})
	require.NoError(t, err)
	assert.False(t, res.Recorded)
	assert.False(t, res.Advanced)
	assert.Equal(t, 2, res.Session.Round)
	assert.False(t, res.Session.YouAnswered)
	assert.True(t, res.Messages[0].Metadata.Data().Stale)
}

func TestHostSession_RoundsAskDistinctPrompts(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	activate(t, f, p)
	view := answerRound(t, f, p, "Pizza")
	require.Equal(t, models.StageThisOrThat, view.CurrentStage)

	questions := []string{view.QuestionID}
	for round := 2; round <= 3; round++ {
		view = answerRound(t, f, p, "Beach")
		require.Equal(t, models.StageThisOrThat, view.CurrentStage)
		require.Equal(t, round, view.Round)
		questions = append(questions, view.QuestionID)
	}
	assert.Len(t, questions, 3)
	assert.NotEqual(t, questions[0], questions[1])
	assert.NotEqual(t, questions[0], questions[2])
	assert.NotEqual(t, questions[1], questions[2])

	var prompts []string
	for _, m := range ofKind(transcript(t, f, p), models.HostKindPrompt) {
		if m.Metadata.Data().Stage == models.StageThisOrThat {
			prompts = append(prompts, m.Content)
		}
	}
	require.Len(t, prompts, 3)
	assert.NotEqual(t, prompts[0], prompts[2])
	assert.NotEqual(t, prompts[0], prompts[1])
	assert.NotEqual(t, prompts[1], prompts[2])

	session, err := f.hostRepo.GetByRoom(context.Background(), p.match.Room.ID)
	require.NoError(t, err)
	assert.Len(t, session.Data().Asked, 3)
}

func TestHostSession_LateFirstRoundAnswerIsStaleInLastRound(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()
	activate(t, f, p)
	round1 := answerRound(t, f, p, "Pizza")
	answerRound(t, f, p, "Beach")
	round3 := answerRound(t, f, p, "Coffee")
	require.Equal(t, models.StageThisOrThat, round3.CurrentStage)
	require.Equal(t, 3, round3.Round)

	res, err := f.hosts.SubmitAnswer(ctx, p.b.ID, p.match.ID, AnswerInput{Answer: "Mountains", QuestionID: round1.QuestionID})
	require.NoError(t, err)
	assert.False(t, res.Recorded)
	assert.False(t, res.Advanced)
	assert.True(t, res.Messages[0].Metadata.Data().Stale)
	assert.Equal(t, 3, res.Session.Round)
	assert.False(t, res.Session.YouAnswered)

	session, err := f.hostRepo.GetByRoom(ctx, p.match.Room.ID)
	require.NoError(t, err)
	assert.Empty(t, session.Data().AnswersByUser)
}

func TestHostSession_AnswerRequiresActive(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()

	_, err := f.hosts.SubmitAnswer(ctx, p.a.ID, p.match.ID, AnswerInput{Answer: "hello"})
	assert.ErrorIs(t, err, models.ErrSessionNotActive)

	_, err = f.hosts.SubmitAnswer(ctx, p.a.ID, p.match.ID, AnswerInput{Answer: "   "})
	assert.True(t, models.HasCode(err, models.CodeValidation))
}

func playToTimedStage(t *testing.T, f *fixture, p hostPair) *HostSessionView {
	t.Helper()
	view := activate(t, f, p)
	for i := 0; i < 20 && view.CurrentStage != models.StageTwoTruths; i++ {
		answer := "Beach"
		if view.GameType == models.GameRateScale {
			answer = "7"
		}
		view = answerRound(t, f, p, answer)
	}
	require.Equal(t, models.StageTwoTruths, view.CurrentStage)
	return view
}

func TestHostSession_TimedStageCompletesOnTimer(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()
	view := playToTimedStage(t, f, p)

	require.Equal(t, []uint{view.SessionID}, f.timer.Pending())
	delay, ok := f.timer.Delay(view.SessionID)
	require.True(t, ok)
	assert.Equal(t, testDwell, delay)

	// Answers in the timed stage never advance it.
	after := answerRound(t, f, p, "I once met a penguin")
	assert.Equal(t, models.StageTwoTruths, after.CurrentStage)

	require.True(t, f.timer.Fire(view.SessionID))

	done, err := f.hosts.GetSession(ctx, p.a.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostCompleted, done.Status)
	assert.Equal(t, models.StageEnded, done.CurrentStage)

	handoff := ofKind(transcript(t, f, p), models.HostKindHandoff)
	require.Len(t, handoff, 1)
	assert.Equal(t, models.StageHandoff, handoff[0].Metadata.Data().Stage)

	_, err = f.hosts.OptIn(ctx, p.a.ID, p.match.ID)
	assert.True(t, models.HasCode(err, models.CodeInvalidTransition))
}

func TestHostSession_StaleTimerIsIgnored(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()
	view := playToTimedStage(t, f, p)

	_, err := f.hosts.Exit(ctx, p.b.ID, p.match.ID)
	require.NoError(t, err)
	assert.Empty(t, f.timer.Pending())

	f.hosts.autoAdvance(p.match, *view.StageStartedAt)

	after, err := f.hosts.GetSession(ctx, p.a.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostExited, after.Status)
	assert.Empty(t, ofKind(transcript(t, f, p), models.HostKindHandoff))
}

func TestHostSession_NudgeAfterDwell(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()

	_, err := f.hosts.Nudge(ctx, p.a.ID, p.match.ID)
	assert.True(t, models.HasCode(err, models.CodeInvalidTransition))

	view := playToTimedStage(t, f, p)

	_, err = f.hosts.Nudge(ctx, p.a.ID, p.match.ID)
	assert.True(t, models.HasCode(err, models.CodeConflict))

	started := *view.StageStartedAt
	f.hosts.now = func() time.Time { return started.Add(2 * testDwell) }

	done, err := f.hosts.Nudge(ctx, p.a.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostCompleted, done.Status)
	assert.Empty(t, f.timer.Pending())
}

func TestHostSession_ExitAndReenter(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()
	activate(t, f, p)
	answerRound(t, f, p, "Soup")

	exited, err := f.hosts.Exit(ctx, p.a.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostExited, exited.Status)
	assert.Equal(t, models.StageEnded, exited.CurrentStage)
	assert.Len(t, ofKind(transcript(t, f, p), models.HostKindFarewell), 1)

	_, err = f.hosts.Exit(ctx, p.a.ID, p.match.ID)
	assert.True(t, models.HasCode(err, models.CodeInvalidTransition))

	back, err := f.hosts.OptIn(ctx, p.b.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostPending, back.Status)
	assert.Equal(t, models.StageWaiting, back.CurrentStage)
	assert.True(t, back.YouOptedIn)
	assert.False(t, back.PartnerOptedIn)
	assert.Zero(t, back.Round)
	assert.Empty(t, back.QuestionID)

	restarted, err := f.hosts.OptIn(ctx, p.a.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostActive, restarted.Status)
	assert.Equal(t, models.StageIceBreaker, restarted.CurrentStage)
}

func TestHostSession_OptOutDeclinesForBoth(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()

	_, err := f.hosts.OptIn(ctx, p.a.ID, p.match.ID)
	require.NoError(t, err)

	declined, err := f.hosts.OptOut(ctx, p.b.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostDeclined, declined.Status)

	_, err = f.hosts.OptOut(ctx, p.a.ID, p.match.ID)
	assert.True(t, models.HasCode(err, models.CodeInvalidTransition))

	// The decliner can reopen the invite; the old opt-in does not carry over.
	reopened, err := f.hosts.OptIn(ctx, p.b.ID, p.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HostPending, reopened.Status)
	assert.True(t, reopened.YouOptedIn)
	assert.False(t, reopened.PartnerOptedIn)
	assert.Empty(t, ofKind(transcript(t, f, p), models.HostKindPrompt))
}

func TestHostSession_MessagesPaging(t *testing.T) {
	f := newFixture(t)
	p := newHostPair(t, f)
	ctx := context.Background()

	empty, err := f.hosts.ListMessages(ctx, p.a.ID, p.match.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Messages)

	activate(t, f, p)
	answerRound(t, f, p, "Tacos")

	first, err := f.hosts.ListMessages(ctx, p.a.ID, p.match.ID, "", 3)
	require.NoError(t, err)
	require.Len(t, first.Messages, 3)
	require.NotEmpty(t, first.NextCursor)

	rest, err := f.hosts.ListMessages(ctx, p.a.ID, p.match.ID, first.NextCursor, 100)
	require.NoError(t, err)
	assert.Empty(t, rest.NextCursor)
	assert.Len(t, rest.Messages, len(transcript(t, f, p))-3)
	assert.Greater(t, rest.Messages[0].ID, first.Messages[2].ID)
}
