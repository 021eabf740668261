package service

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"kindred/internal/cache"
	"kindred/internal/hostscript"
	"kindred/internal/models"
	"kindred/internal/notifications"
	"kindred/internal/observability"
	"kindred/internal/push"
	"kindred/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxAnswerLength caps a single host answer, in runes.
const MaxAnswerLength = 500

// HostSessionView is a session as seen by one participant. The partner's
// answer text is withheld until the transcript shows it.
type HostSessionView struct {
	MatchID         uint              `json:"match_id"`
	RoomID          uint              `json:"room_id"`
	SessionID       uint              `json:"session_id"`
	Status          models.HostStatus `json:"status"`
	CurrentStage    models.HostStage  `json:"current_stage"`
	GameType        string            `json:"game_type,omitempty"`
	Round           int               `json:"round,omitempty"`
	Rounds          int               `json:"rounds,omitempty"`
	QuestionID      string            `json:"question_id,omitempty"`
	YouOptedIn      bool              `json:"you_opted_in"`
	PartnerOptedIn  bool              `json:"partner_opted_in"`
	YouAnswered     bool              `json:"you_answered"`
	PartnerAnswered bool              `json:"partner_answered"`
	StageStartedAt  *time.Time        `json:"stage_started_at,omitempty"`
}

// AnswerInput is one answer submission.
type AnswerInput struct {
	Answer     string
	QuestionID string
}

// AnswerResult reports what an answer did.
type AnswerResult struct {
	Session  *HostSessionView     `json:"session"`
	Recorded bool                 `json:"recorded"`
	Advanced bool                 `json:"advanced"`
	Messages []models.HostMessage `json:"messages"`
}

// TranscriptPage is one page of host messages.
type TranscriptPage struct {
	Messages   []models.HostMessage `json:"messages"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// HostService runs the staged host conversation of a match. Every mutation
// happens under the session row lock; events go out after commit.
type HostService struct {
	hosts     repository.HostRepository
	matches   repository.MatchRepository
	content   hostscript.Provider
	publisher EventPublisher
	presence  PresenceChecker
	pusher    push.Sender
	timer     StageTimer
	dwell     time.Duration
	now       func() time.Time
}

// NewHostService returns a new HostService. dwell is how long the timed
// stage lasts before the host hands off.
func NewHostService(
	hosts repository.HostRepository,
	matches repository.MatchRepository,
	content hostscript.Provider,
	publisher EventPublisher,
	presence PresenceChecker,
	pusher push.Sender,
	timer StageTimer,
	dwell time.Duration,
) *HostService {
	if timer == nil {
		timer = NewAfterFuncTimer()
	}
	return &HostService{
		hosts:     hosts,
		matches:   matches,
		content:   content,
		publisher: publisherOrNoop(publisher),
		presence:  presence,
		pusher:    pusher,
		timer:     timer,
		dwell:     dwell,
		now:       time.Now,
	}
}

// hostChange collects what a locked mutation produced, for publishing after commit.
type hostChange struct {
	session       models.HostSession
	messages      []models.HostMessage
	answer        *models.HostMessage
	optInChanged  bool
	statusChanged bool
	activated     bool
	scheduleTimed bool
	cancelTimer   bool
}

func (c *hostChange) add(msg models.HostMessage) {
	c.messages = append(c.messages, msg)
}

// GetSession returns the session, creating a pending one on first view.
func (s *HostService) GetSession(ctx context.Context, userID, matchID uint) (*HostSessionView, error) {
	match, err := loadParticipantMatch(ctx, s.matches, matchID, userID)
	if err != nil {
		return nil, err
	}
	session, err := s.hosts.FindOrCreate(ctx, match.Room.ID)
	if err != nil {
		return nil, err
	}
	return s.view(match, session, userID), nil
}

// OptIn sets the caller's flag. The second flag on a pending session starts
// STAGE_1. Opting into an exited or declined session resets it first.
func (s *HostService) OptIn(ctx context.Context, userID, matchID uint) (view *HostSessionView, err error) {
	ctx, span := observability.StartSpan(ctx, "host.opt_in", attribute.Int64("match_id", int64(matchID)))
	defer func() { observability.EndSpan(span, err) }()

	match, err := loadParticipantMatch(ctx, s.matches, matchID, userID)
	if err != nil {
		return nil, err
	}
	slot := match.SlotOf(userID)

	change, err := s.mutate(ctx, match, func(tx *gorm.DB, session *models.HostSession, ch *hostChange) error {
		switch session.Status {
		case models.HostActive:
			return nil
		case models.HostCompleted:
			return models.NewTransitionError("opt in", session.Status)
		case models.HostExited, models.HostDeclined:
			session.Reset()
			ch.statusChanged = true
		}

		session.SetOptIn(slot, true)
		ch.optInChanged = true
		if !session.BothOptedIn() {
			return s.hosts.Save(tx, session)
		}

		now := s.now().UTC()
		session.Status = models.HostActive
		ch.statusChanged = true
		ch.activated = true
		intro := hostLine(session.ID, s.content.Intro(), models.HostKindIntro, models.StageIceBreaker)
		if err := s.appendMessage(tx, ch, intro); err != nil {
			return err
		}
		if err := s.startStage(tx, session, ch, models.StageIceBreaker, 1, nil, now); err != nil {
			return err
		}
		return s.hosts.Save(tx, session)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, match, userID, change)
	return s.view(match, &change.session, userID), nil
}

// OptOut declines the invite for both participants. Only valid while pending.
func (s *HostService) OptOut(ctx context.Context, userID, matchID uint) (*HostSessionView, error) {
	match, err := loadParticipantMatch(ctx, s.matches, matchID, userID)
	if err != nil {
		return nil, err
	}
	change, err := s.mutate(ctx, match, func(tx *gorm.DB, session *models.HostSession, ch *hostChange) error {
		if session.Status != models.HostPending {
			return models.NewTransitionError("opt out", session.Status)
		}
		session.SetOptIn(match.SlotOf(userID), false)
		session.Status = models.HostDeclined
		ch.optInChanged = true
		ch.statusChanged = true
		return s.hosts.Save(tx, session)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, match, userID, change)
	return s.view(match, &change.session, userID), nil
}

// SubmitAnswer records an answer in the transcript and, when it is the
// caller's first answer to the live question, in the round state. Both
// participants answering advances the round or stage. Answers to a question
// that is no longer live stay in the transcript only.
func (s *HostService) SubmitAnswer(ctx context.Context, userID, matchID uint, in AnswerInput) (result *AnswerResult, err error) {
	ctx, span := observability.StartSpan(ctx, "host.submit_answer", attribute.Int64("match_id", int64(matchID)))
	defer func() { observability.EndSpan(span, err) }()

	answer := strings.TrimSpace(in.Answer)
	if answer == "" {
		return nil, models.NewValidationError("answer is required")
	}
	if utf8.RuneCountInString(answer) > MaxAnswerLength {
		return nil, models.NewValidationError("answer is too long")
	}
	questionID := strings.TrimSpace(in.QuestionID)

	match, err := loadParticipantMatch(ctx, s.matches, matchID, userID)
	if err != nil {
		return nil, err
	}

	recorded, advanced := false, false
	change, err := s.mutate(ctx, match, func(tx *gorm.DB, session *models.HostSession, ch *hostChange) error {
		if session.Status != models.HostActive {
			return models.ErrSessionNotActive
		}
		spec, ok := session.CurrentStage.Spec()
		if !ok {
			return models.ErrSessionNotActive
		}

		data := session.Data()
		stale := questionID != "" && questionID != data.QuestionID
		if !stale {
			recorded = data.Record(userID, questionID, answer)
		}
		asked := questionID
		if asked == "" {
			asked = data.QuestionID
		}
		uid := userID
		msg := models.HostMessage{
			SessionID:   session.ID,
			SenderType:  match.SlotOf(userID),
			SenderID:    &uid,
			Content:     answer,
			MessageType: models.HostMessageText,
			CreatedAt:   s.now().UTC(),
		}
		setMeta(&msg, models.HostMessageMeta{
			Kind:       models.HostKindAnswer,
			Stage:      session.CurrentStage,
			GameType:   spec.GameType,
			Round:      data.Round,
			QuestionID: asked,
			Stale:      stale,
		})
		if err := s.hosts.AppendMessage(tx, &msg); err != nil {
			return err
		}
		ch.answer = &msg
		if !recorded {
			return nil
		}
		session.SetData(data)

		if line, ok := s.content.Reaction(); ok {
			if err := s.appendMessage(tx, ch, hostLine(session.ID, line, models.HostKindReaction, session.CurrentStage)); err != nil {
				return err
			}
		}
		if spec.Timed || !data.BothAnswered(match.User1ID, match.User2ID) {
			return s.hosts.Save(tx, session)
		}

		advanced = true
		if line, ok := s.content.Compare(spec.GameType, data.AnswersByUser[match.User1ID], data.AnswersByUser[match.User2ID]); ok {
			if err := s.appendMessage(tx, ch, hostLine(session.ID, line, models.HostKindCommentary, session.CurrentStage)); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		if data.Round < spec.Rounds {
			err = s.startStage(tx, session, ch, session.CurrentStage, data.Round+1, data.Asked, now)
		} else {
			err = s.startStage(tx, session, ch, session.CurrentStage.Next(), 1, nil, now)
		}
		if err != nil {
			return err
		}
		return s.hosts.Save(tx, session)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, match, userID, change)

	messages := make([]models.HostMessage, 0, len(change.messages)+1)
	messages = append(messages, *change.answer)
	messages = append(messages, change.messages...)
	return &AnswerResult{
		Session:  s.view(match, &change.session, userID),
		Recorded: recorded,
		Advanced: advanced,
		Messages: messages,
	}, nil
}

// Exit aborts an active session. It overrides any transition in flight.
func (s *HostService) Exit(ctx context.Context, userID, matchID uint) (*HostSessionView, error) {
	match, err := loadParticipantMatch(ctx, s.matches, matchID, userID)
	if err != nil {
		return nil, err
	}
	change, err := s.mutate(ctx, match, func(tx *gorm.DB, session *models.HostSession, ch *hostChange) error {
		if session.Status != models.HostActive {
			return models.NewTransitionError("exit", session.Status)
		}
		session.Status = models.HostExited
		session.CurrentStage = models.StageEnded
		session.StageStartedAt = nil
		session.SetData(models.StageData{})
		ch.statusChanged = true
		ch.cancelTimer = true
		if err := s.appendMessage(tx, ch, hostLine(session.ID, s.content.Farewell(), models.HostKindFarewell, models.StageEnded)); err != nil {
			return err
		}
		return s.hosts.Save(tx, session)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, match, userID, change)
	return s.view(match, &change.session, userID), nil
}

// Nudge hands off a timed stage whose dwell has elapsed. It is how a session
// recovers when the process restarted before the stage timer fired.
func (s *HostService) Nudge(ctx context.Context, userID, matchID uint) (*HostSessionView, error) {
	match, err := loadParticipantMatch(ctx, s.matches, matchID, userID)
	if err != nil {
		return nil, err
	}
	change, err := s.mutate(ctx, match, func(tx *gorm.DB, session *models.HostSession, ch *hostChange) error {
		spec, ok := session.CurrentStage.Spec()
		if session.Status != models.HostActive || !ok || !spec.Timed {
			return models.NewTransitionError("nudge", session.Status)
		}
		if session.StageStartedAt != nil && s.now().Sub(*session.StageStartedAt) < s.dwell {
			return models.NewConflictError("The host is still waiting on this stage")
		}
		ch.cancelTimer = true
		if err := s.startStage(tx, session, ch, models.StageHandoff, 1, nil, s.now().UTC()); err != nil {
			return err
		}
		return s.hosts.Save(tx, session)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, match, userID, change)
	return s.view(match, &change.session, userID), nil
}

// ListMessages pages the transcript in ascending order.
func (s *HostService) ListMessages(ctx context.Context, userID, matchID uint, cursor string, limit int) (*TranscriptPage, error) {
	match, err := loadParticipantMatch(ctx, s.matches, matchID, userID)
	if err != nil {
		return nil, err
	}
	session, err := s.hosts.GetByRoom(ctx, match.Room.ID)
	if models.HasCode(err, models.CodeNotFound) {
		return &TranscriptPage{Messages: []models.HostMessage{}}, nil
	}
	if err != nil {
		return nil, err
	}
	msgs, next, err := s.hosts.ListMessages(ctx, session.ID, cursor, limit)
	if err != nil {
		return nil, err
	}
	return &TranscriptPage{Messages: msgs, NextCursor: next}, nil
}

// autoAdvance runs when the timed stage's dwell elapses. It does nothing if
// the session moved on since the timer was armed.
func (s *HostService) autoAdvance(match *models.Match, startedAt time.Time) {
	ctx := context.Background()
	fields := map[string]interface{}{"match_id": match.ID, "room_id": match.Room.ID}
	observability.LogAsyncOperationStart(ctx, "host_stage_timeout", fields)

	// The match may have been removed since the timer was armed.
	if _, err := s.hosts.GetByRoom(ctx, match.Room.ID); err != nil {
		observability.LogAsyncOperationEnd(ctx, "host_stage_timeout", fields)
		return
	}

	change, err := s.mutate(ctx, match, func(tx *gorm.DB, session *models.HostSession, ch *hostChange) error {
		spec, ok := session.CurrentStage.Spec()
		if session.Status != models.HostActive || !ok || !spec.Timed ||
			session.StageStartedAt == nil || !session.StageStartedAt.Equal(startedAt) {
			return nil
		}
		if err := s.startStage(tx, session, ch, models.StageHandoff, 1, nil, s.now().UTC()); err != nil {
			return err
		}
		return s.hosts.Save(tx, session)
	})
	if err != nil {
		observability.LogAsyncOperationError(ctx, "host_stage_timeout", err, fields)
		return
	}
	s.publish(ctx, match, 0, change)
	observability.LogAsyncOperationEnd(ctx, "host_stage_timeout", fields)
}

// mutate runs fn under the session lock and snapshots the result.
func (s *HostService) mutate(ctx context.Context, match *models.Match, fn func(tx *gorm.DB, session *models.HostSession, ch *hostChange) error) (*hostChange, error) {
	ch := &hostChange{}
	err := s.hosts.WithLockedSession(ctx, match.Room.ID, func(tx *gorm.DB, session *models.HostSession) error {
		before := session.CurrentStage
		if err := fn(tx, session, ch); err != nil {
			return err
		}
		if session.CurrentStage != before {
			ch.statusChanged = true
		}
		ch.session = *session
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, models.NewInternalError(err)
	}
	return ch, nil
}

// startStage moves the session to stage and asks a prompt not yet in asked.
// STAGE_5 hands off and completes the session.
func (s *HostService) startStage(tx *gorm.DB, session *models.HostSession, ch *hostChange, stage models.HostStage, round int, asked []string, now time.Time) error {
	observability.HostTransitions.WithLabelValues(string(stage)).Inc()

	spec, ok := stage.Spec()
	if !ok {
		session.Status = models.HostCompleted
		session.CurrentStage = models.StageEnded
		session.StageStartedAt = nil
		session.SetData(models.StageData{})
		ch.statusChanged = true
		ch.cancelTimer = true
		return s.appendMessage(tx, ch, hostLine(session.ID, s.content.Handoff(), models.HostKindHandoff, models.StageHandoff))
	}

	prompt := s.content.Prompt(spec.GameType, asked)
	questionID := models.RoundQuestionID(prompt.ID, round)
	// Postgres keeps microseconds; the timer compares against the stored value.
	now = now.Truncate(time.Microsecond)
	session.CurrentStage = stage
	session.StageStartedAt = &now
	session.SetData(models.StageData{
		Round:      round,
		QuestionID: questionID,
		Asked:      append(slices.Clone(asked), prompt.ID),
	})
	ch.scheduleTimed = spec.Timed

	msgType := models.HostMessageGamePrompt
	if spec.GameType == models.GameIceBreaker {
		msgType = models.HostMessageQuestion
	}
	msg := models.HostMessage{
		SessionID:   session.ID,
		SenderType:  models.HostSenderHost,
		Content:     prompt.Text,
		MessageType: msgType,
	}
	setMeta(&msg, models.HostMessageMeta{
		Kind:          models.HostKindPrompt,
		Stage:         stage,
		GameType:      spec.GameType,
		Round:         round,
		QuestionID:    questionID,
		Options:       prompt.Options,
		CorrectAnswer: prompt.CorrectAnswer,
	})
	return s.appendMessage(tx, ch, msg)
}

func (s *HostService) appendMessage(tx *gorm.DB, ch *hostChange, msg models.HostMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}
	if err := s.hosts.AppendMessage(tx, &msg); err != nil {
		return err
	}
	ch.add(msg)
	return nil
}

// publish sends the committed change to the room in transcript order and
// arms or cancels the stage timer.
func (s *HostService) publish(ctx context.Context, match *models.Match, actorID uint, ch *hostChange) {
	session := &ch.session
	roomID := match.Room.ID

	if ch.cancelTimer {
		s.timer.Cancel(session.ID)
	}
	if ch.scheduleTimed && session.Status == models.HostActive && session.StageStartedAt != nil {
		startedAt := *session.StageStartedAt
		s.timer.Schedule(session.ID, s.dwell, func() { s.autoAdvance(match, startedAt) })
	}

	if ch.optInChanged {
		publishRoom(ctx, s.publisher, roomID, notifications.Event{Type: notifications.EventHostOptIn, Payload: map[string]interface{}{
			"user_id":      actorID,
			"user1_opt_in": session.User1OptIn,
			"user2_opt_in": session.User2OptIn,
			"status":       session.Status,
		}})
	}
	if ch.answer != nil {
		publishRoom(ctx, s.publisher, roomID, notifications.Event{Type: notifications.EventHostAnswer, Payload: ch.answer})
	}
	for i := range ch.messages {
		publishRoom(ctx, s.publisher, roomID, notifications.Event{Type: notifications.EventHostMessage, Payload: ch.messages[i]})
	}
	if ch.statusChanged {
		data := session.Data()
		publishRoom(ctx, s.publisher, roomID, notifications.Event{Type: notifications.EventHostStatus, Payload: map[string]interface{}{
			"status":        session.Status,
			"current_stage": session.CurrentStage,
			"round":         data.Round,
			"question_id":   data.QuestionID,
		}})
		cache.InvalidateMatchLists(ctx, match.User1ID, match.User2ID)
	}
	if ch.activated {
		for _, uid := range []uint{match.User1ID, match.User2ID} {
			s.pushIfOffline(ctx, uid, match)
		}
	}
}

func (s *HostService) pushIfOffline(ctx context.Context, userID uint, match *models.Match) {
	if s.pusher == nil || (s.presence != nil && s.presence.IsOnline(userID)) {
		return
	}
	_, _ = s.pusher.Send(ctx, userID, push.Payload{
		Title: "Your host is ready",
		Body:  "You both opted in. The first question is waiting.",
		Data:  map[string]string{"match_id": strconv.FormatUint(uint64(match.ID), 10)},
	})
}

func (s *HostService) view(match *models.Match, session *models.HostSession, userID uint) *HostSessionView {
	data := session.Data()
	partnerID := match.OtherUserID(userID)
	_, youAnswered := data.AnswersByUser[userID]
	_, partnerAnswered := data.AnswersByUser[partnerID]

	you, partner := session.User1OptIn, session.User2OptIn
	if match.SlotOf(userID) == models.HostSenderUser2 {
		you, partner = partner, you
	}
	v := &HostSessionView{
		MatchID:         match.ID,
		RoomID:          match.Room.ID,
		SessionID:       session.ID,
		Status:          session.Status,
		CurrentStage:    session.CurrentStage,
		Round:           data.Round,
		QuestionID:      data.QuestionID,
		YouOptedIn:      you,
		PartnerOptedIn:  partner,
		YouAnswered:     youAnswered,
		PartnerAnswered: partnerAnswered,
		StageStartedAt:  session.StageStartedAt,
	}
	if spec, ok := session.CurrentStage.Spec(); ok {
		v.GameType = spec.GameType
		v.Rounds = spec.Rounds
	}
	return v
}

func hostLine(sessionID uint, content, kind string, stage models.HostStage) models.HostMessage {
	msg := models.HostMessage{
		SessionID:   sessionID,
		SenderType:  models.HostSenderHost,
		Content:     content,
		MessageType: models.HostMessageText,
	}
	setMeta(&msg, models.HostMessageMeta{Kind: kind, Stage: stage})
	return msg
}

func setMeta(msg *models.HostMessage, meta models.HostMessageMeta) {
	msg.Metadata = datatypes.NewJSONType(meta)
}
