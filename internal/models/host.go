package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// HostStatus is the lifecycle state of a host session.
type HostStatus string

const (
	HostPending   HostStatus = "pending"
	HostActive    HostStatus = "active"
	HostDeclined  HostStatus = "declined"
	HostCompleted HostStatus = "completed"
	HostExited    HostStatus = "exited"
)

// HostStage is a step of the fixed host script.
type HostStage string

const (
	StageWaiting        HostStage = "STAGE_0"
	StageIceBreaker     HostStage = "STAGE_1"
	StageThisOrThat     HostStage = "STAGE_2"
	StageEmojiStory     HostStage = "STAGE_3"
	StageQuickFire      HostStage = "STAGE_4"
	StageWouldYouRather HostStage = "STAGE_4B"
	StageRateScale      HostStage = "STAGE_4C"
	StageTwoTruths      HostStage = "STAGE_4D"
	StageHandoff        HostStage = "STAGE_5"
	StageEnded          HostStage = "STAGE_6"
)

// Game types attached to prompts.
const (
	GameIceBreaker     = "ice_breaker"
	GameThisOrThat     = "this_or_that"
	GameEmojiStory     = "emoji_story"
	GameQuickFire      = "quick_fire"
	GameWouldYouRather = "would_you_rather"
	GameRateScale      = "rate_scale"
	GameTwoTruths      = "two_truths_one_lie"
)

// StageSpec describes how a playable stage runs.
type StageSpec struct {
	Stage    HostStage
	GameType string
	Rounds   int
	// Timed stages advance after a dwell period instead of on both answers.
	Timed bool
}

var stageScript = []StageSpec{
	{Stage: StageIceBreaker, GameType: GameIceBreaker, Rounds: 1},
	{Stage: StageThisOrThat, GameType: GameThisOrThat, Rounds: 3},
	{Stage: StageEmojiStory, GameType: GameEmojiStory, Rounds: 1},
	{Stage: StageQuickFire, GameType: GameQuickFire, Rounds: 3},
	{Stage: StageWouldYouRather, GameType: GameWouldYouRather, Rounds: 1},
	{Stage: StageRateScale, GameType: GameRateScale, Rounds: 1},
	{Stage: StageTwoTruths, GameType: GameTwoTruths, Rounds: 1, Timed: true},
}

// Spec returns the playable stage description, false for STAGE_0, STAGE_5 and STAGE_6.
func (s HostStage) Spec() (StageSpec, bool) {
	for _, spec := range stageScript {
		if spec.Stage == s {
			return spec, true
		}
	}
	return StageSpec{}, false
}

// Next returns the stage that follows s. The last playable stage leads to the handoff.
func (s HostStage) Next() HostStage {
	switch s {
	case StageWaiting:
		return StageIceBreaker
	case StageHandoff, StageEnded:
		return StageEnded
	}
	for i, spec := range stageScript {
		if spec.Stage == s {
			if i+1 < len(stageScript) {
				return stageScript[i+1].Stage
			}
			return StageHandoff
		}
	}
	return StageEnded
}

// PlayableStages lists the script in order.
func PlayableStages() []StageSpec {
	out := make([]StageSpec, len(stageScript))
	copy(out, stageScript)
	return out
}

// StageData is the per-round working set of a session. Answers are keyed by
// user id and hold at most one answer per participant for the current round.
// QuestionID is the live question scoped to the round (see RoundQuestionID);
// Asked lists the prompt ids already used in the stage.
type StageData struct {
	Round         int             `json:"round"`
	QuestionID    string          `json:"question_id,omitempty"`
	AnswersByUser map[uint]string `json:"answers_by_user,omitempty"`
	Asked         []string        `json:"asked,omitempty"`
}

// RoundQuestionID scopes a prompt id to a round, so a prompt that comes up
// again later in the stage never accepts answers meant for an earlier round.
func RoundQuestionID(promptID string, round int) string {
	return fmt.Sprintf("%s#r%d", promptID, round)
}

// Record stores the first answer of userID for questionID. Answers for another
// question or a repeated answer are not recorded.
func (d *StageData) Record(userID uint, questionID, answer string) bool {
	if questionID != "" && questionID != d.QuestionID {
		return false
	}
	if _, exists := d.AnswersByUser[userID]; exists {
		return false
	}
	if d.AnswersByUser == nil {
		d.AnswersByUser = make(map[uint]string, 2)
	}
	d.AnswersByUser[userID] = answer
	return true
}

// BothAnswered reports whether each participant has exactly one answer on record.
func (d StageData) BothAnswered(user1ID, user2ID uint) bool {
	if len(d.AnswersByUser) != 2 {
		return false
	}
	_, ok1 := d.AnswersByUser[user1ID]
	_, ok2 := d.AnswersByUser[user2ID]
	return ok1 && ok2
}

// HostSession is the optional staged mini-game attached to a conversation room.
type HostSession struct {
	ID             uint                          `gorm:"primaryKey" json:"id"`
	RoomID         uint                          `gorm:"not null;uniqueIndex" json:"room_id"`
	Status         HostStatus                    `gorm:"size:16;not null;default:pending;index" json:"status"`
	CurrentStage   HostStage                     `gorm:"size:8;not null;default:STAGE_0" json:"current_stage"`
	User1OptIn     bool                          `gorm:"default:false" json:"user1_opt_in"`
	User2OptIn     bool                          `gorm:"default:false" json:"user2_opt_in"`
	StageData      datatypes.JSONType[StageData] `json:"stage_data"`
	StageStartedAt *time.Time                    `json:"stage_started_at,omitempty"`
	CreatedAt      time.Time                     `json:"created_at"`
	UpdatedAt      time.Time                     `json:"updated_at"`
	Messages       []HostMessage                 `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Data returns a copy of the typed stage data.
func (s *HostSession) Data() StageData {
	return s.StageData.Data()
}

// SetData replaces the stage data.
func (s *HostSession) SetData(d StageData) {
	s.StageData = datatypes.NewJSONType(d)
}

// SetOptIn updates the flag of the given participant slot.
func (s *HostSession) SetOptIn(slot HostSender, value bool) {
	switch slot {
	case HostSenderUser1:
		s.User1OptIn = value
	case HostSenderUser2:
		s.User2OptIn = value
	}
}

// BothOptedIn reports whether both flags are set.
func (s *HostSession) BothOptedIn() bool {
	return s.User1OptIn && s.User2OptIn
}

// Reset returns an exited or declined session to a fresh pending invite.
func (s *HostSession) Reset() {
	s.Status = HostPending
	s.CurrentStage = StageWaiting
	s.User1OptIn = false
	s.User2OptIn = false
	s.StageStartedAt = nil
	s.SetData(StageData{})
}

// HostSender identifies who wrote a host message.
type HostSender string

const (
	HostSenderHost  HostSender = "host"
	HostSenderUser1 HostSender = "user1"
	HostSenderUser2 HostSender = "user2"
)

// SlotOf returns the sender slot of userID within the match.
func (m *Match) SlotOf(userID uint) HostSender {
	if m.User1ID == userID {
		return HostSenderUser1
	}
	return HostSenderUser2
}

// HostMessageType classifies host transcript rows.
type HostMessageType string

const (
	HostMessageText       HostMessageType = "text"
	HostMessageQuestion   HostMessageType = "question"
	HostMessageGamePrompt HostMessageType = "game_prompt"
)

// Kinds of host transcript entries, stored in metadata.
const (
	HostKindIntro      = "intro"
	HostKindPrompt     = "prompt"
	HostKindAnswer     = "answer"
	HostKindReaction   = "reaction"
	HostKindCommentary = "commentary"
	HostKindHandoff    = "handoff"
	HostKindFarewell   = "farewell"
)

// HostMessageMeta is the structured context of a transcript row.
type HostMessageMeta struct {
	Kind          string    `json:"kind"`
	Stage         HostStage `json:"stage,omitempty"`
	GameType      string    `json:"game_type,omitempty"`
	Round         int       `json:"round,omitempty"`
	QuestionID    string    `json:"question_id,omitempty"`
	Options       []string  `json:"options,omitempty"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	// Stale marks answers that arrived after their round had moved on.
	Stale bool `json:"stale,omitempty"`
}

// HostMessage is an append-only transcript row of a host session.
type HostMessage struct {
	ID          uint                                `gorm:"primaryKey" json:"id"`
	SessionID   uint                                `gorm:"not null;index:idx_host_messages_session,priority:1" json:"session_id"`
	SenderType  HostSender                          `gorm:"size:8;not null" json:"sender_type"`
	SenderID    *uint                               `json:"sender_id,omitempty"`
	Content     string                              `gorm:"type:text;not null" json:"content"`
	MessageType HostMessageType                     `gorm:"size:16;not null" json:"message_type"`
	Metadata    datatypes.JSONType[HostMessageMeta] `json:"metadata"`
	CreatedAt   time.Time                           `gorm:"index:idx_host_messages_session,priority:2" json:"created_at"`
}
