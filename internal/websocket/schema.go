package websocket

import "github.com/stemsi/exstem-prep/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionCheck    Action = "check"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope carries every client action; unused fields stay empty.
type RequestEnvelope struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id,omitempty"`
	OptionID   string `json:"option_id,omitempty"`
	Index      *int   `json:"index,omitempty"`
	Confirm    bool   `json:"confirm,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSnapshot Event = "snapshot"
	EventAck      Event = "ack"
	EventFeedback Event = "feedback"
	EventTick     Event = "tick"
	EventGraded   Event = "graded"
	EventPong     Event = "pong"
)

// SnapshotEvent is sent once after connecting.
type SnapshotEvent struct {
	Event   Event                   `json:"event"`
	Session model.ActiveSessionView `json:"session"`
}

// AckEvent confirms an answer or navigation.
type AckEvent struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
}

type FeedbackEvent struct {
	Event    Event                `json:"event"`
	Feedback model.AnswerFeedback `json:"feedback"`
}

type TickEvent struct {
	Event Event           `json:"event"`
	Timer model.TimerView `json:"timer"`
}

// GradedEvent carries the result of a manual or automatic submission.
type GradedEvent struct {
	Event     Event             `json:"event"`
	Automatic bool              `json:"automatic"`
	Result    *model.ExamResult `json:"result"`
}

type ErrorEvent struct {
	Event     Event  `json:"event"`
	Code      string `json:"code"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

type PongEvent struct {
	Event Event `json:"event"`
}
