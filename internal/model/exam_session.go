package model

import (
	"time"
)

// SessionState enumerates the controller states of a single exam session.
type SessionState string

const (
	SessionStateBuilding   SessionState = "BUILDING"
	SessionStateInProgress SessionState = "IN_PROGRESS"
	SessionStateSubmitting SessionState = "SUBMITTING"
	SessionStateSubmitted  SessionState = "SUBMITTED"
)

// ExamSession is one exam attempt, from question assembly to submission.
// StartTime is set once at creation and is the only clock anchor.
type ExamSession struct {
	ID              string            `json:"id"`
	ExamType        ExamType          `json:"exam_type"`
	Mode            Mode              `json:"mode"`
	Config          ExamConfig        `json:"config"`
	StartTime       int64             `json:"start_time"`
	DurationMinutes int               `json:"duration_minutes"`
	Questions       []Question        `json:"questions"`
	Answers         map[string]string `json:"answers"`
	IsSubmitted     bool              `json:"is_submitted"`
}

// StartedAt returns StartTime as a time.Time.
func (s *ExamSession) StartedAt() time.Time {
	return time.UnixMilli(s.StartTime)
}

// Timed reports whether the session counts down.
func (s *ExamSession) Timed() bool {
	return s.DurationMinutes > 0
}

// Question looks up a question by id.
func (s *ExamSession) Question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Resumable reports whether a stored session may be re-entered.
func (s *ExamSession) Resumable() bool {
	return s != nil && len(s.Questions) > 0 && !s.IsSubmitted
}

// Clone returns a deep copy, so callers never share mutable state.
func (s *ExamSession) Clone() *ExamSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]Option(nil), q.Options...)
		c.Questions[i] = q
	}
	c.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	c.Config.Topics = append([]string(nil), s.Config.Topics...)
	if s.Config.AssignmentID != nil {
		id := *s.Config.AssignmentID
		c.Config.AssignmentID = &id
	}
	return &c
}

// SessionProgress is the in-session navigation cache stored under progress:<sessionId>.
type SessionProgress struct {
	Answers      map[string]string `json:"answers"`
	CurrentIndex int               `json:"current_index"`
	Checked      []string          `json:"checked,omitempty"`
}

// ProgressRecord is a queued progress change for the durable progress archive.
type ProgressRecord struct {
	Op        ProgressOp      `json:"op"`
	SessionID string          `json:"session_id"`
	Progress  SessionProgress `json:"progress"`
	QueuedAt  int64           `json:"queued_at"`
}

// ProgressOp distinguishes writes from removals in the progress queue.
type ProgressOp string

const (
	ProgressOpPut    ProgressOp = "put"
	ProgressOpDelete ProgressOp = "delete"
)

// TimerDirection says whether the displayed clock counts up or down.
type TimerDirection string

const (
	TimerCountUp   TimerDirection = "UP"
	TimerCountDown TimerDirection = "DOWN"
)

// TimerView is the derived clock of a session at a given instant.
type TimerView struct {
	Direction        TimerDirection `json:"direction"`
	ElapsedSeconds   int64          `json:"elapsed_seconds"`
	RemainingSeconds int64          `json:"remaining_seconds"`
	Expired          bool           `json:"expired"`
}

// SubmitSummary feeds the "are you sure" gate before a manual submission.
type SubmitSummary struct {
	Answered   int `json:"answered"`
	Total      int `json:"total"`
	Unanswered int `json:"unanswered"`
}

// AnswerFeedback is revealed after a practice-mode check.
type AnswerFeedback struct {
	QuestionID      string `json:"question_id"`
	SelectedOption  string `json:"selected_option_id"`
	CorrectOptionID string `json:"correct_option_id"`
	Correct         bool   `json:"correct"`
	Explanation     string `json:"explanation,omitempty"`
}

// SelectAnswerRequest is the payload for choosing an option.
type SelectAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,max=64"`
	OptionID   string `json:"option_id" binding:"required,max=64"`
}

// CheckAnswerRequest is the payload for revealing a practice answer.
type CheckAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,max=64"`
}

// NavigateRequest is the payload for moving to another question.
type NavigateRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

// SubmitRequest must carry an explicit confirmation from the gate.
type SubmitRequest struct {
	Confirm bool `json:"confirm" binding:"eq=true"`
}

// ActiveSessionView is the client's picture of a running session. Answer keys are
// only included for questions already checked in practice mode.
type ActiveSessionView struct {
	ID              string               `json:"id"`
	ExamType        ExamType             `json:"exam_type"`
	Mode            Mode                 `json:"mode"`
	State           SessionState         `json:"state"`
	StartTime       int64                `json:"start_time"`
	DurationMinutes int                  `json:"duration_minutes"`
	Questions       []QuestionForStudent `json:"questions"`
	Answers         map[string]string    `json:"answers"`
	CurrentIndex    int                  `json:"current_index"`
	Feedback        []AnswerFeedback     `json:"feedback,omitempty"`
	Timer           TimerView            `json:"timer"`
	AssignmentID    *string              `json:"assignment_id,omitempty"`
	SubmitError     string               `json:"submit_error,omitempty"`
}
