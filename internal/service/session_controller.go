package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/model"
)

// ResultStore persists graded results.
type ResultStore interface {
	Save(ctx context.Context, result *model.ExamResult) (string, error)
	History(ctx context.Context, userID string) ([]model.ExamHistoryItem, error)
	Get(ctx context.Context, userID, resultID string) (*model.ExamResult, error)
}

// ProgressStore is the per-session progress cache.
type ProgressStore interface {
	Put(ctx context.Context, sessionID string, progress model.SessionProgress) error
	Get(ctx context.Context, sessionID string) (*model.SessionProgress, error)
	Delete(ctx context.Context, sessionID string) error
}

// ControllerDeps are the collaborators of a SessionController.
type ControllerDeps struct {
	ContextKey string
	UserID     string
	Store      *SessionStore
	Progress   ProgressStore
	Results    ResultStore
	Grader     *Grader
	Clock      Clock
	Log        zerolog.Logger
}

// SessionController owns one in-memory session and walks it through
// Building, InProgress, Submitting and Submitted. All methods are safe for
// concurrent use; events are applied one at a time.
type SessionController struct {
	mu        sync.Mutex
	persistMu sync.Mutex // serializes progress writes in mutation order

	deps    ControllerDeps
	log     zerolog.Logger
	session *model.ExamSession
	state   model.SessionState

	currentIndex int
	checked      map[string]bool
	lastElapsed  int64

	abandoned   bool
	expireFired bool
	inFlight    bool
	submittedAt time.Time
	submitErr   error
	result      *model.ExamResult
}

// NewSessionController wraps session in a controller in the Building state.
func NewSessionController(session *model.ExamSession, deps ControllerDeps) *SessionController {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if session.Answers == nil {
		session.Answers = map[string]string{}
	}
	return &SessionController{
		deps:    deps,
		log:     logger.Component(deps.Log, "session_controller").With().Str("session_id", session.ID).Logger(),
		session: session,
		state:   model.SessionStateBuilding,
		checked: make(map[string]bool),
	}
}

// SessionID returns the id of the controlled session.
func (c *SessionController) SessionID() string {
	return c.session.ID
}

// State returns the current state.
func (c *SessionController) State() model.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Abandoned reports whether the session was discarded.
func (c *SessionController) Abandoned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abandoned
}

// Restore merges cached progress into a session that is not yet submitting.
// Answers for unknown questions or options are dropped.
func (c *SessionController) Restore(p *model.SessionProgress) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.SessionStateBuilding && c.state != model.SessionStateInProgress {
		return
	}

	for qid, opt := range p.Answers {
		if q, ok := c.session.Question(qid); ok && q.HasOption(opt) {
			c.session.Answers[qid] = opt
		}
	}
	if c.session.Mode == model.ModePractice {
		for _, qid := range p.Checked {
			if _, ok := c.session.Answers[qid]; ok {
				c.checked[qid] = true
			}
		}
	}
	if p.CurrentIndex >= 0 && p.CurrentIndex < len(c.session.Questions) {
		c.currentIndex = p.CurrentIndex
	}
}

// Enter moves a built session to InProgress.
func (c *SessionController) Enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.SessionStateBuilding {
		return ErrInvalidState
	}
	if len(c.session.Questions) == 0 {
		return ErrContentUnavailable
	}
	c.state = model.SessionStateInProgress
	c.log.Info().Str("mode", string(c.session.Mode)).Msg("Session entered")
	return nil
}

// Timer derives the clock at now from the session's start time. The elapsed
// value never goes below a previously reported one.
func (c *SessionController) Timer(now time.Time) model.TimerView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timerLocked(now)
}

func (c *SessionController) timerLocked(now time.Time) model.TimerView {
	elapsed := (now.UnixMilli() - c.session.StartTime) / 1000
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed < c.lastElapsed {
		elapsed = c.lastElapsed
	}
	c.lastElapsed = elapsed

	if !c.session.Timed() {
		return model.TimerView{Direction: model.TimerCountUp, ElapsedSeconds: elapsed}
	}

	remaining := int64(c.session.DurationMinutes)*60 - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return model.TimerView{
		Direction:        model.TimerCountDown,
		ElapsedSeconds:   elapsed,
		RemainingSeconds: remaining,
		Expired:          remaining == 0,
	}
}

// SelectAnswer records optionID as the answer of qid. In practice mode a
// checked question is locked.
func (c *SessionController) SelectAnswer(ctx context.Context, qid, optionID string) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	q, ok := c.session.Question(qid)
	if !ok {
		c.mu.Unlock()
		return ErrUnknownQuestion
	}
	if !q.HasOption(optionID) {
		c.mu.Unlock()
		return ErrUnknownOption
	}
	if c.checked[qid] {
		c.mu.Unlock()
		return ErrAnswerLocked
	}
	c.session.Answers[qid] = optionID
	c.persistProgressAndUnlock(ctx)
	return nil
}

// CheckAnswer reveals the answer of qid in practice mode and locks it.
// Checking an already checked question returns the same feedback.
func (c *SessionController) CheckAnswer(ctx context.Context, qid string) (model.AnswerFeedback, error) {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return model.AnswerFeedback{}, err
	}
	if c.session.Mode != model.ModePractice {
		c.mu.Unlock()
		return model.AnswerFeedback{}, ErrCheckNotAllowed
	}
	q, ok := c.session.Question(qid)
	if !ok {
		c.mu.Unlock()
		return model.AnswerFeedback{}, ErrUnknownQuestion
	}
	selected, ok := c.session.Answers[qid]
	if !ok {
		c.mu.Unlock()
		return model.AnswerFeedback{}, ErrNothingToCheck
	}

	feedback := feedbackFor(q, selected)
	if c.checked[qid] {
		c.mu.Unlock()
		return feedback, nil
	}
	c.checked[qid] = true
	c.persistProgressAndUnlock(ctx)
	return feedback, nil
}

// Navigate moves the current question pointer.
func (c *SessionController) Navigate(ctx context.Context, index int) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if index < 0 || index >= len(c.session.Questions) {
		c.mu.Unlock()
		return ErrIndexOutOfRange
	}
	c.currentIndex = index
	c.persistProgressAndUnlock(ctx)
	return nil
}

// Summary returns the answered count shown before a manual submission.
func (c *SessionController) Summary() model.SubmitSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summaryLocked()
}

func (c *SessionController) summaryLocked() model.SubmitSummary {
	answered := 0
	for _, q := range c.session.Questions {
		if _, ok := c.session.Answers[q.ID]; ok {
			answered++
		}
	}
	total := len(c.session.Questions)
	return model.SubmitSummary{Answered: answered, Total: total, Unanswered: total - answered}
}

// View returns the client's picture of the session at now.
func (c *SessionController) View(now time.Time) model.ActiveSessionView {
	c.mu.Lock()
	defer c.mu.Unlock()

	questions := make([]model.QuestionForStudent, len(c.session.Questions))
	var feedback []model.AnswerFeedback
	for i, q := range c.session.Questions {
		questions[i] = q.ForStudent()
		if c.checked[q.ID] {
			feedback = append(feedback, feedbackFor(q, c.session.Answers[q.ID]))
		}
	}
	answers := make(map[string]string, len(c.session.Answers))
	for k, v := range c.session.Answers {
		answers[k] = v
	}
	var submitErr string
	if c.submitErr != nil {
		submitErr = c.submitErr.Error()
	}

	return model.ActiveSessionView{
		ID:              c.session.ID,
		ExamType:        c.session.ExamType,
		Mode:            c.session.Mode,
		State:           c.state,
		StartTime:       c.session.StartTime,
		DurationMinutes: c.session.DurationMinutes,
		Questions:       questions,
		Answers:         answers,
		CurrentIndex:    c.currentIndex,
		Feedback:        feedback,
		Timer:           c.timerLocked(now),
		AssignmentID:    c.session.Config.AssignmentID,
		SubmitError:     submitErr,
	}
}

// Submit grades and stores the session after the user confirmed. It runs at
// most one grading round trip at a time; after a failure it may be called again.
func (c *SessionController) Submit(ctx context.Context) (*model.ExamResult, error) {
	return c.submit(ctx, c.deps.Clock.Now())
}

// Expire auto-submits a timed session whose countdown reached zero. It fires
// at most once per controller; otherwise it returns nil, nil.
func (c *SessionController) Expire(ctx context.Context, now time.Time) (*model.ExamResult, error) {
	c.mu.Lock()
	if c.abandoned || c.expireFired || c.state != model.SessionStateInProgress || !c.session.Timed() {
		c.mu.Unlock()
		return nil, nil
	}
	if !c.timerLocked(now).Expired {
		c.mu.Unlock()
		return nil, nil
	}
	c.expireFired = true
	deadline := c.session.StartedAt().Add(time.Duration(c.session.DurationMinutes) * time.Minute)
	c.mu.Unlock()

	c.log.Info().Msg("Countdown reached zero, auto-submitting")
	if now.After(deadline) {
		now = deadline
	}
	return c.submit(ctx, now)
}

func (c *SessionController) submit(ctx context.Context, now time.Time) (*model.ExamResult, error) {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	switch c.state {
	case model.SessionStateSubmitted:
		c.mu.Unlock()
		return nil, ErrAlreadySubmitted
	case model.SessionStateSubmitting:
		if c.inFlight {
			c.mu.Unlock()
			return nil, ErrSubmissionInProgress
		}
	case model.SessionStateInProgress:
		c.state = model.SessionStateSubmitting
		c.submittedAt = now
	default:
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	c.inFlight = true
	snapshot := c.session.Clone()
	snapshot.IsSubmitted = true
	submittedAt := c.submittedAt
	c.mu.Unlock()

	result, err := c.gradeAndSave(ctx, snapshot, submittedAt)
	if err != nil {
		c.mu.Lock()
		c.inFlight = false
		c.submitErr = err
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("Submission failed, session kept for retry")
		return nil, &SubmissionError{SessionID: snapshot.ID, Err: err}
	}

	c.mu.Lock()
	c.inFlight = false
	c.submitErr = nil
	c.session.IsSubmitted = true
	c.state = model.SessionStateSubmitted
	c.result = result
	c.mu.Unlock()

	if err := c.clearPersistence(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Failed to clear submitted session")
	}

	c.log.Info().
		Str("result_id", result.ID).
		Int("score", result.Score).
		Int("total", result.TotalQuestions).
		Msg("Session submitted")

	return result, nil
}

func (c *SessionController) gradeAndSave(ctx context.Context, snapshot *model.ExamSession, submittedAt time.Time) (*model.ExamResult, error) {
	history, err := c.deps.Results.History(ctx, c.deps.UserID)
	if err != nil {
		return nil, err
	}
	// A save that committed before failing already left this session in history.
	prior := history[:0:0]
	for _, item := range history {
		if item.SessionID != snapshot.ID {
			prior = append(prior, item)
		}
	}
	result := c.deps.Grader.Grade(snapshot, submittedAt, prior)
	result.UserID = c.deps.UserID

	id, err := c.deps.Results.Save(ctx, &result)
	if err != nil {
		return nil, err
	}
	result.ID = id
	return &result, nil
}

// Result returns the graded result once Submitted.
func (c *SessionController) Result() *model.ExamResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Abandon discards the session and its persisted copies. The controller is
// unusable afterwards.
func (c *SessionController) Abandon(ctx context.Context) error {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	switch c.state {
	case model.SessionStateSubmitted:
		c.mu.Unlock()
		return ErrAlreadySubmitted
	case model.SessionStateSubmitting:
		if c.inFlight {
			c.mu.Unlock()
			return ErrSubmissionInProgress
		}
	}
	c.abandoned = true
	c.mu.Unlock()

	c.log.Info().Msg("Session abandoned")
	return c.clearPersistence(ctx)
}

func (c *SessionController) clearPersistence(ctx context.Context) error {
	var errs []error
	if c.deps.Store != nil {
		if err := c.deps.Store.Clear(ctx, c.deps.ContextKey); err != nil {
			errs = append(errs, err)
		}
	}
	if c.deps.Progress != nil {
		c.persistMu.Lock()
		err := c.deps.Progress.Delete(ctx, c.session.ID)
		c.persistMu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// usable reports whether the controller still holds an unfinished session.
func (c *SessionController) usable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.abandoned && c.state != model.SessionStateSubmitted
}

// usableLocked reports whether the session accepts answer and navigation events.
func (c *SessionController) usableLocked() error {
	if c.abandoned {
		return ErrNoActiveSession
	}
	switch c.state {
	case model.SessionStateInProgress:
		return nil
	case model.SessionStateSubmitted:
		return ErrAlreadySubmitted
	case model.SessionStateSubmitting:
		return ErrSubmissionInProgress
	default:
		return ErrInvalidState
	}
}

// persistProgressAndUnlock snapshots progress, releases mu and writes the
// snapshot. A failed write is logged only.
func (c *SessionController) persistProgressAndUnlock(ctx context.Context) {
	progress := c.progressLocked()
	c.persistMu.Lock()
	c.mu.Unlock()
	defer c.persistMu.Unlock()

	if c.deps.Progress == nil {
		return
	}
	if err := c.deps.Progress.Put(ctx, c.session.ID, progress); err != nil {
		c.log.Warn().Err(err).Msg("Progress cache write failed")
	}
}

func (c *SessionController) progressLocked() model.SessionProgress {
	answers := make(map[string]string, len(c.session.Answers))
	for k, v := range c.session.Answers {
		answers[k] = v
	}
	checked := make([]string, 0, len(c.checked))
	for _, q := range c.session.Questions {
		if c.checked[q.ID] {
			checked = append(checked, q.ID)
		}
	}
	return model.SessionProgress{
		Answers:      answers,
		CurrentIndex: c.currentIndex,
		Checked:      checked,
	}
}

func feedbackFor(q model.Question, selected string) model.AnswerFeedback {
	return model.AnswerFeedback{
		QuestionID:      q.ID,
		SelectedOption:  selected,
		CorrectOptionID: q.CorrectOptionID,
		Correct:         selected == q.CorrectOptionID,
		Explanation:     q.Explanation,
	}
}
