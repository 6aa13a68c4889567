package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/model"
	"golang.org/x/sync/errgroup"
)

// RecentHistoryLimit is how many past results the dashboard lists.
const RecentHistoryLimit = 5

var ErrInvalidExamConfig = errors.New("invalid exam type or mode")

// ExamFlowService is the caller of the session core. It keeps one controller per
// browser context and enforces the at-most-one-active-session rule.
type ExamFlowService struct {
	pool     *QuestionPool
	builder  *SessionBuilder
	store    *SessionStore
	progress ProgressStore
	results  ResultStore
	grader   *Grader
	clock    Clock
	log      zerolog.Logger

	mu          sync.Mutex
	controllers map[string]*SessionController
	starting    map[string]bool
}

// NewExamFlowService creates a new ExamFlowService.
func NewExamFlowService(
	pool *QuestionPool,
	builder *SessionBuilder,
	store *SessionStore,
	progress ProgressStore,
	results ResultStore,
	grader *Grader,
	clock Clock,
	log zerolog.Logger,
) *ExamFlowService {
	return &ExamFlowService{
		pool:        pool,
		builder:     builder,
		store:       store,
		progress:    progress,
		results:     results,
		grader:      grader,
		clock:       clock,
		log:         logger.Component(log, "exam_flow"),
		controllers: make(map[string]*SessionController),
		starting:    make(map[string]bool),
	}
}

// Start builds, persists and enters a new session for contextKey. A non-nil
// *PersistenceWarning accompanies a started session whose snapshot write degraded.
func (s *ExamFlowService) Start(ctx context.Context, contextKey, userID string, cfg model.ExamConfig) (*SessionController, *PersistenceWarning, error) {
	if !cfg.ExamType.Valid() || !cfg.Mode.Valid() {
		return nil, nil, ErrInvalidExamConfig
	}

	if err := s.reserve(ctx, contextKey); err != nil {
		return nil, nil, err
	}
	defer s.release(contextKey)

	if err := s.preflight(ctx, cfg); err != nil {
		return nil, nil, err
	}

	session, err := s.builder.Build(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	ctrl := s.newController(session, contextKey, userID)
	if err := ctrl.Enter(); err != nil {
		return nil, nil, err
	}

	var warning *PersistenceWarning
	if err := s.store.Save(ctx, contextKey, session); err != nil {
		if !errors.As(err, &warning) {
			return nil, nil, fmt.Errorf("save session: %w", err)
		}
	}

	s.mu.Lock()
	s.controllers[contextKey] = ctrl
	s.mu.Unlock()

	return ctrl, warning, nil
}

// reserve marks contextKey as starting, failing when a session is already active.
func (s *ExamFlowService) reserve(ctx context.Context, contextKey string) error {
	s.mu.Lock()
	if s.starting[contextKey] {
		s.mu.Unlock()
		return ErrActiveSessionExists
	}
	if ctrl, ok := s.controllers[contextKey]; ok {
		if ctrl.usable() {
			s.mu.Unlock()
			return ErrActiveSessionExists
		}
		delete(s.controllers, contextKey)
	}
	s.starting[contextKey] = true
	s.mu.Unlock()

	if s.store.Load(ctx, contextKey) != nil {
		s.release(contextKey)
		return ErrActiveSessionExists
	}
	return nil
}

func (s *ExamFlowService) release(contextKey string) {
	s.mu.Lock()
	delete(s.starting, contextKey)
	s.mu.Unlock()
}

// preflight checks every resolved subject for content before anything is built.
func (s *ExamFlowService) preflight(ctx context.Context, cfg model.ExamConfig) error {
	subjects := s.builder.ResolveSubjects(cfg)
	if len(subjects) == 0 {
		return ErrContentUnavailable
	}

	available := make([]bool, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	for i, subject := range subjects {
		g.Go(func() error {
			ok, err := s.pool.Available(gctx, cfg.ExamType, subject)
			if err != nil {
				s.log.Warn().Err(err).Str("subject", subject).Msg("Availability check failed")
				return nil
			}
			available[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	var missing []string
	for i, ok := range available {
		if !ok {
			missing = append(missing, subjects[i])
		}
	}
	if len(missing) > 0 {
		return &ContentUnavailableError{Subjects: missing}
	}
	return nil
}

// Resume returns the controller of contextKey, rehydrating a persisted session
// and its progress cache when none is in memory. A timed session past its
// deadline is auto-submitted first; the returned controller is then Submitted.
func (s *ExamFlowService) Resume(ctx context.Context, contextKey, userID string) (*SessionController, error) {
	s.mu.Lock()
	ctrl, ok := s.controllers[contextKey]
	s.mu.Unlock()

	if !ok || !ctrl.usable() {
		resumed, err := s.resume(ctx, contextKey, userID)
		if err != nil {
			return nil, err
		}
		ctrl = resumed
	}

	if _, err := ctrl.Expire(ctx, s.clock.Now()); err != nil {
		s.log.Warn().Err(err).Str("session_id", ctrl.SessionID()).Msg("Lazy auto-submit failed")
	}
	if ctrl.State() == model.SessionStateSubmitted {
		s.forget(contextKey, ctrl)
	}
	return ctrl, nil
}

func (s *ExamFlowService) resume(ctx context.Context, contextKey, userID string) (*SessionController, error) {
	session := s.store.Load(ctx, contextKey)
	if session == nil {
		return nil, ErrNoActiveSession
	}

	ctrl := s.newController(session, contextKey, userID)
	if s.progress != nil {
		progress, err := s.progress.Get(ctx, session.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("Progress rehydration failed")
		}
		ctrl.Restore(progress)
	}
	if err := ctrl.Enter(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.controllers[contextKey]; ok && existing.usable() {
		s.mu.Unlock()
		return existing, nil
	}
	s.controllers[contextKey] = ctrl
	s.mu.Unlock()

	s.log.Info().Str("session_id", session.ID).Msg("Session resumed")
	return ctrl, nil
}

// SelectAnswer records an answer on the active session.
func (s *ExamFlowService) SelectAnswer(ctx context.Context, contextKey, userID, qid, optionID string) error {
	ctrl, err := s.Resume(ctx, contextKey, userID)
	if err != nil {
		return err
	}
	return ctrl.SelectAnswer(ctx, qid, optionID)
}

// CheckAnswer reveals a practice answer on the active session.
func (s *ExamFlowService) CheckAnswer(ctx context.Context, contextKey, userID, qid string) (model.AnswerFeedback, error) {
	ctrl, err := s.Resume(ctx, contextKey, userID)
	if err != nil {
		return model.AnswerFeedback{}, err
	}
	return ctrl.CheckAnswer(ctx, qid)
}

// Navigate moves the current question of the active session.
func (s *ExamFlowService) Navigate(ctx context.Context, contextKey, userID string, index int) error {
	ctrl, err := s.Resume(ctx, contextKey, userID)
	if err != nil {
		return err
	}
	return ctrl.Navigate(ctx, index)
}

// Timer returns the clock of the active session.
func (s *ExamFlowService) Timer(ctx context.Context, contextKey, userID string) (model.TimerView, error) {
	ctrl, err := s.Resume(ctx, contextKey, userID)
	if err != nil {
		return model.TimerView{}, err
	}
	return ctrl.Timer(s.clock.Now()), nil
}

// Summary returns the pre-submission gate data of the active session.
func (s *ExamFlowService) Summary(ctx context.Context, contextKey, userID string) (model.SubmitSummary, error) {
	ctrl, err := s.Resume(ctx, contextKey, userID)
	if err != nil {
		return model.SubmitSummary{}, err
	}
	return ctrl.Summary(), nil
}

// Submit grades the active session after confirmation. A timed session that
// ran out before the request arrived is graded at its deadline and that
// result is returned.
func (s *ExamFlowService) Submit(ctx context.Context, contextKey, userID string) (*model.ExamResult, error) {
	ctrl, err := s.Resume(ctx, contextKey, userID)
	if err != nil {
		return nil, err
	}
	if ctrl.State() == model.SessionStateSubmitted {
		if result := ctrl.Result(); result != nil {
			return result, nil
		}
	}
	result, err := ctrl.Submit(ctx)
	if err != nil {
		return nil, err
	}
	s.forget(contextKey, ctrl)
	return result, nil
}

// Abandon discards the active session.
func (s *ExamFlowService) Abandon(ctx context.Context, contextKey, userID string) error {
	ctrl, err := s.Resume(ctx, contextKey, userID)
	if err != nil {
		return err
	}
	if err := ctrl.Abandon(ctx); err != nil {
		if errors.Is(err, ErrAlreadySubmitted) || errors.Is(err, ErrSubmissionInProgress) || errors.Is(err, ErrNoActiveSession) {
			return err
		}
		s.log.Warn().Err(err).Str("session_id", ctrl.SessionID()).Msg("Abandoned session not fully cleared")
	}
	s.forget(contextKey, ctrl)
	return nil
}

// Dashboard projects the user's history into readiness and recent attempts.
func (s *ExamFlowService) Dashboard(ctx context.Context, contextKey, userID string) (*model.Dashboard, error) {
	history, err := s.results.History(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	recent := history
	if len(recent) > RecentHistoryLimit {
		recent = recent[:RecentHistoryLimit]
	}
	if recent == nil {
		recent = []model.ExamHistoryItem{}
	}

	s.mu.Lock()
	ctrl, hasActive := s.controllers[contextKey]
	s.mu.Unlock()
	hasActive = hasActive && ctrl.usable()
	if !hasActive {
		hasActive = s.store.Load(ctx, contextKey) != nil
	}

	return &model.Dashboard{
		Readiness:     ComputeReadiness(history),
		TotalAttempts: len(history),
		Recent:        recent,
		HasActive:     hasActive,
	}, nil
}

// Result loads a stored result for review.
func (s *ExamFlowService) Result(ctx context.Context, userID, resultID string) (*model.ExamResult, error) {
	res, err := s.results.Get(ctx, userID, resultID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return res, nil
}

func (s *ExamFlowService) newController(session *model.ExamSession, contextKey, userID string) *SessionController {
	return NewSessionController(session, ControllerDeps{
		ContextKey: contextKey,
		UserID:     userID,
		Store:      s.store,
		Progress:   s.progress,
		Results:    s.results,
		Grader:     s.grader,
		Clock:      s.clock,
		Log:        s.log,
	})
}

func (s *ExamFlowService) forget(contextKey string, ctrl *SessionController) {
	s.mu.Lock()
	if s.controllers[contextKey] == ctrl {
		delete(s.controllers, contextKey)
	}
	s.mu.Unlock()
}
