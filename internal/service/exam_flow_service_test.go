package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/model"
)

type flowFixture struct {
	flow     *ExamFlowService
	source   *fakeSource
	clock    *fakeClock
	results  *fakeResults
	progress *fakeProgress
	durable  *fakeTier
	volatile *fakeTier
}

func newFlowFixture() *flowFixture {
	f := &flowFixture{
		source: &fakeSource{bySubject: map[string][]model.Question{
			"Use of English": {
				makeQuestion("e1", "Use of English", "Lexis"),
				makeQuestion("e2", "Use of English", "Oral"),
			},
			"Mathematics": {
				makeQuestion("m1", "Mathematics", "Algebra"),
				makeQuestion("m2", "Mathematics", "Geometry"),
			},
			"Physics": {makeQuestion("p1", "Physics", "Motion")},
		}},
		clock:    newFakeClock(testStart),
		results:  &fakeResults{},
		progress: newFakeProgress(),
		durable:  newFakeTier("postgres"),
		volatile: newFakeTier("redis"),
	}
	pool := NewQuestionPool(f.source, zerolog.Nop(), WithShuffle(noShuffle))
	builder := NewSessionBuilder(pool, testCatalog(), f.clock, zerolog.Nop())
	store := NewSessionStore(zerolog.Nop(), f.durable, f.volatile)
	f.flow = NewExamFlowService(pool, builder, store, f.progress, f.results, NewGrader(0), f.clock, zerolog.Nop())
	return f
}

// restart simulates a process restart: same storage, fresh in-memory state.
func (f *flowFixture) restart() {
	pool := NewQuestionPool(f.source, zerolog.Nop(), WithShuffle(noShuffle))
	builder := NewSessionBuilder(pool, testCatalog(), f.clock, zerolog.Nop())
	store := NewSessionStore(zerolog.Nop(), f.durable, f.volatile)
	f.flow = NewExamFlowService(pool, builder, store, f.progress, f.results, NewGrader(0), f.clock, zerolog.Nop())
}

func timedJAMB() model.ExamConfig {
	return model.ExamConfig{ExamType: model.ExamTypeJAMB, Mode: model.ModeTimed, Subjects: model.UseDefaultSubjects()}
}

func TestFlowStartPersistsSession(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	ctrl, warning, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if warning != nil {
		t.Errorf("unexpected warning %v", warning)
	}
	if ctrl.State() != model.SessionStateInProgress {
		t.Errorf("expected InProgress, got %s", ctrl.State())
	}
	if !f.durable.has("ctx-1") || !f.volatile.has("ctx-1") {
		t.Error("expected session in both tiers")
	}
	if got := len(ctrl.View(testStart).Questions); got != 5 {
		t.Errorf("expected 5 questions, got %d", got)
	}
}

func TestFlowStartRejectsSecondSession(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	if _, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB()); !errors.Is(err, ErrActiveSessionExists) {
		t.Fatalf("expected ErrActiveSessionExists, got %v", err)
	}

	f.restart()
	if _, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB()); !errors.Is(err, ErrActiveSessionExists) {
		t.Fatalf("expected stored session to block a new start, got %v", err)
	}

	if _, _, err := f.flow.Start(ctx, "ctx-2", "user-1", timedJAMB()); err != nil {
		t.Fatalf("expected another context to start independently, got %v", err)
	}
}

func TestFlowConcurrentStartsYieldOneSession(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB()); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if started != 1 {
		t.Fatalf("expected exactly one session, got %d", started)
	}
}

func TestFlowStartPreflightListsEmptySubjects(t *testing.T) {
	f := newFlowFixture()
	cfg := model.ExamConfig{
		ExamType: model.ExamTypeJAMB,
		Mode:     model.ModePractice,
		Subjects: model.ExplicitSubjects("Mathematics", "Economics", "Literature"),
	}

	_, _, err := f.flow.Start(context.Background(), "ctx-1", "user-1", cfg)
	var cu *ContentUnavailableError
	if !errors.As(err, &cu) {
		t.Fatalf("expected ContentUnavailableError, got %v", err)
	}
	if len(cu.Subjects) != 2 || cu.Subjects[0] != "Economics" || cu.Subjects[1] != "Literature" {
		t.Errorf("unexpected missing subjects %v", cu.Subjects)
	}
	if !errors.Is(err, ErrContentUnavailable) {
		t.Error("expected errors.Is to match ErrContentUnavailable")
	}
	if f.durable.has("ctx-1") {
		t.Error("nothing should be persisted after a failed pre-flight")
	}
}

func TestFlowStartWarnsOnDegradedPersistence(t *testing.T) {
	f := newFlowFixture()
	f.volatile.putErr = errors.New("redis down")

	ctrl, warning, err := f.flow.Start(context.Background(), "ctx-1", "user-1", timedJAMB())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ctrl == nil || warning == nil || len(warning.Failures) != 1 {
		t.Fatalf("expected started session with one tier failure, got %v", warning)
	}
}

func TestFlowStartRejectsInvalidConfig(t *testing.T) {
	f := newFlowFixture()
	_, _, err := f.flow.Start(context.Background(), "ctx-1", "user-1", model.ExamConfig{ExamType: "SAT", Mode: model.ModeTimed})
	if !errors.Is(err, ErrInvalidExamConfig) {
		t.Fatalf("expected ErrInvalidExamConfig, got %v", err)
	}
}

func TestFlowResumeAfterRestart(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	ctrl, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.flow.SelectAnswer(ctx, "ctx-1", "user-1", "m1", "a"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if err := f.flow.Navigate(ctx, "ctx-1", "user-1", 3); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	sessionID := ctrl.SessionID()

	f.restart()
	f.clock.Advance(10 * time.Minute)

	resumed, err := f.flow.Resume(ctx, "ctx-1", "user-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	view := resumed.View(f.clock.Now())
	if view.ID != sessionID {
		t.Errorf("expected session %s, got %s", sessionID, view.ID)
	}
	if view.Answers["m1"] != "a" || view.CurrentIndex != 3 {
		t.Errorf("expected progress to be rehydrated, got answers %v index %d", view.Answers, view.CurrentIndex)
	}
	if view.Timer.ElapsedSeconds != 600 {
		t.Errorf("expected timer derived from the original start, got %d", view.Timer.ElapsedSeconds)
	}
}

func TestFlowResumeExpiredTimedSessionAutoSubmits(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	if _, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.restart()
	f.clock.Advance(2 * time.Hour)

	ctrl, err := f.flow.Resume(ctx, "ctx-1", "user-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if ctrl.State() != model.SessionStateSubmitted || ctrl.Result() == nil {
		t.Fatalf("expected auto-submitted session, got %s", ctrl.State())
	}
	if ctrl.Result().TimeSpentSeconds != 45*60 {
		t.Errorf("expected time spent capped at 45 minutes, got %d", ctrl.Result().TimeSpentSeconds)
	}

	if _, err := f.flow.Resume(ctx, "ctx-1", "user-1"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected no active session afterwards, got %v", err)
	}
}

func TestFlowSubmitAfterDeadlineReturnsDeadlineResult(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	if _, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.flow.SelectAnswer(ctx, "ctx-1", "user-1", "m1", "a"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	f.clock.Advance(46 * time.Minute)

	res, err := f.flow.Submit(ctx, "ctx-1", "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res == nil || res.Score != 1 {
		t.Fatalf("expected the graded result, got %+v", res)
	}
	if res.TimeSpentSeconds != 45*60 {
		t.Errorf("expected time spent capped at 45 minutes, got %d", res.TimeSpentSeconds)
	}
	if got := f.results.saveCount(); got != 1 {
		t.Errorf("expected exactly one save, got %d", got)
	}

	if _, err := f.flow.Submit(ctx, "ctx-1", "user-1"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected no active session afterwards, got %v", err)
	}
}

func TestFlowSubmitThenStartAgain(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	if _, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = f.flow.SelectAnswer(ctx, "ctx-1", "user-1", "e1", "a")

	res, err := f.flow.Submit(ctx, "ctx-1", "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Score != 1 || res.TotalQuestions != 5 {
		t.Errorf("unexpected result %+v", res)
	}

	if _, err := f.flow.Resume(ctx, "ctx-1", "user-1"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected no active session after submit, got %v", err)
	}
	if _, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB()); err != nil {
		t.Errorf("expected a new session to start after submit, got %v", err)
	}

	stored, err := f.flow.Result(ctx, "user-1", res.ID)
	if err != nil || stored.ID != res.ID {
		t.Errorf("expected stored result, got %+v, %v", stored, err)
	}
	if _, err := f.flow.Result(ctx, "user-2", res.ID); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("expected ErrResultNotFound for another user, got %v", err)
	}
}

func TestFlowAbandon(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	if _, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.flow.Abandon(ctx, "ctx-1", "user-1"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if f.durable.has("ctx-1") || f.volatile.has("ctx-1") {
		t.Error("expected stored session to be cleared")
	}
	if err := f.flow.Abandon(ctx, "ctx-1", "user-1"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestFlowDashboard(t *testing.T) {
	f := newFlowFixture()
	ctx := context.Background()

	dash, err := f.flow.Dashboard(ctx, "ctx-1", "user-1")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if dash.TotalAttempts != 0 || dash.Readiness.Total != 0 || dash.HasActive || dash.Recent == nil {
		t.Errorf("unexpected empty dashboard %+v", dash)
	}

	for i := 0; i < 6; i++ {
		if _, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB()); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		if _, err := f.flow.Submit(ctx, "ctx-1", "user-1"); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if _, _, err := f.flow.Start(ctx, "ctx-1", "user-1", timedJAMB()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	dash, err = f.flow.Dashboard(ctx, "ctx-1", "user-1")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if dash.TotalAttempts != 6 || len(dash.Recent) != RecentHistoryLimit || !dash.HasActive {
		t.Errorf("unexpected dashboard %+v", dash)
	}
}
