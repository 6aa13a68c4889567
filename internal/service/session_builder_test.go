package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/model"
)

func newTestBuilder(src *fakeSource, clock Clock) *SessionBuilder {
	pool := NewQuestionPool(src, zerolog.Nop(), WithShuffle(noShuffle))
	return NewSessionBuilder(pool, testCatalog(), clock, zerolog.Nop())
}

func TestBuilderResolveSubjects(t *testing.T) {
	b := newTestBuilder(&fakeSource{}, newFakeClock(testStart))

	got := b.ResolveSubjects(model.ExamConfig{ExamType: model.ExamTypeJAMB, Subjects: model.UseDefaultSubjects()})
	if len(got) != 3 || got[0] != "Use of English" {
		t.Errorf("expected JAMB defaults, got %v", got)
	}

	got = b.ResolveSubjects(model.ExamConfig{ExamType: model.ExamTypeJAMB, Subjects: model.ExplicitSubjects("Biology", "Chemistry")})
	if len(got) != 2 || got[0] != "Biology" || got[1] != "Chemistry" {
		t.Errorf("expected explicit subjects in order, got %v", got)
	}
}

func TestBuilderGroupsBySubjectInOrder(t *testing.T) {
	src := &fakeSource{bySubject: map[string][]model.Question{
		"Use of English": {
			makeQuestion("e1", "Use of English", "Lexis"),
			makeQuestion("e2", "Use of English", "Lexis"),
			makeQuestion("e3", "Use of English", "Oral"),
			makeQuestion("e4", "Use of English", "Oral"),
		},
		"Mathematics": {
			makeQuestion("m1", "Mathematics", "Algebra"),
			makeQuestion("m2", "Mathematics", "Algebra"),
			makeQuestion("m3", "Mathematics", "Algebra"),
		},
	}}
	clock := newFakeClock(testStart)
	b := newTestBuilder(src, clock)

	session, err := b.Build(context.Background(), model.ExamConfig{
		ExamType: model.ExamTypeJAMB,
		Mode:     model.ModeTimed,
		Subjects: model.UseDefaultSubjects(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// English contributes its catalog count of 3, Mathematics the default 2, Physics nothing.
	wantIDs := []string{"e1", "e2", "e3", "m1", "m2"}
	if len(session.Questions) != len(wantIDs) {
		t.Fatalf("expected %d questions, got %d", len(wantIDs), len(session.Questions))
	}
	for i, id := range wantIDs {
		if session.Questions[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, session.Questions[i].ID)
		}
	}

	if session.ID == "" {
		t.Error("expected a session id")
	}
	if session.StartTime != testStart.UnixMilli() {
		t.Errorf("expected start time %d, got %d", testStart.UnixMilli(), session.StartTime)
	}
	if session.DurationMinutes != 45 {
		t.Errorf("expected 45 minute timed session, got %d", session.DurationMinutes)
	}
	if session.IsSubmitted || len(session.Answers) != 0 {
		t.Error("expected a fresh, unanswered session")
	}
}

func TestBuilderPracticeIsUntimed(t *testing.T) {
	src := &fakeSource{bySubject: map[string][]model.Question{
		"Biology": {makeQuestion("b1", "Biology", "Cells")},
	}}
	b := newTestBuilder(src, newFakeClock(testStart))

	session, err := b.Build(context.Background(), model.ExamConfig{
		ExamType: model.ExamTypeJAMB,
		Mode:     model.ModePractice,
		Subjects: model.ExplicitSubjects("Biology"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if session.DurationMinutes != 0 || session.Timed() {
		t.Errorf("expected untimed practice session, got %d minutes", session.DurationMinutes)
	}
}

func TestBuilderNoContent(t *testing.T) {
	src := &fakeSource{failing: map[string]error{"Mathematics": errors.New("timeout")}}
	b := newTestBuilder(src, newFakeClock(testStart))

	_, err := b.Build(context.Background(), model.ExamConfig{
		ExamType: model.ExamTypeJAMB,
		Mode:     model.ModeTimed,
		Subjects: model.ExplicitSubjects("Mathematics", "Physics"),
	})
	if !errors.Is(err, ErrContentUnavailable) {
		t.Fatalf("expected ErrContentUnavailable, got %v", err)
	}
}
