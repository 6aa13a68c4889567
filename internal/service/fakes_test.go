package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/model"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSource serves questions keyed by subject.
type fakeSource struct {
	mu         sync.Mutex
	bySubject  map[string][]model.Question
	failing    map[string]error
	lastFilter string
}

func (s *fakeSource) QueryQuestions(_ context.Context, examType model.ExamType, subject, topicFilter string) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = topicFilter
	if err := s.failing[subject]; err != nil {
		return nil, err
	}
	var out []model.Question
	for _, q := range s.bySubject[subject] {
		if topicFilter != "" && !strings.Contains(strings.ToLower(q.Topic), strings.ToLower(topicFilter)) {
			continue
		}
		if q.ExamType != "" && q.ExamType != examType {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *fakeSource) HasQuestions(_ context.Context, _ model.ExamType, subject string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failing[subject]; err != nil {
		return false, err
	}
	return len(s.bySubject[subject]) > 0, nil
}

type fakeResults struct {
	mu      sync.Mutex
	saved   []model.ExamResult
	history []model.ExamHistoryItem
	saveErr error
	saves   int

	// commitErr is returned after the row was stored, like a lost commit ack.
	commitErr error
}

// Save keeps the first row per session, matching the unique session_id column.
func (r *fakeResults) Save(_ context.Context, res *model.ExamResult) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return "", r.saveErr
	}
	for _, existing := range r.saved {
		if existing.SessionID == res.SessionID {
			return existing.ID, r.commitErr
		}
	}
	stored := *res
	stored.ID = fmt.Sprintf("result-%d", len(r.saved)+1)
	r.saved = append(r.saved, stored)
	r.history = append([]model.ExamHistoryItem{stored.HistoryItem()}, r.history...)
	return stored.ID, r.commitErr
}

func (r *fakeResults) setCommitErr(err error) {
	r.mu.Lock()
	r.commitErr = err
	r.mu.Unlock()
}

func (r *fakeResults) stored() []model.ExamResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ExamResult(nil), r.saved...)
}

func (r *fakeResults) History(_ context.Context, _ string) ([]model.ExamHistoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ExamHistoryItem(nil), r.history...), nil
}

func (r *fakeResults) Get(_ context.Context, userID, resultID string) (*model.ExamResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.saved {
		if res.ID == resultID && res.UserID == userID {
			out := res
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeResults) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func (r *fakeResults) setSaveErr(err error) {
	r.mu.Lock()
	r.saveErr = err
	r.mu.Unlock()
}

type fakeProgress struct {
	mu      sync.Mutex
	data    map[string]model.SessionProgress
	puts    int
	deleted []string
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{data: make(map[string]model.SessionProgress)}
}

func (p *fakeProgress) Put(_ context.Context, sessionID string, progress model.SessionProgress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.puts++
	p.data[sessionID] = progress
	return nil
}

func (p *fakeProgress) Get(_ context.Context, sessionID string) (*model.SessionProgress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	progress, ok := p.data[sessionID]
	if !ok {
		return nil, nil
	}
	return &progress, nil
}

func (p *fakeProgress) Delete(_ context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, sessionID)
	p.deleted = append(p.deleted, sessionID)
	return nil
}

type fakeTier struct {
	mu     sync.Mutex
	name   string
	data   map[string][]byte
	putErr error
	getErr error
}

func newFakeTier(name string) *fakeTier {
	return &fakeTier{name: name, data: make(map[string][]byte)}
}

func (t *fakeTier) Name() string { return t.name }

func (t *fakeTier) Put(_ context.Context, key string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.putErr != nil {
		return t.putErr
	}
	t.data[key] = append([]byte(nil), data...)
	return nil
}

func (t *fakeTier) Get(_ context.Context, key string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.getErr != nil {
		return nil, t.getErr
	}
	data, ok := t.data[key]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (t *fakeTier) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.data, key)
	return nil
}

func (t *fakeTier) has(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.data[key]
	return ok
}

func makeQuestion(id, subject, topic string) model.Question {
	return model.Question{
		ID:       id,
		ExamType: model.ExamTypeJAMB,
		Subject:  subject,
		Topic:    topic,
		Text:     "Question " + id,
		Options: []model.Option{
			{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"}, {ID: "d", Text: "D"},
		},
		CorrectOptionID: "a",
		Explanation:     "Because A.",
	}
}

// newTestSession builds a session of n questions q1..qn, each in its own topic.
func newTestSession(mode model.Mode, n int) *model.ExamSession {
	questions := make([]model.Question, n)
	for i := range questions {
		id := fmt.Sprintf("q%d", i+1)
		questions[i] = makeQuestion(id, "Mathematics", "Topic "+id)
	}
	duration := 0
	if mode == model.ModeTimed {
		duration = 45
	}
	return &model.ExamSession{
		ID:              "session-1",
		ExamType:        model.ExamTypeJAMB,
		Mode:            mode,
		Config:          model.ExamConfig{ExamType: model.ExamTypeJAMB, Mode: mode},
		StartTime:       testStart.UnixMilli(),
		DurationMinutes: duration,
		Questions:       questions,
		Answers:         map[string]string{},
	}
}

func testCatalog() *config.Catalog {
	return &config.Catalog{
		DefaultSubjects: map[model.ExamType][]string{
			model.ExamTypeJAMB: {"Use of English", "Mathematics", "Physics"},
		},
		SubjectCounts:        map[string]int{"use of english": 3},
		DefaultCount:         2,
		TimedDurationMinutes: 45,
		PassThreshold:        70,
	}
}

func noShuffle(int, func(i, j int)) {}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
