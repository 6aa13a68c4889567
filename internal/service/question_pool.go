package service

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/model"
	"golang.org/x/text/cases"
)

// AllTopics is the topic value that disables topic filtering.
const AllTopics = "all"

// ContentSource is the question content collaborator.
type ContentSource interface {
	QueryQuestions(ctx context.Context, examType model.ExamType, subject, topicFilter string) ([]model.Question, error)
	HasQuestions(ctx context.Context, examType model.ExamType, subject string) (bool, error)
}

// QuestionPool fetches, deduplicates and samples questions for one subject.
type QuestionPool struct {
	source  ContentSource
	shuffle func(n int, swap func(i, j int))
	log     zerolog.Logger
}

// QuestionPoolOption customizes a QuestionPool.
type QuestionPoolOption func(*QuestionPool)

// WithShuffle replaces the permutation source, e.g. with a seeded rand.Rand.Shuffle.
func WithShuffle(shuffle func(n int, swap func(i, j int))) QuestionPoolOption {
	return func(p *QuestionPool) { p.shuffle = shuffle }
}

// NewQuestionPool creates a new QuestionPool.
func NewQuestionPool(source ContentSource, log zerolog.Logger, opts ...QuestionPoolOption) *QuestionPool {
	p := &QuestionPool{
		source:  source,
		shuffle: rand.Shuffle,
		log:     logger.Component(log, "question_pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetch returns up to count unique questions in random order. A failing content
// source yields an empty slice, never an error.
func (p *QuestionPool) Fetch(ctx context.Context, subject, topic string, count int, examType model.ExamType) []model.Question {
	if count <= 0 {
		return []model.Question{}
	}

	filter := strings.TrimSpace(topic)
	if strings.EqualFold(filter, AllTopics) {
		filter = ""
	}

	raw, err := p.source.QueryQuestions(ctx, examType, subject, filter)
	if err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("exam_type", string(examType)).
			Msg("Question fetch failed, continuing with no questions")
		return []model.Question{}
	}

	unique := dedupeByText(raw)
	p.shuffle(len(unique), func(i, j int) {
		unique[i], unique[j] = unique[j], unique[i]
	})

	if len(unique) > count {
		unique = unique[:count]
	}
	return unique
}

// Available asks the content source whether the subject has any question.
func (p *QuestionPool) Available(ctx context.Context, examType model.ExamType, subject string) (bool, error) {
	return p.source.HasQuestions(ctx, examType, subject)
}

// dedupeByText keeps the first question of every normalized text.
func dedupeByText(questions []model.Question) []model.Question {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(questions))
	out := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		key := fold.String(strings.Join(strings.Fields(q.Text), " "))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}
