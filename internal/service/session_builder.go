package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/model"
	"golang.org/x/sync/errgroup"
)

// SessionBuilder assembles an ExamSession from an ExamConfig.
type SessionBuilder struct {
	pool    *QuestionPool
	catalog *config.Catalog
	clock   Clock
	log     zerolog.Logger
}

// NewSessionBuilder creates a new SessionBuilder.
func NewSessionBuilder(pool *QuestionPool, catalog *config.Catalog, clock Clock, log zerolog.Logger) *SessionBuilder {
	return &SessionBuilder{
		pool:    pool,
		catalog: catalog,
		clock:   clock,
		log:     logger.Component(log, "session_builder"),
	}
}

// ResolveSubjects returns the effective subject list of cfg: its explicit
// subjects in order, or the catalog defaults of the exam type.
func (b *SessionBuilder) ResolveSubjects(cfg model.ExamConfig) []string {
	if cfg.Subjects.IsDefault() {
		return b.catalog.DefaultSubjectsFor(cfg.ExamType)
	}
	return cfg.Subjects.Subjects()
}

// Build fetches every subject concurrently and concatenates the questions
// grouped by subject in resolved order. It does not check availability;
// callers run that pre-flight themselves. Returns ErrContentUnavailable when
// no subject produced a question.
func (b *SessionBuilder) Build(ctx context.Context, cfg model.ExamConfig) (*model.ExamSession, error) {
	subjects := b.ResolveSubjects(cfg)
	slots := make([][]model.Question, len(subjects))

	g, gctx := errgroup.WithContext(ctx)
	for i, subject := range subjects {
		g.Go(func() error {
			// Fetch isolates its own failures, so a sibling never gets cancelled.
			slots[i] = b.pool.Fetch(gctx, subject, AllTopics, b.catalog.CountFor(subject), cfg.ExamType)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for i, qs := range slots {
		if len(qs) == 0 {
			b.log.Warn().Str("subject", subjects[i]).Msg("Subject contributed no questions")
		}
		total += len(qs)
	}
	if total == 0 {
		return nil, ErrContentUnavailable
	}

	questions := make([]model.Question, 0, total)
	for _, qs := range slots {
		questions = append(questions, qs...)
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	session := &model.ExamSession{
		ID:              id.String(),
		ExamType:        cfg.ExamType,
		Mode:            cfg.Mode,
		Config:          cfg,
		StartTime:       b.clock.Now().UnixMilli(),
		DurationMinutes: b.catalog.DurationFor(cfg.Mode),
		Questions:       questions,
		Answers:         map[string]string{},
		IsSubmitted:     false,
	}

	b.log.Info().
		Str("session_id", session.ID).
		Str("exam_type", string(cfg.ExamType)).
		Str("mode", string(cfg.Mode)).
		Int("subjects", len(subjects)).
		Int("questions", total).
		Msg("Session built")

	return session, nil
}
