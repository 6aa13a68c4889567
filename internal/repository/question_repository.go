package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-prep/internal/model"
)

// QuestionRepository is the content collaborator: read access to the question pool.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// QueryQuestions returns every question of an exam type and subject. A non-empty
// topicFilter keeps only topics containing it (case-insensitive).
func (r *QuestionRepository) QueryQuestions(ctx context.Context, examType model.ExamType, subject, topicFilter string) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, exam_type, subject, topic, question_text, options, correct_option, explanation, difficulty
		 FROM questions
		 WHERE exam_type = $1 AND subject = $2
		   AND ($3 = '' OR topic ILIKE '%' || $3 || '%')
		 ORDER BY created_at`,
		examType, subject, topicFilter,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q       model.Question
			options []byte
		)
		if err := rows.Scan(&q.ID, &q.ExamType, &q.Subject, &q.Topic, &q.Text, &options, &q.CorrectOptionID, &q.Explanation, &q.Difficulty); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of question %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// HasQuestions reports whether any question exists for an exam type and subject.
func (r *QuestionRepository) HasQuestions(ctx context.Context, examType model.ExamType, subject string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM questions WHERE exam_type = $1 AND subject = $2)`,
		examType, subject,
	).Scan(&exists)
	return exists, err
}

// BulkInsert loads seed questions with COPY. Returns the number of rows written.
func (r *QuestionRepository) BulkInsert(ctx context.Context, questions []model.SeedQuestion) (int64, error) {
	rows := make([][]any, 0, len(questions))
	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return 0, err
		}
		difficulty := q.Difficulty
		if difficulty == "" {
			difficulty = model.DifficultyMedium
		}
		rows = append(rows, []any{
			q.ExamType, q.Subject, q.Topic, q.Text, options, q.CorrectOptionID, q.Explanation, difficulty,
		})
	}

	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"questions"},
		[]string{"exam_type", "subject", "topic", "question_text", "options", "correct_option", "explanation", "difficulty"},
		pgx.CopyFromRows(rows),
	)
}
