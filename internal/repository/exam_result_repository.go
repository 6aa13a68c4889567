package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-prep/internal/model"
)

// ExamResultRepository persists graded results and serves a user's history.
type ExamResultRepository struct {
	pool *pgxpool.Pool
}

// NewExamResultRepository creates a new ExamResultRepository.
func NewExamResultRepository(pool *pgxpool.Pool) *ExamResultRepository {
	return &ExamResultRepository{pool: pool}
}

// Save inserts a result and returns its persisted id. Saving the same session
// twice returns the id of the first row, so a retried submission never duplicates.
func (r *ExamResultRepository) Save(ctx context.Context, res *model.ExamResult) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	readiness, err := json.Marshal(res.ReadinessContribution)
	if err != nil {
		return "", fmt.Errorf("marshal readiness: %w", err)
	}
	breakdown, err := json.Marshal(res.TopicBreakdown)
	if err != nil {
		return "", fmt.Errorf("marshal topic breakdown: %w", err)
	}
	weak, err := json.Marshal(res.WeakAreas)
	if err != nil {
		return "", fmt.Errorf("marshal weak areas: %w", err)
	}
	var sessionData []byte
	if res.SessionData != nil {
		if sessionData, err = json.Marshal(res.SessionData); err != nil {
			return "", fmt.Errorf("marshal session data: %w", err)
		}
	}

	var persisted uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO exam_results (
			id, session_id, user_id, exam_type, mode, score, total_questions, accuracy,
			time_spent_seconds, readiness, topic_breakdown, weak_areas, recommendation,
			assignment_id, session_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
		 RETURNING id`,
		id, res.SessionID, res.UserID, res.ExamType, res.Mode, res.Score, res.TotalQuestions, res.Accuracy,
		res.TimeSpentSeconds, readiness, breakdown, weak, res.Recommendation,
		res.AssignmentID, sessionData, res.Date,
	).Scan(&persisted)
	if err != nil {
		return "", err
	}
	return persisted.String(), nil
}

// History returns the user's results as summaries, most recent first.
func (r *ExamResultRepository) History(ctx context.Context, userID string) ([]model.ExamHistoryItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, created_at, exam_type, mode, score, total_questions, accuracy
		 FROM exam_results
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.ExamHistoryItem
	for rows.Next() {
		var (
			it model.ExamHistoryItem
			id uuid.UUID
		)
		if err := rows.Scan(&id, &it.SessionID, &it.Date, &it.ExamType, &it.Mode, &it.Score, &it.TotalQuestions, &it.Accuracy); err != nil {
			return nil, err
		}
		it.ID = id.String()
		items = append(items, it)
	}
	return items, rows.Err()
}

// Get loads one of the user's results, including the originating session for review.
// Unknown or malformed ids yield pgx.ErrNoRows.
func (r *ExamResultRepository) Get(ctx context.Context, userID, resultID string) (*model.ExamResult, error) {
	id, err := uuid.Parse(resultID)
	if err != nil {
		return nil, pgx.ErrNoRows
	}

	var (
		res                                     model.ExamResult
		persisted                               uuid.UUID
		readiness, breakdown, weak, sessionData []byte
	)
	err = r.pool.QueryRow(ctx,
		`SELECT id, session_id, user_id, exam_type, mode, score, total_questions, accuracy,
		        time_spent_seconds, readiness, topic_breakdown, weak_areas, recommendation,
		        assignment_id, session_data, created_at
		 FROM exam_results
		 WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&persisted, &res.SessionID, &res.UserID, &res.ExamType, &res.Mode, &res.Score, &res.TotalQuestions, &res.Accuracy,
		&res.TimeSpentSeconds, &readiness, &breakdown, &weak, &res.Recommendation,
		&res.AssignmentID, &sessionData, &res.Date)
	if err != nil {
		return nil, err
	}
	res.ID = persisted.String()

	if err := json.Unmarshal(readiness, &res.ReadinessContribution); err != nil {
		return nil, fmt.Errorf("decode readiness: %w", err)
	}
	if err := json.Unmarshal(breakdown, &res.TopicBreakdown); err != nil {
		return nil, fmt.Errorf("decode topic breakdown: %w", err)
	}
	if err := json.Unmarshal(weak, &res.WeakAreas); err != nil {
		return nil, fmt.Errorf("decode weak areas: %w", err)
	}
	if len(sessionData) > 0 {
		res.SessionData = &model.ExamSession{}
		if err := json.Unmarshal(sessionData, res.SessionData); err != nil {
			return nil, fmt.Errorf("decode session data: %w", err)
		}
	}
	return &res, nil
}
