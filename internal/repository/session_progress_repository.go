package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-prep/internal/model"
)

// SessionProgressRepository archives the progress cache so it survives a Redis flush.
type SessionProgressRepository struct {
	pool *pgxpool.Pool
}

// NewSessionProgressRepository creates a new SessionProgressRepository.
func NewSessionProgressRepository(pool *pgxpool.Pool) *SessionProgressRepository {
	return &SessionProgressRepository{pool: pool}
}

// Get returns the archived progress of a session, or nil when none exists.
func (r *SessionProgressRepository) Get(ctx context.Context, sessionID string) (*model.SessionProgress, error) {
	var (
		answers, checked []byte
		p                model.SessionProgress
	)
	err := r.pool.QueryRow(ctx,
		`SELECT answers, current_index, checked FROM session_progress WHERE session_id = $1`, sessionID,
	).Scan(&answers, &p.CurrentIndex, &checked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &p.Answers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(checked, &p.Checked); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertBatch writes many progress records in one statement. Session ids must be unique
// within the batch. Older records never overwrite newer rows.
func (r *SessionProgressRepository) UpsertBatch(ctx context.Context, batch []model.ProgressRecord) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	ids := make([]string, 0, n)
	answers := make([][]byte, 0, n)
	indexes := make([]int, 0, n)
	checked := make([][]byte, 0, n)
	queuedAts := make([]time.Time, 0, n)

	for _, rec := range batch {
		a, c, err := encodeProgress(rec.Progress)
		if err != nil {
			return err
		}
		ids = append(ids, rec.SessionID)
		answers = append(answers, a)
		indexes = append(indexes, rec.Progress.CurrentIndex)
		checked = append(checked, c)
		queuedAts = append(queuedAts, time.UnixMilli(rec.QueuedAt))
	}

	query := `
		INSERT INTO session_progress (session_id, answers, current_index, checked, updated_at)
		SELECT u.session_id, u.answers, u.current_index, u.checked, u.updated_at
		FROM UNNEST(
			$1::text[],
			$2::jsonb[],
			$3::int[],
			$4::jsonb[],
			$5::timestamptz[]
		) AS u (session_id, answers, current_index, checked, updated_at)
		ON CONFLICT (session_id) DO UPDATE
		SET answers = EXCLUDED.answers,
		    current_index = EXCLUDED.current_index,
		    checked = EXCLUDED.checked,
		    updated_at = EXCLUDED.updated_at
		WHERE session_progress.updated_at <= EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query, ids, answers, indexes, checked, queuedAts)
	return err
}

// Upsert writes a single progress record.
func (r *SessionProgressRepository) Upsert(ctx context.Context, rec model.ProgressRecord) error {
	a, c, err := encodeProgress(rec.Progress)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO session_progress (session_id, answers, current_index, checked, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id) DO UPDATE
		 SET answers = EXCLUDED.answers,
		     current_index = EXCLUDED.current_index,
		     checked = EXCLUDED.checked,
		     updated_at = EXCLUDED.updated_at
		 WHERE session_progress.updated_at <= EXCLUDED.updated_at`,
		rec.SessionID, a, rec.Progress.CurrentIndex, c, time.UnixMilli(rec.QueuedAt),
	)
	return err
}

// DeleteBatch removes the archived progress of many sessions.
func (r *SessionProgressRepository) DeleteBatch(ctx context.Context, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM session_progress WHERE session_id = ANY($1)`, sessionIDs)
	return err
}

// Delete removes the archived progress of one session.
func (r *SessionProgressRepository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM session_progress WHERE session_id = $1`, sessionID)
	return err
}

func encodeProgress(p model.SessionProgress) (answers, checked []byte, err error) {
	if p.Answers == nil {
		p.Answers = map[string]string{}
	}
	if p.Checked == nil {
		p.Checked = []string{}
	}
	if answers, err = json.Marshal(p.Answers); err != nil {
		return nil, nil, err
	}
	if checked, err = json.Marshal(p.Checked); err != nil {
		return nil, nil, err
	}
	return answers, checked, nil
}
