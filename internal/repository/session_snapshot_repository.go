package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionSnapshotRepository is the durable session tier: one serialized
// in-progress session per browser context.
type SessionSnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSessionSnapshotRepository creates a new SessionSnapshotRepository.
func NewSessionSnapshotRepository(pool *pgxpool.Pool) *SessionSnapshotRepository {
	return &SessionSnapshotRepository{pool: pool}
}

// Name identifies the tier in logs and warnings.
func (r *SessionSnapshotRepository) Name() string {
	return "postgres"
}

// Put stores data under key, replacing any previous snapshot.
func (r *SessionSnapshotRepository) Put(ctx context.Context, key string, data []byte) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_snapshots (context_key, payload, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (context_key) DO UPDATE
		 SET payload = EXCLUDED.payload, updated_at = NOW()`,
		key, data,
	)
	return err
}

// Get returns the stored bytes, or nil when nothing is stored.
func (r *SessionSnapshotRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT payload FROM session_snapshots WHERE context_key = $1`, key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes the snapshot of key, if any.
func (r *SessionSnapshotRepository) Delete(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM session_snapshots WHERE context_key = $1`, key)
	return err
}
