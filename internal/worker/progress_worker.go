package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/model"
)

const (
	ProgressBatchSize    = 100
	ProgressBatchTimeout = 2 * time.Second
	ProgressPollTimeout  = 1 * time.Second
)

// ProgressWriter is the durable progress archive.
type ProgressWriter interface {
	UpsertBatch(ctx context.Context, batch []model.ProgressRecord) error
	Upsert(ctx context.Context, rec model.ProgressRecord) error
	DeleteBatch(ctx context.Context, sessionIDs []string) error
	Delete(ctx context.Context, sessionID string) error
}

// ProgressWorker consumes persist_progress_queue and archives session progress
// to PostgreSQL in batches.
type ProgressWorker struct {
	store ProgressWriter
	rdb   *redis.Client
	log   zerolog.Logger
	queue string
}

// NewProgressWorker creates a new ProgressWorker.
func NewProgressWorker(store ProgressWriter, rdb *redis.Client, log zerolog.Logger) *ProgressWorker {
	return &ProgressWorker{
		store: store,
		rdb:   rdb,
		log:   logger.Component(log, "progress_worker"),
		queue: config.WorkerKey.PersistProgressQueue,
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start runs until ctx is done, then flushes what it holds. Call in a goroutine.
func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProgressWorker started")

	batch := make([]model.ProgressRecord, 0, ProgressBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ProgressBatchSize || time.Since(lastFlush) >= ProgressBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ProgressPollTimeout, w.queue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var rec model.ProgressRecord
			if err := json.Unmarshal([]byte(item[1]), &rec); err != nil || rec.SessionID == "" {
				w.log.Error().Err(err).Msg("Invalid progress payload, dropped")
				continue
			}

			batch = append(batch, rec)
		}
	}
}

// ----------------------------------------------------------------
// Batch write with per-record fallback
// ----------------------------------------------------------------

func (w *ProgressWorker) flushSafe(ctx context.Context, batch []model.ProgressRecord) {
	if len(batch) == 0 {
		return
	}

	puts, deletes := collapse(batch)

	if len(puts) > 0 {
		if err := w.store.UpsertBatch(ctx, puts); err != nil {
			w.log.Warn().Err(err).Int("size", len(puts)).Msg("bulk progress upsert failed, using fallback")
			for _, rec := range puts {
				if err := w.store.Upsert(ctx, rec); err != nil {
					w.log.Error().Err(err).Str("session_id", rec.SessionID).Msg("progress upsert failed, requeueing")
					w.requeue(ctx, rec)
				}
			}
		}
	}

	if len(deletes) > 0 {
		ids := make([]string, 0, len(deletes))
		for _, rec := range deletes {
			ids = append(ids, rec.SessionID)
		}
		if err := w.store.DeleteBatch(ctx, ids); err != nil {
			w.log.Warn().Err(err).Int("size", len(ids)).Msg("bulk progress delete failed, using fallback")
			for _, rec := range deletes {
				if err := w.store.Delete(ctx, rec.SessionID); err != nil {
					w.log.Error().Err(err).Str("session_id", rec.SessionID).Msg("progress delete failed, requeueing")
					w.requeue(ctx, rec)
				}
			}
		}
	}
}

// collapse keeps the last record per session, so a batch never upserts the same
// row twice and a delete is never followed by a stale put.
func collapse(batch []model.ProgressRecord) (puts, deletes []model.ProgressRecord) {
	last := make(map[string]int, len(batch))
	for i, rec := range batch {
		last[rec.SessionID] = i
	}
	for i, rec := range batch {
		if last[rec.SessionID] != i {
			continue
		}
		if rec.Op == model.ProgressOpDelete {
			deletes = append(deletes, rec)
		} else {
			puts = append(puts, rec)
		}
	}
	return puts, deletes
}

func (w *ProgressWorker) requeue(ctx context.Context, rec model.ProgressRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := w.rdb.RPush(ctx, w.queue, raw).Err(); err != nil {
		w.log.Error().Err(err).Str("session_id", rec.SessionID).Msg("requeue failed, progress record lost")
	}
}
