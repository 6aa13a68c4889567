package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/model"
)

// ProgressArchive is the durable copy of the progress cache, filled by the progress worker.
type ProgressArchive interface {
	Get(ctx context.Context, sessionID string) (*model.SessionProgress, error)
}

// ProgressCache holds the answers, current index and checked questions of a
// running session under progress:<sessionId>. Every change is also queued for
// the durable archive.
type ProgressCache struct {
	rdb     *redis.Client
	archive ProgressArchive
	ttl     time.Duration
	clock   Clock
	log     zerolog.Logger
}

// NewProgressCache creates a new ProgressCache. archive may be nil.
func NewProgressCache(rdb *redis.Client, archive ProgressArchive, ttl time.Duration, clock Clock, log zerolog.Logger) *ProgressCache {
	return &ProgressCache{
		rdb:     rdb,
		archive: archive,
		ttl:     ttl,
		clock:   clock,
		log:     logger.Component(log, "progress_cache"),
	}
}

// Put replaces the cached progress of a session and queues it for archiving.
func (c *ProgressCache) Put(ctx context.Context, sessionID string, progress model.SessionProgress) error {
	answers, err := json.Marshal(nonNilAnswers(progress.Answers))
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	checked, err := json.Marshal(nonNilChecked(progress.Checked))
	if err != nil {
		return fmt.Errorf("marshal checked: %w", err)
	}
	record, err := json.Marshal(model.ProgressRecord{
		Op:        model.ProgressOpPut,
		SessionID: sessionID,
		Progress:  progress,
		QueuedAt:  c.clock.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal progress record: %w", err)
	}

	key := config.CacheKey.SessionProgressKey(sessionID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"answers", answers,
		"current_index", progress.CurrentIndex,
		"checked", checked,
	)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	pipe.RPush(ctx, config.WorkerKey.PersistProgressQueue, record)
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns the cached progress, falling back to the archive. Returns nil, nil
// when neither holds anything.
func (c *ProgressCache) Get(ctx context.Context, sessionID string) (*model.SessionProgress, error) {
	fields, err := c.rdb.HGetAll(ctx, config.CacheKey.SessionProgressKey(sessionID)).Result()
	if err != nil {
		c.log.Warn().Err(err).Str("session_id", sessionID).Msg("Progress cache read failed, trying archive")
	} else if len(fields) > 0 {
		p, err := decodeProgressHash(fields)
		if err == nil {
			return p, nil
		}
		c.log.Warn().Err(err).Str("session_id", sessionID).Msg("Malformed progress cache, trying archive")
	}

	if c.archive == nil {
		return nil, nil
	}
	return c.archive.Get(ctx, sessionID)
}

// Delete drops the cached progress and queues removal from the archive.
func (c *ProgressCache) Delete(ctx context.Context, sessionID string) error {
	record, err := json.Marshal(model.ProgressRecord{
		Op:        model.ProgressOpDelete,
		SessionID: sessionID,
		QueuedAt:  c.clock.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, config.CacheKey.SessionProgressKey(sessionID))
	pipe.RPush(ctx, config.WorkerKey.PersistProgressQueue, record)
	_, err = pipe.Exec(ctx)
	return err
}

func decodeProgressHash(fields map[string]string) (*model.SessionProgress, error) {
	p := &model.SessionProgress{Answers: map[string]string{}}
	if raw, ok := fields["answers"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Answers); err != nil {
			return nil, fmt.Errorf("answers: %w", err)
		}
	}
	if raw, ok := fields["current_index"]; ok && raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("current_index: %w", err)
		}
		p.CurrentIndex = idx
	}
	if raw, ok := fields["checked"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Checked); err != nil {
			return nil, fmt.Errorf("checked: %w", err)
		}
	}
	return p, nil
}

func nonNilAnswers(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilChecked(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
