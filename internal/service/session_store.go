package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/model"
)

// SessionTier is one storage location for the serialized active session.
// Get returns nil, nil when the key holds nothing.
type SessionTier interface {
	Name() string
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// SessionStore keeps at most one in-progress session per browser context,
// redundantly across its tiers. Tiers are read in order; the first is the durable one.
type SessionStore struct {
	tiers []SessionTier
	log   zerolog.Logger
}

// NewSessionStore creates a new SessionStore over the given tiers, durable first.
func NewSessionStore(log zerolog.Logger, tiers ...SessionTier) *SessionStore {
	return &SessionStore{
		tiers: tiers,
		log:   logger.Component(log, "session_store"),
	}
}

// Save writes the session to every tier. A tier failure never aborts the save;
// failures come back as a *PersistenceWarning. Any other error means the session
// could not be serialized.
func (s *SessionStore) Save(ctx context.Context, contextKey string, session *model.ExamSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	var warning *PersistenceWarning
	for _, tier := range s.tiers {
		if err := tier.Put(ctx, contextKey, data); err != nil {
			s.log.Warn().Err(err).
				Str("tier", tier.Name()).
				Str("session_id", session.ID).
				Msg("Session snapshot write failed")
			if warning == nil {
				warning = &PersistenceWarning{}
			}
			warning.Failures = append(warning.Failures, TierFailure{Tier: tier.Name(), Err: err})
		}
	}
	if warning != nil {
		if warning.AllFailed(len(s.tiers)) {
			s.log.Error().Str("session_id", session.ID).Msg("No tier holds the session, running in memory only")
		}
		return warning
	}
	return nil
}

// Load returns the first resumable session found, or nil when no tier holds one.
// Unreadable or invalid snapshots are skipped and left in place.
func (s *SessionStore) Load(ctx context.Context, contextKey string) *model.ExamSession {
	for _, tier := range s.tiers {
		data, err := tier.Get(ctx, contextKey)
		if err != nil {
			s.log.Warn().Err(err).Str("tier", tier.Name()).Msg("Session snapshot read failed")
			continue
		}
		if data == nil {
			continue
		}

		var session model.ExamSession
		if err := json.Unmarshal(data, &session); err != nil {
			s.log.Warn().Err(err).Str("tier", tier.Name()).Msg("Ignoring malformed session snapshot")
			continue
		}
		if !session.Resumable() {
			s.log.Debug().Str("tier", tier.Name()).Str("session_id", session.ID).Msg("Ignoring non-resumable session snapshot")
			continue
		}
		if session.Answers == nil {
			session.Answers = map[string]string{}
		}
		return &session
	}
	return nil
}

// Clear removes the session from every tier.
func (s *SessionStore) Clear(ctx context.Context, contextKey string) error {
	var errs []error
	for _, tier := range s.tiers {
		if err := tier.Delete(ctx, contextKey); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// RedisSessionTier is the volatile but reload-safe tier.
type RedisSessionTier struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessionTier creates a tier storing snapshots under active_session:<ctx>.
// A zero ttl keeps keys forever.
func NewRedisSessionTier(rdb *redis.Client, ttl time.Duration) *RedisSessionTier {
	return &RedisSessionTier{rdb: rdb, ttl: ttl}
}

func (t *RedisSessionTier) Name() string { return "redis" }

func (t *RedisSessionTier) Put(ctx context.Context, key string, data []byte) error {
	return t.rdb.Set(ctx, config.CacheKey.ActiveSessionKey(key), data, t.ttl).Err()
}

func (t *RedisSessionTier) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := t.rdb.Get(ctx, config.CacheKey.ActiveSessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (t *RedisSessionTier) Delete(ctx context.Context, key string) error {
	return t.rdb.Del(ctx, config.CacheKey.ActiveSessionKey(key)).Err()
}
