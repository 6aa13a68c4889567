package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ActiveSessionKey returns the key holding the single serialized in-progress session
// of a browser context.
func (r *CacheKeyStruct) ActiveSessionKey(contextKey string) string {
	return fmt.Sprintf("active_session:%s", contextKey)
}

// SessionProgressKey returns the key of a session's answers and current index.
func (r *CacheKeyStruct) SessionProgressKey(sessionID string) string {
	return fmt.Sprintf("progress:%s", sessionID)
}

// UserRateLimitKey identifies a rate limiter bucket.
func (r *CacheKeyStruct) UserRateLimitKey(userID string) string {
	return fmt.Sprintf("ratelimit:%s", userID)
}

var CacheKey = NewCacheKeyStruct()
