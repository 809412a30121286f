package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExpirySweepLockKey returns the key holding the cross-process sweeper lock.
func (r *CacheKeyStruct) ExpirySweepLockKey() string {
	return "sweeper:expiry:lock"
}

// SessionEventsChannel returns the Redis PubSub channel for a session's status changes.
func (r *CacheKeyStruct) SessionEventsChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

var CacheKey = NewCacheKeyStruct()
