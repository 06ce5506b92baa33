package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AuthTokenKey returns the cache key holding the active token ID of a principal.
func (r *CacheKeyStruct) AuthTokenKey(principalType, principalID string) string {
	return fmt.Sprintf("auth:%s:%s:jti", principalType, principalID)
}

// SessionLatestSnapshotKey returns the hash key caching a session's newest snapshot.
func (r *CacheKeyStruct) SessionLatestSnapshotKey(sessionID string) string {
	return fmt.Sprintf("session:%s:latest_snapshot", sessionID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// RetentionLockKey guards the snapshot retention sweep across instances.
func (r *CacheKeyStruct) RetentionLockKey() string {
	return "worker:snapshot_retention:lock"
}

var CacheKey = NewCacheKeyStruct()
