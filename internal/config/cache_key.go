package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionTokenKey maps an opaque session token to its session ID.
func (r *CacheKeyStruct) SessionTokenKey(token string) string {
	return fmt.Sprintf("session:token:%s", token)
}

// AuditChannel returns the Redis PubSub channel for session lifecycle events.
func (r *CacheKeyStruct) AuditChannel() string {
	return "session:audit"
}

var CacheKey = NewCacheKeyStruct()
