package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ActiveAttemptKey returns the lock key held while a user is taking an assessment
func (r *CacheKeyStruct) ActiveAttemptKey(assessmentID, userID string) string {
	return fmt.Sprintf("proctor:user:%s:assessment:%s:active", userID, assessmentID)
}

var CacheKey = NewCacheKeyStruct()
