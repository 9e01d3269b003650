package config

import "fmt"

// CacheKey centralizes Redis key construction so producers and
// consumers can never drift apart.
var CacheKey = &cacheKeys{}

type cacheKeys struct{}

// ExamPaperKey returns the cache key for a published exam's student paper.
func (k *cacheKeys) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}
