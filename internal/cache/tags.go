package cache

import (
	"strings"

	"github.com/lueurxax/insights-engine/internal/core/domain"
)

// InvalidationChannel is the pub/sub channel announcing invalidated tags.
const InvalidationChannel = "insights:cache:invalidate"

const (
	tagPrefix     = "subject:"
	tagSetPrefix  = "insights:tag:"
	viewKeyPrefix = "insights:view:"
)

// SubjectTag covers every cached view of a subject.
func SubjectTag(subjectKey string) string {
	return tagPrefix + subjectKey
}

// CategoryTag covers the cached views of one report of a subject.
func CategoryTag(subjectKey string, category domain.Category) string {
	return tagPrefix + subjectKey + ":" + string(category)
}

// ReportTags returns the tags to invalidate after a report of category is persisted.
func ReportTags(subjectKey string, category domain.Category) []string {
	return []string{SubjectTag(subjectKey), CategoryTag(subjectKey, category)}
}

// ViewKey builds the Redis key of a cached view from its parts.
func ViewKey(parts ...string) string {
	return viewKeyPrefix + strings.Join(parts, ":")
}

func tagSetKey(tag string) string {
	return tagSetPrefix + tag
}
