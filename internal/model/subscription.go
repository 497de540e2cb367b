package model

import (
	"strings"
	"time"
)

// MaxTopicLen bounds the stored topic in runes; longer input is truncated on
// create.
const MaxTopicLen = 100

// AllowedIntervalHours are the subscription check intervals users may pick.
var AllowedIntervalHours = []int{6, 12, 24, 48, 168}

// DefaultIntervalHours is used when a subscription does not specify one.
const DefaultIntervalHours = 24

// Subscription is a recurring topic watch owned by a single user.
type Subscription struct {
	ID            int64      `json:"id"`
	OwnerID       int64      `json:"owner_id"`
	Topic         string     `json:"topic"`
	Categories    []string   `json:"categories,omitempty"`
	IntervalHours int        `json:"interval_hours"`
	Active        bool       `json:"active"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Due reports whether the subscription should be checked at the given time.
func (s *Subscription) Due(now time.Time) bool {
	if !s.Active {
		return false
	}
	if s.LastRunAt == nil {
		return true
	}
	return now.Sub(*s.LastRunAt) >= time.Duration(s.IntervalHours)*time.Hour
}

// ValidIntervalHours reports whether h is one of the allowed intervals.
func ValidIntervalHours(h int) bool {
	for _, a := range AllowedIntervalHours {
		if h == a {
			return true
		}
	}
	return false
}

// NormalizeTopic case-folds the topic, trims it and collapses internal
// whitespace so that "Quantum  Computing " and "quantum computing" select the
// same subscription and cache entries.
func NormalizeTopic(topic string) string {
	t := strings.Join(strings.Fields(strings.ToLower(topic)), " ")
	if r := []rune(t); len(r) > MaxTopicLen {
		t = string(r[:MaxTopicLen])
	}
	return t
}

// ViewRecord marks a paper as already delivered to (or read by) an owner.
type ViewRecord struct {
	OwnerID  int64     `json:"owner_id"`
	PaperID  string    `json:"paper_id"`
	ViewedAt time.Time `json:"viewed_at"`
}

// BatchResult summarizes one worker invocation. Deferred subscriptions are
// counted in neither Successful nor Failed; they stay due for the next run.
type BatchResult struct {
	Processed  int   `json:"processed"`
	Successful int   `json:"successful"`
	Failed     int   `json:"failed"`
	DurationMs int64 `json:"duration_ms"`
}
