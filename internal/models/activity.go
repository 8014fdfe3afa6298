package models

import "time"

// DailyActivity aggregates per-instructor per-day counters for trend queries.
// Counters are incremented by event handlers without a dedupe key; duplicate
// delivery can double count, which is an accepted approximation.
type DailyActivity struct {
	InstructorID    string    `db:"instructor_id" json:"instructor_id"`
	ActivityDate    time.Time `db:"activity_date" json:"activity_date"`
	DiscussionCount int       `db:"discussion_count" json:"discussion_count"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
