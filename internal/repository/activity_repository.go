package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ActivityRepository maintains per-instructor daily activity counters.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// IncrementDiscussions bumps the discussion counter for (instructor, day) in a
// single statement, so concurrent handlers never lose an increment. There is
// no dedupe key; a redelivered event increments again.
func (r *ActivityRepository) IncrementDiscussions(ctx context.Context, instructorID string, day time.Time) error {
	const query = `INSERT INTO daily_activities (instructor_id, activity_date, discussion_count, updated_at)
        VALUES ($1, $2, 1, $3)
        ON CONFLICT (instructor_id, activity_date) DO UPDATE SET
            discussion_count = daily_activities.discussion_count + 1,
            updated_at = EXCLUDED.updated_at`
	date := day.UTC().Truncate(24 * time.Hour)
	if _, err := r.db.ExecContext(ctx, query, instructorID, date, time.Now().UTC()); err != nil {
		return fmt.Errorf("increment discussion count: %w", err)
	}
	return nil
}
