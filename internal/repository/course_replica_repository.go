package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/learnsphere/enrollment-api/internal/models"
)

// CourseReplicaRepository persists the local course read model. It is written
// only by the sync listeners; everything else reads.
type CourseReplicaRepository struct {
	db *sqlx.DB
}

// NewCourseReplicaRepository constructs the repository.
func NewCourseReplicaRepository(db *sqlx.DB) *CourseReplicaRepository {
	return &CourseReplicaRepository{db: db}
}

// Upsert inserts the replica or patches its fields when the row exists.
// Upsert-on-conflict keeps redelivered and reordered events convergent: an
// update arriving before its create still lands, and the late create then
// overwrites with its own (older but complete) field set followed by any
// subsequent updates.
func (r *CourseReplicaRepository) Upsert(ctx context.Context, course *models.CourseReplica) error {
	const query = `INSERT INTO course_replicas (id, instructor_id, status, prerequisite_course_id, price, currency, title, updated_at)
        VALUES (:id, :instructor_id, :status, :prerequisite_course_id, :price, :currency, :title, :updated_at)
        ON CONFLICT (id) DO UPDATE SET
            instructor_id = EXCLUDED.instructor_id,
            status = EXCLUDED.status,
            prerequisite_course_id = EXCLUDED.prerequisite_course_id,
            price = EXCLUDED.price,
            currency = EXCLUDED.currency,
            title = EXCLUDED.title,
            updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("upsert course replica: %w", err)
	}
	return nil
}

// Delete removes the replica row. Enrollments referencing the course keep
// their frozen snapshots.
func (r *CourseReplicaRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM course_replicas WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete course replica: %w", err)
	}
	return nil
}

// FindByID returns a replica by course id.
func (r *CourseReplicaRepository) FindByID(ctx context.Context, id string) (*models.CourseReplica, error) {
	const query = `SELECT id, instructor_id, status, prerequisite_course_id, price, currency, title, updated_at
        FROM course_replicas WHERE id = $1`
	var course models.CourseReplica
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}
