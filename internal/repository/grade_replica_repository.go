package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/learnsphere/enrollment-api/internal/models"
)

// GradeReplicaRepository persists the replicated grade read model.
type GradeReplicaRepository struct {
	db *sqlx.DB
}

// NewGradeReplicaRepository constructs the repository.
func NewGradeReplicaRepository(db *sqlx.DB) *GradeReplicaRepository {
	return &GradeReplicaRepository{db: db}
}

// Upsert inserts or patches a grade replica keyed by the upstream grade id.
func (r *GradeReplicaRepository) Upsert(ctx context.Context, grade *models.GradeReplica) error {
	const query = `INSERT INTO grade_replicas (id, student_id, course_id, score, graded_at)
        VALUES (:id, :student_id, :course_id, :score, :graded_at)
        ON CONFLICT (id) DO UPDATE SET
            student_id = EXCLUDED.student_id,
            course_id = EXCLUDED.course_id,
            score = EXCLUDED.score,
            graded_at = EXCLUDED.graded_at`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert grade replica: %w", err)
	}
	return nil
}

// Delete removes a grade replica.
func (r *GradeReplicaRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM grade_replicas WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete grade replica: %w", err)
	}
	return nil
}
