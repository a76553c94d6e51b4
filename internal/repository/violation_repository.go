package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edusync/proctor/internal/model"
)

// ViolationRepository reads persisted integrity violations. Rows are
// written in bulk by the violation worker.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// ListByAssessment returns one page of violations for an assessment, newest
// first, together with the total row count.
func (r *ViolationRepository) ListByAssessment(ctx context.Context, assessmentID string, limit, offset int) ([]model.Violation, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_violations WHERE assessment_id = $1`,
		assessmentID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id::text, assessment_id, user_id, signal, key_combo, counted, warning_count, occurred_at
		 FROM session_violations
		 WHERE assessment_id = $1
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		assessmentID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var violations []model.Violation
	for rows.Next() {
		var v model.Violation
		var key *string
		if err := rows.Scan(&v.ID, &v.SessionID, &v.AssessmentID, &v.UserID, &v.Signal, &key, &v.Counted, &v.WarningCount, &v.OccurredAt); err != nil {
			return nil, 0, err
		}
		if key != nil {
			v.Key = *key
		}
		violations = append(violations, v)
	}
	return violations, total, rows.Err()
}
