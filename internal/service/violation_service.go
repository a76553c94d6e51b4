package service

import (
	"context"
	"fmt"

	"github.com/edusync/proctor/internal/model"
	"github.com/edusync/proctor/internal/response"
)

// ViolationStore reads persisted violations.
type ViolationStore interface {
	ListByAssessment(ctx context.Context, assessmentID string, limit, offset int) ([]model.Violation, int, error)
}

// ViolationService serves the instructor's violation review.
type ViolationService struct {
	store ViolationStore
}

// NewViolationService creates a new ViolationService.
func NewViolationService(store ViolationStore) *ViolationService {
	return &ViolationService{store: store}
}

// ListViolations returns a page of violations for an assessment.
func (s *ViolationService) ListViolations(ctx context.Context, assessmentID string, page, perPage int) ([]model.Violation, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	violations, total, err := s.store.ListByAssessment(ctx, assessmentID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list violations: %w", err)
	}
	if violations == nil {
		violations = []model.Violation{}
	}

	return violations, response.NewPagination(page, perPage, total), nil
}
