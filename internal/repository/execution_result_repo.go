package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/grader-go-api/internal/models"
)

// ExecutionResultRepository persists sandbox outcomes. Rows are append-only;
// a re-run creates a new row for the same submission.
type ExecutionResultRepository interface {
	Create(ctx context.Context, result *models.ExecutionResult) error
	LatestBySubmission(ctx context.Context, submissionID uint) (models.ExecutionResult, error)
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.ExecutionResult, error)
}

// NewExecutionResultRepository constructs an execution result repository.
func NewExecutionResultRepository(db *gorm.DB) ExecutionResultRepository {
	return &executionResultRepository{db: db}
}

type executionResultRepository struct {
	db *gorm.DB
}

func (r *executionResultRepository) Create(ctx context.Context, result *models.ExecutionResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *executionResultRepository) LatestBySubmission(ctx context.Context, submissionID uint) (models.ExecutionResult, error) {
	var result models.ExecutionResult
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at DESC, id DESC").
		First(&result).Error
	if err != nil {
		return models.ExecutionResult{}, err
	}
	return result, nil
}

func (r *executionResultRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.ExecutionResult, error) {
	var results []models.ExecutionResult
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at ASC, id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
