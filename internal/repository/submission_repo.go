package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/grader-go-api/internal/models"
)

// SubmissionRepository exposes persistence helpers for submissions.
// Submissions are immutable, so there is no update path.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	// ListRecentByExercise returns the comparison window for plagiarism
	// detection: the most recent limit submissions for the exercise,
	// newest first. Older submissions stay stored, just outside the window.
	ListRecentByExercise(ctx context.Context, exerciseID uint, limit int) ([]models.Submission, error)
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Preload("Exercise").
		First(&submission, id).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListRecentByExercise(ctx context.Context, exerciseID uint, limit int) ([]models.Submission, error) {
	var submissions []models.Submission
	query := r.db.WithContext(ctx).
		Where("exercise_id = ?", exerciseID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}
