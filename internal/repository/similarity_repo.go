package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/grader-go-api/internal/models"
)

// SimilarityReportRepository persists plagiarism detection output. Saving a
// new report supersedes the submission's previous one instead of merging.
type SimilarityReportRepository interface {
	Save(ctx context.Context, report *models.SimilarityReport) error
	CurrentBySubmission(ctx context.Context, submissionID uint) (models.SimilarityReport, error)
	CountFlagged(ctx context.Context, filter FlagFilter) (int64, error)
}

// FlagFilter scopes plagiarism flag counts the same way GradeFilter scopes
// grade queries.
type FlagFilter struct {
	ExerciseID uint
	AuthorID   uint
	TeacherID  uint
	From       time.Time
	To         time.Time
}

// NewSimilarityReportRepository constructs a similarity report repository.
func NewSimilarityReportRepository(db *gorm.DB) SimilarityReportRepository {
	return &similarityReportRepository{db: db}
}

type similarityReportRepository struct {
	db *gorm.DB
}

func (r *similarityReportRepository) Save(ctx context.Context, report *models.SimilarityReport) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.SimilarityReport{}).
			Where("submission_id = ? AND superseded = ?", report.SubmissionID, false).
			Update("superseded", true).Error
		if err != nil {
			return err
		}
		return tx.Create(report).Error
	})
}

func (r *similarityReportRepository) CurrentBySubmission(ctx context.Context, submissionID uint) (models.SimilarityReport, error) {
	var report models.SimilarityReport
	err := r.db.WithContext(ctx).
		Where("submission_id = ? AND superseded = ?", submissionID, false).
		Order("created_at DESC, id DESC").
		First(&report).Error
	if err != nil {
		return models.SimilarityReport{}, err
	}
	return report, nil
}

func (r *similarityReportRepository) CountFlagged(ctx context.Context, filter FlagFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).
		Model(&models.SimilarityReport{}).
		Joins("JOIN submissions ON submissions.id = similarity_reports.submission_id").
		Where("similarity_reports.superseded = ?", false).
		Where("similarity_reports.insufficient_length = ?", false).
		Where("similarity_reports.score >= similarity_reports.threshold")

	if filter.ExerciseID != 0 {
		query = query.Where("submissions.exercise_id = ?", filter.ExerciseID)
	}
	if filter.AuthorID != 0 {
		query = query.Where("submissions.author_id = ?", filter.AuthorID)
	}
	if filter.TeacherID != 0 {
		query = query.Joins("JOIN exercises ON exercises.id = submissions.exercise_id").
			Where("exercises.teacher_id = ?", filter.TeacherID)
	}
	if !filter.From.IsZero() {
		query = query.Where("submissions.created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("submissions.created_at < ?", filter.To)
	}

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
