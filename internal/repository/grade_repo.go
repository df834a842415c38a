package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/grader-go-api/internal/models"
)

// ErrVersionConflict indicates a concurrent writer already appended a newer
// grade version for the submission.
var ErrVersionConflict = errors.New("grade version conflict")

// GradeFilter scopes grade queries for statistics aggregation.
type GradeFilter struct {
	ExerciseID uint
	AuthorID   uint
	TeacherID  uint
	From       time.Time
	To         time.Time
}

// GradeRecordRepository persists the versioned grade ledger. Versions are
// append-only; AppendVersion uses a compare-and-set on the prior version so
// two writers can never both finalize the same submission.
type GradeRecordRepository interface {
	CreateInitial(ctx context.Context, record *models.GradeRecord) error
	CurrentBySubmission(ctx context.Context, submissionID uint) (models.GradeRecord, error)
	ListVersions(ctx context.Context, submissionID uint) ([]models.GradeRecord, error)
	AppendVersion(ctx context.Context, prior models.GradeRecord, next *models.GradeRecord) error
	ListCurrentWithSubmissions(ctx context.Context, filter GradeFilter) ([]models.GradeRecord, error)
}

// NewGradeRecordRepository constructs a grade record repository.
func NewGradeRecordRepository(db *gorm.DB) GradeRecordRepository {
	return &gradeRecordRepository{db: db}
}

type gradeRecordRepository struct {
	db *gorm.DB
}

func (r *gradeRecordRepository) CreateInitial(ctx context.Context, record *models.GradeRecord) error {
	record.Version = 1
	record.Current = true
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gradeRecordRepository) CurrentBySubmission(ctx context.Context, submissionID uint) (models.GradeRecord, error) {
	var record models.GradeRecord
	err := r.db.WithContext(ctx).
		Where("submission_id = ? AND current = ?", submissionID, true).
		First(&record).Error
	if err != nil {
		return models.GradeRecord{}, err
	}
	return record, nil
}

func (r *gradeRecordRepository) ListVersions(ctx context.Context, submissionID uint) ([]models.GradeRecord, error) {
	var records []models.GradeRecord
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("version ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *gradeRecordRepository) AppendVersion(ctx context.Context, prior models.GradeRecord, next *models.GradeRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		demote := tx.Model(&models.GradeRecord{}).
			Where("submission_id = ? AND version = ? AND current = ?", prior.SubmissionID, prior.Version, true).
			Update("current", false)
		if demote.Error != nil {
			return demote.Error
		}
		if demote.RowsAffected != 1 {
			return ErrVersionConflict
		}

		next.SubmissionID = prior.SubmissionID
		next.Version = prior.Version + 1
		next.Current = true
		next.ID = 0
		return tx.Create(next).Error
	})
}

func (r *gradeRecordRepository) ListCurrentWithSubmissions(ctx context.Context, filter GradeFilter) ([]models.GradeRecord, error) {
	query := r.db.WithContext(ctx).
		Preload("Submission").
		Preload("Submission.Exercise").
		Joins("JOIN submissions ON submissions.id = grade_records.submission_id").
		Where("grade_records.current = ?", true)

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

	var records []models.GradeRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
