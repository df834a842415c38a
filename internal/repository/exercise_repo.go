package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/grader-go-api/internal/models"
)

// ExerciseRepository exposes persistence helpers for exercises.
type ExerciseRepository interface {
	Create(ctx context.Context, exercise *models.Exercise) error
	GetByID(ctx context.Context, id uint) (models.Exercise, error)
}

// NewExerciseRepository constructs an exercise repository.
func NewExerciseRepository(db *gorm.DB) ExerciseRepository {
	return &exerciseRepository{db: db}
}

type exerciseRepository struct {
	db *gorm.DB
}

func (r *exerciseRepository) Create(ctx context.Context, exercise *models.Exercise) error {
	return r.db.WithContext(ctx).Create(exercise).Error
}

func (r *exerciseRepository) GetByID(ctx context.Context, id uint) (models.Exercise, error) {
	var exercise models.Exercise
	if err := r.db.WithContext(ctx).First(&exercise, id).Error; err != nil {
		return models.Exercise{}, err
	}
	return exercise, nil
}
