package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/grader-go-api/internal/dispatch"
	"github.com/noah-isme/grader-go-api/internal/dto"
	"github.com/noah-isme/grader-go-api/internal/events"
	"github.com/noah-isme/grader-go-api/internal/grading"
	"github.com/noah-isme/grader-go-api/internal/models"
	"github.com/noah-isme/grader-go-api/internal/observability"
	"github.com/noah-isme/grader-go-api/internal/repository"
)

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrExerciseNotFound indicates the target exercise does not exist.
var ErrExerciseNotFound = errors.New("exercise not found")

// ErrUnsupportedLanguage indicates the declared language is outside the
// allowed set. Such submissions are rejected up front, never queued.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrForbidden indicates the actor's role does not permit the operation.
var ErrForbidden = errors.New("forbidden")

// Enqueuer schedules a submission for evaluation.
type Enqueuer interface {
	Enqueue(task dispatch.Task)
}

// SubmissionService exposes the grading pipeline's external operations.
type SubmissionService interface {
	Submit(ctx context.Context, authorID uint, payload dto.SubmitRequest) (dto.SubmitResponse, error)
	GetResult(ctx context.Context, submissionID uint) (dto.ExecutionResultResponse, error)
	GetGrade(ctx context.Context, submissionID uint) (dto.GradeResponse, error)
	GetGradeHistory(ctx context.Context, submissionID uint) ([]dto.GradeResponse, error)
	GetSimilarity(ctx context.Context, submissionID uint) (dto.SimilarityReportResponse, error)
	OverrideGrade(ctx context.Context, submissionID uint, payload dto.OverrideGradeRequest, actor grading.Actor) (dto.GradeResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	exercises   repository.ExerciseRepository
	results     repository.ExecutionResultRepository
	reports     repository.SimilarityReportRepository
	engine      *grading.Engine
	queue       Enqueuer
	stats       StatisticsService
	publisher   *events.Publisher
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	exercises repository.ExerciseRepository,
	results repository.ExecutionResultRepository,
	reports repository.SimilarityReportRepository,
	engine *grading.Engine,
	queue Enqueuer,
	stats StatisticsService,
	publisher *events.Publisher,
	validate *validator.Validate,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		submissions: submissions,
		exercises:   exercises,
		results:     results,
		reports:     reports,
		engine:      engine,
		queue:       queue,
		stats:       stats,
		publisher:   publisher,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) Submit(ctx context.Context, authorID uint, payload dto.SubmitRequest) (dto.SubmitResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmitResponse{}, err
	}

	language := strings.ToLower(strings.TrimSpace(payload.Language))
	if !models.SupportedLanguage(language) {
		return dto.SubmitResponse{}, ErrUnsupportedLanguage
	}

	exercise, err := s.exercises.GetByID(ctx, payload.ExerciseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmitResponse{}, ErrExerciseNotFound
		}
		return dto.SubmitResponse{}, err
	}

	submission := models.Submission{
		ExerciseID: payload.ExerciseID,
		AuthorID:   authorID,
		Language:   language,
		Source:     payload.Source,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmitResponse{}, err
	}

	if err := s.engine.Initialize(ctx, submission.ID); err != nil {
		return dto.SubmitResponse{}, err
	}

	pending, err := s.engine.Current(ctx, submission.ID)
	if err == nil {
		s.stats.ApplyGrade(ctx, submission, exercise.TeacherID, nil, pending)
	}

	s.queue.Enqueue(dispatch.Task{ExerciseID: submission.ExerciseID, SubmissionID: submission.ID})
	observability.SubmissionsReceived().WithLabelValues(language).Inc()
	s.publisher.Publish(events.KindSubmissionQueued, submission.ID, authorID, "student", map[string]any{
		"exercise_id": submission.ExerciseID,
		"language":    language,
	})

	return dto.SubmitResponse{
		SubmissionID: submission.ID,
		Status:       models.GradeStatusPending,
		QueuedAt:     submission.CreatedAt,
	}, nil
}

func (s *submissionService) GetResult(ctx context.Context, submissionID uint) (dto.ExecutionResultResponse, error) {
	if _, err := s.submissions.GetByID(ctx, submissionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExecutionResultResponse{}, ErrSubmissionNotFound
		}
		return dto.ExecutionResultResponse{}, err
	}

	result, err := s.results.LatestBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ExecutionResultResponse{SubmissionID: submissionID, Pending: true}, nil
		}
		return dto.ExecutionResultResponse{}, err
	}

	return dto.NewExecutionResultResponse(result), nil
}

func (s *submissionService) GetGrade(ctx context.Context, submissionID uint) (dto.GradeResponse, error) {
	record, err := s.engine.Current(ctx, submissionID)
	if err != nil {
		if errors.Is(err, grading.ErrGradeNotFound) {
			return dto.GradeResponse{}, ErrSubmissionNotFound
		}
		return dto.GradeResponse{}, err
	}
	return dto.NewGradeResponse(record), nil
}

func (s *submissionService) GetGradeHistory(ctx context.Context, submissionID uint) ([]dto.GradeResponse, error) {
	records, err := s.engine.History(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrSubmissionNotFound
	}

	responses := make([]dto.GradeResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, dto.NewGradeResponse(record))
	}
	return responses, nil
}

func (s *submissionService) GetSimilarity(ctx context.Context, submissionID uint) (dto.SimilarityReportResponse, error) {
	report, err := s.reports.CurrentBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SimilarityReportResponse{}, ErrSubmissionNotFound
		}
		return dto.SimilarityReportResponse{}, err
	}
	return dto.NewSimilarityReportResponse(report), nil
}

func (s *submissionService) OverrideGrade(ctx context.Context, submissionID uint, payload dto.OverrideGradeRequest, actor grading.Actor) (dto.GradeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GradeResponse{}, err
	}

	role := strings.ToLower(strings.TrimSpace(actor.Role))
	if role != "teacher" && role != "admin" {
		return dto.GradeResponse{}, ErrForbidden
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradeResponse{}, ErrSubmissionNotFound
		}
		return dto.GradeResponse{}, err
	}

	prior, err := s.engine.Current(ctx, submissionID)
	if err != nil {
		if errors.Is(err, grading.ErrGradeNotFound) {
			return dto.GradeResponse{}, ErrSubmissionNotFound
		}
		return dto.GradeResponse{}, err
	}

	record, err := s.engine.Override(ctx, submissionID, payload.Grade, payload.Feedback, actor)
	if err != nil {
		return dto.GradeResponse{}, err
	}

	s.stats.ApplyGrade(ctx, submission, submission.Exercise.TeacherID, &prior, record)

	return dto.NewGradeResponse(record), nil
}
