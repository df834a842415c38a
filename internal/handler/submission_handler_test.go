package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/grader-go-api/internal/config"
	"github.com/noah-isme/grader-go-api/internal/dispatch"
	"github.com/noah-isme/grader-go-api/internal/dto"
	"github.com/noah-isme/grader-go-api/internal/events"
	"github.com/noah-isme/grader-go-api/internal/grading"
	"github.com/noah-isme/grader-go-api/internal/handler"
	"github.com/noah-isme/grader-go-api/internal/models"
	"github.com/noah-isme/grader-go-api/internal/repository"
	"github.com/noah-isme/grader-go-api/internal/router"
	"github.com/noah-isme/grader-go-api/internal/service"
	"github.com/noah-isme/grader-go-api/internal/utils"
)

type testQueue struct {
	tasks []dispatch.Task
}

func (q *testQueue) Enqueue(task dispatch.Task) { q.tasks = append(q.tasks, task) }
func (q *testQueue) Depth() int                 { return len(q.tasks) }

type submissionFixture struct {
	app    *fiber.App
	db     *gorm.DB
	queue  *testQueue
	engine *grading.Engine
}

func setupSubmissionApp(t *testing.T, role string) *submissionFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Exercise{}, &models.Submission{}, &models.ExecutionResult{}, &models.SimilarityReport{}, &models.GradeRecord{}))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	gradeRepo := repository.NewGradeRecordRepository(db)
	reportRepo := repository.NewSimilarityReportRepository(db)
	engine := grading.NewEngine(gradeRepo, events.NewPublisher(nil, "", logger), grading.Config{}, logger)
	stats := service.NewStatisticsService(gradeRepo, reportRepo, nil, service.StatisticsConfig{}, logger)

	queue := &testQueue{}
	submissionService := service.NewSubmissionService(
		repository.NewSubmissionRepository(db),
		repository.NewExerciseRepository(db),
		repository.NewExecutionResultRepository(db),
		reportRepo,
		engine,
		queue,
		stats,
		events.NewPublisher(nil, "", logger),
		validate,
		logger,
	)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, validate, logger),
		Queue:             queue,
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", uint(1))
			c.Locals("user_role", role)
			return c.Next()
		},
	})

	return &submissionFixture{app: app, db: db, queue: queue, engine: engine}
}

func (f *submissionFixture) seedExercise(t *testing.T) models.Exercise {
	t.Helper()
	exercise := models.Exercise{Title: "Greeting", TeacherID: 9, Language: models.LanguagePython, ExpectedOutput: "hello", MaxGrade: 20}
	require.NoError(t, f.db.Create(&exercise).Error)
	return exercise
}

func TestSubmissionHandlerSubmitQueuesAndReturnsPending(t *testing.T) {
	fixture := setupSubmissionApp(t, "student")
	exercise := fixture.seedExercise(t)

	body, err := json.Marshal(dto.SubmitRequest{ExerciseID: exercise.ID, Language: "python", Source: "print('hello')"})
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/submissions", bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := fixture.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var payload utils.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.True(t, payload.Success)

	require.Len(t, fixture.queue.tasks, 1)
	require.Equal(t, exercise.ID, fixture.queue.tasks[0].ExerciseID)

	var record models.GradeRecord
	require.NoError(t, fixture.db.Where("submission_id = ?", fixture.queue.tasks[0].SubmissionID).First(&record).Error)
	require.Equal(t, models.GradeStatusPending, record.Status)
}

func TestSubmissionHandlerSubmitRejectsUnknownLanguage(t *testing.T) {
	fixture := setupSubmissionApp(t, "student")
	exercise := fixture.seedExercise(t)

	body, err := json.Marshal(dto.SubmitRequest{ExerciseID: exercise.ID, Language: "cobol", Source: "DISPLAY 'HELLO'."})
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/submissions", bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := fixture.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Empty(t, fixture.queue.tasks, "unsupported languages are rejected before queueing")
}

func TestSubmissionHandlerResultPendingBeforeExecution(t *testing.T) {
	fixture := setupSubmissionApp(t, "student")
	exercise := fixture.seedExercise(t)

	submission := models.Submission{ExerciseID: exercise.ID, AuthorID: 1, Language: models.LanguagePython, Source: "print('hello')"}
	require.NoError(t, fixture.db.Create(&submission).Error)

	req := httptest.NewRequest(fiber.MethodGet, fmt.Sprintf("/api/v1/submissions/%d/result", submission.ID), nil)
	resp, err := fixture.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data dto.ExecutionResultResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.True(t, payload.Data.Pending)
}

func TestSubmissionHandlerResultUnknownSubmission(t *testing.T) {
	fixture := setupSubmissionApp(t, "student")

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/submissions/404/result", nil)
	resp, err := fixture.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSubmissionHandlerOverrideGradeAsTeacher(t *testing.T) {
	fixture := setupSubmissionApp(t, "teacher")
	exercise := fixture.seedExercise(t)

	submission := models.Submission{ExerciseID: exercise.ID, AuthorID: 2, Language: models.LanguagePython, Source: "print('hello')"}
	require.NoError(t, fixture.db.Create(&submission).Error)
	require.NoError(t, fixture.engine.Initialize(context.Background(), submission.ID))

	body, err := json.Marshal(dto.OverrideGradeRequest{Grade: 14, Feedback: "good effort"})
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPut, fmt.Sprintf("/api/v1/submissions/%d/grade", submission.ID), bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := fixture.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data dto.GradeResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, models.GradeStatusGraded, payload.Data.Status)
	require.InDelta(t, 14.0, payload.Data.Grade, 1e-9)
	require.Equal(t, models.GraderKindHuman, payload.Data.GraderKind)
	require.Equal(t, 2, payload.Data.Version)
}

func TestSubmissionHandlerOverrideGradeForbiddenForStudents(t *testing.T) {
	fixture := setupSubmissionApp(t, "student")
	exercise := fixture.seedExercise(t)

	submission := models.Submission{ExerciseID: exercise.ID, AuthorID: 1, Language: models.LanguagePython, Source: "print('hello')"}
	require.NoError(t, fixture.db.Create(&submission).Error)

	body, err := json.Marshal(dto.OverrideGradeRequest{Grade: 20})
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPut, fmt.Sprintf("/api/v1/submissions/%d/grade", submission.ID), bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := fixture.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestHealthEndpointReportsQueueDepth(t *testing.T) {
	fixture := setupSubmissionApp(t, "student")
	fixture.queue.Enqueue(dispatch.Task{ExerciseID: 1, SubmissionID: 1})

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/health", nil)
	resp, err := fixture.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.EqualValues(t, 1, payload.Data["queue_depth"])
}
