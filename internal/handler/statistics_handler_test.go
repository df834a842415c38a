package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/grader-go-api/internal/config"
	"github.com/noah-isme/grader-go-api/internal/dto"
	"github.com/noah-isme/grader-go-api/internal/handler"
	"github.com/noah-isme/grader-go-api/internal/models"
	"github.com/noah-isme/grader-go-api/internal/repository"
	"github.com/noah-isme/grader-go-api/internal/router"
	"github.com/noah-isme/grader-go-api/internal/service"
)

func setupStatisticsApp(t *testing.T) *fiber.App {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Exercise{}, &models.Submission{}, &models.SimilarityReport{}, &models.GradeRecord{}))

	exercise := models.Exercise{Title: "Queries", TeacherID: 4, Language: models.LanguageSQL}
	require.NoError(t, db.Create(&exercise).Error)
	submission := models.Submission{ExerciseID: exercise.ID, AuthorID: 8, Language: models.LanguageSQL, Source: "SELECT 1;"}
	require.NoError(t, db.Create(&submission).Error)

	gradeRepo := repository.NewGradeRecordRepository(db)
	record := models.GradeRecord{SubmissionID: submission.ID, Status: models.GradeStatusAutoGraded, Grade: 16}
	require.NoError(t, gradeRepo.CreateInitial(context.Background(), &record))

	logger := zerolog.New(io.Discard)
	stats := service.NewStatisticsService(gradeRepo, repository.NewSimilarityReportRepository(db), nil, service.StatisticsConfig{}, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		StatisticsHandler: handler.NewStatisticsHandler(stats, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", uint(4))
			c.Locals("user_role", "teacher")
			return c.Next()
		},
	})
	return app
}

func TestStatisticsHandlerGlobalScope(t *testing.T) {
	app := setupStatisticsApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/statistics", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data dto.StatisticsSnapshot `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, service.ScopeGlobal, payload.Data.Scope)
	require.Equal(t, int64(1), payload.Data.SubmissionCount)
	require.InDelta(t, 16.0, payload.Data.AverageGrade, 1e-9)
}

func TestStatisticsHandlerRejectsUnknownScope(t *testing.T) {
	app := setupStatisticsApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/statistics?scope=classroom", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStatisticsHandlerRejectsBadWindow(t *testing.T) {
	app := setupStatisticsApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/statistics?from=yesterday", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
