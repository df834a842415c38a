package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/grader-go-api/internal/config"
	"github.com/noah-isme/grader-go-api/internal/database"
	"github.com/noah-isme/grader-go-api/internal/dispatch"
	"github.com/noah-isme/grader-go-api/internal/events"
	"github.com/noah-isme/grader-go-api/internal/grading"
	"github.com/noah-isme/grader-go-api/internal/handler"
	"github.com/noah-isme/grader-go-api/internal/middleware"
	"github.com/noah-isme/grader-go-api/internal/models"
	"github.com/noah-isme/grader-go-api/internal/plagiarism"
	"github.com/noah-isme/grader-go-api/internal/repository"
	"github.com/noah-isme/grader-go-api/internal/router"
	"github.com/noah-isme/grader-go-api/internal/service"
	"github.com/noah-isme/grader-go-api/pkg/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Exercise{}, &models.Submission{}, &models.ExecutionResult{}, &models.SimilarityReport{}, &models.GradeRecord{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	publisher := events.NewPublisher(natsConn, "grader.audit", logger)

	dockerRunner, err := sandbox.NewDockerRunner(sandbox.DockerConfig{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.SandboxMemoryMB),
		CPUShares:     int64(cfg.SandboxCPUShares),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to create docker runner: %v", err)
	}
	defer dockerRunner.Close()

	sqlRunner := sandbox.NewSQLRunner(db, sandbox.SQLConfig{
		Timeout:      cfg.ExecutionTimeout,
		StatementCap: cfg.SQLStatementCap,
		Logger:       logger,
	})

	runner := sandbox.NewRetryRunner(sandbox.NewMux(sqlRunner, dockerRunner), sandbox.RetryConfig{
		Attempts: cfg.InfraRetries,
		Base:     cfg.InfraRetryBase,
		Logger:   logger,
	})

	exerciseRepo := repository.NewExerciseRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	resultRepo := repository.NewExecutionResultRepository(db)
	reportRepo := repository.NewSimilarityReportRepository(db)
	gradeRepo := repository.NewGradeRecordRepository(db)

	engine := grading.NewEngine(gradeRepo, publisher, grading.Config{
		MaxGrade:           cfg.MaxGrade,
		RejectionThreshold: cfg.RejectionThreshold,
	}, logger)

	detector := plagiarism.NewDetector(plagiarism.Config{
		MatchThreshold: cfg.PlagiarismThreshold,
		MinTokens:      cfg.PlagiarismMinTokens,
		Logger:         logger,
	})

	statsService := service.NewStatisticsService(gradeRepo, reportRepo, redisClient, service.StatisticsConfig{
		PassingThreshold: cfg.PassingThreshold,
		CacheTTL:         cfg.StatsCacheTTL,
	}, logger)

	pipeline := service.NewEvaluationPipeline(submissionRepo, resultRepo, reportRepo, runner, detector, engine, statsService, service.PipelineConfig{
		ExecutionTimeout: cfg.ExecutionTimeout,
		CorpusWindow:     cfg.CorpusWindow,
	}, logger)

	dispatcher := dispatch.New(cfg.WorkerPoolSize, pipeline, logger)

	submissionService := service.NewSubmissionService(submissionRepo, exerciseRepo, resultRepo, reportRepo, engine, dispatcher, statsService, publisher, validate, logger)

	submissionHandler := handler.NewSubmissionHandler(submissionService, validate, logger)
	statisticsHandler := handler.NewStatisticsHandler(statsService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app)
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler: submissionHandler,
		StatisticsHandler: statisticsHandler,
		Queue:             dispatcher,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	dispatcher.Start(workerCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopWorkers, dispatcher)
}

func waitForShutdown(app *fiber.App, stopWorkers context.CancelFunc, dispatcher *dispatch.Dispatcher) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	stopWorkers()
	dispatcher.Wait()

	log.Println("server stopped")
}
