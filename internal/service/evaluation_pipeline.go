package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/grader-go-api/internal/grading"
	"github.com/noah-isme/grader-go-api/internal/models"
	"github.com/noah-isme/grader-go-api/internal/plagiarism"
	"github.com/noah-isme/grader-go-api/internal/repository"
	"github.com/noah-isme/grader-go-api/pkg/sandbox"
)

// PipelineConfig groups evaluation pipeline knobs.
type PipelineConfig struct {
	ExecutionTimeout time.Duration
	CorpusWindow     int
}

// EvaluationPipeline drives one submission through sandbox execution,
// plagiarism detection and grading. It implements dispatch.Processor.
type EvaluationPipeline struct {
	submissions repository.SubmissionRepository
	results     repository.ExecutionResultRepository
	reports     repository.SimilarityReportRepository
	runner      sandbox.Runner
	detector    *plagiarism.Detector
	engine      *grading.Engine
	stats       StatisticsService
	cfg         PipelineConfig
	logger      zerolog.Logger
}

// NewEvaluationPipeline constructs the pipeline.
func NewEvaluationPipeline(
	submissions repository.SubmissionRepository,
	results repository.ExecutionResultRepository,
	reports repository.SimilarityReportRepository,
	runner sandbox.Runner,
	detector *plagiarism.Detector,
	engine *grading.Engine,
	stats StatisticsService,
	cfg PipelineConfig,
	logger zerolog.Logger,
) *EvaluationPipeline {
	if cfg.CorpusWindow <= 0 {
		cfg.CorpusWindow = 50
	}

	return &EvaluationPipeline{
		submissions: submissions,
		results:     results,
		reports:     reports,
		runner:      runner,
		detector:    detector,
		engine:      engine,
		stats:       stats,
		cfg:         cfg,
		logger:      logger.With().Str("component", "evaluation_pipeline").Logger(),
	}
}

// Process evaluates one submission end to end. The sandbox runner already
// retries provisioning failures, so an infrastructure error here means the
// retry budget is spent and the submission is marked unavailable rather
// than defective.
func (p *EvaluationPipeline) Process(ctx context.Context, submissionID uint) error {
	submission, err := p.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}

	prior, err := p.engine.Current(ctx, submissionID)
	if err != nil {
		return err
	}

	if err := p.engine.BeginExecution(ctx, submissionID); err != nil {
		return err
	}

	outcome, runErr := p.runner.Run(ctx, sandbox.Request{
		SubmissionID: submission.ID,
		Language:     submission.Language,
		Source:       submission.Source,
		Timeout:      p.cfg.ExecutionTimeout,
	})

	if runErr != nil {
		if errors.Is(runErr, sandbox.ErrInfrastructure) {
			if err := p.engine.MarkUnavailable(ctx, submissionID); err != nil {
				p.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to mark submission unavailable")
			}
			p.noteGradeChange(ctx, submission, prior)
			return runErr
		}
		return runErr
	}

	result := models.ExecutionResult{
		SubmissionID:   submission.ID,
		Classification: outcome.Classification,
		Stdout:         outcome.Stdout,
		Stderr:         outcome.Stderr,
		ExitCode:       outcome.ExitCode,
		DurationMs:     outcome.Duration.Milliseconds(),
	}
	if err := p.results.Create(ctx, &result); err != nil {
		return err
	}

	// grading and plagiarism detection proceed independently; neither
	// blocks the other
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := p.engine.RecordOutcome(ctx, submission.ID, result, submission.Exercise.ExpectedOutput, submission.Exercise.MaxGrade); err != nil {
			p.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("failed to record execution outcome")
		}
	}()

	go func() {
		defer wg.Done()
		if err := p.detect(ctx, submission); err != nil {
			p.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("plagiarism detection failed")
		}
	}()

	wg.Wait()

	p.noteGradeChange(ctx, submission, prior)
	return nil
}

func (p *EvaluationPipeline) detect(ctx context.Context, submission models.Submission) error {
	window, err := p.submissions.ListRecentByExercise(ctx, submission.ExerciseID, p.cfg.CorpusWindow)
	if err != nil {
		return err
	}

	if err := p.score(ctx, submission, window); err != nil {
		return err
	}

	// the new submission changed the corpus, so every other in-window report
	// is stale: rescore them, superseding their previous reports
	for _, other := range window {
		if other.ID == submission.ID {
			continue
		}
		prior, err := p.engine.Current(ctx, other.ID)
		if err != nil {
			p.logger.Error().Err(err).Uint("submission_id", other.ID).Msg("failed to load grade before rescore")
			continue
		}
		if err := p.score(ctx, other, window); err != nil {
			p.logger.Error().Err(err).Uint("submission_id", other.ID).Msg("failed to rescore corpus member")
			continue
		}
		other.Exercise = submission.Exercise
		p.noteGradeChange(ctx, other, prior)
	}

	return nil
}

// score compares one submission against the rest of the window and persists
// the verdict, superseding any previous report for that submission.
func (p *EvaluationPipeline) score(ctx context.Context, submission models.Submission, window []models.Submission) error {
	corpus := make([]plagiarism.CorpusEntry, 0, len(window))
	for _, other := range window {
		if other.ID == submission.ID {
			continue
		}
		corpus = append(corpus, plagiarism.CorpusEntry{
			SubmissionID: other.ID,
			AuthorID:     other.AuthorID,
			Language:     other.Language,
			Source:       other.Source,
		})
	}

	verdict := p.detector.Detect(submission.Language, submission.Source, submission.AuthorID, corpus)

	matches, err := json.Marshal(verdict.Matches)
	if err != nil {
		return err
	}

	report := models.SimilarityReport{
		SubmissionID:       submission.ID,
		Score:              verdict.Score,
		Threshold:          verdict.Threshold,
		Matches:            matches,
		InsufficientLength: verdict.InsufficientLength,
	}
	if err := p.reports.Save(ctx, &report); err != nil {
		return err
	}

	return p.engine.ApplyPlagiarism(ctx, submission.ID, report)
}

// noteGradeChange feeds the net grade transition of this processing pass
// into the statistics aggregator.
func (p *EvaluationPipeline) noteGradeChange(ctx context.Context, submission models.Submission, prior models.GradeRecord) {
	next, err := p.engine.Current(ctx, submission.ID)
	if err != nil {
		p.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to load grade for statistics update")
		return
	}
	if next.Version == prior.Version {
		return
	}
	p.stats.ApplyGrade(ctx, submission, submission.Exercise.TeacherID, &prior, next)
}
