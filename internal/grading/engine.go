package grading

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/grader-go-api/internal/events"
	"github.com/noah-isme/grader-go-api/internal/models"
	"github.com/noah-isme/grader-go-api/internal/observability"
	"github.com/noah-isme/grader-go-api/internal/repository"
)

// ErrGradeOutOfRange indicates the grade falls outside the allowed domain.
var ErrGradeOutOfRange = errors.New("grade out of range")

// ErrRejectedLocked indicates the submission was rejected and only an admin
// may override it.
var ErrRejectedLocked = errors.New("submission rejected, admin override required")

// ErrGradeNotFound indicates no grade record exists for the submission.
var ErrGradeNotFound = errors.New("grade record not found")

// Actor identifies who drives a grading transition. The engine trusts the
// role as given; authentication happens outside the core.
type Actor struct {
	ID   uint
	Role string
}

// Config groups grading engine knobs.
type Config struct {
	MaxGrade           float64
	RejectionThreshold float64
}

// Engine is the per-submission grading state machine. All writes for one
// submission are serialized by a keyed mutex, and the repository's
// compare-and-set guards against writers outside this process.
type Engine struct {
	grades    repository.GradeRecordRepository
	publisher *events.Publisher
	sanitizer *bluemonday.Policy
	cfg       Config
	logger    zerolog.Logger
	tracer    trace.Tracer

	mu    sync.Mutex
	locks map[uint]*submissionLock
}

// submissionLock is a reference-counted mutex entry so the keyed lock map
// stays bounded by the number of in-flight submissions.
type submissionLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine constructs the grading engine.
func NewEngine(grades repository.GradeRecordRepository, publisher *events.Publisher, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.MaxGrade <= 0 {
		cfg.MaxGrade = 20
	}
	if cfg.RejectionThreshold <= 0 {
		cfg.RejectionThreshold = 0.95
	}

	return &Engine{
		grades:    grades,
		publisher: publisher,
		sanitizer: bluemonday.StrictPolicy(),
		cfg:       cfg,
		logger:    logger.With().Str("component", "grading_engine").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/grader-go-api/internal/grading"),
		locks:     make(map[uint]*submissionLock),
	}
}

func (e *Engine) lock(submissionID uint) func() {
	e.mu.Lock()
	entry, ok := e.locks[submissionID]
	if !ok {
		entry = &submissionLock{}
		e.locks[submissionID] = entry
	}
	entry.refs++
	e.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		e.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(e.locks, submissionID)
		}
		e.mu.Unlock()
	}
}

// Current returns the authoritative grade record for the submission.
func (e *Engine) Current(ctx context.Context, submissionID uint) (models.GradeRecord, error) {
	record, err := e.grades.CurrentBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.GradeRecord{}, ErrGradeNotFound
		}
		return models.GradeRecord{}, err
	}
	return record, nil
}

// History returns every grade version for the submission, oldest first.
func (e *Engine) History(ctx context.Context, submissionID uint) ([]models.GradeRecord, error) {
	return e.grades.ListVersions(ctx, submissionID)
}

// Initialize creates the pending version-1 grade record alongside a new
// submission.
func (e *Engine) Initialize(ctx context.Context, submissionID uint) error {
	record := models.GradeRecord{
		SubmissionID: submissionID,
		Status:       models.GradeStatusPending,
		GraderKind:   models.GraderKindAuto,
	}
	if err := e.grades.CreateInitial(ctx, &record); err != nil {
		return err
	}
	observability.GradeTransitions().WithLabelValues(models.GradeStatusPending).Inc()
	return nil
}

// BeginExecution transitions pending to executing on dispatch.
func (e *Engine) BeginExecution(ctx context.Context, submissionID uint) error {
	unlock := e.lock(submissionID)
	defer unlock()

	return e.transition(ctx, submissionID, func(current models.GradeRecord) (*models.GradeRecord, error) {
		if current.Status != models.GradeStatusPending {
			return nil, nil
		}
		return &models.GradeRecord{
			Status:     models.GradeStatusExecuting,
			GraderKind: models.GraderKindAuto,
		}, nil
	}, Actor{}, "")
}

// RecordOutcome applies the automated scoring rule to a terminal execution
// result: matching output earns full marks, a mismatch earns zero pending
// review, and any failure classification moves to execution-failed with
// feedback naming the failure category only.
func (e *Engine) RecordOutcome(ctx context.Context, submissionID uint, result models.ExecutionResult, expectedOutput string, maxGrade float64) error {
	unlock := e.lock(submissionID)
	defer unlock()

	ctx, span := e.tracer.Start(ctx, "grading.record_outcome", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.String("grading.classification", result.Classification),
	))
	defer span.End()

	if maxGrade <= 0 {
		maxGrade = e.cfg.MaxGrade
	}

	return e.transition(ctx, submissionID, func(current models.GradeRecord) (*models.GradeRecord, error) {
		if current.Terminal() {
			return nil, nil
		}

		next := &models.GradeRecord{GraderKind: models.GraderKindAuto}
		if result.Classification == models.ExecutionClassSuccess {
			next.Status = models.GradeStatusAutoGraded
			if outputMatches(result.Stdout, expectedOutput) {
				next.Grade = maxGrade
				next.Feedback = "output matches the expected result"
			} else {
				next.Feedback = "program ran successfully but the output does not match the expected result"
			}
		} else {
			next.Status = models.GradeStatusExecutionFailed
			next.Feedback = failureFeedback(result)
		}
		return next, nil
	}, Actor{}, events.KindExecutionComplete)
}

// MarkUnavailable records that sandbox provisioning retries were exhausted.
// The resulting record is execution-failed but carries feedback that points
// at the platform, not the student's code.
func (e *Engine) MarkUnavailable(ctx context.Context, submissionID uint) error {
	unlock := e.lock(submissionID)
	defer unlock()

	return e.transition(ctx, submissionID, func(current models.GradeRecord) (*models.GradeRecord, error) {
		if current.Terminal() {
			return nil, nil
		}
		return &models.GradeRecord{
			Status:     models.GradeStatusExecutionFailed,
			GraderKind: models.GraderKindAuto,
			Feedback:   "grading temporarily unavailable, your submission will be re-evaluated",
		}, nil
	}, Actor{}, events.KindExecutionComplete)
}

// ApplyPlagiarism rejects the submission when the similarity score crosses
// the hard threshold. A grade a human has already confirmed always wins:
// the report is published but the record stays untouched.
func (e *Engine) ApplyPlagiarism(ctx context.Context, submissionID uint, report models.SimilarityReport) error {
	if report.Flagged() {
		observability.PlagiarismFlags().Inc()
		e.publisher.Publish(events.KindPlagiarismFlagged, submissionID, 0, "", map[string]any{
			"score":     report.Score,
			"threshold": report.Threshold,
		})
	}

	if report.InsufficientLength || report.Score < e.cfg.RejectionThreshold {
		return nil
	}

	unlock := e.lock(submissionID)
	defer unlock()

	return e.transition(ctx, submissionID, func(current models.GradeRecord) (*models.GradeRecord, error) {
		if current.Status == models.GradeStatusRejected || current.HumanConfirmed() {
			return nil, nil
		}
		return &models.GradeRecord{
			Status:     models.GradeStatusRejected,
			GraderKind: models.GraderKindAuto,
			Feedback:   "submission rejected: similarity to prior work exceeds the permitted threshold",
		}, nil
	}, Actor{}, events.KindGradeFinalized)
}

// Override applies a human grading decision. It is allowed from any state
// except rejected, where only an admin may intervene. Human-entered grades
// do not require a terminal execution result.
func (e *Engine) Override(ctx context.Context, submissionID uint, grade float64, feedback string, actor Actor) (models.GradeRecord, error) {
	if grade < 0 || grade > e.cfg.MaxGrade {
		return models.GradeRecord{}, ErrGradeOutOfRange
	}

	unlock := e.lock(submissionID)
	defer unlock()

	var applied models.GradeRecord
	err := e.transition(ctx, submissionID, func(current models.GradeRecord) (*models.GradeRecord, error) {
		if current.Status == models.GradeStatusRejected && !strings.EqualFold(actor.Role, "admin") {
			return nil, ErrRejectedLocked
		}
		next := &models.GradeRecord{
			Status:     models.GradeStatusGraded,
			Grade:      grade,
			Feedback:   e.sanitizer.Sanitize(strings.TrimSpace(feedback)),
			GraderID:   actor.ID,
			GraderKind: models.GraderKindHuman,
		}
		applied = *next
		return next, nil
	}, actor, events.KindGradeFinalized)
	if err != nil {
		return models.GradeRecord{}, err
	}

	record, err := e.grades.CurrentBySubmission(ctx, submissionID)
	if err != nil {
		return applied, nil
	}
	return record, nil
}

// transition loads the current record, asks decide for the next version and
// appends it. decide returning nil means no transition applies.
func (e *Engine) transition(ctx context.Context, submissionID uint, decide func(models.GradeRecord) (*models.GradeRecord, error), actor Actor, eventKind string) error {
	current, err := e.grades.CurrentBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGradeNotFound
		}
		return err
	}

	next, err := decide(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	if err := e.grades.AppendVersion(ctx, current, next); err != nil {
		return err
	}

	observability.GradeTransitions().WithLabelValues(next.Status).Inc()
	e.logger.Info().
		Uint("submission_id", submissionID).
		Str("from", current.Status).
		Str("to", next.Status).
		Uint("grader_id", next.GraderID).
		Str("grader_kind", next.GraderKind).
		Msg("grade transition")

	if eventKind != "" {
		e.publisher.Publish(eventKind, submissionID, actor.ID, next.GraderKind, map[string]any{
			"status":  next.Status,
			"grade":   next.Grade,
			"version": next.Version,
		})
	}

	return nil
}

func outputMatches(got, expected string) bool {
	return strings.TrimSpace(got) == strings.TrimSpace(expected)
}

func failureFeedback(result models.ExecutionResult) string {
	switch result.Classification {
	case models.ExecutionClassTimeout:
		return "execution exceeded the time limit"
	case models.ExecutionClassResourceExceeded:
		return "execution exceeded the resource limit"
	default:
		return "execution failed with a runtime error"
	}
}
