package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/grader-go-api/internal/dto"
	"github.com/noah-isme/grader-go-api/internal/models"
	"github.com/noah-isme/grader-go-api/internal/repository"
)

// Statistics scopes.
const (
	ScopeGlobal   = "global"
	ScopeExercise = "exercise"
	ScopeStudent  = "student"
	ScopeTeacher  = "teacher"
)

// ErrUnknownScope indicates an unrecognised statistics scope.
var ErrUnknownScope = errors.New("unknown statistics scope")

// StatisticsScope selects whose ledger slice to aggregate.
type StatisticsScope struct {
	Kind string
	ID   uint
}

// StatisticsWindow bounds aggregation in time. Zero values mean unbounded.
type StatisticsWindow struct {
	From time.Time
	To   time.Time
}

// StatisticsService derives rollups from the submission and grade ledger.
// Snapshots are always reconstructable from the ledger; the cache and the
// incremental accumulators are conveniences, never the system of record.
type StatisticsService interface {
	Aggregate(ctx context.Context, scope StatisticsScope, window StatisticsWindow) (dto.StatisticsSnapshot, error)
	ApplyGrade(ctx context.Context, submission models.Submission, teacherID uint, prior *models.GradeRecord, next models.GradeRecord)
}

// StatisticsConfig groups aggregation knobs.
type StatisticsConfig struct {
	PassingThreshold float64
	CacheTTL         time.Duration
}

type statisticsService struct {
	grades  repository.GradeRecordRepository
	reports repository.SimilarityReportRepository
	cache   *redis.Client
	cfg     StatisticsConfig
	logger  zerolog.Logger

	mu   sync.Mutex
	live map[string]*gradeAccumulator
	gen  uint64
}

// NewStatisticsService constructs the aggregator.
func NewStatisticsService(grades repository.GradeRecordRepository, reports repository.SimilarityReportRepository, cache *redis.Client, cfg StatisticsConfig, logger zerolog.Logger) StatisticsService {
	if cfg.PassingThreshold <= 0 {
		cfg.PassingThreshold = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	return &statisticsService{
		grades:  grades,
		reports: reports,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.With().Str("component", "statistics_service").Logger(),
		live:    make(map[string]*gradeAccumulator),
	}
}

func (s *statisticsService) Aggregate(ctx context.Context, scope StatisticsScope, window StatisticsWindow) (dto.StatisticsSnapshot, error) {
	tracer := otel.Tracer("github.com/noah-isme/grader-go-api/internal/service/statistics")
	ctx, span := tracer.Start(ctx, "statistics.aggregate")
	span.SetAttributes(
		attribute.String("statistics.scope", scope.Kind),
		attribute.Int64("statistics.scope_id", int64(scope.ID)),
	)
	defer span.End()

	filter, err := scopeFilter(scope, window)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown_scope")
		return dto.StatisticsSnapshot{}, err
	}

	cacheKey := snapshotKey(scope, window)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var snapshot dto.StatisticsSnapshot
			if unmarshalErr := json.Unmarshal([]byte(cached), &snapshot); unmarshalErr == nil {
				snapshot.CacheHit = true
				span.SetAttributes(attribute.Bool("statistics.cache_hit", true))
				return snapshot, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read statistics cache")
			span.RecordError(err)
		}
	}

	accumulator := s.liveAccumulator(scope, window)
	if accumulator == nil {
		s.mu.Lock()
		startGen := s.gen
		s.mu.Unlock()

		records, err := s.grades.ListCurrentWithSubmissions(ctx, filter)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list_grades_failed")
			return dto.StatisticsSnapshot{}, err
		}

		accumulator = newGradeAccumulator(s.cfg.PassingThreshold)
		for _, record := range records {
			accumulator.add(record)
		}

		if window == (StatisticsWindow{}) {
			s.mu.Lock()
			// a grade landed while the ledger scan ran; its delta is not in
			// this fold, so installing it would lose that update for good
			if s.gen == startGen {
				s.live[liveKey(scope)] = accumulator.clone()
			}
			s.mu.Unlock()
		}
	}

	flags, err := s.reports.CountFlagged(ctx, repository.FlagFilter{
		ExerciseID: filter.ExerciseID,
		AuthorID:   filter.AuthorID,
		TeacherID:  filter.TeacherID,
		From:       filter.From,
		To:         filter.To,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count_flags_failed")
		return dto.StatisticsSnapshot{}, err
	}

	snapshot := accumulator.snapshot(scope, window)
	snapshot.PlagiarismFlags = flags
	span.SetAttributes(attribute.Int64("statistics.submission_count", snapshot.SubmissionCount))

	if s.cache != nil {
		if payload, err := json.Marshal(snapshot); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cfg.CacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store statistics cache")
				span.RecordError(err)
			}
		}
	}

	return snapshot, nil
}

// ApplyGrade folds a new terminal grade version into the in-memory
// accumulators and drops cached snapshots for the affected scopes. A full
// recomputation always yields the same snapshot as the incremental path.
func (s *statisticsService) ApplyGrade(ctx context.Context, submission models.Submission, teacherID uint, prior *models.GradeRecord, next models.GradeRecord) {
	scopes := []StatisticsScope{
		{Kind: ScopeGlobal},
		{Kind: ScopeExercise, ID: submission.ExerciseID},
		{Kind: ScopeStudent, ID: submission.AuthorID},
	}
	if teacherID != 0 {
		scopes = append(scopes, StatisticsScope{Kind: ScopeTeacher, ID: teacherID})
	}

	s.mu.Lock()
	s.gen++
	for _, scope := range scopes {
		key := liveKey(scope)
		accumulator, ok := s.live[key]
		if !ok {
			continue
		}
		if !accumulator.replace(prior, next) {
			// removal touched a min/max boundary, recompute next read
			delete(s.live, key)
		}
	}
	s.mu.Unlock()

	if s.cache != nil {
		for _, scope := range scopes {
			if err := s.cache.Del(ctx, snapshotKey(scope, StatisticsWindow{})).Err(); err != nil && err != redis.Nil {
				s.logger.Warn().Err(err).Msg("failed to invalidate statistics cache")
			}
		}
	}
}

func (s *statisticsService) liveAccumulator(scope StatisticsScope, window StatisticsWindow) *gradeAccumulator {
	if window != (StatisticsWindow{}) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if accumulator, ok := s.live[liveKey(scope)]; ok {
		return accumulator.clone()
	}
	return nil
}

func scopeFilter(scope StatisticsScope, window StatisticsWindow) (repository.GradeFilter, error) {
	filter := repository.GradeFilter{From: window.From, To: window.To}
	switch scope.Kind {
	case ScopeGlobal:
	case ScopeExercise:
		filter.ExerciseID = scope.ID
	case ScopeStudent:
		filter.AuthorID = scope.ID
	case ScopeTeacher:
		filter.TeacherID = scope.ID
	default:
		return repository.GradeFilter{}, ErrUnknownScope
	}
	return filter, nil
}

func liveKey(scope StatisticsScope) string {
	return fmt.Sprintf("%s:%d", scope.Kind, scope.ID)
}

func snapshotKey(scope StatisticsScope, window StatisticsWindow) string {
	from, to := int64(0), int64(0)
	if !window.From.IsZero() {
		from = window.From.Unix()
	}
	if !window.To.IsZero() {
		to = window.To.Unix()
	}
	return fmt.Sprintf("stats:%s:%d:%d:%d", scope.Kind, scope.ID, from, to)
}
