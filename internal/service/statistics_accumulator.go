package service

import (
	"github.com/noah-isme/grader-go-api/internal/dto"
	"github.com/noah-isme/grader-go-api/internal/models"
)

// Fixed grade-distribution bucket labels for the 0-20 grade domain.
var distributionBuckets = []string{"0-5", "6-9", "10-13", "14-17", "18-20"}

// gradeAccumulator folds current grade records into snapshot figures. It is
// incrementally updatable: add is always safe, remove reports false when the
// removed grade sat on a min/max boundary and the fold must be rebuilt.
type gradeAccumulator struct {
	passing float64

	submissionCount int64
	gradedCount     int64
	rejectedCount   int64

	gradeSum  float64
	minGrade  float64
	maxGrade  float64
	passCount int64
	failCount int64

	distribution map[string]int64
}

func newGradeAccumulator(passing float64) *gradeAccumulator {
	distribution := make(map[string]int64, len(distributionBuckets))
	for _, bucket := range distributionBuckets {
		distribution[bucket] = 0
	}
	return &gradeAccumulator{passing: passing, distribution: distribution}
}

// graded-like means a numeric grade exists: finalized or auto-graded.
func gradedLike(record models.GradeRecord) bool {
	return record.Status == models.GradeStatusGraded || record.Status == models.GradeStatusAutoGraded
}

func (a *gradeAccumulator) add(record models.GradeRecord) {
	a.submissionCount++

	switch {
	case gradedLike(record):
		if a.gradedCount == 0 || record.Grade < a.minGrade {
			a.minGrade = record.Grade
		}
		if a.gradedCount == 0 || record.Grade > a.maxGrade {
			a.maxGrade = record.Grade
		}
		a.gradedCount++
		a.gradeSum += record.Grade
		a.distribution[bucketLabel(record.Grade)]++
		if record.Grade >= a.passing {
			a.passCount++
		} else {
			a.failCount++
		}
	case record.Status == models.GradeStatusRejected:
		a.rejectedCount++
		a.failCount++
	}
}

func (a *gradeAccumulator) remove(record models.GradeRecord) bool {
	switch {
	case gradedLike(record):
		if a.gradedCount > 1 && (record.Grade <= a.minGrade || record.Grade >= a.maxGrade) {
			return false
		}
		a.gradedCount--
		a.gradeSum -= record.Grade
		a.distribution[bucketLabel(record.Grade)]--
		if record.Grade >= a.passing {
			a.passCount--
		} else {
			a.failCount--
		}
		if a.gradedCount == 0 {
			a.minGrade = 0
			a.maxGrade = 0
			a.gradeSum = 0
		}
	case record.Status == models.GradeStatusRejected:
		a.rejectedCount--
		a.failCount--
	}

	a.submissionCount--
	return true
}

// replace swaps a submission's prior grade version for the next one. A nil
// prior means the submission is new to the fold.
func (a *gradeAccumulator) replace(prior *models.GradeRecord, next models.GradeRecord) bool {
	if prior != nil {
		if !a.remove(*prior) {
			return false
		}
	}
	a.add(next)
	return true
}

func (a *gradeAccumulator) clone() *gradeAccumulator {
	copied := *a
	copied.distribution = make(map[string]int64, len(a.distribution))
	for bucket, count := range a.distribution {
		copied.distribution[bucket] = count
	}
	return &copied
}

func (a *gradeAccumulator) snapshot(scope StatisticsScope, window StatisticsWindow) dto.StatisticsSnapshot {
	snapshot := dto.StatisticsSnapshot{
		Scope:           scope.Kind,
		ScopeID:         scope.ID,
		SubmissionCount: a.submissionCount,
		GradedCount:     a.gradedCount,
		RejectedCount:   a.rejectedCount,
		MinGrade:        a.minGrade,
		MaxGrade:        a.maxGrade,
		PassCount:       a.passCount,
		FailCount:       a.failCount,
		Distribution:    make(dto.GradeDistribution, len(a.distribution)),
	}

	if a.gradedCount > 0 {
		snapshot.AverageGrade = a.gradeSum / float64(a.gradedCount)
	}
	for bucket, count := range a.distribution {
		snapshot.Distribution[bucket] = count
	}

	if !window.From.IsZero() {
		from := window.From
		snapshot.WindowFrom = &from
	}
	if !window.To.IsZero() {
		to := window.To
		snapshot.WindowTo = &to
	}

	return snapshot
}

func bucketLabel(grade float64) string {
	switch {
	case grade < 6:
		return "0-5"
	case grade < 10:
		return "6-9"
	case grade < 14:
		return "10-13"
	case grade < 18:
		return "14-17"
	default:
		return "18-20"
	}
}
