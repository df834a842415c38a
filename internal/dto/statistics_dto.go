package dto

import "time"

// GradeDistribution maps fixed bucket labels to counts. Bucket boundaries
// never change at runtime so cached snapshots stay comparable.
type GradeDistribution map[string]int64

// StatisticsSnapshot is a derived, recomputable aggregate over the
// submission and grade ledger. It is never authoritative.
type StatisticsSnapshot struct {
	Scope           string            `json:"scope"`
	ScopeID         uint              `json:"scope_id,omitempty"`
	WindowFrom      *time.Time        `json:"window_from,omitempty"`
	WindowTo        *time.Time        `json:"window_to,omitempty"`
	SubmissionCount int64             `json:"submission_count"`
	GradedCount     int64             `json:"graded_count"`
	RejectedCount   int64             `json:"rejected_count"`
	AverageGrade    float64           `json:"average_grade"`
	MinGrade        float64           `json:"min_grade"`
	MaxGrade        float64           `json:"max_grade"`
	PassCount       int64             `json:"pass_count"`
	FailCount       int64             `json:"fail_count"`
	Distribution    GradeDistribution `json:"distribution"`
	PlagiarismFlags int64             `json:"plagiarism_flags"`
	CacheHit        bool              `json:"cache_hit,omitempty"`
}
