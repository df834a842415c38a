package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/grader-go-api/internal/models"
)

// SubmitRequest represents the payload for creating a submission.
type SubmitRequest struct {
	ExerciseID uint   `json:"exercise_id" validate:"required,gt=0"`
	Language   string `json:"language" validate:"required"`
	Source     string `json:"source" validate:"required,min=1"`
}

// SubmitResponse acknowledges a queued submission.
type SubmitResponse struct {
	SubmissionID uint      `json:"submission_id"`
	Status       string    `json:"status"`
	QueuedAt     time.Time `json:"queued_at"`
}

// ExecutionResultResponse represents a sandbox outcome to API consumers.
// Pending is set when the submission has not finished executing yet.
type ExecutionResultResponse struct {
	SubmissionID   uint   `json:"submission_id"`
	Pending        bool   `json:"pending"`
	Classification string `json:"classification,omitempty"`
	Stdout         string `json:"stdout,omitempty"`
	Stderr         string `json:"stderr,omitempty"`
	ExitCode       int    `json:"exit_code,omitempty"`
	DurationMs     int64  `json:"duration_ms,omitempty"`
}

// NewExecutionResultResponse builds a response DTO from a model.
func NewExecutionResultResponse(result models.ExecutionResult) ExecutionResultResponse {
	return ExecutionResultResponse{
		SubmissionID:   result.SubmissionID,
		Classification: result.Classification,
		Stdout:         result.Stdout,
		Stderr:         result.Stderr,
		ExitCode:       result.ExitCode,
		DurationMs:     result.DurationMs,
	}
}

// GradeResponse represents one grade record version.
type GradeResponse struct {
	SubmissionID uint      `json:"submission_id"`
	Version      int       `json:"version"`
	Status       string    `json:"status"`
	Grade        float64   `json:"grade"`
	Feedback     string    `json:"feedback"`
	GraderID     uint      `json:"grader_id,omitempty"`
	GraderKind   string    `json:"grader_kind"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewGradeResponse builds a response DTO from a model.
func NewGradeResponse(record models.GradeRecord) GradeResponse {
	return GradeResponse{
		SubmissionID: record.SubmissionID,
		Version:      record.Version,
		Status:       record.Status,
		Grade:        record.Grade,
		Feedback:     record.Feedback,
		GraderID:     record.GraderID,
		GraderKind:   record.GraderKind,
		CreatedAt:    record.CreatedAt,
	}
}

// OverrideGradeRequest represents a teacher or admin grade override.
type OverrideGradeRequest struct {
	Grade    float64 `json:"grade" validate:"gte=0"`
	Feedback string  `json:"feedback" validate:"max=4000"`
}

// SimilarityReportResponse represents the current plagiarism verdict.
type SimilarityReportResponse struct {
	SubmissionID       uint    `json:"submission_id"`
	Score              float64 `json:"score"`
	Threshold          float64 `json:"threshold"`
	Matches            []uint  `json:"matches"`
	InsufficientLength bool    `json:"insufficient_length"`
}

// NewSimilarityReportResponse builds a response DTO from a model.
func NewSimilarityReportResponse(report models.SimilarityReport) SimilarityReportResponse {
	matches := []uint{}
	if len(report.Matches) > 0 {
		_ = json.Unmarshal(report.Matches, &matches)
	}

	return SimilarityReportResponse{
		SubmissionID:       report.SubmissionID,
		Score:              report.Score,
		Threshold:          report.Threshold,
		Matches:            matches,
		InsufficientLength: report.InsufficientLength,
	}
}
