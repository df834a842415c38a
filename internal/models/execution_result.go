package models

import "time"

// Execution outcome classifications. These are terminal: a re-run creates a
// fresh ExecutionResult row rather than mutating an existing one.
const (
	ExecutionClassSuccess          = "success"
	ExecutionClassRuntimeError     = "runtime-error"
	ExecutionClassTimeout          = "timeout"
	ExecutionClassResourceExceeded = "resource-exceeded"
)

// ExecutionDetailInfraExhausted marks results recorded after sandbox
// provisioning retries ran out, so a platform fault stays distinguishable
// from a defect in the student's code.
const ExecutionDetailInfraExhausted = "infrastructure-exhausted"

// ExecutionResult captures one sandbox run of a submission. Immutable.
type ExecutionResult struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	SubmissionID   uint       `gorm:"not null;index" json:"submission_id"`
	Classification string     `gorm:"size:32;not null" json:"classification"`
	Detail         string     `gorm:"size:64" json:"detail,omitempty"`
	Stdout         string     `gorm:"type:text" json:"stdout"`
	Stderr         string     `gorm:"type:text" json:"stderr"`
	ExitCode       int        `gorm:"default:0" json:"exit_code"`
	DurationMs     int64      `gorm:"default:0" json:"duration_ms"`
	CreatedAt      time.Time  `json:"created_at"`
	Submission     Submission `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// Terminal reports whether the classification allows grading to conclude.
// Every classification stored on a row is terminal; the helper exists so
// callers do not compare against an empty row's zero value.
func (r ExecutionResult) Terminal() bool {
	return r.Classification != ""
}
