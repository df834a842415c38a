package models

import "time"

// Grade lifecycle states for a submission.
const (
	GradeStatusPending         = "pending"
	GradeStatusExecuting       = "executing"
	GradeStatusAutoGraded      = "auto-graded"
	GradeStatusExecutionFailed = "execution-failed"
	GradeStatusGraded          = "graded"
	GradeStatusRejected        = "rejected"
)

// Grader kinds recorded against each grade version.
const (
	GraderKindAuto  = "auto"
	GraderKindHuman = "human"
)

// GradeRecord is the authoritative grading outcome for a submission.
// Versions are append-only: an override writes a new row with Current set
// and flips the flag off the previous one, keeping the audit trail intact.
type GradeRecord struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SubmissionID uint       `gorm:"not null;index:idx_grade_submission" json:"submission_id"`
	Version      int        `gorm:"not null;default:1" json:"version"`
	Status       string     `gorm:"size:32;not null" json:"status"`
	Grade        float64    `gorm:"default:0" json:"grade"`
	Feedback     string     `gorm:"type:text" json:"feedback"`
	GraderID     uint       `gorm:"default:0" json:"grader_id"`
	GraderKind   string     `gorm:"size:16;not null;default:auto" json:"grader_kind"`
	Current      bool       `gorm:"not null;default:true;index:idx_grade_submission" json:"current"`
	CreatedAt    time.Time  `json:"created_at"`
	Submission   Submission `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// Terminal reports whether no further automated transition may touch the record.
func (g GradeRecord) Terminal() bool {
	return g.Status == GradeStatusGraded || g.Status == GradeStatusRejected
}

// HumanConfirmed reports whether a human grader finalized this record.
// Rejection never overrides a human decision.
func (g GradeRecord) HumanConfirmed() bool {
	return g.Status == GradeStatusGraded && g.GraderKind == GraderKindHuman
}
