package models

import (
	"time"

	"gorm.io/datatypes"
)

// SimilarityReport records plagiarism detection output for a submission.
// A corpus change supersedes the previous report instead of merging into it.
type SimilarityReport struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	SubmissionID       uint           `gorm:"not null;index" json:"submission_id"`
	Score              float64        `gorm:"not null" json:"score"`
	Threshold          float64        `gorm:"not null" json:"threshold"`
	Matches            datatypes.JSON `json:"matches"`
	InsufficientLength bool           `gorm:"default:false" json:"insufficient_length"`
	Superseded         bool           `gorm:"default:false;index" json:"superseded"`
	CreatedAt          time.Time      `json:"created_at"`
	Submission         Submission     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// Flagged reports whether the score crossed the match threshold used at
// computation time.
func (r SimilarityReport) Flagged() bool {
	return !r.InsufficientLength && r.Score >= r.Threshold
}
