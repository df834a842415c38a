package models

import "time"

// Supported submission languages. The set is closed: anything else is
// rejected before the submission is queued.
const (
	LanguageSQL        = "sql"
	LanguageJavaScript = "javascript"
	LanguagePython     = "python"
	LanguageJava       = "java"
	LanguageCPP        = "cpp"
)

// SupportedLanguage reports whether the given language may be submitted.
func SupportedLanguage(language string) bool {
	switch language {
	case LanguageSQL, LanguageJavaScript, LanguagePython, LanguageJava, LanguageCPP:
		return true
	default:
		return false
	}
}

// Submission is a student's code or query attempt for one exercise.
// Rows are immutable once created; evaluation outcomes live in
// ExecutionResult, SimilarityReport and GradeRecord rows that reference it.
type Submission struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExerciseID uint      `gorm:"not null;index" json:"exercise_id"`
	AuthorID   uint      `gorm:"not null;index" json:"author_id"`
	Language   string    `gorm:"size:32;not null" json:"language"`
	Source     string    `gorm:"type:text;not null" json:"source"`
	CreatedAt  time.Time `json:"created_at"`
	Exercise   Exercise  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"exercise"`
}
