package models

import "time"

// Exercise describes one assignment students submit code against.
type Exercise struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Title          string    `gorm:"size:255;not null" json:"title"`
	TeacherID      uint      `gorm:"not null;index" json:"teacher_id"`
	Language       string    `gorm:"size:32;not null" json:"language"`
	ExpectedOutput string    `gorm:"type:text" json:"expected_output"`
	MaxGrade       float64   `gorm:"default:20" json:"max_grade"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
