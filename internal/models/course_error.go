package models

import (
	"time"

	"gorm.io/datatypes"
)

// CourseError is a persisted fault raised by question code owned by a course.
type CourseError struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	CourseID          uint              `gorm:"not null;index" json:"course_id"`
	VariantID         *uint             `gorm:"index" json:"variant_id,omitempty"`
	AuthnUserID       uint              `gorm:"not null" json:"authn_user_id"`
	InstructorMessage string            `gorm:"type:text" json:"instructor_message"`
	StudentMessage    string            `gorm:"size:255;not null" json:"student_message"`
	CourseCaused      bool              `gorm:"not null" json:"course_caused"`
	Fatal             bool              `gorm:"not null" json:"fatal"`
	Context           datatypes.JSONMap `json:"context"`
	Data              datatypes.JSONMap `json:"data"`
	CreatedAt         time.Time         `json:"created_at"`
}
