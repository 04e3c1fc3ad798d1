package models

import (
	"time"

	"gorm.io/datatypes"
)

// Grading methods supported by questions.
const (
	GradingMethodInternal = "Internal"
	GradingMethodExternal = "External"
	GradingMethodManual   = "Manual"
)

// Question is the immutable descriptor of a question as authored in a course.
type Question struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	CourseID      uint              `gorm:"not null;index" json:"course_id"`
	QID           string            `gorm:"column:qid;size:255;not null" json:"qid"`
	Title         string            `gorm:"size:255" json:"title"`
	Type          string            `gorm:"size:64;not null" json:"type"`
	GradingMethod string            `gorm:"size:16;not null" json:"grading_method"`
	Config        datatypes.JSONMap `json:"config"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Course        Course            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsExternallyGraded reports whether grading completes out-of-band.
func (q Question) IsExternallyGraded() bool {
	return q.GradingMethod == GradingMethodExternal
}

// InstanceQuestion is the assessment slot binding a question to one student's assessment instance.
type InstanceQuestion struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	AssessmentInstanceID uint      `gorm:"not null;index" json:"assessment_instance_id"`
	QuestionID           uint      `gorm:"not null;index" json:"question_id"`
	UserID               uint      `gorm:"not null" json:"user_id"`
	CreatedAt            time.Time `json:"created_at"`
	Question             Question  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
