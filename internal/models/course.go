package models

import "time"

// Course owns questions and the errors raised by their question code.
type Course struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ShortName string    `gorm:"size:64;uniqueIndex;not null" json:"short_name"`
	Title     string    `gorm:"size:255" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
