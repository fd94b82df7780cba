package models

import "time"

// ScheduleWindow bounds the evaluation period during which forms are collected.
type ScheduleWindow struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Period           string    `gorm:"size:64;not null;uniqueIndex" json:"period"`
	StartDate        time.Time `gorm:"not null" json:"start_date"`
	EndDate          time.Time `gorm:"not null;index" json:"end_date"`
	RemindersEnabled bool      `gorm:"not null" json:"reminders_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Ended reports whether the window closed at or before the instant.
func (w ScheduleWindow) Ended(now time.Time) bool {
	return !w.EndDate.After(now)
}
