package models

import "time"

// TimeLog is the immutable record of one stopped focus session.
type TimeLog struct {
	ID          uint64     `gorm:"primarykey" json:"id"`
	TaskID      uint64     `gorm:"not null;index" json:"task_id"`
	StartTime   time.Time  `gorm:"not null" json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Duration    int64      `gorm:"not null;default:0" json:"duration"`
	SessionType string     `gorm:"type:varchar(32);not null" json:"session_type"`
	Notes       *string    `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time  `json:"created_at"`
}
