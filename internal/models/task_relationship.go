package models

import "time"

// TaskRelationship is a directed "enables" edge. UserID is the scope the edge
// was created under; nil means it was created anonymously.
type TaskRelationship struct {
	ID            uint64    `gorm:"primarykey" json:"id"`
	EnablerTaskID uint64    `gorm:"not null;index" json:"enabler_task_id"`
	EnabledTaskID uint64    `gorm:"not null;index" json:"enabled_task_id"`
	UserID        *string   `gorm:"type:varchar(255);index" json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
}
