package models

import (
	"time"
)

// Task is a node of the priority matrix. A nil UserID marks an ownerless task
// that every connection can see until someone claims it.
type Task struct {
	ID          uint64     `gorm:"primarykey" json:"id"`
	Name        string     `gorm:"type:varchar(500);not null" json:"name"`
	Importance  int        `gorm:"not null" json:"importance"`
	Urgency     int        `gorm:"not null" json:"urgency"`
	Done        bool       `gorm:"not null" json:"done"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
	ParentID    *uint64    `gorm:"index" json:"parent_id"`
	UserID      *string    `gorm:"type:varchar(255);index" json:"user_id"`

	Link     *string `gorm:"type:text" json:"link"`
	DueDate  *string `gorm:"type:varchar(64)" json:"due_date"`
	Notes    *string `gorm:"type:text" json:"notes"`
	Category *string `gorm:"type:varchar(255)" json:"category"`
	Status   *string `gorm:"type:varchar(64)" json:"status"`
	Icon     *string `gorm:"type:varchar(64)" json:"icon"`
	Color    *string `gorm:"type:varchar(64)" json:"color"`
	Progress *int    `json:"progress"`

	ActiveTimerStart *time.Time `json:"active_timer_start"`
	TotalTimeSpent   int64      `gorm:"not null;default:0" json:"total_time_spent"`
	PomodoroCount    int        `gorm:"not null;default:0" json:"pomodoro_count"`
	LastWorkedAt     *time.Time `json:"last_worked_at"`

	// Relations
	TimeLogs  []TimeLog          `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`
	Enables   []TaskRelationship `gorm:"foreignKey:EnablerTaskID;constraint:OnDelete:CASCADE" json:"-"`
	EnabledBy []TaskRelationship `gorm:"foreignKey:EnabledTaskID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsOwnerless reports whether the task has not been claimed yet.
func (t *Task) IsOwnerless() bool {
	return t.UserID == nil
}

// OwnedBy reports whether identity owns the task.
func (t *Task) OwnedBy(identity string) bool {
	return t.UserID != nil && *t.UserID == identity
}

// VisibleTo applies the visibility rule to a single task.
func (t *Task) VisibleTo(identity string) bool {
	return t.IsOwnerless() || (identity != "" && t.OwnedBy(identity))
}

// IsRunning reports whether a focus session is in progress.
func (t *Task) IsRunning() bool {
	return t.ActiveTimerStart != nil
}
