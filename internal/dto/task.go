package dto

import (
	"time"

	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/utils"
)

// UserDTO represents a user in API responses
type UserDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	Provider  string    `json:"provider"`
	LastLogin time.Time `json:"last_login"`
}

// TaskDTO represents a task in snapshots and API responses
type TaskDTO struct {
	ID               uint64     `json:"id"`
	Name             string     `json:"name"`
	Importance       int        `json:"importance"`
	Urgency          int        `json:"urgency"`
	Done             bool       `json:"done"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	ParentID         *uint64    `json:"parent_id"`
	UserID           *string    `json:"user_id"`
	Link             *string    `json:"link"`
	DueDate          *string    `json:"due_date"`
	Notes            *string    `json:"notes"`
	Category         *string    `json:"category"`
	Status           *string    `json:"status"`
	Icon             *string    `json:"icon"`
	Color            *string    `json:"color"`
	Progress         *int       `json:"progress"`
	ActiveTimerStart *time.Time `json:"active_timer_start"`
	TotalTimeSpent   int64      `json:"total_time_spent"`
	PomodoroCount    int        `json:"pomodoro_count"`
	LastWorkedAt     *time.Time `json:"last_worked_at"`
	LeverageScore    int        `json:"leverage_score"`
}

// TimeLogDTO represents one completed focus session
type TimeLogDTO struct {
	ID          uint64     `json:"id"`
	TaskID      uint64     `json:"task_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Duration    int64      `json:"duration"`
	SessionType string     `json:"session_type"`
	Notes       *string    `json:"notes"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TimeLogListResponse represents a paginated session history
type TimeLogListResponse struct {
	TimeLogs   []TimeLogDTO             `json:"time_logs"`
	Pagination utils.PaginationResponse `json:"pagination"`
}

// RelationshipDTO represents an enables edge
type RelationshipDTO struct {
	ID            uint64    `json:"id"`
	EnablerTaskID uint64    `json:"enabler_task_id"`
	EnabledTaskID uint64    `json:"enabled_task_id"`
	UserID        *string   `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// TimerStoppedDTO is the result of stopping a running timer
type TimerStoppedDTO struct {
	TaskID    uint64 `json:"task_id"`
	Duration  int64  `json:"duration"`
	TotalTime int64  `json:"total_time"`
	LogID     uint64 `json:"log_id"`
}

// TimerStartedDTO is the result of starting a timer
type TimerStartedDTO struct {
	TaskID    uint64    `json:"task_id"`
	StartTime time.Time `json:"start_time"`
}

// TaskDetailsDTO bundles a task with its session history and edges
type TaskDetailsDTO struct {
	Task          TaskDTO           `json:"task"`
	TimeLogs      []TimeLogDTO      `json:"time_logs"`
	Relationships []RelationshipDTO `json:"relationships"`
}

// ImportRowError describes one row that could not be imported
type ImportRowError struct {
	Row   int    `json:"row"`
	Task  string `json:"task"`
	Error string `json:"error"`
}

// ImportResult summarizes a bulk import
type ImportResult struct {
	Imported int              `json:"imported"`
	Updated  int              `json:"updated"`
	Errors   []ImportRowError `json:"errors"`
}

// AnalyticsDTO is the raw material for client-side charts
type AnalyticsDTO struct {
	Tasks    []TaskDTO    `json:"tasks"`
	TimeLogs []TimeLogDTO `json:"time_logs"`
}

// Conversion functions

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Avatar:    user.Avatar,
		Provider:  user.Provider,
		LastLogin: user.LastLogin,
	}
}

// ToTaskDTO converts a Task model to TaskDTO
func ToTaskDTO(task models.Task, leverage int) TaskDTO {
	return TaskDTO{
		ID:               task.ID,
		Name:             task.Name,
		Importance:       task.Importance,
		Urgency:          task.Urgency,
		Done:             task.Done,
		CreatedAt:        task.CreatedAt,
		CompletedAt:      task.CompletedAt,
		ParentID:         task.ParentID,
		UserID:           task.UserID,
		Link:             task.Link,
		DueDate:          task.DueDate,
		Notes:            task.Notes,
		Category:         task.Category,
		Status:           task.Status,
		Icon:             task.Icon,
		Color:            task.Color,
		Progress:         task.Progress,
		ActiveTimerStart: task.ActiveTimerStart,
		TotalTimeSpent:   task.TotalTimeSpent,
		PomodoroCount:    task.PomodoroCount,
		LastWorkedAt:     task.LastWorkedAt,
		LeverageScore:    leverage,
	}
}

// ToTimeLogDTO converts a TimeLog model to TimeLogDTO
func ToTimeLogDTO(log models.TimeLog) TimeLogDTO {
	return TimeLogDTO{
		ID:          log.ID,
		TaskID:      log.TaskID,
		StartTime:   log.StartTime,
		EndTime:     log.EndTime,
		Duration:    log.Duration,
		SessionType: log.SessionType,
		Notes:       log.Notes,
		CreatedAt:   log.CreatedAt,
	}
}

// ToTimeLogDTOs converts a slice of TimeLog models
func ToTimeLogDTOs(logs []models.TimeLog) []TimeLogDTO {
	items := make([]TimeLogDTO, len(logs))
	for i, log := range logs {
		items[i] = ToTimeLogDTO(log)
	}
	return items
}

// ToRelationshipDTO converts a TaskRelationship model to RelationshipDTO
func ToRelationshipDTO(rel models.TaskRelationship) RelationshipDTO {
	return RelationshipDTO{
		ID:            rel.ID,
		EnablerTaskID: rel.EnablerTaskID,
		EnabledTaskID: rel.EnabledTaskID,
		UserID:        rel.UserID,
		CreatedAt:     rel.CreatedAt,
	}
}

// ToRelationshipDTOs converts a slice of TaskRelationship models
func ToRelationshipDTOs(rels []models.TaskRelationship) []RelationshipDTO {
	items := make([]RelationshipDTO, len(rels))
	for i, rel := range rels {
		items[i] = ToRelationshipDTO(rel)
	}
	return items
}

// ToTimeLogListResponse converts a page of session history
func ToTimeLogListResponse(logs []models.TimeLog, params utils.PaginationParams, total int64) TimeLogListResponse {
	return TimeLogListResponse{
		TimeLogs:   ToTimeLogDTOs(logs),
		Pagination: params.Response(total),
	}
}
