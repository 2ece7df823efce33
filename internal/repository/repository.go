package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/utils"
	"gorm.io/gorm"
)

var (
	// ErrNoRowsAffected is returned when a guarded write matched nothing:
	// the row is gone or no longer visible to the writer.
	ErrNoRowsAffected = errors.New("repository: no rows affected")
	// ErrTimerChanged is returned when a timer stop lost the race against
	// another stop or restart of the same task.
	ErrTimerChanged = errors.New("repository: timer state changed concurrently")
)

// PersistenceError wraps every error coming out of the backend together with
// the logical operation that produced it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// TimerStop describes the transition of one running task back to idle.
type TimerStop struct {
	TaskID        uint64
	Identity      string
	ObservedStart time.Time
	EndTime       time.Time
	Duration      int64
	Pomodoros     int
	SessionType   string
	// Extra columns written in the same statement (claiming).
	Fields map[string]any
}

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Create inserts a new task
	Create(ctx context.Context, task *models.Task) error

	// FindByID finds a task by ID regardless of owner
	FindByID(ctx context.Context, id uint64) (*models.Task, error)

	// ListVisible returns every task the identity may see in display order
	ListVisible(ctx context.Context, identity string) ([]models.Task, error)

	// FindMergeCandidate finds a task with the given name that the owner may merge into
	FindMergeCandidate(ctx context.Context, name, owner string) (*models.Task, error)

	// ParentID returns the parent pointer of a task
	ParentID(ctx context.Context, id uint64) (*uint64, error)

	// UpdateVisible writes fields on a task the identity may see
	UpdateVisible(ctx context.Context, id uint64, identity string, fields map[string]any) error

	// SetParent writes only the parent_id column of a visible task
	SetParent(ctx context.Context, id uint64, identity string, parentID *uint64) error

	// Delete removes a task, its session logs and edges, and promotes its children to roots
	Delete(ctx context.Context, id uint64, identity string) error

	// StopTimer clears the running timer and appends the session log atomically
	StopTimer(ctx context.Context, stop TimerStop) (*models.TimeLog, error)

	// ListTimeLogs returns the session history of a task, newest first
	ListTimeLogs(ctx context.Context, taskID uint64, params utils.PaginationParams) ([]models.TimeLog, int64, error)

	// ListTimeLogsForTasks returns the session history of several tasks
	ListTimeLogsForTasks(ctx context.Context, taskIDs []uint64) ([]models.TimeLog, error)

	// ListActiveTimers returns visible tasks with a running timer
	ListActiveTimers(ctx context.Context, identity string) ([]models.Task, error)

	// ListAll returns every task regardless of owner (maintenance only)
	ListAll(ctx context.Context) ([]models.Task, error)

	// DeleteAbove removes every task with an id greater than keep (maintenance only)
	DeleteAbove(ctx context.Context, keep uint64) (int64, error)
}

// RelationshipRepository defines the interface for enables-edge data access
type RelationshipRepository interface {
	// Create inserts an edge
	Create(ctx context.Context, rel *models.TaskRelationship) error

	// Find finds an edge within exactly the given scope
	Find(ctx context.Context, enablerID, enabledID uint64, scope *string) (*models.TaskRelationship, error)

	// FindVisible finds an edge the identity may see, preferring its own scope
	FindVisible(ctx context.Context, enablerID, enabledID uint64, identity string) (*models.TaskRelationship, error)

	// Delete removes the edges between two tasks created under exactly scope
	Delete(ctx context.Context, enablerID, enabledID uint64, scope *string) (int64, error)

	// ListVisible lists edges the identity may see, optionally touching one task
	ListVisible(ctx context.Context, identity string, taskID *uint64) ([]models.TaskRelationship, error)

	// CountByEnabler counts the distinct tasks each enabler enables through visible edges
	CountByEnabler(ctx context.Context, identity string, enablerIDs []uint64) (map[uint64]int, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Upsert inserts a user or refreshes its profile and last login
	Upsert(ctx context.Context, user *models.User) error

	// FindByID finds a user by ID
	FindByID(ctx context.Context, id string) (*models.User, error)
}
