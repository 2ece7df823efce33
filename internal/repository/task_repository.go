package repository

import (
	"context"
	"errors"

	"github.com/yukikurage/priority-matrix/internal/database"
	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/utils"
	"gorm.io/gorm"
)

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &GormTaskRepository{db: db}
}

// Create inserts a new task
func (r *GormTaskRepository) Create(ctx context.Context, task *models.Task) error {
	return wrap("insert-task", r.db.WithContext(ctx).Create(task).Error)
}

// FindByID finds a task by ID regardless of owner
func (r *GormTaskRepository) FindByID(ctx context.Context, id uint64) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, wrap("find-task", err)
	}
	return &task, nil
}

// ListVisible returns every task the identity may see in display order
func (r *GormTaskRepository) ListVisible(ctx context.Context, identity string) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Scopes(database.VisibleTo("tasks", identity), database.DisplayOrder).
		Find(&tasks).Error
	if err != nil {
		return nil, wrap("fetch-visible-tasks", err)
	}
	return tasks, nil
}

// FindMergeCandidate finds a same-name task the owner may merge into,
// preferring one it already owns over an ownerless one.
func (r *GormTaskRepository) FindMergeCandidate(ctx context.Context, name, owner string) (*models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("tasks.name = ?", name).
		Scopes(database.VisibleTo("tasks", owner)).
		Order("CASE WHEN tasks.user_id IS NULL THEN 1 ELSE 0 END").
		Order("tasks.id").
		First(&task).Error
	if err != nil {
		return nil, wrap("find-merge-candidate", err)
	}
	return &task, nil
}

// ParentID returns the parent pointer of a task
func (r *GormTaskRepository) ParentID(ctx context.Context, id uint64) (*uint64, error) {
	var task models.Task
	err := r.db.WithContext(ctx).
		Select("id", "parent_id").
		First(&task, id).Error
	if err != nil {
		return nil, wrap("find-parent", err)
	}
	return task.ParentID, nil
}

// UpdateVisible writes fields on a task the identity may see. The visibility
// guard is part of the statement, so a task claimed by someone else in the
// meantime is left untouched.
func (r *GormTaskRepository) UpdateVisible(ctx context.Context, id uint64, identity string, fields map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("tasks.id = ?", id).
		Scopes(database.VisibleTo("tasks", identity)).
		Updates(fields)
	if result.Error != nil {
		return wrap("update-task", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// SetParent writes only the parent_id column of a task the identity may see
func (r *GormTaskRepository) SetParent(ctx context.Context, id uint64, identity string, parentID *uint64) error {
	result := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("tasks.id = ?", id).
		Scopes(database.VisibleTo("tasks", identity)).
		Update("parent_id", parentID)
	if result.Error != nil {
		return wrap("set-parent", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// Delete removes a task the identity may see together with its session logs
// and edges. Children are promoted to roots. Nothing changes when the task
// is not visible.
func (r *GormTaskRepository) Delete(ctx context.Context, id uint64, identity string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{}).
			Where("parent_id = ?", id).
			Update("parent_id", nil).Error; err != nil {
			return err
		}

		if err := tx.Where("task_id = ?", id).Delete(&models.TimeLog{}).Error; err != nil {
			return err
		}

		if err := tx.Where("enabler_task_id = ? OR enabled_task_id = ?", id, id).
			Delete(&models.TaskRelationship{}).Error; err != nil {
			return err
		}

		result := tx.Where("tasks.id = ?", id).
			Scopes(database.VisibleTo("tasks", identity)).
			Delete(&models.Task{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNoRowsAffected
		}
		return nil
	})
	if errors.Is(err, ErrNoRowsAffected) {
		return err
	}
	return wrap("delete-task", err)
}

// StopTimer clears the running timer and appends the session log in one
// transaction. The update only matches while the timer still carries the
// start time the caller observed.
func (r *GormTaskRepository) StopTimer(ctx context.Context, stop TimerStop) (*models.TimeLog, error) {
	var log models.TimeLog

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{
			"active_timer_start": nil,
			"total_time_spent":   gorm.Expr("total_time_spent + ?", stop.Duration),
			"pomodoro_count":     gorm.Expr("pomodoro_count + ?", stop.Pomodoros),
		}
		for k, v := range stop.Fields {
			fields[k] = v
		}

		result := tx.Model(&models.Task{}).
			Where("tasks.id = ? AND tasks.active_timer_start = ?", stop.TaskID, stop.ObservedStart).
			Scopes(database.VisibleTo("tasks", stop.Identity)).
			Updates(fields)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrTimerChanged
		}

		end := stop.EndTime
		log = models.TimeLog{
			TaskID:      stop.TaskID,
			StartTime:   stop.ObservedStart,
			EndTime:     &end,
			Duration:    stop.Duration,
			SessionType: stop.SessionType,
		}
		return tx.Create(&log).Error
	})
	if errors.Is(err, ErrTimerChanged) {
		return nil, err
	}
	if err != nil {
		return nil, wrap("append-session-log", err)
	}
	return &log, nil
}

// ListTimeLogs returns the session history of a task, newest first
func (r *GormTaskRepository) ListTimeLogs(ctx context.Context, taskID uint64, params utils.PaginationParams) ([]models.TimeLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.TimeLog{}).Where("task_id = ?", taskID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrap("count-time-logs", err)
	}

	var logs []models.TimeLog
	if err := query.Order("created_at DESC").Order("id DESC").
		Scopes(database.Paginate(params)).
		Find(&logs).Error; err != nil {
		return nil, 0, wrap("list-time-logs", err)
	}
	return logs, total, nil
}

// ListTimeLogsForTasks returns the session history of several tasks
func (r *GormTaskRepository) ListTimeLogsForTasks(ctx context.Context, taskIDs []uint64) ([]models.TimeLog, error) {
	if len(taskIDs) == 0 {
		return []models.TimeLog{}, nil
	}

	var logs []models.TimeLog
	if err := r.db.WithContext(ctx).
		Where("task_id IN ?", taskIDs).
		Order("created_at DESC").Order("id DESC").
		Find(&logs).Error; err != nil {
		return nil, wrap("list-time-logs", err)
	}
	return logs, nil
}

// ListActiveTimers returns visible tasks with a running timer
func (r *GormTaskRepository) ListActiveTimers(ctx context.Context, identity string) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("tasks.active_timer_start IS NOT NULL").
		Scopes(database.VisibleTo("tasks", identity)).
		Order("tasks.active_timer_start").
		Find(&tasks).Error
	if err != nil {
		return nil, wrap("list-active-timers", err)
	}
	return tasks, nil
}

// ListAll returns every task regardless of owner
func (r *GormTaskRepository) ListAll(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := r.db.WithContext(ctx).Order("id").Find(&tasks).Error; err != nil {
		return nil, wrap("list-tasks", err)
	}
	return tasks, nil
}

// DeleteAbove removes every task with an id greater than keep
func (r *GormTaskRepository) DeleteAbove(ctx context.Context, keep uint64) (int64, error) {
	var deleted int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{}).
			Where("id <= ? AND parent_id > ?", keep, keep).
			Update("parent_id", nil).Error; err != nil {
			return err
		}

		if err := tx.Where("task_id > ?", keep).Delete(&models.TimeLog{}).Error; err != nil {
			return err
		}

		if err := tx.Where("enabler_task_id > ? OR enabled_task_id > ?", keep, keep).
			Delete(&models.TaskRelationship{}).Error; err != nil {
			return err
		}

		result := tx.Where("id > ?", keep).Delete(&models.Task{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, wrap("delete-tasks", err)
	}
	return deleted, nil
}
