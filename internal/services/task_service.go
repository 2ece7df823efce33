package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yukikurage/priority-matrix/internal/dto"
	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"github.com/yukikurage/priority-matrix/internal/utils"
	"go.uber.org/zap"
)

var (
	ErrTaskNotFound           = errors.New("task not found")
	ErrNameRequired           = errors.New("task name is required")
	ErrNoActiveTimer          = errors.New("no active timer")
	ErrHierarchyCycle         = errors.New("a task cannot be moved under itself or one of its descendants")
	ErrSelfRelationship       = errors.New("a task cannot enable itself")
	ErrRelationshipNotVisible = errors.New("relationship references a task that is not visible")
	ErrAIServiceNotConfigured = errors.New("AI service is not configured")
	ErrAINoTasksGenerated     = errors.New("AI did not generate any tasks")
	ErrAINoValidTasks         = errors.New("no valid tasks could be created from AI output")
)

// TaskService handles task business logic
type TaskService struct {
	taskRepo   repository.TaskRepository
	hierarchy  *HierarchyService
	visibility *VisibilityService
	publisher  Publisher
	log        *zap.Logger
	now        func() time.Time
}

// NewTaskService creates a new TaskService
func NewTaskService(
	taskRepo repository.TaskRepository,
	hierarchy *HierarchyService,
	visibility *VisibilityService,
	publisher Publisher,
	log *zap.Logger,
) *TaskService {
	return &TaskService{
		taskRepo:   taskRepo,
		hierarchy:  hierarchy,
		visibility: visibility,
		publisher:  publisherOrNoop(publisher),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetTask returns a task the identity may see
func (s *TaskService) GetTask(ctx context.Context, identity string, taskID uint64) (*models.Task, error) {
	return findVisibleTask(ctx, s.taskRepo, identity, taskID)
}

// ListTasks returns the identity's snapshot
func (s *TaskService) ListTasks(ctx context.Context, identity string) ([]dto.TaskDTO, error) {
	return s.visibility.VisibleTasks(ctx, identity)
}

// AddTask creates a root task owned by identity, or ownerless when anonymous
func (s *TaskService) AddTask(ctx context.Context, identity string, input TaskInput) (*models.Task, error) {
	task, err := s.newTask(identity, input)
	if err != nil {
		return nil, err
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.log.Debug("task added", zap.Uint64("task_id", task.ID), zap.Bool("ownerless", task.IsOwnerless()))
	s.publisher.Publish(ScopeOf(task))
	return task, nil
}

// AddSubtask creates a task under parentID
func (s *TaskService) AddSubtask(ctx context.Context, identity string, parentID uint64, input TaskInput) (*models.Task, error) {
	if _, err := findVisibleTask(ctx, s.taskRepo, identity, parentID); err != nil {
		return nil, err
	}

	task, err := s.newTask(identity, input)
	if err != nil {
		return nil, err
	}
	task.ParentID = &parentID

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create subtask: %w", err)
	}

	s.publisher.Publish(ScopeOf(task))
	return task, nil
}

// EditTask updates the editable attributes the caller sent
func (s *TaskService) EditTask(ctx context.Context, identity string, input TaskInput) (*models.Task, error) {
	return s.update(ctx, identity, input.ID, input, editColumns)
}

// ModifyTask updates name and scores only
func (s *TaskService) ModifyTask(ctx context.Context, identity string, input TaskInput) (*models.Task, error) {
	return s.update(ctx, identity, input.ID, input, modifyColumns)
}

// UpdateSubtask updates a subtask, including its parent. The cycle check runs
// before anything is written.
func (s *TaskService) UpdateSubtask(ctx context.Context, identity string, input TaskInput) (*models.Task, error) {
	if input.Has("parent_id") {
		if err := s.hierarchy.checkParent(ctx, identity, input.ID, input.parentID()); err != nil {
			return nil, err
		}
	}
	return s.update(ctx, identity, input.ID, input, subtaskColumns)
}

// UpdateNotes replaces the notes of a task
func (s *TaskService) UpdateNotes(ctx context.Context, identity string, taskID uint64, notes string) (*models.Task, error) {
	return s.updateAttribute(ctx, identity, taskID, "notes", notes)
}

// UpdateStatus replaces the status label of a task
func (s *TaskService) UpdateStatus(ctx context.Context, identity string, taskID uint64, status string) (*models.Task, error) {
	return s.updateAttribute(ctx, identity, taskID, "status", status)
}

// UpdateIcon replaces the icon of a task
func (s *TaskService) UpdateIcon(ctx context.Context, identity string, taskID uint64, icon string) (*models.Task, error) {
	return s.updateAttribute(ctx, identity, taskID, "icon", icon)
}

// UpdateColor replaces the color of a task
func (s *TaskService) UpdateColor(ctx context.Context, identity string, taskID uint64, color string) (*models.Task, error) {
	return s.updateAttribute(ctx, identity, taskID, "color", color)
}

// ToggleDone flips done and keeps completed_at in step with it. A running
// timer is left alone; callers stop it first.
func (s *TaskService) ToggleDone(ctx context.Context, identity string, taskID uint64) (*models.Task, error) {
	task, err := findVisibleTask(ctx, s.taskRepo, identity, taskID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"done": !task.Done}
	if task.Done {
		fields["completed_at"] = nil
	} else {
		fields["completed_at"] = s.now()
	}

	return s.write(ctx, identity, task, fields)
}

// DeleteTask removes a task with its session logs and edges; its children
// become roots.
func (s *TaskService) DeleteTask(ctx context.Context, identity string, taskID uint64) error {
	task, err := findVisibleTask(ctx, s.taskRepo, identity, taskID)
	if err != nil {
		return err
	}

	if err := s.taskRepo.Delete(ctx, taskID, identity); err != nil {
		return mapWriteError(err, "failed to delete task")
	}

	s.log.Debug("task deleted", zap.Uint64("task_id", taskID))
	s.publisher.Publish(ScopeOf(task))
	return nil
}

// GetTaskDetails returns a task with its leverage, session history and edges
func (s *TaskService) GetTaskDetails(ctx context.Context, identity string, taskID uint64) (*dto.TaskDetailsDTO, error) {
	task, err := findVisibleTask(ctx, s.taskRepo, identity, taskID)
	if err != nil {
		return nil, err
	}

	leverage, err := s.hierarchy.LeverageScores(ctx, identity, []uint64{taskID})
	if err != nil {
		return nil, err
	}

	logs, err := s.taskRepo.ListTimeLogsForTasks(ctx, []uint64{taskID})
	if err != nil {
		return nil, fmt.Errorf("failed to list time logs: %w", err)
	}

	rels, err := s.hierarchy.ListRelationships(ctx, identity, &taskID)
	if err != nil {
		return nil, err
	}

	return &dto.TaskDetailsDTO{
		Task:          dto.ToTaskDTO(*task, leverage[taskID]),
		TimeLogs:      dto.ToTimeLogDTOs(logs),
		Relationships: dto.ToRelationshipDTOs(rels),
	}, nil
}

// Analytics returns the visible snapshot together with every session logged
// against it
func (s *TaskService) Analytics(ctx context.Context, identity string) (*dto.AnalyticsDTO, error) {
	tasks, err := s.visibility.VisibleTasks(ctx, identity)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}

	logs, err := s.taskRepo.ListTimeLogsForTasks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list time logs: %w", err)
	}

	return &dto.AnalyticsDTO{
		Tasks:    tasks,
		TimeLogs: dto.ToTimeLogDTOs(logs),
	}, nil
}

// ExportTasks returns the stored rows the identity may see, in display order
func (s *TaskService) ExportTasks(ctx context.Context, identity string) ([]models.Task, error) {
	tasks, err := s.taskRepo.ListVisible(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskService) newTask(identity string, input TaskInput) (*models.Task, error) {
	name, err := input.name()
	if err != nil {
		return nil, err
	}

	return &models.Task{
		Name:       name,
		Importance: utils.ParseScore(input.values["importance"]),
		Urgency:    utils.ParseScore(input.values["urgency"]),
		UserID:     identityPtr(identity),
		Link:       input.text("link"),
		DueDate:    input.text("due_date"),
		Notes:      input.text("notes"),
		Category:   input.text("category"),
		Status:     input.text("status"),
		Icon:       input.text("icon"),
		Color:      input.text("color"),
		Progress:   utils.ParseOptionalInt(input.values["progress"]),
	}, nil
}

func (s *TaskService) update(ctx context.Context, identity string, taskID uint64, input TaskInput, allowed []string) (*models.Task, error) {
	fields, err := input.fields(allowed)
	if err != nil {
		return nil, err
	}

	task, err := findVisibleTask(ctx, s.taskRepo, identity, taskID)
	if err != nil {
		return nil, err
	}

	return s.write(ctx, identity, task, fields)
}

func (s *TaskService) updateAttribute(ctx context.Context, identity string, taskID uint64, column, value string) (*models.Task, error) {
	task, err := findVisibleTask(ctx, s.taskRepo, identity, taskID)
	if err != nil {
		return nil, err
	}

	return s.write(ctx, identity, task, map[string]any{column: utils.OptionalString(value)})
}

// write applies fields (plus a claim when due) in one guarded statement,
// publishes and returns the stored row.
func (s *TaskService) write(ctx context.Context, identity string, task *models.Task, fields map[string]any) (*models.Task, error) {
	claimFields(task, identity, fields)
	if len(fields) == 0 {
		return task, nil
	}

	if err := s.taskRepo.UpdateVisible(ctx, task.ID, identity, fields); err != nil {
		return nil, mapWriteError(err, "failed to update task")
	}

	s.publisher.Publish(ScopeOf(task))

	updated, err := s.taskRepo.FindByID(ctx, task.ID)
	if err != nil {
		return nil, mapWriteError(err, "failed to reload task")
	}
	return updated, nil
}

// findVisibleTask loads a task and hides it unless identity may see it
func findVisibleTask(ctx context.Context, repo repository.TaskRepository, identity string, taskID uint64) (*models.Task, error) {
	task, err := repo.FindByID(ctx, taskID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	if !task.VisibleTo(identity) {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// mapWriteError turns a guarded write that matched nothing into ErrTaskNotFound
func mapWriteError(err error, msg string) error {
	if errors.Is(err, repository.ErrNoRowsAffected) || repository.IsNotFound(err) {
		return ErrTaskNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
