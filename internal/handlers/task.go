package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/priority-matrix/internal/dto"
	apierrors "github.com/yukikurage/priority-matrix/internal/errors"
	"github.com/yukikurage/priority-matrix/internal/middleware"
	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/services"
	"github.com/yukikurage/priority-matrix/internal/utils"
	"go.uber.org/zap"
)

type TaskHandler struct {
	tasks     *services.TaskService
	timers    *services.TimerService
	hierarchy *services.HierarchyService
	log       *zap.Logger
}

func NewTaskHandler(
	tasks *services.TaskService,
	timers *services.TimerService,
	hierarchy *services.HierarchyService,
	log *zap.Logger,
) *TaskHandler {
	return &TaskHandler{
		tasks:     tasks,
		timers:    timers,
		hierarchy: hierarchy,
		log:       log,
	}
}

// ListTasks returns the caller's snapshot in display order
func (h *TaskHandler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.ListTasks(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// GetTask returns a task with its session history and edges
// Task is already loaded by LoadVisibleTask middleware
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, ok := h.taskFromContext(c)
	if !ok {
		return
	}

	details, err := h.tasks.GetTaskDetails(c.Request.Context(), middleware.Identity(c), task.ID)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// CreateTask creates a root task
func (h *TaskHandler) CreateTask(c *gin.Context) {
	input, ok := bindTaskInput(c)
	if !ok {
		return
	}

	task, err := h.tasks.AddTask(c.Request.Context(), middleware.Identity(c), input)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskDTO(*task, 0))
}

// EditTask updates any editable attribute that was sent
func (h *TaskHandler) EditTask(c *gin.Context) {
	h.updateTask(c, h.tasks.EditTask)
}

// ModifyTask updates name and scores only
func (h *TaskHandler) ModifyTask(c *gin.Context) {
	h.updateTask(c, h.tasks.ModifyTask)
}

// UpdateSubtask updates a subtask and may move it to another parent
func (h *TaskHandler) UpdateSubtask(c *gin.Context) {
	h.updateTask(c, h.tasks.UpdateSubtask)
}

// DeleteTask deletes a task; its children become roots
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	task, ok := h.taskFromContext(c)
	if !ok {
		return
	}

	if err := h.tasks.DeleteTask(c.Request.Context(), middleware.Identity(c), task.ID); err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

// ToggleDone flips the completion state
func (h *TaskHandler) ToggleDone(c *gin.Context) {
	task, ok := h.taskFromContext(c)
	if !ok {
		return
	}

	updated, err := h.tasks.ToggleDone(c.Request.Context(), middleware.Identity(c), task.ID)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*updated, 0))
}

// AddSubtask creates a task under the task in the path
func (h *TaskHandler) AddSubtask(c *gin.Context) {
	parent, ok := h.taskFromContext(c)
	if !ok {
		return
	}

	input, ok := bindTaskInput(c)
	if !ok {
		return
	}

	task, err := h.tasks.AddSubtask(c.Request.Context(), middleware.Identity(c), parent.ID, input)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskDTO(*task, 0))
}

// SetParent moves a task under another one, or to the root on a null parent
func (h *TaskHandler) SetParent(c *gin.Context) {
	task, ok := h.taskFromContext(c)
	if !ok {
		return
	}

	type SetParentRequest struct {
		ParentID *uint64 `json:"parent_id"`
	}

	var req SetParentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}
	if req.ParentID != nil && *req.ParentID == 0 {
		req.ParentID = nil
	}

	if err := h.hierarchy.SetParent(c.Request.Context(), middleware.Identity(c), task.ID, req.ParentID); err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id":   task.ID,
		"parent_id": req.ParentID,
	})
}

// UpdateAttribute returns a handler replacing one free-text attribute. The
// request body is {"<field>": "value"}; an empty value clears it.
func (h *TaskHandler) UpdateAttribute(field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, ok := h.taskFromContext(c)
		if !ok {
			return
		}

		var req map[string]*string
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.BadRequest(c, "Invalid request body")
			return
		}
		value := ""
		if v := req[field]; v != nil {
			value = *v
		}

		ctx := c.Request.Context()
		identity := middleware.Identity(c)

		var updated *models.Task
		var err error
		switch field {
		case "notes":
			updated, err = h.tasks.UpdateNotes(ctx, identity, task.ID, value)
		case "status":
			updated, err = h.tasks.UpdateStatus(ctx, identity, task.ID, value)
		case "icon":
			updated, err = h.tasks.UpdateIcon(ctx, identity, task.ID, value)
		case "color":
			updated, err = h.tasks.UpdateColor(ctx, identity, task.ID, value)
		default:
			apierrors.BadRequest(c, "Unknown attribute")
			return
		}
		if err != nil {
			respondTaskError(c, h.log, err)
			return
		}

		c.JSON(http.StatusOK, dto.ToTaskDTO(*updated, 0))
	}
}

// StartTimer starts or restarts the focus timer of a task
func (h *TaskHandler) StartTimer(c *gin.Context) {
	task, ok := h.taskFromContext(c)
	if !ok {
		return
	}

	result, err := h.timers.Start(c.Request.Context(), middleware.Identity(c), task.ID)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// StopTimer ends the running session of a task
func (h *TaskHandler) StopTimer(c *gin.Context) {
	task, ok := h.taskFromContext(c)
	if !ok {
		return
	}

	result, err := h.timers.Stop(c.Request.Context(), middleware.Identity(c), task.ID)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListTimeLogs returns one page of a task's session history, newest first
func (h *TaskHandler) ListTimeLogs(c *gin.Context) {
	task, ok := h.taskFromContext(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	logs, total, err := h.timers.TimeLogs(c.Request.Context(), middleware.Identity(c), task.ID, params)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTimeLogListResponse(logs, params, total))
}

// ActiveTimers lists visible tasks with a running timer
func (h *TaskHandler) ActiveTimers(c *gin.Context) {
	tasks, err := h.timers.ActiveTimers(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	result := make([]dto.TaskDTO, len(tasks))
	for i, task := range tasks {
		result[i] = dto.ToTaskDTO(task, 0)
	}
	c.JSON(http.StatusOK, gin.H{"tasks": result})
}

// Analytics returns the visible tasks with all their sessions
func (h *TaskHandler) Analytics(c *gin.Context) {
	analytics, err := h.tasks.Analytics(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

func (h *TaskHandler) updateTask(c *gin.Context, update func(ctx context.Context, identity string, input services.TaskInput) (*models.Task, error)) {
	task, ok := h.taskFromContext(c)
	if !ok {
		return
	}

	input, ok := bindTaskInput(c)
	if !ok {
		return
	}
	input.ID = task.ID

	updated, err := update(c.Request.Context(), middleware.Identity(c), input)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*updated, 0))
}

func (h *TaskHandler) taskFromContext(c *gin.Context) (*models.Task, bool) {
	task, ok := middleware.GetTask(c)
	if !ok {
		apierrors.InternalError(c, "Task not found in context")
		return nil, false
	}
	return task, true
}

// bindTaskInput parses raw JSON so that only the fields that were sent are
// written
func bindTaskInput(c *gin.Context) (services.TaskInput, bool) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return services.TaskInput{}, false
	}
	return services.ParseTaskInput(raw), true
}
