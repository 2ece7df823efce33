package middleware

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/priority-matrix/internal/constants"
	apierrors "github.com/yukikurage/priority-matrix/internal/errors"
	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"github.com/yukikurage/priority-matrix/internal/services"
)

// TaskFinder loads a task the identity may see
type TaskFinder interface {
	GetTask(ctx context.Context, identity string, taskID uint64) (*models.Task, error)
}

// LoadVisibleTask resolves the :id parameter to a task visible to the caller
// and stores it under ContextKeyTask. Tasks owned by someone else are
// reported as missing so their existence does not leak.
func LoadVisibleTask(tasks TaskFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil || taskID == 0 {
			apierrors.BadRequest(c, "Invalid task ID")
			c.Abort()
			return
		}

		task, err := tasks.GetTask(c.Request.Context(), Identity(c), taskID)
		if err != nil {
			var perr *repository.PersistenceError
			switch {
			case errors.Is(err, services.ErrTaskNotFound):
				apierrors.NotFound(c, "Task not found")
			case errors.As(err, &perr):
				apierrors.PersistenceFailure(c)
			default:
				apierrors.InternalError(c, "Failed to load task")
			}
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyTask, task)
		c.Next()
	}
}

// GetTask returns the task stored by LoadVisibleTask
func GetTask(c *gin.Context) (*models.Task, bool) {
	value, exists := c.Get(constants.ContextKeyTask)
	if !exists {
		return nil, false
	}
	task, ok := value.(*models.Task)
	return task, ok
}
