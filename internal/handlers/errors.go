package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/priority-matrix/internal/errors"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"github.com/yukikurage/priority-matrix/internal/services"
	"go.uber.org/zap"
)

// respondTaskError maps engine errors onto the API error envelope
func respondTaskError(c *gin.Context, log *zap.Logger, err error) {
	var perr *repository.PersistenceError

	switch {
	case errors.Is(err, services.ErrNameRequired):
		apierrors.MissingField(c, err.Error())
	case errors.Is(err, services.ErrTaskNotFound):
		apierrors.NotFound(c, "Task not found")
	case errors.Is(err, services.ErrNoActiveTimer):
		apierrors.NoActiveTimer(c, err.Error())
	case errors.Is(err, services.ErrHierarchyCycle):
		apierrors.UnprocessableEntity(c, apierrors.ErrCodeHierarchyCycle, err.Error())
	case errors.Is(err, services.ErrSelfRelationship):
		apierrors.UnprocessableEntity(c, apierrors.ErrCodeSelfRelationship, err.Error())
	case errors.Is(err, services.ErrRelationshipNotVisible):
		apierrors.UnprocessableEntity(c, apierrors.ErrCodeNotVisible, err.Error())
	case errors.Is(err, services.ErrAIServiceNotConfigured):
		apierrors.ServiceUnavailable(c, "AI service is not configured. Please set OPENAI_API_KEY environment variable.")
	case errors.Is(err, services.ErrAINoTasksGenerated), errors.Is(err, services.ErrAINoValidTasks):
		apierrors.UnprocessableEntity(c, apierrors.ErrCodeInvalidInput, err.Error())
	case errors.As(err, &perr):
		log.Error("persistence failure", zap.String("op", perr.Op), zap.Error(err))
		apierrors.PersistenceFailure(c)
	default:
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		apierrors.InternalError(c, "")
	}
}
