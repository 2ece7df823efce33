package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes
const (
	ErrCodeUnauthorized = "UNAUTHORIZED"

	// Validation errors
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeMissingField = "MISSING_FIELD"

	ErrCodeNotFound = "NOT_FOUND"

	// Task graph and timer errors
	ErrCodeHierarchyCycle   = "HIERARCHY_CYCLE"
	ErrCodeSelfRelationship = "SELF_RELATIONSHIP"
	ErrCodeNotVisible       = "NOT_VISIBLE"
	ErrCodeNoActiveTimer    = "NO_ACTIVE_TIMER"

	// Service errors
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodePersistenceFailure = "PERSISTENCE_FAILURE"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// APIError is the body of every failed REST response and the payload of
// websocket error events
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new APIError
func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, statusCode int, err *APIError) {
	c.JSON(statusCode, err)
}

func respond(c *gin.Context, status int, code, message, fallback string) {
	if message == "" {
		message = fallback
	}
	RespondWithError(c, status, NewAPIError(code, message))
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	respond(c, http.StatusUnauthorized, ErrCodeUnauthorized, message, "Authentication required")
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	respond(c, http.StatusNotFound, ErrCodeNotFound, message, "Resource not found")
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, ErrCodeInvalidInput, message, "Invalid request")
}

// BadRequestWithDetails sends a 400 response with details
func BadRequestWithDetails(c *gin.Context, message string, details any) {
	RespondWithError(c, http.StatusBadRequest, &APIError{Code: ErrCodeInvalidInput, Message: message, Details: details})
}

// MissingField rejects a request without a required field such as a task name
func MissingField(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, ErrCodeMissingField, message, "Required field is missing")
}

// NoActiveTimer sends a 409 for a stop on a task whose timer is not running
func NoActiveTimer(c *gin.Context, message string) {
	respond(c, http.StatusConflict, ErrCodeNoActiveTimer, message, "No active timer")
}

// UnprocessableEntity sends a 422 response for requests that are well formed
// but would break an integrity rule of the task graph
func UnprocessableEntity(c *gin.Context, code, message string) {
	if code == "" {
		code = ErrCodeInvalidInput
	}
	RespondWithError(c, http.StatusUnprocessableEntity, NewAPIError(code, message))
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	respond(c, http.StatusInternalServerError, ErrCodeInternalError, message, "Internal server error")
}

// ServiceUnavailable sends a 503 response
func ServiceUnavailable(c *gin.Context, message string) {
	respond(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message, "Service temporarily unavailable")
}

// PersistenceFailure sends a 503 when the database could not complete a query
func PersistenceFailure(c *gin.Context) {
	respond(c, http.StatusServiceUnavailable, ErrCodePersistenceFailure, "", "Storage is unavailable")
}
