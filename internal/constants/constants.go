package constants

const (
	// Session
	SessionCookieName = "matrix_session"
	ContextKeyUserID  = "user_id"
	ContextKeyTask    = "task"

	// Scores
	DefaultScore = 5
	MinScore     = 0
	MaxScore     = 10

	// Textual urgency values in imports
	UrgentScore    = 9
	NotUrgentScore = 3

	// Timer
	PomodoroSeconds  = 25 * 60
	SessionTypeFocus = "focus"

	// Users
	DefaultAuthProvider = "google"

	// Pagination
	MinPageSize     = 1
	DefaultPageSize = 50
	MaxPageSize     = 200

	// AI
	MaxAIGeneratedTasks = 50
)
