package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/priority-matrix/internal/middleware"
)

// Routes groups the handlers served by the API
type Routes struct {
	Auth          *AuthHandler
	Tasks         *TaskHandler
	Relationships *RelationshipHandler
	Imports       *ImportHandler
	Websocket     *WebsocketHandler
	// QueryTimeout bounds the backend calls of each REST request
	QueryTimeout time.Duration
}

// Register mounts every route on r. Session middleware must already be
// installed.
func (rt Routes) Register(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Priority Matrix is running",
		})
	})

	r.GET("/ws", middleware.OptionalAuth(), rt.Websocket.Serve)

	api := r.Group("/api")
	api.Use(middleware.OptionalAuth(), middleware.QueryTimeout(rt.QueryTimeout))
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/session", rt.Auth.CreateSession)
			auth.POST("/logout", rt.Auth.Logout)
			auth.GET("/user", middleware.RequireAuth(), rt.Auth.GetCurrentUser)
			auth.GET("/config", rt.Auth.Config)
		}

		// Task routes; anonymous callers work on ownerless tasks
		loadTask := middleware.LoadVisibleTask(rt.Tasks.tasks)
		tasks := api.Group("/tasks")
		{
			tasks.GET("", rt.Tasks.ListTasks)
			tasks.POST("", rt.Tasks.CreateTask)
			tasks.GET("/:id", loadTask, rt.Tasks.GetTask)
			tasks.PUT("/:id", loadTask, rt.Tasks.EditTask)
			tasks.PATCH("/:id", loadTask, rt.Tasks.ModifyTask)
			tasks.DELETE("/:id", loadTask, rt.Tasks.DeleteTask)
			tasks.POST("/:id/toggle", loadTask, rt.Tasks.ToggleDone)
			tasks.POST("/:id/subtasks", loadTask, rt.Tasks.AddSubtask)
			tasks.PUT("/:id/subtask", loadTask, rt.Tasks.UpdateSubtask)
			tasks.PUT("/:id/parent", loadTask, rt.Tasks.SetParent)
			tasks.PUT("/:id/notes", loadTask, rt.Tasks.UpdateAttribute("notes"))
			tasks.PUT("/:id/status", loadTask, rt.Tasks.UpdateAttribute("status"))
			tasks.PUT("/:id/icon", loadTask, rt.Tasks.UpdateAttribute("icon"))
			tasks.PUT("/:id/color", loadTask, rt.Tasks.UpdateAttribute("color"))
			tasks.POST("/:id/timer/start", loadTask, rt.Tasks.StartTimer)
			tasks.POST("/:id/timer/stop", loadTask, rt.Tasks.StopTimer)
			tasks.GET("/:id/time-logs", loadTask, rt.Tasks.ListTimeLogs)
		}
		api.GET("/timers/active", rt.Tasks.ActiveTimers)
		api.GET("/analytics", rt.Tasks.Analytics)

		rels := api.Group("/relationships")
		{
			rels.GET("", rt.Relationships.ListRelationships)
			rels.POST("", rt.Relationships.CreateRelationship)
			rels.DELETE("", rt.Relationships.DeleteRelationship)
		}

		imports := api.Group("/import")
		{
			imports.POST("", rt.Imports.ImportJSON)
			imports.POST("/csv", middleware.RequireAuth(), rt.Imports.ImportCSV)
			imports.GET("/template", rt.Imports.Template)
			imports.POST("/generate", rt.Imports.GenerateTasks)
		}
		api.GET("/export/csv", middleware.RequireAuth(), rt.Imports.ExportCSV)
	}
}
