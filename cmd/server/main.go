package main

import (
	"log"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/priority-matrix/internal/config"
	"github.com/yukikurage/priority-matrix/internal/constants"
	"github.com/yukikurage/priority-matrix/internal/database"
	"github.com/yukikurage/priority-matrix/internal/handlers"
	"github.com/yukikurage/priority-matrix/internal/logger"
	"github.com/yukikurage/priority-matrix/internal/realtime"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"github.com/yukikurage/priority-matrix/internal/services"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	zlog, err := logger.New(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	// Connect to database
	if err := database.Connect(cfg, zlog); err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	db := database.GetDB()

	// Run migrations
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize Gin router
	r := gin.Default()

	store, err := newSessionStore(cfg)
	if err != nil {
		zlog.Fatal("failed to create session store", zap.Error(err))
	}
	// Configure session options based on environment
	isProduction := cfg.GinMode == "release"
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   isProduction, // true in production (HTTPS), false in development
		SameSite: 2,            // SameSite=Lax (1=Strict, 2=Lax, 3=None)
	})
	r.Use(sessions.Sessions(constants.SessionCookieName, store))

	// Repositories
	taskRepo := repository.NewTaskRepository(db)
	relRepo := repository.NewRelationshipRepository(db)
	userRepo := repository.NewUserRepository(db)

	// The hub reads snapshots; services publish through it
	visibility := services.NewVisibilityService(taskRepo, relRepo)
	hub := realtime.NewHub(visibility, cfg.DBQueryTimeout, zlog.Named("hub"))

	hierarchy := services.NewHierarchyService(taskRepo, relRepo, hub, zlog.Named("hierarchy"))
	taskService := services.NewTaskService(taskRepo, hierarchy, visibility, hub, zlog.Named("tasks"))
	timerService := services.NewTimerService(taskRepo, hub, zlog.Named("timers"))

	// Initialize AI service
	var generator services.TaskGenerator
	if cfg.OpenAIAPIKey != "" {
		generator = services.NewAIService(cfg.OpenAIAPIKey)
	}
	importService := services.NewImportService(taskRepo, hierarchy, generator, hub, zlog.Named("import"))

	dispatcher := realtime.NewDispatcher(hub, taskService, timerService, hierarchy, importService, cfg.DBQueryTimeout, zlog.Named("ws"))

	handlerLog := zlog.Named("http")
	handlers.Routes{
		Auth:          handlers.NewAuthHandler(services.NewAuthService(userRepo), cfg.IdentityToken),
		Tasks:         handlers.NewTaskHandler(taskService, timerService, hierarchy, handlerLog),
		Relationships: handlers.NewRelationshipHandler(hierarchy, handlerLog),
		Imports:       handlers.NewImportHandler(importService, taskService, handlerLog),
		Websocket:     handlers.NewWebsocketHandler(hub, dispatcher, handlerLog),
		QueryTimeout:  cfg.DBQueryTimeout,
	}.Register(r)

	// Start server
	zlog.Info("server starting", zap.String("port", cfg.Port), zap.Bool("ai_enabled", generator != nil))
	if err := r.Run(":" + cfg.Port); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}
}

// newSessionStore uses Redis when REDIS_HOST is set so sessions survive
// restarts and are shared between instances, and signed cookies otherwise.
func newSessionStore(cfg *config.Config) (sessions.Store, error) {
	if cfg.RedisHost == "" {
		return cookie.NewStore([]byte(cfg.SessionSecret)), nil
	}

	redisAddr := cfg.RedisHost + ":" + cfg.RedisPort
	return redisStore.NewStore(
		10,                        // Redis pool size
		"tcp",                     // network type
		redisAddr,                 // Redis address from config
		"",                        // username (empty for default user)
		"",                        // password (empty = no password)
		[]byte(cfg.SessionSecret), // authentication key
	)
}
