package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/priority-matrix/internal/config"
	"github.com/yukikurage/priority-matrix/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type legacyTask struct {
	ID         uint64 `gorm:"primarykey"`
	Name       string `gorm:"type:varchar(500);not null"`
	Importance int    `gorm:"not null"`
	Urgency    int    `gorm:"not null"`
	Done       bool   `gorm:"not null"`
	ParentID   *uint64
	UserID     *string `gorm:"type:varchar(255)"`
}

func (legacyTask) TableName() string { return "tasks" }

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := openMemory(t)

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	migrator := db.Migrator()
	for _, table := range []string{"tasks", "time_logs", "users", "task_relationships"} {
		assert.True(t, migrator.HasTable(table), table)
	}
	assert.True(t, migrator.HasIndex("tasks", "idx_tasks_owner_parent"))
	assert.True(t, migrator.HasColumn(&models.Task{}, "active_timer_start"))
}

func TestMigrate_AddsMissingColumns(t *testing.T) {
	db := openMemory(t)

	// An older schema without the timer and appearance columns
	require.NoError(t, db.AutoMigrate(&legacyTask{}))
	require.NoError(t, db.Create(&legacyTask{Name: "legacy", Importance: 4, Urgency: 6}).Error)

	require.NoError(t, Migrate(db))

	migrator := db.Migrator()
	assert.True(t, migrator.HasColumn(&models.Task{}, "pomodoro_count"))
	assert.True(t, migrator.HasColumn(&models.Task{}, "icon"))

	var task models.Task
	require.NoError(t, db.First(&task).Error)
	assert.Equal(t, "legacy", task.Name)
	assert.Equal(t, 0, task.PomodoroCount)
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{config.DriverSQLite, config.DriverPostgres, config.DriverMySQL} {
		d, err := Dialector(&config.Config{DBDriver: driver, DBPath: "x.db"})
		require.NoError(t, err)
		assert.Equal(t, driver, d.Name())
	}

	_, err := Dialector(&config.Config{DBDriver: "oracle"})
	assert.Error(t, err)
}

func TestVisibleTo(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, Migrate(db))

	alice := "alice"
	bob := "bob"
	require.NoError(t, db.Create(&[]models.Task{
		{Name: "shared", Importance: 5, Urgency: 5},
		{Name: "alice", Importance: 5, Urgency: 5, UserID: &alice},
		{Name: "bob", Importance: 5, Urgency: 5, UserID: &bob},
	}).Error)

	var anon []models.Task
	require.NoError(t, db.Scopes(VisibleTo("tasks", "")).Find(&anon).Error)
	assert.Len(t, anon, 1)

	var mine []models.Task
	require.NoError(t, db.Scopes(VisibleTo("tasks", alice)).Find(&mine).Error)
	assert.Len(t, mine, 2)
}
