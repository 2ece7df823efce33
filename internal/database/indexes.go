package database

import (
	"fmt"

	"gorm.io/gorm"
)

// AddIndexes adds the composite indexes the visibility and leverage queries rely on
func AddIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		name    string
		columns string
	}{
		// Visibility ordering: owner filter, then hierarchy grouping
		{"tasks", "idx_tasks_owner_parent", "user_id, parent_id"},
		// Import merge lookup
		{"tasks", "idx_tasks_name", "name"},

		// Leverage counting
		{"task_relationships", "idx_relationships_enabler_scope", "enabler_task_id, user_id"},

		// Session history per task
		{"time_logs", "idx_time_logs_task_created", "task_id, created_at"},
	}

	migrator := db.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.table, idx.name) {
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}
