package repository

import (
	"context"

	"github.com/yukikurage/priority-matrix/internal/database"
	"github.com/yukikurage/priority-matrix/internal/models"
	"gorm.io/gorm"
)

// GormRelationshipRepository is a GORM implementation of RelationshipRepository
type GormRelationshipRepository struct {
	db *gorm.DB
}

// NewRelationshipRepository creates a new RelationshipRepository
func NewRelationshipRepository(db *gorm.DB) RelationshipRepository {
	return &GormRelationshipRepository{db: db}
}

// Create inserts an edge
func (r *GormRelationshipRepository) Create(ctx context.Context, rel *models.TaskRelationship) error {
	return wrap("insert-relationship", r.db.WithContext(ctx).Create(rel).Error)
}

// Find finds an edge created under exactly the given scope
func (r *GormRelationshipRepository) Find(ctx context.Context, enablerID, enabledID uint64, scope *string) (*models.TaskRelationship, error) {
	var rel models.TaskRelationship
	if err := r.db.WithContext(ctx).Scopes(edgeIn(enablerID, enabledID, scope)).First(&rel).Error; err != nil {
		return nil, wrap("find-relationship", err)
	}
	return &rel, nil
}

// FindVisible finds an edge between two tasks the identity may see. An edge
// in the identity's own scope wins over a shared one.
func (r *GormRelationshipRepository) FindVisible(ctx context.Context, enablerID, enabledID uint64, identity string) (*models.TaskRelationship, error) {
	var rel models.TaskRelationship
	err := r.db.WithContext(ctx).
		Where("task_relationships.enabler_task_id = ? AND task_relationships.enabled_task_id = ?", enablerID, enabledID).
		Scopes(database.VisibleTo("task_relationships", identity)).
		Order("CASE WHEN task_relationships.user_id IS NULL THEN 1 ELSE 0 END").
		Order("task_relationships.id").
		First(&rel).Error
	if err != nil {
		return nil, wrap("find-relationship", err)
	}
	return &rel, nil
}

// Delete removes the edges between two tasks created under exactly scope
func (r *GormRelationshipRepository) Delete(ctx context.Context, enablerID, enabledID uint64, scope *string) (int64, error) {
	result := r.db.WithContext(ctx).
		Scopes(edgeIn(enablerID, enabledID, scope)).
		Delete(&models.TaskRelationship{})
	if result.Error != nil {
		return 0, wrap("delete-relationship", result.Error)
	}
	return result.RowsAffected, nil
}

// ListVisible lists edges the identity may see, optionally touching one task
func (r *GormRelationshipRepository) ListVisible(ctx context.Context, identity string, taskID *uint64) ([]models.TaskRelationship, error) {
	query := r.db.WithContext(ctx).
		Model(&models.TaskRelationship{}).
		Scopes(database.VisibleTo("task_relationships", identity))
	if taskID != nil {
		query = query.Where("(task_relationships.enabler_task_id = ? OR task_relationships.enabled_task_id = ?)", *taskID, *taskID)
	}

	var rels []models.TaskRelationship
	if err := query.Order("task_relationships.id").Find(&rels).Error; err != nil {
		return nil, wrap("list-relationships", err)
	}
	return rels, nil
}

type leverageRow struct {
	EnablerTaskID uint64
	Edges         int
}

// CountByEnabler counts, per enabler, the distinct tasks it enables through
// visible edges. A shared edge and an owned edge to the same task count once.
func (r *GormRelationshipRepository) CountByEnabler(ctx context.Context, identity string, enablerIDs []uint64) (map[uint64]int, error) {
	counts := make(map[uint64]int, len(enablerIDs))
	if len(enablerIDs) == 0 {
		return counts, nil
	}

	var rows []leverageRow
	err := r.db.WithContext(ctx).
		Model(&models.TaskRelationship{}).
		Select("task_relationships.enabler_task_id, COUNT(DISTINCT task_relationships.enabled_task_id) AS edges").
		Where("task_relationships.enabler_task_id IN ?", enablerIDs).
		Scopes(database.VisibleTo("task_relationships", identity)).
		Group("task_relationships.enabler_task_id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrap("count-leverage", err)
	}

	for _, row := range rows {
		counts[row.EnablerTaskID] = row.Edges
	}
	return counts, nil
}

func edgeIn(enablerID, enabledID uint64, scope *string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("enabler_task_id = ? AND enabled_task_id = ?", enablerID, enabledID)
		if scope == nil {
			return db.Where("user_id IS NULL")
		}
		return db.Where("user_id = ?", *scope)
	}
}
