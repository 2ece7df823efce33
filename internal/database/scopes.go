package database

import (
	"gorm.io/gorm"

	"github.com/yukikurage/priority-matrix/internal/utils"
)

// Paginate applies pagination to a GORM query
func Paginate(params utils.PaginationParams) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(params.Offset).Limit(params.Limit)
	}
}

// VisibleTo restricts a query on a table with a user_id column to rows the
// identity may see: ownerless rows, plus its own rows when authenticated.
func VisibleTo(table, identity string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if identity == "" {
			return db.Where(table + ".user_id IS NULL")
		}
		return db.Where("("+table+".user_id = ? OR "+table+".user_id IS NULL)", identity)
	}
}

// DisplayOrder sorts roots first, then groups children by parent.
func DisplayOrder(db *gorm.DB) *gorm.DB {
	return db.Order("CASE WHEN tasks.parent_id IS NULL THEN 0 ELSE 1 END").
		Order("tasks.parent_id").
		Order("tasks.importance DESC").
		Order("tasks.urgency DESC").
		Order("tasks.id")
}
