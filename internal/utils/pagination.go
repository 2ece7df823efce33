package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/priority-matrix/internal/constants"
)

// PaginationParams holds the pagination parameters. A negative Limit means
// no limit.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// AllRows selects a whole result set as a single page
func AllRows() PaginationParams {
	return PaginationParams{Page: 1, Limit: -1}
}

// PaginationResponse represents the pagination metadata in API responses
type PaginationResponse struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Response builds the metadata for a page out of total rows
func (p PaginationParams) Response(total int64) PaginationResponse {
	pages := 1
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return PaginationResponse{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
	}
}

// GetPaginationParams reads ?page= and ?limit= from the request. Values out
// of range fall back to the first page and the default size; limits above
// the maximum are capped.
func GetPaginationParams(c *gin.Context) PaginationParams {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < constants.MinPageSize {
		page = constants.MinPageSize
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	switch {
	case err != nil || limit < constants.MinPageSize:
		limit = constants.DefaultPageSize
	case limit > constants.MaxPageSize:
		limit = constants.MaxPageSize
	}

	return PaginationParams{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}
