package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/priority-matrix/internal/dto"
	apierrors "github.com/yukikurage/priority-matrix/internal/errors"
	"github.com/yukikurage/priority-matrix/internal/middleware"
	"github.com/yukikurage/priority-matrix/internal/services"
	"go.uber.org/zap"
)

// RelationshipHandler serves the enables edges between tasks
type RelationshipHandler struct {
	hierarchy *services.HierarchyService
	log       *zap.Logger
}

func NewRelationshipHandler(hierarchy *services.HierarchyService, log *zap.Logger) *RelationshipHandler {
	return &RelationshipHandler{
		hierarchy: hierarchy,
		log:       log,
	}
}

type relationshipRequest struct {
	EnablerID uint64 `json:"enabler_id" form:"enabler_id" binding:"required"`
	EnabledID uint64 `json:"enabled_id" form:"enabled_id" binding:"required"`
}

// ListRelationships lists visible edges, optionally only those touching
// ?task_id=
func (h *RelationshipHandler) ListRelationships(c *gin.Context) {
	var taskID *uint64
	if raw := c.Query("task_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			apierrors.BadRequest(c, "Invalid task_id")
			return
		}
		taskID = &id
	}

	rels, err := h.hierarchy.ListRelationships(c.Request.Context(), middleware.Identity(c), taskID)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"relationships": dto.ToRelationshipDTOs(rels)})
}

// CreateRelationship records that enabler_id enables enabled_id
func (h *RelationshipHandler) CreateRelationship(c *gin.Context) {
	var req relationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	rel, err := h.hierarchy.AddRelationship(c.Request.Context(), middleware.Identity(c), req.EnablerID, req.EnabledID)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToRelationshipDTO(*rel))
}

// DeleteRelationship removes the caller's edge named by the query string
func (h *RelationshipHandler) DeleteRelationship(c *gin.Context) {
	var req relationshipRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BadRequest(c, "enabler_id and enabled_id are required")
		return
	}

	removed, err := h.hierarchy.RemoveRelationship(c.Request.Context(), middleware.Identity(c), req.EnablerID, req.EnabledID)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
