package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/priority-matrix/internal/dto"
	apierrors "github.com/yukikurage/priority-matrix/internal/errors"
	"github.com/yukikurage/priority-matrix/internal/importer"
	"github.com/yukikurage/priority-matrix/internal/middleware"
	"github.com/yukikurage/priority-matrix/internal/services"
	"go.uber.org/zap"
)

const csvContentType = "text/csv; charset=utf-8"

// ImportHandler serves bulk import and export
type ImportHandler struct {
	imports *services.ImportService
	tasks   *services.TaskService
	log     *zap.Logger
}

func NewImportHandler(imports *services.ImportService, tasks *services.TaskService, log *zap.Logger) *ImportHandler {
	return &ImportHandler{
		imports: imports,
		tasks:   tasks,
		log:     log,
	}
}

// ImportJSON imports {"tasks": [...]} rows
func (h *ImportHandler) ImportJSON(c *gin.Context) {
	type ImportRequest struct {
		Tasks []map[string]any `json:"tasks" binding:"required"`
	}

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.imports.ImportRecords(c.Request.Context(), middleware.Identity(c), req.Tasks)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	respondImport(c, result)
}

// ImportCSV imports an uploaded CSV file sent as the "file" form field
func (h *ImportHandler) ImportCSV(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		apierrors.BadRequest(c, "No file uploaded")
		return
	}

	file, err := header.Open()
	if err != nil {
		apierrors.BadRequest(c, "Failed to read uploaded file")
		return
	}
	defer file.Close()

	records, err := importer.ReadCSV(file)
	if err != nil {
		if errors.Is(err, importer.ErrEmptyCSV) {
			apierrors.BadRequest(c, "CSV file is empty")
			return
		}
		apierrors.BadRequestWithDetails(c, "Failed to parse CSV", err.Error())
		return
	}

	result, err := h.imports.ImportRecords(c.Request.Context(), middleware.Identity(c), records)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	respondImport(c, result)
}

// GenerateTasks extracts tasks from free text with the AI backend and imports
// them
func (h *ImportHandler) GenerateTasks(c *gin.Context) {
	type GenerateTasksRequest struct {
		Text string `json:"text" binding:"required"`
	}

	var req GenerateTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.imports.GenerateAndImport(c.Request.Context(), middleware.Identity(c), req.Text)
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	respondImport(c, result)
}

// Template downloads a CSV with the accepted columns and two sample rows
func (h *ImportHandler) Template(c *gin.Context) {
	var buf bytes.Buffer
	if err := importer.WriteTemplate(&buf); err != nil {
		apierrors.InternalError(c, "Failed to build template")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="task-template.csv"`)
	c.Data(http.StatusOK, csvContentType, buf.Bytes())
}

// ExportCSV downloads the caller's visible tasks as CSV
func (h *ImportHandler) ExportCSV(c *gin.Context) {
	tasks, err := h.tasks.ExportTasks(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		respondTaskError(c, h.log, err)
		return
	}

	var buf bytes.Buffer
	if err := importer.WriteCSV(&buf, tasks); err != nil {
		h.log.Error("csv export failed", zap.Error(err))
		apierrors.InternalError(c, "Failed to export tasks")
		return
	}

	filename := fmt.Sprintf("tasks-export-%s.csv", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, csvContentType, buf.Bytes())
}

func respondImport(c *gin.Context, result *dto.ImportResult) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Imported %d tasks, updated %d", result.Imported, result.Updated),
		"details": result,
	})
}
