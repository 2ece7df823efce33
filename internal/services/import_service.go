package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yukikurage/priority-matrix/internal/constants"
	"github.com/yukikurage/priority-matrix/internal/dto"
	"github.com/yukikurage/priority-matrix/internal/importer"
	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"go.uber.org/zap"
)

// TaskGenerator extracts tasks from free text
type TaskGenerator interface {
	GenerateTasksFromText(ctx context.Context, text string) ([]GeneratedTask, error)
}

// ImportService reconciles externally supplied task batches with stored tasks
type ImportService struct {
	taskRepo  repository.TaskRepository
	hierarchy *HierarchyService
	generator TaskGenerator
	publisher Publisher
	log       *zap.Logger
	now       func() time.Time
}

// NewImportService creates a new ImportService. generator may be nil when no
// AI backend is configured.
func NewImportService(
	taskRepo repository.TaskRepository,
	hierarchy *HierarchyService,
	generator TaskGenerator,
	publisher Publisher,
	log *zap.Logger,
) *ImportService {
	return &ImportService{
		taskRepo:  taskRepo,
		hierarchy: hierarchy,
		generator: generator,
		publisher: publisherOrNoop(publisher),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ImportBatch imports rows for owner in two phases. Phase 1 merges each row
// into a same-name task the owner may use or inserts it as a root, and maps
// the row's external id to the stored id. Phase 2 rebuilds the hierarchy
// through that map. Row failures are collected; they never abort the batch.
func (s *ImportService) ImportBatch(ctx context.Context, owner string, rows []importer.Row) (*dto.ImportResult, error) {
	result := &dto.ImportResult{Errors: []dto.ImportRowError{}}
	if len(rows) == 0 {
		return result, nil
	}

	ids := make([]uint64, len(rows))
	external := make(map[string]uint64, len(rows))
	shared := owner == ""

	for i, row := range rows {
		id, merged, claimedShared, err := s.reconcileRow(ctx, owner, row)
		if err != nil {
			result.Errors = append(result.Errors, dto.ImportRowError{
				Row:   i + 1,
				Task:  row.Name,
				Error: err.Error(),
			})
			continue
		}

		ids[i] = id
		if row.ExternalID != "" {
			external[row.ExternalID] = id
		}
		if merged {
			result.Updated++
		} else {
			result.Imported++
		}
		shared = shared || claimedShared
	}

	for i, row := range rows {
		if ids[i] == 0 || row.ParentRef == "" {
			continue
		}
		parentID, ok := external[row.ParentRef]
		if !ok {
			s.log.Debug("import parent reference unresolved", zap.Int("row", i+1), zap.String("parent_ref", row.ParentRef))
			continue
		}
		if err := s.linkParent(ctx, owner, ids[i], parentID); err != nil {
			s.log.Debug("import parent link skipped", zap.Int("row", i+1), zap.Error(err))
		}
	}

	if result.Imported > 0 || result.Updated > 0 {
		if shared {
			s.publisher.Publish(Scope{Everyone: true})
		} else {
			s.publisher.Publish(Scope{Owner: owner})
		}
	}

	s.log.Info("import completed",
		zap.Int("imported", result.Imported),
		zap.Int("updated", result.Updated),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// ImportRecords normalizes raw records and imports them
func (s *ImportService) ImportRecords(ctx context.Context, owner string, records []map[string]any) (*dto.ImportResult, error) {
	return s.ImportBatch(ctx, owner, importer.NormalizeAll(records))
}

// GenerateAndImport asks the AI backend for tasks found in text and imports
// them like any other batch.
func (s *ImportService) GenerateAndImport(ctx context.Context, owner, text string) (*dto.ImportResult, error) {
	if s.generator == nil {
		return nil, ErrAIServiceNotConfigured
	}

	generated, err := s.generator.GenerateTasksFromText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tasks: %w", err)
	}

	if len(generated) == 0 {
		return nil, ErrAINoTasksGenerated
	}
	if len(generated) > constants.MaxAIGeneratedTasks {
		return nil, fmt.Errorf("AI generated too many tasks (max %d)", constants.MaxAIGeneratedTasks)
	}

	rows := make([]importer.Row, 0, len(generated))
	for _, task := range generated {
		row := importer.Normalize(task.Record())
		if row.Name == "" {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, ErrAINoValidTasks
	}

	return s.ImportBatch(ctx, owner, rows)
}

// reconcileRow merges or inserts one row. It reports the stored id, whether
// the row merged into an existing task and whether that task was ownerless.
func (s *ImportService) reconcileRow(ctx context.Context, owner string, row importer.Row) (uint64, bool, bool, error) {
	if row.Name == "" {
		return 0, false, false, ErrNameRequired
	}

	existing, err := s.taskRepo.FindMergeCandidate(ctx, row.Name, owner)
	switch {
	case err == nil:
		if owner != "" && existing.IsOwnerless() {
			claim := map[string]any{"user_id": owner}
			if err := s.taskRepo.UpdateVisible(ctx, existing.ID, owner, claim); err != nil {
				return 0, false, false, mapWriteError(err, "failed to claim task")
			}
		}
		return existing.ID, true, existing.IsOwnerless(), nil
	case !repository.IsNotFound(err):
		return 0, false, false, fmt.Errorf("failed to look up task: %w", err)
	}

	task := s.taskFromRow(owner, row)
	if err := s.taskRepo.Create(ctx, task); err != nil {
		return 0, false, false, fmt.Errorf("failed to insert task: %w", err)
	}
	return task.ID, false, false, nil
}

// taskFromRow builds a root task; the hierarchy is restored in phase 2.
func (s *ImportService) taskFromRow(owner string, row importer.Row) *models.Task {
	task := &models.Task{
		Name:           row.Name,
		Importance:     row.Importance,
		Urgency:        row.Urgency,
		Done:           row.Done,
		UserID:         identityPtr(owner),
		Link:           row.Link,
		DueDate:        row.DueDate,
		Notes:          row.Notes,
		Category:       row.Category,
		Status:         row.Status,
		Icon:           row.Icon,
		Color:          row.Color,
		Progress:       row.Progress,
		TotalTimeSpent: row.TotalTimeSpent,
		PomodoroCount:  row.PomodoroCount,
	}
	if task.Done {
		completed := s.now()
		task.CompletedAt = &completed
	}
	return task
}

func (s *ImportService) linkParent(ctx context.Context, owner string, taskID, parentID uint64) error {
	if err := s.hierarchy.checkParent(ctx, owner, taskID, &parentID); err != nil {
		return err
	}
	if err := s.taskRepo.SetParent(ctx, taskID, owner, &parentID); err != nil {
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return ErrTaskNotFound
		}
		return err
	}
	return nil
}
