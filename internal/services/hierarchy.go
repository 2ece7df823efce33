package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"go.uber.org/zap"
)

// HierarchyService owns parent moves and the enables graph
type HierarchyService struct {
	taskRepo  repository.TaskRepository
	relRepo   repository.RelationshipRepository
	publisher Publisher
	log       *zap.Logger
}

// NewHierarchyService creates a new HierarchyService
func NewHierarchyService(taskRepo repository.TaskRepository, relRepo repository.RelationshipRepository, publisher Publisher, log *zap.Logger) *HierarchyService {
	return &HierarchyService{
		taskRepo:  taskRepo,
		relRepo:   relRepo,
		publisher: publisherOrNoop(publisher),
		log:       log,
	}
}

// SetParent moves a task under parentID, or to the root when parentID is nil.
// Only the parent_id column changes.
func (s *HierarchyService) SetParent(ctx context.Context, identity string, taskID uint64, parentID *uint64) error {
	task, err := findVisibleTask(ctx, s.taskRepo, identity, taskID)
	if err != nil {
		return err
	}

	if err := s.checkParent(ctx, identity, taskID, parentID); err != nil {
		return err
	}

	if err := s.taskRepo.SetParent(ctx, taskID, identity, parentID); err != nil {
		return mapWriteError(err, "failed to set parent")
	}

	s.publisher.Publish(ScopeOf(task))
	return nil
}

// checkParent verifies that parentID is visible and that the move would not
// put taskID on its own ancestor chain. It performs no writes.
func (s *HierarchyService) checkParent(ctx context.Context, identity string, taskID uint64, parentID *uint64) error {
	if parentID == nil {
		return nil
	}
	if *parentID == taskID {
		return ErrHierarchyCycle
	}

	parent, err := findVisibleTask(ctx, s.taskRepo, identity, *parentID)
	if err != nil {
		return err
	}

	visited := map[uint64]struct{}{parent.ID: {}}
	next := parent.ParentID
	for next != nil {
		if *next == taskID {
			return ErrHierarchyCycle
		}
		if _, seen := visited[*next]; seen {
			// A loop that does not pass through taskID predates this move.
			return nil
		}
		visited[*next] = struct{}{}

		ancestor, err := s.taskRepo.ParentID(ctx, *next)
		if repository.IsNotFound(err) {
			// Dangling pointer: the chain ends at an orphan.
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to walk ancestors: %w", err)
		}
		next = ancestor
	}
	return nil
}

// AddRelationship records that enablerID enables enabledID in the caller's
// scope. Adding an edge that already exists in that scope returns the
// existing edge. A shared edge does not stand in for the caller's own, so a
// later remove by the caller leaves the shared edge alone.
func (s *HierarchyService) AddRelationship(ctx context.Context, identity string, enablerID, enabledID uint64) (*models.TaskRelationship, error) {
	if enablerID == enabledID {
		return nil, ErrSelfRelationship
	}
	if err := s.ensureEndpointsVisible(ctx, identity, enablerID, enabledID); err != nil {
		return nil, err
	}

	scope := identityPtr(identity)
	existing, err := s.relRepo.Find(ctx, enablerID, enabledID, scope)
	if err == nil {
		return existing, nil
	}
	if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to look up relationship: %w", err)
	}

	rel := &models.TaskRelationship{
		EnablerTaskID: enablerID,
		EnabledTaskID: enabledID,
		UserID:        scope,
	}
	if err := s.relRepo.Create(ctx, rel); err != nil {
		return nil, fmt.Errorf("failed to create relationship: %w", err)
	}

	s.publisher.Publish(edgeScope(identity, scope == nil))
	return rel, nil
}

// RemoveRelationship deletes the edge between two tasks that the caller sees.
// The caller's own edge goes first; a shared edge is only removed when it is
// the only one. Removing an edge that does not exist is not an error.
func (s *HierarchyService) RemoveRelationship(ctx context.Context, identity string, enablerID, enabledID uint64) (int64, error) {
	rel, err := s.relRepo.FindVisible(ctx, enablerID, enabledID, identity)
	if repository.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up relationship: %w", err)
	}

	removed, err := s.relRepo.Delete(ctx, enablerID, enabledID, rel.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete relationship: %w", err)
	}

	if removed > 0 {
		s.publisher.Publish(edgeScope(identity, rel.UserID == nil))
	}
	return removed, nil
}

// ListRelationships lists visible edges, optionally only those touching taskID
func (s *HierarchyService) ListRelationships(ctx context.Context, identity string, taskID *uint64) ([]models.TaskRelationship, error) {
	rels, err := s.relRepo.ListVisible(ctx, identity, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	return rels, nil
}

// LeverageScores returns the number of tasks each of ids directly enables,
// counting only edges in the caller's scope.
func (s *HierarchyService) LeverageScores(ctx context.Context, identity string, ids []uint64) (map[uint64]int, error) {
	scores, err := s.relRepo.CountByEnabler(ctx, identity, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to count leverage: %w", err)
	}
	return scores, nil
}

func (s *HierarchyService) ensureEndpointsVisible(ctx context.Context, identity string, ids ...uint64) error {
	for _, id := range ids {
		if _, err := findVisibleTask(ctx, s.taskRepo, identity, id); err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				return ErrRelationshipNotVisible
			}
			return err
		}
	}
	return nil
}

// edgeScope: an edge without a user scope counts toward everyone's leverage.
func edgeScope(identity string, shared bool) Scope {
	if shared || identity == "" {
		return Scope{Everyone: true}
	}
	return Scope{Owner: identity}
}
