package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/yukikurage/priority-matrix/internal/dto"
	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/repository"
)

// Scope names the connections whose snapshot a mutation may have changed.
type Scope struct {
	// Everyone is set when the touched task was ownerless.
	Everyone bool
	// Owner is the identity whose connections must be refreshed otherwise.
	Owner string
}

// Publisher pushes fresh snapshots after a successful mutation.
type Publisher interface {
	Publish(scope Scope)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Scope) {}

func publisherOrNoop(p Publisher) Publisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

// ScopeOf derives the broadcast scope from the task as it was before the
// mutation. Ownership only ever moves from nil to an identity, so an
// ownerless "before" also covers a task that was just claimed.
func ScopeOf(task *models.Task) Scope {
	if task.IsOwnerless() {
		return Scope{Everyone: true}
	}
	return Scope{Owner: *task.UserID}
}

// Recipients reports whether a connection bound to identity is affected.
func (s Scope) Recipients(identity string) bool {
	return s.Everyone || (identity != "" && identity == s.Owner)
}

// VisibilityService computes per-identity task snapshots
type VisibilityService struct {
	taskRepo repository.TaskRepository
	relRepo  repository.RelationshipRepository
}

// NewVisibilityService creates a new VisibilityService
func NewVisibilityService(taskRepo repository.TaskRepository, relRepo repository.RelationshipRepository) *VisibilityService {
	return &VisibilityService{
		taskRepo: taskRepo,
		relRepo:  relRepo,
	}
}

// VisibleTasks returns the display-ordered snapshot for identity, with
// leverage scores attached and orphans promoted to roots.
func (s *VisibilityService) VisibleTasks(ctx context.Context, identity string) ([]dto.TaskDTO, error) {
	tasks, err := s.taskRepo.ListVisible(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch visible tasks: %w", err)
	}

	ids := make([]uint64, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}

	leverage, err := s.relRepo.CountByEnabler(ctx, identity, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to compute leverage scores: %w", err)
	}

	return buildSnapshot(tasks, leverage), nil
}

func buildSnapshot(tasks []models.Task, leverage map[uint64]int) []dto.TaskDTO {
	visible := make(map[uint64]struct{}, len(tasks))
	for _, task := range tasks {
		visible[task.ID] = struct{}{}
	}

	promoted := false
	snapshot := make([]dto.TaskDTO, len(tasks))
	for i, task := range tasks {
		item := dto.ToTaskDTO(task, leverage[task.ID])
		if item.ParentID != nil {
			if _, ok := visible[*item.ParentID]; !ok {
				item.ParentID = nil
				promoted = true
			}
		}
		snapshot[i] = item
	}

	if promoted {
		slices.SortStableFunc(snapshot, compareDisplay)
	}
	return snapshot
}

// compareDisplay mirrors database.DisplayOrder.
func compareDisplay(a, b dto.TaskDTO) int {
	if c := cmp.Compare(rootRank(a), rootRank(b)); c != 0 {
		return c
	}
	if a.ParentID != nil && b.ParentID != nil {
		if c := cmp.Compare(*a.ParentID, *b.ParentID); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(b.Importance, a.Importance); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Urgency, a.Urgency); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func rootRank(t dto.TaskDTO) int {
	if t.ParentID == nil {
		return 0
	}
	return 1
}

// claimFields adds the owner column when an authenticated identity writes an
// ownerless task. The repository guards the statement, so a task claimed by
// someone else in between is left alone.
func claimFields(task *models.Task, identity string, fields map[string]any) map[string]any {
	if identity != "" && task.IsOwnerless() {
		fields["user_id"] = identity
	}
	return fields
}

func identityPtr(identity string) *string {
	if identity == "" {
		return nil
	}
	return &identity
}
