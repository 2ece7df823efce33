package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"github.com/yukikurage/priority-matrix/internal/testutil"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T, tasks ...models.Task) (*app, *bytes.Buffer) {
	t.Helper()

	repo := repository.NewTaskRepository(testutil.NewDB(t))
	for i := range tasks {
		require.NoError(t, repo.Create(context.Background(), &tasks[i]))
	}

	out := &bytes.Buffer{}
	return &app{tasks: repo, log: zap.NewNop(), out: out}, out
}

func TestQuadrant(t *testing.T) {
	assert.Equal(t, "do", quadrant(models.Task{Importance: 9, Urgency: 8}))
	assert.Equal(t, "schedule", quadrant(models.Task{Importance: 9, Urgency: 2}))
	assert.Equal(t, "delegate", quadrant(models.Task{Importance: 5, Urgency: 6}))
	assert.Equal(t, "eliminate", quadrant(models.Task{Importance: 5, Urgency: 5}))
}

func TestPriorityReport(t *testing.T) {
	a, out := newTestApp(t,
		models.Task{Name: "Low", Importance: 2, Urgency: 2},
		models.Task{Name: "High", Importance: 9, Urgency: 9},
		models.Task{Name: "Finished", Importance: 10, Urgency: 10, Done: true},
	)

	require.NoError(t, (&reportCommand{app: a, Limit: 20}).Execute(nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "High")
	assert.Contains(t, lines[2], "Low")
}

func TestRandomizePriorities_StaysOnScale(t *testing.T) {
	owner := "alice"
	a, _ := newTestApp(t,
		models.Task{Name: "Shared", Importance: 5, Urgency: 5},
		models.Task{Name: "Owned", Importance: 5, Urgency: 5, UserID: &owner},
	)

	require.NoError(t, (&randomizeCommand{app: a, Seed: 42}).Execute(nil))

	tasks, err := a.tasks.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.GreaterOrEqual(t, task.Importance, 0)
		assert.LessOrEqual(t, task.Importance, 10)
		assert.GreaterOrEqual(t, task.Urgency, 0)
		assert.LessOrEqual(t, task.Urgency, 10)
	}
}

type vanishingRepo struct {
	repository.TaskRepository
	deleted uint64
}

func (r vanishingRepo) UpdateVisible(ctx context.Context, id uint64, identity string, fields map[string]any) error {
	if id == r.deleted {
		return repository.ErrNoRowsAffected
	}
	return r.TaskRepository.UpdateVisible(ctx, id, identity, fields)
}

func TestRandomizePriorities_SkipsDeletedTask(t *testing.T) {
	a, out := newTestApp(t,
		models.Task{Name: "Gone", Importance: 5, Urgency: 5},
		models.Task{Name: "Kept", Importance: 5, Urgency: 5},
	)
	tasks, err := a.tasks.ListAll(context.Background())
	require.NoError(t, err)
	a.tasks = vanishingRepo{TaskRepository: a.tasks, deleted: tasks[0].ID}

	require.NoError(t, (&randomizeCommand{app: a, Seed: 7}).Execute(nil))
	assert.Equal(t, "Randomized 2 tasks\n", out.String())
}

func TestClearImported(t *testing.T) {
	a, out := newTestApp(t,
		models.Task{Name: "Kept"},
		models.Task{Name: "Imported 1"},
		models.Task{Name: "Imported 2"},
	)

	require.NoError(t, (&clearImportedCommand{app: a, Keep: 1}).Execute(nil))
	assert.Equal(t, "Deleted 2 tasks\n", out.String())

	tasks, err := a.tasks.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Kept", tasks[0].Name)
}
