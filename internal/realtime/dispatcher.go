package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/yukikurage/priority-matrix/internal/dto"
	apierrors "github.com/yukikurage/priority-matrix/internal/errors"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"github.com/yukikurage/priority-matrix/internal/services"
	"github.com/yukikurage/priority-matrix/internal/utils"
	"go.uber.org/zap"
)

// Dispatcher maps inbound websocket events onto engine operations. Results
// and failures go back to the requesting client only; snapshot fan-out
// happens inside the services through the hub.
type Dispatcher struct {
	hub       *Hub
	tasks     *services.TaskService
	timers    *services.TimerService
	hierarchy *services.HierarchyService
	imports   *services.ImportService
	timeout   time.Duration
	log       *zap.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(
	hub *Hub,
	tasks *services.TaskService,
	timers *services.TimerService,
	hierarchy *services.HierarchyService,
	imports *services.ImportService,
	timeout time.Duration,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		hub:       hub,
		tasks:     tasks,
		timers:    timers,
		hierarchy: hierarchy,
		imports:   imports,
		timeout:   timeout,
		log:       log,
	}
}

// Handle runs one inbound event for c
func (d *Dispatcher) Handle(c *Client, in Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	identity := c.Identity()

	switch in.Event {
	case EventUpdateTasks:
		if err := d.hub.SendSnapshot(c, EventUpdateTasks); err != nil {
			d.fail(c, in.Event, err)
		}

	case "addTask":
		var payload map[string]any
		if !d.decode(c, in, &payload) {
			return
		}
		task, err := d.tasks.AddTask(ctx, identity, services.ParseTaskInput(payload))
		if err != nil {
			d.fail(c, in.Event, err)
			return
		}
		d.hub.Send(c, EventTaskAdded, dto.ToTaskDTO(*task, 0))

	case "editTask", "modifyTask":
		var payload map[string]any
		if !d.decode(c, in, &payload) {
			return
		}
		input := services.ParseTaskInput(payload)
		var err error
		if in.Event == "editTask" {
			_, err = d.tasks.EditTask(ctx, identity, input)
		} else {
			_, err = d.tasks.ModifyTask(ctx, identity, input)
		}
		if err != nil {
			d.fail(c, in.Event, err)
		}

	case "deleteTask":
		var payload TaskIDPayload
		if !d.decode(c, in, &payload) {
			return
		}
		if err := d.tasks.DeleteTask(ctx, identity, payload.TaskID); err != nil {
			d.fail(c, in.Event, err)
		}

	case "toggleDone":
		var payload TaskIDPayload
		if !d.decode(c, in, &payload) {
			return
		}
		if _, err := d.tasks.ToggleDone(ctx, identity, payload.TaskID); err != nil {
			d.fail(c, in.Event, err)
		}

	case "addSubtask":
		var payload subtaskPayload
		if !d.decode(c, in, &payload) {
			return
		}
		task, err := d.tasks.AddSubtask(ctx, identity, uint64(payload.ParentID), services.ParseTaskInput(payload.Subtask))
		if err != nil {
			d.fail(c, in.Event, err)
			return
		}
		d.hub.Send(c, EventTaskAdded, dto.ToTaskDTO(*task, 0))

	case "updateSubtask":
		var payload subtaskPayload
		if !d.decode(c, in, &payload) {
			return
		}
		if _, err := d.tasks.UpdateSubtask(ctx, identity, services.ParseTaskInput(payload.Subtask)); err != nil {
			d.fail(c, in.Event, err)
		}

	case "setTaskParent":
		var payload setParentPayload
		if !d.decode(c, in, &payload) {
			return
		}
		parentID := payload.ParentID.ptr()
		if err := d.hierarchy.SetParent(ctx, identity, uint64(payload.TaskID), parentID); err != nil {
			d.hub.Send(c, EventSetTaskParentError, errorPayload(in.Event, err))
			return
		}
		d.hub.Send(c, EventTaskParentSet, map[string]any{"taskId": uint64(payload.TaskID), "parentId": parentID})

	case "updateTaskNotes", "updateTaskStatus", "updateTaskIcon", "updateTaskColor":
		var payload attributePayload
		if !d.decode(c, in, &payload) {
			return
		}
		if err := d.updateAttribute(ctx, identity, in.Event, payload); err != nil {
			d.fail(c, in.Event, err)
		}

	case "startTimer":
		var payload TaskIDPayload
		if !d.decode(c, in, &payload) {
			return
		}
		result, err := d.timers.Start(ctx, identity, payload.TaskID)
		if err != nil {
			d.hub.Send(c, EventTimerError, errorPayload(in.Event, err))
			return
		}
		d.hub.Send(c, EventTimerStarted, result)

	case "stopTimer":
		var payload TaskIDPayload
		if !d.decode(c, in, &payload) {
			return
		}
		result, err := d.timers.Stop(ctx, identity, payload.TaskID)
		if err != nil {
			d.hub.Send(c, EventTimerError, errorPayload(in.Event, err))
			return
		}
		d.hub.Send(c, EventTimerStopped, result)

	case "getTimeLogs":
		var payload TaskIDPayload
		if !d.decode(c, in, &payload) {
			return
		}
		logs, _, err := d.timers.TimeLogs(ctx, identity, payload.TaskID, utils.AllRows())
		if err != nil {
			d.fail(c, in.Event, err)
			return
		}
		d.hub.Send(c, EventTimeLogs, timeLogsPayload{TaskID: payload.TaskID, Logs: dto.ToTimeLogDTOs(logs)})

	case "addTaskRelationship":
		var payload relationshipPayload
		if !d.decode(c, in, &payload) {
			return
		}
		if _, err := d.hierarchy.AddRelationship(ctx, identity, uint64(payload.EnablerID), uint64(payload.EnabledID)); err != nil {
			d.fail(c, in.Event, err)
		}

	case "removeTaskRelationship":
		var payload relationshipPayload
		if !d.decode(c, in, &payload) {
			return
		}
		if _, err := d.hierarchy.RemoveRelationship(ctx, identity, uint64(payload.EnablerID), uint64(payload.EnabledID)); err != nil {
			d.fail(c, in.Event, err)
		}

	case "getTaskRelationships":
		var payload relationshipsQuery
		if len(in.Data) > 0 && !d.decode(c, in, &payload) {
			return
		}
		rels, err := d.hierarchy.ListRelationships(ctx, identity, payload.TaskID.ptr())
		if err != nil {
			d.fail(c, in.Event, err)
			return
		}
		d.hub.Send(c, EventTaskRelationships, dto.ToRelationshipDTOs(rels))

	case "getTaskDetails":
		var payload TaskIDPayload
		if !d.decode(c, in, &payload) {
			return
		}
		details, err := d.tasks.GetTaskDetails(ctx, identity, payload.TaskID)
		if err != nil {
			if errors.Is(err, services.ErrTaskNotFound) {
				d.hub.Send(c, EventTaskDetails, nil)
				return
			}
			d.fail(c, in.Event, err)
			return
		}
		d.hub.Send(c, EventTaskDetails, details)

	case "importBatch":
		var payload importPayload
		if !d.decode(c, in, &payload) {
			return
		}
		result, err := d.imports.ImportRecords(ctx, identity, payload.Tasks)
		if err != nil {
			d.fail(c, in.Event, err)
			return
		}
		d.hub.Send(c, EventImportCompleted, result)

	default:
		d.hub.Send(c, EventError, ErrorPayload{Event: in.Event, Code: apierrors.ErrCodeInvalidInput, Message: "Unknown event"})
	}
}

func (d *Dispatcher) updateAttribute(ctx context.Context, identity, event string, p attributePayload) error {
	taskID := uint64(p.TaskID)
	var err error
	switch event {
	case "updateTaskNotes":
		_, err = d.tasks.UpdateNotes(ctx, identity, taskID, p.Notes)
	case "updateTaskStatus":
		_, err = d.tasks.UpdateStatus(ctx, identity, taskID, p.Status)
	case "updateTaskIcon":
		_, err = d.tasks.UpdateIcon(ctx, identity, taskID, p.Icon)
	case "updateTaskColor":
		_, err = d.tasks.UpdateColor(ctx, identity, taskID, p.Color)
	}
	return err
}

func (d *Dispatcher) decode(c *Client, in Inbound, v any) bool {
	if err := json.Unmarshal(in.Data, v); err != nil {
		d.hub.Send(c, EventError, ErrorPayload{Event: in.Event, Code: apierrors.ErrCodeInvalidInput, Message: "Invalid payload"})
		return false
	}
	return true
}

func (d *Dispatcher) fail(c *Client, event string, err error) {
	payload := errorPayload(event, err)
	if payload.Code == apierrors.ErrCodePersistenceFailure || payload.Code == apierrors.ErrCodeInternalError {
		d.log.Error("websocket request failed", zap.String("event", event), zap.Error(err))
	}
	d.hub.Send(c, EventError, payload)
}

// errorPayload maps engine errors to client-facing codes
func errorPayload(event string, err error) ErrorPayload {
	payload := ErrorPayload{Event: event, Message: err.Error()}

	var perr *repository.PersistenceError
	switch {
	case errors.Is(err, services.ErrNameRequired):
		payload.Code = apierrors.ErrCodeMissingField
	case errors.Is(err, services.ErrTaskNotFound):
		payload.Code = apierrors.ErrCodeNotFound
	case errors.Is(err, services.ErrNoActiveTimer):
		payload.Code = apierrors.ErrCodeNoActiveTimer
	case errors.Is(err, services.ErrHierarchyCycle):
		payload.Code = apierrors.ErrCodeHierarchyCycle
	case errors.Is(err, services.ErrSelfRelationship):
		payload.Code = apierrors.ErrCodeSelfRelationship
	case errors.Is(err, services.ErrRelationshipNotVisible):
		payload.Code = apierrors.ErrCodeNotVisible
	case errors.As(err, &perr):
		payload.Code = apierrors.ErrCodePersistenceFailure
		payload.Message = "Storage is unavailable"
	default:
		payload.Code = apierrors.ErrCodeInternalError
		payload.Message = "Internal server error"
	}
	return payload
}
