package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Outbound events
const (
	EventInitialData        = "initialData"
	EventUpdateTasks        = "updateTasks"
	EventTaskAdded          = "taskAdded"
	EventTimerStarted       = "timerStarted"
	EventTimerStopped       = "timerStopped"
	EventTimerError         = "timerError"
	EventTaskDetails        = "taskDetails"
	EventTaskRelationships  = "taskRelationships"
	EventTimeLogs           = "timeLogs"
	EventTaskParentSet      = "taskParentSet"
	EventSetTaskParentError = "setTaskParentError"
	EventImportCompleted    = "importCompleted"
	EventError              = "error"
)

// Envelope is the frame exchanged in both directions
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Inbound is a received frame whose payload is decoded per event
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ErrorPayload reports a failed request to the client that sent it
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TaskIDPayload accepts either a bare id or {"taskId": id}
type TaskIDPayload struct {
	TaskID uint64
}

func (p *TaskIDPayload) UnmarshalJSON(data []byte) error {
	var obj struct {
		TaskID flexibleID `json:"taskId"`
		ID     flexibleID `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		p.TaskID = uint64(obj.TaskID)
		if p.TaskID == 0 {
			p.TaskID = uint64(obj.ID)
		}
		return nil
	}

	var id flexibleID
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	p.TaskID = uint64(id)
	return nil
}

type subtaskPayload struct {
	Subtask  map[string]any `json:"subtask"`
	ParentID flexibleID     `json:"parentId"`
}

type setParentPayload struct {
	TaskID   flexibleID  `json:"taskId"`
	ParentID *flexibleID `json:"parentId"`
}

type attributePayload struct {
	TaskID flexibleID `json:"taskId"`
	Notes  string     `json:"notes"`
	Status string     `json:"status"`
	Icon   string     `json:"icon"`
	Color  string     `json:"color"`
}

type relationshipPayload struct {
	EnablerID flexibleID `json:"enablerId"`
	EnabledID flexibleID `json:"enabledId"`
}

type relationshipsQuery struct {
	TaskID *flexibleID `json:"taskId"`
}

type importPayload struct {
	Tasks []map[string]any `json:"tasks"`
}

type timeLogsPayload struct {
	TaskID uint64 `json:"taskId"`
	Logs   any    `json:"logs"`
}

// flexibleID decodes ids sent as numbers or numeric strings
type flexibleID uint64

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid id %q", s)
	}
	*f = flexibleID(n)
	return nil
}

func (f *flexibleID) ptr() *uint64 {
	if f == nil || *f == 0 {
		return nil
	}
	id := uint64(*f)
	return &id
}
