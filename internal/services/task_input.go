package services

import (
	"strings"

	"github.com/yukikurage/priority-matrix/internal/importer"
	"github.com/yukikurage/priority-matrix/internal/utils"
)

// Column sets each write operation may touch.
var (
	modifyColumns  = []string{"name", "importance", "urgency"}
	editColumns    = []string{"name", "importance", "urgency", "link", "due_date", "notes", "status", "category", "progress", "icon", "color"}
	subtaskColumns = []string{"name", "importance", "urgency", "parent_id", "link", "due_date"}
)

// TaskInput carries the fields a caller sent for a task write. Only keys that
// were present are written; their values are coerced, never rejected, except
// for an empty name.
type TaskInput struct {
	ID     uint64
	values map[string]any
}

// ParseTaskInput reads a task payload as decoded from JSON.
func ParseTaskInput(raw map[string]any) TaskInput {
	in := TaskInput{values: make(map[string]any, len(raw))}
	for key, value := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "id" {
			if f, ok := utils.ParseNumber(value); ok && f > 0 {
				in.ID = uint64(f)
			}
			continue
		}
		in.values[key] = value
	}
	return in
}

// Has reports whether the caller sent column.
func (in TaskInput) Has(column string) bool {
	_, ok := in.values[column]
	return ok
}

func (in TaskInput) name() (string, error) {
	name := strings.TrimSpace(importer.Stringify(in.values["name"]))
	if name == "" {
		return "", ErrNameRequired
	}
	return name, nil
}

// parentID returns the requested parent; nil means "make it a root".
func (in TaskInput) parentID() *uint64 {
	f, ok := utils.ParseNumber(in.values["parent_id"])
	if !ok || f <= 0 {
		return nil
	}
	id := uint64(f)
	return &id
}

func (in TaskInput) text(column string) *string {
	return utils.OptionalString(importer.Stringify(in.values[column]))
}

// fields builds the column map for an update restricted to allowed.
func (in TaskInput) fields(allowed []string) (map[string]any, error) {
	fields := make(map[string]any, len(allowed))
	for _, column := range allowed {
		if !in.Has(column) {
			continue
		}
		switch column {
		case "name":
			name, err := in.name()
			if err != nil {
				return nil, err
			}
			fields[column] = name
		case "importance", "urgency":
			fields[column] = utils.ParseScore(in.values[column])
		case "progress":
			fields[column] = utils.ParseOptionalInt(in.values[column])
		case "parent_id":
			fields[column] = in.parentID()
		default:
			fields[column] = in.text(column)
		}
	}
	return fields, nil
}
