// Package importer turns loosely structured task records (JSON objects, CSV
// lines, AI output) into normalized rows ready for reconciliation.
package importer

import (
	"fmt"
	"math"
	"strings"

	"github.com/yukikurage/priority-matrix/internal/constants"
	"github.com/yukikurage/priority-matrix/internal/utils"
)

// Row is one normalized import record. ExternalID and ParentRef are the
// identifiers used by the source, not database ids.
type Row struct {
	ExternalID     string
	ParentRef      string
	Name           string
	Importance     int
	Urgency        int
	Done           bool
	Link           *string
	DueDate        *string
	Notes          *string
	Category       *string
	Status         *string
	Icon           *string
	Color          *string
	Progress       *int
	TotalTimeSpent int64
	PomodoroCount  int
}

var aliases = map[string][]string{
	"id":               {"id"},
	"name":             {"name", "task", "task name", "title"},
	"importance":       {"importance", "important"},
	"urgency":          {"urgency", "urgent"},
	"done":             {"done"},
	"link":             {"link", "url"},
	"due_date":         {"due_date", "duedate", "due date", "due"},
	"notes":            {"notes", "note", "description"},
	"parent_id":        {"parent_id", "parentid", "parent id"},
	"category":         {"category"},
	"status":           {"status"},
	"progress":         {"progress"},
	"icon":             {"icon"},
	"color":            {"color"},
	"total_time_spent": {"total_time_spent"},
	"pomodoro_count":   {"pomodoro_count"},
}

// Normalize maps a raw record onto a Row. Keys are matched case-insensitively
// after trimming; the first non-empty alias wins.
func Normalize(record map[string]any) Row {
	lowered := make(map[string]any, len(record))
	for key, value := range record {
		lowered[strings.ToLower(strings.TrimSpace(key))] = value
	}

	get := func(field string) any {
		for _, alias := range aliases[field] {
			if v, ok := lowered[alias]; ok && !isBlank(v) {
				return v
			}
		}
		return nil
	}
	text := func(field string) *string {
		return utils.OptionalString(Stringify(get(field)))
	}

	status := text("status")
	row := Row{
		ExternalID:     strings.TrimSpace(Stringify(get("id"))),
		ParentRef:      strings.TrimSpace(Stringify(get("parent_id"))),
		Name:           strings.TrimSpace(Stringify(get("name"))),
		Importance:     utils.ParseScore(get("importance")),
		Urgency:        ParseUrgency(get("urgency")),
		Done:           utils.ParseBool(get("done")) || (status != nil && strings.EqualFold(*status, "completed")),
		Link:           text("link"),
		DueDate:        text("due_date"),
		Notes:          text("notes"),
		Category:       text("category"),
		Status:         status,
		Icon:           text("icon"),
		Color:          text("color"),
		Progress:       utils.ParseOptionalInt(get("progress")),
		TotalTimeSpent: utils.ParseCount(get("total_time_spent")),
		PomodoroCount:  int(utils.ParseCount(get("pomodoro_count"))),
	}
	return row
}

// NormalizeAll normalizes a batch of records, preserving order.
func NormalizeAll(records []map[string]any) []Row {
	rows := make([]Row, len(records))
	for i, record := range records {
		rows[i] = Normalize(record)
	}
	return rows
}

// ParseUrgency accepts the textual labels spreadsheets tend to use in place
// of a number ("Urgent", "Not Urgent") and falls back to score coercion.
func ParseUrgency(value any) int {
	if s, ok := value.(string); ok {
		label := strings.ToLower(strings.TrimSpace(s))
		switch {
		case strings.Contains(label, "not urgent"), strings.Contains(label, "not_urgent"):
			return constants.NotUrgentScore
		case strings.Contains(label, "urgent") && !strings.Contains(label, "not"):
			return constants.UrgentScore
		}
	}
	return utils.ParseScore(value)
}

// Stringify renders scalar JSON and CSV values as text.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}
