package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/yukikurage/priority-matrix/internal/models"
)

var ErrEmptyCSV = errors.New("csv has no header row")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ExportColumns is the header written by WriteCSV. The id column lets an
// export be re-imported with its hierarchy intact.
var ExportColumns = []string{
	"id",
	"name",
	"importance",
	"urgency",
	"done",
	"link",
	"due_date",
	"notes",
	"parent_id",
	"created_at",
	"completed_at",
	"total_time_spent",
	"pomodoro_count",
	"category",
	"status",
}

const template = `name,importance,urgency,done,link,due_date,notes,parent_id
Sample Task,8,7,false,https://example.com,2025-12-31,This is a sample note,
Another Task,5,5,false,,,,
`

// ReadCSV parses a CSV document with a header row into raw records keyed by
// header. A leading BOM is dropped, rows may have more or fewer cells than
// the header and blank lines are skipped.
func ReadCSV(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []map[string]any
	for {
		line, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		if blankLine(line) {
			continue
		}

		record := make(map[string]any, len(header))
		for i, column := range header {
			if column == "" || i >= len(line) {
				continue
			}
			record[column] = strings.TrimSpace(line[i])
		}
		records = append(records, record)
	}
	return records, nil
}

// ParseCSV reads and normalizes a CSV document in one step.
func ParseCSV(r io.Reader) ([]Row, error) {
	records, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return NormalizeAll(records), nil
}

// WriteCSV writes tasks in export order under ExportColumns.
func WriteCSV(w io.Writer, tasks []models.Task) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ExportColumns); err != nil {
		return err
	}

	for _, task := range tasks {
		record := []string{
			strconv.FormatUint(task.ID, 10),
			task.Name,
			strconv.Itoa(task.Importance),
			strconv.Itoa(task.Urgency),
			strconv.FormatBool(task.Done),
			deref(task.Link),
			deref(task.DueDate),
			deref(task.Notes),
			formatID(task.ParentID),
			task.CreatedAt.UTC().Format(time.RFC3339),
			formatTime(task.CompletedAt),
			strconv.FormatInt(task.TotalTimeSpent, 10),
			strconv.Itoa(task.PomodoroCount),
			deref(task.Category),
			deref(task.Status),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteTemplate writes a small example document showing the accepted columns.
func WriteTemplate(w io.Writer) error {
	_, err := io.WriteString(w, template)
	return err
}

func blankLine(line []string) bool {
	for _, cell := range line {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatID(id *uint64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatUint(*id, 10)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
