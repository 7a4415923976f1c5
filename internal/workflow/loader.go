// Package workflow loads task definitions from CSV and YAML files and
// converts between the two forms. The loader produces immutable
// domain.Workflow values; it never touches execution state.
package workflow

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrz1836/taskpanel/internal/domain"
	"github.com/mrz1836/taskpanel/internal/errors"
)

// LoadFile parses the workflow file at path. Files ending in .yaml or .yml
// use the YAML form; everything else is treated as CSV. All failures wrap
// errors.ErrWorkflowLoad so the caller can map them to exit code 1.
func LoadFile(path string) (*domain.Workflow, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path comes from the operator's command line
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrWorkflowLoad, err)
	}

	var wf *domain.Workflow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		wf, err = ParseYAML(data)
	default:
		wf, err = ParseCSV(strings.NewReader(string(data)))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", errors.ErrWorkflowLoad, path, err)
	}

	wf.Path = path
	return wf, nil
}

// ParseCSV parses the CSV workflow form.
//
// Two layouts are accepted:
//   - explicit header: first row is "TaskName,Info,<step1>,<step2>,..."
//   - headerless: every row is a task; step display headers are inferred
//     from the commands of the longest row (first token, basename)
//
// Blank rows and rows with an empty first cell are dropped. Rows with only
// a name are dropped. Missing trailing cells are empty (no-op) steps.
func ParseCSV(r io.Reader) (*domain.Workflow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, errors.ErrWorkflowEmpty
	}

	var headers []string
	if isExplicitHeader(rows[0]) {
		for _, cell := range rows[0][2:] {
			headers = append(headers, strings.TrimSpace(cell))
		}
		rows = rows[1:]
	}

	// Rows that carry only a name have nothing to run or annotate.
	tasks := rows[:0]
	for _, row := range rows {
		if len(row) >= 2 {
			tasks = append(tasks, row)
		}
	}
	if len(tasks) == 0 {
		return nil, errors.ErrWorkflowEmpty
	}

	// Widen the header set to the longest row so no command is dropped.
	width := len(headers)
	for _, row := range tasks {
		if len(row)-2 > width {
			width = len(row) - 2
		}
	}
	if headers == nil {
		headers = inferHeaders(tasks, width)
	}
	for len(headers) < width {
		headers = append(headers, fmt.Sprintf("step%d", len(headers)+1))
	}

	wf := &domain.Workflow{Headers: headers}
	for _, row := range tasks {
		task := domain.Task{
			Name:  strings.TrimSpace(row[0]),
			Info:  strings.TrimSpace(row[1]),
			Steps: make([]domain.Step, len(headers)),
		}
		for j := range headers {
			task.Steps[j].Header = headers[j]
			if 2+j < len(row) {
				task.Steps[j].Command = row[2+j]
			}
		}
		wf.Tasks = append(wf.Tasks, task)
	}

	if err := validate(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// isExplicitHeader reports whether the row is the documented CSV header
// line rather than a task.
func isExplicitHeader(row []string) bool {
	return len(row) >= 2 &&
		strings.EqualFold(strings.TrimSpace(row[0]), "TaskName") &&
		strings.EqualFold(strings.TrimSpace(row[1]), "Info")
}

// inferHeaders derives display headers from the commands of the longest
// row: the first whitespace token of each command, reduced to its basename.
func inferHeaders(rows [][]string, width int) []string {
	var longest []string
	for _, row := range rows {
		if len(row)-2 == width {
			longest = row[2:]
			break
		}
	}

	headers := make([]string, width)
	for j := range headers {
		name := ""
		if j < len(longest) {
			name = commandToken(longest[j])
		}
		if name == "" {
			name = fmt.Sprintf("step%d", j+1)
		}
		headers[j] = name
	}
	return headers
}

// commandToken returns the basename of a command's first token, or "" for
// an empty cell.
func commandToken(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return filepath.Base(fields[0])
}

// validate applies the structural rules shared by both workflow forms.
func validate(wf *domain.Workflow) error {
	if len(wf.Tasks) == 0 {
		return errors.ErrWorkflowEmpty
	}
	seen := make(map[string]struct{}, len(wf.Tasks))
	for i := range wf.Tasks {
		name := wf.Tasks[i].Name
		if name == "" {
			return fmt.Errorf("task %d: name %w", i, errors.ErrEmptyValue)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", errors.ErrDuplicateTaskName, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
