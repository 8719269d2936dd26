// package formatter renders backend list responses as JSON, CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/desertthunder/songdesk/internal/shared"
)

// Format is an output format name.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// ParseFormat accepts a format name or a common alias (md, text).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatCSV, FormatText:
		return string(f)
	default:
		return "json"
	}
}

// Table is a flattened view of a list of JSON objects.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]string
	Items   []map[string]any
}

// NewTable builds a table from items. Without explicit columns, every key seen is used, with id first
// and the rest sorted.
func NewTable(title string, items []map[string]any, columns ...string) *Table {
	if len(columns) == 0 {
		columns = inferColumns(items)
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = Cell(item[col])
		}
		rows = append(rows, row)
	}

	return &Table{Title: title, Columns: columns, Rows: rows, Items: items}
}

func inferColumns(items []map[string]any) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, item := range items {
		for k := range item {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)

	if i := slices.Index(keys, "id"); i > 0 {
		keys = append([]string{"id"}, slices.Delete(keys, i, i+1)...)
	}
	return keys
}

// Cell renders a decoded JSON value for a table cell. Nested values are rendered as compact JSON.
func Cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// ToCSV renders the table with a header row.
func ToCSV(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ToMarkdown renders the table as a Markdown heading and pipe table.
func ToMarkdown(t *Table) ([]byte, error) {
	var buf bytes.Buffer

	if t.Title != "" {
		fmt.Fprintf(&buf, "# %s\n\n", t.Title)
	}
	fmt.Fprintf(&buf, "**Records**: %d\n\n", len(t.Rows))

	if len(t.Columns) == 0 {
		return buf.Bytes(), nil
	}

	buf.WriteString("| " + strings.Join(escapeAll(t.Columns), " | ") + " |\n")
	buf.WriteString("|" + strings.Repeat(" --- |", len(t.Columns)) + "\n")
	for _, row := range t.Rows {
		buf.WriteString("| " + strings.Join(escapeAll(row), " | ") + " |\n")
	}
	return buf.Bytes(), nil
}

func escapeAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "|", `\|`)
		out[i] = strings.ReplaceAll(c, "\n", " ")
	}
	return out
}

// ToText renders one numbered line per row with column=value pairs.
func ToText(t *Table) ([]byte, error) {
	var buf bytes.Buffer

	if t.Title != "" {
		fmt.Fprintf(&buf, "%s\n", t.Title)
	}
	fmt.Fprintf(&buf, "Records: %d\n\n", len(t.Rows))

	for i, row := range t.Rows {
		parts := make([]string, 0, len(row))
		for j, cell := range row {
			if cell == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s=%s", t.Columns[j], cell))
		}
		fmt.Fprintf(&buf, "%d. %s\n", i+1, strings.Join(parts, " "))
	}
	return buf.Bytes(), nil
}

// Render encodes the table in format f. JSON output is the original items, pretty-printed.
func Render(t *Table, f Format) ([]byte, error) {
	switch f {
	case FormatCSV:
		return ToCSV(t)
	case FormatMarkdown:
		return ToMarkdown(t)
	case FormatText:
		return ToText(t)
	default:
		items := t.Items
		if items == nil {
			items = []map[string]any{}
		}
		return shared.MarshalJSON(items, true)
	}
}

// WriteExport renders t into dir as {name}.{ext} and returns the file path.
func WriteExport(t *Table, f Format, dir, name string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := Render(t, f)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", f, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.%s", name, f.Extension()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}
	return path, nil
}

// WriteManifest writes v as pretty JSON to path.
func WriteManifest(v any, path string) error {
	data, err := shared.MarshalJSON(v, true)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
