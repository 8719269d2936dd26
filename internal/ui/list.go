package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/songdesk/internal/formatter"
	"github.com/desertthunder/songdesk/internal/tasks"
)

var (
	_ list.Item = sectionItem{}
	_ list.Item = recordItem{}
)

// sectionItem wraps [tasks.SectionResult] to implement [list.Item].
type sectionItem struct {
	result tasks.SectionResult
}

func (i sectionItem) FilterValue() string { return i.result.Section.Title }
func (i sectionItem) Title() string       { return i.result.Section.Title }
func (i sectionItem) Description() string {
	switch {
	case i.result.Err != nil:
		return fmt.Sprintf("failed • %v", i.result.Err)
	case i.result.Degraded:
		return "no data • backend degraded"
	default:
		return fmt.Sprintf("%d records • %s", i.result.Count, i.result.Duration.Round(time.Millisecond))
	}
}

// recordItem wraps one list entry returned by a section endpoint.
type recordItem struct {
	record map[string]any
}

var titleKeys = []string{"title", "name", "email", "label"}

func (i recordItem) FilterValue() string { return i.Title() }
func (i recordItem) Title() string {
	for _, k := range titleKeys {
		if v, ok := i.record[k]; ok && v != nil {
			return formatter.Cell(v)
		}
	}
	return formatter.Cell(i.record["id"])
}
func (i recordItem) Description() string {
	if id, ok := i.record["id"]; ok {
		return fmt.Sprintf("id %s • %d fields", formatter.Cell(id), len(i.record))
	}
	return fmt.Sprintf("%d fields", len(i.record))
}
