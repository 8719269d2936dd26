package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchSection Phase = iota
	SectionDone
	ExportSection
	WriteManifest
)

func (p Phase) String() string {
	switch p {
	case FetchSection:
		return "fetch_section"
	case SectionDone:
		return "section_done"
	case ExportSection:
		return "export_section"
	case WriteManifest:
		return "write_manifest"
	default:
		return ""
	}
}

func fetchSectionUpdate(step, total int, s Section) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSection,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching %s...", s.Title),
	}
}

func sectionDoneUpdate(step, total int, res SectionResult) ProgressUpdate {
	var msg string
	switch {
	case res.Err != nil:
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.Section.Title, res.Err)
	case res.Degraded:
		msg = fmt.Sprintf("[%d/%d] ! %s (no data: %v)", step, total, res.Section.Title, res.Cause)
	default:
		msg = fmt.Sprintf("[%d/%d] ✓ %s (%d records)", step, total, res.Section.Title, res.Count)
	}
	return ProgressUpdate{
		Phase:   SectionDone,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    res,
	}
}

func exportSectionUpdate(step, total int, name, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportSection,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Wrote %s to %s", step, total, name, path),
	}
}

func manifestUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteManifest,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Manifest written to %s", path),
	}
}
