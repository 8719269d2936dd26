package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/desertthunder/songdesk/internal/formatter"
)

// ExportOpts configures [OverviewEngine.Export].
type ExportOpts struct {
	OverviewOpts
	Format    formatter.Format // defaults to JSON
	OutputDir string           // default: songdesk_export_{epoch}
}

// ExportedSection describes one written section file.
type ExportedSection struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	Records  int    `json:"records"`
	Degraded bool   `json:"degraded"`
	Error    string `json:"error,omitempty"`
}

// ExportResult summarizes an export run.
type ExportResult struct {
	Overview        *OverviewResult   `json:"-"`
	OutputDirectory string            `json:"output_directory"`
	Format          formatter.Format  `json:"format"`
	Sections        []ExportedSection `json:"sections"`
	Unreachable     bool              `json:"unreachable"`
	CreatedAt       time.Time         `json:"created_at"`
	ManifestPath    string            `json:"-"`
}

// Export reads an overview and writes one file per section plus an export_manifest.json.
//
// Failed sections are listed in the manifest without a file. Degraded sections are written empty and
// flagged so stale output is never mistaken for real data.
func (e *OverviewEngine) Export(ctx context.Context, prog chan<- ProgressUpdate, opts ExportOpts) (*ExportResult, error) {
	if opts.Format == "" {
		opts.Format = formatter.FormatJSON
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("songdesk_export_%d", time.Now().Unix())
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	overview, err := e.Overview(ctx, prog, opts.OverviewOpts)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{
		Overview:        overview,
		OutputDirectory: opts.OutputDir,
		Format:          opts.Format,
		Sections:        make([]ExportedSection, 0, len(overview.Sections)),
		Unreachable:     overview.Unreachable,
		CreatedAt:       time.Now().UTC(),
	}

	total := len(overview.Sections)
	for i, s := range overview.Sections {
		entry := ExportedSection{Name: s.Section.Name, Records: s.Count, Degraded: s.Degraded}
		if s.Err != nil {
			entry.Error = s.Err.Error()
			result.Sections = append(result.Sections, entry)
			continue
		}

		path, err := formatter.WriteExport(formatter.NewTable(s.Section.Title, s.Items), opts.Format, opts.OutputDir, s.Section.Name)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Path = path
			e.sendProgress(prog, exportSectionUpdate(i+1, total, s.Section.Name, path))
		}
		result.Sections = append(result.Sections, entry)
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	e.sendProgress(prog, manifestUpdate(manifestPath))
	return result, nil
}
