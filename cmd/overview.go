package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/desertthunder/songdesk/internal/formatter"
	"github.com/desertthunder/songdesk/internal/shared"
	"github.com/desertthunder/songdesk/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Overview reads every dashboard section and prints a summary, or exports the sections with --output.
func (r *Runner) Overview(ctx context.Context, cmd *cli.Command) error {
	sections, err := selectSections(cmd.StringSlice("section"))
	if err != nil {
		return err
	}
	opts := tasks.OverviewOpts{
		Sections:   sections,
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate"),
	}

	s, err := r.open(stackOpts{})
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := r.requireSession(ctx, s); err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Info(update.Message, "phase", update.Phase)
		}
	}()

	if dir := cmd.String("output"); dir != "" {
		format, err := formatter.ParseFormat(cmd.String("format"))
		if err != nil {
			close(progress)
			<-done
			return err
		}

		result, err := s.engine.Export(ctx, progress, tasks.ExportOpts{OverviewOpts: opts, Format: format, OutputDir: dir})
		close(progress)
		<-done
		if err != nil {
			return err
		}
		r.writeOverview(result.Overview)
		return r.writePlain("\n✓ Exported to %s (manifest: %s)\n", result.OutputDirectory, result.ManifestPath)
	}

	result, err := s.engine.Overview(ctx, progress, opts)
	close(progress)
	<-done
	if err != nil {
		return err
	}
	r.writeOverview(result)
	return nil
}

func (r *Runner) writeOverview(result *tasks.OverviewResult) {
	r.writePlainHeader("Dashboard Overview")
	for _, s := range result.Sections {
		switch {
		case s.Err != nil:
			r.writePlain("✗ %-14s %v\n", s.Section.Title, s.Err)
		case s.Degraded:
			r.writePlain("! %-14s no data (%v)\n", s.Section.Title, s.Cause)
		default:
			r.writePlain("✓ %-14s %d records\n", s.Section.Title, s.Count)
		}
	}
	if result.Unreachable {
		r.writePlainln("Backend unreachable: sections without data are not empty, they were not read.")
	}
}

func selectSections(names []string) ([]tasks.Section, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var sections []tasks.Section
	for _, name := range names {
		i := slices.IndexFunc(tasks.DefaultSections, func(s tasks.Section) bool { return s.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("%w: unknown section %q", shared.ErrInvalidArgument, name)
		}
		sections = append(sections, tasks.DefaultSections[i])
	}
	return sections, nil
}
