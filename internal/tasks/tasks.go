// package tasks runs multi-request dashboard operations over the resilient client.
//
// The core abstraction is OverviewEngine, which reads the dashboard sections concurrently and exports them.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songdesk/internal/services"
	"github.com/desertthunder/songdesk/internal/shared"
	"golang.org/x/time/rate"
)

// APIClient is the read side of [services.Client].
type APIClient interface {
	Get(ctx context.Context, path string) (*services.APIResponse, error)
}

// unreachableReporter is implemented by clients that track backend reachability.
type unreachableReporter interface {
	Unreachable() bool
}

// Section is one dashboard area backed by a list endpoint.
type Section struct {
	Name  string
	Title string
	Path  string
}

// DefaultSections are the dashboard areas read by an overview.
var DefaultSections = []Section{
	{Name: "songs", Title: "Songs", Path: "/songs"},
	{Name: "comments", Title: "Comments", Path: "/comments"},
	{Name: "ratings", Title: "Ratings", Path: "/ratings"},
	{Name: "subscriptions", Title: "Subscriptions", Path: "/subscriptions"},
	{Name: "karaoke", Title: "Karaoke", Path: "/karaoke"},
	{Name: "analytics", Title: "Analytics", Path: "/analytics"},
}

// SectionResult is the outcome of reading one section.
//
// Degraded sections hold the empty result synthesized by the client; Err is only set when the read
// itself failed.
type SectionResult struct {
	Section  Section
	Items    []map[string]any
	Count    int
	Degraded bool
	Cause    error
	Err      error
	Duration time.Duration
}

// OverviewResult contains every section read by [OverviewEngine.Overview], in request order.
type OverviewResult struct {
	Sections    []SectionResult
	Degraded    int
	Failed      int
	Unreachable bool
}

// OverviewOpts configures an overview run.
type OverviewOpts struct {
	Sections   []Section // defaults to [DefaultSections]
	NumWorkers int       // concurrent requests (default: 3)
	RateLimit  float64   // requests per second (default: 5)
}

// OverviewEngine reads dashboard sections through the resilient client.
type OverviewEngine struct {
	api    APIClient
	logger *log.Logger
}

// NewOverviewEngine creates a new OverviewEngine.
func NewOverviewEngine(api APIClient, logger *log.Logger) *OverviewEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &OverviewEngine{api: api, logger: shared.WithLogger(logger, "component", "overview")}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *OverviewEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

type sectionJob struct {
	index   int
	section Section
}

// Overview reads every section with a bounded worker pool and a shared rate limiter.
//
// Reads go through the resilient client, so outages and 403s show up as degraded sections rather than
// errors. Only cancellation aborts the run.
func (e *OverviewEngine) Overview(ctx context.Context, progress chan<- ProgressUpdate, opts OverviewOpts) (*OverviewResult, error) {
	if e.api == nil {
		return nil, fmt.Errorf("%w: API client not initialized", shared.ErrServiceUnavailable)
	}

	if len(opts.Sections) == 0 {
		opts.Sections = DefaultSections
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 3
	}
	if opts.NumWorkers > len(opts.Sections) {
		opts.NumWorkers = len(opts.Sections)
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	total := len(opts.Sections)

	jobs := make(chan sectionJob, total)
	results := make(chan sectionJob, total)
	sections := make([]SectionResult, total)

	for i, s := range opts.Sections {
		jobs <- sectionJob{index: i, section: s}
	}
	close(jobs)

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					sections[job.index] = SectionResult{Section: job.section, Err: err}
					results <- job
					continue
				}
				e.sendProgress(progress, fetchSectionUpdate(job.index+1, total, job.section))
				sections[job.index] = e.readSection(ctx, job.section)
				results <- job
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for job := range results {
		completed++
		e.sendProgress(progress, sectionDoneUpdate(completed, total, sections[job.index]))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &OverviewResult{Sections: sections}
	for _, s := range sections {
		if s.Degraded {
			result.Degraded++
		}
		if s.Err != nil {
			result.Failed++
		}
	}
	if r, ok := e.api.(unreachableReporter); ok {
		result.Unreachable = r.Unreachable()
	}
	return result, nil
}

func (e *OverviewEngine) readSection(ctx context.Context, s Section) SectionResult {
	start := time.Now()
	res := SectionResult{Section: s}

	resp, err := e.api.Get(ctx, s.Path)
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Warn("section read failed", "section", s.Name, "error", err)
		res.Err = err
		return res
	}

	res.Items = resp.Items()
	res.Count = len(res.Items)
	res.Degraded = resp.Degraded
	res.Cause = resp.Cause
	return res
}
