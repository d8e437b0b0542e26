package scraper

import (
	"context"
	"fmt"

	"brickwatch/internal/domain/entity"
)

// Registry resolves queue job names to source workers. The worker pool
// dispatches through it; the control plane uses it to answer which sources
// exist.
type Registry struct {
	scrapers map[string]Scraper
}

// NewRegistry indexes the given workers by their job name.
func NewRegistry(scrapers ...Scraper) *Registry {
	byName := make(map[string]Scraper, len(scrapers))
	for _, s := range scrapers {
		byName[s.Source().JobName()] = s
	}
	return &Registry{scrapers: byName}
}

// Dispatch runs the job's scrape on the worker registered for its name.
func (r *Registry) Dispatch(ctx context.Context, jobName string, req Request) (Result, error) {
	s, ok := r.scrapers[jobName]
	if !ok {
		return Result{}, fmt.Errorf("Dispatch: no scraper registered for job %q", jobName)
	}
	return s.Scrape(ctx, req), nil
}

// ForSource returns the worker for a source, or nil.
func (r *Registry) ForSource(source entity.Source) Scraper {
	return r.scrapers[source.JobName()]
}

// Sources lists the registered sources.
func (r *Registry) Sources() []entity.Source {
	sources := make([]entity.Source, 0, len(r.scrapers))
	for _, s := range r.scrapers {
		sources = append(sources, s.Source())
	}
	return sources
}
