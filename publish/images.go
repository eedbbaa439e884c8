// Package publish runs the image and chart publish matrices: typed lists
// of specs executed with bounded parallelism and per-entry failure
// containment.
package publish

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/semaphore"

	"github.com/ledgerline/ledgerline/models"
)

// ImageBuildOptions carries the per-entry publish context.
type ImageBuildOptions struct {
	Namespace  string
	CacheScope string // layer cache key: {image name, namespace}
	Bundles    map[models.ArtifactGroup]*models.ArtifactBundle
	BuildArgs  map[string]string
}

// ImageRegistry is the image registry collaborator. Republishing an
// existing tag must not error.
type ImageRegistry interface {
	Publish(ctx context.Context, spec models.ImageSpec, opts ImageBuildOptions) error
}

// DefaultImageMatrix is the fixed set of published images.
var DefaultImageMatrix = []string{
	"node",
	"ingest",
	"view",
	"report",
	"ledger",
	"gateway",
	"test-client",
	"watcher",
	"bootstrap-tools",
}

// Result records the outcome of one matrix entry.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Failed returns the subset of results that failed.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// ImagePublisher publishes the image matrix.
type ImagePublisher struct {
	registry    ImageRegistry
	matrix      []string
	parallelism int64
	logger      log.Logger
}

// NewImagePublisher wires an image publisher. A parallelism < 1 means
// unbounded.
func NewImagePublisher(registry ImageRegistry, matrix []string, parallelism int64, logger log.Logger) *ImagePublisher {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if len(matrix) == 0 {
		matrix = DefaultImageMatrix
	}
	return &ImagePublisher{
		registry:    registry,
		matrix:      matrix,
		parallelism: parallelism,
		logger:      log.With(logger, "component", "images"),
	}
}

// Matrix returns the configured image names.
func (p *ImagePublisher) Matrix() []string {
	return p.matrix
}

// PublishAll publishes every matrix entry with the resolved tag. Entries
// are mutually independent: one failure does not stop the others, but the
// aggregate error is non-nil if any entry failed. Both artifact bundles
// must be present; a bundle absent because its build stage was gate-skipped
// surfaces as a MissingArtifactError before anything is published.
func (p *ImagePublisher) PublishAll(ctx context.Context, meta models.EnvironmentMetadata, bundles map[models.ArtifactGroup]*models.ArtifactBundle) ([]Result, error) {
	for _, group := range []models.ArtifactGroup{models.GroupEnclave, models.GroupGateway} {
		if bundles[group] == nil {
			return nil, models.ErrMissingArtifact(group)
		}
	}

	var sem *semaphore.Weighted
	if p.parallelism > 0 {
		sem = semaphore.NewWeighted(p.parallelism)
	}

	results := make([]Result, len(p.matrix))
	var wg sync.WaitGroup

	for i, name := range p.matrix {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()

			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					results[i] = Result{Name: name, Err: err}
					return
				}
				defer sem.Release(1)
			}

			spec := models.ImageSpec{Name: name, Tag: meta.ImageTag}
			opts := ImageBuildOptions{
				Namespace:  meta.Namespace,
				CacheScope: name + "/" + meta.Namespace,
				Bundles:    bundles,
			}

			start := time.Now()
			err := p.registry.Publish(ctx, spec, opts)
			if err != nil {
				err = models.ErrPublish("image", name, meta.ImageTag, err)
				level.Error(p.logger).Log("image", spec.String(), "err", err)
			} else {
				level.Debug(p.logger).Log("image", spec.String(), "published", true)
			}
			results[i] = Result{Name: name, Err: err, Duration: time.Since(start)}
		}(i, name)
	}

	wg.Wait()

	if failed := Failed(results); len(failed) > 0 {
		return results, failed[0].Err
	}
	return results, nil
}
