package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/semaphore"

	"github.com/ledgerline/ledgerline/models"
)

// ChartRegistry is the chart registry collaborator. Republishing the same
// chart version must not error.
type ChartRegistry interface {
	Publish(ctx context.Context, spec models.ChartSpec) error
}

// DefaultChartMatrix is the fixed set of published charts.
var DefaultChartMatrix = []string{
	"consensus-node",
	"ingest",
	"fog-services",
	"mint-auditor",
	"watcher",
}

// ChartPublisher publishes the chart matrix.
type ChartPublisher struct {
	registry    ChartRegistry
	matrix      []string
	parallelism int64
	logger      log.Logger
}

// NewChartPublisher wires a chart publisher.
func NewChartPublisher(registry ChartRegistry, matrix []string, parallelism int64, logger log.Logger) *ChartPublisher {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if len(matrix) == 0 {
		matrix = DefaultChartMatrix
	}
	return &ChartPublisher{
		registry:    registry,
		matrix:      matrix,
		parallelism: parallelism,
		logger:      log.With(logger, "component", "charts"),
	}
}

// Matrix returns the configured chart names.
func (p *ChartPublisher) Matrix() []string {
	return p.matrix
}

// RequireImages enforces the all-or-nothing dependency on the image
// matrix: a chart may reference any image, so charts never publish against
// a partial image set.
func RequireImages(imageResults []Result, want int) error {
	if len(imageResults) < want {
		return fmt.Errorf("charts require %d published images, got %d", want, len(imageResults))
	}
	if failed := Failed(imageResults); len(failed) > 0 {
		return fmt.Errorf("charts require the full image matrix: %d of %d entries failed, first: %w",
			len(failed), len(imageResults), failed[0].Err)
	}
	return nil
}

// PublishAll publishes every chart versioned identically to the resolved
// tag. Same containment rules as the image matrix.
func (p *ChartPublisher) PublishAll(ctx context.Context, meta models.EnvironmentMetadata) ([]Result, error) {
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

			spec := models.ChartSpec{
				Name:         name,
				AppVersion:   meta.VersionTag,
				ChartVersion: meta.VersionTag,
			}

			start := time.Now()
			err := p.registry.Publish(ctx, spec)
			if err != nil {
				err = models.ErrPublish("chart", name, meta.VersionTag, err)
				level.Error(p.logger).Log("chart", name, "version", meta.VersionTag, "err", err)
			} else {
				level.Debug(p.logger).Log("chart", name, "version", meta.VersionTag, "published", true)
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
