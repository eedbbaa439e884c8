package ledgerline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/semaphore"

	"github.com/ledgerline/ledgerline/models"
)

// StageFunc is the work a stage performs. A nil error means success.
type StageFunc func(ctx context.Context) error

// Stage represents a pipeline node: an identifier, the work to perform,
// an optional gate predicate, and dependencies (previous stages).
type Stage struct {
	ID             string
	Run            StageFunc
	Predicate      func() bool // nil means the stage always runs
	dependencyRefs []*Stage    // references to dependency stages (instance-based, private)
}

// NewStage creates a new stage without dependencies.
// Dependencies are added via pipeline.AddStage(stage).After(deps...)
func NewStage(id string, run StageFunc) *Stage {
	return &Stage{
		ID:             id,
		Run:            run,
		dependencyRefs: []*Stage{},
	}
}

// When attaches a gate predicate to the stage. A false predicate makes the
// stage complete instantly with a skipped status, which dependency
// resolution treats as success.
func (s *Stage) When(pred func() bool) *Stage {
	s.Predicate = pred
	return s
}

// Pipeline orchestrates stage execution over an explicit dependency graph.
// Independent stages run concurrently up to the parallelism ceiling; stages
// with a dependency edge never execute concurrently.
type Pipeline struct {
	stages     map[string]*Stage   // Map ID -> Stage for fast access
	order      []string            // Insertion order, for deterministic reporting
	dependents map[string][]string // Map ID -> stages that depend on this (inverse graph)
	mutex      sync.RWMutex

	results   map[string]*models.StageResult
	resultsMu sync.Mutex

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	done    chan struct{} // Signals when the pipeline has terminated

	sem      *semaphore.Weighted
	eventBus *eventBus
	logger   log.Logger
}

// StageBuilder allows configuring a stage with fluent API
type StageBuilder struct {
	pipeline *Pipeline
	stage    *Stage
}

// After defines the stage dependencies.
// Returns error if a dependency doesn't exist in the pipeline.
func (sb *StageBuilder) After(dependencies ...*Stage) error {
	sb.pipeline.mutex.Lock()
	defer sb.pipeline.mutex.Unlock()

	for _, dep := range dependencies {
		if _, exists := sb.pipeline.stages[dep.ID]; !exists {
			return fmt.Errorf("dependency stage '%s' not found in pipeline", dep.ID)
		}

		sb.pipeline.dependents[dep.ID] = append(sb.pipeline.dependents[dep.ID], sb.stage.ID)
		sb.stage.dependencyRefs = append(sb.stage.dependencyRefs, dep)
	}

	return nil
}

// NewPipeline creates a new pipeline with the given parallelism ceiling.
// A ceiling < 1 means unbounded.
func NewPipeline(logger log.Logger, parallelism int64) *Pipeline {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	var sem *semaphore.Weighted
	if parallelism > 0 {
		sem = semaphore.NewWeighted(parallelism)
	}
	return &Pipeline{
		stages:     make(map[string]*Stage),
		dependents: make(map[string][]string),
		results:    make(map[string]*models.StageResult),
		done:       make(chan struct{}),
		sem:        sem,
		eventBus:   newEventBus(),
		logger:     logger,
	}
}

// AddListener adds a listener to receive events from the pipeline
func (p *Pipeline) AddListener(listener models.EventListener) {
	p.eventBus.addListener(listener)
}

// AddStage adds a stage to the pipeline and returns a builder to configure dependencies
func (p *Pipeline) AddStage(stage *Stage) *StageBuilder {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if stage == nil {
		panic("stage cannot be nil")
	}
	if stage.ID == "" {
		panic("stage ID cannot be empty")
	}
	if stage.Run == nil {
		panic("stage run func cannot be nil")
	}

	p.stages[stage.ID] = stage
	p.order = append(p.order, stage.ID)

	return &StageBuilder{
		pipeline: p,
		stage:    stage,
	}
}

// GetStage returns a stage given its ID
func (p *Pipeline) GetStage(id string) (*Stage, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	stage, exists := p.stages[id]
	return stage, exists
}

// Validate verifies that the pipeline is valid:
// - all dependencies exist
// - the dependency graph has no cycles
func (p *Pipeline) Validate() error {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	for id, stage := range p.stages {
		for _, dep := range stage.dependencyRefs {
			if _, exists := p.stages[dep.ID]; !exists {
				return fmt.Errorf("stage '%s' depends on non-existent stage '%s'", id, dep.ID)
			}
		}
	}

	// Cycle check (DFS)
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(string) bool
	hasCycle = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		stage := p.stages[id]
		for _, dep := range stage.dependencyRefs {
			if !visited[dep.ID] {
				if hasCycle(dep.ID) {
					return true
				}
			} else if recStack[dep.ID] {
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for id := range p.stages {
		if !visited[id] {
			if hasCycle(id) {
				return fmt.Errorf("circular dependency detected in pipeline")
			}
		}
	}

	return nil
}

// Start runs the pipeline in the background (non-blocking).
func (p *Pipeline) Start(parentCtx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}

	if err := p.Validate(); err != nil {
		p.running.Store(false)
		return fmt.Errorf("pipeline validation failed: %w", err)
	}

	p.ctx, p.cancel = context.WithCancel(parentCtx)
	p.done = make(chan struct{})

	go func() {
		defer func() {
			p.running.Store(false)

			// Wait until every emitted event has been processed
			p.eventBus.Wait()

			close(p.done)
		}()

		p.execute(p.ctx)
	}()

	return nil
}

// Stop cancels the pipeline and waits for it to terminate.
func (p *Pipeline) Stop() error {
	if !p.running.Load() {
		return fmt.Errorf("pipeline not running")
	}

	if p.cancel != nil {
		p.cancel()
	}

	timeout := time.After(30 * time.Second)
	select {
	case <-p.done:
		return nil
	case <-timeout:
		return fmt.Errorf("pipeline stop timeout")
	}
}

// Wait waits for the pipeline to terminate
func (p *Pipeline) Wait() {
	if p.done != nil {
		<-p.done
	}
}

// IsRunning reports whether the pipeline is currently executing
func (p *Pipeline) IsRunning() bool {
	return p.running.Load()
}

// Execute runs the pipeline to completion and returns the first failure,
// if any. A cancelled context is an error even when every started stage
// finished cleanly: stages that never ran were blocked, not skipped, and
// the run must not report success.
func (p *Pipeline) Execute(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	p.Wait()
	if res, failed := p.FirstFailure(); failed {
		return res.Err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// execute is the internal execution logic: one goroutine per stage, each
// blocked until all of its predecessors have recorded a terminal result.
func (p *Pipeline) execute(ctx context.Context) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	completed := make(map[string]chan struct{}, len(p.stages))
	for id := range p.stages {
		completed[id] = make(chan struct{})
	}

	var wg sync.WaitGroup

	for id, stage := range p.stages {
		wg.Add(1)

		go func(stageID string, stg *Stage) {
			defer wg.Done()
			defer close(completed[stageID])

			// Wait for every predecessor to finish
			for _, dep := range stg.dependencyRefs {
				select {
				case <-completed[dep.ID]:
				case <-ctx.Done():
					p.record(stageID, models.StatusBlocked, ctx.Err(), time.Now(), 0)
					return
				}
			}

			// A failed or blocked predecessor blocks this stage;
			// a skipped predecessor counts as success for scheduling.
			for _, dep := range stg.dependencyRefs {
				res := p.result(dep.ID)
				if res == nil {
					continue
				}
				if res.Status == models.StatusFailed || res.Status == models.StatusBlocked {
					p.record(stageID, models.StatusBlocked, fmt.Errorf("predecessor '%s' did not succeed", dep.ID), time.Now(), 0)
					p.eventBus.EmitStageBlocked(stageID, dep.ID)
					return
				}
			}

			if stg.Predicate != nil && !stg.Predicate() {
				p.record(stageID, models.StatusSkipped, nil, time.Now(), 0)
				p.eventBus.EmitStageSkipped(stageID)
				level.Debug(p.logger).Log("stage", stageID, "status", "skipped")
				return
			}

			if p.sem != nil {
				if err := p.sem.Acquire(ctx, 1); err != nil {
					p.record(stageID, models.StatusBlocked, err, time.Now(), 0)
					return
				}
				defer p.sem.Release(1)
			}

			start := time.Now()
			p.eventBus.EmitStageStarted(stageID)
			level.Debug(p.logger).Log("stage", stageID, "status", "running")

			err := stg.Run(ctx)
			duration := time.Since(start)

			if err != nil {
				p.record(stageID, models.StatusFailed, err, start, duration)
				p.eventBus.EmitStageError(stageID, err)
				level.Error(p.logger).Log("stage", stageID, "status", "failed", "err", err)
				return
			}

			p.record(stageID, models.StatusSucceeded, nil, start, duration)
			p.eventBus.EmitStageCompleted(stageID, duration)
			level.Debug(p.logger).Log("stage", stageID, "status", "succeeded", "duration", duration)
		}(id, stage)
	}

	wg.Wait()
}

func (p *Pipeline) record(stageID string, status models.StageStatus, err error, start time.Time, duration time.Duration) {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	p.results[stageID] = &models.StageResult{
		StageID:   stageID,
		Status:    status,
		Err:       err,
		StartedAt: start,
		Duration:  duration,
	}
}

func (p *Pipeline) result(stageID string) *models.StageResult {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	return p.results[stageID]
}

// Results returns a snapshot of all recorded stage results.
func (p *Pipeline) Results() map[string]models.StageResult {
	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()

	results := make(map[string]models.StageResult, len(p.results))
	for id, res := range p.results {
		results[id] = *res
	}
	return results
}

// FirstFailure returns the failed result of the earliest-added stage that
// failed, if any. Blocked stages are not failures in their own right.
func (p *Pipeline) FirstFailure() (models.StageResult, bool) {
	p.mutex.RLock()
	order := make([]string, len(p.order))
	copy(order, p.order)
	p.mutex.RUnlock()

	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()

	for _, id := range order {
		if res, ok := p.results[id]; ok && res.Status == models.StatusFailed {
			return *res, true
		}
	}
	return models.StageResult{}, false
}

// GetStages returns all stages in the pipeline
func (p *Pipeline) GetStages() map[string]*Stage {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	stages := make(map[string]*Stage, len(p.stages))
	for id, stage := range p.stages {
		stages[id] = stage
	}
	return stages
}
